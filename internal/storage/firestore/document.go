package firestore

import (
	"fmt"
	"time"

	"gametrack/internal/models"
)

type platform struct {
	ID   int64  `firestore:"id"`
	Name string `firestore:"name"`
	Slug string `firestore:"slug"`
}

type platformEntry struct {
	Platform platform `firestore:"platform"`
}

type genre struct {
	ID   int64  `firestore:"id"`
	Name string `firestore:"name"`
	Slug string `firestore:"slug"`
}

// document mirrors a UserGame with the field names the web client wrote.
type document struct {
	UserID          string          `firestore:"userId"`
	ID              int64           `firestore:"id"`
	Name            string          `firestore:"name"`
	BackgroundImage *string         `firestore:"background_image"`
	Released        *string         `firestore:"released"`
	Metacritic      *int            `firestore:"metacritic"`
	Platforms       []platformEntry `firestore:"platforms"`
	Genres          []genre         `firestore:"genres"`
	Status          string          `firestore:"status"`
	Rating          *int            `firestore:"rating,omitempty"`
	Notes           *string         `firestore:"notes,omitempty"`
	PlayTime        *float64        `firestore:"playTime,omitempty"`
	DateAdded       time.Time       `firestore:"dateAdded"`
	LastModified    time.Time       `firestore:"lastModified"`
}

func docID(userID string, gameID int64) string {
	return fmt.Sprintf("%s_%d", userID, gameID)
}

func toDocument(userID string, ug models.UserGame) document {
	doc := document{
		UserID:          userID,
		ID:              ug.ID,
		Name:            ug.Name,
		BackgroundImage: ug.BackgroundImage,
		Released:        ug.Released,
		Metacritic:      ug.Metacritic,
		Platforms:       make([]platformEntry, 0, len(ug.Platforms)),
		Genres:          make([]genre, 0, len(ug.Genres)),
		Status:          string(ug.Status),
		Rating:          ug.Rating,
		Notes:           ug.Notes,
		PlayTime:        ug.PlayTime,
		DateAdded:       ug.DateAdded,
		LastModified:    ug.LastModified,
	}
	for _, p := range ug.Platforms {
		doc.Platforms = append(doc.Platforms, platformEntry{Platform: platform(p.Platform)})
	}
	for _, g := range ug.Genres {
		doc.Genres = append(doc.Genres, genre(g))
	}
	return doc
}

func (d document) toUserGame() models.UserGame {
	ug := models.UserGame{
		Game: models.Game{
			ID:              d.ID,
			Name:            d.Name,
			BackgroundImage: d.BackgroundImage,
			Released:        d.Released,
			Metacritic:      d.Metacritic,
			Platforms:       make([]models.PlatformEntry, 0, len(d.Platforms)),
			Genres:          make([]models.Genre, 0, len(d.Genres)),
		},
		UserID:       d.UserID,
		Status:       models.GameStatus(d.Status),
		Rating:       d.Rating,
		Notes:        d.Notes,
		PlayTime:     d.PlayTime,
		DateAdded:    d.DateAdded.UTC(),
		LastModified: d.LastModified.UTC(),
	}
	for _, p := range d.Platforms {
		ug.Platforms = append(ug.Platforms, models.PlatformEntry{Platform: models.Platform(p.Platform)})
	}
	for _, g := range d.Genres {
		ug.Genres = append(ug.Genres, models.Genre(g))
	}
	return ug
}
