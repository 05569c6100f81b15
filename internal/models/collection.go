package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

const (
	LocalExportVersion  = "1.0"
	RemoteExportVersion = "2.0"
)

type Stats struct {
	Total         int     `json:"total"`
	Wishlist      int     `json:"wishlist"`
	Backlog       int     `json:"backlog"`
	Playing       int     `json:"playing"`
	Completed     int     `json:"completed"`
	AverageRating float64 `json:"averageRating"`
	TotalPlayTime float64 `json:"totalPlayTime"`
}

// ExportDocument is the backup file format. Source is set only for remote exports.
type ExportDocument struct {
	ExportDate time.Time  `json:"exportDate"`
	Version    string     `json:"version"`
	Source     string     `json:"source,omitempty"`
	Games      []UserGame `json:"games"`
}

type Collection []UserGame

func (c Collection) Find(gameID int64) (int, bool) {
	for i, g := range c {
		if g.ID == gameID {
			return i, true
		}
	}
	return -1, false
}

func (c Collection) FilterByStatus(status GameStatus) Collection {
	return c.filter(func(g UserGame) bool { return g.Status == status })
}

func (c Collection) FilterByPlatform(platformID int64) Collection {
	return c.filter(func(g UserGame) bool { return g.HasPlatform(platformID) })
}

// FilterByPlatforms keeps games released on any of the platforms. No ids keeps everything.
func (c Collection) FilterByPlatforms(platformIDs []int64) Collection {
	if len(platformIDs) == 0 {
		return c
	}
	return c.filter(func(g UserGame) bool {
		for _, id := range platformIDs {
			if g.HasPlatform(id) {
				return true
			}
		}
		return false
	})
}

func (c Collection) FilterByGenres(genreIDs []int64) Collection {
	if len(genreIDs) == 0 {
		return c
	}
	return c.filter(func(g UserGame) bool {
		for _, id := range genreIDs {
			if g.HasGenre(id) {
				return true
			}
		}
		return false
	})
}

func (c Collection) Search(query string) Collection {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return c
	}
	return c.filter(func(g UserGame) bool {
		return strings.Contains(strings.ToLower(g.Name), query)
	})
}

// Genres returns the distinct genres of the collection sorted by name.
func (c Collection) Genres() []Genre {
	seen := make(map[int64]struct{})
	genres := []Genre{}
	for _, g := range c {
		for _, genre := range g.Genres {
			if _, ok := seen[genre.ID]; ok {
				continue
			}
			seen[genre.ID] = struct{}{}
			genres = append(genres, genre)
		}
	}
	sort.Slice(genres, func(i, j int) bool { return genres[i].Name < genres[j].Name })
	return genres
}

func (c Collection) Stats() Stats {
	stats := Stats{Total: len(c)}

	var ratingSum, rated int
	for _, g := range c {
		switch g.Status {
		case StatusWishlist:
			stats.Wishlist++
		case StatusBacklog:
			stats.Backlog++
		case StatusPlaying:
			stats.Playing++
		case StatusCompleted:
			stats.Completed++
			if g.Rating != nil {
				ratingSum += *g.Rating
				rated++
			}
		}
		if g.PlayTime != nil {
			stats.TotalPlayTime += *g.PlayTime
		}
	}

	if rated > 0 {
		stats.AverageRating = float64(ratingSum) / float64(rated)
	}

	return stats
}

func (c Collection) SortByLastModified() {
	sort.SliceStable(c, func(i, j int) bool { return c[i].LastModified.After(c[j].LastModified) })
}

func (c Collection) filter(keep func(UserGame) bool) Collection {
	out := Collection{}
	for _, g := range c {
		if keep(g) {
			out = append(out, g)
		}
	}
	return out
}

var (
	ErrInvalidExport = errors.New("document has no games list")
	ErrDuplicateGame = errors.New("document lists a game twice")
	ErrInvertedDates = errors.New("lastModified is before dateAdded")
)

// DecodeExport reads the games out of an export document or a bare JSON array.
func DecodeExport(data []byte) ([]UserGame, error) {
	var games []UserGame

	var doc struct {
		Games *[]UserGame `json:"games"`
	}
	if err := json.Unmarshal(data, &doc); err == nil {
		if doc.Games == nil {
			return nil, ErrInvalidExport
		}
		games = *doc.Games
	} else if err := json.Unmarshal(data, &games); err != nil {
		return nil, err
	}

	seen := make(map[int64]struct{}, len(games))
	for _, g := range games {
		if _, ok := seen[g.ID]; ok {
			return nil, fmt.Errorf("%w: %d", ErrDuplicateGame, g.ID)
		}
		seen[g.ID] = struct{}{}

		if !g.DateAdded.IsZero() && !g.LastModified.IsZero() && g.LastModified.Before(g.DateAdded) {
			return nil, fmt.Errorf("%w: game %d", ErrInvertedDates, g.ID)
		}
	}
	return games, nil
}

// FillDates stamps records imported without bookkeeping dates.
func FillDates(games []UserGame, now time.Time) {
	for i := range games {
		g := &games[i]
		switch {
		case g.DateAdded.IsZero() && g.LastModified.IsZero():
			g.DateAdded, g.LastModified = now, now
		case g.DateAdded.IsZero():
			g.DateAdded = g.LastModified
		case g.LastModified.IsZero():
			g.LastModified = g.DateAdded
		}
	}
}
