package models

import (
	"time"

	"gorm.io/datatypes"
)

type GameStatus string

const (
	StatusNone      GameStatus = "none"
	StatusWishlist  GameStatus = "wishlist"
	StatusBacklog   GameStatus = "backlog"
	StatusPlaying   GameStatus = "playing"
	StatusCompleted GameStatus = "completed"
)

var Statuses = []GameStatus{StatusNone, StatusWishlist, StatusBacklog, StatusPlaying, StatusCompleted}

func (s GameStatus) Valid() bool {
	for _, st := range Statuses {
		if st == s {
			return true
		}
	}
	return false
}

// UserGame is a catalog game saved into a user's collection.
type UserGame struct {
	Game
	UserID       string     `json:"userId,omitempty"`
	Status       GameStatus `json:"status"`
	Rating       *int       `json:"rating,omitempty"`
	Notes        *string    `json:"notes,omitempty"`
	PlayTime     *float64   `json:"playTime,omitempty"`
	DateAdded    time.Time  `json:"dateAdded"`
	LastModified time.Time  `json:"lastModified"`
}

// Extra holds the user-owned annotations. Nil fields are left untouched.
type Extra struct {
	Rating   *int     `json:"rating,omitempty" validate:"omitnil,min=1,max=5"`
	Notes    *string  `json:"notes,omitempty"`
	PlayTime *float64 `json:"playTime,omitempty" validate:"omitnil,gte=0"`
}

type Patch struct {
	Status *GameStatus `json:"status,omitempty" validate:"omitnil,oneof=none wishlist backlog playing completed"`
	Extra
}

func (u UserGame) Extra() Extra {
	return Extra{Rating: u.Rating, Notes: u.Notes, PlayTime: u.PlayTime}
}

func NewUserGame(game Game, status GameStatus, extra Extra, now time.Time) UserGame {
	ug := UserGame{
		Game:         game,
		Status:       status,
		DateAdded:    now,
		LastModified: now,
	}
	ug.applyExtra(extra)
	return ug
}

// Merge refreshes catalog fields, status and annotations. DateAdded is kept.
func (u *UserGame) Merge(game Game, status GameStatus, extra Extra, now time.Time) {
	u.Game = game
	u.Status = status
	u.applyExtra(extra)
	u.Touch(now)
}

func (u *UserGame) ApplyPatch(p Patch, now time.Time) {
	if p.Status != nil {
		u.Status = *p.Status
	}
	u.applyExtra(p.Extra)
	u.Touch(now)
}

// Touch moves LastModified forward; it never goes back in time.
func (u *UserGame) Touch(now time.Time) {
	if now.Before(u.LastModified) {
		return
	}
	u.LastModified = now
}

func (u *UserGame) applyExtra(e Extra) {
	if e.Rating != nil {
		u.Rating = e.Rating
	}
	if e.Notes != nil {
		u.Notes = e.Notes
	}
	if e.PlayTime != nil {
		u.PlayTime = e.PlayTime
	}
}

// UserGames is the SQL row of a saved game.
type UserGames struct {
	ID                  uint64                             `gorm:"primaryKey"`
	UserID              string                             `gorm:"column:user_id;size:64;not null;uniqueIndex:idx_user_games_unique"`
	GameID              int64                              `gorm:"column:game_id;not null;uniqueIndex:idx_user_games_unique"`
	GameName            string                             `gorm:"column:game_name;not null"`
	GameBackgroundImage *string                            `gorm:"column:game_background_image"`
	GameReleased        *string                            `gorm:"column:game_released"`
	GameMetacritic      *int                               `gorm:"column:game_metacritic"`
	GamePlatforms       datatypes.JSONSlice[PlatformEntry] `gorm:"column:game_platforms"`
	GameGenres          datatypes.JSONSlice[Genre]         `gorm:"column:game_genres"`
	Status              GameStatus                         `gorm:"column:status;type:varchar(20);default:'none'"`
	Rating              *int                               `gorm:"column:rating"`
	Notes               *string                            `gorm:"column:notes"`
	PlayTime            *float64                           `gorm:"column:play_time"`
	DateAdded           time.Time                          `gorm:"column:date_added;not null"`
	LastModified        time.Time                          `gorm:"column:last_modified;not null"`
}

func (UserGames) TableName() string {
	return "user_games"
}

func NewUserGamesRow(userID string, ug UserGame) UserGames {
	return UserGames{
		UserID:              userID,
		GameID:              ug.ID,
		GameName:            ug.Name,
		GameBackgroundImage: ug.BackgroundImage,
		GameReleased:        ug.Released,
		GameMetacritic:      ug.Metacritic,
		GamePlatforms:       datatypes.NewJSONSlice(ug.Platforms),
		GameGenres:          datatypes.NewJSONSlice(ug.Genres),
		Status:              ug.Status,
		Rating:              ug.Rating,
		Notes:               ug.Notes,
		PlayTime:            ug.PlayTime,
		DateAdded:           ug.DateAdded,
		LastModified:        ug.LastModified,
	}
}

func (r UserGames) ToUserGame() UserGame {
	platforms := []PlatformEntry(r.GamePlatforms)
	if platforms == nil {
		platforms = []PlatformEntry{}
	}
	genres := []Genre(r.GameGenres)
	if genres == nil {
		genres = []Genre{}
	}

	return UserGame{
		Game: Game{
			ID:              r.GameID,
			Name:            r.GameName,
			BackgroundImage: r.GameBackgroundImage,
			Released:        r.GameReleased,
			Metacritic:      r.GameMetacritic,
			Platforms:       platforms,
			Genres:          genres,
		},
		UserID:       r.UserID,
		Status:       r.Status,
		Rating:       r.Rating,
		Notes:        r.Notes,
		PlayTime:     r.PlayTime,
		DateAdded:    r.DateAdded.UTC(),
		LastModified: r.LastModified.UTC(),
	}
}
