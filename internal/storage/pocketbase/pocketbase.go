// Package pocketbase stores user collections in a PocketBase "user_games" collection.
package pocketbase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	pb "gametrack/internal/clients/pocketbase"
	"gametrack/internal/models"
	"gametrack/internal/storage"
)

const (
	Source     = "pocketbase"
	Collection = "user_games"
)

type record struct {
	ID                  string                 `json:"id,omitempty"`
	User                string                 `json:"user"`
	GameID              int64                  `json:"game_id"`
	GameName            string                 `json:"game_name"`
	GameBackgroundImage string                 `json:"game_background_image"`
	GameReleased        string                 `json:"game_released"`
	GameMetacritic      int                    `json:"game_metacritic"`
	GamePlatforms       []models.PlatformEntry `json:"game_platforms"`
	GameGenres          []models.Genre         `json:"game_genres"`
	Status              models.GameStatus      `json:"status"`
	Rating              int                    `json:"rating"`
	Notes               string                 `json:"notes"`
	PlayTime            float64                `json:"play_time"`
	DateAdded           string                 `json:"date_added"`
	LastModified        string                 `json:"last_modified"`
}

// PocketBase has no null for number and text fields, so zero values read back as unset.
func (r record) toUserGame() models.UserGame {
	ug := models.UserGame{
		Game: models.Game{
			ID:        r.GameID,
			Name:      r.GameName,
			Platforms: r.GamePlatforms,
			Genres:    r.GameGenres,
		},
		UserID:       r.User,
		Status:       r.Status,
		DateAdded:    parseTime(r.DateAdded),
		LastModified: parseTime(r.LastModified),
	}
	if ug.Platforms == nil {
		ug.Platforms = []models.PlatformEntry{}
	}
	if ug.Genres == nil {
		ug.Genres = []models.Genre{}
	}
	if r.GameBackgroundImage != "" {
		ug.BackgroundImage = &r.GameBackgroundImage
	}
	if r.GameReleased != "" {
		ug.Released = &r.GameReleased
	}
	if r.GameMetacritic != 0 {
		ug.Metacritic = &r.GameMetacritic
	}
	if r.Rating != 0 {
		ug.Rating = &r.Rating
	}
	if r.Notes != "" {
		ug.Notes = &r.Notes
	}
	if r.PlayTime != 0 {
		ug.PlayTime = &r.PlayTime
	}
	return ug
}

func catalogFields(game models.Game) map[string]any {
	fields := map[string]any{
		"game_id":               game.ID,
		"game_name":             game.Name,
		"game_background_image": "",
		"game_released":         "",
		"game_metacritic":       0,
		"game_platforms":        game.Platforms,
		"game_genres":           game.Genres,
	}
	if game.BackgroundImage != nil {
		fields["game_background_image"] = *game.BackgroundImage
	}
	if game.Released != nil {
		fields["game_released"] = *game.Released
	}
	if game.Metacritic != nil {
		fields["game_metacritic"] = *game.Metacritic
	}
	return fields
}

func extraFields(fields map[string]any, extra models.Extra) {
	if extra.Rating != nil {
		fields["rating"] = *extra.Rating
	}
	if extra.Notes != nil {
		fields["notes"] = *extra.Notes
	}
	if extra.PlayTime != nil {
		fields["play_time"] = *extra.PlayTime
	}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

func laterOf(prev string, now time.Time) time.Time {
	if p := parseTime(prev); p.After(now) {
		return p
	}
	return now
}

type UserGames struct {
	client *pb.Client
	log    *slog.Logger
	now    func() time.Time
}

func NewUserGames(client *pb.Client, log *slog.Logger) *UserGames {
	return &UserGames{client: client, log: log, now: time.Now}
}

func (u *UserGames) Source() string {
	return Source
}

func userFilter(userID string) string {
	return "user = " + pb.Quote(userID)
}

func gameFilter(userID string, gameID int64) string {
	return fmt.Sprintf("%s && game_id = %d", userFilter(userID), gameID)
}

func (u *UserGames) GetAll(ctx context.Context, userID string) ([]models.UserGame, error) {
	const op = "storage.pocketbase.GetAll"

	records, err := pb.FullList[record](ctx, u.client, Collection, userFilter(userID), "-last_modified")
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	games := make([]models.UserGame, 0, len(records))
	for _, r := range records {
		games = append(games, r.toUserGame())
	}
	return games, nil
}

func (u *UserGames) find(ctx context.Context, userID string, gameID int64) (*record, error) {
	result, err := pb.List[record](ctx, u.client, Collection, pb.ListParams{
		Filter:  gameFilter(userID, gameID),
		Page:    1,
		PerPage: 1,
	})
	if err != nil {
		return nil, err
	}
	if len(result.Items) == 0 {
		return nil, storage.ErrNotFound
	}
	return &result.Items[0], nil
}

func (u *UserGames) Get(ctx context.Context, userID string, gameID int64) (*models.UserGame, error) {
	const op = "storage.pocketbase.Get"

	r, err := u.find(ctx, userID, gameID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	ug := r.toUserGame()
	return &ug, nil
}

// Save updates the user's record for the game or creates it. A create that
// loses a race on the (user, game_id) unique index is retried as an update.
func (u *UserGames) Save(ctx context.Context, userID string, game models.Game, status models.GameStatus, extra models.Extra) (*models.UserGame, error) {
	const op = "storage.pocketbase.Save"

	now := u.now().UTC()

	existing, err := u.find(ctx, userID, game.ID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if existing == nil {
		fields := catalogFields(game)
		extraFields(fields, extra)
		fields["user"] = userID
		fields["status"] = status
		fields["date_added"] = formatTime(now)
		fields["last_modified"] = formatTime(now)

		var created record
		err := u.client.Create(ctx, Collection, fields, &created)
		if err == nil {
			ug := created.toUserGame()
			return &ug, nil
		}
		if !pb.IsUniqueViolation(err) {
			return nil, fmt.Errorf("%s: %w: %w", op, storage.ErrCreateFailed, err)
		}

		u.log.Debug("concurrent create, retrying as update", slog.String("operation", op), slog.Int64("game_id", game.ID))
		if existing, err = u.find(ctx, userID, game.ID); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}

	fields := catalogFields(game)
	extraFields(fields, extra)
	fields["status"] = status
	fields["last_modified"] = formatTime(laterOf(existing.LastModified, now))

	var updated record
	if err := u.client.Update(ctx, Collection, existing.ID, fields, &updated); err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, storage.ErrUpdateFailed, err)
	}

	ug := updated.toUserGame()
	return &ug, nil
}

func (u *UserGames) UpdateFields(ctx context.Context, userID string, gameID int64, patch models.Patch) (*models.UserGame, error) {
	const op = "storage.pocketbase.UpdateFields"

	existing, err := u.find(ctx, userID, gameID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	fields := map[string]any{}
	extraFields(fields, patch.Extra)
	if patch.Status != nil {
		fields["status"] = *patch.Status
	}
	fields["last_modified"] = formatTime(laterOf(existing.LastModified, u.now().UTC()))

	var updated record
	if err := u.client.Update(ctx, Collection, existing.ID, fields, &updated); err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, storage.ErrUpdateFailed, err)
	}

	ug := updated.toUserGame()
	return &ug, nil
}

func (u *UserGames) Remove(ctx context.Context, userID string, gameID int64) error {
	const op = "storage.pocketbase.Remove"

	existing, err := u.find(ctx, userID, gameID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := u.client.Delete(ctx, Collection, existing.ID); err != nil {
		return fmt.Errorf("%s: %w: %w", op, storage.ErrDeleteFailed, err)
	}
	return nil
}

// Subscribe refetches the whole list on every realtime event for the user.
// Events arriving during a refetch are folded into one more refetch.
func (u *UserGames) Subscribe(ctx context.Context, userID string, fn func([]models.UserGame)) (func(), error) {
	const op = "storage.pocketbase.Subscribe"

	subCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	signals := make(chan struct{}, 1)

	stop, err := u.client.Subscribe(ctx, pb.Topic(Collection, userFilter(userID)), func(pb.Event) {
		select {
		case signals <- struct{}{}:
		default:
		}
	})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	go func() {
		for {
			select {
			case <-subCtx.Done():
				return
			case <-signals:
			}
			games, err := u.GetAll(subCtx, userID)
			if err != nil {
				if subCtx.Err() != nil {
					return
				}
				u.log.Warn("failed to refresh games", slog.String("operation", op), slog.String("error", err.Error()))
				continue
			}
			fn(games)
		}
	}()

	return func() {
		stop()
		cancel()
	}, nil
}
