package mariadb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gametrack/internal/feed"
	"gametrack/internal/models"
	"gametrack/internal/storage"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const Source = "mariadb"

// catalogColumns are refreshed from the catalog on every save.
var catalogColumns = []string{
	"game_name",
	"game_background_image",
	"game_released",
	"game_metacritic",
	"game_platforms",
	"game_genres",
	"status",
}

type UserGames struct {
	db   *gorm.DB
	feed feed.Feed
	log  *slog.Logger
	now  func() time.Time
}

func NewUserGames(s *Storage, f feed.Feed, log *slog.Logger) *UserGames {
	return &UserGames{
		db:   s.DB,
		feed: f,
		log:  log,
		now:  time.Now,
	}
}

func (u *UserGames) Source() string {
	return Source
}

func (u *UserGames) GetAll(ctx context.Context, userID string) ([]models.UserGame, error) {
	const op = "storage.mariadb.user_games.GetAll"

	var rows []models.UserGames
	err := u.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("last_modified DESC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	games := make([]models.UserGame, 0, len(rows))
	for _, row := range rows {
		games = append(games, row.ToUserGame())
	}
	return games, nil
}

func (u *UserGames) Get(ctx context.Context, userID string, gameID int64) (*models.UserGame, error) {
	const op = "storage.mariadb.user_games.Get"

	row, err := u.get(u.db.WithContext(ctx), userID, gameID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	ug := row.ToUserGame()
	return &ug, nil
}

func (u *UserGames) get(db *gorm.DB, userID string, gameID int64) (*models.UserGames, error) {
	var row models.UserGames
	err := db.Where("user_id = ? AND game_id = ?", userID, gameID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// Save inserts the record or updates it in place with a single statement.
// date_added is never part of the update, and last_modified only moves forward.
func (u *UserGames) Save(ctx context.Context, userID string, game models.Game, status models.GameStatus, extra models.Extra) (*models.UserGame, error) {
	const op = "storage.mariadb.user_games.Save"

	row := models.NewUserGamesRow(userID, models.NewUserGame(game, status, extra, u.now().UTC().Truncate(time.Microsecond)))

	updates := clause.AssignmentColumns(catalogColumns)
	for _, col := range []string{"rating", "notes", "play_time"} {
		updates = append(updates, clause.Assignment{
			Column: clause.Column{Name: col},
			Value:  gorm.Expr(fmt.Sprintf("COALESCE(VALUES(%s), %s)", col, col)),
		})
	}
	updates = append(updates, clause.Assignment{
		Column: clause.Column{Name: "last_modified"},
		Value:  gorm.Expr("GREATEST(last_modified, VALUES(last_modified))"),
	})

	err := u.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "game_id"}},
		DoUpdates: updates,
	}).Create(&row).Error
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, storage.ErrCreateFailed, err)
	}

	saved, err := u.Get(ctx, userID, game.ID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	u.publish(ctx, userID)
	return saved, nil
}

func (u *UserGames) UpdateFields(ctx context.Context, userID string, gameID int64, patch models.Patch) (*models.UserGame, error) {
	const op = "storage.mariadb.user_games.UpdateFields"

	var updated models.UserGame
	err := u.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, err := u.get(tx.Clauses(clause.Locking{Strength: "UPDATE"}), userID, gameID)
		if err != nil {
			return err
		}

		ug := row.ToUserGame()
		ug.ApplyPatch(patch, u.now().UTC().Truncate(time.Microsecond))

		err = tx.Model(&models.UserGames{}).
			Where("id = ?", row.ID).
			Updates(map[string]any{
				"status":        ug.Status,
				"rating":        ug.Rating,
				"notes":         ug.Notes,
				"play_time":     ug.PlayTime,
				"last_modified": ug.LastModified,
			}).Error
		if err != nil {
			return fmt.Errorf("%w: %w", storage.ErrUpdateFailed, err)
		}

		updated = ug
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	u.publish(ctx, userID)
	return &updated, nil
}

func (u *UserGames) Remove(ctx context.Context, userID string, gameID int64) error {
	const op = "storage.mariadb.user_games.Remove"

	res := u.db.WithContext(ctx).
		Where("user_id = ? AND game_id = ?", userID, gameID).
		Delete(&models.UserGames{})
	if res.Error != nil {
		return fmt.Errorf("%s: %w: %w", op, storage.ErrDeleteFailed, res.Error)
	}

	if res.RowsAffected > 0 {
		u.publish(ctx, userID)
	}
	return nil
}

func (u *UserGames) Subscribe(ctx context.Context, userID string, fn func([]models.UserGame)) (func(), error) {
	const op = "storage.mariadb.user_games.Subscribe"

	signals, unsubscribe, err := u.feed.Subscribe(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	subCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	go func() {
		for range signals {
			games, err := u.GetAll(subCtx, userID)
			if err != nil {
				if subCtx.Err() != nil {
					return
				}
				u.log.Warn("failed to refresh games",
					slog.String("operation", op),
					slog.String("error", err.Error()))
				continue
			}
			fn(games)
		}
	}()

	return func() {
		cancel()
		unsubscribe()
	}, nil
}

func (u *UserGames) publish(ctx context.Context, userID string) {
	const op = "storage.mariadb.user_games.publish"

	if err := u.feed.Publish(ctx, userID); err != nil {
		u.log.Warn("failed to publish change",
			slog.String("operation", op),
			slog.String("error", err.Error()))
	}
}
