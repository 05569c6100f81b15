// Package firestore stores user collections in the Firestore "userGames" collection,
// one document per user and game keyed "{userId}_{gameId}".
package firestore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gametrack/internal/models"
	"gametrack/internal/storage"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	Source            = "firebase"
	DefaultCollection = "userGames"
)

type UserGames struct {
	client *firestore.Client
	games  *firestore.CollectionRef
	log    *slog.Logger
	now    func() time.Time
}

func NewUserGames(client *firestore.Client, collection string, log *slog.Logger) *UserGames {
	if collection == "" {
		collection = DefaultCollection
	}
	return &UserGames{
		client: client,
		games:  client.Collection(collection),
		log:    log,
		now:    time.Now,
	}
}

func (u *UserGames) Source() string {
	return Source
}

func (u *UserGames) userQuery(userID string) firestore.Query {
	return u.games.Where("userId", "==", userID).OrderBy("lastModified", firestore.Desc)
}

func decodeAll(snaps []*firestore.DocumentSnapshot) ([]models.UserGame, error) {
	games := make([]models.UserGame, 0, len(snaps))
	for _, snap := range snaps {
		var doc document
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode %s: %w", snap.Ref.ID, err)
		}
		games = append(games, doc.toUserGame())
	}
	return games, nil
}

func (u *UserGames) GetAll(ctx context.Context, userID string) ([]models.UserGame, error) {
	const op = "storage.firestore.GetAll"

	snaps, err := u.userQuery(userID).Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	games, err := decodeAll(snaps)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return games, nil
}

func (u *UserGames) Get(ctx context.Context, userID string, gameID int64) (*models.UserGame, error) {
	const op = "storage.firestore.Get"

	snap, err := u.games.Doc(docID(userID, gameID)).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var doc document
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	ug := doc.toUserGame()
	return &ug, nil
}

// Save reads and writes the document in one transaction, so dateAdded survives concurrent saves.
func (u *UserGames) Save(ctx context.Context, userID string, game models.Game, st models.GameStatus, extra models.Extra) (*models.UserGame, error) {
	const op = "storage.firestore.Save"

	ref := u.games.Doc(docID(userID, game.ID))

	var saved models.UserGame
	err := u.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		now := u.now().UTC().Truncate(time.Microsecond)

		snap, err := tx.Get(ref)
		switch {
		case status.Code(err) == codes.NotFound:
			saved = models.NewUserGame(game, st, extra, now)
		case err != nil:
			return err
		default:
			var doc document
			if err := snap.DataTo(&doc); err != nil {
				return err
			}
			saved = doc.toUserGame()
			saved.Merge(game, st, extra, now)
		}

		saved.UserID = userID
		return tx.Set(ref, toDocument(userID, saved))
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, storage.ErrUpdateFailed, err)
	}

	return &saved, nil
}

func (u *UserGames) UpdateFields(ctx context.Context, userID string, gameID int64, patch models.Patch) (*models.UserGame, error) {
	const op = "storage.firestore.UpdateFields"

	ref := u.games.Doc(docID(userID, gameID))

	var updated models.UserGame
	err := u.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if status.Code(err) == codes.NotFound {
			return storage.ErrNotFound
		}
		if err != nil {
			return err
		}

		var doc document
		if err := snap.DataTo(&doc); err != nil {
			return err
		}
		updated = doc.toUserGame()
		updated.ApplyPatch(patch, u.now().UTC().Truncate(time.Microsecond))

		return tx.Set(ref, toDocument(userID, updated))
	})
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, storage.ErrUpdateFailed, err)
	}

	return &updated, nil
}

func (u *UserGames) Remove(ctx context.Context, userID string, gameID int64) error {
	const op = "storage.firestore.Remove"

	if _, err := u.games.Doc(docID(userID, gameID)).Delete(ctx); err != nil && status.Code(err) != codes.NotFound {
		return fmt.Errorf("%s: %w: %w", op, storage.ErrDeleteFailed, err)
	}
	return nil
}

func (u *UserGames) Subscribe(ctx context.Context, userID string, fn func([]models.UserGame)) (func(), error) {
	const op = "storage.firestore.Subscribe"

	subCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	it := u.userQuery(userID).Snapshots(subCtx)

	go func() {
		defer it.Stop()
		for {
			snap, err := it.Next()
			if err != nil {
				if subCtx.Err() != nil || errors.Is(err, iterator.Done) || status.Code(err) == codes.Canceled {
					return
				}
				u.log.Error("games subscription failed", slog.String("operation", op), slog.String("error", err.Error()))
				return
			}

			snaps, err := snap.Documents.GetAll()
			if err != nil {
				u.log.Warn("failed to read snapshot", slog.String("operation", op), slog.String("error", err.Error()))
				continue
			}
			games, err := decodeAll(snaps)
			if err != nil {
				u.log.Warn("failed to decode snapshot", slog.String("operation", op), slog.String("error", err.Error()))
				continue
			}
			fn(games)
		}
	}()

	return cancel, nil
}
