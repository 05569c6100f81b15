// Package local stores a collection as one JSON list per scope. A scope is a
// device for anonymous clients or a user for authenticated fallback writes.
// Errors never reach callers: reads degrade to an empty list and failed writes are logged.
package local

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"gametrack/internal/models"
	"gametrack/internal/storage/kv"
)

const Key = "gametrack_user_games"

type Store struct {
	kv  kv.Store
	key string
	log *slog.Logger
	mu  *sync.Mutex
	now func() time.Time
}

// New returns the unscoped store under Key. Use For to reach a scope.
func New(store kv.Store, log *slog.Logger) *Store {
	return &Store{
		kv:  store,
		key: Key,
		log: log,
		mu:  &sync.Mutex{},
		now: time.Now,
	}
}

// For returns the store of one scope. Scopes share the lock of their parent.
func (s *Store) For(scope string) *Store {
	return &Store{
		kv:  s.kv,
		key: ScopeKey(scope),
		log: s.log,
		mu:  s.mu,
		now: s.now,
	}
}

func ScopeKey(scope string) string {
	if scope == "" {
		return Key
	}
	return Key + ":" + url.PathEscape(scope)
}

func (s *Store) GetAll(ctx context.Context) models.Collection {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.read(ctx)
}

func (s *Store) Get(ctx context.Context, gameID int64) (models.UserGame, bool) {
	games := s.GetAll(ctx)
	if i, ok := games.Find(gameID); ok {
		return games[i], true
	}
	return models.UserGame{}, false
}

func (s *Store) Save(ctx context.Context, game models.Game, status models.GameStatus, extra models.Extra) models.UserGame {
	s.mu.Lock()
	defer s.mu.Unlock()

	games := s.read(ctx)
	now := s.now().UTC()

	var saved models.UserGame
	if i, ok := games.Find(game.ID); ok {
		games[i].Merge(game, status, extra, now)
		saved = games[i]
	} else {
		saved = models.NewUserGame(game, status, extra, now)
		games = append(games, saved)
	}

	s.write(ctx, games)
	return saved
}

func (s *Store) Remove(ctx context.Context, gameID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	games := s.read(ctx)
	i, ok := games.Find(gameID)
	if !ok {
		return
	}

	s.write(ctx, append(games[:i], games[i+1:]...))
}

// UpdateFields applies the patch to an existing record. Missing records are left alone.
func (s *Store) UpdateFields(ctx context.Context, gameID int64, patch models.Patch) (models.UserGame, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	games := s.read(ctx)
	i, ok := games.Find(gameID)
	if !ok {
		return models.UserGame{}, false
	}

	games[i].ApplyPatch(patch, s.now().UTC())
	s.write(ctx, games)
	return games[i], true
}

func (s *Store) Stats(ctx context.Context) models.Stats {
	return s.GetAll(ctx).Stats()
}

func (s *Store) Export(ctx context.Context) string {
	const op = "storage.local.Export"

	doc := models.ExportDocument{
		ExportDate: s.now().UTC(),
		Version:    models.LocalExportVersion,
		Games:      s.GetAll(ctx),
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		s.log.Error("failed to encode export", slog.String("operation", op), slog.String("error", err.Error()))
		return ""
	}
	return string(data)
}

func (s *Store) Import(ctx context.Context, text string) bool {
	const op = "storage.local.Import"

	games, err := models.DecodeExport([]byte(text))
	if err != nil {
		s.log.Error("failed to parse import", slog.String("operation", op), slog.String("error", err.Error()))
		return false
	}

	models.FillDates(games, s.now().UTC())

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.write(ctx, games)
}

// Clear drops the stored list. Unlike the other operations it reports failures.
func (s *Store) Clear(ctx context.Context) error {
	const op = "storage.local.Clear"

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.kv.Delete(ctx, s.key); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *Store) read(ctx context.Context) models.Collection {
	const op = "storage.local.read"

	data, err := s.kv.Get(ctx, s.key)
	if errors.Is(err, kv.ErrKeyNotFound) {
		return models.Collection{}
	}
	if err != nil {
		s.log.Error("failed to read games", slog.String("operation", op), slog.String("error", err.Error()))
		return models.Collection{}
	}

	var games models.Collection
	if err := json.Unmarshal(data, &games); err != nil {
		s.log.Error("failed to parse games", slog.String("operation", op), slog.String("error", err.Error()))
		return models.Collection{}
	}
	if games == nil {
		games = models.Collection{}
	}
	return games
}

func (s *Store) write(ctx context.Context, games []models.UserGame) bool {
	const op = "storage.local.write"

	if games == nil {
		games = []models.UserGame{}
	}

	data, err := json.Marshal(games)
	if err != nil {
		s.log.Error("failed to encode games", slog.String("operation", op), slog.String("error", err.Error()))
		return false
	}

	if err := s.kv.Set(ctx, s.key, data); err != nil {
		s.log.Error("failed to write games", slog.String("operation", op), slog.String("error", err.Error()))
		return false
	}
	return true
}
