package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"gametrack/internal/models"
	"gametrack/internal/storage"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

var (
	ErrValidation        = errors.New("validation failed")
	ErrNoMigration       = errors.New("no migration pending")
	ErrClosed            = errors.New("library is closed")
	ErrRemoteUnavailable = errors.New("remote store unavailable")
)

// SourceLocal names the on-device store in status reports.
const SourceLocal = "local"

type State string

const (
	StateUnauthenticated  State = "unauthenticated"
	StateLoading          State = "loading"
	StateRemoteActive     State = "remote-active"
	StateMigrationPending State = "migration-pending"
)

// RemoteStore is a per-user collection store on a managed backend.
type RemoteStore interface {
	Source() string
	GetAll(ctx context.Context, userID string) ([]models.UserGame, error)
	Get(ctx context.Context, userID string, gameID int64) (*models.UserGame, error)
	Save(ctx context.Context, userID string, game models.Game, status models.GameStatus, extra models.Extra) (*models.UserGame, error)
	UpdateFields(ctx context.Context, userID string, gameID int64, patch models.Patch) (*models.UserGame, error)
	Remove(ctx context.Context, userID string, gameID int64) error
	Subscribe(ctx context.Context, userID string, fn func([]models.UserGame)) (func(), error)
}

// LocalStore is one scope of the local collection. It never fails except on Clear.
type LocalStore interface {
	GetAll(ctx context.Context) models.Collection
	Save(ctx context.Context, game models.Game, status models.GameStatus, extra models.Extra) models.UserGame
	Remove(ctx context.Context, gameID int64)
	UpdateFields(ctx context.Context, gameID int64, patch models.Patch) (models.UserGame, bool)
	Export(ctx context.Context) string
	Import(ctx context.Context, text string) bool
	Clear(ctx context.Context) error
}

type Fallbacks struct {
	Count     int        `json:"count"`
	LastError string     `json:"lastError,omitempty"`
	LastAt    *time.Time `json:"lastAt,omitempty"`
}

type LibraryStatus struct {
	State           State     `json:"state"`
	Authenticated   bool      `json:"authenticated"`
	UserID          string    `json:"userId,omitempty"`
	Source          string    `json:"source"`
	MigrationNeeded bool      `json:"migrationNeeded"`
	Subscribed      bool      `json:"subscribed"`
	Fallbacks       Fallbacks `json:"fallbacks"`
}

// Library is the collection of one session. Anonymous libraries read and write
// their device's local store. Authenticated ones go through the remote store
// and fall back to the user's local store for a single call when it fails.
type Library struct {
	userID   string
	local    LocalStore
	device   LocalStore
	remote   RemoteStore
	validate *validator.Validate
	log      *slog.Logger
	now      func() time.Time

	// ops serialises mutations, loads and migration.
	ops sync.Mutex

	mu          sync.RWMutex
	state       State
	games       models.Collection
	unsubscribe func()
	pending     LocalStore
	watchers    map[uuid.UUID]func(models.Collection)
	fallbacks   Fallbacks
	closed      bool
}

func NewAnonymousLibrary(local LocalStore, validate *validator.Validate, log *slog.Logger) *Library {
	return newLibrary("", local, nil, validate, log, StateUnauthenticated)
}

// NewLibrary returns an authenticated library in the loading state. Start loads it.
func NewLibrary(userID string, local LocalStore, remote RemoteStore, validate *validator.Validate, log *slog.Logger) *Library {
	return newLibrary(userID, local, remote, validate, log.With(slog.String("user_id", userID)), StateLoading)
}

func newLibrary(userID string, local LocalStore, remote RemoteStore, validate *validator.Validate, log *slog.Logger, state State) *Library {
	if validate == nil {
		validate = validator.New()
	}
	return &Library{
		userID:   userID,
		local:    local,
		remote:   remote,
		validate: validate,
		log:      log,
		now:      time.Now,
		state:    state,
		games:    models.Collection{},
		watchers: make(map[uuid.UUID]func(models.Collection)),
	}
}

// WithDevice offers the device's anonymous collection for migration when the
// user has nothing stored yet. Call it before Start.
func (l *Library) WithDevice(device LocalStore) *Library {
	l.device = device
	return l
}

func (l *Library) authenticated() bool {
	return l.remote != nil
}

func (l *Library) currentState() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

func (l *Library) Start(ctx context.Context) error {
	if !l.authenticated() {
		return nil
	}

	l.ops.Lock()
	defer l.ops.Unlock()

	return l.load(ctx)
}

func (l *Library) load(ctx context.Context) error {
	const op = "services.library.load"

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrClosed
	}
	l.state = StateLoading
	l.mu.Unlock()

	remoteGames, err := l.remote.GetAll(ctx, l.userID)
	if err != nil {
		l.recordFallback(op, err)
		l.setState(StateRemoteActive, l.local.GetAll(ctx))
		return fmt.Errorf("%s: %w", op, err)
	}

	if len(remoteGames) == 0 {
		if source, localGames := l.migrationSource(ctx); source != nil {
			l.stopFeed()
			l.mu.Lock()
			l.pending = source
			l.mu.Unlock()
			l.setState(StateMigrationPending, localGames)
			l.log.Info("local collection waits for migration", slog.Int("games", len(localGames)))
			return nil
		}
	}

	l.mu.Lock()
	l.pending = nil
	l.mu.Unlock()
	l.setState(StateRemoteActive, remoteGames)
	return l.ensureFeed(ctx)
}

// migrationSource picks the user's own fallback records first, then the device collection.
func (l *Library) migrationSource(ctx context.Context) (LocalStore, models.Collection) {
	if games := l.local.GetAll(ctx); len(games) > 0 {
		return l.local, games
	}
	if l.device != nil {
		if games := l.device.GetAll(ctx); len(games) > 0 {
			return l.device, games
		}
	}
	return nil, nil
}

// offline is the local store serving the current state.
func (l *Library) offline() LocalStore {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.state == StateMigrationPending && l.pending != nil {
		return l.pending
	}
	return l.local
}

func (l *Library) setState(state State, games []models.UserGame) {
	list := models.Collection(games)
	if list == nil {
		list = models.Collection{}
	}

	l.mu.Lock()
	l.state = state
	l.games = list
	l.mu.Unlock()

	l.notify()
}

func (l *Library) ensureFeed(ctx context.Context) error {
	const op = "services.library.ensureFeed"

	l.mu.RLock()
	subscribed := l.unsubscribe != nil
	l.mu.RUnlock()
	if subscribed {
		return nil
	}

	unsubscribe, err := l.remote.Subscribe(ctx, l.userID, l.onRemoteChange)
	if err != nil {
		l.log.Warn("failed to subscribe to remote changes",
			slog.String("operation", op),
			slog.String("error", err.Error()))
		return nil
	}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		unsubscribe()
		return ErrClosed
	}
	l.unsubscribe = unsubscribe
	l.mu.Unlock()
	return nil
}

func (l *Library) stopFeed() {
	l.mu.Lock()
	unsubscribe := l.unsubscribe
	l.unsubscribe = nil
	l.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
}

func (l *Library) onRemoteChange(games []models.UserGame) {
	l.mu.Lock()
	if l.closed || l.state != StateRemoteActive {
		l.mu.Unlock()
		return
	}
	l.games = models.Collection(games)
	l.mu.Unlock()

	l.notify()
}

func (l *Library) Games(ctx context.Context) models.Collection {
	if !l.authenticated() {
		return l.local.GetAll(ctx)
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	games := make(models.Collection, len(l.games))
	copy(games, l.games)
	return games
}

func (l *Library) Get(ctx context.Context, gameID int64) (models.UserGame, error) {
	games := l.Games(ctx)
	if i, ok := games.Find(gameID); ok {
		return games[i], nil
	}
	return models.UserGame{}, storage.ErrNotFound
}

func (l *Library) Stats(ctx context.Context) models.Stats {
	return l.Games(ctx).Stats()
}

func (l *Library) Watch(fn func(models.Collection)) func() {
	id := uuid.New()

	l.mu.Lock()
	l.watchers[id] = fn
	l.mu.Unlock()

	return func() {
		l.mu.Lock()
		delete(l.watchers, id)
		l.mu.Unlock()
	}
}

func (l *Library) notify() {
	games := l.Games(context.Background())

	l.mu.RLock()
	watchers := make([]func(models.Collection), 0, len(l.watchers))
	for _, fn := range l.watchers {
		watchers = append(watchers, fn)
	}
	l.mu.RUnlock()

	for _, fn := range watchers {
		fn(games)
	}
}

func (l *Library) validateSave(game models.Game, status models.GameStatus, extra models.Extra) error {
	if game.ID <= 0 {
		return fmt.Errorf("%w: game id must be positive", ErrValidation)
	}
	if !status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrValidation, status)
	}
	if err := l.validate.Struct(extra); err != nil {
		return fmt.Errorf("%w: %w", ErrValidation, err)
	}
	return nil
}

func (l *Library) Save(ctx context.Context, game models.Game, status models.GameStatus, extra models.Extra) (models.UserGame, error) {
	const op = "services.library.Save"

	if err := l.validateSave(game, status, extra); err != nil {
		return models.UserGame{}, err
	}

	l.ops.Lock()
	defer l.ops.Unlock()

	switch l.currentState() {
	case StateRemoteActive:
		saved, err := l.remote.Save(ctx, l.userID, game, status, extra)
		if err == nil {
			l.upsertServed(*saved)
			return *saved, nil
		}
		l.recordFallback(op, err)
		return l.local.Save(ctx, game, status, extra), nil
	case StateMigrationPending:
		pending := l.offline()
		saved := pending.Save(ctx, game, status, extra)
		l.setState(StateMigrationPending, pending.GetAll(ctx))
		return saved, nil
	default:
		saved := l.local.Save(ctx, game, status, extra)
		l.notify()
		return saved, nil
	}
}

func (l *Library) UpdateFields(ctx context.Context, gameID int64, patch models.Patch) (models.UserGame, error) {
	const op = "services.library.UpdateFields"

	if err := l.validate.Struct(patch); err != nil {
		return models.UserGame{}, fmt.Errorf("%w: %w", ErrValidation, err)
	}

	l.ops.Lock()
	defer l.ops.Unlock()

	state := l.currentState()
	if state == StateRemoteActive {
		updated, err := l.remote.UpdateFields(ctx, l.userID, gameID, patch)
		switch {
		case err == nil:
			l.upsertServed(*updated)
			return *updated, nil
		case errors.Is(err, storage.ErrNotFound):
			return models.UserGame{}, storage.ErrNotFound
		}

		l.recordFallback(op, err)
		localUpdated, ok := l.local.UpdateFields(ctx, gameID, patch)
		if !ok {
			// The record only exists remotely.
			return models.UserGame{}, fmt.Errorf("%s: %w: %w", op, ErrRemoteUnavailable, err)
		}
		return localUpdated, nil
	}

	store := l.offline()
	updated, ok := store.UpdateFields(ctx, gameID, patch)
	if !ok {
		return models.UserGame{}, storage.ErrNotFound
	}

	if state == StateMigrationPending {
		l.setState(StateMigrationPending, store.GetAll(ctx))
	} else {
		l.notify()
	}
	return updated, nil
}

func (l *Library) Remove(ctx context.Context, gameID int64) error {
	const op = "services.library.Remove"

	l.ops.Lock()
	defer l.ops.Unlock()

	switch l.currentState() {
	case StateRemoteActive:
		if err := l.remote.Remove(ctx, l.userID, gameID); err != nil {
			l.recordFallback(op, err)
			l.local.Remove(ctx, gameID)
			return nil
		}
		l.removeServed(gameID)
	case StateMigrationPending:
		pending := l.offline()
		pending.Remove(ctx, gameID)
		l.setState(StateMigrationPending, pending.GetAll(ctx))
	default:
		l.local.Remove(ctx, gameID)
		l.notify()
	}
	return nil
}

// Migrate copies every pending local record into the remote store, then clears
// that local store. A failure leaves it untouched.
func (l *Library) Migrate(ctx context.Context) (bool, error) {
	const op = "services.library.Migrate"

	l.ops.Lock()
	defer l.ops.Unlock()

	if l.currentState() != StateMigrationPending {
		return false, ErrNoMigration
	}

	pending := l.offline()
	games := pending.GetAll(ctx)
	for _, g := range games {
		if _, err := l.remote.Save(ctx, l.userID, g.Game, g.Status, g.Extra()); err != nil {
			l.log.Error("migration failed",
				slog.String("operation", op),
				slog.Int64("game_id", g.ID),
				slog.String("error", err.Error()))
			return false, fmt.Errorf("%s: game %d: %w", op, g.ID, err)
		}
	}

	if err := pending.Clear(ctx); err != nil {
		l.log.Warn("failed to clear local collection after migration",
			slog.String("operation", op),
			slog.String("error", err.Error()))
	}

	l.log.Info("local collection migrated", slog.Int("games", len(games)))

	if err := l.load(ctx); err != nil {
		l.log.Warn("failed to reload after migration",
			slog.String("operation", op),
			slog.String("error", err.Error()))
	}
	return true, nil
}

func (l *Library) Refresh(ctx context.Context) error {
	if !l.authenticated() {
		l.notify()
		return nil
	}

	l.ops.Lock()
	defer l.ops.Unlock()

	return l.load(ctx)
}

func (l *Library) Export(ctx context.Context) (string, error) {
	const op = "services.library.Export"

	if l.currentState() != StateRemoteActive {
		return l.offline().Export(ctx), nil
	}

	games, err := l.remote.GetAll(ctx, l.userID)
	if err != nil {
		l.recordFallback(op, err)
		games = l.Games(ctx)
	}
	if games == nil {
		games = []models.UserGame{}
	}

	doc := models.ExportDocument{
		ExportDate: l.now().UTC(),
		Version:    models.RemoteExportVersion,
		Source:     l.remote.Source(),
		Games:      games,
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return string(data), nil
}

// Import loads an export document. The local store is replaced as a whole;
// the remote store gets every record saved in order and keeps a partial set on failure.
func (l *Library) Import(ctx context.Context, text string) bool {
	const op = "services.library.Import"

	games, err := models.DecodeExport([]byte(text))
	if err != nil {
		l.log.Warn("failed to parse import", slog.String("operation", op), slog.String("error", err.Error()))
		return false
	}
	for _, g := range games {
		if err := l.validateSave(g.Game, g.Status, g.Extra()); err != nil {
			l.log.Warn("rejected import", slog.String("operation", op), slog.String("error", err.Error()))
			return false
		}
	}

	l.ops.Lock()
	defer l.ops.Unlock()

	switch l.currentState() {
	case StateRemoteActive:
		for _, g := range games {
			if _, err := l.remote.Save(ctx, l.userID, g.Game, g.Status, g.Extra()); err != nil {
				l.log.Error("import stopped",
					slog.String("operation", op),
					slog.Int64("game_id", g.ID),
					slog.String("error", err.Error()))
				l.reloadServed(ctx)
				return false
			}
		}
		l.reloadServed(ctx)
		return true
	case StateMigrationPending:
		pending := l.offline()
		ok := pending.Import(ctx, text)
		l.setState(StateMigrationPending, pending.GetAll(ctx))
		return ok
	default:
		ok := l.local.Import(ctx, text)
		l.notify()
		return ok
	}
}

func (l *Library) reloadServed(ctx context.Context) {
	const op = "services.library.reloadServed"

	games, err := l.remote.GetAll(ctx, l.userID)
	if err != nil {
		l.log.Warn("failed to reload games", slog.String("operation", op), slog.String("error", err.Error()))
		return
	}
	l.setState(StateRemoteActive, games)
}

func (l *Library) upsertServed(ug models.UserGame) {
	l.mu.Lock()
	games := make(models.Collection, 0, len(l.games)+1)
	games = append(games, ug)
	for _, g := range l.games {
		if g.ID != ug.ID {
			games = append(games, g)
		}
	}
	games.SortByLastModified()
	l.games = games
	l.mu.Unlock()

	l.notify()
}

func (l *Library) removeServed(gameID int64) {
	l.mu.Lock()
	games := make(models.Collection, 0, len(l.games))
	for _, g := range l.games {
		if g.ID != gameID {
			games = append(games, g)
		}
	}
	l.games = games
	l.mu.Unlock()

	l.notify()
}

func (l *Library) recordFallback(op string, err error) {
	at := l.now().UTC()

	l.mu.Lock()
	l.fallbacks.Count++
	l.fallbacks.LastError = err.Error()
	l.fallbacks.LastAt = &at
	l.mu.Unlock()

	l.log.Warn("remote store failed, using local store",
		slog.String("operation", op),
		slog.String("error", err.Error()))
}

func (l *Library) Status() LibraryStatus {
	l.mu.RLock()
	defer l.mu.RUnlock()

	st := LibraryStatus{
		State:           l.state,
		Authenticated:   l.authenticated(),
		UserID:          l.userID,
		Source:          SourceLocal,
		MigrationNeeded: l.state == StateMigrationPending,
		Subscribed:      l.unsubscribe != nil,
		Fallbacks:       l.fallbacks,
	}
	if l.authenticated() && l.state == StateRemoteActive {
		st.Source = l.remote.Source()
	}
	return st
}

func (l *Library) Close() {
	l.stopFeed()

	l.mu.Lock()
	l.closed = true
	l.watchers = make(map[uuid.UUID]func(models.Collection))
	l.mu.Unlock()
}
