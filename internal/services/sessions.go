package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/singleflight"
)

var ErrNoDevice = errors.New("anonymous request without a device id")

// Owner identifies the caller. Anonymous callers have only a device.
type Owner struct {
	UserID   string
	DeviceID string
}

func (o Owner) key() (string, error) {
	if o.UserID != "" {
		return "user:" + o.UserID, nil
	}
	if o.DeviceID == "" {
		return "", ErrNoDevice
	}
	return "device:" + o.DeviceID, nil
}

// LocalScopes opens the local collection of one scope.
type LocalScopes func(scope string) LocalStore

func UserScope(userID string) string     { return "user:" + userID }
func DeviceScope(deviceID string) string { return "device:" + deviceID }

type session struct {
	lib      *Library
	lastUsed time.Time
	pins     int
}

// Sessions keeps one Library per signed-in user and one per anonymous device.
type Sessions struct {
	locals      LocalScopes
	remote      RemoteStore
	validate    *validator.Validate
	log         *slog.Logger
	idleTimeout time.Duration
	now         func() time.Time

	group singleflight.Group

	mu       sync.Mutex
	sessions map[string]*session
	closed   bool
}

func NewSessions(locals LocalScopes, remote RemoteStore, log *slog.Logger, idleTimeout time.Duration) *Sessions {
	return &Sessions{
		locals:      locals,
		remote:      remote,
		validate:    validator.New(),
		log:         log,
		idleTimeout: idleTimeout,
		now:         time.Now,
		sessions:    make(map[string]*session),
	}
}

func (s *Sessions) Get(ctx context.Context, owner Owner) (*Library, error) {
	key, err := owner.key()
	if err != nil {
		return nil, err
	}
	if lib, ok := s.lookup(key, 0); ok {
		return lib, nil
	}
	return s.open(ctx, key, owner)
}

// Pin is Get for long-lived readers. The session is not closed as idle until release is called.
func (s *Sessions) Pin(ctx context.Context, owner Owner) (*Library, func(), error) {
	key, err := owner.key()
	if err != nil {
		return nil, nil, err
	}

	lib, ok := s.lookup(key, 1)
	if !ok {
		if _, err := s.open(ctx, key, owner); err != nil {
			return nil, nil, err
		}
		if lib, ok = s.lookup(key, 1); !ok {
			return nil, nil, ErrClosed
		}
	}

	var once sync.Once
	release := func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if sess, ok := s.sessions[key]; ok && sess.lib == lib {
				sess.pins--
				sess.lastUsed = s.now()
			}
		})
	}
	return lib, release, nil
}

func (s *Sessions) lookup(key string, pin int) (*Library, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[key]
	if !ok {
		return nil, false
	}
	sess.lastUsed = s.now()
	sess.pins += pin
	return sess.lib, true
}

func (s *Sessions) newLibrary(owner Owner) *Library {
	if owner.UserID == "" || s.remote == nil {
		scope := DeviceScope(owner.DeviceID)
		if owner.UserID != "" {
			scope = UserScope(owner.UserID)
		}
		return NewAnonymousLibrary(s.locals(scope), s.validate, s.log)
	}

	lib := NewLibrary(owner.UserID, s.locals(UserScope(owner.UserID)), s.remote, s.validate, s.log)
	if owner.DeviceID != "" {
		lib.WithDevice(s.locals(DeviceScope(owner.DeviceID)))
	}
	return lib
}

func (s *Sessions) open(ctx context.Context, key string, owner Owner) (*Library, error) {
	const op = "services.sessions.open"

	v, err, _ := s.group.Do(key, func() (any, error) {
		if lib, ok := s.lookup(key, 0); ok {
			return lib, nil
		}

		s.mu.Lock()
		closed := s.closed
		s.mu.Unlock()
		if closed {
			return nil, ErrClosed
		}

		lib := s.newLibrary(owner)
		if err := lib.Start(context.WithoutCancel(ctx)); err != nil {
			s.log.Warn("initial load failed, serving local collection",
				slog.String("operation", op),
				slog.String("user_id", owner.UserID),
				slog.String("error", err.Error()))
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		if s.closed {
			lib.Close()
			return nil, ErrClosed
		}
		s.sessions[key] = &session{lib: lib, lastUsed: s.now()}
		return lib, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return v.(*Library), nil
}

func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *Sessions) CloseIdle() int {
	cutoff := s.now().Add(-s.idleTimeout)

	s.mu.Lock()
	var idle []*Library
	for id, sess := range s.sessions {
		if sess.pins <= 0 && sess.lastUsed.Before(cutoff) {
			idle = append(idle, sess.lib)
			delete(s.sessions, id)
		}
	}
	s.mu.Unlock()

	for _, lib := range idle {
		lib.Close()
	}
	return len(idle)
}

func (s *Sessions) Run(ctx context.Context, interval time.Duration) {
	const op = "services.sessions.Run"

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.CloseIdle(); n > 0 {
				s.log.Debug("closed idle sessions", slog.String("operation", op), slog.Int("count", n))
			}
		}
	}
}

func (s *Sessions) Close() {
	s.mu.Lock()
	s.closed = true
	libs := make([]*Library, 0, len(s.sessions))
	for _, sess := range s.sessions {
		libs = append(libs, sess.lib)
	}
	s.sessions = make(map[string]*session)
	s.mu.Unlock()

	for _, lib := range libs {
		lib.Close()
	}
}
