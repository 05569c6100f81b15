// Package feed broadcasts "collection changed" signals per user.
// A signal carries no payload; subscribers re-read the list they care about.
package feed

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

type Feed interface {
	Publish(ctx context.Context, userID string) error
	// Subscribe returns a channel that receives at least one value after every
	// burst of publishes for the user. Bursts are coalesced.
	Subscribe(ctx context.Context, userID string) (<-chan struct{}, func(), error)
}

// Memory is an in-process hub, enough when a single server owns the database.
type Memory struct {
	mu   sync.Mutex
	subs map[string]map[uuid.UUID]chan struct{}
}

func NewMemory() *Memory {
	return &Memory{subs: make(map[string]map[uuid.UUID]chan struct{})}
}

func (m *Memory) Publish(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, ch := range m.subs[userID] {
		notify(ch)
	}
	return nil
}

func (m *Memory) Subscribe(_ context.Context, userID string) (<-chan struct{}, func(), error) {
	id := uuid.New()
	ch := make(chan struct{}, 1)

	m.mu.Lock()
	if m.subs[userID] == nil {
		m.subs[userID] = make(map[uuid.UUID]chan struct{})
	}
	m.subs[userID][id] = ch
	m.mu.Unlock()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			delete(m.subs[userID], id)
			if len(m.subs[userID]) == 0 {
				delete(m.subs, userID)
			}
			close(ch)
		})
	}

	return ch, unsubscribe, nil
}

func notify(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
