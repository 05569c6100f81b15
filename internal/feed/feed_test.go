package feed

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitSignal(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case _, ok := <-ch:
		require.True(t, ok, "channel closed")
	case <-time.After(2 * time.Second):
		t.Fatal("no signal received")
	}
}

func assertNoSignal(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
		t.Fatal("unexpected signal")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestMemory(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	alice, stopAlice, err := m.Subscribe(ctx, "alice")
	require.NoError(t, err)
	bob, stopBob, err := m.Subscribe(ctx, "bob")
	require.NoError(t, err)
	defer stopBob()

	for i := 0; i < 5; i++ {
		require.NoError(t, m.Publish(ctx, "alice"))
	}

	waitSignal(t, alice)
	assertNoSignal(t, alice)
	assertNoSignal(t, bob)

	stopAlice()
	stopAlice()
	_, ok := <-alice
	assert.False(t, ok)
	require.NoError(t, m.Publish(ctx, "alice"))
}

func TestRedis(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	r := NewRedis(client, "gametrack:user_games:")

	ch, unsubscribe, err := r.Subscribe(ctx, "alice")
	require.NoError(t, err)

	require.NoError(t, r.Publish(ctx, "alice"))
	waitSignal(t, ch)

	require.NoError(t, r.Publish(ctx, "bob"))
	assertNoSignal(t, ch)

	unsubscribe()
	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("channel not closed after unsubscribe")
	}
}
