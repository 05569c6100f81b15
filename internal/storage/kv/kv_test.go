package kv

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStore(t *testing.T, s Store) {
	ctx := context.Background()

	_, err := s.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrKeyNotFound)

	require.NoError(t, s.Set(ctx, "games", []byte(`[1]`)))
	require.NoError(t, s.Set(ctx, "games", []byte(`[1,2]`)))

	val, err := s.Get(ctx, "games")
	require.NoError(t, err)
	assert.Equal(t, `[1,2]`, string(val))

	require.NoError(t, s.Delete(ctx, "games"))
	require.NoError(t, s.Delete(ctx, "games"))

	_, err = s.Get(ctx, "games")
	assert.ErrorIs(t, err, ErrKeyNotFound)

	assert.ErrorIs(t, s.Set(ctx, "", nil), ErrInvalidKey)
}

func TestFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested")
	s, err := NewFile(dir)
	require.NoError(t, err)

	testStore(t, s)

	_, err = s.Get(context.Background(), "../escape")
	assert.ErrorIs(t, err, ErrInvalidKey)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestFile_EmptyPath(t *testing.T) {
	_, err := NewFile("")
	assert.Error(t, err)
}

func TestRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	s := NewRedis(client, "gametrack:")
	testStore(t, s)

	require.NoError(t, s.Set(context.Background(), "k", []byte("v")))
	assert.True(t, mr.Exists("gametrack:k"))
}
