package services

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"gametrack/internal/models"
	"gametrack/internal/storage"
	"gametrack/internal/storage/backup"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryBackups struct {
	mu      sync.Mutex
	objects map[string]map[string][]byte
}

func newMemoryBackups() *memoryBackups {
	return &memoryBackups{objects: map[string]map[string][]byte{}}
}

func (m *memoryBackups) Put(_ context.Context, owner, name string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.objects[owner] == nil {
		m.objects[owner] = map[string][]byte{}
	}
	m.objects[owner][name] = data
	return nil
}

func (m *memoryBackups) List(_ context.Context, owner string) ([]backup.Object, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	objects := []backup.Object{}
	for name, data := range m.objects[owner] {
		objects = append(objects, backup.Object{Name: name, Size: int64(len(data))})
	}
	sort.Slice(objects, func(i, j int) bool { return objects[i].Name > objects[j].Name })
	return objects, nil
}

func (m *memoryBackups) Get(_ context.Context, owner, name string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[owner][name]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return data, nil
}

func TestBackups_CreateListRestore(t *testing.T) {
	ctx := context.Background()
	store := newMemoryBackups()
	backups := NewBackups(store, discardLogger())
	backups.now = func() time.Time { return time.Date(2025, 2, 14, 9, 0, 0, 0, time.UTC) }

	lib := NewAnonymousLibrary(setupLocal(t), nil, discardLogger())
	_, err := lib.Save(ctx, testGame(1, "Hades"), models.StatusCompleted, models.Extra{})
	require.NoError(t, err)

	device := Owner{DeviceID: "tablet"}
	first, err := backups.Create(ctx, device, lib)
	require.NoError(t, err)
	second, err := backups.Create(ctx, device, lib)
	require.NoError(t, err)

	assert.Equal(t, "gametrack-backup-2025-02-14-1.json", first.Name)
	assert.Equal(t, "gametrack-backup-2025-02-14-2.json", second.Name)

	list, err := backups.List(ctx, device)
	require.NoError(t, err)
	assert.Len(t, list, 2)
	assert.Contains(t, store.objects, "device-tablet")

	others, err := backups.List(ctx, Owner{DeviceID: "phone"})
	require.NoError(t, err)
	assert.Empty(t, others)

	require.NoError(t, lib.Remove(ctx, 1))
	require.NoError(t, backups.Restore(ctx, device, first.Name, lib))
	assert.Len(t, lib.Games(ctx), 1)
}

func TestBackups_RestoreErrors(t *testing.T) {
	ctx := context.Background()
	store := newMemoryBackups()
	backups := NewBackups(store, discardLogger())
	lib := NewAnonymousLibrary(setupLocal(t), nil, discardLogger())

	user := Owner{UserID: "user-1", DeviceID: "tablet"}
	err := backups.Restore(ctx, user, "gametrack-backup-2025-02-14-1.json", lib)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, store.Put(ctx, "user-1", "gametrack-backup-2025-02-14-1.json", []byte("garbage")))
	err = backups.Restore(ctx, user, "gametrack-backup-2025-02-14-1.json", lib)
	assert.ErrorIs(t, err, ErrRestoreFailed)
}
