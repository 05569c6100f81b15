package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"gametrack/internal/storage/backup"
)

var ErrRestoreFailed = errors.New("backup could not be restored")


type BackupStore interface {
	Put(ctx context.Context, owner, name string, data []byte) error
	List(ctx context.Context, owner string) ([]backup.Object, error)
	Get(ctx context.Context, owner, name string) ([]byte, error)
}

type Backups struct {
	store BackupStore
	log   *slog.Logger
	now   func() time.Time
}

func NewBackups(store BackupStore, log *slog.Logger) *Backups {
	return &Backups{store: store, log: log, now: time.Now}
}

// folder keeps anonymous backups apart per device.
func folder(o Owner) string {
	if o.UserID != "" {
		return o.UserID
	}
	return "device-" + o.DeviceID
}

// Create stores the library's current export as the next backup of the day.
func (b *Backups) Create(ctx context.Context, o Owner, lib *Library) (backup.Object, error) {
	const op = "services.backups.Create"

	data, err := lib.Export(ctx)
	if err != nil {
		return backup.Object{}, fmt.Errorf("%s: %w", op, err)
	}

	existing, err := b.store.List(ctx, folder(o))
	if err != nil {
		return backup.Object{}, fmt.Errorf("%s: %w", op, err)
	}

	now := b.now().UTC()
	prefix := backup.DayPrefix(now)
	n := 1
	for _, obj := range existing {
		if strings.HasPrefix(obj.Name, prefix) {
			n++
		}
	}
	name := backup.Name(now, n)

	if err := b.store.Put(ctx, folder(o), name, []byte(data)); err != nil {
		return backup.Object{}, fmt.Errorf("%s: %w", op, err)
	}

	b.log.Info("backup created", slog.String("name", name), slog.String("owner", folder(o)))
	return backup.Object{Name: name, Size: int64(len(data)), LastModified: now}, nil
}

func (b *Backups) List(ctx context.Context, o Owner) ([]backup.Object, error) {
	const op = "services.backups.List"

	objects, err := b.store.List(ctx, folder(o))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return objects, nil
}

func (b *Backups) Restore(ctx context.Context, o Owner, name string, lib *Library) error {
	const op = "services.backups.Restore"

	data, err := b.store.Get(ctx, folder(o), name)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if !lib.Import(ctx, string(data)) {
		return fmt.Errorf("%s: %w", op, ErrRestoreFailed)
	}
	return nil
}
