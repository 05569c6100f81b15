package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"gametrack/internal/auth"
	"gametrack/internal/clients/firebase"
	"gametrack/internal/clients/pocketbase"
	"gametrack/internal/config"
	"gametrack/internal/feed"
	"gametrack/internal/middleware"
	"gametrack/internal/services"
	"gametrack/internal/storage/backup"
	fsstore "gametrack/internal/storage/firestore"
	"gametrack/internal/storage/kv"
	"gametrack/internal/storage/local"
	"gametrack/internal/storage/mariadb"
	pbstore "gametrack/internal/storage/pocketbase"

	"github.com/redis/go-redis/v9"
)

// backend is the remote store together with the verifier for its tokens.
type backend struct {
	remote   services.RemoteStore
	verifier middleware.TokenVerifier
	closers  []func() error
}

func (b *backend) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		errs = append(errs, b.closers[i]())
	}
	return errors.Join(errs...)
}

func newRedisClient(cfg config.Redis) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

func openBackend(ctx context.Context, cfg *config.Config, log *slog.Logger) (*backend, error) {
	const op = "main.openBackend"

	b := &backend{}

	switch cfg.StorageBackend {
	case config.BackendMariaDB:
		storage, err := mariadb.New(cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		b.closers = append(b.closers, storage.Close)

		changed, err := storage.Migrate()
		if err != nil {
			_ = b.Close()
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		log.Info("schema checked", slog.Bool("migrated", changed))

		var f feed.Feed = feed.NewMemory()
		if cfg.Database.Feed == config.FeedRedis {
			client := newRedisClient(cfg.Redis)
			b.closers = append(b.closers, client.Close)
			f = feed.NewRedis(client, cfg.Redis.ChannelPrefix)
		}

		verifier, err := auth.New(cfg.Auth.AppSecret, cfg.Auth.Issuer, cfg.Auth.TokenTTL)
		if err != nil {
			_ = b.Close()
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		b.remote = mariadb.NewUserGames(storage, f, log)
		b.verifier = verifier

	case config.BackendPocketBase:
		client := newPocketBase(cfg, log)
		b.remote = pbstore.NewUserGames(client, log)
		b.verifier = client

	case config.BackendFirestore:
		client, err := firebase.New(ctx, cfg.Firestore.ProjectID, cfg.Firestore.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		b.closers = append(b.closers, client.Close)
		b.remote = fsstore.NewUserGames(client.Firestore, cfg.Firestore.Collection, log)
		b.verifier = client

	default:
		return nil, fmt.Errorf("%s: unknown storage backend %q", op, cfg.StorageBackend)
	}

	return b, nil
}

func newPocketBase(cfg *config.Config, log *slog.Logger) *pocketbase.Client {
	return pocketbase.New(log, cfg.PocketBase.URL, cfg.PocketBase.Timeout, cfg.PocketBase.AdminEmail, cfg.PocketBase.AdminPassword)
}

// openLocal builds the root local store. Sessions reach their scopes through For.
func openLocal(cfg *config.Config, log *slog.Logger) (*local.Store, func() error, error) {
	const op = "main.openLocal"

	switch cfg.Local.Backend {
	case config.LocalRedis:
		client := newRedisClient(cfg.Redis)
		return local.New(kv.NewRedis(client, "gametrack:local:"), log), client.Close, nil
	default:
		file, err := kv.NewFile(cfg.Local.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %w", op, err)
		}
		return local.New(file, log), func() error { return nil }, nil
	}
}

// openBackups returns nil when backups are disabled.
func openBackups(ctx context.Context, cfg config.Backup, log *slog.Logger) (*services.Backups, error) {
	const op = "main.openBackups"

	if !cfg.Enabled {
		return nil, nil
	}

	store, err := backup.NewMinio(ctx, cfg.Endpoint, cfg.AccessKey, cfg.SecretKey, cfg.Bucket, cfg.UseSSL)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return services.NewBackups(store, log), nil
}
