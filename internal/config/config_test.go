package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDatabase_GetDSN(t *testing.T) {
	db := Database{Host: "db", Port: 3307, UsernameDB: "track", Password: "secret", DBName: "games"}

	dsn := db.GetDSN()

	assert.Contains(t, dsn, "track:secret@tcp(db:3307)/games?")
	assert.Contains(t, dsn, "parseTime=true")
	assert.Contains(t, dsn, "multiStatements=true")
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
env: local
storage_backend: pocketbase
local:
  backend: file
  path: ./data
pocketbase:
  url: http://pb:8090
rawg:
  api_key: key
session:
  idle_timeout: 5m
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, BackendPocketBase, cfg.StorageBackend)
	assert.Equal(t, "http://pb:8090", cfg.PocketBase.URL)
	assert.Equal(t, "https://api.rawg.io/api", cfg.RAWG.BaseURL)
	assert.Equal(t, 5*time.Minute, cfg.Session.IdleTimeout)
	assert.Equal(t, "userGames", cfg.Firestore.Collection)
}

func TestLoad_Invalid(t *testing.T) {
	dir := t.TempDir()

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(dir, "nope.yaml"))
		assert.Error(t, err)
	})

	t.Run("unknown backend", func(t *testing.T) {
		path := filepath.Join(dir, "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("env: local\nstorage_backend: mongo\nrawg:\n  api_key: k\n"), 0o644))

		_, err := Load(path)
		assert.ErrorContains(t, err, "unknown storage_backend")
	})

	t.Run("mariadb needs secret", func(t *testing.T) {
		path := filepath.Join(dir, "nosecret.yaml")
		require.NoError(t, os.WriteFile(path, []byte("env: local\nstorage_backend: mariadb\nrawg:\n  api_key: k\n"), 0o644))

		_, err := Load(path)
		assert.ErrorContains(t, err, "app_secret")
	})
}
