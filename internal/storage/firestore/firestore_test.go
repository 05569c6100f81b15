package firestore

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"gametrack/internal/models"
	"gametrack/internal/storage"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocumentMapping(t *testing.T) {
	released := "2020-09-17"
	rating := 5
	ug := models.UserGame{
		Game: models.Game{
			ID:        1145360,
			Name:      "Hades",
			Released:  &released,
			Platforms: []models.PlatformEntry{{Platform: models.Platform{ID: 7, Name: "Nintendo Switch", Slug: "nintendo-switch"}}},
			Genres:    []models.Genre{{ID: 4, Name: "Action", Slug: "action"}},
		},
		UserID:       "uid-1",
		Status:       models.StatusCompleted,
		Rating:       &rating,
		DateAdded:    time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		LastModified: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
	}

	doc := toDocument("uid-1", ug)

	assert.Equal(t, "uid-1_1145360", docID("uid-1", 1145360))
	assert.Equal(t, "completed", doc.Status)
	assert.Equal(t, int64(7), doc.Platforms[0].Platform.ID)
	assert.Equal(t, ug, doc.toUserGame())
}

// Runs against the Firestore emulator only.
func TestUserGames_Emulator(t *testing.T) {
	if os.Getenv("FIRESTORE_EMULATOR_HOST") == "" {
		t.Skip("FIRESTORE_EMULATOR_HOST is not set")
	}

	ctx := context.Background()
	client, err := firestore.NewClient(ctx, "gametrack-test")
	require.NoError(t, err)
	defer client.Close()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := NewUserGames(client, "userGames-"+uuid.NewString(), log)
	userID := uuid.NewString()

	lists := make(chan []models.UserGame, 8)
	unsubscribe, err := store.Subscribe(ctx, userID, func(games []models.UserGame) { lists <- games })
	require.NoError(t, err)
	defer unsubscribe()

	first, err := store.Save(ctx, userID, models.Game{ID: 1, Name: "Hades"}, models.StatusPlaying, models.Extra{})
	require.NoError(t, err)
	second, err := store.Save(ctx, userID, models.Game{ID: 1, Name: "Hades"}, models.StatusCompleted, models.Extra{})
	require.NoError(t, err)

	assert.Equal(t, first.DateAdded, second.DateAdded)
	assert.False(t, second.LastModified.Before(first.LastModified))

	games, err := store.GetAll(ctx, userID)
	require.NoError(t, err)
	require.Len(t, games, 1)
	assert.Equal(t, models.StatusCompleted, games[0].Status)

	waitForStatus(t, lists, models.StatusCompleted)

	require.NoError(t, store.Remove(ctx, userID, 1))
	require.NoError(t, store.Remove(ctx, userID, 1))

	_, err = store.Get(ctx, userID, 1)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func waitForStatus(t *testing.T, lists <-chan []models.UserGame, want models.GameStatus) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case games := <-lists:
			if len(games) == 1 && games[0].Status == want {
				return
			}
		case <-deadline:
			t.Fatalf("snapshot with status %s never arrived", want)
		}
	}
}
