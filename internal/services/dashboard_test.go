package services

import (
	"testing"
	"time"

	"gametrack/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func onPlatforms(id int64, status models.GameStatus, added time.Time, platformIDs ...int64) models.UserGame {
	ug := models.UserGame{
		Game:         models.Game{ID: id, Name: "Game"},
		Status:       status,
		DateAdded:    added,
		LastModified: added,
	}
	for _, pid := range platformIDs {
		ug.Platforms = append(ug.Platforms, models.PlatformEntry{Platform: models.Platform{ID: pid}})
	}
	return ug
}

func TestEstimateBacklog(t *testing.T) {
	tests := []struct {
		games int
		want  string
	}{
		{games: 0, want: "0 hours"},
		{games: 1, want: "20 hours"},
		{games: 2, want: "2 days"},
		{games: 5, want: "4 days"},
		{games: 36, want: "1 months"},
		{games: 90, want: "3 months"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			got := EstimateBacklog(tt.games)
			assert.Equal(t, tt.want, got.Label)
			assert.Equal(t, tt.games*HoursPerBacklogGame, got.Hours)
		})
	}
}

func TestBuildDashboard(t *testing.T) {
	now := time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)
	notes := "  "
	realNotes := "great"
	rating := 4

	games := models.Collection{
		onPlatforms(1, models.StatusBacklog, time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC), 4, 7),
		onPlatforms(2, models.StatusCompleted, time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), 187),
		onPlatforms(3, models.StatusPlaying, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), 4, 9999),
		onPlatforms(4, models.StatusWishlist, time.Date(2023, 12, 1, 0, 0, 0, 0, time.UTC)),
	}
	games[1].Rating = &rating
	games[1].Notes = &realNotes
	games[2].Notes = &notes

	t.Run("unfiltered", func(t *testing.T) {
		d := BuildDashboard(games, DashboardFilter{}, now)

		assert.Equal(t, []StatusCount{
			{Status: models.StatusWishlist, Count: 1},
			{Status: models.StatusBacklog, Count: 1},
			{Status: models.StatusPlaying, Count: 1},
			{Status: models.StatusCompleted, Count: 1},
		}, d.Statuses)
		assert.Equal(t, []PlatformCount{
			{ID: 4, Name: "Steam", Count: 2},
			{ID: 187, Name: "PlayStation 5", Count: 1},
			{ID: 7, Name: "Nintendo Switch", Count: 1},
		}, d.Platforms)
		assert.Equal(t, 1, d.Extra.RatedGamesCount)
		assert.Equal(t, 1, d.Extra.GamesWithNotes)
		assert.Equal(t, "20 hours", d.Backlog.Label)

		require.Len(t, d.Timeline, 6)
		assert.Equal(t, "2024-01", d.Timeline[0].Month)
		assert.Equal(t, 2, d.Timeline[0].Total)
		assert.Equal(t, "2024-06", d.Timeline[5].Month)
		assert.Equal(t, 4, d.Timeline[5].Total)
		assert.Equal(t, 1, d.Timeline[5].Completed)
	})

	t.Run("filtered by status and platform", func(t *testing.T) {
		d := BuildDashboard(games, DashboardFilter{Status: models.StatusPlaying, Platforms: []int64{4}}, now)

		assert.Equal(t, 1, d.Statuses[2].Count)
		assert.Zero(t, d.Statuses[1].Count)
		assert.Equal(t, []PlatformCount{{ID: 4, Name: "Steam", Count: 1}}, d.Platforms)
		assert.Equal(t, 4, d.Stats.Total)
	})
}
