package services

import (
	"fmt"
	"math"
	"strings"
	"time"

	"gametrack/internal/models"
)

// HoursPerBacklogGame is the flat estimate used for the backlog time.
const HoursPerBacklogGame = 20

const timelineMonths = 6

type DashboardFilter struct {
	Status    models.GameStatus
	Platforms []int64
}

type StatusCount struct {
	Status models.GameStatus `json:"status"`
	Count  int               `json:"count"`
}

type PlatformCount struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Count int    `json:"count"`
}

type ExtraStats struct {
	AverageRating   float64 `json:"averageRating"`
	TotalPlayTime   float64 `json:"totalPlayTime"`
	RatedGamesCount int     `json:"ratedGamesCount"`
	GamesWithNotes  int     `json:"gamesWithNotes"`
}

type BacklogEstimate struct {
	Games int    `json:"games"`
	Hours int    `json:"hours"`
	Label string `json:"label"`
}

type TimelinePoint struct {
	Month     string `json:"month"`
	Total     int    `json:"total"`
	Backlog   int    `json:"backlog"`
	Playing   int    `json:"playing"`
	Completed int    `json:"completed"`
}

type Dashboard struct {
	Stats     models.Stats    `json:"stats"`
	Extra     ExtraStats      `json:"extra"`
	Statuses  []StatusCount   `json:"statuses"`
	Platforms []PlatformCount `json:"platforms"`
	Backlog   BacklogEstimate `json:"backlog"`
	Timeline  []TimelinePoint `json:"timeline"`
}

// BuildDashboard prepares the chart data. The filter applies to the status and
// platform charts only; the other figures cover the whole collection.
func BuildDashboard(games models.Collection, filter DashboardFilter, now time.Time) Dashboard {
	filtered := games
	if filter.Status != "" {
		filtered = filtered.FilterByStatus(filter.Status)
	}
	filtered = filtered.FilterByPlatforms(filter.Platforms)

	stats := games.Stats()

	return Dashboard{
		Stats: stats,
		Extra: ExtraStats{
			AverageRating:   stats.AverageRating,
			TotalPlayTime:   stats.TotalPlayTime,
			RatedGamesCount: countWhere(games, func(g models.UserGame) bool { return g.Rating != nil && *g.Rating > 0 }),
			GamesWithNotes:  countWhere(games, func(g models.UserGame) bool { return g.Notes != nil && strings.TrimSpace(*g.Notes) != "" }),
		},
		Statuses:  StatusBreakdown(filtered),
		Platforms: PlatformCounts(filtered),
		Backlog:   EstimateBacklog(stats.Backlog),
		Timeline:  Timeline(games, now),
	}
}

func countWhere(games models.Collection, keep func(models.UserGame) bool) int {
	n := 0
	for _, g := range games {
		if keep(g) {
			n++
		}
	}
	return n
}

func StatusBreakdown(games models.Collection) []StatusCount {
	statuses := []models.GameStatus{models.StatusWishlist, models.StatusBacklog, models.StatusPlaying, models.StatusCompleted}

	counts := make([]StatusCount, 0, len(statuses))
	for _, st := range statuses {
		counts = append(counts, StatusCount{Status: st, Count: len(games.FilterByStatus(st))})
	}
	return counts
}

func PlatformCounts(games models.Collection) []PlatformCount {
	counts := make([]PlatformCount, 0, len(models.Platforms))
	for _, p := range models.Platforms {
		if n := len(games.FilterByPlatform(p.ID)); n > 0 {
			counts = append(counts, PlatformCount{ID: p.ID, Name: p.Name, Count: n})
		}
	}
	return counts
}

func EstimateBacklog(backlogGames int) BacklogEstimate {
	hours := backlogGames * HoursPerBacklogGame

	var label string
	switch {
	case hours < 24:
		label = fmt.Sprintf("%d hours", hours)
	case hours < 720:
		label = fmt.Sprintf("%d days", int(math.Round(float64(hours)/24)))
	default:
		label = fmt.Sprintf("%d months", int(math.Round(float64(hours)/720)))
	}

	return BacklogEstimate{Games: backlogGames, Hours: hours, Label: label}
}

// Timeline counts, for each of the last six months, the games added up to the
// end of that month, split by their current status.
func Timeline(games models.Collection, now time.Time) []TimelinePoint {
	now = now.UTC()
	current := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)

	points := make([]TimelinePoint, 0, timelineMonths)
	for i := timelineMonths - 1; i >= 0; i-- {
		start := current.AddDate(0, -i, 0)
		end := start.AddDate(0, 1, 0)

		point := TimelinePoint{Month: start.Format("2006-01")}
		for _, g := range games {
			if !g.DateAdded.Before(end) {
				continue
			}
			point.Total++
			switch g.Status {
			case models.StatusBacklog:
				point.Backlog++
			case models.StatusPlaying:
				point.Playing++
			case models.StatusCompleted:
				point.Completed++
			}
		}
		points = append(points, point)
	}
	return points
}
