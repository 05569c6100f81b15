package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"gametrack/internal/models"
	"gametrack/internal/services"
	"gametrack/internal/storage"
)

const maxImportSize = 10 << 20

type SessionProvider interface {
	Get(ctx context.Context, owner services.Owner) (*services.Library, error)
	Pin(ctx context.Context, owner services.Owner) (*services.Library, func(), error)
}

type SaveGameRequest struct {
	Game     models.Game       `json:"game"`
	Status   models.GameStatus `json:"status"`
	Rating   *int              `json:"rating,omitempty"`
	Notes    *string           `json:"notes,omitempty"`
	PlayTime *float64          `json:"playTime,omitempty"`
}

type ImportResponse struct {
	Imported bool `json:"imported"`
}

type MigrateResponse struct {
	Migrated bool                   `json:"migrated"`
	Status   services.LibraryStatus `json:"status"`
}

type LibraryController struct {
	sessions SessionProvider
	log      *slog.Logger
	now      func() time.Time
}

func NewLibraryController(sessions SessionProvider, log *slog.Logger) *LibraryController {
	return &LibraryController{sessions: sessions, log: log, now: time.Now}
}

func (c *LibraryController) library(w http.ResponseWriter, r *http.Request, op string) (*services.Library, bool) {
	lib, err := c.sessions.Get(r.Context(), owner(r))
	if err != nil {
		c.log.Error(ErrSession.Error(), slog.String("operation", op), slog.String("error", err.Error()))
		http.Error(w, ErrSession.Error(), sessionStatus(err))
		return nil, false
	}
	return lib, true
}

func (c *LibraryController) fail(w http.ResponseWriter, op string, public, err error) {
	switch {
	case errors.Is(err, services.ErrValidation):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, storage.ErrNotFound):
		http.Error(w, ErrNotFound.Error(), http.StatusNotFound)
	case errors.Is(err, services.ErrRemoteUnavailable):
		c.log.Error(public.Error(), slog.String("operation", op), slog.String("error", err.Error()))
		http.Error(w, public.Error(), http.StatusBadGateway)
	default:
		c.log.Error(public.Error(), slog.String("operation", op), slog.String("error", err.Error()))
		http.Error(w, public.Error(), http.StatusInternalServerError)
	}
}

func (c *LibraryController) List(w http.ResponseWriter, r *http.Request) {
	const op = "controllers.library.List"

	query := r.URL.Query()
	platforms, err := parseIDs(query.Get("platforms"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	genres, err := parseIDs(query.Get("genres"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	status := models.GameStatus(query.Get("status"))
	if status != "" && !status.Valid() {
		http.Error(w, fmt.Sprintf("%s: status", ErrInvalidQuery), http.StatusBadRequest)
		return
	}

	lib, ok := c.library(w, r, op)
	if !ok {
		return
	}

	games := lib.Games(r.Context())
	if status != "" {
		games = games.FilterByStatus(status)
	}
	games = games.FilterByPlatforms(platforms).FilterByGenres(genres).Search(query.Get("search"))

	respond(w, c.log, http.StatusOK, games)
}

func (c *LibraryController) Get(w http.ResponseWriter, r *http.Request) {
	const op = "controllers.library.Get"

	id, err := idParam(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	lib, ok := c.library(w, r, op)
	if !ok {
		return
	}

	game, err := lib.Get(r.Context(), id)
	if err != nil {
		c.fail(w, op, ErrGetGame, err)
		return
	}

	respond(w, c.log, http.StatusOK, game)
}

func (c *LibraryController) Save(w http.ResponseWriter, r *http.Request) {
	const op = "controllers.library.Save"

	id, err := idParam(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var req SaveGameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, ErrBadRequest.Error(), http.StatusBadRequest)
		return
	}
	if req.Game.ID == 0 {
		req.Game.ID = id
	}
	if req.Game.ID != id {
		http.Error(w, fmt.Sprintf("%s: game id does not match the path", ErrBadRequest), http.StatusBadRequest)
		return
	}

	lib, ok := c.library(w, r, op)
	if !ok {
		return
	}

	extra := models.Extra{Rating: req.Rating, Notes: req.Notes, PlayTime: req.PlayTime}
	saved, err := lib.Save(r.Context(), req.Game, req.Status, extra)
	if err != nil {
		c.fail(w, op, ErrSave, err)
		return
	}

	respond(w, c.log, http.StatusOK, saved)
}

func (c *LibraryController) Update(w http.ResponseWriter, r *http.Request) {
	const op = "controllers.library.Update"

	id, err := idParam(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var patch models.Patch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		http.Error(w, ErrBadRequest.Error(), http.StatusBadRequest)
		return
	}

	lib, ok := c.library(w, r, op)
	if !ok {
		return
	}

	updated, err := lib.UpdateFields(r.Context(), id, patch)
	if err != nil {
		c.fail(w, op, ErrUpdate, err)
		return
	}

	respond(w, c.log, http.StatusOK, updated)
}

func (c *LibraryController) Delete(w http.ResponseWriter, r *http.Request) {
	const op = "controllers.library.Delete"

	id, err := idParam(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	lib, ok := c.library(w, r, op)
	if !ok {
		return
	}

	if err := lib.Remove(r.Context(), id); err != nil {
		c.fail(w, op, ErrDelete, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (c *LibraryController) Stats(w http.ResponseWriter, r *http.Request) {
	lib, ok := c.library(w, r, "controllers.library.Stats")
	if !ok {
		return
	}
	respond(w, c.log, http.StatusOK, lib.Stats(r.Context()))
}

func (c *LibraryController) Genres(w http.ResponseWriter, r *http.Request) {
	lib, ok := c.library(w, r, "controllers.library.Genres")
	if !ok {
		return
	}
	respond(w, c.log, http.StatusOK, lib.Games(r.Context()).Genres())
}

func (c *LibraryController) Dashboard(w http.ResponseWriter, r *http.Request) {
	const op = "controllers.library.Dashboard"

	platforms, err := parseIDs(r.URL.Query().Get("platforms"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	status := models.GameStatus(r.URL.Query().Get("status"))
	if status == "all" {
		status = ""
	}
	if status != "" && !status.Valid() {
		http.Error(w, fmt.Sprintf("%s: status", ErrInvalidQuery), http.StatusBadRequest)
		return
	}

	lib, ok := c.library(w, r, op)
	if !ok {
		return
	}

	dashboard := services.BuildDashboard(lib.Games(r.Context()), services.DashboardFilter{
		Status:    status,
		Platforms: platforms,
	}, c.now())

	respond(w, c.log, http.StatusOK, dashboard)
}

func (c *LibraryController) Export(w http.ResponseWriter, r *http.Request) {
	const op = "controllers.library.Export"

	lib, ok := c.library(w, r, op)
	if !ok {
		return
	}

	data, err := lib.Export(r.Context())
	if err != nil {
		c.fail(w, op, ErrExport, err)
		return
	}

	filename := fmt.Sprintf("gametrack-export-%s.json", c.now().UTC().Format(time.DateOnly))
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	if _, err := io.WriteString(w, data); err != nil {
		c.log.Error(ErrExport.Error(), slog.String("operation", op), slog.String("error", err.Error()))
	}
}

func (c *LibraryController) Import(w http.ResponseWriter, r *http.Request) {
	const op = "controllers.library.Import"

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxImportSize))
	if err != nil {
		http.Error(w, ErrBadRequest.Error(), http.StatusBadRequest)
		return
	}

	lib, ok := c.library(w, r, op)
	if !ok {
		return
	}

	if !lib.Import(r.Context(), string(body)) {
		c.log.Warn(ErrImport.Error(), slog.String("operation", op))
		respond(w, c.log, http.StatusUnprocessableEntity, ImportResponse{Imported: false})
		return
	}

	respond(w, c.log, http.StatusOK, ImportResponse{Imported: true})
}

func (c *LibraryController) Status(w http.ResponseWriter, r *http.Request) {
	lib, ok := c.library(w, r, "controllers.library.Status")
	if !ok {
		return
	}
	respond(w, c.log, http.StatusOK, lib.Status())
}

func (c *LibraryController) Migrate(w http.ResponseWriter, r *http.Request) {
	const op = "controllers.library.Migrate"

	lib, ok := c.library(w, r, op)
	if !ok {
		return
	}

	migrated, err := lib.Migrate(r.Context())
	if errors.Is(err, services.ErrNoMigration) {
		http.Error(w, ErrNoMigration.Error(), http.StatusConflict)
		return
	}
	if err != nil {
		c.log.Error(ErrMigration.Error(), slog.String("operation", op), slog.String("error", err.Error()))
		respond(w, c.log, http.StatusBadGateway, MigrateResponse{Migrated: false, Status: lib.Status()})
		return
	}

	respond(w, c.log, http.StatusOK, MigrateResponse{Migrated: migrated, Status: lib.Status()})
}

func (c *LibraryController) Refresh(w http.ResponseWriter, r *http.Request) {
	const op = "controllers.library.Refresh"

	lib, ok := c.library(w, r, op)
	if !ok {
		return
	}

	if err := lib.Refresh(r.Context()); err != nil {
		c.log.Warn(ErrRefresh.Error(), slog.String("operation", op), slog.String("error", err.Error()))
		respond(w, c.log, http.StatusBadGateway, lib.Status())
		return
	}

	respond(w, c.log, http.StatusOK, lib.Status())
}

const heartbeatInterval = 25 * time.Second

// Events streams the full list as server-sent events, once on connect and after every change.
func (c *LibraryController) Events(w http.ResponseWriter, r *http.Request) {
	const op = "controllers.library.Events"

	rc := http.NewResponseController(w)
	lib, release, err := c.sessions.Pin(r.Context(), owner(r))
	if err != nil {
		c.log.Error(ErrSession.Error(), slog.String("operation", op), slog.String("error", err.Error()))
		http.Error(w, ErrSession.Error(), sessionStatus(err))
		return
	}
	defer release()

	changed := make(chan struct{}, 1)
	stop := lib.Watch(func(models.Collection) {
		select {
		case changed <- struct{}{}:
		default:
		}
	})
	defer stop()

	// The stream outlives the server write timeout.
	if err := rc.SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		c.log.Warn("failed to clear write deadline", slog.String("operation", op), slog.String("error", err.Error()))
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	send := func() bool {
		data, err := json.Marshal(lib.Games(r.Context()))
		if err != nil {
			c.log.Error(ErrEncoding.Error(), slog.String("operation", op), slog.String("error", err.Error()))
			return false
		}
		if _, err := fmt.Fprintf(w, "event: games\ndata: %s\n\n", data); err != nil {
			return false
		}
		return rc.Flush() == nil
	}

	if !send() {
		c.log.Warn(ErrStreaming.Error(), slog.String("operation", op))
		return
	}

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-changed:
			if !send() {
				return
			}
		case <-heartbeat.C:
			if _, err := io.WriteString(w, ": ping\n\n"); err != nil || rc.Flush() != nil {
				return
			}
		}
	}
}
