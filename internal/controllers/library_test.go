package controllers

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"gametrack/internal/middleware"
	"gametrack/internal/models"
	"gametrack/internal/services"
	"gametrack/internal/storage/kv"
	"gametrack/internal/storage/local"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupLibrary(t *testing.T) (http.Handler, *services.Sessions) {
	t.Helper()

	file, err := kv.NewFile(t.TempDir())
	require.NoError(t, err)

	log := testLogger()
	root := local.New(file, log)
	sessions := services.NewSessions(func(scope string) services.LocalStore { return root.For(scope) }, nil, log, time.Minute)
	t.Cleanup(sessions.Close)

	ctrl := NewLibraryController(sessions, log)
	ctrl.now = func() time.Time { return time.Date(2025, 1, 20, 8, 0, 0, 0, time.UTC) }

	r := chi.NewRouter()
	r.Use(middleware.Device)
	r.Route("/api/library", func(r chi.Router) {
		r.Get("/", ctrl.List)
		r.Get("/stats", ctrl.Stats)
		r.Get("/genres", ctrl.Genres)
		r.Get("/dashboard", ctrl.Dashboard)
		r.Get("/export", ctrl.Export)
		r.Post("/import", ctrl.Import)
		r.Get("/status", ctrl.Status)
		r.Post("/migrate", ctrl.Migrate)
		r.Post("/refresh", ctrl.Refresh)
		r.Get("/events", ctrl.Events)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", ctrl.Get)
			r.Put("/", ctrl.Save)
			r.Patch("/", ctrl.Update)
			r.Delete("/", ctrl.Delete)
		})
	})
	return r, sessions
}

const testDevice = "0b7e6a4c-3f0e-4c51-9a34-2f6f3b1d9e10"

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(middleware.DeviceHeader, testDevice)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

const hadesBody = `{"game":{"id":1145360,"name":"Hades","platforms":[{"platform":{"id":4,"name":"PC","slug":"pc"}}],"genres":[{"id":4,"name":"Action","slug":"action"}]},"status":"playing","rating":5}`

func TestLibraryController_CRUD(t *testing.T) {
	router, _ := setupLibrary(t)

	w := do(t, router, http.MethodPut, "/api/library/1145360", hadesBody)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var saved models.UserGame
	require.NoError(t, json.NewDecoder(w.Body).Decode(&saved))
	assert.Equal(t, "Hades", saved.Name)
	assert.Equal(t, models.StatusPlaying, saved.Status)
	assert.False(t, saved.DateAdded.IsZero())

	w = do(t, router, http.MethodGet, "/api/library?platforms=4&search=had", "")
	require.Equal(t, http.StatusOK, w.Code)
	var list []models.UserGame
	require.NoError(t, json.NewDecoder(w.Body).Decode(&list))
	assert.Len(t, list, 1)

	w = do(t, router, http.MethodGet, "/api/library?platforms=187", "")
	require.NoError(t, json.NewDecoder(w.Body).Decode(&list))
	assert.Empty(t, list)

	w = do(t, router, http.MethodPatch, "/api/library/1145360", `{"status":"completed","playTime":42.5}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var updated models.UserGame
	require.NoError(t, json.NewDecoder(w.Body).Decode(&updated))
	assert.Equal(t, models.StatusCompleted, updated.Status)
	assert.Equal(t, 5, *updated.Rating)
	assert.Equal(t, 42.5, *updated.PlayTime)
	assert.Equal(t, saved.DateAdded, updated.DateAdded)

	w = do(t, router, http.MethodGet, "/api/library/stats", "")
	var stats models.Stats
	require.NoError(t, json.NewDecoder(w.Body).Decode(&stats))
	assert.Equal(t, models.Stats{Total: 1, Completed: 1, AverageRating: 5, TotalPlayTime: 42.5}, stats)

	w = do(t, router, http.MethodGet, "/api/library/genres", "")
	assert.JSONEq(t, `[{"id":4,"name":"Action","slug":"action"}]`, w.Body.String())

	w = do(t, router, http.MethodDelete, "/api/library/1145360", "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = do(t, router, http.MethodGet, "/api/library/1145360", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, router, http.MethodPatch, "/api/library/1145360", `{"status":"completed"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestLibraryController_BadRequests(t *testing.T) {
	router, _ := setupLibrary(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
	}{
		{name: "rating out of range", method: http.MethodPut, path: "/api/library/1", body: `{"game":{"id":1,"name":"A"},"status":"playing","rating":9}`},
		{name: "negative play time", method: http.MethodPut, path: "/api/library/1", body: `{"game":{"id":1,"name":"A"},"status":"playing","playTime":-3}`},
		{name: "unknown status", method: http.MethodPut, path: "/api/library/1", body: `{"game":{"id":1,"name":"A"},"status":"finished"}`},
		{name: "id mismatch", method: http.MethodPut, path: "/api/library/1", body: `{"game":{"id":2,"name":"A"},"status":"playing"}`},
		{name: "broken json", method: http.MethodPut, path: "/api/library/1", body: `{"game":`},
		{name: "invalid id", method: http.MethodDelete, path: "/api/library/zero", body: ""},
		{name: "patch status", method: http.MethodPatch, path: "/api/library/1", body: `{"status":"dropped"}`},
		{name: "list status", method: http.MethodGet, path: "/api/library?status=dropped", body: ""},
		{name: "list genres", method: http.MethodGet, path: "/api/library?genres=x", body: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, router, tt.method, tt.path, tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
		})
	}
}

func TestLibraryController_ExportImport(t *testing.T) {
	router, _ := setupLibrary(t)

	require.Equal(t, http.StatusOK, do(t, router, http.MethodPut, "/api/library/1145360", hadesBody).Code)

	w := do(t, router, http.MethodGet, "/api/library/export", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `attachment; filename="gametrack-export-2025-01-20.json"`, w.Header().Get("Content-Disposition"))
	exported := w.Body.String()

	var doc models.ExportDocument
	require.NoError(t, json.Unmarshal([]byte(exported), &doc))
	assert.Equal(t, models.LocalExportVersion, doc.Version)
	require.Len(t, doc.Games, 1)

	w = do(t, router, http.MethodPost, "/api/library/import", `{"games":[{"id":7,"name":"Celeste","status":"wishlist"}]}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"imported":true}`, w.Body.String())

	w = do(t, router, http.MethodGet, "/api/library", "")
	var list []models.UserGame
	require.NoError(t, json.NewDecoder(w.Body).Decode(&list))
	require.Len(t, list, 1)
	assert.Equal(t, int64(7), list[0].ID)

	w = do(t, router, http.MethodPost, "/api/library/import", exported)
	require.Equal(t, http.StatusOK, w.Code)
	w = do(t, router, http.MethodGet, "/api/library/1145360", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(t, router, http.MethodPost, "/api/library/import", `{"nope":true}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.JSONEq(t, `{"imported":false}`, w.Body.String())

	w = do(t, router, http.MethodPost, "/api/library/import", `{"games":[{"id":7,"name":"Celeste","status":"backlog"},{"id":7,"name":"Celeste","status":"completed"}]}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestLibraryController_DevicesAreSeparate(t *testing.T) {
	router, _ := setupLibrary(t)

	require.Equal(t, http.StatusOK, do(t, router, http.MethodPut, "/api/library/1145360", hadesBody).Code)

	req := httptest.NewRequest(http.MethodGet, "/api/library", nil)
	req.Header.Set(middleware.DeviceHeader, "5d1c3b7e-8a44-4f1e-b2a6-0c9d7e3f4a21")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestLibraryController_RemoteOutage(t *testing.T) {
	ctrl := NewLibraryController(nil, testLogger())
	w := httptest.NewRecorder()

	ctrl.fail(w, "test", ErrUpdate, fmt.Errorf("update: %w: %w", services.ErrRemoteUnavailable, errors.New("connection refused")))

	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestLibraryController_StatusAndMigrate(t *testing.T) {
	router, _ := setupLibrary(t)

	w := do(t, router, http.MethodGet, "/api/library/status", "")
	require.Equal(t, http.StatusOK, w.Code)
	var st services.LibraryStatus
	require.NoError(t, json.NewDecoder(w.Body).Decode(&st))
	assert.Equal(t, services.StateUnauthenticated, st.State)
	assert.Equal(t, services.SourceLocal, st.Source)
	assert.False(t, st.MigrationNeeded)

	w = do(t, router, http.MethodPost, "/api/library/migrate", "")
	assert.Equal(t, http.StatusConflict, w.Code)

	w = do(t, router, http.MethodPost, "/api/library/refresh", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestLibraryController_Dashboard(t *testing.T) {
	router, _ := setupLibrary(t)
	require.Equal(t, http.StatusOK, do(t, router, http.MethodPut, "/api/library/1145360", hadesBody).Code)

	w := do(t, router, http.MethodGet, "/api/library/dashboard?status=all&platforms=4", "")
	require.Equal(t, http.StatusOK, w.Code)

	var d services.Dashboard
	require.NoError(t, json.NewDecoder(w.Body).Decode(&d))
	assert.Equal(t, 1, d.Stats.Total)
	assert.Equal(t, []services.PlatformCount{{ID: 4, Name: "Steam", Count: 1}}, d.Platforms)
	assert.Len(t, d.Timeline, 6)
}

func TestLibraryController_Events(t *testing.T) {
	router, _ := setupLibrary(t)
	srv := httptest.NewServer(router)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/library/events", nil)
	require.NoError(t, err)
	req.Header.Set(middleware.DeviceHeader, testDevice)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	events := make(chan string, 4)
	go func() {
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			if data, ok := strings.CutPrefix(scanner.Text(), "data: "); ok {
				events <- data
			}
		}
		close(events)
	}()

	next := func() string {
		select {
		case data := <-events:
			return data
		case <-time.After(5 * time.Second):
			t.Fatal("no event received")
			return ""
		}
	}

	assert.Equal(t, "[]", next())

	putReq, err := http.NewRequest(http.MethodPut, srv.URL+"/api/library/1145360", strings.NewReader(hadesBody))
	require.NoError(t, err)
	putReq.Header.Set(middleware.DeviceHeader, testDevice)
	putResp, err := http.DefaultClient.Do(putReq)
	require.NoError(t, err)
	putResp.Body.Close()

	var games []models.UserGame
	require.NoError(t, json.Unmarshal([]byte(next()), &games))
	require.Len(t, games, 1)
	assert.Equal(t, "Hades", games[0].Name)
}

func TestLibraryController_RequiresDevice(t *testing.T) {
	file, err := kv.NewFile(t.TempDir())
	require.NoError(t, err)
	log := testLogger()
	root := local.New(file, log)
	sessions := services.NewSessions(func(scope string) services.LocalStore { return root.For(scope) }, nil, log, time.Minute)
	t.Cleanup(sessions.Close)
	ctrl := NewLibraryController(sessions, log)

	w := httptest.NewRecorder()
	ctrl.List(w, httptest.NewRequest(http.MethodGet, "/api/library", nil))

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
