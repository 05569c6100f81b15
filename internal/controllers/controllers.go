package controllers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"gametrack/internal/middleware"
	"gametrack/internal/services"

	"github.com/go-chi/chi/v5"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrBadRequest   = errors.New("bad request")
	ErrInvalidID    = errors.New("invalid id")
	ErrInvalidQuery = errors.New("invalid query parameter")
	ErrGetGame      = errors.New("failed to get game")
	ErrCatalog      = errors.New("catalog request failed")
	ErrSave         = errors.New("failed to save game")
	ErrUpdate       = errors.New("failed to update game")
	ErrDelete       = errors.New("failed to delete game")
	ErrImport       = errors.New("failed to import collection")
	ErrExport       = errors.New("failed to export collection")
	ErrMigration    = errors.New("migration failed")
	ErrNoMigration  = errors.New("no migration pending")
	ErrRefresh      = errors.New("failed to refresh collection")
	ErrBackup       = errors.New("backup failed")
	ErrStreaming    = errors.New("streaming unsupported")
	ErrEncoding     = errors.New("failed to encode")
	ErrSession      = errors.New("failed to open session")
)

func owner(r *http.Request) services.Owner {
	userID, _ := middleware.UserIDFromContext(r.Context())
	deviceID, _ := middleware.DeviceIDFromContext(r.Context())
	return services.Owner{UserID: userID, DeviceID: deviceID}
}

func sessionStatus(err error) int {
	if errors.Is(err, services.ErrNoDevice) {
		return http.StatusBadRequest
	}
	return http.StatusServiceUnavailable
}

func respond(w http.ResponseWriter, log *slog.Logger, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error(ErrEncoding.Error(), slog.String("error", err.Error()))
	}
}

func idParam(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, ErrInvalidID
	}
	return id, nil
}

// parseIDs reads a comma separated id list. An empty value yields nil.
func parseIDs(value string) ([]int64, error) {
	if strings.TrimSpace(value) == "" {
		return nil, nil
	}

	parts := strings.Split(value, ",")
	ids := make([]int64, 0, len(parts))
	for _, part := range parts {
		id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrInvalidQuery, part)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func intQuery(r *http.Request, name string, def int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil || v < 1 {
		return def
	}
	return v
}
