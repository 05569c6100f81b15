package controllers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"gametrack/internal/services"
	"gametrack/internal/storage"
	"gametrack/internal/storage/backup"

	"github.com/go-chi/chi/v5"
)

type BackupService interface {
	Create(ctx context.Context, owner services.Owner, lib *services.Library) (backup.Object, error)
	List(ctx context.Context, owner services.Owner) ([]backup.Object, error)
	Restore(ctx context.Context, owner services.Owner, name string, lib *services.Library) error
}

type BackupController struct {
	backups  BackupService
	sessions SessionProvider
	log      *slog.Logger
}

func NewBackupController(backups BackupService, sessions SessionProvider, log *slog.Logger) *BackupController {
	return &BackupController{backups: backups, sessions: sessions, log: log}
}

func (c *BackupController) session(w http.ResponseWriter, r *http.Request, op string) (services.Owner, *services.Library, bool) {
	o := owner(r)

	lib, err := c.sessions.Get(r.Context(), o)
	if err != nil {
		c.log.Error(ErrSession.Error(), slog.String("operation", op), slog.String("error", err.Error()))
		http.Error(w, ErrSession.Error(), sessionStatus(err))
		return services.Owner{}, nil, false
	}
	return o, lib, true
}

func (c *BackupController) List(w http.ResponseWriter, r *http.Request) {
	const op = "controllers.backups.List"

	objects, err := c.backups.List(r.Context(), owner(r))
	if err != nil {
		c.log.Error(ErrBackup.Error(), slog.String("operation", op), slog.String("error", err.Error()))
		http.Error(w, ErrBackup.Error(), http.StatusBadGateway)
		return
	}

	respond(w, c.log, http.StatusOK, objects)
}

func (c *BackupController) Create(w http.ResponseWriter, r *http.Request) {
	const op = "controllers.backups.Create"

	o, lib, ok := c.session(w, r, op)
	if !ok {
		return
	}

	obj, err := c.backups.Create(r.Context(), o, lib)
	if err != nil {
		c.log.Error(ErrBackup.Error(), slog.String("operation", op), slog.String("error", err.Error()))
		http.Error(w, ErrBackup.Error(), http.StatusBadGateway)
		return
	}

	respond(w, c.log, http.StatusCreated, obj)
}

func (c *BackupController) Restore(w http.ResponseWriter, r *http.Request) {
	const op = "controllers.backups.Restore"

	name := chi.URLParam(r, "name")
	if !backup.ValidName(name) {
		http.Error(w, backup.ErrInvalidName.Error(), http.StatusBadRequest)
		return
	}

	o, lib, ok := c.session(w, r, op)
	if !ok {
		return
	}

	err := c.backups.Restore(r.Context(), o, name, lib)
	switch {
	case err == nil:
		respond(w, c.log, http.StatusOK, ImportResponse{Imported: true})
	case errors.Is(err, storage.ErrNotFound):
		http.Error(w, ErrNotFound.Error(), http.StatusNotFound)
	case errors.Is(err, services.ErrRestoreFailed):
		respond(w, c.log, http.StatusUnprocessableEntity, ImportResponse{Imported: false})
	default:
		c.log.Error(ErrBackup.Error(), slog.String("operation", op), slog.String("error", err.Error()))
		http.Error(w, ErrBackup.Error(), http.StatusBadGateway)
	}
}
