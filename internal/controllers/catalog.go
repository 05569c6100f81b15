package controllers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"gametrack/internal/clients/rawg"
	"gametrack/internal/models"
)

type CatalogClient interface {
	Search(ctx context.Context, p models.SearchParams) (*models.SearchResult, error)
	GetDetails(ctx context.Context, id int64) (*models.GameDetails, error)
}

type CatalogController struct {
	client CatalogClient
	log    *slog.Logger
}

func NewCatalogController(client CatalogClient, log *slog.Logger) *CatalogController {
	return &CatalogController{client: client, log: log}
}

const maxPageSize = 40

func (c *CatalogController) Search(w http.ResponseWriter, r *http.Request) {
	const op = "controllers.catalog.Search"

	platforms, err := parseIDs(r.URL.Query().Get("platforms"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	pageSize := intQuery(r, "page_size", 0)
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	res, err := c.client.Search(r.Context(), models.SearchParams{
		Query:     r.URL.Query().Get("search"),
		Platforms: platforms,
		Page:      intQuery(r, "page", 1),
		PageSize:  pageSize,
	})
	if err != nil {
		c.log.Error(ErrCatalog.Error(), slog.String("operation", op), slog.String("error", err.Error()))
		http.Error(w, ErrCatalog.Error(), http.StatusBadGateway)
		return
	}

	respond(w, c.log, http.StatusOK, res)
}

func (c *CatalogController) Details(w http.ResponseWriter, r *http.Request) {
	const op = "controllers.catalog.Details"

	id, err := idParam(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	details, err := c.client.GetDetails(r.Context(), id)
	var statusErr *rawg.StatusError
	if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound {
		http.Error(w, ErrNotFound.Error(), http.StatusNotFound)
		return
	}
	if err != nil {
		c.log.Error(ErrCatalog.Error(),
			slog.String("operation", op),
			slog.Int64("id", id),
			slog.String("error", err.Error()))
		http.Error(w, ErrCatalog.Error(), http.StatusBadGateway)
		return
	}

	respond(w, c.log, http.StatusOK, details)
}

func (c *CatalogController) Platforms(w http.ResponseWriter, r *http.Request) {
	respond(w, c.log, http.StatusOK, models.Platforms)
}
