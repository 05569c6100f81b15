package pocketbase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
)

// Field is a collection field definition. Options are flattened into the field
// object, the way the collections API expects them.
type Field struct {
	Name     string
	Type     string
	Required bool
	Options  map[string]any
}

func (f Field) MarshalJSON() ([]byte, error) {
	m := map[string]any{"name": f.Name, "type": f.Type, "required": f.Required}
	for k, v := range f.Options {
		m[k] = v
	}
	return json.Marshal(m)
}

type Collection struct {
	ID         string   `json:"id,omitempty"`
	Name       string   `json:"name"`
	Type       string   `json:"type"`
	Fields     []Field  `json:"fields"`
	Indexes    []string `json:"indexes"`
	ListRule   *string  `json:"listRule"`
	ViewRule   *string  `json:"viewRule"`
	CreateRule *string  `json:"createRule"`
	UpdateRule *string  `json:"updateRule"`
	DeleteRule *string  `json:"deleteRule"`
}

func (c *Client) CollectionID(ctx context.Context, name string) (string, error) {
	const op = "clients.pocketbase.CollectionID"

	var existing struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/collections/"+url.PathEscape(name), nil, nil, &existing); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return existing.ID, nil
}

// EnsureCollection creates the collection or updates it in place. It reports whether it was created.
func (c *Client) EnsureCollection(ctx context.Context, col Collection) (bool, error) {
	const op = "clients.pocketbase.EnsureCollection"

	id, err := c.CollectionID(ctx, col.Name)
	switch {
	case IsStatus(err, http.StatusNotFound):
		if err := c.do(ctx, http.MethodPost, "/api/collections", nil, col, nil); err != nil {
			return false, fmt.Errorf("%s: create: %w", op, err)
		}
		c.log.Info("collection created", slog.String("collection", col.Name))
		return true, nil
	case err != nil:
		return false, fmt.Errorf("%s: %w", op, err)
	}

	col.ID = id
	if err := c.do(ctx, http.MethodPatch, "/api/collections/"+url.PathEscape(id), nil, col, nil); err != nil {
		return false, fmt.Errorf("%s: update: %w", op, err)
	}
	c.log.Info("collection updated", slog.String("collection", col.Name))
	return false, nil
}

// DeleteCollection drops the collection and all its records. Missing collections are ignored.
func (c *Client) DeleteCollection(ctx context.Context, name string) error {
	const op = "clients.pocketbase.DeleteCollection"

	err := c.do(ctx, http.MethodDelete, "/api/collections/"+url.PathEscape(name), nil, nil, nil)
	if err != nil && !IsStatus(err, http.StatusNotFound) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
