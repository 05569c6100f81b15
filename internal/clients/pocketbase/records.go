package pocketbase

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

const fullListPageSize = 500

// Record is a raw PocketBase record. Id and Collection fields are always present.
type Record map[string]any

func (r Record) ID() string {
	id, _ := r["id"].(string)
	return id
}

type ListParams struct {
	Filter  string
	Sort    string
	Page    int
	PerPage int
}

type ListResult[T any] struct {
	Page       int `json:"page"`
	PerPage    int `json:"perPage"`
	TotalItems int `json:"totalItems"`
	TotalPages int `json:"totalPages"`
	Items      []T `json:"items"`
}

func recordsPath(collection string) string {
	return "/api/collections/" + url.PathEscape(collection) + "/records"
}

func List[T any](ctx context.Context, c *Client, collection string, params ListParams) (*ListResult[T], error) {
	const op = "clients.pocketbase.List"

	query := url.Values{}
	if params.Filter != "" {
		query.Set("filter", params.Filter)
	}
	if params.Sort != "" {
		query.Set("sort", params.Sort)
	}
	if params.Page > 0 {
		query.Set("page", strconv.Itoa(params.Page))
	}
	if params.PerPage > 0 {
		query.Set("perPage", strconv.Itoa(params.PerPage))
	}

	var result ListResult[T]
	if err := c.do(ctx, "GET", recordsPath(collection), query, nil, &result); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &result, nil
}

// FullList pages through every record matching the filter.
func FullList[T any](ctx context.Context, c *Client, collection, filter, sort string) ([]T, error) {
	items := []T{}
	for page := 1; ; page++ {
		result, err := List[T](ctx, c, collection, ListParams{
			Filter:  filter,
			Sort:    sort,
			Page:    page,
			PerPage: fullListPageSize,
		})
		if err != nil {
			return nil, err
		}
		items = append(items, result.Items...)
		if len(result.Items) < fullListPageSize || page >= result.TotalPages {
			return items, nil
		}
	}
}

func (c *Client) Create(ctx context.Context, collection string, body, out any) error {
	const op = "clients.pocketbase.Create"

	if err := c.do(ctx, "POST", recordsPath(collection), nil, body, out); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (c *Client) Update(ctx context.Context, collection, id string, body, out any) error {
	const op = "clients.pocketbase.Update"

	if err := c.do(ctx, "PATCH", recordsPath(collection)+"/"+url.PathEscape(id), nil, body, out); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (c *Client) Delete(ctx context.Context, collection, id string) error {
	const op = "clients.pocketbase.Delete"

	if err := c.do(ctx, "DELETE", recordsPath(collection)+"/"+url.PathEscape(id), nil, nil, nil); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Quote renders a string literal for a PocketBase filter expression.
func Quote(s string) string {
	return `"` + quoteReplacer.Replace(s) + `"`
}

var quoteReplacer = strings.NewReplacer(`\`, `\\`, `"`, `\"`)
