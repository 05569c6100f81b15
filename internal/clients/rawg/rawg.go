// Package rawg is the catalog client for the RAWG video game database.
package rawg

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"gametrack/internal/models"

	"github.com/PuerkitoBio/goquery"
)

const (
	DefaultBaseURL  = "https://api.rawg.io/api"
	DefaultPageSize = 20
	releaseDates    = "2005-01-01,2030-12-31"
)

// StatusError is returned for non-2xx catalog responses.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("rawg: status %d: %s", e.StatusCode, e.Body)
}

type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

func New(baseURL, apiKey string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
	}
}

type detailsResponse struct {
	models.Game
	Description string  `json:"description"`
	Website     string  `json:"website"`
	Playtime    int     `json:"playtime"`
	Rating      float64 `json:"rating"`
}

func (c *Client) get(ctx context.Context, path string, params url.Values, out any) error {
	params.Set("key", c.apiKey)
	endpoint := fmt.Sprintf("%s%s?%s", c.baseURL, path, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// Search runs one catalog query. Page size defaults to 20.
func (c *Client) Search(ctx context.Context, p models.SearchParams) (*models.SearchResult, error) {
	const op = "clients.rawg.Search"

	params := url.Values{}
	if p.Query != "" {
		params.Set("search", p.Query)
	}
	if len(p.Platforms) > 0 {
		ids := make([]string, 0, len(p.Platforms))
		for _, id := range p.Platforms {
			ids = append(ids, strconv.FormatInt(id, 10))
		}
		params.Set("platforms", strings.Join(ids, ","))
	}
	page := p.Page
	if page < 1 {
		page = 1
	}
	pageSize := p.PageSize
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	params.Set("page", strconv.Itoa(page))
	params.Set("page_size", strconv.Itoa(pageSize))
	params.Set("dates", releaseDates)

	var result models.SearchResult
	if err := c.get(ctx, "/games", params, &result); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if result.Results == nil {
		result.Results = []models.Game{}
	}
	return &result, nil
}

func (c *Client) GamesByPlatform(ctx context.Context, platformID int64, page int) (*models.SearchResult, error) {
	return c.Search(ctx, models.SearchParams{Platforms: []int64{platformID}, Page: page})
}

// GetDetails loads one game. The HTML description is flattened to plain text.
func (c *Client) GetDetails(ctx context.Context, id int64) (*models.GameDetails, error) {
	const op = "clients.rawg.GetDetails"

	var resp detailsResponse
	if err := c.get(ctx, "/games/"+strconv.FormatInt(id, 10), url.Values{}, &resp); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	description, err := plainText(resp.Description)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &models.GameDetails{
		Game:        resp.Game,
		Description: description,
		Website:     resp.Website,
		Playtime:    resp.Playtime,
		Rating:      resp.Rating,
	}, nil
}

func plainText(html string) (string, error) {
	if strings.TrimSpace(html) == "" {
		return "", nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("parse description: %w", err)
	}

	var paragraphs []string
	doc.Find("p, h1, h2, h3, h4, li").Each(func(_ int, s *goquery.Selection) {
		if text := strings.TrimSpace(s.Text()); text != "" {
			paragraphs = append(paragraphs, text)
		}
	})
	if len(paragraphs) == 0 {
		return strings.TrimSpace(doc.Text()), nil
	}
	return strings.Join(paragraphs, "\n\n"), nil
}
