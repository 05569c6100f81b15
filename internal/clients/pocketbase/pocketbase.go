// Package pocketbase is a small client for the PocketBase REST and realtime APIs.
package pocketbase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

var ErrUnauthorized = errors.New("pocketbase: unauthorized")

// APIError is the error body PocketBase returns for non-2xx responses.
type APIError struct {
	Status  int                       `json:"status"`
	Message string                    `json:"message"`
	Data    map[string]map[string]any `json:"data"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("pocketbase: %d %s", e.Status, e.Message)
}

// IsStatus reports whether err is an APIError with the given HTTP status.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == status
}

// IsUniqueViolation reports whether a create failed on a unique index.
func IsUniqueViolation(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusBadRequest {
		return false
	}
	for _, field := range apiErr.Data {
		if code, _ := field["code"].(string); code == "validation_not_unique" {
			return true
		}
	}
	return false
}

type Client struct {
	baseURL       string
	httpClient    *http.Client
	stream        *http.Client
	adminEmail    string
	adminPassword string
	log           *slog.Logger

	mu    sync.Mutex
	token string
}

func New(log *slog.Logger, baseURL string, timeout time.Duration, adminEmail, adminPassword string) *Client {
	return &Client{
		baseURL:       strings.TrimRight(baseURL, "/"),
		httpClient:    &http.Client{Timeout: timeout},
		stream:        &http.Client{},
		adminEmail:    adminEmail,
		adminPassword: adminPassword,
		log:           log,
	}
}

type authResponse struct {
	Token  string `json:"token"`
	Record Record `json:"record"`
}

// AuthSuperuser signs in with the configured superuser credentials.
func (c *Client) AuthSuperuser(ctx context.Context) error {
	const op = "clients.pocketbase.AuthSuperuser"

	if c.adminEmail == "" {
		return fmt.Errorf("%s: %w", op, ErrUnauthorized)
	}

	body := map[string]string{"identity": c.adminEmail, "password": c.adminPassword}

	var resp authResponse
	if err := c.send(ctx, http.MethodPost, "/api/collections/_superusers/auth-with-password", nil, body, "", &resp); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	c.mu.Lock()
	c.token = resp.Token
	c.mu.Unlock()

	return nil
}

func (c *Client) currentToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

// do sends an authenticated request, signing in again once when the token expired.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	token := c.currentToken()
	if token == "" && c.adminEmail != "" {
		if err := c.AuthSuperuser(ctx); err != nil {
			return err
		}
		token = c.currentToken()
	}

	err := c.send(ctx, method, path, query, body, token, out)
	if IsStatus(err, http.StatusUnauthorized) && c.adminEmail != "" {
		c.log.Debug("pocketbase token rejected, signing in again")
		if authErr := c.AuthSuperuser(ctx); authErr != nil {
			return authErr
		}
		return c.send(ctx, method, path, query, body, c.currentToken(), out)
	}
	return err
}

func (c *Client) send(ctx context.Context, method, path string, query url.Values, body any, token string, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		data, _ := io.ReadAll(resp.Body)
		if len(data) > 0 {
			_ = json.Unmarshal(data, apiErr)
			apiErr.Status = resp.StatusCode
		}
		if apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
