package pocketbase

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const UsersCollection = "users"

// VerifyToken checks a user auth token against PocketBase and returns the user id.
// Malformed and expired tokens are rejected locally, without a round trip.
func (c *Client) VerifyToken(ctx context.Context, token string) (string, error) {
	const op = "clients.pocketbase.VerifyToken"

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return "", fmt.Errorf("%s: %w: %w", op, ErrUnauthorized, err)
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil || exp.Before(time.Now()) {
		return "", fmt.Errorf("%s: %w: token expired", op, ErrUnauthorized)
	}
	if kind, _ := claims["type"].(string); kind != "" && kind != "auth" {
		return "", fmt.Errorf("%s: %w: not an auth token", op, ErrUnauthorized)
	}

	var resp authResponse
	err = c.send(ctx, http.MethodPost, "/api/collections/"+UsersCollection+"/auth-refresh", nil, nil, token, &resp)
	if err != nil {
		if IsStatus(err, http.StatusUnauthorized) || IsStatus(err, http.StatusForbidden) || IsStatus(err, http.StatusNotFound) {
			return "", fmt.Errorf("%s: %w", op, ErrUnauthorized)
		}
		return "", fmt.Errorf("%s: %w", op, err)
	}

	id := resp.Record.ID()
	if id == "" {
		return "", fmt.Errorf("%s: %w", op, errors.New("auth-refresh returned no record"))
	}
	return id, nil
}
