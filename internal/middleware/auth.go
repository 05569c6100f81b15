package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
)

// TokenVerifier resolves a bearer token to the id of its user.
type TokenVerifier interface {
	VerifyToken(ctx context.Context, token string) (string, error)
}

type AuthMiddleware struct {
	verifier TokenVerifier
	log      *slog.Logger
}

func NewAuthMiddleware(verifier TokenVerifier, log *slog.Logger) *AuthMiddleware {
	return &AuthMiddleware{verifier: verifier, log: log}
}

type contextKey string

const UserIDKey = contextKey("userID")

// UserIDFromContext returns the signed-in user. Anonymous requests have none.
func UserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(UserIDKey).(string)
	return id, ok && id != ""
}

func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

// OptionalAuth lets requests without an Authorization header through as
// anonymous and rejects malformed or invalid bearer tokens.
func (m *AuthMiddleware) OptionalAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		const op = "middleware.auth.OptionalAuth"

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			next.ServeHTTP(w, r)
			return
		}

		token, ok := strings.CutPrefix(authHeader, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			http.Error(w, "missing or malformed authorization header", http.StatusUnauthorized)
			return
		}

		userID, err := m.verifier.VerifyToken(r.Context(), strings.TrimSpace(token))
		if err != nil {
			m.log.Debug("token rejected", slog.String("operation", op), slog.String("error", err.Error()))
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
	})
}
