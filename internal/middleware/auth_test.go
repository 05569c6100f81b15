package middleware

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type MockVerifier struct {
	mock.Mock
}

func (m *MockVerifier) VerifyToken(ctx context.Context, token string) (string, error) {
	args := m.Called(ctx, token)
	return args.String(0), args.Error(1)
}

func TestOptionalAuth(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	tests := []struct {
		name       string
		header     string
		setup      func(*MockVerifier)
		wantStatus int
		wantUser   string
	}{
		{
			name:       "anonymous",
			wantStatus: http.StatusOK,
		},
		{
			name:   "valid token",
			header: "Bearer good",
			setup: func(m *MockVerifier) {
				m.On("VerifyToken", mock.Anything, "good").Return("user-1", nil)
			},
			wantStatus: http.StatusOK,
			wantUser:   "user-1",
		},
		{
			name:   "invalid token",
			header: "Bearer bad",
			setup: func(m *MockVerifier) {
				m.On("VerifyToken", mock.Anything, "bad").Return("", errors.New("expired"))
			},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "wrong scheme",
			header:     "Basic dXNlcjpwYXNz",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "empty bearer",
			header:     "Bearer ",
			wantStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verifier := &MockVerifier{}
			if tt.setup != nil {
				tt.setup(verifier)
			}

			var gotUser string
			var signedIn bool
			handler := NewAuthMiddleware(verifier, log).OptionalAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotUser, signedIn = UserIDFromContext(r.Context())
			}))

			req := httptest.NewRequest(http.MethodGet, "/api/library", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()

			handler.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantUser, gotUser)
			assert.Equal(t, tt.wantUser != "", signedIn)
			verifier.AssertExpectations(t)
		})
	}
}
