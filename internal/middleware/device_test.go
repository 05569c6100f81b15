package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDevice(t *testing.T) {
	const known = "0b7e6a4c-3f0e-4c51-9a34-2f6f3b1d9e10"

	tests := []struct {
		name       string
		header     string
		cookie     string
		wantDevice string
		wantCookie bool
	}{
		{name: "header", header: known, wantDevice: known},
		{name: "cookie", cookie: known, wantDevice: known},
		{name: "header wins", header: known, cookie: uuid.NewString(), wantDevice: known},
		{name: "new device", wantCookie: true},
		{name: "invalid id", header: "../../etc", wantCookie: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got string
			handler := Device(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got, _ = DeviceIDFromContext(r.Context())
			}))

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set(DeviceHeader, tt.header)
			}
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: DeviceCookie, Value: tt.cookie})
			}
			w := httptest.NewRecorder()

			handler.ServeHTTP(w, req)

			cookies := w.Result().Cookies()
			if !tt.wantCookie {
				assert.Equal(t, tt.wantDevice, got)
				assert.Empty(t, cookies)
				return
			}

			require.Len(t, cookies, 1)
			assert.Equal(t, DeviceCookie, cookies[0].Name)
			assert.Equal(t, got, cookies[0].Value)
			_, err := uuid.Parse(got)
			assert.NoError(t, err)
		})
	}
}
