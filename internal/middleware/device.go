package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
)

const (
	DeviceHeader = "X-Device-ID"
	DeviceCookie = "gametrack_device"

	deviceCookieMaxAge = 2 * 365 * 24 * time.Hour
)

const DeviceIDKey = contextKey("deviceID")

func DeviceIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(DeviceIDKey).(string)
	return id, ok && id != ""
}

func WithDeviceID(ctx context.Context, deviceID string) context.Context {
	return context.WithValue(ctx, DeviceIDKey, deviceID)
}

// Device identifies the client device from the X-Device-ID header or the
// device cookie. Clients without a valid id get a new one as a cookie.
func Device(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		deviceID, ok := parseDeviceID(r.Header.Get(DeviceHeader))
		if !ok {
			if cookie, err := r.Cookie(DeviceCookie); err == nil {
				deviceID, ok = parseDeviceID(cookie.Value)
			}
		}

		if !ok {
			deviceID = uuid.NewString()
			http.SetCookie(w, &http.Cookie{
				Name:     DeviceCookie,
				Value:    deviceID,
				Path:     "/",
				MaxAge:   int(deviceCookieMaxAge.Seconds()),
				HttpOnly: true,
				Secure:   r.TLS != nil,
				SameSite: http.SameSiteLaxMode,
			})
		}

		next.ServeHTTP(w, r.WithContext(WithDeviceID(r.Context(), deviceID)))
	})
}

func parseDeviceID(raw string) (string, bool) {
	if raw == "" {
		return "", false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return "", false
	}
	return id.String(), true
}
