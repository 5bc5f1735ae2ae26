package server

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

type ctxKey int

const (
	ctxKeyClient ctxKey = iota
)

const (
	deviceCookieName = "civilens_device"
	deviceCookieAge  = 365 * 24 * 60 * 60

	adminUser = "admin"
)

// deviceMiddleware identifies the browser by its device cookie, issuing one
// on first contact, and resolves its Client.
func deviceMiddleware(clients *Registry, secure bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			deviceID := ""
			if cookie, err := r.Cookie(deviceCookieName); err == nil {
				if _, err := uuid.Parse(cookie.Value); err == nil {
					deviceID = cookie.Value
				}
			}
			if deviceID == "" {
				deviceID = uuid.NewString()
				http.SetCookie(w, &http.Cookie{
					Name:     deviceCookieName,
					Value:    deviceID,
					Path:     "/",
					MaxAge:   deviceCookieAge,
					HttpOnly: true,
					Secure:   secure,
					SameSite: http.SameSiteLaxMode,
				})
			}

			client, err := clients.Get(r.Context(), deviceID)
			if err != nil {
				clients.logger.ErrorContext(r.Context(), "resolving device", "device", deviceID, "error", err)
				writeError(w, http.StatusInternalServerError, "internal error")
				return
			}

			ctx := context.WithValue(r.Context(), ctxKeyClient, client)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// adminAuthMiddleware checks HTTP basic auth for the admin user against a
// bcrypt hash. Without a hash the guarded routes do not exist.
func adminAuthMiddleware(passwordHash string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if passwordHash == "" {
				writeError(w, http.StatusNotFound, "not found")
				return
			}

			user, password, ok := r.BasicAuth()
			if !ok || user != adminUser ||
				bcrypt.CompareHashAndPassword([]byte(passwordHash), []byte(password)) != nil {
				w.Header().Set("WWW-Authenticate", `Basic realm="civilens"`)
				writeError(w, http.StatusUnauthorized, "not authenticated")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func clientFrom(r *http.Request) *Client {
	return r.Context().Value(ctxKeyClient).(*Client)
}

// DeviceID returns the device the request was resolved to, or "" outside the
// device middleware.
func DeviceID(r *http.Request) string {
	if c, ok := r.Context().Value(ctxKeyClient).(*Client); ok {
		return c.DeviceID
	}
	return ""
}
