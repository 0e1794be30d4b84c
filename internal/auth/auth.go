// Package auth defines the narrow external Auth collaborator seam (spec §6):
// protected REST routes verify a bearer token against it, but the OAuth
// flow itself is an external collaborator, not core (spec §1 Non-goals).
package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

// ErrInvalidToken is returned by Verifier.Verify for a missing or rejected token.
var ErrInvalidToken = errors.New("invalid or missing bearer token")

// Verifier is the external collaborator that validates a bearer token.
// Implementation lives outside the core (spec §1); this interface is the seam.
type Verifier interface {
	Verify(ctx context.Context, token string) error
}

// AllowAll is a no-op Verifier for local development (ENABLE_SCHEDULER=false
// style override), never wired in a production deployment.
type AllowAll struct{}

func (AllowAll) Verify(context.Context, string) error { return nil }

// Middleware gates a handler behind a bearer token check. On failure it
// writes the 401 JSON envelope the gateway uses for every error (spec §6).
func Middleware(v Verifier, writeErr func(w http.ResponseWriter, status int, code, msg string)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token := strings.TrimPrefix(header, "Bearer ")
			if token == "" || token == header {
				writeErr(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing bearer token")
				return
			}
			if err := v.Verify(r.Context(), token); err != nil {
				writeErr(w, http.StatusUnauthorized, "UNAUTHORIZED", "token rejected")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
