// Package auth guards write operations with a single shared bearer token.
package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/sir_venger/mediarelay/internal/models"
	"github.com/sir_venger/mediarelay/pkg/httperrors"
)

const bearerScheme = "Bearer"

// Gate compares the request bearer token with the configured upload token.
type Gate struct {
	token []byte
}

// NewGate returns a gate for the given shared secret.
func NewGate(token string) *Gate {
	return &Gate{token: []byte(token)}
}

// Authorize checks an Authorization header value. It returns
// models.ErrMissingToken when no bearer token is present and
// models.ErrInvalidToken when the token does not match.
func (g *Gate) Authorize(header string) error {
	token, ok := BearerToken(header)
	if !ok {
		return models.ErrMissingToken
	}
	if len(g.token) == 0 || subtle.ConstantTimeCompare([]byte(token), g.token) != 1 {
		return models.ErrInvalidToken
	}

	return nil
}

// Middleware rejects requests that do not pass Authorize.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := g.Authorize(r.Header.Get("Authorization")); err != nil {
			httperrors.Write(w, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// BearerToken extracts the token from a "Bearer <token>" header value.
func BearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, bearerScheme) {
		return "", false
	}

	token = strings.TrimSpace(token)
	if token == "" {
		return "", false
	}

	return token, true
}
