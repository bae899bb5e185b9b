// Package auth resolves the user behind an HTTP request, either from a signed
// bearer token or, in development, from a header the caller sets itself.
package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/nfrund/chatterbox/internal/config"
	"github.com/nfrund/chatterbox/internal/domain"
)

// HeaderUserID carries the caller's user id in development mode.
const HeaderUserID = "X-User-ID"

var (
	// ErrMissingCredentials is returned when the request carries no identity.
	ErrMissingCredentials = errors.New("missing credentials")
	// ErrInvalidToken is returned when the token is invalid.
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpiredToken is returned when the token has expired.
	ErrExpiredToken = errors.New("token has expired")
)

// Verifier resolves the caller of r.
type Verifier interface {
	Verify(r *http.Request) (domain.UserID, error)
	// Required reports whether requests without credentials are rejected.
	Required() bool
}

// NewVerifier returns a JWT verifier when a secret is configured and a
// development header verifier otherwise.
func NewVerifier(cfg *config.Config) Verifier {
	if cfg.AuthEnabled() {
		return NewJWTVerifier(DefaultJWTConfig(cfg.JWTSecret))
	}
	return HeaderVerifier{}
}

// BearerToken extracts a token from the Authorization header, falling back to
// the "token" query parameter used by browser WebSocket clients.
func BearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return r.URL.Query().Get("token")
}

// HeaderVerifier trusts the X-User-ID header or the userId query parameter.
type HeaderVerifier struct{}

func (HeaderVerifier) Verify(r *http.Request) (domain.UserID, error) {
	id := strings.TrimSpace(r.Header.Get(HeaderUserID))
	if id == "" {
		id = strings.TrimSpace(r.URL.Query().Get("userId"))
	}
	if id == "" {
		return "", ErrMissingCredentials
	}
	return domain.UserID(id), nil
}

func (HeaderVerifier) Required() bool { return false }
