package middleware

import (
	"context"
	"crypto/subtle"
	"net/http"

	"chatsync/models"
)

type contextKey string

const IdentityContextKey contextKey = "identity"

// AccessKeyHeader carries the control API key. Websocket clients that cannot
// set headers pass it as the "key" query parameter instead.
const AccessKeyHeader = "X-Access-Key"

// IdentitySource yields the signed-in identity, or nil when signed out.
type IdentitySource interface {
	Identity() *models.Identity
}

// IdentityFunc adapts a plain function to IdentitySource.
type IdentityFunc func() *models.Identity

func (f IdentityFunc) Identity() *models.Identity { return f() }

// AccessKey rejects requests that do not present key. An empty key disables
// the check.
func AccessKey(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}
			got := r.Header.Get(AccessKeyHeader)
			if got == "" {
				got = r.URL.Query().Get("key")
			}
			if subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
				http.Error(w, `{"error": "Unauthorized"}`, http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Auth requires a signed-in identity and adds it to the request context.
func Auth(src IdentitySource) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := src.Identity()
			if !id.Valid() {
				http.Error(w, `{"error": "Not signed in"}`, http.StatusUnauthorized)
				return
			}
			ctx := context.WithValue(r.Context(), IdentityContextKey, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OptionalAuth adds the identity to the context when there is one.
func OptionalAuth(src IdentitySource) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if id := src.Identity(); id.Valid() {
				r = r.WithContext(context.WithValue(r.Context(), IdentityContextKey, id))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// GetIdentityFromContext retrieves the identity stored by Auth or OptionalAuth.
func GetIdentityFromContext(r *http.Request) *models.Identity {
	id, ok := r.Context().Value(IdentityContextKey).(*models.Identity)
	if !ok {
		return nil
	}
	return id
}

// TokenTransport signs outgoing REST requests with the current identity's
// token as "Authorization: Token <token>".
type TokenTransport struct {
	Source IdentitySource
	Base   http.RoundTripper
}

func (t *TokenTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	id := t.Source.Identity()
	if !id.Valid() {
		return base.RoundTrip(req)
	}
	signed := req.Clone(req.Context())
	signed.Header.Set("Authorization", "Token "+id.Token)
	return base.RoundTrip(signed)
}
