// Package api implements the evolution REST API using chi.
package api

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
)

// Identity is the acting reviewer resolved by the authorization check.
type Identity struct {
	Name string `json:"name"`
	Root bool   `json:"root"`
}

// AuthConfig selects how requests are authorized.
type AuthConfig struct {
	// Enabled false admits every request as the Actor root identity.
	Enabled bool
	// Token grants the root identity.
	Token string
	// ViewerToken grants read-only access.
	ViewerToken string
	// Actor names the root identity.
	Actor string
}

type identityKey struct{}

// IdentityFrom returns the identity stored by AuthMiddleware.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}

// AuthMiddleware resolves the caller from a Bearer token. In disabled mode
// every request acts as the root identity.
func AuthMiddleware(cfg AuthConfig) func(http.Handler) http.Handler {
	actor := cfg.Actor
	if actor == "" {
		actor = "root"
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := Identity{Name: actor, Root: true}, true
			if cfg.Enabled {
				id, ok = resolve(cfg, actor, r.Header.Get("Authorization"))
			}
			if !ok {
				writeJSON(w, http.StatusUnauthorized, errorBody("unauthorized"))
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), identityKey{}, id)))
		})
	}
}

func resolve(cfg AuthConfig, actor, header string) (Identity, bool) {
	if !strings.HasPrefix(header, "Bearer ") {
		return Identity{}, false
	}
	token := strings.TrimPrefix(header, "Bearer ")
	switch {
	case tokenEqual(token, cfg.Token):
		return Identity{Name: actor, Root: true}, true
	case tokenEqual(token, cfg.ViewerToken):
		return Identity{Name: "viewer", Root: false}, true
	}
	return Identity{}, false
}

func tokenEqual(got, want string) bool {
	return want != "" && subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

// RequireRoot rejects every identity except the privileged actor.
func RequireRoot(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := IdentityFrom(r.Context())
		if !ok || !id.Root {
			writeJSON(w, http.StatusForbidden, errorBody("forbidden"))
			return
		}
		next.ServeHTTP(w, r)
	})
}
