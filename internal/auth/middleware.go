package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"movie-catalog/internal/models"
	"movie-catalog/internal/store"
)

type contextKey struct{}

var identityKey contextKey

// UserSource resolves token subjects to stored accounts.
type UserSource interface {
	GetUser(ctx context.Context, id string) (models.User, error)
}

// Middleware authenticates requests and attaches the caller Identity to the
// request context. Role checks (RequireRole) must always run after it.
type Middleware struct {
	tokens *TokenManager
	users  UserSource
	log    zerolog.Logger
}

// NewMiddleware wires the token manager against the user store.
func NewMiddleware(tokens *TokenManager, users UserSource, log zerolog.Logger) *Middleware {
	return &Middleware{tokens: tokens, users: users, log: log}
}

// Authenticate verifies the bearer token and resolves its subject to a live
// account. Any verification failure yields 401 without detail.
func (m *Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenStr := bearerToken(r)
		if tokenStr == "" {
			writeMessage(w, http.StatusUnauthorized, "No token")
			return
		}
		claims, err := m.tokens.ValidateToken(tokenStr)
		if err != nil {
			writeMessage(w, http.StatusUnauthorized, "Invalid token")
			return
		}
		user, err := m.users.GetUser(r.Context(), claims.Subject)
		if errors.Is(err, store.ErrNotFound) {
			writeMessage(w, http.StatusUnauthorized, "User not found")
			return
		}
		if err != nil {
			m.log.Error().Err(err).Msg("auth user lookup failed")
			writeMessage(w, http.StatusInternalServerError, "Server error")
			return
		}
		identity := models.Identity{ID: user.ID, Role: user.Role}
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
	})
}

// Authorize compares the caller's role against the required one. It is a
// pure check; callers are expected to have authenticated the identity first.
func Authorize(identity models.Identity, requiredRole string) error {
	if identity.Role != requiredRole {
		return ErrForbidden
	}
	return nil
}

// RequireRole builds middleware enforcing Authorize for every request. It
// refuses to serve requests that skipped Authenticate.
func RequireRole(requiredRole string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, ok := IdentityFromContext(r.Context())
			if !ok {
				writeMessage(w, http.StatusUnauthorized, "No token")
				return
			}
			if err := Authorize(identity, requiredRole); err != nil {
				writeMessage(w, http.StatusForbidden, "Forbidden")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WithIdentity attaches the resolved caller to the context.
func WithIdentity(ctx context.Context, identity models.Identity) context.Context {
	return context.WithValue(ctx, identityKey, identity)
}

// IdentityFromContext returns the caller attached by Authenticate.
func IdentityFromContext(ctx context.Context) (models.Identity, bool) {
	identity, ok := ctx.Value(identityKey).(models.Identity)
	return identity, ok
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func writeMessage(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"message": msg})
}
