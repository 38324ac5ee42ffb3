package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"movie-catalog/internal/models"
	"movie-catalog/internal/store"
)

type fakeUsers struct {
	users map[string]models.User
}

func (f *fakeUsers) GetUser(_ context.Context, id string) (models.User, error) {
	u, ok := f.users[id]
	if !ok {
		return models.User{}, store.ErrNotFound
	}
	return u, nil
}

func identityWithRole(role string) models.Identity {
	return models.Identity{ID: "user-1", Role: role}
}

func newTestChain(t *testing.T) (*TokenManager, http.Handler, *models.Identity) {
	t.Helper()
	tm, err := NewTokenManager("test-secret-test-secret-test-secret", time.Hour)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	users := &fakeUsers{users: map[string]models.User{
		"admin-1": {ID: "admin-1", Role: "admin"},
		"user-1":  {ID: "user-1", Role: "user"},
	}}
	mw := NewMiddleware(tm, users, zerolog.Nop())

	var seen models.Identity
	final := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = IdentityFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
	chain := mw.Authenticate(RequireRole(models.RoleAdmin)(final))
	return tm, chain, &seen
}

func doRequest(handler http.Handler, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/movies", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestChainRejectsMissingToken(t *testing.T) {
	_, chain, _ := newTestChain(t)
	if rec := doRequest(chain, ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestChainRejectsMalformedHeader(t *testing.T) {
	tm, chain, _ := newTestChain(t)
	token, _ := tm.GenerateToken("admin-1", "admin")

	req := httptest.NewRequest(http.MethodPost, "/movies", nil)
	req.Header.Set("Authorization", token) // no Bearer prefix
	rec := httptest.NewRecorder()
	chain.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestChainRejectsInvalidToken(t *testing.T) {
	_, chain, _ := newTestChain(t)
	if rec := doRequest(chain, "garbage.token.here"); rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestChainRejectsDeletedSubject(t *testing.T) {
	tm, chain, _ := newTestChain(t)
	token, _ := tm.GenerateToken("ghost", "admin")
	if rec := doRequest(chain, token); rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestChainForbidsNonAdmin(t *testing.T) {
	tm, chain, _ := newTestChain(t)
	token, _ := tm.GenerateToken("user-1", "user")
	if rec := doRequest(chain, token); rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
}

func TestChainAdmitsAdminAndAttachesIdentity(t *testing.T) {
	tm, chain, seen := newTestChain(t)
	token, _ := tm.GenerateToken("admin-1", "admin")
	if rec := doRequest(chain, token); rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if seen.ID != "admin-1" || seen.Role != "admin" {
		t.Fatalf("identity not attached: %+v", seen)
	}
}

// The role stored for the subject wins over whatever the token claims; the
// gate must consult the live account, not stale claims.
func TestChainUsesStoredRole(t *testing.T) {
	tm, chain, _ := newTestChain(t)
	token, _ := tm.GenerateToken("user-1", "admin") // forged role claim
	if rec := doRequest(chain, token); rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
}

func TestRequireRoleWithoutAuthenticate(t *testing.T) {
	// Authorization without authentication must not be reachable.
	final := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := RequireRole(models.RoleAdmin)(final)
	rec := doRequest(handler, "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}
