package auth

import (
	"testing"
	"time"
)

func TestTokenManagerRoundTrip(t *testing.T) {
	tm, err := NewTokenManager("test-secret-test-secret-test-secret", time.Hour)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	token, err := tm.GenerateToken("user-1", "admin")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	claims, err := tm.ValidateToken(token)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if claims.Subject != "user-1" {
		t.Fatalf("subject = %q, want user-1", claims.Subject)
	}
	if claims.Role != "admin" {
		t.Fatalf("role = %q, want admin", claims.Role)
	}
}

func TestTokenManagerRejectsWrongSecret(t *testing.T) {
	tm1, _ := NewTokenManager("secret-one-secret-one-secret-one", time.Hour)
	tm2, _ := NewTokenManager("secret-two-secret-two-secret-two", time.Hour)

	token, err := tm1.GenerateToken("user-1", "admin")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := tm2.ValidateToken(token); err == nil {
		t.Fatal("expected validation failure with wrong secret")
	}
}

func TestTokenManagerRejectsExpired(t *testing.T) {
	tm, _ := NewTokenManager("test-secret-test-secret-test-secret", -time.Minute)

	token, err := tm.GenerateToken("user-1", "admin")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := tm.ValidateToken(token); err == nil {
		t.Fatal("expected validation failure for expired token")
	}
}

func TestTokenManagerRejectsGarbage(t *testing.T) {
	tm, _ := NewTokenManager("test-secret-test-secret-test-secret", time.Hour)
	for _, tok := range []string{"", "not-a-token", "a.b.c"} {
		if _, err := tm.ValidateToken(tok); err == nil {
			t.Fatalf("expected failure for token %q", tok)
		}
	}
}

func TestNewTokenManagerRequiresSecret(t *testing.T) {
	if _, err := NewTokenManager("", time.Hour); err == nil {
		t.Fatal("expected error for empty secret")
	}
}

func TestAuthorize(t *testing.T) {
	if err := Authorize(identityWithRole("admin"), "admin"); err != nil {
		t.Fatalf("admin vs admin: %v", err)
	}
	if err := Authorize(identityWithRole("user"), "admin"); err == nil {
		t.Fatal("expected forbidden for user vs admin")
	}
}
