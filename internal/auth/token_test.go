package auth

import (
	"errors"
	"testing"
	"time"
)

func TestAccessTokenRoundtrip(t *testing.T) {
	svc := NewTokenService(TokenConfig{
		AccessSecret:  "access_secret",
		RefreshSecret: "refresh_secret",
	})

	token, err := svc.IssueAccess(42, RoleAdmin)
	if err != nil {
		t.Fatalf("issue access: %v", err)
	}

	claims, err := svc.VerifyAccess(token)
	if err != nil {
		t.Fatalf("verify access: %v", err)
	}
	if claims.UserID != 42 || claims.Role != RoleAdmin {
		t.Fatalf("claims = %d/%s, want 42/%s", claims.UserID, claims.Role, RoleAdmin)
	}
}

func TestRefreshTokenRoundtrip(t *testing.T) {
	svc := NewTokenService(TokenConfig{
		AccessSecret:  "access_secret",
		RefreshSecret: "refresh_secret",
		RefreshTTL:    time.Hour,
	})

	token, expiresAt, err := svc.IssueRefresh(7)
	if err != nil {
		t.Fatalf("issue refresh: %v", err)
	}
	if until := time.Until(expiresAt); until < 55*time.Minute || until > time.Hour {
		t.Fatalf("expiry %v not within refresh TTL", expiresAt)
	}

	userID, err := svc.VerifyRefresh(token)
	if err != nil {
		t.Fatalf("verify refresh: %v", err)
	}
	if userID != 7 {
		t.Fatalf("userID = %d, want 7", userID)
	}
}

func TestVerifyAccessRejectsExpired(t *testing.T) {
	svc := NewTokenService(TokenConfig{
		AccessSecret:  "access_secret",
		RefreshSecret: "refresh_secret",
		AccessTTL:     time.Nanosecond,
	})

	token, err := svc.IssueAccess(42, RoleUser)
	if err != nil {
		t.Fatalf("issue access: %v", err)
	}
	time.Sleep(5 * time.Millisecond)

	if _, err := svc.VerifyAccess(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("err = %v, want ErrInvalidToken", err)
	}
}

func TestVerifyAccessRejectsWrongKey(t *testing.T) {
	issuer := NewTokenService(TokenConfig{AccessSecret: "one", RefreshSecret: "r"})
	verifier := NewTokenService(TokenConfig{AccessSecret: "two", RefreshSecret: "r"})

	token, err := issuer.IssueAccess(42, RoleUser)
	if err != nil {
		t.Fatalf("issue access: %v", err)
	}

	if _, err := verifier.VerifyAccess(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("err = %v, want ErrInvalidToken", err)
	}
}

func TestAccessAndRefreshSecretsAreNotInterchangeable(t *testing.T) {
	svc := NewTokenService(TokenConfig{AccessSecret: "access", RefreshSecret: "refresh"})

	refreshToken, _, err := svc.IssueRefresh(42)
	if err != nil {
		t.Fatalf("issue refresh: %v", err)
	}

	if _, err := svc.VerifyAccess(refreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("refresh token verified as access token: %v", err)
	}
}

func TestVerifyAccessRejectsGarbage(t *testing.T) {
	svc := NewTokenService(TokenConfig{AccessSecret: "access", RefreshSecret: "refresh"})

	for _, tok := range []string{"", "not.a.jwt", "a.b"} {
		if _, err := svc.VerifyAccess(tok); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("token %q: err = %v, want ErrInvalidToken", tok, err)
		}
	}
}
