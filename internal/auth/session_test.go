package auth_test

import (
	"errors"
	"testing"
	"time"

	"github.com/fruitshop/orderdesk/internal/auth"
)

func mustToken(t *testing.T, secret, role string, ttl time.Duration) string {
	t.Helper()
	token, err := auth.GenerateToken(secret, "1", "operator", role, ttl)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	return token
}

func TestSessionLoginLogout(t *testing.T) {
	s := auth.NewSession("")
	if s.Active() {
		t.Fatal("new session should not be active")
	}

	token := mustToken(t, "backend-secret", "admin", time.Hour)
	if _, err := s.Login(token); err != nil {
		t.Fatalf("login: %v", err)
	}
	if got := s.Token(); got != token {
		t.Errorf("token: got %q, want %q", got, token)
	}
	if !s.IsAdmin() {
		t.Error("expected admin session")
	}

	s.Logout()
	if s.Active() {
		t.Error("session should be inactive after logout")
	}
	if s.Claims() != nil {
		t.Error("claims should be cleared after logout")
	}
}

func TestSessionLoginVerifiesWhenSecretSet(t *testing.T) {
	s := auth.NewSession("console-secret")

	if _, err := s.Login(mustToken(t, "other-secret", "admin", time.Hour)); err == nil {
		t.Fatal("expected signature error")
	}
	if _, err := s.Login(mustToken(t, "console-secret", "user", time.Hour)); err != nil {
		t.Fatalf("login: %v", err)
	}
	if s.IsAdmin() {
		t.Error("user role should not be admin")
	}
}

func TestSessionRejectsExpiredToken(t *testing.T) {
	for _, secret := range []string{"", "console-secret"} {
		s := auth.NewSession(secret)
		_, err := s.Login(mustToken(t, "console-secret", "admin", -time.Minute))
		if !errors.Is(err, auth.ErrTokenExpired) {
			t.Errorf("secret %q: got %v, want %v", secret, err, auth.ErrTokenExpired)
		}
		if s.Active() {
			t.Errorf("secret %q: session should stay inactive", secret)
		}
	}
}

func TestSessionRejectsEmptyToken(t *testing.T) {
	_, err := auth.NewSession("").Login("   ")
	if !errors.Is(err, auth.ErrEmptyToken) {
		t.Fatalf("error: got %v, want %v", err, auth.ErrEmptyToken)
	}
}

func TestNilSessionIsInactive(t *testing.T) {
	var s *auth.Session
	if s.Active() || s.Token() != "" || s.Claims() != nil || s.Expired() {
		t.Fatal("nil session must behave as logged out")
	}
}

func TestSessionCheckDoesNotStore(t *testing.T) {
	s := auth.NewSession("")
	token := mustToken(t, "backend-secret", "admin", time.Hour)

	claims, err := s.Check(token)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if claims.Role != "admin" {
		t.Errorf("role: got %q", claims.Role)
	}
	if s.Active() {
		t.Fatal("check must not log in")
	}

	if _, err := s.Login(token); err != nil {
		t.Fatalf("login: %v", err)
	}
	if got := s.Username(); got != "operator" {
		t.Errorf("username: got %q", got)
	}
	s.Logout()
	if got := s.Username(); got != "" {
		t.Errorf("username after logout: got %q", got)
	}
}
