package handler_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fruitshop/orderdesk/internal/auth"
	"github.com/fruitshop/orderdesk/internal/handler"
	"github.com/fruitshop/orderdesk/internal/logger"
	"github.com/fruitshop/orderdesk/internal/orderapi"
)

const testSecret = "test-secret"

// --- Mock TokenVerifier ---

type mockVerifier struct {
	calls    int
	verifyFn func(token string) error
}

func (m *mockVerifier) VerifyToken(ctx context.Context, token string) error {
	m.calls++
	if m.verifyFn != nil {
		return m.verifyFn(token)
	}
	return nil
}

func setupSessionRouter(session *auth.Session) *chi.Mux {
	return setupSessionRouterWith(session, &mockVerifier{})
}

func setupSessionRouterWith(session *auth.Session, verifier *mockVerifier) *chi.Mux {
	h := handler.NewSessionHandler(session, verifier, logger.NewNop())
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	h.RegisterProtectedRoutes(r)
	return r
}

func TestSessionLogin(t *testing.T) {
	session := auth.NewSession(testSecret)
	router := setupSessionRouter(session)
	token, _ := auth.GenerateToken(testSecret, "1", "admin", "admin", time.Hour)

	rr := doRequest(t, router, "POST", "/session", map[string]string{"token": token})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	resp := decodeResponse(t, rr)
	if resp["username"] != "admin" || resp["role"] != "admin" {
		t.Errorf("unexpected session: %v", resp)
	}
	if !session.IsAdmin() {
		t.Error("session should hold an admin after login")
	}

	rr = doRequest(t, router, "GET", "/session", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}

func TestSessionLogin_Rejected(t *testing.T) {
	expired, _ := auth.GenerateToken(testSecret, "1", "admin", "admin", -time.Minute)
	forged, _ := auth.GenerateToken("other-secret", "1", "admin", "admin", time.Hour)

	tests := []struct {
		name   string
		body   interface{}
		status int
	}{
		{"empty token", map[string]string{"token": ""}, http.StatusBadRequest},
		{"expired token", map[string]string{"token": expired}, http.StatusUnauthorized},
		{"bad signature", map[string]string{"token": forged}, http.StatusUnauthorized},
		{"garbage", map[string]string{"token": "not-a-jwt"}, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			session := auth.NewSession(testSecret)
			router := setupSessionRouter(session)

			rr := doRequest(t, router, "POST", "/session", tt.body)
			if rr.Code != tt.status {
				t.Fatalf("expected %d, got %d: %s", tt.status, rr.Code, rr.Body.String())
			}
			if session.Active() {
				t.Error("session should stay empty")
			}
		})
	}
}

func TestSessionLogout(t *testing.T) {
	token, _ := auth.GenerateToken(testSecret, "1", "admin", "admin", time.Hour)
	session, err := auth.NewSessionWithToken(testSecret, token)
	if err != nil {
		t.Fatalf("NewSessionWithToken: %v", err)
	}
	router := setupSessionRouter(session)

	rr := doRequest(t, router, "DELETE", "/session", nil)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
	if session.Active() {
		t.Error("session should be cleared")
	}

	rr = doRequest(t, router, "GET", "/session", nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
	resp := decodeResponse(t, rr)
	if resp["error"] != "please log in first" {
		t.Errorf("error: got %v", resp["error"])
	}
}

func TestSessionLogin_BackendRejectsToken(t *testing.T) {
	session := auth.NewSession("")
	verifier := &mockVerifier{verifyFn: func(token string) error {
		return &orderapi.RequestError{StatusCode: http.StatusUnauthorized, Message: "Invalid token"}
	}}
	router := setupSessionRouterWith(session, verifier)
	forged, _ := auth.GenerateToken("attacker-key", "9", "mallory", "admin", time.Hour)

	rr := doRequest(t, router, "POST", "/session", map[string]string{"token": forged})
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d: %s", rr.Code, rr.Body.String())
	}
	if verifier.calls != 1 {
		t.Errorf("expected one verification, got %d", verifier.calls)
	}
	if session.Active() {
		t.Error("rejected token must not be stored")
	}
}

func TestSessionLogin_BackendUnreachable(t *testing.T) {
	session := auth.NewSession("")
	verifier := &mockVerifier{verifyFn: func(token string) error { return errors.New("dial tcp: connection refused") }}
	router := setupSessionRouterWith(session, verifier)
	token, _ := auth.GenerateToken(testSecret, "1", "admin", "admin", time.Hour)

	rr := doRequest(t, router, "POST", "/session", map[string]string{"token": token})
	if rr.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rr.Code)
	}
	if session.Active() {
		t.Error("unverified token must not be stored")
	}
}

func TestSessionLogin_ActiveSessionIsNotReplaced(t *testing.T) {
	current, _ := auth.GenerateToken(testSecret, "1", "admin", "admin", time.Hour)
	session, err := auth.NewSessionWithToken(testSecret, current)
	if err != nil {
		t.Fatalf("NewSessionWithToken: %v", err)
	}
	verifier := &mockVerifier{}
	router := setupSessionRouterWith(session, verifier)
	other, _ := auth.GenerateToken(testSecret, "2", "intruder", "admin", time.Hour)

	rr := doRequest(t, router, "POST", "/session", map[string]string{"token": other})
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rr.Code)
	}
	if session.Token() != current {
		t.Error("active session must be kept")
	}
	if verifier.calls != 0 {
		t.Error("conflicting login must not reach the backend")
	}

	// The holder of the current token may rotate it.
	req := httptest.NewRequest("POST", "/session", strings.NewReader(`{"token":"`+other+`"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+current)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if session.Token() != other {
		t.Error("rotation should store the new token")
	}
}
