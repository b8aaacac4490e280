package router_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/fruitshop/orderdesk/internal/auth"
	"github.com/fruitshop/orderdesk/internal/config"
	"github.com/fruitshop/orderdesk/internal/logger"
	"github.com/fruitshop/orderdesk/internal/notify"
	"github.com/fruitshop/orderdesk/internal/orderapi"
	"github.com/fruitshop/orderdesk/internal/router"
	"github.com/fruitshop/orderdesk/internal/ws"
)

// backendVerifier accepts only tokens the backend issued.
type backendVerifier struct {
	issued map[string]bool
}

func (v *backendVerifier) VerifyToken(ctx context.Context, token string) error {
	if v.issued[token] {
		return nil
	}
	return &orderapi.RequestError{StatusCode: http.StatusUnauthorized, Message: "Invalid token"}
}

func newRouter(t *testing.T, role string) (http.Handler, string) {
	t.Helper()
	token, err := auth.GenerateToken("secret", "user-1", "dina", role, time.Hour)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	session, err := auth.NewSessionWithToken("", token)
	if err != nil {
		t.Fatalf("session: %v", err)
	}

	inbox := notify.NewInbox(nil, 0)
	inbox.Info("Welcome", "console started")

	cfg := &config.Config{
		Server:   config.ServerConfig{CORSOrigins: []string{"http://localhost:3000"}},
		Dispatch: config.DispatchConfig{MaxPhotoBytes: 3 << 20},
	}
	r := router.New(cfg, router.Deps{
		Session:       session,
		Verifier:      &backendVerifier{issued: map[string]bool{token: true}},
		Hub:           ws.NewHub(),
		Notifications: inbox,
		Log:           logger.NewNop(),
	})
	return r, token
}

func do(h http.Handler, method, path, token string) *httptest.ResponseRecorder {
	return doBody(h, method, path, token, "")
}

func doBody(h http.Handler, method, path, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestHealth(t *testing.T) {
	r, _ := newRouter(t, "admin")
	rr := do(r, http.MethodGet, "/health", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}

func TestProtectedRoutesNeedSessionToken(t *testing.T) {
	r, _ := newRouter(t, "admin")

	rr := do(r, http.MethodGet, "/notifications", "")
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rr.Code)
	}

	rr = do(r, http.MethodGet, "/notifications", "some-other-token")
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for foreign token, got %d", rr.Code)
	}
}

func TestNotificationsWithSession(t *testing.T) {
	r, token := newRouter(t, "user")
	rr := do(r, http.MethodGet, "/notifications", token)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var body struct {
		Notifications []json.RawMessage `json:"notifications"`
		Unread        int               `json:"unread"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Notifications) != 1 || body.Unread != 1 {
		t.Fatalf("expected one unread notification, got %d/%d", len(body.Notifications), body.Unread)
	}
}

func TestAdminRoutesNeedAdminRole(t *testing.T) {
	r, token := newRouter(t, "user")
	rr := do(r, http.MethodGet, "/admin/qr", token)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-admin, got %d", rr.Code)
	}
}

func TestSessionRoundTrip(t *testing.T) {
	r, token := newRouter(t, "admin")

	rr := do(r, http.MethodGet, "/session", token)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	rr = do(r, http.MethodDelete, "/session", "")
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for anonymous logout, got %d", rr.Code)
	}

	rr = do(r, http.MethodDelete, "/session", token)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}

	rr = do(r, http.MethodGet, "/session", token)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 after logout, got %d", rr.Code)
	}
}

func TestForgedTokenCannotTakeOverSession(t *testing.T) {
	r, token := newRouter(t, "admin")
	forged, err := auth.GenerateToken("attacker-key", "9", "mallory", "admin", time.Hour)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	login := `{"token":"` + forged + `"}`

	rr := doBody(r, http.MethodPost, "/session", "", login)
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409 while a session is active, got %d", rr.Code)
	}
	rr = do(r, http.MethodGet, "/admin/orders", forged)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for forged bearer, got %d", rr.Code)
	}

	// Even with the console logged out, the backend has to vouch for the token.
	rr = do(r, http.MethodDelete, "/session", token)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
	rr = doBody(r, http.MethodPost, "/session", "", login)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for a token the backend rejects, got %d", rr.Code)
	}
	rr = do(r, http.MethodGet, "/admin/orders", forged)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 after rejected login, got %d", rr.Code)
	}
}
