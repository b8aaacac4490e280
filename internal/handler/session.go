package handler

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fruitshop/orderdesk/internal/auth"
	"github.com/fruitshop/orderdesk/internal/bills"
	"github.com/fruitshop/orderdesk/internal/dashboard"
	"github.com/fruitshop/orderdesk/internal/delivery"
	"github.com/fruitshop/orderdesk/internal/dispatch"
	"github.com/fruitshop/orderdesk/internal/logger"
	"github.com/fruitshop/orderdesk/internal/orderapi"
)

// SessionStore is the console credential.
// Satisfied by *auth.Session; narrow interface for testability.
type SessionStore interface {
	Check(token string) (*auth.Claims, error)
	Login(token string) (*auth.Claims, error)
	Logout()
	Token() string
	Claims() *auth.Claims
	Active() bool
}

// TokenVerifier confirms with the backend that a token is live.
// Satisfied by *orderapi.Client; narrow interface for testability.
type TokenVerifier interface {
	VerifyToken(ctx context.Context, token string) error
}

// SessionHandler handles login, logout and session inspection.
type SessionHandler struct {
	session  SessionStore
	verifier TokenVerifier
	log      logger.Logger
}

// NewSessionHandler creates a new SessionHandler. Every login token is
// checked against the backend through verifier before it is accepted.
func NewSessionHandler(session SessionStore, verifier TokenVerifier, log logger.Logger) *SessionHandler {
	return &SessionHandler{session: session, verifier: verifier, log: log}
}

// RegisterRoutes registers the public session endpoints.
func (h *SessionHandler) RegisterRoutes(r chi.Router) {
	r.Post("/session", h.Login)
}

// RegisterProtectedRoutes registers endpoints that need an active session.
func (h *SessionHandler) RegisterProtectedRoutes(r chi.Router) {
	r.Get("/session", h.Get)
	r.Delete("/session", h.Logout)
}

// --- Request / Response types ---

type loginRequest struct {
	Token string `json:"token"`
}

type sessionResponse struct {
	UserID    string     `json:"user_id"`
	Username  string     `json:"username"`
	Role      string     `json:"role"`
	ExpiresAt *time.Time `json:"expires_at"`
}

// --- Handlers ---

// Login handles POST /session.
// While a session is active only its holder may replace it.
func (h *SessionHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if current := h.session.Token(); current != "" {
		if subtle.ConstantTimeCompare([]byte(presentedToken(r)), []byte(current)) != 1 {
			writeJSON(w, http.StatusConflict, map[string]string{"error": "a console session is already active"})
			return
		}
	}

	if _, err := h.session.Check(req.Token); err != nil {
		writeLoginError(w, err)
		return
	}

	if err := h.verifier.VerifyToken(r.Context(), strings.TrimSpace(req.Token)); err != nil {
		var reqErr *orderapi.RequestError
		if errors.As(err, &reqErr) && reqErr.StatusCode < 500 {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid token"})
			return
		}
		h.log.Error("verify login token failed", logger.Error(err))
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "could not verify token with the backend"})
		return
	}

	claims, err := h.session.Login(req.Token)
	if err != nil {
		writeLoginError(w, err)
		return
	}

	h.log.Info("console login", logger.String("user_id", claims.UserID), logger.String("role", claims.Role))
	writeJSON(w, http.StatusOK, toSessionResponse(claims))
}

// Logout handles DELETE /session.
func (h *SessionHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.session.Logout()
	w.WriteHeader(http.StatusNoContent)
}

// Get handles GET /session.
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	claims := h.session.Claims()
	if claims == nil || !h.session.Active() {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": auth.ErrNoSession.Error()})
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(claims))
}

// --- Helpers ---

func toSessionResponse(c *auth.Claims) sessionResponse {
	resp := sessionResponse{UserID: c.UserID, Username: c.Username, Role: c.Role}
	if c.ExpiresAt != nil {
		t := c.ExpiresAt.Time
		resp.ExpiresAt = &t
	}
	return resp
}

func writeLoginError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, auth.ErrEmptyToken):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, auth.ErrTokenExpired):
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": err.Error()})
	default:
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid token"})
	}
}

// presentedToken is the bearer token of r, or "".
func presentedToken(r *http.Request) string {
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors to HTTP status codes. Unknown errors are
// logged and reported as 500.
func writeError(w http.ResponseWriter, log logger.Logger, op string, err error) {
	var (
		vErr   *delivery.ValidationError
		reqErr *orderapi.RequestError
	)
	switch {
	case errors.As(err, &vErr):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": vErr.Error()})
	case errors.Is(err, dashboard.ErrUnknownStatus):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, dashboard.ErrOrderNotFound),
		errors.Is(err, bills.ErrOrderNotFound),
		errors.Is(err, orderapi.ErrInvoiceNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, auth.ErrNoSession), errors.Is(err, orderapi.ErrAuthRequired):
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": orderapi.MessageOf(err)})
	case errors.Is(err, delivery.ErrClosed),
		errors.Is(err, delivery.ErrInProgress),
		errors.Is(err, dispatch.ErrNoQRCode),
		errors.Is(err, dispatch.ErrNotDelivering):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.Is(err, dispatch.ErrNoQRURL):
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
	case errors.As(err, &reqErr):
		status := http.StatusBadGateway
		if reqErr.NotFound() {
			status = http.StatusNotFound
		}
		writeJSON(w, status, map[string]string{"error": reqErr.Message})
	default:
		log.Error(op+" failed", logger.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
	}
}
