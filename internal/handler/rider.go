package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fruitshop/orderdesk/internal/rider"
)

// RiderConfirmer exchanges a scanned token.
// Satisfied by *rider.Consumer; narrow interface for testability.
type RiderConfirmer interface {
	Confirm(ctx context.Context, token string) rider.Outcome
}

// RiderHandler serves the page a rider's phone opens after a scan. It is
// public: the token itself is the credential.
type RiderHandler struct {
	consumer RiderConfirmer
}

// NewRiderHandler creates a new RiderHandler.
func NewRiderHandler(consumer RiderConfirmer) *RiderHandler {
	return &RiderHandler{consumer: consumer}
}

// RegisterRoutes registers the rider endpoint.
func (h *RiderHandler) RegisterRoutes(r chi.Router) {
	r.Get("/delivery-confirm/{token}", h.Confirm)
}

// Confirm handles GET /delivery-confirm/{token}.
func (h *RiderHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	out := h.consumer.Confirm(r.Context(), chi.URLParam(r, "token"))
	status := http.StatusOK
	if out.State == rider.StateFailure {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, out)
}
