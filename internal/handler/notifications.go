package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/fruitshop/orderdesk/internal/notify"
)

// NotificationInbox defines the inbox methods needed by the handlers.
// Satisfied by *notify.Inbox; narrow interface for testability.
type NotificationInbox interface {
	List() []notify.Notification
	UnreadCount() int
	MarkRead(id uuid.UUID) bool
	MarkAllRead()
	Remove(id uuid.UUID) bool
	Clear()
}

// NotificationHandler handles the operator's notification inbox.
type NotificationHandler struct {
	inbox NotificationInbox
}

// NewNotificationHandler creates a new NotificationHandler.
func NewNotificationHandler(inbox NotificationInbox) *NotificationHandler {
	return &NotificationHandler{inbox: inbox}
}

// RegisterRoutes registers notification endpoints.
// Expected to be mounted at /notifications.
func (h *NotificationHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/read-all", h.MarkAllRead)
	r.Post("/{id}/read", h.MarkRead)
	r.Delete("/{id}", h.Remove)
	r.Delete("/", h.Clear)
}

type notificationListResponse struct {
	Notifications []notify.Notification `json:"notifications"`
	Unread        int                   `json:"unread"`
}

// List handles GET /notifications.
func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, notificationListResponse{
		Notifications: h.inbox.List(),
		Unread:        h.inbox.UnreadCount(),
	})
}

// MarkRead handles POST /notifications/{id}/read.
func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid notification ID"})
		return
	}
	if !h.inbox.MarkRead(id) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "notification not found"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// MarkAllRead handles POST /notifications/read-all.
func (h *NotificationHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	h.inbox.MarkAllRead()
	w.WriteHeader(http.StatusNoContent)
}

// Remove handles DELETE /notifications/{id}.
func (h *NotificationHandler) Remove(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid notification ID"})
		return
	}
	if !h.inbox.Remove(id) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "notification not found"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Clear handles DELETE /notifications.
func (h *NotificationHandler) Clear(w http.ResponseWriter, r *http.Request) {
	h.inbox.Clear()
	w.WriteHeader(http.StatusNoContent)
}
