package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fruitshop/orderdesk/internal/dashboard"
	"github.com/fruitshop/orderdesk/internal/delivery"
	"github.com/fruitshop/orderdesk/internal/dispatch"
	"github.com/fruitshop/orderdesk/internal/journal"
	"github.com/fruitshop/orderdesk/internal/lifecycle"
	"github.com/fruitshop/orderdesk/internal/logger"
	"github.com/fruitshop/orderdesk/internal/order"
)

// OrderBoard defines the dashboard methods needed by the admin handlers.
// Satisfied by *dashboard.Dashboard; narrow interface for testability.
type OrderBoard interface {
	Reload(ctx context.Context) error
	Filter(status, query string) []order.Order
	Summary() dashboard.Summary
	LoadedAt() time.Time
	Slip(ctx context.Context, id order.ID) (*order.Order, error)
	Lookup(ctx context.Context, id order.ID) (*order.Order, error)
	ChangeStatus(ctx context.Context, id order.ID, target string) (*dashboard.ChangeResult, error)
	Dispatch(ctx context.Context, o order.Order) error
	OpenDelivery(o order.Order) *delivery.Workflow
}

// QRSurface defines the QR dispatch controls.
// Satisfied by *dispatch.Manager; narrow interface for testability.
type QRSurface interface {
	Surface() dispatch.Surface
	Reopen(ctx context.Context, o order.Order) error
	Close()
}

// JournalReader lists dispatch journal entries.
// Satisfied by journal.Store implementations; narrow interface for testability.
type JournalReader interface {
	ListByOrder(ctx context.Context, orderID string) ([]journal.Entry, error)
}

// InvoiceDownloader streams invoice PDFs.
// Satisfied by *orderapi.Client; narrow interface for testability.
type InvoiceDownloader interface {
	DownloadInvoicePDF(ctx context.Context, id order.ID, w io.Writer) (int64, error)
}

// AdminOrderHandler handles the admin order dashboard endpoints.
type AdminOrderHandler struct {
	board    OrderBoard
	qr       QRSurface
	journal  JournalReader
	invoices InvoiceDownloader
	maxPhoto int
	log      logger.Logger
}

// NewAdminOrderHandler creates a new AdminOrderHandler. maxPhoto bounds the
// multipart photo upload.
func NewAdminOrderHandler(board OrderBoard, qr QRSurface, jr JournalReader, invoices InvoiceDownloader, maxPhoto int, log logger.Logger) *AdminOrderHandler {
	if maxPhoto <= 0 {
		maxPhoto = delivery.DefaultMaxPhotoBytes
	}
	return &AdminOrderHandler{board: board, qr: qr, journal: jr, invoices: invoices, maxPhoto: maxPhoto, log: log}
}

// RegisterRoutes registers admin endpoints.
// Expected to be mounted inside an admin-only subrouter: /admin
func (h *AdminOrderHandler) RegisterRoutes(r chi.Router) {
	r.Get("/orders", h.List)
	r.Post("/orders/reload", h.Reload)
	r.Get("/orders/{id}/slip", h.Slip)
	r.Put("/orders/{id}/status", h.UpdateStatus)
	r.Post("/orders/{id}/delivery-confirmation", h.ConfirmDelivery)
	r.Post("/orders/{id}/delivery-confirmation/qr", h.ConfirmDeliveryViaQR)
	r.Post("/orders/{id}/dispatch-qr", h.DispatchQR)
	r.Post("/orders/{id}/qr/reopen", h.ReopenQR)
	r.Get("/orders/{id}/journal", h.Journal)
	r.Get("/qr", h.GetQR)
	r.Get("/qr.png", h.QRImage)
	r.Delete("/qr", h.CloseQR)
	r.Get("/invoices/{id}/pdf", h.InvoicePDF)
}

// --- Request / Response types ---

// orderRow is one list entry with the statuses the operator may pick next.
type orderRow struct {
	order.Order
	NextStatuses []string `json:"next_statuses"`
}

type orderListResponse struct {
	Orders   []orderRow        `json:"orders"`
	Summary  dashboard.Summary `json:"summary"`
	LoadedAt time.Time         `json:"loaded_at"`
}

type slipResponse struct {
	OrderID     order.ID           `json:"order_id"`
	OrderNumber string             `json:"order_number"`
	Username    string             `json:"username"`
	Amount      order.Amount       `json:"amount"`
	Slip        *order.PaymentSlip `json:"payment_slip"`
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

type statusChangeResponse struct {
	Action  string            `json:"action"`
	Order   *order.Order      `json:"order,omitempty"`
	Form    *delivery.Form    `json:"form,omitempty"`
	Surface *dispatch.Surface `json:"surface,omitempty"`
	Warning string            `json:"warning,omitempty"`
}

type deliveryConfirmedResponse struct {
	Message string       `json:"message"`
	Order   *order.Order `json:"order,omitempty"`
}

// --- Handlers ---

// List handles GET /admin/orders.
func (h *AdminOrderHandler) List(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	if status != "" && !lifecycle.Valid(status) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid status filter"})
		return
	}

	orders := h.board.Filter(status, r.URL.Query().Get("q"))
	rows := make([]orderRow, 0, len(orders))
	for _, o := range orders {
		rows = append(rows, orderRow{Order: o, NextStatuses: lifecycle.Transitions(o.DisplayStatus())})
	}

	writeJSON(w, http.StatusOK, orderListResponse{
		Orders:   rows,
		Summary:  h.board.Summary(),
		LoadedAt: h.board.LoadedAt(),
	})
}

// Reload handles POST /admin/orders/reload.
func (h *AdminOrderHandler) Reload(w http.ResponseWriter, r *http.Request) {
	if err := h.board.Reload(r.Context()); err != nil {
		writeError(w, h.log, "reload orders", err)
		return
	}
	h.List(w, r)
}

// Slip handles GET /admin/orders/{id}/slip.
func (h *AdminOrderHandler) Slip(w http.ResponseWriter, r *http.Request) {
	o, err := h.board.Slip(r.Context(), orderID(r))
	if err != nil {
		writeError(w, h.log, "load slip", err)
		return
	}
	writeJSON(w, http.StatusOK, slipResponse{
		OrderID:     o.ID,
		OrderNumber: o.OrderNumber,
		Username:    o.DisplayName(),
		Amount:      o.SlipAmount(),
		Slip:        o.PaymentSlip,
	})
}

// UpdateStatus handles PUT /admin/orders/{id}/status.
// shipped answers 202 with the delivery form to fill in; delivering answers
// with the open QR surface.
func (h *AdminOrderHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.Status == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "status is required"})
		return
	}

	res, err := h.board.ChangeStatus(r.Context(), orderID(r), req.Status)
	if err != nil {
		writeError(w, h.log, "change status", err)
		return
	}

	resp := statusChangeResponse{Action: res.Action.String(), Order: res.Order, Warning: res.Warning}
	switch res.Action {
	case lifecycle.ActionConfirmDelivery:
		form := res.Workflow.Form()
		resp.Form = &form
		writeJSON(w, http.StatusAccepted, resp)
		return
	case lifecycle.ActionDispatchQR:
		surface := h.qr.Surface()
		resp.Surface = &surface
	}
	writeJSON(w, http.StatusOK, resp)
}

// ConfirmDelivery handles POST /admin/orders/{id}/delivery-confirmation.
func (h *AdminOrderHandler) ConfirmDelivery(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, int64(h.maxPhoto)+1<<20)
	if err := r.ParseMultipartForm(int64(h.maxPhoto)); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": delivery.ErrPhotoTooLarge.Error()})
			return
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid multipart form"})
		return
	}

	if r.MultipartForm == nil || len(r.MultipartForm.File["photo"]) == 0 {
		writeError(w, h.log, "confirm delivery", &delivery.ValidationError{Field: "delivery_image", Err: delivery.ErrPhotoRequired})
		return
	}

	o, err := h.board.Lookup(r.Context(), orderID(r))
	if err != nil {
		writeError(w, h.log, "lookup order", err)
		return
	}

	wf := h.board.OpenDelivery(*o)
	if v := r.FormValue("delivery_date"); v != "" {
		wf.SetDate(v)
	}
	if v := r.FormValue("delivery_time"); v != "" {
		wf.SetTime(v)
	}
	wf.SetSender(r.FormValue("sender_name"))

	file, _, err := r.FormFile("photo")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "could not read photo"})
		return
	}
	data, readErr := io.ReadAll(io.LimitReader(file, int64(h.maxPhoto)+1))
	file.Close()
	if readErr != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "could not read photo"})
		return
	}
	if err := wf.AttachPhoto(data); err != nil {
		writeError(w, h.log, "attach photo", err)
		return
	}

	res, err := wf.Submit(r.Context())
	if err != nil {
		writeError(w, h.log, "confirm delivery", err)
		return
	}

	resp := deliveryConfirmedResponse{Message: res.Message, Order: res.Order}
	if resp.Message == "" {
		resp.Message = "Delivery confirmed"
	}
	writeJSON(w, http.StatusOK, resp)
}

// ConfirmDeliveryViaQR handles POST /admin/orders/{id}/delivery-confirmation/qr.
// The operator gives up on the photo and lets the rider confirm by scan.
func (h *AdminOrderHandler) ConfirmDeliveryViaQR(w http.ResponseWriter, r *http.Request) {
	o, err := h.board.Lookup(r.Context(), orderID(r))
	if err != nil {
		writeError(w, h.log, "lookup order", err)
		return
	}

	wf := h.board.OpenDelivery(*o)
	if err := wf.DispatchViaQR(r.Context()); err != nil {
		writeError(w, h.log, "dispatch qr", err)
		return
	}
	writeJSON(w, http.StatusOK, h.qr.Surface())
}

// DispatchQR handles POST /admin/orders/{id}/dispatch-qr.
func (h *AdminOrderHandler) DispatchQR(w http.ResponseWriter, r *http.Request) {
	o, err := h.board.Lookup(r.Context(), orderID(r))
	if err != nil {
		writeError(w, h.log, "lookup order", err)
		return
	}
	if err := h.board.Dispatch(r.Context(), *o); err != nil {
		writeError(w, h.log, "dispatch qr", err)
		return
	}
	writeJSON(w, http.StatusOK, h.qr.Surface())
}

// ReopenQR handles POST /admin/orders/{id}/qr/reopen.
func (h *AdminOrderHandler) ReopenQR(w http.ResponseWriter, r *http.Request) {
	o, err := h.board.Slip(r.Context(), orderID(r))
	if err != nil {
		writeError(w, h.log, "lookup order", err)
		return
	}
	if err := h.qr.Reopen(r.Context(), *o); err != nil {
		writeError(w, h.log, "reopen qr", err)
		return
	}
	writeJSON(w, http.StatusOK, h.qr.Surface())
}

// GetQR handles GET /admin/qr.
func (h *AdminOrderHandler) GetQR(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.qr.Surface())
}

// QRImage handles GET /admin/qr.png.
func (h *AdminOrderHandler) QRImage(w http.ResponseWriter, r *http.Request) {
	surface := h.qr.Surface()
	if !surface.Open {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no QR code is open"})
		return
	}
	png, err := dispatch.RenderPNG(surface.QRURL, 320)
	if err != nil {
		writeError(w, h.log, "render qr", err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	w.Write(png)
}

// CloseQR handles DELETE /admin/qr.
func (h *AdminOrderHandler) CloseQR(w http.ResponseWriter, r *http.Request) {
	h.qr.Close()
	w.WriteHeader(http.StatusNoContent)
}

// Journal handles GET /admin/orders/{id}/journal.
func (h *AdminOrderHandler) Journal(w http.ResponseWriter, r *http.Request) {
	if h.journal == nil {
		writeJSON(w, http.StatusOK, []journal.Entry{})
		return
	}
	entries, err := h.journal.ListByOrder(r.Context(), orderID(r).String())
	if err != nil {
		writeError(w, h.log, "list journal", err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// InvoicePDF handles GET /admin/invoices/{id}/pdf.
func (h *AdminOrderHandler) InvoicePDF(w http.ResponseWriter, r *http.Request) {
	streamPDF(w, r, h.log, orderID(r), h.invoices.DownloadInvoicePDF)
}

// --- Helpers ---

func orderID(r *http.Request) order.ID {
	return order.ID(chi.URLParam(r, "id"))
}
