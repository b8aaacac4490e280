package handler

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/fruitshop/orderdesk/internal/bills"
	"github.com/fruitshop/orderdesk/internal/logger"
	"github.com/fruitshop/orderdesk/internal/order"
)

// BillViewer defines the customer bill methods.
// Satisfied by *bills.Viewer; narrow interface for testability.
type BillViewer interface {
	MyOrders(ctx context.Context) ([]order.Order, error)
	MyInvoices(ctx context.Context) ([]order.Invoice, error)
	Invoice(ctx context.Context, id order.ID) (*order.Invoice, error)
	BillView(ctx context.Context, orderID order.ID) (*bills.Bill, error)
	DownloadPDF(ctx context.Context, id order.ID, w io.Writer) (int64, error)
}

// BillHandler handles the customer's own orders and invoices.
type BillHandler struct {
	viewer BillViewer
	log    logger.Logger
}

// NewBillHandler creates a new BillHandler.
func NewBillHandler(viewer BillViewer, log logger.Logger) *BillHandler {
	return &BillHandler{viewer: viewer, log: log}
}

// RegisterRoutes registers bill endpoints.
// Expected to be mounted inside a session-scoped subrouter: /me
func (h *BillHandler) RegisterRoutes(r chi.Router) {
	r.Get("/orders", h.Orders)
	r.Get("/orders/{id}/bill", h.Bill)
	r.Get("/invoices", h.Invoices)
	r.Get("/invoices/{id}", h.Invoice)
	r.Get("/invoices/{id}/pdf", h.PDF)
}

// --- Handlers ---

// Orders handles GET /me/orders.
func (h *BillHandler) Orders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.viewer.MyOrders(r.Context())
	if err != nil {
		writeError(w, h.log, "list my orders", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"orders": orders})
}

// Invoices handles GET /me/invoices.
func (h *BillHandler) Invoices(w http.ResponseWriter, r *http.Request) {
	invoices, err := h.viewer.MyInvoices(r.Context())
	if err != nil {
		writeError(w, h.log, "list my invoices", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"invoices": invoices})
}

// Invoice handles GET /me/invoices/{id}.
func (h *BillHandler) Invoice(w http.ResponseWriter, r *http.Request) {
	inv, err := h.viewer.Invoice(r.Context(), orderID(r))
	if err != nil {
		writeError(w, h.log, "load invoice", err)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}

// Bill handles GET /me/orders/{id}/bill.
func (h *BillHandler) Bill(w http.ResponseWriter, r *http.Request) {
	bill, err := h.viewer.BillView(r.Context(), orderID(r))
	if err != nil {
		writeError(w, h.log, "load bill", err)
		return
	}
	writeJSON(w, http.StatusOK, bill)
}

// PDF handles GET /me/invoices/{id}/pdf.
func (h *BillHandler) PDF(w http.ResponseWriter, r *http.Request) {
	streamPDF(w, r, h.log, orderID(r), h.viewer.DownloadPDF)
}

// --- Helpers ---

type pdfDownloader func(ctx context.Context, id order.ID, w io.Writer) (int64, error)

// streamPDF buffers the download so a backend failure can still be
// reported as JSON.
func streamPDF(w http.ResponseWriter, r *http.Request, log logger.Logger, id order.ID, download pdfDownloader) {
	var buf bytes.Buffer
	n, err := download(r.Context(), id, &buf)
	if err != nil {
		writeError(w, log, "download invoice pdf", err)
		return
	}

	name := r.URL.Query().Get("number")
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="`+order.PDFFilename(name)+`"`)
	w.Header().Set("Content-Length", strconv.FormatInt(n, 10))
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}
