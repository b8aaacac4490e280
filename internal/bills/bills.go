// Package bills is the customer side of the console: a signed-in customer's
// orders, invoices and invoice PDFs.
package bills

import (
	"context"
	"errors"
	"io"

	"golang.org/x/sync/errgroup"

	"github.com/fruitshop/orderdesk/internal/auth"
	"github.com/fruitshop/orderdesk/internal/order"
	"github.com/fruitshop/orderdesk/internal/orderapi"
)

var ErrOrderNotFound = errors.New("order not found")

// Source is the backend surface the viewer reads from.
// Satisfied by *orderapi.Client; narrow interface for testability.
type Source interface {
	FetchUserOrders(ctx context.Context) []order.Order
	FetchOrderByID(ctx context.Context, id order.ID) *order.Order
	FetchMyInvoices(ctx context.Context) []order.Invoice
	FetchInvoice(ctx context.Context, id order.ID) (*order.Invoice, error)
	FetchInvoiceByOrder(ctx context.Context, orderID order.ID) (*order.Invoice, error)
	DownloadInvoicePDF(ctx context.Context, id order.ID, w io.Writer) (int64, error)
}

// Bill is one order together with its invoice, when one exists.
type Bill struct {
	Order       order.Order    `json:"order"`
	Invoice     *order.Invoice `json:"invoice"`
	PDFFilename string         `json:"pdf_filename"`
}

type Viewer struct {
	source  Source
	session *auth.Session
}

func NewViewer(source Source, session *auth.Session) *Viewer {
	return &Viewer{source: source, session: session}
}

// MyOrders lists the customer's orders. Empty on backend failure.
func (v *Viewer) MyOrders(ctx context.Context) ([]order.Order, error) {
	if err := v.requireSession(); err != nil {
		return nil, err
	}
	return v.source.FetchUserOrders(ctx), nil
}

// MyInvoices lists the customer's invoices. Empty on backend failure.
func (v *Viewer) MyInvoices(ctx context.Context) ([]order.Invoice, error) {
	if err := v.requireSession(); err != nil {
		return nil, err
	}
	return v.source.FetchMyInvoices(ctx), nil
}

func (v *Viewer) Invoice(ctx context.Context, id order.ID) (*order.Invoice, error) {
	if err := v.requireSession(); err != nil {
		return nil, err
	}
	return v.source.FetchInvoice(ctx, id)
}

func (v *Viewer) InvoiceForOrder(ctx context.Context, orderID order.ID) (*order.Invoice, error) {
	if err := v.requireSession(); err != nil {
		return nil, err
	}
	return v.source.FetchInvoiceByOrder(ctx, orderID)
}

// BillView loads an order and its invoice concurrently. A missing invoice
// is not an error; the bill is returned without one.
func (v *Viewer) BillView(ctx context.Context, orderID order.ID) (*Bill, error) {
	if err := v.requireSession(); err != nil {
		return nil, err
	}

	var (
		o   *order.Order
		inv *order.Invoice
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		o = v.source.FetchOrderByID(gctx, orderID)
		if o == nil {
			return ErrOrderNotFound
		}
		return nil
	})
	g.Go(func() error {
		found, err := v.source.FetchInvoiceByOrder(gctx, orderID)
		if err != nil {
			if missingInvoice(err) {
				return nil
			}
			return err
		}
		inv = found
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	bill := &Bill{Order: *o, Invoice: inv}
	if inv != nil {
		bill.PDFFilename = inv.PDFFilename()
	} else {
		bill.PDFFilename = order.PDFFilename(o.InvoiceNumber)
	}
	return bill, nil
}

// DownloadPDF streams the invoice PDF into w.
func (v *Viewer) DownloadPDF(ctx context.Context, id order.ID, w io.Writer) (int64, error) {
	if err := v.requireSession(); err != nil {
		return 0, err
	}
	return v.source.DownloadInvoicePDF(ctx, id, w)
}

// --- Helpers ---

func (v *Viewer) requireSession() error {
	if !v.session.Active() {
		return auth.ErrNoSession
	}
	return nil
}

func missingInvoice(err error) bool {
	if errors.Is(err, orderapi.ErrInvoiceNotFound) {
		return true
	}
	var reqErr *orderapi.RequestError
	return errors.As(err, &reqErr) && reqErr.NotFound()
}
