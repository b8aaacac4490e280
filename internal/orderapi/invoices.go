package orderapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/fruitshop/orderdesk/internal/logger"
	"github.com/fruitshop/orderdesk/internal/order"
)

// ErrInvoiceNotFound is returned when the backend answers without an invoice.
var ErrInvoiceNotFound = errors.New("invoice not found")

// FetchMyInvoices lists the session user's invoices. Never nil; empty on any failure.
func (c *Client) FetchMyInvoices(ctx context.Context) []order.Invoice {
	invoices := []order.Invoice{}
	env, ok := c.read(ctx, "/api/invoices/my-invoices", "fetch my invoices")
	if !ok {
		return invoices
	}
	list, err := decodeList[order.Invoice](env)
	if err != nil {
		c.log.Error("fetch my invoices: bad payload", logger.Error(err))
		return invoices
	}
	return list
}

// FetchInvoice loads one invoice by its id.
func (c *Client) FetchInvoice(ctx context.Context, id order.ID) (*order.Invoice, error) {
	return c.fetchInvoice(ctx, invoicePath(id.String(), ""))
}

// FetchInvoiceByOrder loads the invoice generated for an order.
func (c *Client) FetchInvoiceByOrder(ctx context.Context, orderID order.ID) (*order.Invoice, error) {
	return c.fetchInvoice(ctx, "/api/invoices/order/"+url.PathEscape(orderID.String()))
}

// DownloadInvoicePDF streams the invoice PDF into w and returns the byte count.
func (c *Client) DownloadInvoicePDF(ctx context.Context, id order.ID, w io.Writer) (int64, error) {
	token, err := c.bearer()
	if err != nil {
		return 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+invoicePath(id.String(), "/download"), nil)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/pdf")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("download invoice: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		env := &envelope{}
		msg := statusMessage(resp.StatusCode)
		if decodeBody(raw, env) == nil && env.Message != "" {
			msg = env.Message
		}
		return 0, &RequestError{StatusCode: resp.StatusCode, Message: msg}
	}

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, fmt.Errorf("write invoice pdf: %w", err)
	}
	return n, nil
}

func (c *Client) fetchInvoice(ctx context.Context, path string) (*order.Invoice, error) {
	token, err := c.bearer()
	if err != nil {
		return nil, err
	}
	env, err := c.call(ctx, http.MethodGet, path, token, nil, "Failed to load invoice")
	if err != nil {
		return nil, err
	}
	inv, err := decodeSingle[order.Invoice](env)
	if err != nil {
		return nil, err
	}
	if inv == nil {
		return nil, ErrInvoiceNotFound
	}
	return inv, nil
}
