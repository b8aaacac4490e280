package orderapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fruitshop/orderdesk/internal/auth"
	"github.com/fruitshop/orderdesk/internal/logger"
	"github.com/fruitshop/orderdesk/internal/order"
	"github.com/fruitshop/orderdesk/internal/orderapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Helpers ---

func newSession(t *testing.T) *auth.Session {
	t.Helper()
	token, err := auth.GenerateToken("backend", "1", "admin", "admin", time.Hour)
	require.NoError(t, err)
	s, err := auth.NewSessionWithToken("", token)
	require.NoError(t, err)
	return s
}

func newClient(t *testing.T, h http.HandlerFunc) *orderapi.Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return orderapi.NewClient(srv.URL, newSession(t), logger.NewNop(), orderapi.WithHTTPClient(srv.Client()))
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// --- Reads ---

func TestFetchAllOrders(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/orders/all", r.URL.Path)
		assert.Contains(t, r.Header.Get("Authorization"), "Bearer ")
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"data": map[string]interface{}{
				"orders": []map[string]interface{}{
					{"id": 42, "order_number": "F-1001", "status": "completed", "total_amount": "350"},
					{"id": "43", "order_number": "F-1002", "status": "paid", "total_amount": 99.5},
				},
			},
		})
	})

	orders := c.FetchAllOrders(context.Background())
	require.Len(t, orders, 2)
	assert.Equal(t, order.ID("42"), orders[0].ID)
	assert.Equal(t, "99.50", orders[1].TotalAmount.String())
}

func TestFetchUserOrdersFallsBackToInvoices(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/orders/my-orders", r.URL.Path)
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"data": map[string]interface{}{
				"invoices": []map[string]interface{}{{"id": 1, "order_number": "F-1"}},
			},
		})
	})

	orders := c.FetchUserOrders(context.Background())
	require.Len(t, orders, 1)
	assert.Equal(t, "F-1", orders[0].OrderNumber)
}

func TestFetchAllOrdersFailsOpen(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"server error", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"message": "db down"})
		}},
		{"malformed body", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("<html>"))
		}},
		{"missing collection", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]interface{}{"data": map[string]interface{}{}})
		}},
		{"null collection", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"data":{"orders":null}}`))
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newClient(t, tt.handler)
			orders := c.FetchAllOrders(context.Background())
			require.NotNil(t, orders)
			assert.Empty(t, orders)
		})
	}
}

func TestReadsWithoutSessionMakeNoRequest(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer srv.Close()

	c := orderapi.NewClient(srv.URL, auth.NewSession(""), logger.NewNop())

	assert.Empty(t, c.FetchAllOrders(context.Background()))
	assert.Nil(t, c.FetchOrderByID(context.Background(), "42"))
	assert.Empty(t, c.FetchMyInvoices(context.Background()))
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
}

func TestFetchAllOrdersTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := orderapi.NewClient(url, newSession(t), logger.NewNop())
	orders := c.FetchAllOrders(context.Background())
	require.NotNil(t, orders)
	assert.Empty(t, orders)
}

func TestFetchOrderByID(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/orders/42":
			writeJSON(w, http.StatusOK, map[string]interface{}{
				"data": map[string]interface{}{
					"order": map[string]interface{}{"id": 42, "status": "shipped", "order_status": "delivering"},
				},
			})
		default:
			writeJSON(w, http.StatusNotFound, map[string]string{"message": "Order not found"})
		}
	})

	o := c.FetchOrderByID(context.Background(), "42")
	require.NotNil(t, o)
	assert.Equal(t, "delivering", o.EffectiveStatus())

	assert.Nil(t, c.FetchOrderByID(context.Background(), "404"))
}

// --- Writes ---

func TestUpdateOrderStatus(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/api/orders/42/status", r.URL.Path)
		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "preparing", body["status"])
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"message": "updated",
			"data":    map[string]interface{}{"order": map[string]interface{}{"id": 42, "status": "preparing"}},
		})
	})

	res, err := c.UpdateOrderStatus(context.Background(), "42", "preparing")
	require.NoError(t, err)
	assert.Equal(t, "updated", res.Message)
	require.NotNil(t, res.Order)
	assert.Equal(t, "preparing", res.Order.Status)
}

func TestWritesRequireSession(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer srv.Close()

	loggedOut := orderapi.NewClient(srv.URL, auth.NewSession(""), logger.NewNop())
	noURL := orderapi.NewClient("", newSession(t), logger.NewNop())

	for _, c := range []*orderapi.Client{loggedOut, noURL} {
		_, err := c.UpdateOrderStatus(context.Background(), "42", "received")
		assert.ErrorIs(t, err, orderapi.ErrAuthRequired)
		_, err = c.UploadDeliveryConfirmation(context.Background(), "42", orderapi.DeliveryData{})
		assert.ErrorIs(t, err, orderapi.ErrAuthRequired)
		_, err = c.DispatchOrderWithQR(context.Background(), "42")
		assert.ErrorIs(t, err, orderapi.ErrAuthRequired)
	}
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
}

func TestWriteErrorsCarryServerMessage(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/orders/1/status" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"message": "Invalid status transition"})
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := c.UpdateOrderStatus(context.Background(), "1", "paid")
	var reqErr *orderapi.RequestError
	require.True(t, errors.As(err, &reqErr))
	assert.Equal(t, http.StatusBadRequest, reqErr.StatusCode)
	assert.Equal(t, "Invalid status transition", reqErr.Message)

	_, err = c.DispatchOrderWithQR(context.Background(), "2")
	require.True(t, errors.As(err, &reqErr))
	assert.Equal(t, "Failed to dispatch order with QR", reqErr.Message)
	assert.Equal(t, "Failed to dispatch order with QR", orderapi.MessageOf(err))
}

func TestWriteTransportErrorPropagates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := orderapi.NewClient(url, newSession(t), logger.NewNop())
	_, err := c.UpdateOrderStatus(context.Background(), "1", "received")
	require.Error(t, err)
	var reqErr *orderapi.RequestError
	assert.False(t, errors.As(err, &reqErr))
}

func TestUploadDeliveryConfirmation(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/orders/42/delivery-confirmation", r.URL.Path)
		var body orderapi.DeliveryData
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "data:image/png;base64,AAAA", body.DeliveryImage)
		assert.Equal(t, "Rider A", body.SenderName)
		assert.Equal(t, "Somchai Jaidee", body.ReceiverName)
		writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
	})

	_, err := c.UploadDeliveryConfirmation(context.Background(), "42", orderapi.DeliveryData{
		DeliveryImage: "data:image/png;base64,AAAA",
		DeliveryDate:  "2024-05-01",
		DeliveryTime:  "14:30",
		SenderName:    "Rider A",
		ReceiverName:  "Somchai Jaidee",
	})
	require.NoError(t, err)
}

func TestDispatchOrderWithQR(t *testing.T) {
	tests := []struct {
		name string
		body map[string]interface{}
	}{
		{"nested under data", map[string]interface{}{
			"data": map[string]interface{}{
				"qr_url": "https://app/delivery-confirm/abc123",
				"order":  map[string]interface{}{"id": 42, "status": "delivering", "delivery_qr_code": "abc123"},
			},
		}},
		{"top level", map[string]interface{}{
			"qr_url": "https://app/delivery-confirm/abc123",
			"order":  map[string]interface{}{"id": 42, "status": "delivering", "delivery_qr_code": "abc123"},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/api/orders/42/dispatch-qr", r.URL.Path)
				writeJSON(w, http.StatusOK, tt.body)
			})

			res, err := c.DispatchOrderWithQR(context.Background(), "42")
			require.NoError(t, err)
			assert.Equal(t, "https://app/delivery-confirm/abc123", res.QRURL)
			require.NotNil(t, res.Order)
			assert.Equal(t, "abc123", res.Order.DeliveryQRCode)
		})
	}
}

// --- Rider exchange ---

func TestConfirmDeliveryQRIsUnauthenticated(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		assert.Empty(t, r.Header.Get("Authorization"))
		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "abc123", body["qrToken"])
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"data": map[string]interface{}{
				"order": map[string]interface{}{"id": 42, "order_number": "F-1001", "username": "somchai", "total_amount": "350"},
			},
		})
	}))
	defer srv.Close()

	// No session at all: the token is the credential.
	c := orderapi.NewClient(srv.URL, nil, logger.NewNop())
	res, err := c.ConfirmDeliveryQR(context.Background(), "abc123")
	require.NoError(t, err)
	require.NotNil(t, res.Order)
	assert.Equal(t, "F-1001", res.Order.OrderNumber)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestConfirmDeliveryQRFailures(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    map[string]interface{}
		wantMsg string
	}{
		{"already used", http.StatusBadRequest, map[string]interface{}{"success": false, "message": "QR code already used"}, "QR code already used"},
		{"ok without success flag", http.StatusOK, map[string]interface{}{"message": "token expired"}, "token expired"},
		{"no message", http.StatusGone, map[string]interface{}{}, "Failed to confirm delivery"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, tt.status, tt.body)
			})
			_, err := c.ConfirmDeliveryQR(context.Background(), "abc123")
			var reqErr *orderapi.RequestError
			require.True(t, errors.As(err, &reqErr))
			assert.Equal(t, tt.wantMsg, reqErr.Message)
		})
	}
}

// --- Invoices ---

func TestInvoiceReads(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/invoices/my-invoices":
			writeJSON(w, http.StatusOK, map[string]interface{}{
				"data": map[string]interface{}{"invoices": []map[string]interface{}{{"id": 5, "invoice_number": "INV-5"}}},
			})
		case "/api/invoices/order/42":
			writeJSON(w, http.StatusOK, map[string]interface{}{
				"data": map[string]interface{}{"invoice": map[string]interface{}{"id": 5, "invoice_number": "INV-5", "total_amount": 350}},
			})
		case "/api/invoices/5":
			writeJSON(w, http.StatusOK, map[string]interface{}{"data": map[string]interface{}{}})
		default:
			writeJSON(w, http.StatusNotFound, map[string]string{"message": "Invoice not found"})
		}
	})

	invoices := c.FetchMyInvoices(context.Background())
	require.Len(t, invoices, 1)
	assert.Equal(t, "INV-5", invoices[0].InvoiceNumber)

	inv, err := c.FetchInvoiceByOrder(context.Background(), "42")
	require.NoError(t, err)
	assert.Equal(t, "350.00", inv.TotalAmount.String())

	_, err = c.FetchInvoice(context.Background(), "5")
	assert.ErrorIs(t, err, orderapi.ErrInvoiceNotFound)

	_, err = c.FetchInvoice(context.Background(), "9")
	assert.Equal(t, "Invoice not found", orderapi.MessageOf(err))
}

func TestDownloadInvoicePDF(t *testing.T) {
	pdf := []byte("%PDF-1.4 fake")
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.Header.Get("Authorization"), "Bearer ")
		if r.URL.Path == "/api/invoices/5/download" {
			w.Header().Set("Content-Type", "application/pdf")
			w.Write(pdf)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	})

	var buf bytes.Buffer
	n, err := c.DownloadInvoicePDF(context.Background(), "5", &buf)
	require.NoError(t, err)
	assert.Equal(t, int64(len(pdf)), n)
	assert.Equal(t, pdf, buf.Bytes())

	_, err = c.DownloadInvoicePDF(context.Background(), "6", io.Discard)
	assert.Equal(t, "Error: 404", orderapi.MessageOf(err))
}

func TestVerifyToken(t *testing.T) {
	var seen atomic.Value
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/orders/my-orders", r.URL.Path)
		seen.Store(r.Header.Get("Authorization"))
		if r.Header.Get("Authorization") != "Bearer live" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Invalid token"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"data": map[string]interface{}{"orders": []interface{}{}}})
	})

	require.NoError(t, c.VerifyToken(context.Background(), "live"))
	assert.Equal(t, "Bearer live", seen.Load())

	err := c.VerifyToken(context.Background(), "forged")
	var reqErr *orderapi.RequestError
	require.True(t, errors.As(err, &reqErr))
	assert.True(t, reqErr.Unauthorized())
	assert.Equal(t, "Invalid token", reqErr.Message)
}

func TestVerifyTokenWithoutBackend(t *testing.T) {
	c := orderapi.NewClient("", nil, logger.NewNop())
	assert.ErrorIs(t, c.VerifyToken(context.Background(), "live"), orderapi.ErrNotConfigured)
}
