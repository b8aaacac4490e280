package orderapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/fruitshop/orderdesk/internal/logger"
	"github.com/fruitshop/orderdesk/internal/order"
)

// Result is the decoded answer of a successful write.
type Result struct {
	Message string
	// Order is the updated order when the backend echoes it back.
	Order *order.Order
}

// DeliveryData is the manual delivery confirmation payload.
type DeliveryData struct {
	DeliveryImage   string `json:"delivery_image"`
	DeliveryDate    string `json:"delivery_date"`
	DeliveryTime    string `json:"delivery_time"`
	SenderName      string `json:"sender_name"`
	ReceiverName    string `json:"receiver_name"`
	ReceiverPhone   string `json:"receiver_phone"`
	ReceiverAddress string `json:"receiver_address"`
}

// DispatchResult is the answer of a QR dispatch.
type DispatchResult struct {
	QRURL string
	Order *order.Order
}

// FetchAllOrders lists every order (admin). Never nil; empty on any failure.
func (c *Client) FetchAllOrders(ctx context.Context) []order.Order {
	return c.fetchOrders(ctx, "/api/orders/all", "fetch all orders")
}

// FetchUserOrders lists the session user's orders. Never nil; empty on any failure.
func (c *Client) FetchUserOrders(ctx context.Context) []order.Order {
	return c.fetchOrders(ctx, "/api/orders/my-orders", "fetch user orders")
}

// FetchOrderByID returns one order, or nil when it cannot be loaded for any reason.
func (c *Client) FetchOrderByID(ctx context.Context, id order.ID) *order.Order {
	env, ok := c.read(ctx, orderPath(id.String(), ""), "fetch order")
	if !ok {
		return nil
	}
	o, err := decodeSingle[order.Order](env)
	if err != nil {
		c.log.Error("fetch order: bad payload", logger.String("order_id", id.String()), logger.Error(err))
		return nil
	}
	return o
}

// UpdateOrderStatus asks the backend to move the order to status.
// Legality is enforced by the backend.
func (c *Client) UpdateOrderStatus(ctx context.Context, id order.ID, status string) (*Result, error) {
	body := map[string]string{"status": status}
	env, err := c.write(ctx, http.MethodPut, orderPath(id.String(), "/status"), body, "Failed to update order status")
	if err != nil {
		return nil, err
	}
	return c.result(env), nil
}

// UploadDeliveryConfirmation records a manual photo confirmation; the
// backend marks the order shipped.
func (c *Client) UploadDeliveryConfirmation(ctx context.Context, id order.ID, data DeliveryData) (*Result, error) {
	env, err := c.write(ctx, http.MethodPost, orderPath(id.String(), "/delivery-confirmation"), data, "Failed to upload delivery confirmation")
	if err != nil {
		return nil, err
	}
	return c.result(env), nil
}

// DispatchOrderWithQR moves the order to delivering and mints a rider token.
func (c *Client) DispatchOrderWithQR(ctx context.Context, id order.ID) (*DispatchResult, error) {
	env, err := c.write(ctx, http.MethodPost, orderPath(id.String(), "/dispatch-qr"), nil, "Failed to dispatch order with QR")
	if err != nil {
		return nil, err
	}

	p, err := env.payload()
	if err != nil {
		return nil, err
	}
	res := &DispatchResult{QRURL: env.QRURL}
	if p.QRURL != "" {
		res.QRURL = p.QRURL
	}

	raw := p.single()
	if raw == nil && present(env.Order) {
		raw = env.Order
	}
	if raw != nil {
		var o order.Order
		if err := json.Unmarshal(raw, &o); err != nil {
			return nil, fmt.Errorf("decode dispatched order: %w", err)
		}
		res.Order = &o
	}
	return res, nil
}

// --- Helpers ---

func (c *Client) fetchOrders(ctx context.Context, path, op string) []order.Order {
	orders := []order.Order{}
	env, ok := c.read(ctx, path, op)
	if !ok {
		return orders
	}
	list, err := decodeList[order.Order](env)
	if err != nil {
		c.log.Error(op+": bad payload", logger.String("path", path), logger.Error(err))
		return orders
	}
	return list
}

func (c *Client) result(env *envelope) *Result {
	res := &Result{Message: env.Message}
	o, err := decodeSingle[order.Order](env)
	if err != nil {
		c.log.Warn("write succeeded with unreadable order payload", logger.Error(err))
		return res
	}
	res.Order = o
	return res
}

func decodeList[T any](env *envelope) ([]T, error) {
	p, err := env.payload()
	if err != nil {
		return []T{}, err
	}
	raw := p.collection()
	if raw == nil {
		return []T{}, nil
	}
	var list []T
	if err := json.Unmarshal(raw, &list); err != nil {
		return []T{}, fmt.Errorf("decode list: %w", err)
	}
	if list == nil {
		list = []T{}
	}
	return list, nil
}

func decodeSingle[T any](env *envelope) (*T, error) {
	p, err := env.payload()
	if err != nil {
		return nil, err
	}
	raw := p.single()
	if raw == nil {
		return nil, nil
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("decode item: %w", err)
	}
	return &v, nil
}
