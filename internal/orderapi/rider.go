package orderapi

import (
	"context"
	"net/http"

	"github.com/fruitshop/orderdesk/internal/order"
)

// ConfirmResult is a successful rider token exchange.
type ConfirmResult struct {
	Message string
	Order   *order.Order
}

// ConfirmDeliveryQR exchanges a rider's single-use QR token. The call is
// unauthenticated: possession of the token is the credential. Success
// requires a 2xx answer with success:true; anything else is a *RequestError.
func (c *Client) ConfirmDeliveryQR(ctx context.Context, token string) (*ConfirmResult, error) {
	if c.baseURL == "" {
		return nil, ErrNotConfigured
	}

	body := map[string]string{"qrToken": token}
	env, err := c.call(ctx, http.MethodPost, "/api/orders/confirm-delivery/qr", "", body, "Failed to confirm delivery")
	if err != nil {
		return nil, err
	}
	if env.Success == nil || !*env.Success {
		msg := env.Message
		if msg == "" {
			msg = "Failed to confirm delivery"
		}
		return nil, &RequestError{StatusCode: http.StatusOK, Message: msg}
	}

	o, err := decodeSingle[order.Order](env)
	if err != nil {
		return nil, err
	}
	return &ConfirmResult{Message: env.Message, Order: o}, nil
}
