// Package rider handles the page a rider's phone opens after scanning a
// delivery QR: one unauthenticated token exchange, one outcome.
package rider

import (
	"context"
	"errors"
	"strings"

	"github.com/fruitshop/orderdesk/internal/enum"
	"github.com/fruitshop/orderdesk/internal/logger"
	"github.com/fruitshop/orderdesk/internal/orderapi"
)

const (
	MsgInvalidCode  = "Invalid QR code"
	MsgFailed       = "Failed to confirm delivery"
	MsgNetworkError = "Network error"

	// ActionBackHome is the only recovery offered after any outcome.
	ActionBackHome = "back_home"
)

// State of a confirmation. The zero value is pending.
type State int

const (
	StatePending State = iota
	StateSuccess
	StateFailure
)

func (s State) String() string {
	switch s {
	case StateSuccess:
		return enum.RiderStateSuccess
	case StateFailure:
		return enum.RiderStateFailure
	default:
		return enum.RiderStatePending
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Outcome is what the rider sees.
type Outcome struct {
	State       State  `json:"state"`
	OrderNumber string `json:"order_number,omitempty"`
	Recipient   string `json:"recipient,omitempty"`
	TotalAmount string `json:"total_amount,omitempty"`
	Message     string `json:"message,omitempty"`
	Action      string `json:"action"`
}

// Confirmer exchanges a rider token with the backend.
// Satisfied by *orderapi.Client; narrow interface for testability.
type Confirmer interface {
	ConfirmDeliveryQR(ctx context.Context, token string) (*orderapi.ConfirmResult, error)
}

type Consumer struct {
	client Confirmer
	log    logger.Logger
}

func NewConsumer(client Confirmer, log logger.Logger) *Consumer {
	return &Consumer{client: client, log: log}
}

// Confirm exchanges token once. There is no retry: a used or expired token
// fails permanently.
func (c *Consumer) Confirm(ctx context.Context, token string) Outcome {
	token = strings.TrimSpace(token)
	if token == "" {
		return failure(MsgInvalidCode)
	}

	res, err := c.client.ConfirmDeliveryQR(ctx, token)
	if err != nil {
		var reqErr *orderapi.RequestError
		if errors.As(err, &reqErr) {
			c.log.Info("rider confirmation rejected", logger.Int("status", reqErr.StatusCode), logger.String("message", reqErr.Message))
			msg := reqErr.Message
			if msg == "" {
				msg = MsgFailed
			}
			return failure(msg)
		}
		c.log.Warn("rider confirmation unreachable", logger.Error(err))
		return failure(MsgNetworkError)
	}

	out := Outcome{State: StateSuccess, Message: res.Message, Action: ActionBackHome}
	if res.Order != nil {
		out.OrderNumber = res.Order.OrderNumber
		out.Recipient = res.Order.DisplayName()
		out.TotalAmount = res.Order.TotalAmount.String()
	}
	return out
}

func failure(msg string) Outcome {
	return Outcome{State: StateFailure, Message: msg, Action: ActionBackHome}
}
