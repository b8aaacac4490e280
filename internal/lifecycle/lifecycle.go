// Package lifecycle holds the order state machine as the console sees it:
// which statuses exist, which successors an operator is offered, and how a
// requested status is carried out. The backend owns legality.
package lifecycle

import (
	"fmt"

	"github.com/fruitshop/orderdesk/internal/enum"
)

// Action is how a requested status change is carried out.
type Action int

const (
	// ActionReject means the target is not a known status.
	ActionReject Action = iota
	// ActionUpdateStatus is a plain status-update call.
	ActionUpdateStatus
	// ActionConfirmDelivery opens the photo confirmation workflow; the
	// status becomes shipped only when that workflow succeeds.
	ActionConfirmDelivery
	// ActionDispatchQR mints a rider QR; the status becomes delivering only
	// after the backend confirms.
	ActionDispatchQR
)

func (a Action) String() string {
	switch a {
	case ActionUpdateStatus:
		return "update_status"
	case ActionConfirmDelivery:
		return "confirm_delivery"
	case ActionDispatchQR:
		return "dispatch_qr"
	default:
		return "reject"
	}
}

// ordered is the happy path; delivering sits between completed and shipped
// on the QR path.
var ordered = []string{
	enum.OrderStatusPaid,
	enum.OrderStatusReceived,
	enum.OrderStatusPreparing,
	enum.OrderStatusCompleted,
	enum.OrderStatusDelivering,
	enum.OrderStatusShipped,
}

// allowedTransitions defines the successors offered to an operator.
// Key is current status, value is the set of statuses it can move to.
var allowedTransitions = map[string][]string{
	enum.OrderStatusPaid:       {enum.OrderStatusReceived, enum.OrderStatusPreparing, enum.OrderStatusCompleted},
	enum.OrderStatusReceived:   {enum.OrderStatusPreparing, enum.OrderStatusCompleted},
	enum.OrderStatusPreparing:  {enum.OrderStatusCompleted},
	enum.OrderStatusCompleted:  {enum.OrderStatusShipped, enum.OrderStatusDelivering},
	enum.OrderStatusDelivering: {enum.OrderStatusShipped},
}

var labels = map[string]string{
	enum.OrderStatusPaid:       "Paid",
	enum.OrderStatusReceived:   "Order received",
	enum.OrderStatusPreparing:  "Preparing",
	enum.OrderStatusCompleted:  "Ready to ship",
	enum.OrderStatusDelivering: "Out for delivery",
	enum.OrderStatusShipped:    "Delivered",
}

// Statuses returns every known status in lifecycle order.
func Statuses() []string {
	out := make([]string, len(ordered))
	copy(out, ordered)
	return out
}

// Valid reports whether s is a known status.
func Valid(s string) bool {
	_, ok := labels[s]
	return ok
}

// IsTerminal reports whether no transition leaves s.
func IsTerminal(s string) bool {
	return s == enum.OrderStatusShipped
}

// Label is the operator-facing name of s; unknown values are shown as-is.
func Label(s string) string {
	if l, ok := labels[s]; ok {
		return l
	}
	return s
}

// Transitions returns the successors offered from s. Advisory only.
func Transitions(from string) []string {
	next := allowedTransitions[from]
	out := make([]string, len(next))
	copy(out, next)
	return out
}

// CanTransition reports whether to is an offered successor of from.
func CanTransition(from, to string) bool {
	for _, s := range allowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// ValidateTransition explains why from -> to is not on the happy path.
func ValidateTransition(from, to string) error {
	if _, ok := allowedTransitions[from]; !ok {
		return fmt.Errorf("cannot transition from %s", from)
	}
	if !CanTransition(from, to) {
		return fmt.Errorf("cannot transition from %s to %s", from, to)
	}
	return nil
}

// Route decides how an operator's request to move an order to target is
// carried out. It does not check the current status.
func Route(target string) Action {
	switch target {
	case enum.OrderStatusShipped:
		return ActionConfirmDelivery
	case enum.OrderStatusDelivering:
		return ActionDispatchQR
	}
	if Valid(target) {
		return ActionUpdateStatus
	}
	return ActionReject
}
