// Package dashboard is the admin order list: a snapshot of every order that
// is only ever replaced whole, plus the status-change orchestration that
// routes each request down the right lifecycle path.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fruitshop/orderdesk/internal/delivery"
	"github.com/fruitshop/orderdesk/internal/enum"
	"github.com/fruitshop/orderdesk/internal/journal"
	"github.com/fruitshop/orderdesk/internal/lifecycle"
	"github.com/fruitshop/orderdesk/internal/logger"
	"github.com/fruitshop/orderdesk/internal/notify"
	"github.com/fruitshop/orderdesk/internal/order"
	"github.com/fruitshop/orderdesk/internal/orderapi"
)

var (
	ErrOrderNotFound = errors.New("order not found")
	ErrUnknownStatus = errors.New("unknown status")
)

// OrderSource is the backend surface the dashboard needs.
// Satisfied by *orderapi.Client; narrow interface for testability.
type OrderSource interface {
	FetchAllOrders(ctx context.Context) []order.Order
	FetchOrderByID(ctx context.Context, id order.ID) *order.Order
	UpdateOrderStatus(ctx context.Context, id order.ID, status string) (*orderapi.Result, error)
	UploadDeliveryConfirmation(ctx context.Context, id order.ID, data orderapi.DeliveryData) (*orderapi.Result, error)
}

// QRDispatcher runs the QR delivery path.
// Satisfied by *dispatch.Manager; narrow interface for testability.
type QRDispatcher interface {
	Dispatch(ctx context.Context, o order.Order) error
}

// Notifier receives operator-facing messages.
// Satisfied by *notify.Inbox; narrow interface for testability.
type Notifier interface {
	Success(title, message string) notify.Notification
	Error(title, message string) notify.Notification
}

type Dashboard struct {
	client    OrderSource
	qr        QRDispatcher
	notifier  Notifier
	journal   journal.Store
	publisher notify.Publisher
	log       logger.Logger
	maxPhoto  int
	now       func() time.Time
	actor     func() string

	issued atomic.Uint64

	mu       sync.RWMutex
	orders   []order.Order
	applied  uint64
	loadedAt time.Time

	wfMu       sync.Mutex
	deliveries map[order.ID]*delivery.Workflow
}

type Option func(*Dashboard)

func WithJournal(s journal.Store) Option {
	return func(d *Dashboard) { d.journal = s }
}

func WithPublisher(p notify.Publisher) Option {
	return func(d *Dashboard) { d.publisher = p }
}

func WithLogger(l logger.Logger) Option {
	return func(d *Dashboard) { d.log = l }
}

// WithMaxPhotoBytes caps delivery photos for workflows opened here.
func WithMaxPhotoBytes(n int) Option {
	return func(d *Dashboard) { d.maxPhoto = n }
}

// WithActor names the operator in journal entries.
func WithActor(fn func() string) Option {
	return func(d *Dashboard) { d.actor = fn }
}

// WithClock overrides the time source used for workflow defaults.
func WithClock(now func() time.Time) Option {
	return func(d *Dashboard) { d.now = now }
}

func New(client OrderSource, qr QRDispatcher, notifier Notifier, opts ...Option) *Dashboard {
	d := &Dashboard{
		client:   client,
		qr:       qr,
		notifier: notifier,
		log:      logger.NewNop(),
		maxPhoto: delivery.DefaultMaxPhotoBytes,
		now:      time.Now,
		orders:   []order.Order{},

		deliveries: map[order.ID]*delivery.Workflow{},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Reload replaces the list with a fresh backend snapshot. Reloads may
// overlap; a snapshot is applied only if no later-issued reload has been
// applied already, so the newest request always wins.
func (d *Dashboard) Reload(ctx context.Context) error {
	ticket := d.issued.Add(1)
	orders := d.client.FetchAllOrders(ctx)
	if orders == nil {
		orders = []order.Order{}
	}

	d.mu.Lock()
	if ticket < d.applied {
		d.mu.Unlock()
		d.log.Debug("dropping stale order snapshot", logger.Int64("ticket", int64(ticket)))
		return nil
	}
	d.applied = ticket
	d.orders = orders
	d.loadedAt = d.now()
	d.mu.Unlock()

	d.rebindDeliveries(orders)

	if d.publisher != nil {
		_ = d.publisher.Publish(notify.Room, "orders.reloaded", map[string]int{"count": len(orders)})
	}
	return nil
}

// Orders returns a copy of the current snapshot.
func (d *Dashboard) Orders() []order.Order {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]order.Order, len(d.orders))
	copy(out, d.orders)
	return out
}

// LoadedAt is when the current snapshot was applied.
func (d *Dashboard) LoadedAt() time.Time {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.loadedAt
}

// Filter returns orders whose effective status equals status (any when
// empty) and that match query.
func (d *Dashboard) Filter(status, query string) []order.Order {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := []order.Order{}
	for _, o := range d.orders {
		if status != "" && o.EffectiveStatus() != status {
			continue
		}
		if !o.Matches(query) {
			continue
		}
		out = append(out, o)
	}
	return out
}

// Summary counts orders by effective status.
type Summary struct {
	Total      int `json:"total"`
	Paid       int `json:"paid"`
	Received   int `json:"received"`
	Preparing  int `json:"preparing"`
	Completed  int `json:"completed"`
	Delivering int `json:"delivering"`
	Shipped    int `json:"shipped"`
}

func (d *Dashboard) Summary() Summary {
	d.mu.RLock()
	defer d.mu.RUnlock()
	s := Summary{Total: len(d.orders)}
	for _, o := range d.orders {
		switch o.EffectiveStatus() {
		case enum.OrderStatusPaid:
			s.Paid++
		case enum.OrderStatusReceived:
			s.Received++
		case enum.OrderStatusPreparing:
			s.Preparing++
		case enum.OrderStatusCompleted:
			s.Completed++
		case enum.OrderStatusDelivering:
			s.Delivering++
		case enum.OrderStatusShipped:
			s.Shipped++
		}
	}
	return s
}

// Slip loads the full order, including the payment slip.
func (d *Dashboard) Slip(ctx context.Context, id order.ID) (*order.Order, error) {
	o := d.client.FetchOrderByID(ctx, id)
	if o == nil {
		return nil, ErrOrderNotFound
	}
	return o, nil
}

// Lookup returns the order from the snapshot, falling back to the backend.
func (d *Dashboard) Lookup(ctx context.Context, id order.ID) (*order.Order, error) {
	d.mu.RLock()
	for i := range d.orders {
		if d.orders[i].ID == id {
			o := d.orders[i]
			d.mu.RUnlock()
			return &o, nil
		}
	}
	d.mu.RUnlock()
	return d.Slip(ctx, id)
}

// ChangeResult tells the caller which path a status change took.
type ChangeResult struct {
	Action lifecycle.Action
	// Workflow is set for ActionConfirmDelivery; the status changes only
	// when it is submitted.
	Workflow *delivery.Workflow
	Order    *order.Order
	// Warning is set when the change skips or reverses the usual order of
	// statuses. The backend still decides.
	Warning string
}

// ChangeStatus routes an operator's status selection.
func (d *Dashboard) ChangeStatus(ctx context.Context, id order.ID, target string) (*ChangeResult, error) {
	action := lifecycle.Route(target)
	if action == lifecycle.ActionReject {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStatus, target)
	}

	o, err := d.Lookup(ctx, id)
	if err != nil {
		return nil, err
	}

	var warning string
	if err := lifecycle.ValidateTransition(o.DisplayStatus(), target); err != nil {
		warning = err.Error()
		d.log.Warn("off-path status change",
			logger.String("order_id", o.ID.String()),
			logger.String("warning", warning),
		)
	}

	switch action {
	case lifecycle.ActionConfirmDelivery:
		return &ChangeResult{Action: action, Workflow: d.OpenDelivery(*o), Order: o, Warning: warning}, nil

	case lifecycle.ActionDispatchQR:
		if err := d.Dispatch(ctx, *o); err != nil {
			return nil, err
		}
		return &ChangeResult{Action: action, Order: o, Warning: warning}, nil
	}

	res, err := d.client.UpdateOrderStatus(ctx, o.ID, target)
	if err != nil {
		d.notifier.Error("Status update failed", orderapi.MessageOf(err))
		return nil, err
	}
	d.notifier.Success("Status updated", fmt.Sprintf("Order %s is now %s", o.OrderNumber, lifecycle.Label(target)))
	if err := d.Reload(ctx); err != nil {
		d.log.Warn("reload after status update failed", logger.Error(err))
	}

	out := &ChangeResult{Action: action, Order: o, Warning: warning}
	if res != nil && res.Order != nil {
		out.Order = res.Order
	}
	return out, nil
}

// Dispatch sends o down the QR path and refreshes the list once the backend
// has moved it to delivering.
func (d *Dashboard) Dispatch(ctx context.Context, o order.Order) error {
	if err := d.qr.Dispatch(ctx, o); err != nil {
		return err
	}
	return d.Reload(ctx)
}

// OpenDelivery starts a photo confirmation for o, or returns the one
// already open for it rebound to this copy of the order. On success the
// journal is written, the operator is notified and the list reloads.
func (d *Dashboard) OpenDelivery(o order.Order) *delivery.Workflow {
	d.wfMu.Lock()
	defer d.wfMu.Unlock()

	if w, ok := d.deliveries[o.ID]; ok && !w.Closed() {
		w.Rebind(o)
		return w
	}
	w := delivery.Open(o, d.client, d.now(),
		delivery.WithDispatcher(d),
		delivery.WithMaxPhotoBytes(d.maxPhoto),
		delivery.WithLogger(d.log),
		delivery.OnSuccess(d.deliveryConfirmed),
	)
	d.deliveries[o.ID] = w
	return w
}

// rebindDeliveries points open confirmations at the fresh snapshot so their
// receiver details follow the order. Closed ones are forgotten.
func (d *Dashboard) rebindDeliveries(orders []order.Order) {
	d.wfMu.Lock()
	defer d.wfMu.Unlock()

	for id, w := range d.deliveries {
		if w.Closed() {
			delete(d.deliveries, id)
			continue
		}
		for i := range orders {
			if orders[i].ID == id {
				w.Rebind(orders[i])
				break
			}
		}
	}
}

func (d *Dashboard) deliveryConfirmed(ctx context.Context, o order.Order) {
	if d.journal != nil {
		e := journal.NewEntry(enum.JournalPhotoConfirmed, o, "")
		if d.actor != nil {
			e.Actor = d.actor()
		}
		if err := d.journal.Record(ctx, e); err != nil {
			d.log.Warn("journal write failed", logger.Error(err))
		}
	}
	d.notifier.Success("Delivery confirmed", fmt.Sprintf("Order %s has been marked as delivered", o.OrderNumber))
	if err := d.Reload(ctx); err != nil {
		d.log.Warn("reload after delivery confirmation failed", logger.Error(err))
	}
}
