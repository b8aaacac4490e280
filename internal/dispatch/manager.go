// Package dispatch runs the QR delivery path: it asks the backend to mint a
// rider token, shows the scannable code, and polls the order until the
// rider's scan moves it out of delivering.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/fruitshop/orderdesk/internal/enum"
	"github.com/fruitshop/orderdesk/internal/journal"
	"github.com/fruitshop/orderdesk/internal/logger"
	"github.com/fruitshop/orderdesk/internal/notify"
	"github.com/fruitshop/orderdesk/internal/order"
	"github.com/fruitshop/orderdesk/internal/orderapi"
)

// DefaultPollInterval is the backend poll period while a QR is shown.
const DefaultPollInterval = 3 * time.Second

var (
	ErrNoQRURL       = errors.New("backend returned no QR url")
	ErrNoQRCode      = errors.New("order has no delivery QR code")
	ErrNotDelivering = errors.New("order is not out for delivery")
)

// OrderClient is the backend surface the manager needs.
// Satisfied by *orderapi.Client; narrow interface for testability.
type OrderClient interface {
	DispatchOrderWithQR(ctx context.Context, id order.ID) (*orderapi.DispatchResult, error)
	FetchOrderByID(ctx context.Context, id order.ID) *order.Order
}

// Notifier receives operator-facing messages.
// Satisfied by *notify.Inbox; narrow interface for testability.
type Notifier interface {
	Success(title, message string) notify.Notification
	Error(title, message string) notify.Notification
}

// Reloader refreshes the admin order list.
// Satisfied by *dashboard.Dashboard; narrow interface for testability.
type Reloader interface {
	Reload(ctx context.Context) error
}

// Surface is what the operator sees: the open QR for one order.
type Surface struct {
	Open        bool      `json:"open"`
	OrderID     order.ID  `json:"order_id,omitempty"`
	OrderNumber string    `json:"order_number,omitempty"`
	QRURL       string    `json:"qr_url,omitempty"`
	OpenedAt    time.Time `json:"opened_at"`
}

// Manager owns the QR surface and its poll loop. At most one loop runs;
// opening the surface for another order stops the previous loop first.
type Manager struct {
	client    OrderClient
	notifier  Notifier
	reloader  Reloader
	journal   journal.Store
	log       logger.Logger
	interval  time.Duration
	publicURL string
	publisher notify.Publisher
	actor     func() string

	root       context.Context
	rootCancel context.CancelFunc

	mu      sync.Mutex
	surface Surface
	gen     uint64
	cancel  context.CancelFunc
	done    chan struct{}
}

type Option func(*Manager)

// WithInterval overrides the poll period.
func WithInterval(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.interval = d
		}
	}
}

// WithJournal records dispatch events.
func WithJournal(s journal.Store) Option {
	return func(m *Manager) { m.journal = s }
}

// WithPublisher pushes surface changes to console pages.
func WithPublisher(p notify.Publisher) Option {
	return func(m *Manager) { m.publisher = p }
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(m *Manager) { m.log = l }
}

// WithActor names the operator in journal entries.
func WithActor(fn func() string) Option {
	return func(m *Manager) { m.actor = fn }
}

// NewManager creates a manager. publicURL is the storefront base used to
// rebuild rider links when reopening a dispatched order.
func NewManager(client OrderClient, notifier Notifier, reloader Reloader, publicURL string, opts ...Option) *Manager {
	root, cancel := context.WithCancel(context.Background())
	m := &Manager{
		client:     client,
		notifier:   notifier,
		reloader:   reloader,
		log:        logger.NewNop(),
		interval:   DefaultPollInterval,
		publicURL:  strings.TrimRight(publicURL, "/"),
		root:       root,
		rootCancel: cancel,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SetReloader wires the list to refresh after a rider scan. It exists
// because the dashboard and the manager reference each other.
func (m *Manager) SetReloader(r Reloader) {
	m.mu.Lock()
	m.reloader = r
	m.mu.Unlock()
}

// Surface returns the current surface state.
func (m *Manager) Surface() Surface {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.surface
}

// Dispatch moves o to delivering through the backend, opens the QR surface
// and starts polling. The status changes only once the backend confirms.
func (m *Manager) Dispatch(ctx context.Context, o order.Order) error {
	res, err := m.client.DispatchOrderWithQR(ctx, o.ID)
	if err != nil {
		m.notifier.Error("QR dispatch failed", orderapi.MessageOf(err))
		m.record(ctx, journal.NewEntry(enum.JournalQRFailed, o, "").WithDetail(orderapi.MessageOf(err)))
		return err
	}

	subject := o
	if res.Order != nil {
		subject = merge(o, *res.Order)
	}

	qrURL := res.QRURL
	if qrURL == "" && subject.DeliveryQRCode != "" {
		qrURL = m.RiderURL(subject.DeliveryQRCode)
	}
	if qrURL == "" {
		m.notifier.Error("QR dispatch failed", ErrNoQRURL.Error())
		m.record(ctx, journal.NewEntry(enum.JournalQRFailed, subject, "").WithDetail(ErrNoQRURL.Error()))
		return ErrNoQRURL
	}

	token := subject.DeliveryQRCode
	if token == "" {
		token = TokenFromURL(qrURL)
	}
	m.record(ctx, journal.NewEntry(enum.JournalQRDispatched, subject, token))

	m.open(subject, qrURL)
	m.log.Info("qr dispatched",
		logger.String("order_id", subject.ID.String()),
		logger.String("order_number", subject.OrderNumber),
	)
	return nil
}

// Reopen shows the QR again for an order that is still out for delivery.
// The rider link is rebuilt from the order's delivery_qr_code.
func (m *Manager) Reopen(ctx context.Context, o order.Order) error {
	if o.DeliveryQRCode == "" {
		return ErrNoQRCode
	}
	if !o.IsDelivering() {
		return ErrNotDelivering
	}
	m.record(ctx, journal.NewEntry(enum.JournalQRReopened, o, o.DeliveryQRCode))
	m.open(o, m.RiderURL(o.DeliveryQRCode))
	return nil
}

// Close hides the surface and stops polling. The order stays in
// delivering; the rider can still scan the code.
func (m *Manager) Close() {
	m.mu.Lock()
	prev := m.surface
	cancel, done := m.cancel, m.done
	m.gen++
	m.cancel, m.done = nil, nil
	m.surface = Surface{}
	m.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	if prev.Open {
		m.record(m.root, closedEntry(prev))
		m.publish("qr.closed", prev)
	}
}

// Shutdown stops any loop and releases the manager.
func (m *Manager) Shutdown() {
	m.Close()
	m.rootCancel()
}

// Wait blocks until the current poll loop has finished, including the
// notification and reload that follow a rider scan, or until ctx is done.
func (m *Manager) Wait(ctx context.Context) error {
	m.mu.Lock()
	done := m.done
	m.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RiderURL is the storefront link a rider's phone opens for token.
func (m *Manager) RiderURL(token string) string {
	return m.publicURL + "/delivery-confirm/" + url.PathEscape(token)
}

// TokenFromURL extracts the rider token from a delivery-confirm link.
func TokenFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	base := path.Base(u.Path)
	if base == "." || base == "/" {
		return ""
	}
	if token, err := url.PathUnescape(base); err == nil {
		return token
	}
	return base
}

// --- Poll loop ---

func (m *Manager) open(o order.Order, qrURL string) {
	ctx, cancel := context.WithCancel(m.root)
	done := make(chan struct{})

	m.mu.Lock()
	prevCancel, prevDone := m.cancel, m.done
	m.gen++
	gen := m.gen
	m.cancel, m.done = cancel, done
	m.surface = Surface{
		Open:        true,
		OrderID:     o.ID,
		OrderNumber: o.OrderNumber,
		QRURL:       qrURL,
		OpenedAt:    time.Now(),
	}
	surface := m.surface
	m.mu.Unlock()

	if prevCancel != nil {
		prevCancel()
		<-prevDone
	}

	m.publish("qr.opened", surface)
	go m.poll(ctx, gen, o, done)
}

func (m *Manager) poll(ctx context.Context, gen uint64, subject order.Order, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		current := m.client.FetchOrderByID(ctx, subject.ID)
		if ctx.Err() != nil {
			return
		}
		if current == nil {
			m.log.Debug("qr poll: order unavailable", logger.String("order_id", subject.ID.String()))
			continue
		}
		if current.IsDelivering() {
			continue
		}

		m.resolve(gen, merge(subject, *current))
		return
	}
}

// resolve closes the surface after the rider's scan moved the order on.
func (m *Manager) resolve(gen uint64, o order.Order) {
	m.mu.Lock()
	if m.gen != gen {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.cancel, m.done = nil, nil
	m.surface = Surface{}
	reloader := m.reloader
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	m.log.Info("qr delivery confirmed",
		logger.String("order_id", o.ID.String()),
		logger.String("order_number", o.OrderNumber),
		logger.String("status", o.EffectiveStatus()),
	)
	m.record(m.root, journal.NewEntry(enum.JournalQRResolved, o, "").WithDetail("status "+o.EffectiveStatus()))
	m.publish("qr.closed", Surface{OrderID: o.ID, OrderNumber: o.OrderNumber})
	m.notifier.Success("Delivery confirmed", fmt.Sprintf("Order %s has been delivered", o.OrderNumber))

	if reloader != nil {
		if err := reloader.Reload(m.root); err != nil {
			m.log.Warn("reload after qr confirmation failed", logger.Error(err))
		}
	}
}

// --- Helpers ---

func (m *Manager) record(ctx context.Context, e journal.Entry) {
	if m.journal == nil {
		return
	}
	if e.Actor == "" && m.actor != nil {
		e.Actor = m.actor()
	}
	if err := m.journal.Record(ctx, e); err != nil {
		m.log.Warn("journal write failed", logger.String("event", e.Event), logger.Error(err))
	}
}

func (m *Manager) publish(eventType string, s Surface) {
	if m.publisher == nil {
		return
	}
	_ = m.publisher.Publish(notify.Room, eventType, s)
}

func closedEntry(s Surface) journal.Entry {
	return journal.NewEntry(enum.JournalQRClosed, order.Order{ID: s.OrderID, OrderNumber: s.OrderNumber}, "")
}

// merge overlays fresh backend fields on the known order, keeping what the
// fresh copy omits.
func merge(known, fresh order.Order) order.Order {
	if fresh.ID == "" {
		fresh.ID = known.ID
	}
	if fresh.OrderNumber == "" {
		fresh.OrderNumber = known.OrderNumber
	}
	return fresh
}
