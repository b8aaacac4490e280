// Package delivery implements the manual delivery confirmation: the operator
// attaches a photo and sender name, the recipient is taken from the order,
// and a successful upload marks the order shipped.
package delivery

import (
	"context"
	"encoding/base64"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/fruitshop/orderdesk/internal/logger"
	"github.com/fruitshop/orderdesk/internal/order"
	"github.com/fruitshop/orderdesk/internal/orderapi"
)

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"

	// DefaultMaxPhotoBytes is the photo cap when none is configured.
	DefaultMaxPhotoBytes = 3 * 1024 * 1024
)

// Uploader sends the confirmation to the backend.
// Satisfied by *orderapi.Client; narrow interface for testability.
type Uploader interface {
	UploadDeliveryConfirmation(ctx context.Context, id order.ID, data orderapi.DeliveryData) (*orderapi.Result, error)
}

// QRDispatcher starts the rider QR path for an order.
// Satisfied by *dispatch.Manager; narrow interface for testability.
type QRDispatcher interface {
	Dispatch(ctx context.Context, o order.Order) error
}

// Workflow is one open delivery confirmation for one order.
type Workflow struct {
	uploader   Uploader
	dispatcher QRDispatcher
	log        logger.Logger
	maxPhoto   int
	onSuccess  func(ctx context.Context, o order.Order)

	mu         sync.Mutex
	order      order.Order
	receiver   order.Receiver
	photo      string
	date       string
	clock      string
	sender     string
	closed     bool
	submitting bool
}

type Option func(*Workflow)

// WithDispatcher enables the QR escape hatch.
func WithDispatcher(d QRDispatcher) Option {
	return func(w *Workflow) { w.dispatcher = d }
}

// WithMaxPhotoBytes overrides the photo size cap.
func WithMaxPhotoBytes(n int) Option {
	return func(w *Workflow) {
		if n > 0 {
			w.maxPhoto = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(w *Workflow) { w.log = l }
}

// OnSuccess runs after a successful upload, once the workflow is closed.
func OnSuccess(fn func(ctx context.Context, o order.Order)) Option {
	return func(w *Workflow) { w.onSuccess = fn }
}

// Open starts a confirmation for o. Date and time default to now.
func Open(o order.Order, uploader Uploader, now time.Time, opts ...Option) *Workflow {
	w := &Workflow{
		uploader: uploader,
		log:      logger.NewNop(),
		maxPhoto: DefaultMaxPhotoBytes,
		order:    o,
		receiver: o.ReceiverSnapshot(),
		date:     now.Format(DateLayout),
		clock:    now.Format(TimeLayout),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Form is a read-only view of the workflow state.
type Form struct {
	OrderID      order.ID       `json:"order_id"`
	OrderNumber  string         `json:"order_number"`
	DeliveryDate string         `json:"delivery_date"`
	DeliveryTime string         `json:"delivery_time"`
	SenderName   string         `json:"sender_name"`
	HasPhoto     bool           `json:"has_photo"`
	Receiver     order.Receiver `json:"receiver"`
	Open         bool           `json:"open"`
}

func (w *Workflow) Form() Form {
	w.mu.Lock()
	defer w.mu.Unlock()
	return Form{
		OrderID:      w.order.ID,
		OrderNumber:  w.order.OrderNumber,
		DeliveryDate: w.date,
		DeliveryTime: w.clock,
		SenderName:   w.sender,
		HasPhoto:     w.photo != "",
		Receiver:     w.receiver,
		Open:         !w.closed,
	}
}

// Rebind points the workflow at a new copy of the order. The receiver
// snapshot is recomputed; the operator's inputs are kept.
func (w *Workflow) Rebind(o order.Order) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.order = o
	w.receiver = o.ReceiverSnapshot()
}

// AttachPhoto stores data as a data URL after checking size and type.
func (w *Workflow) AttachPhoto(data []byte) error {
	if len(data) == 0 {
		return invalid("delivery_image", ErrPhotoRequired)
	}
	if len(data) > w.maxPhoto {
		return invalid("delivery_image", ErrPhotoTooLarge)
	}
	mime := http.DetectContentType(data)
	if !strings.HasPrefix(mime, "image/") {
		return invalid("delivery_image", ErrPhotoNotImage)
	}

	url := "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}
	w.photo = url
	return nil
}

func (w *Workflow) SetDate(date string) {
	w.mu.Lock()
	w.date = strings.TrimSpace(date)
	w.mu.Unlock()
}

func (w *Workflow) SetTime(clock string) {
	w.mu.Lock()
	w.clock = strings.TrimSpace(clock)
	w.mu.Unlock()
}

func (w *Workflow) SetSender(name string) {
	w.mu.Lock()
	w.sender = strings.TrimSpace(name)
	w.mu.Unlock()
}

// Validate checks the inputs without touching the network.
func (w *Workflow) Validate() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.validateLocked()
}

func (w *Workflow) validateLocked() error {
	if w.photo == "" {
		return invalid("delivery_image", ErrPhotoRequired)
	}
	if w.sender == "" {
		return invalid("sender_name", ErrSenderRequired)
	}
	if _, err := time.Parse(DateLayout, w.date); err != nil {
		return invalid("delivery_date", ErrInvalidDate)
	}
	if _, err := time.Parse(TimeLayout, w.clock); err != nil {
		return invalid("delivery_time", ErrInvalidTime)
	}
	return nil
}

// Submit validates and uploads. On success the workflow closes and the
// success hook runs; on failure it stays open so the operator can retry.
func (w *Workflow) Submit(ctx context.Context) (*orderapi.Result, error) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil, ErrClosed
	}
	if w.submitting {
		w.mu.Unlock()
		return nil, ErrInProgress
	}
	if err := w.validateLocked(); err != nil {
		w.mu.Unlock()
		return nil, err
	}
	o := w.order
	data := orderapi.DeliveryData{
		DeliveryImage:   w.photo,
		DeliveryDate:    w.date,
		DeliveryTime:    w.clock,
		SenderName:      w.sender,
		ReceiverName:    w.receiver.Name,
		ReceiverPhone:   w.receiver.Phone,
		ReceiverAddress: w.receiver.Address,
	}
	w.submitting = true
	w.mu.Unlock()

	res, err := w.uploader.UploadDeliveryConfirmation(ctx, o.ID, data)

	w.mu.Lock()
	w.submitting = false
	if err != nil {
		w.mu.Unlock()
		w.log.Error("delivery confirmation failed",
			logger.String("order_id", o.ID.String()),
			logger.Error(err),
		)
		return nil, err
	}
	w.closed = true
	w.mu.Unlock()

	w.log.Info("delivery confirmed by photo",
		logger.String("order_id", o.ID.String()),
		logger.String("order_number", o.OrderNumber),
	)
	if w.onSuccess != nil {
		w.onSuccess(ctx, o)
	}
	return res, nil
}

// DispatchViaQR abandons the photo path and hands the order to the QR
// dispatch flow instead. If the dispatch fails the photo path reopens.
func (w *Workflow) DispatchViaQR(ctx context.Context) error {
	if w.dispatcher == nil {
		return ErrNoQRDispatch
	}

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return ErrClosed
	}
	if w.submitting {
		w.mu.Unlock()
		return ErrInProgress
	}
	w.closed = true
	o := w.order
	w.mu.Unlock()

	if err := w.dispatcher.Dispatch(ctx, o); err != nil {
		w.mu.Lock()
		w.closed = false
		w.mu.Unlock()
		return err
	}
	return nil
}

// Closed reports whether either path has completed.
func (w *Workflow) Closed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed
}
