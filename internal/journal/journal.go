// Package journal keeps an audit trail of delivery dispatch events: photo
// confirmations, QR dispatches, reopens, closes and rider resolutions.
package journal

import (
	"context"
	"encoding/hex"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"

	"github.com/fruitshop/orderdesk/internal/order"
)

// Entry is one journal record. Rider tokens are bearer credentials, so only
// their digest is kept.
type Entry struct {
	ID          uuid.UUID `json:"id"`
	OrderID     string    `json:"order_id"`
	OrderNumber string    `json:"order_number"`
	Event       string    `json:"event"`
	Actor       string    `json:"actor,omitempty"`
	TokenDigest string    `json:"token_digest,omitempty"`
	Detail      string    `json:"detail,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// NewEntry builds an entry for o. token may be empty.
func NewEntry(event string, o order.Order, token string) Entry {
	e := Entry{
		ID:          uuid.New(),
		OrderID:     o.ID.String(),
		OrderNumber: o.OrderNumber,
		Event:       event,
		CreatedAt:   time.Now().UTC(),
	}
	if token != "" {
		e.TokenDigest = Digest(token)
	}
	return e
}

// WithDetail returns a copy of e carrying detail.
func (e Entry) WithDetail(detail string) Entry {
	e.Detail = detail
	return e
}

// Digest is the hex BLAKE2b-256 of a rider token.
func Digest(token string) string {
	sum := blake2b.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// Store persists journal entries.
type Store interface {
	Record(ctx context.Context, e Entry) error
	ListByOrder(ctx context.Context, orderID string) ([]Entry, error)
}

// MemoryStore is the in-process store used when no database is configured.
// It keeps the most recent entries up to its limit.
type MemoryStore struct {
	limit int

	mu      sync.Mutex
	entries []Entry
}

func NewMemoryStore(limit int) *MemoryStore {
	if limit <= 0 {
		limit = 500
	}
	return &MemoryStore{limit: limit}
}

func (s *MemoryStore) Record(_ context.Context, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
	if over := len(s.entries) - s.limit; over > 0 {
		s.entries = append([]Entry(nil), s.entries[over:]...)
	}
	return nil
}

// ListByOrder returns the order's entries, oldest first.
func (s *MemoryStore) ListByOrder(_ context.Context, orderID string) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []Entry{}
	for _, e := range s.entries {
		if e.OrderID == orderID {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
