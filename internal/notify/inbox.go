// Package notify is the console's notification inbox. Entries are kept
// newest first, capped, and pushed to connected console pages.
package notify

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fruitshop/orderdesk/internal/enum"
)

// DefaultLimit is how many notifications the inbox keeps.
const DefaultLimit = 50

// Room is the broadcast room console pages subscribe to.
const Room = "console"

const (
	EventCreated = "notification.created"
	EventUpdated = "notifications.updated"
)

type Notification struct {
	ID        uuid.UUID `json:"id"`
	Type      string    `json:"type"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	Read      bool      `json:"read"`
}

// Publisher pushes events to live console pages.
// Satisfied by *ws.Hub; narrow interface for testability.
type Publisher interface {
	Publish(room, eventType string, payload interface{}) error
}

type Inbox struct {
	limit int
	pub   Publisher

	mu    sync.RWMutex
	items []Notification
}

// NewInbox creates an inbox. pub may be nil.
func NewInbox(pub Publisher, limit int) *Inbox {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Inbox{limit: limit, pub: pub}
}

// Push adds a notification at the head of the inbox.
func (in *Inbox) Push(kind, title, message string) Notification {
	n := Notification{
		ID:        uuid.New(),
		Type:      kind,
		Title:     title,
		Message:   message,
		Timestamp: time.Now(),
	}

	in.mu.Lock()
	in.items = append([]Notification{n}, in.items...)
	if len(in.items) > in.limit {
		in.items = in.items[:in.limit]
	}
	in.mu.Unlock()

	in.publish(EventCreated, n)
	return n
}

func (in *Inbox) Success(title, message string) Notification {
	return in.Push(enum.NotificationSuccess, title, message)
}

func (in *Inbox) Error(title, message string) Notification {
	return in.Push(enum.NotificationError, title, message)
}

func (in *Inbox) Info(title, message string) Notification {
	return in.Push(enum.NotificationInfo, title, message)
}

func (in *Inbox) Warning(title, message string) Notification {
	return in.Push(enum.NotificationWarning, title, message)
}

// List returns a copy of the inbox, newest first.
func (in *Inbox) List() []Notification {
	in.mu.RLock()
	defer in.mu.RUnlock()
	out := make([]Notification, len(in.items))
	copy(out, in.items)
	return out
}

func (in *Inbox) UnreadCount() int {
	in.mu.RLock()
	defer in.mu.RUnlock()
	n := 0
	for _, item := range in.items {
		if !item.Read {
			n++
		}
	}
	return n
}

// MarkRead flags one notification. It reports whether id was found.
func (in *Inbox) MarkRead(id uuid.UUID) bool {
	return in.update(func(items []Notification) ([]Notification, bool) {
		for i := range items {
			if items[i].ID == id {
				items[i].Read = true
				return items, true
			}
		}
		return items, false
	})
}

func (in *Inbox) MarkAllRead() {
	in.update(func(items []Notification) ([]Notification, bool) {
		for i := range items {
			items[i].Read = true
		}
		return items, true
	})
}

// Remove deletes one notification. It reports whether id was found.
func (in *Inbox) Remove(id uuid.UUID) bool {
	return in.update(func(items []Notification) ([]Notification, bool) {
		for i := range items {
			if items[i].ID == id {
				return append(items[:i], items[i+1:]...), true
			}
		}
		return items, false
	})
}

func (in *Inbox) Clear() {
	in.update(func([]Notification) ([]Notification, bool) {
		return nil, true
	})
}

// --- Helpers ---

func (in *Inbox) update(fn func([]Notification) ([]Notification, bool)) bool {
	in.mu.Lock()
	items, changed := fn(in.items)
	in.items = items
	in.mu.Unlock()

	if changed {
		in.publish(EventUpdated, in.List())
	}
	return changed
}

func (in *Inbox) publish(eventType string, payload interface{}) {
	if in.pub == nil {
		return
	}
	// Delivery to live pages is best effort; the inbox is the source of truth.
	_ = in.pub.Publish(Room, eventType, payload)
}
