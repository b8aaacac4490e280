package notify_test

import (
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fruitshop/orderdesk/internal/notify"
)

type publishCall struct {
	room, eventType string
}

type mockPublisher struct {
	mu    sync.Mutex
	calls []publishCall
}

func (m *mockPublisher) Publish(room, eventType string, payload interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, publishCall{room, eventType})
	return nil
}

func TestInboxNewestFirstAndCapped(t *testing.T) {
	in := notify.NewInbox(nil, 3)
	for i := 1; i <= 5; i++ {
		in.Info("title", fmt.Sprintf("message %d", i))
	}

	list := in.List()
	require.Len(t, list, 3)
	assert.Equal(t, "message 5", list[0].Message)
	assert.Equal(t, "message 3", list[2].Message)
}

func TestInboxDefaultLimit(t *testing.T) {
	in := notify.NewInbox(nil, 0)
	for i := 0; i < 60; i++ {
		in.Success("ok", "done")
	}
	assert.Len(t, in.List(), notify.DefaultLimit)
}

func TestInboxReadFlags(t *testing.T) {
	in := notify.NewInbox(nil, 10)
	a := in.Success("Status updated", "Order F-1 is now preparing")
	in.Error("Update failed", "Invalid status transition")

	assert.Equal(t, 2, in.UnreadCount())
	assert.True(t, in.MarkRead(a.ID))
	assert.False(t, in.MarkRead(uuid.New()))
	assert.Equal(t, 1, in.UnreadCount())

	in.MarkAllRead()
	assert.Equal(t, 0, in.UnreadCount())
}

func TestInboxRemoveAndClear(t *testing.T) {
	in := notify.NewInbox(nil, 10)
	a := in.Info("a", "a")
	b := in.Info("b", "b")

	assert.True(t, in.Remove(a.ID))
	assert.False(t, in.Remove(a.ID))
	list := in.List()
	require.Len(t, list, 1)
	assert.Equal(t, b.ID, list[0].ID)

	in.Clear()
	assert.Empty(t, in.List())
}

func TestInboxPublishes(t *testing.T) {
	pub := &mockPublisher{}
	in := notify.NewInbox(pub, 10)

	n := in.Warning("Session", "expiring soon")
	in.MarkRead(n.ID)

	require.Len(t, pub.calls, 2)
	assert.Equal(t, publishCall{notify.Room, notify.EventCreated}, pub.calls[0])
	assert.Equal(t, publishCall{notify.Room, notify.EventUpdated}, pub.calls[1])
}
