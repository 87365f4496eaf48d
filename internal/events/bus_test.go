package events

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soyeahso/relaychat/internal/domain"
	"github.com/soyeahso/relaychat/internal/logging"
)

func testBus(t *testing.T) *Bus {
	t.Helper()
	b := NewBus(logging.New(nil, "silent"))
	t.Cleanup(func() { b.Close() })
	return b
}

func receive(t *testing.T, ch <-chan domain.SessionUpdate) domain.SessionUpdate {
	t.Helper()
	select {
	case u, ok := <-ch:
		require.True(t, ok, "channel closed")
		return u
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for update")
		return domain.SessionUpdate{}
	}
}

func TestPublishSubscribe_Order(t *testing.T) {
	b := testBus(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := b.Subscribe(ctx)
	require.NoError(t, err)

	msg := domain.Message{ID: "m1", Sender: domain.SenderCustomer, Content: "hi", DeliveryStatus: domain.StatusSent}
	require.NoError(t, b.Publish(ctx, domain.SessionUpdate{SessionID: "s1", Kind: domain.UpdateMessage, Message: msg}))

	msg.DeliveryStatus = domain.StatusDelivered
	require.NoError(t, b.Publish(ctx, domain.SessionUpdate{SessionID: "s1", Kind: domain.UpdateStatus, Message: msg}))

	first := receive(t, ch)
	assert.Equal(t, "s1", first.SessionID)
	assert.Equal(t, domain.UpdateMessage, first.Kind)
	assert.Equal(t, domain.StatusSent, first.Message.DeliveryStatus)

	second := receive(t, ch)
	assert.Equal(t, domain.UpdateStatus, second.Kind)
	assert.Equal(t, domain.StatusDelivered, second.Message.DeliveryStatus)
}

func TestPublishWithoutSubscribers(t *testing.T) {
	b := testBus(t)
	err := b.Publish(context.Background(), domain.SessionUpdate{SessionID: "s1", Kind: domain.UpdateMessage})
	assert.NoError(t, err)
}

func TestSubscribe_ClosedOnCancel(t *testing.T) {
	b := testBus(t)
	ctx, cancel := context.WithCancel(context.Background())

	ch, err := b.Subscribe(ctx)
	require.NoError(t, err)
	cancel()

	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("subscription channel not closed after cancel")
	}
}

func TestFanOut(t *testing.T) {
	b := testBus(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := b.Subscribe(ctx)
	require.NoError(t, err)
	c, err := b.Subscribe(ctx)
	require.NoError(t, err)

	require.NoError(t, b.Publish(ctx, domain.SessionUpdate{SessionID: "s9", Kind: domain.UpdateMessage}))
	assert.Equal(t, "s9", receive(t, a).SessionID)
	assert.Equal(t, "s9", receive(t, c).SessionID)
}

func TestWatermillLoggerFields(t *testing.T) {
	var buf bytes.Buffer
	l := newWatermillLogger(logging.New(&buf, "debug")).With(map[string]any{"topic": Topic})
	l.Info("subscriber started", map[string]any{"n": 1})

	assert.Contains(t, buf.String(), `"topic":"relaychat.session-updates"`)
	assert.Contains(t, buf.String(), `"n":1`)
}
