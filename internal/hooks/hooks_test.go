package hooks

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soyeahso/relaychat/internal/config"
	"github.com/soyeahso/relaychat/internal/logging"
)

func testManager() *Manager {
	return NewManager(logging.New(nil, "silent"))
}

func TestManager_On_And_Emit(t *testing.T) {
	m := testManager()

	var called bool
	m.On(EventGatewayStart, "test", func(_ context.Context, p Payload) error {
		called = true
		assert.Equal(t, EventGatewayStart, p.Event)
		assert.False(t, p.At.IsZero())
		return nil
	})

	m.Emit(context.Background(), EventGatewayStart, nil)
	assert.True(t, called)
}

func TestManager_Emit_OrderAndErrors(t *testing.T) {
	m := testManager()

	var order []string
	m.On(EventReplyReceived, "first", func(_ context.Context, _ Payload) error {
		order = append(order, "first")
		return errors.New("boom")
	})
	m.On(EventReplyReceived, "second", func(_ context.Context, p Payload) error {
		order = append(order, "second")
		assert.Equal(t, "s-1", p.Data["sessionId"])
		return nil
	})

	m.Emit(context.Background(), EventReplyReceived, map[string]any{"sessionId": "s-1"})
	assert.Equal(t, []string{"first", "second"}, order)
}

func TestManager_NilIsNoop(t *testing.T) {
	var m *Manager
	m.Emit(context.Background(), EventSessionStart, nil)
	m.EmitAsync(context.Background(), EventSessionStart, nil)
	m.Wait()

	var e Emitter = m
	e.EmitAsync(context.Background(), EventSessionStart, nil)
}

func TestManager_Off_KeepsOthers(t *testing.T) {
	m := testManager()

	var removed, kept int
	m.On(EventGatewayStart, "remove", func(_ context.Context, _ Payload) error { removed++; return nil })
	m.On(EventGatewayStart, "keep", func(_ context.Context, _ Payload) error { kept++; return nil })
	m.Off(EventGatewayStart, "remove")

	m.Emit(context.Background(), EventGatewayStart, nil)
	assert.Equal(t, 0, removed)
	assert.Equal(t, 1, kept)
	assert.Equal(t, 1, m.Count(EventGatewayStart))
}

func TestManager_EmitAsync_Wait(t *testing.T) {
	m := testManager()

	var count atomic.Int32
	for _, name := range []string{"async1", "async2"} {
		m.On(EventMessageSent, name, func(ctx context.Context, _ Payload) error {
			assert.NoError(t, ctx.Err())
			count.Add(1)
			return nil
		})
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.EmitAsync(ctx, EventMessageSent, nil)
	cancel()

	done := make(chan struct{})
	go func() { m.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("async handlers did not complete in time")
	}

	assert.Equal(t, int32(2), count.Load())
}

func TestManager_Events(t *testing.T) {
	m := testManager()

	m.On(EventSessionEvicted, "h1", func(_ context.Context, _ Payload) error { return nil })
	m.On(EventGatewayStart, "h2", func(_ context.Context, _ Payload) error { return nil })

	assert.Equal(t, []string{EventGatewayStart, EventSessionEvicted}, m.Events())
}

func TestCommandHandler_ReceivesPayload(t *testing.T) {
	out := filepath.Join(t.TempDir(), "payload.json")
	h := CommandHandler("cat > "+out, time.Second)

	err := h(context.Background(), Payload{
		Event: EventSessionStart,
		Data:  map[string]any{"sessionId": "abc", "customerId": "cust1"},
	})
	require.NoError(t, err)

	data, err := os.ReadFile(out)
	require.NoError(t, err)

	var got Payload
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, EventSessionStart, got.Event)
	assert.Equal(t, "cust1", got.Data["customerId"])
}

func TestCommandHandler_Failure(t *testing.T) {
	h := CommandHandler("echo nope >&2; exit 3", time.Second)
	err := h(context.Background(), Payload{Event: EventGatewayStop})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nope")
}

func TestCommandHandler_Timeout(t *testing.T) {
	h := CommandHandler("sleep 5", 50*time.Millisecond)
	start := time.Now()
	err := h(context.Background(), Payload{Event: EventGatewayStop})
	assert.Error(t, err)
	assert.Less(t, time.Since(start), 4*time.Second)
}

func TestRegisterConfig(t *testing.T) {
	m := testManager()
	n := RegisterConfig(m, config.HooksConfig{
		SessionStart:   []config.HookEntry{{Command: "true"}, {Command: "  "}},
		SessionEvicted: []config.HookEntry{{Command: "true", Timeout: 500}},
	})

	assert.Equal(t, 2, n)
	assert.Equal(t, 1, m.Count(EventSessionStart))
	assert.Equal(t, 1, m.Count(EventSessionEvicted))
	assert.Equal(t, 0, m.Count(EventGatewayStart))
}

func TestAllEvents(t *testing.T) {
	assert.Len(t, AllEvents, 8)
	assert.Contains(t, AllEvents, EventWindowRefreshed)
}
