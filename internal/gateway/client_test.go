package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soyeahso/relaychat/internal/logging"
)

func testLog() *logging.Logger {
	return logging.New(nil, "silent")
}

// --- ClientRegistry tests ---

func TestClientRegistryNew(t *testing.T) {
	reg := NewClientRegistry(testLog())
	require.NotNil(t, reg)
	assert.Equal(t, 0, reg.Count())
}

func TestClientRegistryAddAndGet(t *testing.T) {
	reg := NewClientRegistry(testLog())

	reg.Add(&Client{ConnID: "conn-1", Remote: "10.0.0.1:4000"})
	assert.Equal(t, 1, reg.Count())

	got, ok := reg.Get("conn-1")
	require.True(t, ok)
	assert.Equal(t, "10.0.0.1:4000", got.Remote)

	_, ok = reg.Get("nonexistent")
	assert.False(t, ok)
}

func TestClientRegistryRemoveNonexistent(t *testing.T) {
	reg := NewClientRegistry(testLog())
	reg.Remove("nonexistent")
	assert.Equal(t, 0, reg.Count())
}

func TestClientRegistryJoinAndLeave(t *testing.T) {
	reg := NewClientRegistry(testLog())
	reg.Add(&Client{ConnID: "a"})
	reg.Add(&Client{ConnID: "b"})

	n, ok := reg.Join("a", "sess-1")
	require.True(t, ok)
	assert.Equal(t, 1, n)

	n, ok = reg.Join("b", "sess-1")
	require.True(t, ok)
	assert.Equal(t, 2, n)

	// joining twice does not double count
	n, _ = reg.Join("b", "sess-1")
	assert.Equal(t, 2, n)

	reg.Leave("a", "sess-1")
	assert.Equal(t, 1, reg.Members("sess-1"))

	reg.Leave("b", "sess-1")
	assert.Equal(t, 0, reg.Members("sess-1"))
	assert.Empty(t, reg.rooms)
}

func TestClientRegistryJoinUnknownClient(t *testing.T) {
	reg := NewClientRegistry(testLog())
	_, ok := reg.Join("ghost", "sess-1")
	assert.False(t, ok)
	assert.Equal(t, 0, reg.Members("sess-1"))
}

func TestClientRegistryRemoveLeavesRooms(t *testing.T) {
	reg := NewClientRegistry(testLog())
	reg.Add(&Client{ConnID: "a"})
	reg.Join("a", "sess-1")
	reg.Join("a", "sess-2")

	reg.Remove("a")

	assert.Equal(t, 0, reg.Count())
	assert.Equal(t, 0, reg.Members("sess-1"))
	assert.Equal(t, 0, reg.Members("sess-2"))
}

func TestClientRegistryEmitToEmptyRoom(t *testing.T) {
	reg := NewClientRegistry(testLog())
	assert.Equal(t, 0, reg.EmitToRoom("sess-1", UpdateEvent("sess-1"), map[string]string{}))
}

func TestClientRegistryRoomSeq(t *testing.T) {
	reg := NewClientRegistry(testLog())
	for _, id := range []string{"a", "b"} {
		c := &Client{ConnID: id}
		require.NoError(t, c.Close())
		reg.Add(c)
	}
	reg.Join("a", "sess-1")
	reg.Join("b", "sess-2")

	reg.EmitToRoom("sess-1", UpdateEvent("sess-1"), nil)
	reg.EmitToRoom("sess-2", UpdateEvent("sess-2"), nil)
	reg.EmitToRoom("sess-1", UpdateEvent("sess-1"), nil)
	reg.EmitToRoom("sess-3", UpdateEvent("sess-3"), nil)

	assert.Equal(t, int64(2), reg.seqs["sess-1"])
	assert.Equal(t, int64(1), reg.seqs["sess-2"])
	assert.NotContains(t, reg.seqs, "sess-3")

	// an emptied room starts over
	reg.Leave("a", "sess-1")
	assert.NotContains(t, reg.seqs, "sess-1")
	reg.Join("a", "sess-1")
	reg.EmitToRoom("sess-1", UpdateEvent("sess-1"), nil)
	assert.Equal(t, int64(1), reg.seqs["sess-1"])
}

func TestClientRegistryCloseAll(t *testing.T) {
	reg := NewClientRegistry(testLog())
	reg.Add(&Client{ConnID: "a"})
	reg.Add(&Client{ConnID: "b"})
	reg.Join("a", "sess-1")

	reg.CloseAll()

	assert.Equal(t, 0, reg.Count())
	assert.Equal(t, 0, reg.Members("sess-1"))
}

func TestClientSendAfterClose(t *testing.T) {
	c := &Client{ConnID: "a"}
	require.NoError(t, c.Close())
	assert.ErrorIs(t, c.Send(Frame{Type: FrameTypeEvent}), ErrClientClosed)
}
