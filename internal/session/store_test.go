package session

import (
	"sync"
	"testing"
	"time"

	"github.com/soyeahso/relaychat/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is a settable Clock for tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestCreate_CustomerIDsAreSequential(t *testing.T) {
	s := NewStore()

	first := s.Create()
	second := s.Create()

	assert.Equal(t, "cust1", first.CustomerID)
	assert.Equal(t, "cust2", second.CustomerID)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, domain.SessionActive, first.Status)
	assert.Empty(t, first.Messages)
	assert.Equal(t, first.CreatedAt, first.LastActivity)
}

func TestCreate_CustomPrefix(t *testing.T) {
	s := NewStore(WithCustomerPrefix("visitor-"))
	assert.Equal(t, "visitor-1", s.Create().CustomerID)
}

func TestCreate_Concurrent(t *testing.T) {
	s := NewStore()

	const n = 200
	var wg sync.WaitGroup
	ids := make(chan domain.Session, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ids <- s.Create()
		}()
	}
	wg.Wait()
	close(ids)

	sessionIDs := make(map[string]bool)
	customerIDs := make(map[string]bool)
	for sess := range ids {
		sessionIDs[sess.ID] = true
		customerIDs[sess.CustomerID] = true
	}
	assert.Len(t, sessionIDs, n)
	assert.Len(t, customerIDs, n)
	assert.Equal(t, n, s.Len())
}

func TestGet_NotFound(t *testing.T) {
	s := NewStore()
	_, err := s.Get("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGet_ReturnsSnapshot(t *testing.T) {
	s := NewStore()
	sess := s.Create()
	_, err := s.Append(sess.ID, domain.Message{ID: "m1", Content: "hello"})
	require.NoError(t, err)

	snap, err := s.Get(sess.ID)
	require.NoError(t, err)
	snap.Messages[0].Content = "mutated"

	again, err := s.Get(sess.ID)
	require.NoError(t, err)
	assert.Equal(t, "hello", again.Messages[0].Content)
}

func TestAppend_RecordsCorrelation(t *testing.T) {
	s := NewStore()
	sess := s.Create()

	_, err := s.Append(sess.ID, domain.Message{ID: "M1", Sender: domain.SenderCustomer, Content: "hello"}, "M1")
	require.NoError(t, err)

	sid, ok := s.Resolve("M1")
	require.True(t, ok)
	assert.Equal(t, sess.ID, sid)

	got, err := s.Get(sess.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"M1"}, got.CorrelationIDs)
	require.Len(t, got.Messages, 1)
	assert.False(t, got.Messages[0].Timestamp.IsZero())
}

func TestAppend_UnknownSession(t *testing.T) {
	s := NewStore()
	_, err := s.Append("missing", domain.Message{ID: "x"}, "x")
	assert.ErrorIs(t, err, ErrNotFound)
	_, ok := s.Resolve("x")
	assert.False(t, ok)
}

func TestAppend_PreservesOrder(t *testing.T) {
	s := NewStore()
	sess := s.Create()
	for _, id := range []string{"a", "b", "c"} {
		_, err := s.Append(sess.ID, domain.Message{ID: id})
		require.NoError(t, err)
	}

	got, err := s.Get(sess.ID)
	require.NoError(t, err)
	var order []string
	for _, m := range got.Messages {
		order = append(order, m.ID)
	}
	assert.Equal(t, []string{"a", "b", "c"}, order)
}

func TestRecord_Idempotent(t *testing.T) {
	s := NewStore()
	sess := s.Create()

	require.NoError(t, s.Record(sess.ID, "M1"))
	require.NoError(t, s.Record(sess.ID, "M1"))

	got, err := s.Get(sess.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"M1"}, got.CorrelationIDs)
	assert.Equal(t, 1, s.index.len())
}

func TestRecord_ConflictKeepsOriginalOwner(t *testing.T) {
	s := NewStore()
	a := s.Create()
	b := s.Create()

	require.NoError(t, s.Record(a.ID, "M1"))
	assert.ErrorIs(t, s.Record(b.ID, "M1"), ErrCorrelationConflict)

	sid, ok := s.Resolve("M1")
	require.True(t, ok)
	assert.Equal(t, a.ID, sid)
}

func TestRecord_EmptyIDIgnored(t *testing.T) {
	s := NewStore()
	sess := s.Create()
	require.NoError(t, s.Record(sess.ID, ""))
	got, _ := s.Get(sess.ID)
	assert.Empty(t, got.CorrelationIDs)
}

func TestCorrelationIntegrity(t *testing.T) {
	s := NewStore()
	a := s.Create()
	b := s.Create()

	require.NoError(t, s.Record(a.ID, "A1"))
	require.NoError(t, s.Record(a.ID, "A2"))
	require.NoError(t, s.Record(b.ID, "B1"))

	for _, id := range []string{"A1", "A2"} {
		sid, ok := s.Resolve(id)
		require.True(t, ok)
		assert.Equal(t, a.ID, sid)
	}
	sid, ok := s.Resolve("B1")
	require.True(t, ok)
	assert.Equal(t, b.ID, sid)
}

func TestEvict_RemovesCorrelations(t *testing.T) {
	s := NewStore()
	a := s.Create()
	b := s.Create()
	require.NoError(t, s.Record(a.ID, "A1"))
	require.NoError(t, s.Record(a.ID, "A2"))
	require.NoError(t, s.Record(b.ID, "B1"))

	assert.True(t, s.Evict(a.ID))
	assert.False(t, s.Evict(a.ID))

	_, err := s.Get(a.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	for _, id := range []string{"A1", "A2"} {
		_, ok := s.Resolve(id)
		assert.False(t, ok, "correlation %s should be gone", id)
	}
	_, ok := s.Resolve("B1")
	assert.True(t, ok)
	assert.Equal(t, 1, s.index.len())
}

func TestEvictIfInactive(t *testing.T) {
	clock := newFakeClock()
	s := NewStore(WithClock(clock.Now))
	sess := s.Create()
	require.NoError(t, s.Record(sess.ID, "A1"))

	clock.Advance(31 * 24 * time.Hour)
	cutoff := clock.Now().Add(-30 * 24 * time.Hour)

	// activity after the caller computed its cutoff keeps the session
	_, err := s.Append(sess.ID, domain.Message{ID: "A2", Sender: domain.SenderOwner}, "A2")
	require.NoError(t, err)
	_, ok := s.EvictIfInactive(sess.ID, cutoff)
	assert.False(t, ok)
	_, ok = s.Resolve("A2")
	assert.True(t, ok)

	clock.Advance(31 * 24 * time.Hour)
	cutoff = clock.Now().Add(-30 * 24 * time.Hour)
	got, ok := s.EvictIfInactive(sess.ID, cutoff)
	require.True(t, ok)
	assert.Equal(t, sess.ID, got.ID)
	assert.Len(t, got.Messages, 1)

	_, err = s.Get(sess.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	for _, id := range []string{"A1", "A2"} {
		_, ok := s.Resolve(id)
		assert.False(t, ok, "correlation %s should be gone", id)
	}

	_, ok = s.EvictIfInactive("missing", cutoff)
	assert.False(t, ok)
}

func TestTouch_NeverMovesBackwards(t *testing.T) {
	clock := newFakeClock()
	s := NewStore(WithClock(clock.Now))
	sess := s.Create()
	start := sess.LastActivity

	clock.Set(start.Add(time.Hour))
	require.NoError(t, s.Touch(sess.ID))

	clock.Set(start.Add(-time.Hour))
	require.NoError(t, s.Touch(sess.ID))
	_, err := s.Append(sess.ID, domain.Message{ID: "m"})
	require.NoError(t, err)

	got, err := s.Get(sess.ID)
	require.NoError(t, err)
	assert.Equal(t, start.Add(time.Hour), got.LastActivity)
	assert.False(t, got.LastActivity.Before(got.CreatedAt))
}

func TestTouch_UnknownSession(t *testing.T) {
	s := NewStore()
	assert.ErrorIs(t, s.Touch("missing"), ErrNotFound)
}

func TestSetStatus(t *testing.T) {
	s := NewStore()
	sess := s.Create()
	require.NoError(t, s.SetStatus(sess.ID, domain.SessionIdle))
	got, _ := s.Get(sess.ID)
	assert.Equal(t, domain.SessionIdle, got.Status)
	assert.ErrorIs(t, s.SetStatus("missing", domain.SessionIdle), ErrNotFound)
}

func TestUpdateStatus_ForwardOnly(t *testing.T) {
	s := NewStore()
	sess := s.Create()
	_, err := s.Append(sess.ID, domain.Message{ID: "M1", DeliveryStatus: domain.StatusSent}, "M1")
	require.NoError(t, err)

	res, err := s.UpdateStatus("M1", domain.StatusRead)
	require.NoError(t, err)
	assert.True(t, res.Found)
	assert.True(t, res.Applied)
	assert.Equal(t, sess.ID, res.SessionID)
	assert.Equal(t, domain.StatusRead, res.Message.DeliveryStatus)

	res, err = s.UpdateStatus("M1", domain.StatusDelivered)
	require.NoError(t, err)
	assert.True(t, res.Found)
	assert.False(t, res.Applied)
	assert.Equal(t, domain.StatusRead, res.Message.DeliveryStatus)

	got, _ := s.Get(sess.ID)
	assert.Equal(t, domain.StatusRead, got.Messages[0].DeliveryStatus)
}

func TestUpdateStatus_Unknown(t *testing.T) {
	s := NewStore()
	s.Create()
	_, err := s.UpdateStatus("M9", domain.StatusDelivered)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateStatus_CorrelatedWithoutMessage(t *testing.T) {
	clock := newFakeClock()
	s := NewStore(WithClock(clock.Now))
	sess := s.Create()
	require.NoError(t, s.Record(sess.ID, "K1"))

	clock.Set(clock.Now().Add(time.Minute))
	res, err := s.UpdateStatus("K1", domain.StatusDelivered)
	require.NoError(t, err)
	assert.False(t, res.Found)
	assert.False(t, res.Applied)

	got, _ := s.Get(sess.ID)
	assert.Equal(t, clock.Now(), got.LastActivity)
}

func TestForEach_AllowsReentry(t *testing.T) {
	s := NewStore()
	a := s.Create()
	s.Create()

	seen := 0
	s.ForEach(func(sess domain.Session) bool {
		seen++
		if sess.ID == a.ID {
			s.Evict(sess.ID)
		}
		return true
	})
	assert.Equal(t, 2, seen)
	assert.Equal(t, 1, s.Len())
}

func TestForEach_StopsEarly(t *testing.T) {
	s := NewStore()
	s.Create()
	s.Create()
	s.Create()

	seen := 0
	s.ForEach(func(domain.Session) bool {
		seen++
		return false
	})
	assert.Equal(t, 1, seen)
}

func TestAppend_DuplicateMessageID(t *testing.T) {
	s := NewStore()
	sess := s.Create()

	_, err := s.Append(sess.ID, domain.Message{ID: "wamid.R1", Content: "first"})
	require.NoError(t, err)

	existing, err := s.Append(sess.ID, domain.Message{ID: "wamid.R1", Content: "retry"})
	assert.ErrorIs(t, err, ErrDuplicateMessage)
	assert.Equal(t, "first", existing.Content)

	got, err := s.Get(sess.ID)
	require.NoError(t, err)
	assert.Len(t, got.Messages, 1)
}

func TestMarkKeepalive(t *testing.T) {
	clock := newFakeClock()
	s := NewStore(WithClock(clock.Now))
	sess := s.Create()

	clock.Advance(23 * time.Hour)
	require.NoError(t, s.MarkKeepalive(sess.ID, "wamid.K1"))
	require.NoError(t, s.MarkKeepalive(sess.ID, "wamid.K2"))

	got, err := s.Get(sess.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Keepalives)
	assert.Empty(t, got.Messages)
	assert.Equal(t, clock.Now(), got.LastActivity)

	sid, ok := s.Resolve("wamid.K1")
	assert.True(t, ok)
	assert.Equal(t, sess.ID, sid)

	_, err = s.Append(sess.ID, domain.Message{ID: "m1"})
	require.NoError(t, err)
	got, _ = s.Get(sess.ID)
	assert.Zero(t, got.Keepalives)

	assert.ErrorIs(t, s.MarkKeepalive("missing", "wamid.K3"), ErrNotFound)
}
