// Package session owns the in-memory session registry and the global
// correlation index that maps provider message ids back to sessions.
package session

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/soyeahso/relaychat/internal/domain"
)

var (
	ErrNotFound            = errors.New("session not found")
	ErrCorrelationConflict = errors.New("provider message id already belongs to another session")
	ErrDuplicateMessage    = errors.New("message id already present in session")
)

// Clock returns the current time.
type Clock func() time.Time

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source, mostly for tests.
func WithClock(c Clock) Option {
	return func(s *Store) { s.now = c }
}

// WithCustomerPrefix changes the customer id prefix (default "cust").
func WithCustomerPrefix(p string) Option {
	return func(s *Store) { s.customerPrefix = p }
}

// Store is the process-wide session registry. Sessions and the correlation
// index share one mutex so eviction removes both atomically.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*domain.Session // session id → session
	index    correlationIndex

	customerSeq    atomic.Int64
	customerPrefix string
	now            Clock
}

// NewStore creates an empty store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		sessions:       make(map[string]*domain.Session),
		index:          newCorrelationIndex(),
		customerPrefix: "cust",
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create allocates a fresh, empty session.
func (s *Store) Create() domain.Session {
	now := s.now()
	sess := &domain.Session{
		ID:           uuid.New().String(),
		CustomerID:   fmt.Sprintf("%s%d", s.customerPrefix, s.customerSeq.Add(1)),
		Messages:     []domain.Message{},
		Status:       domain.SessionActive,
		CreatedAt:    now,
		LastActivity: now,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = sess
	return sess.Clone()
}

// Get returns a snapshot of the session.
func (s *Store) Get(id string) (domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return domain.Session{}, ErrNotFound
	}
	return sess.Clone(), nil
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// ForEach calls fn with a snapshot of every session until fn returns false.
// Snapshots are taken up front so fn may call back into the store.
func (s *Store) ForEach(fn func(domain.Session) bool) {
	s.mu.RLock()
	snaps := make([]domain.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		snaps = append(snaps, sess.Clone())
	}
	s.mu.RUnlock()

	for _, snap := range snaps {
		if !fn(snap) {
			return
		}
	}
}

// Evict removes the session and every correlation entry it owns.
func (s *Store) Evict(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return false
	}
	s.evictLocked(sess)
	return true
}

// EvictIfInactive evicts the session only if its last activity is before
// cutoff. The check and the removal happen under one lock, so traffic that
// lands after a caller's snapshot keeps the session alive.
func (s *Store) EvictIfInactive(id string, cutoff time.Time) (domain.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok || !sess.LastActivity.Before(cutoff) {
		return domain.Session{}, false
	}
	snap := sess.Clone()
	s.evictLocked(sess)
	return snap, true
}

func (s *Store) evictLocked(sess *domain.Session) {
	for _, pid := range sess.CorrelationIDs {
		s.index.remove(pid, sess.ID)
	}
	delete(s.sessions, sess.ID)
}

// Touch marks activity on the session. LastActivity never moves backwards.
func (s *Store) Touch(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return ErrNotFound
	}
	s.touchLocked(sess)
	return nil
}

// SetStatus updates the informational session status.
func (s *Store) SetStatus(id string, status domain.SessionStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return ErrNotFound
	}
	sess.Status = status
	return nil
}

// Append adds msg to the session history, records each correlation id for
// the session and marks activity, all under one lock. Correlation ids are
// recorded before Append returns so a fast webhook can always resolve them.
// A message whose id is already in the session is not added again; the
// stored copy is returned with ErrDuplicateMessage.
func (s *Store) Append(id string, msg domain.Message, correlationIDs ...string) (domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return domain.Message{}, ErrNotFound
	}
	if msg.ID != "" {
		for i := range sess.Messages {
			if sess.Messages[i].ID == msg.ID {
				return sess.Messages[i].Clone(), ErrDuplicateMessage
			}
		}
	}
	for _, pid := range correlationIDs {
		if err := s.recordLocked(sess, pid); err != nil {
			return domain.Message{}, err
		}
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = s.now()
	}
	sess.Messages = append(sess.Messages, msg.Clone())
	sess.Keepalives = 0
	s.touchLocked(sess)
	return msg.Clone(), nil
}

// Record maps a provider message id to the session. Recording the same pair
// twice is a no-op; recording an id already owned by another session fails.
func (s *Store) Record(id, providerMessageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return ErrNotFound
	}
	return s.recordLocked(sess, providerMessageID)
}

// Resolve returns the session id owning the provider message id.
func (s *Store) Resolve(providerMessageID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index.resolve(providerMessageID)
}

// StatusResult describes the outcome of UpdateStatus.
type StatusResult struct {
	SessionID string
	Message   domain.Message
	// Found is false when the id resolved to a session but no message carries it.
	Found bool
	// Applied is false when the status would have regressed the message.
	Applied bool
}

// UpdateStatus resolves providerMessageID and moves the matching message's
// delivery status forward. Activity is recorded even when the status is stale.
func (s *Store) UpdateStatus(providerMessageID string, status domain.DeliveryStatus) (StatusResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sid, ok := s.index.resolve(providerMessageID)
	if !ok {
		return StatusResult{}, ErrNotFound
	}
	sess, ok := s.sessions[sid]
	if !ok {
		return StatusResult{}, ErrNotFound
	}
	s.touchLocked(sess)

	res := StatusResult{SessionID: sid}
	for i := range sess.Messages {
		m := &sess.Messages[i]
		if m.ID != providerMessageID {
			continue
		}
		res.Found = true
		if m.DeliveryStatus.Advances(status) {
			m.DeliveryStatus = status
			res.Applied = true
		}
		res.Message = m.Clone()
		break
	}
	return res, nil
}

// MarkKeepalive records a keepalive template id for the session, marks
// activity and bumps the keepalive counter. Keepalives are not messages.
func (s *Store) MarkKeepalive(id, providerMessageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return ErrNotFound
	}
	if err := s.recordLocked(sess, providerMessageID); err != nil {
		return err
	}
	sess.Keepalives++
	s.touchLocked(sess)
	return nil
}

func (s *Store) recordLocked(sess *domain.Session, providerMessageID string) error {
	if providerMessageID == "" {
		return nil
	}
	added, err := s.index.record(providerMessageID, sess.ID)
	if err != nil {
		return err
	}
	if added {
		sess.CorrelationIDs = append(sess.CorrelationIDs, providerMessageID)
	}
	return nil
}

func (s *Store) touchLocked(sess *domain.Session) {
	if now := s.now(); now.After(sess.LastActivity) {
		sess.LastActivity = now
	}
}
