package domain

import "time"

// SessionStatus is informational; every non-evicted session accepts messages.
type SessionStatus string

const (
	SessionActive  SessionStatus = "active"
	SessionIdle    SessionStatus = "idle"
	SessionExpired SessionStatus = "expired"
)

// Session is one visitor's conversation with the owner.
type Session struct {
	ID             string        `json:"sessionId"`
	CustomerID     string        `json:"customerId"`
	Messages       []Message     `json:"messages"`
	CorrelationIDs []string      `json:"correlationIds,omitempty"`
	Status         SessionStatus `json:"status"`
	CreatedAt      time.Time     `json:"createdAt"`
	LastActivity   time.Time     `json:"lastActivity"`

	// Keepalives counts keepalive templates sent since the last real message.
	Keepalives int `json:"keepalives,omitempty"`
}

// Clone returns a deep copy safe to hand out of the store.
func (s *Session) Clone() Session {
	out := *s
	out.Messages = make([]Message, len(s.Messages))
	for i, m := range s.Messages {
		out.Messages[i] = m.Clone()
	}
	out.CorrelationIDs = append([]string(nil), s.CorrelationIDs...)
	return out
}

// InactiveFor reports how long the session has been without activity at now.
func (s *Session) InactiveFor(now time.Time) time.Duration {
	return now.Sub(s.LastActivity)
}

// UpdateKind tells a realtime client how to merge a SessionUpdate.
type UpdateKind string

const (
	UpdateMessage UpdateKind = "message"
	UpdateStatus  UpdateKind = "status"
)

// SessionUpdate is produced by the reconciler whenever a session changes in a
// way a connected client should see. Clients merge Message by ID.
type SessionUpdate struct {
	SessionID string     `json:"sessionId"`
	Kind      UpdateKind `json:"kind"`
	Message   Message    `json:"message"`
}
