package domain

import "time"

// Sender identifies which side of the relay originated a message.
type Sender string

const (
	SenderCustomer Sender = "customer"
	SenderOwner    Sender = "owner"
)

// DeliveryStatus follows the provider's delivery receipts.
type DeliveryStatus string

const (
	StatusSent      DeliveryStatus = "sent"
	StatusDelivered DeliveryStatus = "delivered"
	StatusRead      DeliveryStatus = "read"
	StatusFailed    DeliveryStatus = "failed"
)

// Rank orders statuses sent < delivered < read < failed. Unknown statuses rank 0.
func (s DeliveryStatus) Rank() int {
	switch s {
	case StatusSent:
		return 1
	case StatusDelivered:
		return 2
	case StatusRead:
		return 3
	case StatusFailed:
		return 4
	default:
		return 0
	}
}

// Valid reports whether s is one of the known statuses.
func (s DeliveryStatus) Valid() bool { return s.Rank() > 0 }

// Advances reports whether moving from s to next is forward progress.
func (s DeliveryStatus) Advances(next DeliveryStatus) bool {
	return next.Valid() && next.Rank() > s.Rank()
}

// Media describes a non-text payload.
type Media struct {
	Type     string `json:"type"`
	ID       string `json:"id,omitempty"`
	URL      string `json:"url,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
	Caption  string `json:"caption,omitempty"`
}

// Message is a single entry in a session's history.
type Message struct {
	ID             string         `json:"id"`
	Sender         Sender         `json:"sender"`
	Content        string         `json:"content"`
	Media          *Media         `json:"media,omitempty"`
	Template       string         `json:"template,omitempty"`
	Timestamp      time.Time      `json:"timestamp"`
	DeliveryStatus DeliveryStatus `json:"status"`
	InReplyTo      string         `json:"inReplyTo,omitempty"`
}

// Clone returns a copy that shares no pointers with m.
func (m Message) Clone() Message {
	if m.Media != nil {
		media := *m.Media
		m.Media = &media
	}
	return m
}
