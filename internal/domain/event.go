package domain

import "time"

// InboundKind tags the variant held by an InboundEvent.
type InboundKind string

const (
	InboundStatus InboundKind = "status"
	InboundReply  InboundKind = "reply"
)

// StatusEvent is a delivery receipt for a previously sent message.
type StatusEvent struct {
	ProviderMessageID string         `json:"providerMessageId"`
	Status            DeliveryStatus `json:"status"`
	Recipient         string         `json:"recipient,omitempty"`
	Timestamp         time.Time      `json:"timestamp"`
	ErrorDetail       string         `json:"errorDetail,omitempty"`
}

// ReplyEvent is a message from the owner. InReplyTo is the provider id of the
// outbound message the owner replied to; it is empty for messages sent
// without a reply context.
type ReplyEvent struct {
	ProviderMessageID string    `json:"providerMessageId"`
	InReplyTo         string    `json:"inReplyTo,omitempty"`
	From              string    `json:"from"`
	Content           Content   `json:"content"`
	Timestamp         time.Time `json:"timestamp"`
}

// InboundEvent is one decoded webhook item.
type InboundEvent struct {
	Kind   InboundKind  `json:"kind"`
	Status *StatusEvent `json:"status,omitempty"`
	Reply  *ReplyEvent  `json:"reply,omitempty"`
}

// ProviderMessageID returns the id the event should be correlated by.
func (e InboundEvent) ProviderMessageID() string {
	switch e.Kind {
	case InboundStatus:
		if e.Status != nil {
			return e.Status.ProviderMessageID
		}
	case InboundReply:
		if e.Reply != nil {
			return e.Reply.InReplyTo
		}
	}
	return ""
}
