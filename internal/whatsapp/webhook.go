package whatsapp

import (
	"encoding/json"
	"net/url"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/soyeahso/relaychat/internal/domain"
)

// Envelope is the top-level webhook delivery body.
type Envelope struct {
	Object string  `json:"object"`
	Entry  []Entry `json:"entry"`
}

// Entry groups the changes for one business account.
type Entry struct {
	ID      string   `json:"id"`
	Changes []Change `json:"changes"`
}

// Change is one field update inside an entry.
type Change struct {
	Field string      `json:"field"`
	Value ChangeValue `json:"value"`
}

// ChangeValue carries inbound messages and delivery statuses.
type ChangeValue struct {
	MessagingProduct string           `json:"messaging_product"`
	Metadata         Metadata         `json:"metadata"`
	Messages         []InboundMessage `json:"messages,omitempty"`
	Statuses         []StatusItem     `json:"statuses,omitempty"`
}

// Metadata identifies the receiving business number.
type Metadata struct {
	DisplayPhoneNumber string `json:"display_phone_number"`
	PhoneNumberID      string `json:"phone_number_id"`
}

// MessageContext is present when the sender used "reply" on a message.
type MessageContext struct {
	From string `json:"from"`
	ID   string `json:"id"`
}

// TextPayload is the body of a text message.
type TextPayload struct {
	Body string `json:"body"`
}

// MediaPayload is the body of an image, audio, video, document or sticker.
type MediaPayload struct {
	ID       string `json:"id"`
	MimeType string `json:"mime_type"`
	Caption  string `json:"caption,omitempty"`
	Filename string `json:"filename,omitempty"`
}

// ButtonPayload is a quick-reply button press on a template.
type ButtonPayload struct {
	Text    string `json:"text"`
	Payload string `json:"payload"`
}

// InboundMessage is one message received by the business number.
type InboundMessage struct {
	ID        string          `json:"id"`
	From      string          `json:"from"`
	Timestamp string          `json:"timestamp"`
	Type      string          `json:"type"`
	Context   *MessageContext `json:"context,omitempty"`
	Text      *TextPayload    `json:"text,omitempty"`
	Image     *MediaPayload   `json:"image,omitempty"`
	Audio     *MediaPayload   `json:"audio,omitempty"`
	Video     *MediaPayload   `json:"video,omitempty"`
	Document  *MediaPayload   `json:"document,omitempty"`
	Sticker   *MediaPayload   `json:"sticker,omitempty"`
	Button    *ButtonPayload  `json:"button,omitempty"`
}

// StatusError is a failure reason attached to a failed status.
type StatusError struct {
	Code    int    `json:"code"`
	Title   string `json:"title"`
	Message string `json:"message,omitempty"`
}

// StatusItem is a delivery receipt for an outbound message.
type StatusItem struct {
	ID          string        `json:"id"`
	Status      string        `json:"status"`
	Timestamp   string        `json:"timestamp"`
	RecipientID string        `json:"recipient_id"`
	Errors      []StatusError `json:"errors,omitempty"`
}

// Skipped records an inbound item that could not be turned into an event.
type Skipped struct {
	ID     string
	Reason string
}

// EntryBatch holds the decoded events of one webhook entry.
type EntryBatch struct {
	EntryID string
	Events  []domain.InboundEvent
	Skipped []Skipped
}

// ParseEnvelope validates the raw body against the envelope schema and
// decodes it.
func ParseEnvelope(body []byte) (Envelope, error) {
	if err := ValidateEnvelope(body); err != nil {
		return Envelope{}, err
	}
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Envelope{}, errors.Wrap(err, "decoding webhook envelope")
	}
	return env, nil
}

// Batches converts the envelope into one batch of domain events per entry.
// Items with unknown types or statuses are reported in Skipped rather than
// failing the whole delivery.
func (e Envelope) Batches() []EntryBatch {
	batches := make([]EntryBatch, 0, len(e.Entry))
	for _, entry := range e.Entry {
		b := EntryBatch{EntryID: entry.ID}
		for _, change := range entry.Changes {
			for _, msg := range change.Value.Messages {
				ev, err := msg.toEvent()
				if err != nil {
					b.Skipped = append(b.Skipped, Skipped{ID: msg.ID, Reason: err.Error()})
					continue
				}
				b.Events = append(b.Events, ev)
			}
			for _, st := range change.Value.Statuses {
				ev, err := st.toEvent()
				if err != nil {
					b.Skipped = append(b.Skipped, Skipped{ID: st.ID, Reason: err.Error()})
					continue
				}
				b.Events = append(b.Events, ev)
			}
		}
		batches = append(batches, b)
	}
	return batches
}

func (m InboundMessage) toEvent() (domain.InboundEvent, error) {
	if m.ID == "" {
		return domain.InboundEvent{}, errors.New("message without id")
	}
	if m.From == "" {
		return domain.InboundEvent{}, errors.New("message without sender")
	}
	var content domain.Content
	media := func(p *MediaPayload) (domain.Content, error) {
		if p == nil {
			return domain.Content{}, errors.Errorf("%s message without %s payload", m.Type, m.Type)
		}
		caption := p.Caption
		if caption == "" {
			caption = p.Filename
		}
		return domain.MediaContent(domain.Media{Type: m.Type, ID: p.ID, MimeType: p.MimeType, Caption: caption}), nil
	}

	var err error
	switch m.Type {
	case "text":
		if m.Text == nil {
			return domain.InboundEvent{}, errors.New("text message without body")
		}
		content = domain.TextContent(m.Text.Body)
	case "button":
		if m.Button == nil {
			return domain.InboundEvent{}, errors.New("button message without payload")
		}
		content = domain.TextContent(m.Button.Text)
	case "image":
		content, err = media(m.Image)
	case "audio":
		content, err = media(m.Audio)
	case "video":
		content, err = media(m.Video)
	case "document":
		content, err = media(m.Document)
	case "sticker":
		content, err = media(m.Sticker)
	default:
		return domain.InboundEvent{}, errors.Errorf("unsupported message type %q", m.Type)
	}
	if err != nil {
		return domain.InboundEvent{}, err
	}

	reply := &domain.ReplyEvent{
		ProviderMessageID: m.ID,
		From:              m.From,
		Content:           content,
		Timestamp:         parseUnix(m.Timestamp),
	}
	if m.Context != nil {
		reply.InReplyTo = m.Context.ID
	}
	return domain.InboundEvent{Kind: domain.InboundReply, Reply: reply}, nil
}

func (s StatusItem) toEvent() (domain.InboundEvent, error) {
	if s.ID == "" {
		return domain.InboundEvent{}, errors.New("status without message id")
	}
	status := domain.DeliveryStatus(s.Status)
	if !status.Valid() {
		return domain.InboundEvent{}, errors.Errorf("unknown status %q", s.Status)
	}
	ev := &domain.StatusEvent{
		ProviderMessageID: s.ID,
		Status:            status,
		Recipient:         s.RecipientID,
		Timestamp:         parseUnix(s.Timestamp),
	}
	if len(s.Errors) > 0 {
		ev.ErrorDetail = strconv.Itoa(s.Errors[0].Code) + ": " + s.Errors[0].Title
	}
	return domain.InboundEvent{Kind: domain.InboundStatus, Status: ev}, nil
}

// parseUnix converts the provider's unix-seconds string; a missing or
// malformed value yields the zero time.
func parseUnix(s string) time.Time {
	secs, err := strconv.ParseInt(s, 10, 64)
	if err != nil || secs <= 0 {
		return time.Time{}
	}
	return time.Unix(secs, 0).UTC()
}

// VerifyChallenge implements the subscription handshake: when hub.mode is
// "subscribe" and hub.verify_token matches token, the challenge to echo back
// is returned with ok set.
func VerifyChallenge(q url.Values, token string) (challenge string, ok bool) {
	if token == "" {
		return "", false
	}
	if q.Get("hub.mode") != "subscribe" || !constantTimeEqual(q.Get("hub.verify_token"), token) {
		return "", false
	}
	return q.Get("hub.challenge"), true
}
