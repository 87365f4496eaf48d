package relay

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/soyeahso/relaychat/internal/config"
	"github.com/soyeahso/relaychat/internal/domain"
	"github.com/soyeahso/relaychat/internal/hooks"
	"github.com/soyeahso/relaychat/internal/journal"
	"github.com/soyeahso/relaychat/internal/logging"
	"github.com/soyeahso/relaychat/internal/session"
	"github.com/soyeahso/relaychat/internal/whatsapp"
)

// SendResult is the outcome of a successful Dispatcher.Send.
type SendResult struct {
	MessageID   string `json:"messageId"`
	CustomerID  string `json:"customerId"`
	ViaTemplate bool   `json:"viaTemplate,omitempty"`
}

// Dispatcher sends visitor messages to the owner and records the resulting
// provider ids for correlation.
type Dispatcher struct {
	deps        Deps
	owner       string
	textFormat  string
	templates   config.TemplatesConfig
	windowCodes []int
	log         *logging.Logger
}

// NewDispatcher creates a dispatcher for the configured owner number.
func NewDispatcher(deps Deps, cfg config.ProviderConfig) *Dispatcher {
	deps = deps.withDefaults()
	format := cfg.TextFormat
	if format == "" {
		format = "[%s] %s"
	}
	return &Dispatcher{
		deps:        deps,
		owner:       cfg.OwnerNumber,
		textFormat:  format,
		templates:   cfg.Templates,
		windowCodes: cfg.WindowErrorCodes,
		log:         deps.Log.Sub("relay.dispatch"),
	}
}

// Send relays text from a session to the owner. When the provider rejects
// the free-form message because the window has lapsed, one template is sent
// to reopen it and the text is retried once.
func (d *Dispatcher) Send(ctx context.Context, sessionID, text string) (SendResult, error) {
	if strings.TrimSpace(sessionID) == "" {
		return SendResult{}, validationError("sessionId is required")
	}
	if strings.TrimSpace(text) == "" {
		return SendResult{}, validationError("message is required")
	}

	sess, err := d.deps.Store.Get(sessionID)
	if err != nil {
		return SendResult{}, ErrSessionNotFound
	}
	log := d.log.With("sessionId", sessionID)
	result := SendResult{CustomerID: sess.CustomerID}

	id, err := d.sendText(ctx, sess.CustomerID, text)
	if err == nil {
		if err := d.appendOutbound(ctx, sess, id, text, ""); err != nil {
			return SendResult{}, err
		}
		result.MessageID = id
		return result, nil
	}

	if !whatsapp.IsWindowExpired(err, d.windowCodes) {
		d.touch(sessionID)
		return SendResult{}, d.failure(log, "send", err)
	}

	log.Info().Str("customerId", sess.CustomerID).Msg("messaging window expired, sending template")

	tmpl := domain.TemplateContent(d.templates.CustomerMessage, d.templates.Language, sess.CustomerID, text)
	templateID, err := d.deps.Messenger.Send(ctx, d.owner, tmpl)
	if err != nil {
		d.touch(sessionID)
		return SendResult{}, d.failure(log, "template", err)
	}
	if err := d.appendOutbound(ctx, sess, templateID, text, d.templates.CustomerMessage); err != nil {
		return SendResult{}, err
	}

	retryID, err := d.sendText(ctx, sess.CustomerID, text)
	if err != nil {
		d.touch(sessionID)
		return SendResult{}, d.failure(log, "retry", err)
	}
	if err := d.appendOutbound(ctx, sess, retryID, text, ""); err != nil {
		return SendResult{}, err
	}

	result.MessageID = retryID
	result.ViaTemplate = true
	return result, nil
}

func (d *Dispatcher) sendText(ctx context.Context, customerID, text string) (string, error) {
	body := fmt.Sprintf(d.textFormat, customerID, text)
	return d.deps.Messenger.Send(ctx, d.owner, domain.TextContent(body))
}

// appendOutbound adds a sent message to the session and records its id in
// the correlation index before the caller sees the result.
func (d *Dispatcher) appendOutbound(ctx context.Context, sess domain.Session, providerID, text, template string) error {
	msg := domain.Message{
		ID:             providerID,
		Sender:         domain.SenderCustomer,
		Content:        text,
		Template:       template,
		Timestamp:      d.deps.Now(),
		DeliveryStatus: domain.StatusSent,
	}

	stored, err := d.deps.Store.Append(sess.ID, msg, providerID)
	switch {
	case errors.Is(err, session.ErrNotFound):
		// evicted while the provider call was in flight
		return ErrSessionNotFound
	case err != nil:
		return errors.Wrapf(err, "recording message %s", providerID)
	}

	kind := journal.KindText
	if template != "" {
		kind = journal.KindTemplate
	}
	record(ctx, d.deps, d.log, journal.Entry{
		SessionID:         sess.ID,
		CustomerID:        sess.CustomerID,
		Direction:         journal.Outbound,
		Kind:              kind,
		ProviderMessageID: providerID,
		Status:            string(domain.StatusSent),
		Body:              text,
	})
	publish(ctx, d.deps, d.log, domain.SessionUpdate{SessionID: sess.ID, Kind: domain.UpdateMessage, Message: stored})
	d.deps.Hooks.EmitAsync(ctx, hooks.EventMessageSent, map[string]any{
		"sessionId":  sess.ID,
		"customerId": sess.CustomerID,
		"messageId":  providerID,
		"template":   template,
	})
	return nil
}

func (d *Dispatcher) touch(sessionID string) {
	if err := d.deps.Store.Touch(sessionID); err != nil {
		d.log.Debug().Err(err).Str("sessionId", sessionID).Msg("touch after failed send")
	}
}

func (d *Dispatcher) failure(log *logging.Logger, op string, err error) error {
	derr := &DeliveryError{
		Op:            op,
		WindowExpired: whatsapp.IsWindowExpired(err, d.windowCodes),
		Details:       whatsapp.Details(err),
		Err:           err,
	}
	ev := log.Error().Err(err).Str("op", op)
	if derr.Details != nil {
		ev = ev.Fields(derr.Details)
	}
	ev.Msg("provider send failed")
	return derr
}
