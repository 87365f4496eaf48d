package relay

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/soyeahso/relaychat/internal/domain"
	"github.com/soyeahso/relaychat/internal/hooks"
	"github.com/soyeahso/relaychat/internal/journal"
	"github.com/soyeahso/relaychat/internal/logging"
	"github.com/soyeahso/relaychat/internal/session"
)

// Reconciler applies inbound provider events to sessions and publishes the
// resulting updates.
type Reconciler struct {
	deps  Deps
	owner string
	log   *logging.Logger
}

// NewReconciler creates a reconciler. When owner is set, replies from any
// other number are dropped.
func NewReconciler(deps Deps, owner string) *Reconciler {
	deps = deps.withDefaults()
	return &Reconciler{deps: deps, owner: owner, log: deps.Log.Sub("relay.reconcile")}
}

// BatchResult counts the outcomes of HandleBatch.
type BatchResult struct {
	Applied  int `json:"applied"`
	Orphaned int `json:"orphaned"`
	Failed   int `json:"failed"`
}

// HandleBatch applies events in order. A failing event does not stop the rest.
func (r *Reconciler) HandleBatch(ctx context.Context, events []domain.InboundEvent) BatchResult {
	var res BatchResult
	for _, ev := range events {
		err := r.HandleEvent(ctx, ev)
		switch {
		case err == nil:
			res.Applied++
		case errors.Is(err, ErrOrphanedEvent):
			res.Orphaned++
		default:
			res.Failed++
			r.log.Error().Err(err).Str("kind", string(ev.Kind)).Str("providerMessageId", ev.ProviderMessageID()).Msg("webhook event failed")
		}
	}
	return res
}

// HandleEvent applies one event. Events that cannot be attributed to a
// session are logged and reported as ErrOrphanedEvent.
func (r *Reconciler) HandleEvent(ctx context.Context, ev domain.InboundEvent) error {
	switch {
	case ev.Kind == domain.InboundStatus && ev.Status != nil:
		return r.handleStatus(ctx, *ev.Status)
	case ev.Kind == domain.InboundReply && ev.Reply != nil:
		return r.handleReply(ctx, *ev.Reply)
	default:
		return errors.Errorf("malformed inbound event of kind %q", ev.Kind)
	}
}

func (r *Reconciler) orphan(reason, providerID string) error {
	r.log.Warn().Str("providerMessageId", providerID).Str("reason", reason).Msg("dropping orphaned webhook event")
	return errors.WithMessage(ErrOrphanedEvent, reason)
}

func (r *Reconciler) handleStatus(ctx context.Context, st domain.StatusEvent) error {
	res, err := r.deps.Store.UpdateStatus(st.ProviderMessageID, st.Status)
	if errors.Is(err, session.ErrNotFound) {
		return r.orphan("status for unknown message", st.ProviderMessageID)
	}
	if err != nil {
		return err
	}

	log := r.log.With("sessionId", res.SessionID)
	switch {
	case !res.Found:
		// correlated id without a history entry, e.g. a keepalive
		log.Debug().Str("providerMessageId", st.ProviderMessageID).Str("status", string(st.Status)).Msg("status for untracked message")
		return nil
	case !res.Applied:
		log.Debug().
			Str("providerMessageId", st.ProviderMessageID).
			Str("current", string(res.Message.DeliveryStatus)).
			Str("incoming", string(st.Status)).
			Msg("ignoring stale status")
		return nil
	}

	if st.Status == domain.StatusFailed {
		log.Warn().Str("providerMessageId", st.ProviderMessageID).Str("detail", st.ErrorDetail).Msg("provider reports delivery failure")
	}

	record(ctx, r.deps, r.log, journal.Entry{
		SessionID:         res.SessionID,
		Direction:         journal.Inbound,
		Kind:              journal.KindStatus,
		ProviderMessageID: st.ProviderMessageID,
		Status:            string(st.Status),
		Body:              st.ErrorDetail,
	})
	publish(ctx, r.deps, r.log, domain.SessionUpdate{SessionID: res.SessionID, Kind: domain.UpdateStatus, Message: res.Message})
	r.deps.Hooks.EmitAsync(ctx, hooks.EventStatusUpdated, map[string]any{
		"sessionId": res.SessionID,
		"messageId": st.ProviderMessageID,
		"status":    string(st.Status),
	})
	return nil
}

func (r *Reconciler) handleReply(ctx context.Context, reply domain.ReplyEvent) error {
	if r.owner != "" && !samePhone(reply.From, r.owner) {
		return r.orphan("reply from unexpected sender", reply.ProviderMessageID)
	}
	if reply.InReplyTo == "" {
		return r.orphan("reply without context", reply.ProviderMessageID)
	}
	sid, ok := r.deps.Store.Resolve(reply.InReplyTo)
	if !ok {
		return r.orphan("reply to unknown message", reply.InReplyTo)
	}
	log := r.log.With("sessionId", sid)

	msg := domain.Message{
		ID:             reply.ProviderMessageID,
		Sender:         domain.SenderOwner,
		Content:        reply.Content.Summary(),
		Timestamp:      reply.Timestamp,
		DeliveryStatus: domain.StatusDelivered,
		InReplyTo:      reply.InReplyTo,
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if m := reply.Content.Media; m != nil {
		media := *m
		if media.URL == "" && media.ID != "" {
			// network call, made outside any store lock
			url, err := r.deps.Messenger.MediaURL(ctx, media.ID)
			if err != nil {
				log.Warn().Err(err).Str("mediaId", media.ID).Msg("media lookup failed, relaying without url")
			}
			media.URL = url
		}
		msg.Media = &media
	}

	stored, err := r.deps.Store.Append(sid, msg, reply.ProviderMessageID)
	switch {
	case errors.Is(err, session.ErrDuplicateMessage):
		log.Debug().Str("providerMessageId", msg.ID).Msg("duplicate reply delivery")
		return nil
	case errors.Is(err, session.ErrNotFound):
		return r.orphan("session evicted during reconcile", reply.InReplyTo)
	case err != nil:
		return errors.Wrapf(err, "appending reply %s", msg.ID)
	}

	sess, _ := r.deps.Store.Get(sid)
	log.Info().Str("providerMessageId", stored.ID).Str("inReplyTo", reply.InReplyTo).Msg("owner reply relayed")

	body := stored.Content
	if stored.Media != nil && body == "" {
		body = stored.Media.Type
	}
	record(ctx, r.deps, r.log, journal.Entry{
		SessionID:         sid,
		CustomerID:        sess.CustomerID,
		Direction:         journal.Inbound,
		Kind:              journal.KindReply,
		ProviderMessageID: stored.ID,
		Status:            string(stored.DeliveryStatus),
		Body:              body,
	})
	publish(ctx, r.deps, r.log, domain.SessionUpdate{SessionID: sid, Kind: domain.UpdateMessage, Message: stored})
	r.deps.Hooks.EmitAsync(ctx, hooks.EventReplyReceived, map[string]any{
		"sessionId":  sid,
		"customerId": sess.CustomerID,
		"messageId":  stored.ID,
		"inReplyTo":  reply.InReplyTo,
	})
	return nil
}
