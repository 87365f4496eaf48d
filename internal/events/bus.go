// Package events carries SessionUpdate values from the relay to the
// realtime gateway over an in-process watermill pub/sub.
package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/soyeahso/relaychat/internal/domain"
	"github.com/soyeahso/relaychat/internal/logging"
)

// Topic is the watermill topic session updates are published on.
const Topic = "relaychat.session-updates"

const (
	metaSessionID = "session_id"
	metaKind      = "kind"
)

// Bus publishes and fans out session updates. Updates published while
// nobody is subscribed are dropped.
type Bus struct {
	pubsub *gochannel.GoChannel
	log    *logging.Logger
}

// NewBus creates an in-process bus. Publish blocks until each subscriber has
// taken the update, so subscribers observe updates in publish order.
func NewBus(log *logging.Logger) *Bus {
	l := log.Sub("events")
	return &Bus{
		pubsub: gochannel.NewGoChannel(gochannel.Config{
			OutputChannelBuffer:            64,
			BlockPublishUntilSubscriberAck: true,
		}, newWatermillLogger(l)),
		log: l,
	}
}

// Publish sends an update to every current subscriber.
func (b *Bus) Publish(ctx context.Context, u domain.SessionUpdate) error {
	payload, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("encoding session update: %w", err)
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set(metaSessionID, u.SessionID)
	msg.Metadata.Set(metaKind, string(u.Kind))
	msg.SetContext(ctx)

	if err := b.pubsub.Publish(Topic, msg); err != nil {
		return fmt.Errorf("publishing session update: %w", err)
	}
	return nil
}

// Subscribe returns a channel of decoded updates that is closed when ctx is
// cancelled or the bus is closed.
func (b *Bus) Subscribe(ctx context.Context) (<-chan domain.SessionUpdate, error) {
	msgs, err := b.pubsub.Subscribe(ctx, Topic)
	if err != nil {
		return nil, fmt.Errorf("subscribing to session updates: %w", err)
	}

	out := make(chan domain.SessionUpdate, 64)
	go func() {
		defer close(out)
		for msg := range msgs {
			var u domain.SessionUpdate
			if err := json.Unmarshal(msg.Payload, &u); err != nil {
				b.log.Warn().Err(err).Str("uuid", msg.UUID).Msg("dropping undecodable session update")
				msg.Ack()
				continue
			}
			select {
			case out <- u:
				msg.Ack()
			case <-ctx.Done():
				msg.Nack()
				return
			}
		}
	}()
	return out, nil
}

// Close shuts the bus down and closes all subscription channels.
func (b *Bus) Close() error {
	return b.pubsub.Close()
}

// watermillLogger adapts logging.Logger to watermill.LoggerAdapter.
type watermillLogger struct {
	log    *logging.Logger
	fields watermill.LogFields
}

func newWatermillLogger(log *logging.Logger) watermill.LoggerAdapter {
	return &watermillLogger{log: log}
}

func (w *watermillLogger) merged(fields watermill.LogFields) map[string]any {
	return w.fields.Add(fields)
}

func (w *watermillLogger) Error(msg string, err error, fields watermill.LogFields) {
	w.log.Error().Err(err).Fields(w.merged(fields)).Msg(msg)
}

func (w *watermillLogger) Info(msg string, fields watermill.LogFields) {
	w.log.Debug().Fields(w.merged(fields)).Msg(msg)
}

func (w *watermillLogger) Debug(msg string, fields watermill.LogFields) {
	w.log.Trace().Fields(w.merged(fields)).Msg(msg)
}

func (w *watermillLogger) Trace(msg string, fields watermill.LogFields) {
	w.log.Trace().Fields(w.merged(fields)).Msg(msg)
}

func (w *watermillLogger) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &watermillLogger{log: w.log, fields: w.fields.Add(fields)}
}
