// Package relay holds the correlation core: the outbound dispatcher, the
// inbound reconciler and the maintenance scheduler.
package relay

import (
	"context"
	"strings"
	"time"

	"github.com/soyeahso/relaychat/internal/domain"
	"github.com/soyeahso/relaychat/internal/hooks"
	"github.com/soyeahso/relaychat/internal/journal"
	"github.com/soyeahso/relaychat/internal/logging"
	"github.com/soyeahso/relaychat/internal/session"
)

// Publisher delivers session updates to the realtime side.
type Publisher interface {
	Publish(ctx context.Context, u domain.SessionUpdate) error
}

// Journal is the audit trail written by relay components.
type Journal interface {
	Append(ctx context.Context, e journal.Entry) error
	Prune(ctx context.Context, before time.Time) (int64, error)
}

// Deps are the collaborators shared by the relay components. Publisher,
// Journal and Hooks are optional.
type Deps struct {
	Store     *session.Store
	Messenger domain.Messenger
	Publisher Publisher
	Journal   Journal
	Hooks     hooks.Emitter
	Log       *logging.Logger
	Now       func() time.Time
}

func (d Deps) withDefaults() Deps {
	if d.Publisher == nil {
		d.Publisher = nopPublisher{}
	}
	if d.Journal == nil {
		d.Journal = nopJournal{}
	}
	if d.Hooks == nil {
		d.Hooks = (*hooks.Manager)(nil)
	}
	if d.Log == nil {
		d.Log = logging.Nop()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return d
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, domain.SessionUpdate) error { return nil }

type nopJournal struct{}

func (nopJournal) Append(context.Context, journal.Entry) error     { return nil }
func (nopJournal) Prune(context.Context, time.Time) (int64, error) { return 0, nil }

// publish pushes an update, logging rather than failing on error.
func publish(ctx context.Context, d Deps, log *logging.Logger, u domain.SessionUpdate) {
	if err := d.Publisher.Publish(ctx, u); err != nil {
		log.Warn().Err(err).Str("sessionId", u.SessionID).Str("kind", string(u.Kind)).Msg("publishing session update")
	}
}

// record writes a journal entry, logging rather than failing on error.
func record(ctx context.Context, d Deps, log *logging.Logger, e journal.Entry) {
	if err := d.Journal.Append(ctx, e); err != nil {
		log.Warn().Err(err).Str("sessionId", e.SessionID).Str("kind", string(e.Kind)).Msg("journal append failed")
	}
}

// samePhone compares phone numbers ignoring formatting characters.
func samePhone(a, b string) bool {
	return normalizePhone(a) == normalizePhone(b)
}

func normalizePhone(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, s)
}
