package relay

import (
	"context"
	"time"

	"github.com/soyeahso/relaychat/internal/config"
	"github.com/soyeahso/relaychat/internal/domain"
	"github.com/soyeahso/relaychat/internal/hooks"
	"github.com/soyeahso/relaychat/internal/journal"
	"github.com/soyeahso/relaychat/internal/logging"
)

// Scheduler periodically refreshes sessions nearing the provider window,
// derives session status and evicts sessions past retention.
type Scheduler struct {
	deps      Deps
	owner     string
	templates config.TemplatesConfig
	cfg       config.SessionConfig
	log       *logging.Logger
}

// NewScheduler creates a scheduler.
func NewScheduler(deps Deps, provider config.ProviderConfig, cfg config.SessionConfig) *Scheduler {
	deps = deps.withDefaults()
	return &Scheduler{
		deps:      deps,
		owner:     provider.OwnerNumber,
		templates: provider.Templates,
		cfg:       cfg,
		log:       deps.Log.Sub("relay.scheduler"),
	}
}

// SweepResult summarizes one maintenance pass.
type SweepResult struct {
	Scanned       int   `json:"scanned"`
	Refreshed     int   `json:"refreshed"`
	RefreshFailed int   `json:"refreshFailed"`
	Evicted       int   `json:"evicted"`
	StatusChanged int   `json:"statusChanged"`
	JournalPruned int64 `json:"journalPruned"`
}

// Run sweeps on every tick until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	interval := s.cfg.SweepInterval()
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.log.Info().Dur("interval", interval).Msg("maintenance scheduler started")
	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("maintenance scheduler stopped")
			return nil
		case <-ticker.C:
			res := s.Sweep(ctx, s.deps.Now())
			s.log.Debug().
				Int("scanned", res.Scanned).
				Int("refreshed", res.Refreshed).
				Int("evicted", res.Evicted).
				Int64("journalPruned", res.JournalPruned).
				Msg("sweep complete")
		}
	}
}

// Sweep runs one maintenance pass as of now. Sessions are snapshotted first
// so provider calls never run while the store is locked.
func (s *Scheduler) Sweep(ctx context.Context, now time.Time) SweepResult {
	var (
		res      SweepResult
		sessions []domain.Session
	)
	s.deps.Store.ForEach(func(sess domain.Session) bool {
		sessions = append(sessions, sess)
		return true
	})
	res.Scanned = len(sessions)

	var stale []string
	for _, sess := range sessions {
		if ctx.Err() != nil {
			break
		}
		inactive := sess.InactiveFor(now)

		if inactive > s.cfg.Retention() {
			stale = append(stale, sess.ID)
			continue
		}

		if s.needsKeepalive(sess, now) {
			if s.refresh(ctx, sess) {
				res.Refreshed++
				inactive = 0
			} else {
				res.RefreshFailed++
			}
		}

		if status := s.statusFor(inactive); status != sess.Status {
			if err := s.deps.Store.SetStatus(sess.ID, status); err == nil {
				res.StatusChanged++
			}
		}
	}

	// Eviction runs after every provider call of this pass and re-checks
	// activity under the store lock, so traffic since the snapshot wins.
	cutoff := now.Add(-s.cfg.Retention())
	for _, id := range stale {
		if cur, ok := s.deps.Store.EvictIfInactive(id, cutoff); ok {
			res.Evicted++
			s.evicted(ctx, cur, now.Sub(cur.LastActivity))
		}
	}

	if horizon := s.cfg.Retention(); horizon > 0 {
		n, err := s.deps.Journal.Prune(ctx, now.Add(-horizon))
		if err != nil {
			s.log.Warn().Err(err).Msg("journal prune failed")
		}
		res.JournalPruned = n
	}
	return res
}

// needsKeepalive re-reads the session so traffic that arrived after the
// snapshot suppresses the keepalive.
func (s *Scheduler) needsKeepalive(snap domain.Session, now time.Time) bool {
	inactive := snap.InactiveFor(now)
	if inactive < s.cfg.KeepaliveAfter() || inactive >= s.cfg.Window() {
		return false
	}
	cur, err := s.deps.Store.Get(snap.ID)
	if err != nil || cur.InactiveFor(now) < s.cfg.KeepaliveAfter() {
		return false
	}
	return s.cfg.MaxKeepalives < 0 || cur.Keepalives < s.cfg.MaxKeepalives
}

func (s *Scheduler) statusFor(inactive time.Duration) domain.SessionStatus {
	switch {
	case inactive < s.cfg.IdleAfter():
		return domain.SessionActive
	case inactive < s.cfg.Window():
		return domain.SessionIdle
	default:
		return domain.SessionExpired
	}
}

// refresh sends the keepalive template. Failure is logged, never escalated.
func (s *Scheduler) refresh(ctx context.Context, sess domain.Session) bool {
	log := s.log.With("sessionId", sess.ID)
	content := domain.TemplateContent(s.templates.Keepalive, s.templates.Language)

	id, err := s.deps.Messenger.Send(ctx, s.owner, content)
	if err != nil {
		log.Error().Err(err).Str("template", s.templates.Keepalive).Msg("keepalive send failed")
		return false
	}
	if err := s.deps.Store.MarkKeepalive(sess.ID, id); err != nil {
		log.Warn().Err(err).Str("providerMessageId", id).Msg("recording keepalive")
		return false
	}

	log.Info().Str("providerMessageId", id).Msg("messaging window refreshed")
	record(ctx, s.deps, s.log, journal.Entry{
		SessionID:         sess.ID,
		CustomerID:        sess.CustomerID,
		Direction:         journal.Outbound,
		Kind:              journal.KindKeepalive,
		ProviderMessageID: id,
		Status:            string(domain.StatusSent),
	})
	s.deps.Hooks.EmitAsync(ctx, hooks.EventWindowRefreshed, map[string]any{
		"sessionId":  sess.ID,
		"customerId": sess.CustomerID,
		"messageId":  id,
	})
	return true
}

func (s *Scheduler) evicted(ctx context.Context, sess domain.Session, inactive time.Duration) {
	s.log.Info().Str("sessionId", sess.ID).Dur("inactive", inactive).Msg("session evicted")
	record(ctx, s.deps, s.log, journal.Entry{
		SessionID:  sess.ID,
		CustomerID: sess.CustomerID,
		Direction:  journal.Internal,
		Kind:       journal.KindEvicted,
	})
	s.deps.Hooks.EmitAsync(ctx, hooks.EventSessionEvicted, map[string]any{
		"sessionId":  sess.ID,
		"customerId": sess.CustomerID,
		"messages":   len(sess.Messages),
	})
}
