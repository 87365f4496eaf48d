package gateway

import (
	"context"

	"github.com/soyeahso/relaychat/internal/domain"
)

// Forward pushes session updates to the clients joined to each session's
// room until ctx is done or updates is closed.
func (s *Server) Forward(ctx context.Context, updates <-chan domain.SessionUpdate) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case u, ok := <-updates:
			if !ok {
				return nil
			}
			n := s.clients.EmitToRoom(u.SessionID, UpdateEvent(u.SessionID), u)
			s.log.Trace().
				Str("sessionId", u.SessionID).
				Str("kind", string(u.Kind)).
				Str("messageId", u.Message.ID).
				Int("clients", n).
				Msg("session update pushed")
		}
	}
}
