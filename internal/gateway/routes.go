package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/soyeahso/relaychat/internal/domain"
	"github.com/soyeahso/relaychat/internal/hooks"
	"github.com/soyeahso/relaychat/internal/relay"
	"github.com/soyeahso/relaychat/internal/session"
	"github.com/soyeahso/relaychat/internal/whatsapp"
)

const maxAPIBody = 64 * 1024

// registerHTTPRoutes sets up all HTTP routes on the server mux.
func (s *Server) registerHTTPRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /start-session", s.handleStartSession)
	mux.HandleFunc("POST /send-message", s.handleSendMessage)
	mux.HandleFunc("GET /sessions/{id}/messages", s.handleSessionMessages)
	mux.HandleFunc("GET /webhook", s.handleWebhookVerify)
	mux.HandleFunc("POST /webhook", s.handleWebhook)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ws", s.handleWebSocket)

	// Catch-all for unknown routes
	mux.HandleFunc("/", handleNotFound)
}

// registerRPCHandlers sets up the realtime method handlers.
func (s *Server) registerRPCHandlers() {
	s.Handle(MethodJoin, s.rpcJoin)
	s.Handle(MethodLeave, s.rpcLeave)
	s.Handle(MethodPing, s.rpcPing)
}

// StartSessionResponse is returned by POST /start-session.
type StartSessionResponse struct {
	SessionID  string `json:"sessionId"`
	CustomerID string `json:"customerId"`
}

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	sess := s.store.Create()
	s.log.Info().Str("sessionId", sess.ID).Str("customerId", sess.CustomerID).Msg("session started")
	s.hooks.EmitAsync(r.Context(), hooks.EventSessionStart, map[string]any{
		"sessionId":  sess.ID,
		"customerId": sess.CustomerID,
	})
	writeJSON(w, http.StatusOK, StartSessionResponse{SessionID: sess.ID, CustomerID: sess.CustomerID})
}

// SendMessageRequest is the body of POST /send-message.
type SendMessageRequest struct {
	SessionID string `json:"sessionId"`
	Message   string `json:"message"`
}

// SendMessageResponse is returned by a successful POST /send-message.
type SendMessageResponse struct {
	Success    bool   `json:"success"`
	MessageID  string `json:"messageId"`
	CustomerID string `json:"customerId"`
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req SendMessageRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxAPIBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", nil)
		return
	}

	res, err := s.sender.Send(r.Context(), req.SessionID, req.Message)
	if err != nil {
		s.writeSendError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SendMessageResponse{
		Success:    true,
		MessageID:  res.MessageID,
		CustomerID: res.CustomerID,
	})
}

func (s *Server) writeSendError(w http.ResponseWriter, err error) {
	var derr *relay.DeliveryError
	switch {
	case errors.Is(err, relay.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error(), nil)
	case errors.Is(err, relay.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, "session not found", nil)
	case errors.As(err, &derr):
		details := map[string]any{"op": derr.Op}
		for k, v := range derr.Details {
			details[k] = v
		}
		if derr.WindowExpired {
			details["windowExpired"] = true
		}
		writeError(w, http.StatusInternalServerError, "failed to send message", details)
	default:
		s.log.Error().Err(err).Msg("send-message failed")
		writeError(w, http.StatusInternalServerError, "internal error", nil)
	}
}

// SessionMessagesResponse is returned by GET /sessions/{id}/messages.
type SessionMessagesResponse struct {
	SessionID  string               `json:"sessionId"`
	CustomerID string               `json:"customerId"`
	Status     domain.SessionStatus `json:"status"`
	Messages   []domain.Message     `json:"messages"`
}

func (s *Server) handleSessionMessages(w http.ResponseWriter, r *http.Request) {
	sess, err := s.store.Get(r.PathValue("id"))
	if errors.Is(err, session.ErrNotFound) {
		writeError(w, http.StatusNotFound, "session not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, SessionMessagesResponse{
		SessionID:  sess.ID,
		CustomerID: sess.CustomerID,
		Status:     sess.Status,
		Messages:   sess.Messages,
	})
}

func (s *Server) handleWebhookVerify(w http.ResponseWriter, r *http.Request) {
	challenge, ok := whatsapp.VerifyChallenge(r.URL.Query(), s.cfg.Webhook.VerifyToken)
	if !ok {
		s.log.Warn().Str("remote", r.RemoteAddr).Msg("webhook verification rejected")
		w.WriteHeader(http.StatusForbidden)
		return
	}
	s.log.Info().Msg("webhook verified")
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, challenge)
}

// WebhookResponse acknowledges a webhook delivery.
type WebhookResponse struct {
	Received bool `json:"received"`
	relay.BatchResult
	Skipped int `json:"skipped"`
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	secret := s.cfg.Provider.AppSecret
	if secret != "" && !s.authLimiter.allow(r.RemoteAddr) {
		s.log.Warn().Str("remote", r.RemoteAddr).Msg("rate limited: too many bad webhook signatures")
		writeError(w, http.StatusTooManyRequests, "too many requests", nil)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable body", nil)
		return
	}

	if secret != "" && !whatsapp.VerifySignature(secret, body, r.Header.Get(whatsapp.SignatureHeader)) {
		s.authLimiter.recordFailure(r.RemoteAddr)
		s.log.Warn().Str("remote", r.RemoteAddr).Msg("webhook signature mismatch")
		writeError(w, http.StatusUnauthorized, "invalid signature", nil)
		return
	}

	env, err := whatsapp.ParseEnvelope(body)
	if err != nil {
		s.log.Error().Err(err).Msg("malformed webhook payload")
		writeError(w, http.StatusInternalServerError, "malformed payload", nil)
		return
	}

	// The provider may hang up early; applying the batch must still finish.
	ctx := context.WithoutCancel(r.Context())
	resp := WebhookResponse{Received: true}
	for _, batch := range env.Batches() {
		for _, sk := range batch.Skipped {
			s.log.Debug().Str("entry", batch.EntryID).Str("id", sk.ID).Str("reason", sk.Reason).Msg("skipping webhook item")
		}
		resp.Skipped += len(batch.Skipped)

		res := s.inbound.HandleBatch(ctx, batch.Events)
		resp.Applied += res.Applied
		resp.Orphaned += res.Orphaned
		resp.Failed += res.Failed
	}

	s.log.Debug().
		Int("applied", resp.Applied).
		Int("orphaned", resp.Orphaned).
		Int("failed", resp.Failed).
		Int("skipped", resp.Skipped).
		Msg("webhook processed")
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:   "ok",
		Sessions: s.store.Len(),
		Clients:  s.clients.Count(),
	})
}

// Realtime handlers

func (s *Server) rpcJoin(rc *RequestContext) {
	var p RoomParams
	if err := rc.Params(&p); err != nil || p.SessionID == "" {
		rc.RespondError(CodeInvalidParams, "sessionId is required")
		return
	}
	if _, err := s.store.Get(p.SessionID); err != nil {
		rc.RespondError(CodeSessionNotFound, "session not found")
		return
	}
	members, ok := s.clients.Join(rc.Client.ConnID, p.SessionID)
	if !ok {
		rc.RespondError(CodeProtocolError, "connection not registered")
		return
	}
	rc.Respond(JoinResult{SessionID: p.SessionID, Members: members})
}

func (s *Server) rpcLeave(rc *RequestContext) {
	var p RoomParams
	if err := rc.Params(&p); err != nil || p.SessionID == "" {
		rc.RespondError(CodeInvalidParams, "sessionId is required")
		return
	}
	s.clients.Leave(rc.Client.ConnID, p.SessionID)
	rc.Respond(map[string]string{"sessionId": p.SessionID})
}

func (s *Server) rpcPing(rc *RequestContext) {
	rc.Respond(map[string]bool{"pong": true})
}
