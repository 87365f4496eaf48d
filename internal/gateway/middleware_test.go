package gateway

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soyeahso/relaychat/internal/logging"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestCORSMiddleware_OriginList(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		want    string
	}{
		{"unconfigured denies", nil, "http://shop.example", ""},
		{"listed origin", []string{"http://shop.example"}, "http://shop.example", "http://shop.example"},
		{"unlisted origin", []string{"http://shop.example"}, "http://evil.example", ""},
		{"wildcard echoes origin", []string{"*"}, "http://localhost:3000", "http://localhost:3000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/send-message", nil)
			req.Header.Set("Origin", tt.origin)
			rr := httptest.NewRecorder()
			corsMiddleware(okHandler(), tt.allowed).ServeHTTP(rr, req)

			assert.Equal(t, http.StatusOK, rr.Code)
			assert.Equal(t, tt.want, rr.Header().Get("Access-Control-Allow-Origin"))
			assert.Equal(t, "Origin", rr.Header().Get("Vary"))
		})
	}
}

func TestCORSMiddleware_Preflight(t *testing.T) {
	reached := false
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { reached = true })
	handler := corsMiddleware(inner, []string{"http://shop.example"})

	req := httptest.NewRequest(http.MethodOptions, "/start-session", nil)
	req.Header.Set("Origin", "http://shop.example")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.False(t, reached)
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, "GET, POST, OPTIONS", rr.Header().Get("Access-Control-Allow-Methods"))
	assert.Contains(t, rr.Header().Get("Access-Control-Allow-Headers"), "X-Request-ID")
}

func TestWithMiddleware_AccessLog(t *testing.T) {
	var buf bytes.Buffer
	log := logging.New(&buf, "debug")

	failing := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	handler := withMiddleware(failing, log, nil)

	req := httptest.NewRequest(http.MethodPost, "/send-message", nil)
	req.Header.Set("X-Request-ID", "req-42")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, "req-42", rr.Header().Get("X-Request-ID"))
	line := buf.String()
	assert.Contains(t, line, `"level":"error"`)
	assert.Contains(t, line, `"requestId":"req-42"`)
	assert.Contains(t, line, `"status":502`)
}

func TestWithMiddleware_HealthAtTrace(t *testing.T) {
	var buf bytes.Buffer
	handler := withMiddleware(okHandler(), logging.New(&buf, "debug"), nil)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))
	assert.Empty(t, buf.String())
}

func TestWithMiddleware_WebSocketUpgrade(t *testing.T) {
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	ws := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteMessage(websocket.TextMessage, []byte("hello"))
	})
	ts := httptest.NewServer(withMiddleware(ws, logging.Nop(), nil))
	defer ts.Close()

	conn, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)

	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "hello", string(msg))
}

func TestStatusWriter_HijackUnsupported(t *testing.T) {
	sw := &statusWriter{ResponseWriter: httptest.NewRecorder(), status: http.StatusOK}
	_, _, err := sw.Hijack()
	require.Error(t, err)
	assert.Equal(t, http.StatusOK, sw.status)
}
