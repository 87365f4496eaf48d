package gateway

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/soyeahso/relaychat/internal/logging"
)

const writeTimeout = 10 * time.Second

// Client represents a realtime WebSocket connection.
type Client struct {
	ConnID      string
	Remote      string
	Socket      *websocket.Conn
	ConnectedAt time.Time

	mu     sync.Mutex
	closed bool

	// rooms is guarded by the owning registry's lock.
	rooms map[string]struct{}
}

// NewClient wraps an upgraded WebSocket connection.
func NewClient(conn *websocket.Conn, remote string) *Client {
	return &Client{
		ConnID:      uuid.New().String(),
		Remote:      remote,
		Socket:      conn,
		ConnectedAt: time.Now(),
		rooms:       make(map[string]struct{}),
	}
}

// Send sends a frame to the client. Thread-safe.
func (c *Client) Send(frame Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClientClosed
	}

	c.Socket.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.Socket.WriteJSON(frame)
}

// SendEvent sends a named event with payload.
func (c *Client) SendEvent(event string, payload any, seq int64) error {
	f, err := NewEvent(event, payload, seq)
	if err != nil {
		return err
	}
	return c.Send(f)
}

// Respond sends a success response for the given request ID.
func (c *Client) Respond(reqID string, payload any) error {
	f, err := NewResponse(reqID, payload)
	if err != nil {
		return err
	}
	return c.Send(f)
}

// RespondError sends an error response for the given request ID.
func (c *Client) RespondError(reqID string, errShape ErrorShape) error {
	return c.Send(NewErrorResponse(reqID, errShape))
}

// ReadFrame reads the next frame from the WebSocket.
func (c *Client) ReadFrame() (Frame, error) {
	_, msg, err := c.Socket.ReadMessage()
	if err != nil {
		return Frame{}, err
	}
	var f Frame
	if err := json.Unmarshal(msg, &f); err != nil {
		return Frame{}, &frameError{err: err}
	}
	return f, nil
}

// Close closes the WebSocket connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if c.Socket == nil {
		return nil
	}
	return c.Socket.Close()
}

// frameError marks a message that arrived intact but did not decode.
type frameError struct{ err error }

func (e *frameError) Error() string { return "malformed frame: " + e.err.Error() }
func (e *frameError) Unwrap() error { return e.err }

// ClientRegistry tracks connected clients and the session rooms they joined.
type ClientRegistry struct {
	mu      sync.RWMutex
	clients map[string]*Client            // connID → Client
	rooms   map[string]map[string]*Client // session id → connID → Client
	seqs    map[string]int64              // session id → last event seq
	log     *logging.Logger
}

// NewClientRegistry creates an empty client registry.
func NewClientRegistry(log *logging.Logger) *ClientRegistry {
	return &ClientRegistry{
		clients: make(map[string]*Client),
		rooms:   make(map[string]map[string]*Client),
		seqs:    make(map[string]int64),
		log:     log,
	}
}

// Add registers a connected client.
func (r *ClientRegistry) Add(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[c.ConnID] = c
	r.log.Info().Str("connId", c.ConnID).Str("remote", c.Remote).Msg("client connected")
}

// Remove unregisters a client and drops it from every room.
func (r *ClientRegistry) Remove(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.clients[connID]
	if !ok {
		return
	}
	for room := range c.rooms {
		r.leaveLocked(c, room)
	}
	delete(r.clients, connID)
	r.log.Info().Str("connId", connID).Msg("client disconnected")
}

// Get returns a client by connection ID.
func (r *ClientRegistry) Get(connID string) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[connID]
	return c, ok
}

// Count returns the number of connected clients.
func (r *ClientRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// Join adds a registered client to a room and returns the member count.
// Joining twice is a no-op.
func (r *ClientRegistry) Join(connID, room string) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.clients[connID]
	if !ok {
		return 0, false
	}
	members := r.rooms[room]
	if members == nil {
		members = make(map[string]*Client)
		r.rooms[room] = members
	}
	members[connID] = c
	if c.rooms == nil {
		c.rooms = make(map[string]struct{})
	}
	c.rooms[room] = struct{}{}
	r.log.Debug().Str("connId", connID).Str("sessionId", room).Int("members", len(members)).Msg("joined room")
	return len(members), true
}

// Leave removes a client from a room.
func (r *ClientRegistry) Leave(connID, room string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.clients[connID]; ok {
		r.leaveLocked(c, room)
	}
}

func (r *ClientRegistry) leaveLocked(c *Client, room string) {
	delete(c.rooms, room)
	members := r.rooms[room]
	delete(members, c.ConnID)
	if len(members) == 0 {
		delete(r.rooms, room)
		delete(r.seqs, room)
	}
}

// Members returns the number of clients joined to a room.
func (r *ClientRegistry) Members(room string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[room])
}

// EmitToRoom sends an event to every client joined to room and returns how
// many clients received it. Each room numbers its events 1, 2, 3... starting
// when its first member joins; emits to an empty room are dropped unnumbered.
// Callers emit to a room from one goroutine so delivery follows seq order.
func (r *ClientRegistry) EmitToRoom(room, event string, payload any) int {
	r.mu.Lock()
	members := r.rooms[room]
	if len(members) == 0 {
		r.mu.Unlock()
		return 0
	}
	r.seqs[room]++
	seq := r.seqs[room]
	targets := make([]*Client, 0, len(members))
	for _, c := range members {
		targets = append(targets, c)
	}
	r.mu.Unlock()

	f, err := NewEvent(event, payload, seq)
	if err != nil {
		r.log.Error().Err(err).Str("event", event).Msg("encoding event")
		return 0
	}

	sent := 0
	for _, c := range targets {
		if err := c.Send(f); err != nil {
			r.log.Warn().Err(err).Str("connId", c.ConnID).Str("event", event).Msg("room send failed")
			continue
		}
		sent++
	}
	return sent
}

// CloseAll closes all connected clients.
func (r *ClientRegistry) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, c := range r.clients {
		c.Close()
		delete(r.clients, id)
	}
	r.rooms = make(map[string]map[string]*Client)
	r.seqs = make(map[string]int64)
}
