package gateway

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/soyeahso/iris/internal/logging"
)

const (
	writeTimeout = 5 * time.Second
	eventBuffer  = 256
)

// socket is the part of *websocket.Conn a Client writes to.
type socket interface {
	SetWriteDeadline(t time.Time) error
	WriteJSON(v any) error
	ReadMessage() (int, []byte, error)
	Close() error
}

// Client is an authenticated overlay connection. Responses are written
// directly by the request goroutine; events go through a bounded queue
// drained by a writer goroutine so a slow overlay never stalls the
// broadcaster.
type Client struct {
	ConnID      string
	Info        ClientInfo
	ConnectedAt time.Time

	sock    socket
	mu      sync.Mutex
	closed  bool
	events  chan Frame
	done    chan struct{}
	dropped atomic.Int64
	log     *logging.Logger
}

// NewClient wraps an authenticated connection and starts its event writer.
func NewClient(conn socket, info ClientInfo, log *logging.Logger) *Client {
	c := &Client{
		ConnID:      uuid.New().String(),
		Info:        info,
		ConnectedAt: time.Now(),
		sock:        conn,
		events:      make(chan Frame, eventBuffer),
		done:        make(chan struct{}),
		log:         log,
	}
	go c.writeEvents()
	return c
}

// Send writes a frame to the client. Safe for concurrent use.
func (c *Client) Send(frame Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClientClosed
	}
	if err := c.sock.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return c.sock.WriteJSON(frame)
}

// Queue hands an event frame to the writer goroutine. It reports false
// when the client is closed or its queue is full; the frame is dropped.
func (c *Client) Queue(frame Frame) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.events <- frame:
		return true
	default:
		if n := c.dropped.Add(1); n == 1 || n%100 == 0 {
			c.log.Warn().Str("connId", c.ConnID).Int64("dropped", n).Msg("overlay too slow, dropping events")
		}
		return false
	}
}

// Dropped returns how many events were discarded for this client.
func (c *Client) Dropped() int64 { return c.dropped.Load() }

func (c *Client) writeEvents() {
	for {
		select {
		case <-c.done:
			return
		case f := <-c.events:
			if err := c.Send(f); err != nil {
				c.log.Debug().Err(err).Str("connId", c.ConnID).Msg("event write failed")
				c.Close()
				return
			}
		}
	}
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
	_, msg, err := c.sock.ReadMessage()
	if err != nil {
		return Frame{}, err
	}
	var f Frame
	if err := json.Unmarshal(msg, &f); err != nil {
		return Frame{}, err
	}
	return f, nil
}

// Close stops the event writer and closes the connection. Idempotent.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	close(c.done)
	return c.sock.Close()
}

// ClientRegistry tracks connected overlays.
type ClientRegistry struct {
	mu      sync.RWMutex
	clients map[string]*Client // connID → Client
	log     *logging.Logger
}

// NewClientRegistry creates an empty client registry.
func NewClientRegistry(log *logging.Logger) *ClientRegistry {
	return &ClientRegistry{
		clients: make(map[string]*Client),
		log:     log,
	}
}

// Add registers a connected client.
func (r *ClientRegistry) Add(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[c.ConnID] = c
	r.log.Info().Str("connId", c.ConnID).Str("client", c.Info.ID).Msg("overlay connected")
}

// Remove unregisters a client by connection ID.
func (r *ClientRegistry) Remove(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.clients, connID)
	r.log.Info().Str("connId", connID).Msg("overlay disconnected")
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

// Broadcast queues frame on every connected client and returns how many
// accepted it.
func (r *ClientRegistry) Broadcast(frame Frame) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, c := range r.clients {
		if c.Queue(frame) {
			n++
		}
	}
	return n
}

// CloseAll closes all connected clients.
func (r *ClientRegistry) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, c := range r.clients {
		c.Close()
		delete(r.clients, id)
	}
}
