// Package gateway serves the local overlay feed: a WebSocket endpoint that
// streams orchestrator events to overlay clients and accepts a small set of
// control RPCs.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/soyeahso/iris/internal/config"
	"github.com/soyeahso/iris/internal/domain"
	"github.com/soyeahso/iris/internal/hooks"
	"github.com/soyeahso/iris/internal/logging"
	"github.com/soyeahso/iris/internal/version"
)

var ErrClientClosed = errors.New("client connection closed")

const (
	maxPayload       = 1 << 20
	handshakeTimeout = 10 * time.Second
)

// EventCaption is broadcast by the caption flusher. It is not a hook event.
const EventCaption = "caption"

// Controller is the orchestrator surface the overlay may drive.
type Controller interface {
	Start()
	Stop()
	Interrupt()
	AcceptSuggestion()
	DismissSuggestion()
	Status(ctx context.Context) (domain.Status, error)
}

// History is the read side of the conversation log.
type History interface {
	Recent(ctx context.Context, n int) ([]domain.Message, error)
	Search(ctx context.Context, query string, n int) ([]domain.Message, error)
}

// Server is the overlay HTTP + WebSocket server.
type Server struct {
	cfg      config.GatewayConfig
	token    string
	log      *logging.Logger
	clients  *ClientRegistry
	handlers map[string]RequestHandler
	version  string

	// bmu orders sequence assignment with queueing so every client sees
	// strictly increasing seq values.
	bmu      sync.Mutex
	eventSeq atomic.Int64

	control Controller
	history History

	mu          sync.Mutex
	listenAddr  string
	startedAt   time.Time
	httpServer  *http.Server
	upgrader    websocket.Upgrader
	authLimiter *authRateLimiter
}

// ServerOption configures the gateway server.
type ServerOption func(*Server)

// WithController wires the control RPCs to the orchestrator.
func WithController(c Controller) ServerOption {
	return func(s *Server) { s.control = c }
}

// WithHistory serves the history RPC from the conversation log.
func WithHistory(h History) ServerOption {
	return func(s *Server) { s.history = h }
}

// WithHooks broadcasts every hook event to connected overlays.
func WithHooks(hm *hooks.Manager) ServerOption {
	return func(s *Server) {
		hm.On(hooks.EventAny, "gateway", s.onHook)
	}
}

// New creates an overlay server.
func New(cfg config.GatewayConfig, log *logging.Logger, opts ...ServerOption) *Server {
	s := &Server{
		cfg:         cfg,
		token:       ResolveToken(cfg.Auth),
		log:         log.Sub("gateway"),
		clients:     NewClientRegistry(log.Sub("overlays")),
		handlers:    make(map[string]RequestHandler),
		version:     version.Version,
		authLimiter: newAuthRateLimiter(),
		startedAt:   time.Now(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     checkWebSocketOrigin(cfg.AllowedOrigins),
		},
	}

	for _, opt := range opts {
		opt(s)
	}

	s.registerRPCHandlers()
	return s
}

// checkWebSocketOrigin admits non-browser clients (no Origin header) and
// browsers whose Origin is listed.
func checkWebSocketOrigin(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || isOriginAllowed(origin, allowed)
	}
}

// Handle registers an RPC method handler.
func (s *Server) Handle(method string, handler RequestHandler) {
	s.handlers[method] = handler
}

// Methods returns the registered RPC method names, sorted.
func (s *Server) Methods() []string {
	methods := make([]string, 0, len(s.handlers))
	for m := range s.handlers {
		methods = append(methods, m)
	}
	slices.Sort(methods)
	return methods
}

// Events lists the event names an overlay may receive.
func Events() []string {
	return append(slices.Clone(hooks.AllEvents), EventCaption)
}

// Clients returns the number of connected overlays.
func (s *Server) Clients() int { return s.clients.Count() }

// Seq returns the sequence number of the last broadcast event.
func (s *Server) Seq() int64 { return s.eventSeq.Load() }

// Broadcast sends an event to every overlay with the next sequence number
// and returns that number. Slow overlays drop events rather than block the
// caller.
func (s *Server) Broadcast(event string, payload any) int64 {
	s.bmu.Lock()
	defer s.bmu.Unlock()

	seq := s.eventSeq.Add(1)
	frame, err := NewEvent(event, payload, seq)
	if err != nil {
		s.log.Warn().Err(err).Str("event", event).Msg("encoding event")
		return seq
	}
	s.clients.Broadcast(frame)
	return seq
}

func (s *Server) onHook(_ context.Context, p hooks.Payload) error {
	s.Broadcast(p.Event, p.Data)
	return nil
}

func resolveBindAddr(cfg config.GatewayConfig) string {
	switch cfg.Bind {
	case "lan":
		return fmt.Sprintf("0.0.0.0:%d", cfg.Port)
	case "custom":
		host := cfg.CustomBindHost
		if host == "" {
			host = "127.0.0.1"
		}
		return net.JoinHostPort(host, fmt.Sprint(cfg.Port))
	default:
		return fmt.Sprintf("127.0.0.1:%d", cfg.Port)
	}
}

// Start listens for overlay connections and blocks until ctx is cancelled
// or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	addr := resolveBindAddr(s.cfg)

	mux := http.NewServeMux()
	s.registerHTTPRoutes(mux)

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	srv := &http.Server{
		Handler:           withMiddleware(mux, s.log, s.cfg.AllowedOrigins),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	s.mu.Lock()
	s.httpServer = srv
	s.listenAddr = ln.Addr().String()
	s.mu.Unlock()

	if s.token == "" {
		s.log.Warn().Msg("no overlay token configured; every connection will be refused")
	}
	s.log.Info().
		Str("addr", ln.Addr().String()).
		Str("bind", s.cfg.Bind).
		Int("methods", len(s.handlers)).
		Msg("overlay feed ready")

	go func() {
		<-ctx.Done()
		s.log.Info().Msg("shutting down overlay feed")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.clients.CloseAll()
		srv.Shutdown(shutdownCtx)
	}()

	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Addr returns the bound listen address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listenAddr
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if !s.authLimiter.allow(r.RemoteAddr) {
		s.log.Warn().Str("remote", r.RemoteAddr).Msg("rate limited after failed handshakes")
		http.Error(w, "too many requests", http.StatusTooManyRequests)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	conn.SetReadLimit(maxPayload)

	client, err := s.handshake(conn)
	if err != nil {
		s.log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("handshake failed")
		s.authLimiter.recordFailure(r.RemoteAddr)
		conn.Close()
		return
	}

	s.clients.Add(client)
	defer func() {
		s.clients.Remove(client.ConnID)
		client.Close()
	}()

	s.readLoop(client)
}

// handshake sends a challenge, then requires the first frame to be a
// connect request carrying the overlay token.
func (s *Server) handshake(conn *websocket.Conn) (*Client, error) {
	conn.SetReadDeadline(time.Now().Add(handshakeTimeout))

	challenge, err := NewEvent("connect.challenge", map[string]any{
		"nonce": uuid.New().String(),
		"ts":    time.Now().UnixMilli(),
	}, 0)
	if err != nil {
		return nil, fmt.Errorf("creating challenge: %w", err)
	}
	if err := conn.WriteJSON(challenge); err != nil {
		return nil, fmt.Errorf("sending challenge: %w", err)
	}

	_, msg, err := conn.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("reading connect: %w", err)
	}

	var frame Frame
	if err := json.Unmarshal(msg, &frame); err != nil {
		return nil, fmt.Errorf("parsing connect frame: %w", err)
	}
	if frame.Type != FrameTypeRequest || frame.Method != "connect" {
		sendErrorAndClose(conn, frame.ID, "protocol_error", "expected connect request")
		return nil, fmt.Errorf("expected connect request, got type=%s method=%s", frame.Type, frame.Method)
	}

	var params ConnectParams
	if len(frame.Params) > 0 {
		if err := json.Unmarshal(frame.Params, &params); err != nil {
			sendErrorAndClose(conn, frame.ID, "invalid_params", "invalid connect params")
			return nil, fmt.Errorf("parsing connect params: %w", err)
		}
	}

	if res := Authorize(s.token, params.Auth); !res.OK {
		sendErrorAndClose(conn, frame.ID, "unauthorized", res.Reason)
		return nil, fmt.Errorf("auth failed: %s", res.Reason)
	}

	conn.SetReadDeadline(time.Time{})
	client := NewClient(conn, params.Client, s.log.Sub("ws"))

	hello := HelloOK{
		Protocol: ProtocolVersion,
		Server: ServerInfo{
			Version: s.version,
			Commit:  version.Commit,
			ConnID:  client.ConnID,
			Seq:     s.eventSeq.Load(),
		},
		Features: Features{
			Methods: s.Methods(),
			Events:  Events(),
		},
		Policy: ServerPolicy{
			MaxPayload:  maxPayload,
			EventBuffer: eventBuffer,
		},
	}
	if err := client.Respond(frame.ID, hello); err != nil {
		client.Close()
		return nil, fmt.Errorf("sending hello: %w", err)
	}

	s.log.Info().
		Str("connId", client.ConnID).
		Str("clientId", params.Client.ID).
		Str("clientVersion", params.Client.Version).
		Msg("overlay authenticated")

	return client, nil
}

func (s *Server) readLoop(client *Client) {
	for {
		frame, err := client.ReadFrame()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Debug().Str("connId", client.ConnID).Msg("overlay closed connection")
			} else {
				s.log.Debug().Err(err).Str("connId", client.ConnID).Msg("read error")
			}
			return
		}

		if frame.Type != FrameTypeRequest {
			s.log.Debug().Str("type", frame.Type).Msg("ignoring non-request frame")
			continue
		}

		s.dispatch(client, frame)
	}
}

func (s *Server) dispatch(client *Client, frame Frame) {
	handler, ok := s.handlers[frame.Method]
	if !ok {
		client.RespondError(frame.ID, ErrorShape{
			Code:    "method_not_found",
			Message: "unknown method: " + frame.Method,
		})
		return
	}

	handler(&RequestContext{Client: client, Frame: frame, Server: s})
}

func sendErrorAndClose(conn *websocket.Conn, reqID, code, message string) {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	conn.WriteJSON(NewErrorResponse(reqID, ErrorShape{Code: code, Message: message}))
	conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, message))
}
