// Package gateway serves the desk over HTTP and a WebSocket JSON-RPC
// protocol. Clients authenticate with a challenge/connect handshake and
// then call agents.*, discussion.*, files.* and context.* methods; desk
// changes are pushed back to every client as events.
package gateway

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/soyeahso/agentdesk/internal/agent"
	"github.com/soyeahso/agentdesk/internal/config"
	"github.com/soyeahso/agentdesk/internal/discussion"
	"github.com/soyeahso/agentdesk/internal/hooks"
	"github.com/soyeahso/agentdesk/internal/logging"
	"github.com/soyeahso/agentdesk/internal/relay"
	"github.com/soyeahso/agentdesk/internal/store"
	"github.com/soyeahso/agentdesk/internal/version"
)

var (
	ErrClientClosed = errors.New("client connection closed")
	ErrNotReady     = errors.New("gateway: desk, discussion and agent files are required")
)

const (
	maxPayloadBytes  = 4 * 1024 * 1024
	handshakeTimeout = 10 * time.Second
	writeTimeout     = 10 * time.Second
)

// Server is the agentdesk HTTP + WebSocket gateway.
type Server struct {
	cfg      config.Config
	auth     ResolvedAuth
	log      *logging.Logger
	clients  *ClientRegistry
	handlers map[string]RequestHandler
	eventSeq atomic.Int64

	desk         *agent.Desk
	discussion   *discussion.Discussion
	files        *store.AgentFiles
	workflowsDir string
	events       *store.DB  // optional, agent audit trail
	relays       *relay.Manager // optional
	hooks        *hooks.Manager

	mu         sync.RWMutex
	configRaw  map[string]any
	configPath string

	startedAt   time.Time
	httpServer  *http.Server
	upgrader    websocket.Upgrader
	authLimiter *authRateLimiter
}

// ServerOption configures the gateway server.
type ServerOption func(*Server)

// WithConfigRaw exposes the raw config map to config.get/config.set. When
// path is set, config.set writes the map back to that file.
func WithConfigRaw(raw map[string]any, path string) ServerOption {
	return func(s *Server) {
		s.configRaw = raw
		s.configPath = path
	}
}

// WithHooks subscribes the gateway to desk events so they are broadcast.
func WithHooks(hm *hooks.Manager) ServerOption {
	return func(s *Server) {
		s.hooks = hm
	}
}

// WithWorkflowsDir sets the directory served by files.list kind=workflows.
func WithWorkflowsDir(dir string) ServerOption {
	return func(s *Server) {
		s.workflowsDir = dir
	}
}

// WithEventLog enables the agent audit trail in the health response.
func WithEventLog(db *store.DB) ServerOption {
	return func(s *Server) {
		s.events = db
	}
}

// WithRelays reports the relay statuses in the health response.
func WithRelays(m *relay.Manager) ServerOption {
	return func(s *Server) {
		s.relays = m
	}
}

// New creates a gateway over the given desk, discussion and agent files.
func New(cfg config.Config, desk *agent.Desk, disc *discussion.Discussion, files *store.AgentFiles, log *logging.Logger, opts ...ServerOption) *Server {
	s := &Server{
		cfg:          cfg,
		auth:         ResolveAuth(cfg.Gateway.Auth),
		log:          log.Sub("gateway"),
		clients:      NewClientRegistry(log.Sub("clients")),
		handlers:     make(map[string]RequestHandler),
		desk:         desk,
		discussion:   disc,
		files:        files,
		workflowsDir: cfg.Workspace.WorkflowsDir,
		configRaw:    make(map[string]any),
		authLimiter:  newAuthRateLimiter(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     checkWebSocketOrigin(cfg.Gateway.AllowedOrigins),
		},
	}

	for _, opt := range opts {
		opt(s)
	}

	s.registerRPCHandlers()
	s.subscribe()
	return s
}

// subscribe turns desk hook events into client broadcasts.
func (s *Server) subscribe() {
	if s.hooks == nil {
		return
	}
	agentEvents := []string{hooks.EventAgentSaved, hooks.EventAgentDeleted, hooks.EventAgentSelected}
	s.hooks.OnEach(agentEvents, "gateway", func(_ context.Context, p hooks.Payload) error {
		s.broadcastAgents(p.Event)
		return nil
	})
	s.hooks.On(hooks.EventDiscussionAppended, "gateway", func(_ context.Context, p hooks.Payload) error {
		s.Broadcast(EventDiscussionAppended, map[string]any{
			"turn":       p.Data,
			"whiteboard": s.discussion.Whiteboard(),
		})
		return nil
	})
	s.hooks.On(hooks.EventDiscussionReset, "gateway", func(_ context.Context, _ hooks.Payload) error {
		s.Broadcast(EventDiscussionReset, map[string]any{})
		return nil
	})
}

func (s *Server) broadcastAgents(reason string) {
	s.Broadcast(EventAgentsChanged, map[string]any{
		"reason": reason,
		"state":  s.desk.Snapshot(),
	})
}

// Broadcast pushes an event to every connected client.
func (s *Server) Broadcast(event string, payload any) {
	s.clients.Broadcast(event, payload, s.eventSeq.Add(1))
}

// NotifyFilesChanged broadcasts files.changed for a watched directory.
func (s *Server) NotifyFilesChanged(dir string) {
	kind := "agents"
	if dir == s.workflowsDir {
		kind = "workflows"
	}
	s.log.Debug().Str("kind", kind).Str("dir", dir).Msg("files changed")
	s.Broadcast(EventFilesChanged, map[string]any{"kind": kind})
}

// Handle registers an RPC method handler.
func (s *Server) Handle(method string, handler RequestHandler) {
	s.handlers[method] = handler
}

// Methods returns the registered RPC method names in sorted order.
func (s *Server) Methods() []string {
	methods := make([]string, 0, len(s.handlers))
	for m := range s.handlers {
		methods = append(methods, m)
	}
	sort.Strings(methods)
	return methods
}

// Clients returns the number of connected clients.
func (s *Server) Clients() int {
	return s.clients.Count()
}

// resolveBindAddr computes the listen address from config.
func resolveBindAddr(cfg config.GatewayConfig) string {
	switch cfg.Bind {
	case "lan", "auto":
		return fmt.Sprintf("0.0.0.0:%d", cfg.Port)
	case "custom":
		host := cfg.CustomBindHost
		if host == "" {
			host = "0.0.0.0"
		}
		return net.JoinHostPort(host, fmt.Sprint(cfg.Port))
	default:
		return fmt.Sprintf("127.0.0.1:%d", cfg.Port)
	}
}

// Handler returns the HTTP handler with middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.registerHTTPRoutes(mux)
	return withMiddleware(mux, s.log, s.cfg.Gateway.AllowedOrigins)
}

// Start listens for HTTP and WebSocket connections and blocks until ctx
// is cancelled or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	if s.desk == nil || s.discussion == nil || s.files == nil {
		return ErrNotReady
	}
	addr := resolveBindAddr(s.cfg.Gateway)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	if s.cfg.Gateway.TLS.Enabled {
		cert, err := tls.LoadX509KeyPair(s.cfg.Gateway.TLS.CertPath, s.cfg.Gateway.TLS.KeyPath)
		if err != nil {
			ln.Close()
			return fmt.Errorf("loading TLS certificate: %w", err)
		}
		ln = tls.NewListener(ln, &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS12,
		})
		s.log.Info().Msg("TLS enabled")
	} else if s.cfg.Gateway.Bind != "loopback" {
		s.log.Warn().Msg("TLS is not enabled, credentials travel in cleartext")
	}

	s.mu.Lock()
	s.startedAt = time.Now()
	s.mu.Unlock()

	s.log.Info().
		Str("addr", ln.Addr().String()).
		Str("bind", s.cfg.Gateway.Bind).
		Str("auth", s.auth.Mode).
		Int("methods", len(s.handlers)).
		Strs("hooks", s.hooks.Events()).
		Msg("gateway server ready")

	// Start handlers must not hold up serving.
	s.hooks.EmitAsync(ctx, hooks.EventGatewayStart, map[string]any{
		"addr": ln.Addr().String(),
	})

	go func() {
		<-ctx.Done()
		s.log.Info().Strs("clients", s.clients.IDs()).Msg("shutting down gateway server")
		s.hooks.Emit(context.Background(), hooks.EventGatewayStop, nil)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.clients.CloseAll()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Addr returns the configured listen address, or "" before Start.
func (s *Server) Addr() string {
	if s.httpServer != nil {
		return s.httpServer.Addr
	}
	return ""
}

func (s *Server) uptime() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.startedAt.IsZero() {
		return 0
	}
	return time.Since(s.startedAt)
}

// handleWebSocket upgrades the request and serves one client.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if !s.authLimiter.allow(r.RemoteAddr) {
		s.log.Warn().Str("remote", r.RemoteAddr).Msg("rate limited after failed auth attempts")
		http.Error(w, "too many requests", http.StatusTooManyRequests)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error().Err(err).Msg("websocket upgrade failed")
		return
	}
	conn.SetReadLimit(maxPayloadBytes)

	s.log.Debug().Str("remote", r.RemoteAddr).Msg("new websocket connection")

	client, err := s.handshake(conn)
	if err != nil {
		s.log.Warn().Err(err).Msg("handshake failed")
		s.authLimiter.recordFailure(r.RemoteAddr)
		conn.Close()
		return
	}

	s.clients.Add(client)
	defer func() {
		s.clients.Remove(client.ConnID)
		client.Close()
	}()

	s.readLoop(r.Context(), client)
}

// handshake sends connect.challenge, expects a connect request and
// answers with HelloOK once the credentials check out.
func (s *Server) handshake(conn *websocket.Conn) (*Client, error) {
	conn.SetReadDeadline(time.Now().Add(handshakeTimeout))

	challenge, err := NewEvent(EventConnectChallenge, map[string]any{
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
		sendErrorAndClose(conn, frame.ID, CodeProtocolError, "expected connect request")
		return nil, fmt.Errorf("expected connect request, got type=%s method=%s", frame.Type, frame.Method)
	}

	var params ConnectParams
	if err := json.Unmarshal(frame.Params, &params); err != nil {
		sendErrorAndClose(conn, frame.ID, CodeInvalidParams, "invalid connect params")
		return nil, fmt.Errorf("parsing connect params: %w", err)
	}
	if params.MaxProtocol != 0 && params.MaxProtocol < ProtocolVersion {
		sendErrorAndClose(conn, frame.ID, CodeProtocolError, "unsupported protocol version")
		return nil, fmt.Errorf("client protocol %d..%d unsupported", params.MinProtocol, params.MaxProtocol)
	}

	authResult := Authorize(s.auth, params.Auth)
	if !authResult.OK {
		sendErrorAndClose(conn, frame.ID, CodeUnauthorized, authResult.Reason)
		return nil, fmt.Errorf("auth failed: %s", authResult.Reason)
	}

	conn.SetReadDeadline(time.Time{})
	client := NewClient(conn, params.Client, authResult, s.log.Sub("ws"))

	resp, err := NewResponse(frame.ID, HelloOK{
		Protocol: ProtocolVersion,
		Server: ServerInfo{
			Version: version.Version,
			Commit:  version.Commit,
			ConnID:  client.ConnID,
		},
		Features: Features{
			Methods: s.Methods(),
			Events:  ServerEvents,
		},
		Policy: ServerPolicy{MaxPayload: maxPayloadBytes},
	})
	if err != nil {
		return nil, fmt.Errorf("creating hello response: %w", err)
	}
	if err := conn.WriteJSON(resp); err != nil {
		return nil, fmt.Errorf("sending hello: %w", err)
	}

	s.log.Info().
		Str("connId", client.ConnID).
		Str("clientId", params.Client.ID).
		Str("clientVersion", params.Client.Version).
		Str("authMethod", authResult.Method).
		Msg("client authenticated")

	return client, nil
}

// readLoop serves requests from an authenticated client until it goes away.
func (s *Server) readLoop(ctx context.Context, client *Client) {
	for {
		frame, err := client.ReadFrame()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Debug().Str("connId", client.ConnID).Msg("client closed connection")
			} else {
				s.log.Warn().Err(err).Str("connId", client.ConnID).Msg("read error")
			}
			return
		}

		if frame.Type != FrameTypeRequest {
			s.log.Debug().Str("type", frame.Type).Msg("ignoring non-request frame")
			continue
		}

		s.dispatch(ctx, client, frame)
	}
}

// dispatch runs the handler for frame.Method on the read goroutine, so a
// client's requests are answered in order.
func (s *Server) dispatch(ctx context.Context, client *Client, frame Frame) {
	handler, ok := s.handlers[frame.Method]
	if !ok {
		client.RespondError(frame.ID, ErrorShape{
			Code:    CodeMethodNotFound,
			Message: "unknown method: " + frame.Method,
		})
		return
	}

	handler(&RequestContext{
		Ctx:    ctx,
		Client: client,
		Frame:  frame,
		Server: s,
	})
}

// sendErrorAndClose answers a handshake frame with an error and closes.
func sendErrorAndClose(conn *websocket.Conn, reqID, code, message string) {
	conn.WriteJSON(NewErrorResponse(reqID, ErrorShape{
		Code:    code,
		Message: message,
	}))
	conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, message))
}
