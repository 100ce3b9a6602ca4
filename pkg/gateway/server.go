// Package gateway provides the HTTP/WebSocket surface of tgbridge. The UI
// layer drives channel workflows through REST endpoints and follows their
// outcomes on an event stream; a WebView shell hosting the web client
// attaches its page to the transport over a websocket.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"tgbridge/pkg/bridge"
	"tgbridge/pkg/config"
	"tgbridge/pkg/events"
	"tgbridge/pkg/logger"
	"tgbridge/pkg/monitor"
	"tgbridge/pkg/resolver"
	"tgbridge/pkg/tokenstore"
	"tgbridge/pkg/transport"
	"tgbridge/pkg/transport/wsconn"
	"tgbridge/pkg/version"
	"tgbridge/pkg/workflow"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Client is a connected event stream subscriber.
type Client struct {
	id     string
	conn   *websocket.Conn
	send   chan []byte
	userID string
	unsub  func()
}

// Deps are the components the gateway exposes.
type Deps struct {
	Bridge    *bridge.Bridge
	Workflows *workflow.Manager
	Resolver  *resolver.Engine
	Tokens    *tokenstore.Store
	Transport *transport.Transport
	Events    events.Bus
	Monitor   *monitor.Monitor
}

// Server is the WebSocket/REST gateway server.
type Server struct {
	config *config.Config
	logger *logger.Logger
	deps   Deps
	mux    *http.ServeMux
	server *http.Server

	clients map[string]*Client
	mu      sync.RWMutex

	ctx    context.Context
	cancel context.CancelFunc
}

// NewServer creates a new gateway server.
func NewServer(cfg *config.Config, log *logger.Logger, deps Deps) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		config:  cfg,
		logger:  log.Named("gateway"),
		deps:    deps,
		clients: make(map[string]*Client),
		ctx:     ctx,
		cancel:  cancel,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	mux := http.NewServeMux()

	// WebSocket endpoints
	mux.HandleFunc("GET /ws/events", s.handleWSEvents)
	mux.HandleFunc("GET /ws/bridge", s.handleWSBridge)

	// REST endpoints
	mux.HandleFunc("GET /api/v1/status", s.auth(s.handleStatus))
	mux.HandleFunc("GET /api/v1/channels", s.auth(s.handleChannels))
	mux.HandleFunc("GET /api/v1/channels/{id}", s.auth(s.handleChannel))
	mux.HandleFunc("POST /api/v1/channels/{id}/initialize", s.auth(s.handleInitialize))
	mux.HandleFunc("POST /api/v1/channels/{id}/join", s.auth(s.handleJoin))
	mux.HandleFunc("POST /api/v1/channels/{id}/preview", s.auth(s.handlePreview))
	mux.HandleFunc("POST /api/v1/channels/{id}/reset", s.auth(s.handleReset))
	mux.HandleFunc("GET /api/v1/channels/{id}/membership", s.auth(s.handleMembership))
	mux.HandleFunc("POST /api/v1/channels/{id}/open", s.auth(s.handleOpen))
	mux.HandleFunc("GET /api/v1/resolve/{id}", s.auth(s.handleResolve))
	mux.HandleFunc("GET /api/v1/permission/{id}", s.auth(s.handlePermission))
	mux.HandleFunc("POST /api/v1/settings", s.auth(s.handleSettings))
	mux.HandleFunc("POST /api/v1/logout", s.auth(s.handleLogout))
	mux.HandleFunc("GET /api/v1/bot", s.auth(s.handleBotInfo))
	mux.HandleFunc("PUT /api/v1/bot/token", s.auth(s.handleSetBotToken))
	mux.HandleFunc("DELETE /api/v1/bot/token", s.auth(s.handleClearBotToken))

	// Health check
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	s.mux = mux
}

// Start starts the gateway server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Gateway.Host, s.config.Gateway.Port)
	s.logger.Info("Gateway server starting", zap.String("addr", addr))

	s.server = &http.Server{
		Addr:    addr,
		Handler: s.mux,
	}

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("Gateway server error", zap.Error(err))
		}
	}()

	return nil
}

// Stop gracefully shuts down the gateway server.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Gateway server stopping")
	s.cancel()

	s.mu.Lock()
	for id, client := range s.clients {
		client.unsub()
		close(client.send)
		client.conn.Close()
		delete(s.clients, id)
	}
	s.mu.Unlock()

	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// --- WebSocket Handlers ---

// handleWSBridge attaches a WebView shell's page to the transport.
func (s *Server) handleWSBridge(w http.ResponseWriter, r *http.Request) {
	if _, err := s.authenticate(r); err != nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	conn, err := wsconn.Upgrade(s.logger, w, r)
	if err != nil {
		s.logger.Error("WebSocket upgrade failed", zap.Error(err))
		return
	}

	s.logger.Info("WebView shell attached", zap.String("remote", r.RemoteAddr))
	s.deps.Transport.Attach(s.ctx, conn)
}

// handleWSEvents streams bus events to the client.
func (s *Server) handleWSEvents(w http.ResponseWriter, r *http.Request) {
	userID, err := s.authenticate(r)
	if err != nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("WebSocket upgrade failed", zap.Error(err))
		return
	}

	client := &Client{
		id:     uuid.New().String(),
		conn:   conn,
		send:   make(chan []byte, 256),
		userID: userID,
	}
	client.unsub = s.deps.Events.Subscribe(func(_ context.Context, ev events.Event) {
		data, err := json.Marshal(ev)
		if err != nil {
			return
		}
		s.enqueue(client, data)
	})

	s.mu.Lock()
	s.clients[client.id] = client
	s.mu.Unlock()

	s.logger.Info("Event stream client connected",
		zap.String("client_id", client.id),
		zap.String("user", userID),
	)

	hello := events.New("system.connected", "", map[string]any{"client_id": client.id})
	if data, err := json.Marshal(hello); err == nil {
		s.enqueue(client, data)
	}

	go s.readPump(client)
	go s.writePump(client)
}

// enqueue hands data to the client writer without blocking the bus.
func (s *Server) enqueue(client *Client, data []byte) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.clients[client.id]; !ok {
		return
	}
	select {
	case client.send <- data:
	default:
		s.logger.Warn("Event stream client too slow, dropping event", zap.String("client_id", client.id))
	}
}

// readPump only services pings and close frames; the stream is one-way.
func (s *Server) readPump(client *Client) {
	defer func() {
		s.removeClient(client)
		client.conn.Close()
	}()

	client.conn.SetReadLimit(65536)
	client.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	client.conn.SetPongHandler(func(string) error {
		client.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("WebSocket read error",
					zap.String("client_id", client.id),
					zap.Error(err),
				)
			}
			return
		}
	}
}

func (s *Server) writePump(client *Client) {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		client.conn.Close()
	}()

	for {
		select {
		case message, ok := <-client.send:
			client.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				client.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := client.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			client.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Server) removeClient(client *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.clients[client.id]; ok {
		if client.unsub != nil {
			client.unsub()
		}
		close(client.send)
		delete(s.clients, client.id)
		s.logger.Info("Event stream client disconnected",
			zap.String("client_id", client.id),
		)
	}
}

// --- Auth ---

// auth guards REST handlers with the same token check as the websockets.
func (s *Server) auth(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, err := s.authenticate(r); err != nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		h(w, r)
	}
}

// authenticate accepts any caller when no secret is configured, which the
// config validator only allows on loopback.
func (s *Server) authenticate(r *http.Request) (userID string, err error) {
	secret := s.config.Gateway.JWTSecret
	if secret == "" {
		return "local", nil
	}

	// Try token from query parameter
	token := r.URL.Query().Get("token")
	if token == "" {
		auth := r.Header.Get("Authorization")
		if after, ok := strings.CutPrefix(auth, "Bearer "); ok {
			token = after
		}
	}

	if token == "" {
		return "", fmt.Errorf("no token provided")
	}

	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method")
		}
		return []byte(secret), nil
	})
	if err != nil {
		return "", fmt.Errorf("invalid token: %w", err)
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok || !parsed.Valid {
		return "", fmt.Errorf("invalid claims")
	}

	sub, _ := claims["sub"].(string)
	if sub == "" {
		sub = "anonymous"
	}
	return sub, nil
}

// connectionCount reports connected event stream clients.
func (s *Server) connectionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// statusPayload is served by GET /api/v1/status.
func (s *Server) statusPayload(ctx context.Context) map[string]interface{} {
	_, loggedIn := s.deps.Tokens.GetToken(ctx)
	status := map[string]interface{}{
		"version":        version.GetVersion(),
		"connections":    s.connectionCount(),
		"ready":          s.deps.Transport.IsReady(),
		"show_app_tabs":  s.deps.Transport.ShowAppTabs(),
		"queued":         s.deps.Transport.QueueLen(),
		"logged_in":      loggedIn,
		"bot_configured": s.deps.Tokens.IsBotTokenConfigured(ctx),
		"event_metrics":  s.deps.Events.GetMetrics(),
		"gateway": map[string]interface{}{
			"host": s.config.Gateway.Host,
			"port": s.config.Gateway.Port,
		},
	}
	if s.deps.Monitor != nil {
		status["checks"] = s.deps.Monitor.Checks()
	}
	return status
}
