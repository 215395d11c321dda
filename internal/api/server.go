package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/jvconnected/camera-engine/internal/config"
	"github.com/jvconnected/camera-engine/internal/engine"
	"github.com/jvconnected/camera-engine/internal/logging"
	"github.com/jvconnected/camera-engine/internal/security"
	"github.com/jvconnected/camera-engine/internal/tally"
)

// Server is the control API's WebSocket JSON-RPC server, directly
// modeled on the teacher's WebSocketServer: per-connection
// ClientConnection, JWT bearer auth, per-client rate limiting, and a
// registered method table (SPEC_FULL.md §6).
type Server struct {
	cfg    ServerConfig
	logger *logging.Logger

	engine  *engine.Supervisor
	cm      *config.ConfigManager
	router  *tally.Router
	jwt     *security.JWTHandler
	limiter *security.ClientRateLimiter

	upgrader   websocket.Upgrader
	httpServer *http.Server

	mu      sync.RWMutex
	clients map[string]*ClientConnection

	methods map[string]MethodHandler
}

// NewServer builds a Server. jwtHandler and limiter may be nil only in
// tests that do not exercise auth/throttling.
func NewServer(cfg ServerConfig, eng *engine.Supervisor, cm *config.ConfigManager, router *tally.Router, jwtHandler *security.JWTHandler, limiter *security.ClientRateLimiter, logger *logging.Logger) *Server {
	if logger == nil {
		logger = logging.GetLogger("control-api")
	}
	s := &Server{
		cfg:     cfg,
		logger:  logger,
		engine:  eng,
		cm:      cm,
		router:  router,
		jwt:     jwtHandler,
		limiter: limiter,
		clients: make(map[string]*ClientConnection),
		methods: make(map[string]MethodHandler),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
	s.registerBuiltinMethods()
	return s
}

func (s *Server) registerBuiltinMethods() {
	s.methods["list_devices"] = handleListDevices
	s.methods["get_parameter"] = handleGetParameter
	s.methods["set_parameter"] = handleSetParameter
	s.methods["observe_parameter"] = handleObserveParameter
	s.methods["list_tally_maps"] = handleListTallyMaps
	s.methods["set_tally_map"] = handleSetTallyMap
	s.methods["get_config"] = handleGetConfig
	s.methods["update_config"] = handleUpdateConfig
}

// Start binds the HTTP listener and serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc(s.cfg.Path, s.handleWebSocket)

	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler: mux,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	s.logger.WithFields(logging.Fields{"host": s.cfg.Host, "port": s.cfg.Port, "path": s.cfg.Path}).Info("control API listening")

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return fmt.Errorf("api: listen: %w", err)
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.WithError(err).Error("websocket upgrade failed")
		return
	}

	client := &ClientConnection{
		ClientID:      uuid.NewString(),
		ConnectedAt:   time.Now(),
		Subscriptions: make(map[string]bool),
		conn:          conn,
		writeMu:       make(chan struct{}, 1),
		subCancels:    make(map[string]func()),
	}

	s.mu.Lock()
	s.clients[client.ClientID] = client
	s.mu.Unlock()

	s.logger.WithField("client_id", client.ClientID).Info("control API client connected")

	go s.handleClient(client)
}

func (s *Server) handleClient(client *ClientConnection) {
	defer func() {
		s.mu.Lock()
		delete(s.clients, client.ClientID)
		s.mu.Unlock()
		if s.limiter != nil {
			s.limiter.Forget(client.ClientID)
		}
		client.subMu.Lock()
		for _, cancel := range client.subCancels {
			cancel()
		}
		client.subMu.Unlock()
		client.conn.Close()
		s.logger.WithField("client_id", client.ClientID).Info("control API client disconnected")
	}()

	client.conn.SetReadLimit(s.cfg.MaxMessageSize)
	client.conn.SetReadDeadline(time.Now().Add(s.cfg.PongWait))
	client.conn.SetPongHandler(func(string) error {
		client.conn.SetReadDeadline(time.Now().Add(s.cfg.PongWait))
		return nil
	})

	stop := make(chan struct{})
	defer close(stop)
	go s.pingLoop(client, stop)

	for {
		_, message, err := client.conn.ReadMessage()
		if err != nil {
			return
		}
		s.handleMessage(client, message)
	}
}

func (s *Server) pingLoop(client *ClientConnection, stop chan struct{}) {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			client.lock()
			client.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			err := client.conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(s.cfg.WriteTimeout))
			client.unlock()
			if err != nil {
				return
			}
		}
	}
}

func (s *Server) handleMessage(client *ClientConnection, message []byte) {
	var req JsonRpcRequest
	if err := json.Unmarshal(message, &req); err != nil {
		s.sendResponse(client, &JsonRpcResponse{JSONRPC: "2.0", Error: newError(ErrCodeParseError, "invalid JSON-RPC request")})
		return
	}
	if req.JSONRPC != "2.0" {
		s.sendResponse(client, &JsonRpcResponse{JSONRPC: "2.0", ID: req.ID, Error: newError(ErrCodeInvalidRequest, "jsonrpc must be \"2.0\"")})
		return
	}

	resp := s.dispatch(client, &req)
	if req.ID == nil {
		return // notification: no reply
	}
	resp.JSONRPC = "2.0"
	resp.ID = req.ID
	s.sendResponse(client, resp)
}

func (s *Server) dispatch(client *ClientConnection, req *JsonRpcRequest) *JsonRpcResponse {
	if req.Method == "authenticate" {
		result, rpcErr := handleAuthenticate(s, client, req.Params)
		return resultOrError(result, rpcErr)
	}

	if s.limiter != nil && !s.limiter.Allow(client.ClientID) {
		return &JsonRpcResponse{Error: newError(ErrCodeRateLimited, "rate limit exceeded")}
	}
	if !client.Authenticated {
		return &JsonRpcResponse{Error: newError(ErrCodeAuthRequired, "authentication required")}
	}
	if !hasPermission(client.Role, req.Method) {
		return &JsonRpcResponse{Error: newError(ErrCodeForbidden, fmt.Sprintf("role %q may not call %q", client.Role, req.Method))}
	}

	handler, ok := s.methods[req.Method]
	if !ok {
		return &JsonRpcResponse{Error: newError(ErrCodeMethodNotFound, req.Method)}
	}

	result, rpcErr := handler(s, client, req.Params)
	return resultOrError(result, rpcErr)
}

func resultOrError(result interface{}, rpcErr *JsonRpcError) *JsonRpcResponse {
	if rpcErr != nil {
		return &JsonRpcResponse{Error: rpcErr}
	}
	return &JsonRpcResponse{Result: result}
}

func (s *Server) sendResponse(client *ClientConnection, resp *JsonRpcResponse) {
	client.lock()
	defer client.unlock()
	client.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	if err := client.conn.WriteJSON(resp); err != nil {
		s.logger.WithError(err).WithField("client_id", client.ClientID).Warn("failed to send response")
	}
}

// pushNotification sends a server-initiated JSON-RPC notification for an
// observe_parameter subscription.
func (s *Server) pushNotification(client *ClientConnection, method string, params map[string]interface{}) {
	client.lock()
	defer client.unlock()
	client.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	note := JsonRpcNotification{JSONRPC: "2.0", Method: method, Params: params}
	if err := client.conn.WriteJSON(note); err != nil {
		s.logger.WithError(err).WithField("client_id", client.ClientID).Warn("failed to push notification")
	}
}
