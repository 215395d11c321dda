package api

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// JSON-RPC 2.0 error codes. The auth/permission/rate-limit codes below
// -32000 follow the server-error range the spec reserves for
// implementation-defined conditions.
const (
	ErrCodeParseError       = -32700
	ErrCodeInvalidRequest   = -32600
	ErrCodeMethodNotFound   = -32601
	ErrCodeInvalidParams    = -32602
	ErrCodeInternalError    = -32603
	ErrCodeAuthRequired     = -32001
	ErrCodeRateLimited      = -32002
	ErrCodeForbidden        = -32003
	ErrCodeNotFound         = -32004
	ErrCodeValidationFailed = -32005
)

// JsonRpcRequest is a JSON-RPC 2.0 request as received from a client.
type JsonRpcRequest struct {
	JSONRPC string                 `json:"jsonrpc"`
	Method  string                 `json:"method"`
	ID      interface{}            `json:"id,omitempty"`
	Params  map[string]interface{} `json:"params,omitempty"`
}

// JsonRpcResponse is a JSON-RPC 2.0 response sent back to a client.
type JsonRpcResponse struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      interface{}   `json:"id,omitempty"`
	Result  interface{}   `json:"result,omitempty"`
	Error   *JsonRpcError `json:"error,omitempty"`
}

// JsonRpcNotification is a server-pushed message with no id and no
// reply expected — used for parameter change events.
type JsonRpcNotification struct {
	JSONRPC string                 `json:"jsonrpc"`
	Method  string                 `json:"method"`
	Params  map[string]interface{} `json:"params,omitempty"`
}

// JsonRpcError carries a JSON-RPC error code and message.
type JsonRpcError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func newError(code int, message string) *JsonRpcError {
	return &JsonRpcError{Code: code, Message: message}
}

// ClientConnection is one connected control API client.
type ClientConnection struct {
	ClientID      string
	Authenticated bool
	UserID        string
	Role          string
	ConnectedAt   time.Time
	Subscriptions map[string]bool // "deviceId:param" -> subscribed

	conn    *websocket.Conn
	writeMu chan struct{} // 1-buffered mutex, avoids concurrent writers on conn

	subMu      sync.Mutex
	subCancels map[string]func() // "deviceId:param" -> model.Observe cancel func
}

func (c *ClientConnection) lock()   { c.writeMu <- struct{}{} }
func (c *ClientConnection) unlock() { <-c.writeMu }

// MethodHandler implements one JSON-RPC method.
type MethodHandler func(s *Server, client *ClientConnection, params map[string]interface{}) (interface{}, *JsonRpcError)

// ServerConfig configures the control API's WebSocket listener.
type ServerConfig struct {
	Host           string
	Port           int
	Path           string
	PingInterval   time.Duration
	PongWait       time.Duration
	WriteTimeout   time.Duration
	MaxMessageSize int64
}

// DefaultServerConfig returns sane defaults for ServerConfig.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:           "0.0.0.0",
		Port:           8080,
		Path:           "/ws",
		PingInterval:   30 * time.Second,
		PongWait:       60 * time.Second,
		WriteTimeout:   5 * time.Second,
		MaxMessageSize: 1024 * 1024,
	}
}
