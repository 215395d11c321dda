package api

import (
	"context"
	"net"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/jvconnected/camera-engine/internal/config"
	"github.com/jvconnected/camera-engine/internal/engine"
	"github.com/jvconnected/camera-engine/internal/logging"
	"github.com/jvconnected/camera-engine/internal/security"
	"github.com/jvconnected/camera-engine/internal/tally"
)

func testLogger() *logging.Logger {
	return logging.GetLogger("api-test")
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()
	return port
}

type harness struct {
	server  *Server
	cm      *config.ConfigManager
	eng     *engine.Supervisor
	jwt     *security.JWTHandler
	limiter *security.ClientRateLimiter
	port    int
}

// newHarness wires a Server against real-but-idle collaborators: a
// ConfigManager backed by a scratch file, an engine Supervisor with no
// discovery scanner (devices are injected via Connect), and a tally
// Router bound to the supervisor's model lookup.
func newHarness(t *testing.T) *harness {
	t.Helper()
	logger := testLogger()

	cm, err := config.NewConfigManager(filepath.Join(t.TempDir(), "config.yaml"), logger)
	require.NoError(t, err)

	eng := engine.New(engine.Options{ConfigManager: cm}, logger)

	router := tally.NewRouter(cm, eng.ModelByIndex, logger)

	jwtHandler, err := security.NewJWTHandler("test-secret-key-0123456789", logger)
	require.NoError(t, err)

	limiter := security.NewClientRateLimiter(0, logger) // disabled: predictable tests

	cfg := DefaultServerConfig()
	cfg.Host = "127.0.0.1"
	cfg.Port = freePort(t)
	cfg.PingInterval = time.Minute

	s := NewServer(cfg, eng, cm, router, jwtHandler, limiter, logger)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go router.Run(ctx)
	go s.Start(ctx)

	return &harness{server: s, cm: cm, eng: eng, jwt: jwtHandler, limiter: limiter, port: cfg.Port}
}

// addDevice registers a device in the config store and instantiates its
// session/model via Connect, so engine.Model(id) resolves.
func (h *harness) addDevice(t *testing.T, id string) {
	t.Helper()
	_, _, err := h.cm.Upsert(id, config.DeviceConfig{DisplayName: id, Host: "127.0.0.1", Port: 9999})
	require.NoError(t, err)
	require.NoError(t, h.cm.AssignIndex(id, 0))
	require.NoError(t, h.eng.Connect(context.Background(), id))
}

func dialWS(t *testing.T, port int) *websocket.Conn {
	t.Helper()
	var conn *websocket.Conn
	require.Eventually(t, func() bool {
		c, _, err := websocket.DefaultDialer.Dial("ws://127.0.0.1:"+strconv.Itoa(port)+"/ws", nil)
		if err != nil {
			return false
		}
		conn = c
		return true
	}, time.Second, 10*time.Millisecond)
	return conn
}

func rpc(t *testing.T, conn *websocket.Conn, id, method string, params map[string]interface{}) JsonRpcResponse {
	t.Helper()
	req := JsonRpcRequest{JSONRPC: "2.0", ID: id, Method: method, Params: params}
	require.NoError(t, conn.WriteJSON(req))
	var resp JsonRpcResponse
	require.NoError(t, conn.ReadJSON(&resp))
	return resp
}

func authenticate(t *testing.T, conn *websocket.Conn, jwtHandler *security.JWTHandler, role string) {
	t.Helper()
	token, err := jwtHandler.GenerateToken("user-1", role, 1)
	require.NoError(t, err)
	resp := rpc(t, conn, "auth", "authenticate", map[string]interface{}{"token": token})
	require.Nil(t, resp.Error)
}

func TestServer_RejectsUnauthenticatedCall(t *testing.T) {
	h := newHarness(t)
	conn := dialWS(t, h.port)
	defer conn.Close()

	resp := rpc(t, conn, "1", "list_devices", nil)
	require.NotNil(t, resp.Error)
	require.Equal(t, ErrCodeAuthRequired, resp.Error.Code)
}

func TestServer_AuthenticateThenListDevices(t *testing.T) {
	h := newHarness(t)
	h.addDevice(t, "cam-1")
	conn := dialWS(t, h.port)
	defer conn.Close()

	authenticate(t, conn, h.jwt, "viewer")

	resp := rpc(t, conn, "2", "list_devices", nil)
	require.Nil(t, resp.Error)
	require.NotNil(t, resp.Result)
}

func TestServer_ViewerCannotSetParameter(t *testing.T) {
	h := newHarness(t)
	h.addDevice(t, "cam-1")
	conn := dialWS(t, h.port)
	defer conn.Close()

	authenticate(t, conn, h.jwt, "viewer")

	resp := rpc(t, conn, "3", "set_parameter", map[string]interface{}{
		"device_id": "cam-1", "parameter": "tally.program", "value": true,
	})
	require.NotNil(t, resp.Error)
	require.Equal(t, ErrCodeForbidden, resp.Error.Code)
}

func TestServer_OperatorCanSetTallyParameter(t *testing.T) {
	h := newHarness(t)
	h.addDevice(t, "cam-1")
	conn := dialWS(t, h.port)
	defer conn.Close()

	authenticate(t, conn, h.jwt, "operator")

	resp := rpc(t, conn, "4", "set_parameter", map[string]interface{}{
		"device_id": "cam-1", "parameter": "tally.program", "value": true,
	})
	require.Nil(t, resp.Error)
}

func TestServer_UnknownMethodReturnsMethodNotFound(t *testing.T) {
	h := newHarness(t)
	conn := dialWS(t, h.port)
	defer conn.Close()

	authenticate(t, conn, h.jwt, "admin")

	resp := rpc(t, conn, "5", "does_not_exist", nil)
	require.NotNil(t, resp.Error)
	require.Equal(t, ErrCodeMethodNotFound, resp.Error.Code)
}

func TestServer_GetParameterUnknownDevice(t *testing.T) {
	h := newHarness(t)
	conn := dialWS(t, h.port)
	defer conn.Close()

	authenticate(t, conn, h.jwt, "viewer")

	resp := rpc(t, conn, "6", "get_parameter", map[string]interface{}{
		"device_id": "ghost", "parameter": "tally.program",
	})
	require.NotNil(t, resp.Error)
	require.Equal(t, ErrCodeNotFound, resp.Error.Code)
}
