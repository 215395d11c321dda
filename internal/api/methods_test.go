package api

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMethods_SetTallyMapThenListTallyMaps(t *testing.T) {
	h := newHarness(t)
	h.addDevice(t, "cam-1")
	conn := dialWS(t, h.port)
	defer conn.Close()
	authenticate(t, conn, h.jwt, "operator")

	resp := rpc(t, conn, "1", "set_tally_map", map[string]interface{}{
		"tally_map": map[string]interface{}{
			"device_index": float64(0),
			"program_source": map[string]interface{}{
				"screen_index": float64(1), "tally_index": float64(2), "tally_type": "PGM",
			},
		},
	})
	require.Nil(t, resp.Error)

	resp = rpc(t, conn, "2", "list_tally_maps", nil)
	require.Nil(t, resp.Error)
	require.NotNil(t, resp.Result)
}

func TestMethods_GetConfigUnknownDevice(t *testing.T) {
	h := newHarness(t)
	conn := dialWS(t, h.port)
	defer conn.Close()
	authenticate(t, conn, h.jwt, "viewer")

	resp := rpc(t, conn, "1", "get_config", map[string]interface{}{"device_id": "ghost"})
	require.NotNil(t, resp.Error)
	require.Equal(t, ErrCodeNotFound, resp.Error.Code)
}

func TestMethods_AdminCanUpdateConfig(t *testing.T) {
	h := newHarness(t)
	h.addDevice(t, "cam-1")
	conn := dialWS(t, h.port)
	defer conn.Close()
	authenticate(t, conn, h.jwt, "admin")

	resp := rpc(t, conn, "1", "update_config", map[string]interface{}{
		"device_id": "cam-1",
		"patch":     map[string]interface{}{"display_name": "Camera One"},
	})
	require.Nil(t, resp.Error)

	resp = rpc(t, conn, "2", "get_config", map[string]interface{}{"device_id": "cam-1"})
	require.Nil(t, resp.Error)
}

func TestMethods_OperatorCannotUpdateConfig(t *testing.T) {
	h := newHarness(t)
	h.addDevice(t, "cam-1")
	conn := dialWS(t, h.port)
	defer conn.Close()
	authenticate(t, conn, h.jwt, "operator")

	resp := rpc(t, conn, "1", "update_config", map[string]interface{}{
		"device_id": "cam-1",
		"patch":     map[string]interface{}{"display_name": "Nope"},
	})
	require.NotNil(t, resp.Error)
	require.Equal(t, ErrCodeForbidden, resp.Error.Code)
}

func TestMethods_SetParameterShuttleStartAndRelease(t *testing.T) {
	h := newHarness(t)
	h.addDevice(t, "cam-1")
	conn := dialWS(t, h.port)
	defer conn.Close()
	authenticate(t, conn, h.jwt, "operator")

	resp := rpc(t, conn, "1", "set_parameter", map[string]interface{}{
		"device_id": "cam-1", "parameter": "zoom.pos", "value": float64(50), "shuttle": true,
	})
	require.Nil(t, resp.Error)

	m, ok := h.eng.Model("cam-1")
	require.True(t, ok)
	snap, ok := m.Get("zoom.pos")
	require.True(t, ok)
	require.Equal(t, 50, snap.Current)

	resp = rpc(t, conn, "2", "set_parameter", map[string]interface{}{
		"device_id": "cam-1", "parameter": "zoom.pos", "release": true, "shuttle": true,
	})
	require.Nil(t, resp.Error)

	snap, ok = m.Get("zoom.pos")
	require.True(t, ok)
	require.Equal(t, 0, snap.Current)
}

func TestMethods_SetParameterShuttleRejectsNonMotionParameter(t *testing.T) {
	h := newHarness(t)
	h.addDevice(t, "cam-1")
	conn := dialWS(t, h.port)
	defer conn.Close()
	authenticate(t, conn, h.jwt, "operator")

	resp := rpc(t, conn, "1", "set_parameter", map[string]interface{}{
		"device_id": "cam-1", "parameter": "gain.db", "value": float64(1), "shuttle": true,
	})
	require.NotNil(t, resp.Error)
	require.Equal(t, ErrCodeValidationFailed, resp.Error.Code)
}

func TestMethods_ObserveParameterReceivesPushOnChange(t *testing.T) {
	h := newHarness(t)
	h.addDevice(t, "cam-1")
	conn := dialWS(t, h.port)
	defer conn.Close()
	authenticate(t, conn, h.jwt, "operator")

	resp := rpc(t, conn, "1", "observe_parameter", map[string]interface{}{
		"device_id": "cam-1", "parameter": "tally.program",
	})
	require.Nil(t, resp.Error)

	resp = rpc(t, conn, "2", "set_parameter", map[string]interface{}{
		"device_id": "cam-1", "parameter": "tally.program", "value": true,
	})
	require.Nil(t, resp.Error)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var note JsonRpcNotification
	require.NoError(t, conn.ReadJSON(&note))
	require.Equal(t, "parameter_changed", note.Method)
	require.Equal(t, "tally.program", note.Params["parameter"])
}
