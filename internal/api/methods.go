package api

import (
	"context"
	"fmt"

	"github.com/jvconnected/camera-engine/internal/config"
	"github.com/jvconnected/camera-engine/internal/model"
)

// handleAuthenticate validates a bearer token and marks the connection
// authenticated with the token's role. Unlike every other method it runs
// before rate limiting and permission checks, mirroring the teacher's
// "authenticate is exempt" rule.
func handleAuthenticate(s *Server, client *ClientConnection, params map[string]interface{}) (interface{}, *JsonRpcError) {
	token, _ := params["token"].(string)
	if token == "" {
		return nil, newError(ErrCodeInvalidParams, "token is required")
	}
	if s.jwt == nil {
		return nil, newError(ErrCodeInternalError, "authentication is not configured")
	}
	claims, err := s.jwt.ValidateToken(token)
	if err != nil {
		return nil, newError(ErrCodeAuthRequired, err.Error())
	}
	client.Authenticated = true
	client.UserID = claims.UserID
	client.Role = claims.Role
	return map[string]interface{}{"user_id": claims.UserID, "role": claims.Role}, nil
}

// handleListDevices returns every known device's id, display name,
// assigned index, and online/active state.
func handleListDevices(s *Server, client *ClientConnection, params map[string]interface{}) (interface{}, *JsonRpcError) {
	devices := s.cm.List()
	out := make([]map[string]interface{}, 0, len(devices))
	for id, dc := range devices {
		out = append(out, map[string]interface{}{
			"device_id":    id,
			"display_name": dc.DisplayName,
			"device_index": dc.DeviceIndex,
			"online":       dc.Online,
			"active":       dc.Active,
		})
	}
	return out, nil
}

func deviceIdAndParam(params map[string]interface{}) (string, string, *JsonRpcError) {
	deviceId, _ := params["device_id"].(string)
	param, _ := params["parameter"].(string)
	if deviceId == "" || param == "" {
		return "", "", newError(ErrCodeInvalidParams, "device_id and parameter are required")
	}
	return deviceId, param, nil
}

// handleGetParameter returns a single parameter's current snapshot.
func handleGetParameter(s *Server, client *ClientConnection, params map[string]interface{}) (interface{}, *JsonRpcError) {
	deviceId, param, rpcErr := deviceIdAndParam(params)
	if rpcErr != nil {
		return nil, rpcErr
	}
	m, ok := s.engine.Model(deviceId)
	if !ok {
		return nil, newError(ErrCodeNotFound, fmt.Sprintf("unknown device %q", deviceId))
	}
	snap, ok := m.Get(param)
	if !ok {
		return nil, newError(ErrCodeNotFound, fmt.Sprintf("unknown parameter %q", param))
	}
	return snapshotToResult(snap.Name, snap.Current, snap.Dirty, snap.Stale), nil
}

func snapshotToResult(name string, current interface{}, dirty, stale bool) map[string]interface{} {
	return map[string]interface{}{
		"parameter": name,
		"value":     current,
		"dirty":     dirty,
		"stale":     stale,
	}
}

// handleSetParameter writes a value locally. For the two tally
// parameters it routes through the tally router's direct-write path so
// the router's later-message-wins ordering against UMD sources still
// applies (spec.md §4.H); every other parameter goes straight to the
// device's model.
func handleSetParameter(s *Server, client *ClientConnection, params map[string]interface{}) (interface{}, *JsonRpcError) {
	deviceId, param, rpcErr := deviceIdAndParam(params)
	if rpcErr != nil {
		return nil, rpcErr
	}

	shuttle, _ := params["shuttle"].(bool)
	release, _ := params["release"].(bool)
	if shuttle && release {
		m, ok := s.engine.Model(deviceId)
		if !ok {
			return nil, newError(ErrCodeNotFound, fmt.Sprintf("unknown device %q", deviceId))
		}
		if snap, ok := m.Get(param); !ok || !snap.Descriptor.ContinuousMotion {
			return nil, newError(ErrCodeValidationFailed, fmt.Sprintf("parameter %q does not support shuttle control", param))
		}
		session, ok := s.engine.Session(deviceId)
		if !ok {
			return nil, newError(ErrCodeNotFound, fmt.Sprintf("unknown device %q", deviceId))
		}
		session.StopShuttle(context.Background(), param)
		return map[string]interface{}{"accepted": true}, nil
	}

	value, hasValue := params["value"]
	if !hasValue {
		return nil, newError(ErrCodeInvalidParams, "value is required")
	}

	if (param == "tally.program" || param == "tally.preview") && s.router != nil {
		dc, ok := s.cm.Get(deviceId)
		if !ok || !dc.IndexAssigned {
			return nil, newError(ErrCodeNotFound, fmt.Sprintf("unknown or unindexed device %q", deviceId))
		}
		on, ok := value.(bool)
		if !ok {
			return nil, newError(ErrCodeValidationFailed, "value must be a boolean for tally parameters")
		}
		if param == "tally.program" {
			s.router.OnDirectWrite(dc.DeviceIndex, &on, nil)
		} else {
			s.router.OnDirectWrite(dc.DeviceIndex, nil, &on)
		}
		return map[string]interface{}{"accepted": true}, nil
	}

	m, ok := s.engine.Model(deviceId)
	if !ok {
		return nil, newError(ErrCodeNotFound, fmt.Sprintf("unknown device %q", deviceId))
	}

	if shuttle {
		snap, ok := m.Get(param)
		if !ok {
			return nil, newError(ErrCodeNotFound, fmt.Sprintf("unknown parameter %q", param))
		}
		if !snap.Descriptor.ContinuousMotion {
			return nil, newError(ErrCodeValidationFailed, fmt.Sprintf("parameter %q does not support shuttle control", param))
		}
		step, ok := value.(float64)
		if !ok {
			return nil, newError(ErrCodeValidationFailed, "value must be a number for shuttle control")
		}
		session, ok := s.engine.Session(deviceId)
		if !ok {
			return nil, newError(ErrCodeNotFound, fmt.Sprintf("unknown device %q", deviceId))
		}
		session.StartShuttle(context.Background(), param, snap.Descriptor, int(step))
		return map[string]interface{}{"accepted": true}, nil
	}

	if err := m.SetLocal(context.Background(), param, value); err != nil {
		return nil, newError(ErrCodeValidationFailed, err.Error())
	}
	return map[string]interface{}{"accepted": true}, nil
}

// handleObserveParameter subscribes the calling client to change events
// for one device parameter; each subsequent change is pushed as a
// "parameter_changed" notification until the client disconnects.
func handleObserveParameter(s *Server, client *ClientConnection, params map[string]interface{}) (interface{}, *JsonRpcError) {
	deviceId, param, rpcErr := deviceIdAndParam(params)
	if rpcErr != nil {
		return nil, rpcErr
	}
	m, ok := s.engine.Model(deviceId)
	if !ok {
		return nil, newError(ErrCodeNotFound, fmt.Sprintf("unknown device %q", deviceId))
	}

	key := deviceId + ":" + param
	client.subMu.Lock()
	if _, already := client.subCancels[key]; already {
		client.subMu.Unlock()
		return map[string]interface{}{"subscribed": true}, nil
	}
	client.subMu.Unlock()

	cancel := m.Observe(param, func(ev model.ChangeEvent) {
		s.pushNotification(client, "parameter_changed", map[string]interface{}{
			"device_id": deviceId,
			"parameter": ev.Name,
			"value":     ev.Value,
		})
	})

	client.subMu.Lock()
	client.subCancels[key] = cancel
	client.subMu.Unlock()
	client.Subscriptions[key] = true

	return map[string]interface{}{"subscribed": true}, nil
}

// handleListTallyMaps returns every configured tally map.
func handleListTallyMaps(s *Server, client *ClientConnection, params map[string]interface{}) (interface{}, *JsonRpcError) {
	maps := s.cm.TallyMaps()
	out := make([]config.TallyMap, 0, len(maps))
	for _, tm := range maps {
		out = append(out, tm)
	}
	return out, nil
}

// handleSetTallyMap validates and upserts one tally map.
func handleSetTallyMap(s *Server, client *ClientConnection, params map[string]interface{}) (interface{}, *JsonRpcError) {
	raw, ok := params["tally_map"].(map[string]interface{})
	if !ok {
		return nil, newError(ErrCodeInvalidParams, "tally_map object is required")
	}
	tm, err := decodeTallyMap(raw)
	if err != nil {
		return nil, newError(ErrCodeInvalidParams, err.Error())
	}
	if err := s.cm.UpsertTallyMap(tm.DeviceIndex, tm); err != nil {
		return nil, newError(ErrCodeValidationFailed, err.Error())
	}
	return map[string]interface{}{"accepted": true}, nil
}

func decodeTallyMap(raw map[string]interface{}) (config.TallyMap, error) {
	idx, ok := raw["device_index"].(float64)
	if !ok {
		return config.TallyMap{}, fmt.Errorf("device_index is required")
	}
	tm := config.TallyMap{DeviceIndex: int(idx)}
	if src, ok := raw["program_source"].(map[string]interface{}); ok {
		tm.ProgramSource = decodeTallySource(src)
	}
	if src, ok := raw["preview_source"].(map[string]interface{}); ok {
		tm.PreviewSource = decodeTallySource(src)
	}
	return tm, nil
}

func decodeTallySource(raw map[string]interface{}) config.TallySource {
	var src config.TallySource
	if v, ok := raw["screen_index"].(float64); ok {
		src.ScreenIndex = int(v)
	}
	if v, ok := raw["tally_index"].(float64); ok {
		src.TallyIndex = int(v)
	}
	if v, ok := raw["tally_type"].(string); ok {
		src.TallyType = v
	}
	return src
}

// handleGetConfig returns one device's stored config record.
func handleGetConfig(s *Server, client *ClientConnection, params map[string]interface{}) (interface{}, *JsonRpcError) {
	deviceId, _ := params["device_id"].(string)
	if deviceId == "" {
		return nil, newError(ErrCodeInvalidParams, "device_id is required")
	}
	dc, ok := s.cm.Get(deviceId)
	if !ok {
		return nil, newError(ErrCodeNotFound, fmt.Sprintf("unknown device %q", deviceId))
	}
	return dc, nil
}

// handleUpdateConfig patches one device's stored config record.
func handleUpdateConfig(s *Server, client *ClientConnection, params map[string]interface{}) (interface{}, *JsonRpcError) {
	deviceId, _ := params["device_id"].(string)
	patchRaw, ok := params["patch"].(map[string]interface{})
	if deviceId == "" || !ok {
		return nil, newError(ErrCodeInvalidParams, "device_id and patch are required")
	}

	patch := config.DeviceConfig{}
	if v, ok := patchRaw["display_name"].(string); ok {
		patch.DisplayName = v
	}
	if v, ok := patchRaw["host"].(string); ok {
		patch.Host = v
	}
	if v, ok := patchRaw["port"].(float64); ok {
		patch.Port = int(v)
	}
	if v, ok := patchRaw["auth_user"].(string); ok {
		patch.AuthUser = v
	}
	if v, ok := patchRaw["auth_pass"].(string); ok {
		patch.AuthPass = v
	}
	if v, ok := patchRaw["always_connect"].(bool); ok {
		patch.AlwaysConnect = v
	}

	updated, changed, err := s.cm.Upsert(deviceId, patch)
	if err != nil {
		return nil, newError(ErrCodeValidationFailed, err.Error())
	}
	return map[string]interface{}{"config": updated, "changed_fields": changed}, nil
}
