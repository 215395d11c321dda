package paramspec

import (
	"fmt"
	"net/http"
)

// Registry is the read-only, compile-time catalog of parameter groups.
type Registry struct {
	groups map[GroupName]*Group
	order  []GroupName
}

// Group returns the named group and whether it exists.
func (r *Registry) Group(name GroupName) (*Group, bool) {
	g, ok := r.groups[name]
	return g, ok
}

// Groups returns every group name in declaration order.
func (r *Registry) Groups() []GroupName {
	out := make([]GroupName, len(r.order))
	copy(out, r.order)
	return out
}

// Param looks up a single parameter descriptor by group and name.
func (r *Registry) Param(group GroupName, name string) (Descriptor, bool) {
	g, ok := r.groups[group]
	if !ok {
		return Descriptor{}, false
	}
	d, ok := g.Params[name]
	return d, ok
}

// FindParam searches every group for a parameter name, for callers that
// only have the bare name (e.g. the control API). Parameter names are
// unique across the whole registry by convention ("group.field").
func (r *Registry) FindParam(name string) (Descriptor, bool) {
	for _, g := range r.groups {
		if d, ok := g.Params[name]; ok {
			return d, true
		}
	}
	return Descriptor{}, false
}

type registryBuilder struct {
	r *Registry
}

func newRegistryBuilder() *registryBuilder {
	return &registryBuilder{r: &Registry{groups: make(map[GroupName]*Group)}}
}

func (b *registryBuilder) group(name GroupName, poll PollDescriptor, params ...Descriptor) {
	g := &Group{Name: name, Poll: poll, Params: make(map[string]Descriptor, len(params))}
	for _, p := range params {
		p.Group = name
		g.Params[p.Name] = p
	}
	b.r.groups[name] = g
	b.r.order = append(b.r.order, name)
}

// stepRequest builds the BuildRequest closure for spring-loaded/stepped
// controls (iris, zoom, focus, master black) whose wire API is a signed
// step against a named open/close button event, per spec.md §4.C.
func stepRequest(openKind, closeKind string) func(interface{}) (SetRequest, error) {
	return func(value interface{}) (SetRequest, error) {
		step, ok := value.(int)
		if !ok {
			return SetRequest{}, fmt.Errorf("paramspec: expected int step, got %T", value)
		}
		kind := openKind
		if step < 0 {
			kind = closeKind
			step = -step
		}
		return SetRequest{
			Method: http.MethodGet,
			Path:   fmt.Sprintf("/SetWebButtonEvent?Kind=%s&StepValue=%d", kind, step),
		}, nil
	}
}

// absoluteIntRequest builds a BuildRequest closure for parameters that
// accept a direct value write rather than a relative step.
func absoluteIntRequest(param string) func(interface{}) (SetRequest, error) {
	return func(value interface{}) (SetRequest, error) {
		iv, ok := value.(int)
		if !ok {
			return SetRequest{}, fmt.Errorf("paramspec: expected int, got %T", value)
		}
		return SetRequest{
			Method: http.MethodGet,
			Path:   fmt.Sprintf("/SetCamParam?Param=%s&Value=%d", param, iv),
		}, nil
	}
}

// choiceRequest builds a BuildRequest closure for enum-valued parameters.
func choiceRequest(param string) func(interface{}) (SetRequest, error) {
	return func(value interface{}) (SetRequest, error) {
		sv, ok := value.(string)
		if !ok {
			return SetRequest{}, fmt.Errorf("paramspec: expected string, got %T", value)
		}
		return SetRequest{
			Method: http.MethodGet,
			Path:   fmt.Sprintf("/SetCamParam?Param=%s&Value=%s", param, sv),
		}, nil
	}
}

// boolRequest builds a BuildRequest closure for boolean parameters, used
// by the tally router as a local writer (spec.md §4.H).
func boolRequest(param string) func(interface{}) (SetRequest, error) {
	return func(value interface{}) (SetRequest, error) {
		bv, ok := value.(bool)
		if !ok {
			return SetRequest{}, fmt.Errorf("paramspec: expected bool, got %T", value)
		}
		v := 0
		if bv {
			v = 1
		}
		return SetRequest{
			Method: http.MethodGet,
			Path:   fmt.Sprintf("/SetCamTally?Type=%s&Value=%d", param, v),
		}, nil
	}
}

func deriveBatteryLevel(wire map[string]interface{}) (interface{}, error) {
	pct, ok := wire["BatteryRemain"].(float64)
	if !ok {
		return nil, fmt.Errorf("paramspec: battery.level_pct: missing BatteryRemain field")
	}
	volt, ok := wire["BatteryVoltage"].(float64)
	if !ok {
		return nil, fmt.Errorf("paramspec: battery.level_pct: missing BatteryVoltage field")
	}
	return map[string]interface{}{"percent": pct, "voltage_mv": volt}, nil
}

func deriveLensInfo(wire map[string]interface{}) (interface{}, error) {
	model, _ := wire["LensModel"].(string)
	serial, _ := wire["LensSerial"].(string)
	firmware, _ := wire["LensFirmware"].(string)
	return map[string]interface{}{"model": model, "serial": serial, "firmware": firmware}, nil
}

// DefaultRegistry returns the concrete parameter catalog for the camera
// family this engine controls. It is the single source of truth consumed
// by the parameter model, the device session's poll/command loops, and
// the control API's method table (spec.md §4.C, §9).
func DefaultRegistry() *Registry {
	b := newRegistryBuilder()

	b.group(GroupExposure, PollDescriptor{Path: "/Exposure"},
		Descriptor{
			Name: "iris.pos", Kind: KindInt, WireField: "IrisPos",
			Range: IntRange{Min: 0, Max: 255},
			Set: &SetDescriptor{
				BuildRequest: stepRequest("IrisOpen", "IrisClose"),
				RejectInMode: "iris.mode", RejectValue: "auto",
			},
		},
		Descriptor{
			Name: "iris.mode", Kind: KindChoice, WireField: "IrisMode",
			Enum: []string{"auto", "manual"},
			Set:  &SetDescriptor{BuildRequest: choiceRequest("IrisMode")},
		},
		Descriptor{
			Name: "gain.db", Kind: KindInt, WireField: "GainValue",
			Range: IntRange{Min: -6, Max: 24},
			Set:   &SetDescriptor{BuildRequest: absoluteIntRequest("GainValue")},
		},
		Descriptor{
			Name: "shutter.speed", Kind: KindChoice, WireField: "ShutterSpeed",
			Enum: []string{"1/50", "1/60", "1/100", "1/120", "1/250", "1/500", "1/1000"},
			Set:  &SetDescriptor{BuildRequest: choiceRequest("ShutterSpeed")},
		},
	)

	b.group(GroupPaint, PollDescriptor{Path: "/Paint"},
		Descriptor{
			Name: "wb.red", Kind: KindInt, WireField: "WBRedOffset",
			Range: IntRange{Min: -128, Max: 128},
			Set:   &SetDescriptor{BuildRequest: absoluteIntRequest("WBRedOffset")},
		},
		Descriptor{
			Name: "wb.blue", Kind: KindInt, WireField: "WBBlueOffset",
			Range: IntRange{Min: -128, Max: 128},
			Set:   &SetDescriptor{BuildRequest: absoluteIntRequest("WBBlueOffset")},
		},
		Descriptor{
			Name: "wb.mode", Kind: KindChoice, WireField: "WBMode",
			Enum: []string{"auto", "manual", "one_push"},
			Set:  &SetDescriptor{BuildRequest: choiceRequest("WBMode")},
		},
	)

	b.group(GroupTally, PollDescriptor{Path: "/Tally"},
		Descriptor{
			Name: "tally.program", Kind: KindBool, WireField: "TallyProgram",
			Set: &SetDescriptor{BuildRequest: boolRequest("Program")},
		},
		Descriptor{
			Name: "tally.preview", Kind: KindBool, WireField: "TallyPreview",
			Set: &SetDescriptor{BuildRequest: boolRequest("Preview")},
		},
	)

	b.group(GroupCamera, PollDescriptor{Path: "/Camera"},
		Descriptor{Name: "camera.model", Kind: KindChoice, WireField: "Model", Enum: nil},
		Descriptor{Name: "camera.serial", Kind: KindChoice, WireField: "Serial", Enum: nil},
		Descriptor{
			Name: "master_black.level", Kind: KindInt, WireField: "MasterBlackLevel",
			Range:            IntRange{Min: -99, Max: 99},
			Set:              &SetDescriptor{BuildRequest: stepRequest("MasterBlackUp", "MasterBlackDown")},
			ContinuousMotion: true,
		},
	)

	b.group(GroupNTP, PollDescriptor{Path: "/NTP"},
		Descriptor{
			Name: "ntp.server", Kind: KindChoice, WireField: "NTPServer", Enum: nil,
			Set: &SetDescriptor{BuildRequest: choiceRequest("NTPServer")},
		},
		Descriptor{Name: "ntp.sync_status", Kind: KindChoice, WireField: "NTPSyncStatus",
			Enum: []string{"unsynced", "syncing", "synced"}},
	)

	b.group(GroupBattery, PollDescriptor{Path: "/Battery"},
		Descriptor{
			Name: "battery.level_pct", Kind: KindMulti,
			MultiWireFields: []string{"BatteryRemain", "BatteryVoltage"},
			Derive:          deriveBatteryLevel,
		},
	)

	b.group(GroupLens, PollDescriptor{Path: "/Lens"},
		Descriptor{
			Name: "zoom.pos", Kind: KindInt, WireField: "ZoomPos",
			Range:            IntRange{Min: 0, Max: 999},
			Set:              &SetDescriptor{BuildRequest: stepRequest("ZoomTele", "ZoomWide")},
			ContinuousMotion: true,
		},
		Descriptor{
			Name: "focus.pos", Kind: KindInt, WireField: "FocusPos",
			Range:            IntRange{Min: 0, Max: 999},
			Set:              &SetDescriptor{BuildRequest: stepRequest("FocusFar", "FocusNear")},
			ContinuousMotion: true,
		},
		Descriptor{
			Name: "lens.info", Kind: KindMulti,
			MultiWireFields: []string{"LensModel", "LensSerial", "LensFirmware"},
			Derive:          deriveLensInfo,
		},
	)

	return b.r
}
