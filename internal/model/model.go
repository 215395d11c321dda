package model

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/jvconnected/camera-engine/internal/logging"
	"github.com/jvconnected/camera-engine/internal/paramspec"
)

// ErrUnknownParameter is returned when a caller names a parameter the
// registry does not declare.
var ErrUnknownParameter = fmt.Errorf("model: unknown parameter")

// ErrRejectedByMode is returned when a write is rejected locally because
// the parameter's tie-break mode parameter forbids it (spec.md §4.C).
var ErrRejectedByMode = fmt.Errorf("model: write rejected by current mode")

// CommandEnqueuer is supplied by the owning device session; SetLocal calls
// it once validation passes, so the resulting HTTP write joins the
// session's single-in-flight command queue (spec.md §4.D).
type CommandEnqueuer func(ctx context.Context, d paramspec.Descriptor, value interface{}) error

// ParameterModel mirrors one camera's parameter groups and arbitrates
// between locally-initiated writes and remote poll responses.
type ParameterModel struct {
	registry *paramspec.Registry
	logger   *logging.Logger

	mu     sync.RWMutex
	params map[string]*ParamState

	enqueue CommandEnqueuer

	obsMu     sync.RWMutex
	observers map[string][]func(ChangeEvent)
	anyObs    []func(ChangeEvent)
	errObs    []func(ErrorEvent)
}

// New builds a ParameterModel with every parameter in registry present
// but unset (Current/LastRemote nil) until the first poll or write.
func New(registry *paramspec.Registry, logger *logging.Logger) *ParameterModel {
	m := &ParameterModel{
		registry:  registry,
		logger:    logger,
		params:    make(map[string]*ParamState),
		observers: make(map[string][]func(ChangeEvent)),
	}
	for _, gname := range registry.Groups() {
		g, _ := registry.Group(gname)
		for name, d := range g.Params {
			m.params[name] = &ParamState{Descriptor: d}
		}
	}
	return m
}

// SetCommandEnqueuer wires the model to its owning session's command
// queue. Until this is called, SetLocal still updates Current/Pending but
// no HTTP write is issued (useful in tests that exercise arbitration
// without a live session).
func (m *ParameterModel) SetCommandEnqueuer(fn CommandEnqueuer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enqueue = fn
}

// Get returns a point-in-time snapshot of one parameter.
func (m *ParameterModel) Get(name string) (Snapshot, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ps, ok := m.params[name]
	if !ok {
		return Snapshot{}, false
	}
	return ps.snapshot(name), true
}

// All returns a snapshot of every parameter, for bulk consumers like the
// control API's device-list method.
func (m *ParameterModel) All() []Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Snapshot, 0, len(m.params))
	for name, ps := range m.params {
		out = append(out, ps.snapshot(name))
	}
	return out
}

// Observe registers fn to be called whenever the named parameter's
// Current value changes. It returns a cancel function. This is the single
// "observe path" API named in spec.md §9 — the control API is its only
// consumer.
func (m *ParameterModel) Observe(name string, fn func(ChangeEvent)) (cancel func()) {
	m.obsMu.Lock()
	defer m.obsMu.Unlock()
	m.observers[name] = append(m.observers[name], fn)
	idx := len(m.observers[name]) - 1
	return func() {
		m.obsMu.Lock()
		defer m.obsMu.Unlock()
		list := m.observers[name]
		if idx < len(list) {
			list[idx] = nil
		}
	}
}

// ObserveAll registers fn for every change event in this model.
func (m *ParameterModel) ObserveAll(fn func(ChangeEvent)) {
	m.obsMu.Lock()
	defer m.obsMu.Unlock()
	m.anyObs = append(m.anyObs, fn)
}

// ObserveErrors registers fn for write-failure annotations (spec.md §4.E).
func (m *ParameterModel) ObserveErrors(fn func(ErrorEvent)) {
	m.obsMu.Lock()
	defer m.obsMu.Unlock()
	m.errObs = append(m.errObs, fn)
}

func (m *ParameterModel) emit(ev ChangeEvent) {
	m.obsMu.RLock()
	defer m.obsMu.RUnlock()
	for _, fn := range m.observers[ev.Name] {
		if fn != nil {
			fn(ev)
		}
	}
	for _, fn := range m.anyObs {
		fn(ev)
	}
}

func (m *ParameterModel) emitError(ev ErrorEvent) {
	m.obsMu.RLock()
	defer m.obsMu.RUnlock()
	for _, fn := range m.errObs {
		fn(ev)
	}
}

// SetLocal applies a user- or mapper-driven write. It validates the value
// against the registry, enforces the tie-break mode rule, updates
// Current/Pending synchronously, and enqueues the corresponding HTTP
// command. The write is reflected in Current immediately so a concurrent
// reader sees the user's intent before the network round trip completes
// (spec.md §8 boundary: "if a local write is in flight, current.value
// equals the user-supplied value until the write resolves").
func (m *ParameterModel) SetLocal(ctx context.Context, name string, value interface{}) error {
	m.mu.Lock()
	ps, ok := m.params[name]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownParameter, name)
	}

	if err := ps.Descriptor.Validate(value); err != nil {
		m.mu.Unlock()
		return err
	}
	if ps.Descriptor.Set == nil {
		m.mu.Unlock()
		return fmt.Errorf("model: %s is read-only", name)
	}
	if rejectName := ps.Descriptor.Set.RejectInMode; rejectName != "" {
		if guard, ok := m.params[rejectName]; ok {
			if gv, _ := guard.Current.(string); gv == ps.Descriptor.Set.RejectValue {
				m.mu.Unlock()
				return fmt.Errorf("%w: %s is in %q mode", ErrRejectedByMode, rejectName, gv)
			}
		}
	}

	changed := !reflect.DeepEqual(ps.Current, value)
	ps.Pending = value
	ps.Current = value
	ps.Dirty = true
	ps.LastUpdate = time.Now()
	descriptor := ps.Descriptor
	enqueue := m.enqueue
	m.mu.Unlock()

	if changed {
		m.emit(ChangeEvent{Name: name, Value: value})
	}

	if enqueue != nil {
		if err := enqueue(ctx, descriptor, value); err != nil {
			return err
		}
	}
	return nil
}

// ApplyRemoteGroup routes a poll response for an entire parameter group
// into the model. Simple parameters update from their wire field; multi-
// parameters are recomputed from the full wire map so their composing
// fields are always read together, producing at most one atomic change
// event for the composite (spec.md §4.E).
func (m *ParameterModel) ApplyRemoteGroup(group paramspec.GroupName, wire map[string]interface{}) error {
	g, ok := m.registry.Group(group)
	if !ok {
		return fmt.Errorf("model: unknown group %s", group)
	}
	for name, d := range g.Params {
		var value interface{}
		var present bool
		switch d.Kind {
		case paramspec.KindMulti:
			if !allPresent(wire, d.MultiWireFields) {
				continue
			}
			v, err := d.Derive(wire)
			if err != nil {
				m.logger.WithError(err).WithField("parameter", name).Warn("failed to derive multi-parameter")
				continue
			}
			value, present = v, true
		default:
			raw, ok := wire[d.WireField]
			if !ok {
				continue
			}
			v, ok := decodeWireValue(d, raw)
			if !ok {
				m.logger.WithField("parameter", name).Warn("unexpected wire type for parameter")
				continue
			}
			value, present = v, true
		}
		if present {
			m.applyRemoteNamed(name, value)
		}
	}
	return nil
}

func allPresent(wire map[string]interface{}, fields []string) bool {
	for _, f := range fields {
		if _, ok := wire[f]; !ok {
			return false
		}
	}
	return true
}

func decodeWireValue(d paramspec.Descriptor, raw interface{}) (interface{}, bool) {
	switch d.Kind {
	case paramspec.KindBool:
		switch v := raw.(type) {
		case bool:
			return v, true
		case float64:
			return v != 0, true
		}
		return nil, false
	case paramspec.KindInt:
		switch v := raw.(type) {
		case float64:
			return int(v), true
		case int:
			return v, true
		}
		return nil, false
	case paramspec.KindChoice:
		if v, ok := raw.(string); ok {
			return v, true
		}
		return nil, false
	}
	return nil, false
}

func (m *ParameterModel) applyRemoteNamed(name string, value interface{}) {
	m.mu.Lock()
	ps, ok := m.params[name]
	if !ok {
		m.mu.Unlock()
		return
	}
	ps.LastRemote = value
	ps.LastUpdate = time.Now()
	ps.Stale = false

	var changed bool
	if !ps.Dirty {
		changed = !reflect.DeepEqual(ps.Current, value)
		ps.Current = value
	}
	m.mu.Unlock()

	if changed {
		m.emit(ChangeEvent{Name: name, Value: value})
	}
}

// CompleteWrite resolves a previously-enqueued local write. On success,
// remoteValue is the value the camera's response echoed and is routed as
// if it were a poll (spec.md §4.D); Current converges without waiting for
// the next poll interval and Dirty clears. On failure, Current reverts to
// LastRemote, Dirty clears, and an ErrorEvent is emitted.
func (m *ParameterModel) CompleteWrite(name string, success bool, remoteValue interface{}, writeErr error) {
	m.mu.Lock()
	ps, ok := m.params[name]
	if !ok {
		m.mu.Unlock()
		return
	}

	var changed bool
	var emitted ChangeEvent
	if success {
		ps.LastRemote = remoteValue
		changed = !reflect.DeepEqual(ps.Current, remoteValue)
		ps.Current = remoteValue
		ps.Pending = nil
		ps.Dirty = false
		ps.LastErr = nil
		emitted = ChangeEvent{Name: name, Value: remoteValue}
	} else {
		changed = !reflect.DeepEqual(ps.Current, ps.LastRemote)
		ps.Current = ps.LastRemote
		ps.Pending = nil
		ps.Dirty = false
		ps.LastErr = writeErr
		emitted = ChangeEvent{Name: name, Value: ps.LastRemote}
	}
	ps.LastUpdate = time.Now()
	m.mu.Unlock()

	if changed {
		m.emit(emitted)
	}
	if !success {
		m.emitError(ErrorEvent{Name: name, Err: writeErr})
	}
}

// MarkStale flags every parameter as stale without clearing its last-seen
// value, per spec.md §3: "On disconnect, parameters retain their last-seen
// value but are marked stale."
func (m *ParameterModel) MarkStale(stale bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ps := range m.params {
		ps.Stale = stale
	}
}
