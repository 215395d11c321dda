package model

import (
	"time"

	"github.com/jvconnected/camera-engine/internal/paramspec"
)

// ParamState is the full bookkeeping this engine keeps for one parameter:
// its current (user-visible) value, the last value a poll reported, a
// pending write if one is outstanding, and a dirty flag.
type ParamState struct {
	Descriptor paramspec.Descriptor
	Current    interface{}
	LastRemote interface{}
	Pending    interface{}
	Dirty      bool
	Stale      bool
	LastUpdate time.Time
	LastErr    error
}

// Snapshot is an immutable copy of a ParamState safe to hand to callers
// outside the model's lock.
type Snapshot struct {
	Name       string
	Descriptor paramspec.Descriptor
	Current    interface{}
	LastRemote interface{}
	Pending    interface{}
	Dirty      bool
	Stale      bool
	LastUpdate time.Time
	LastErr    error
}

func (s ParamState) snapshot(name string) Snapshot {
	return Snapshot{
		Name:       name,
		Descriptor: s.Descriptor,
		Current:    s.Current,
		LastRemote: s.LastRemote,
		Pending:    s.Pending,
		Dirty:      s.Dirty,
		Stale:      s.Stale,
		LastUpdate: s.LastUpdate,
		LastErr:    s.LastErr,
	}
}

// ChangeEvent is emitted whenever a parameter's Current value changes,
// whether driven by a remote poll, a local write, or write completion.
type ChangeEvent struct {
	Name  string
	Value interface{}
}

// ErrorEvent is emitted when a local write ultimately fails after retries
// (spec.md §4.E, §7 Transient I/O).
type ErrorEvent struct {
	Name string
	Err  error
}
