// Package model implements the in-memory mirror of a single camera's
// parameter groups and the edit arbitration between local writes and
// remote polls described in spec.md §4.E.
//
// A ParameterModel is created alongside a device session and retained
// across reconnects so observers (the control API) keep a stable
// reference; on disconnect its parameters retain their
// last-seen value but are marked stale rather than torn down.
package model
