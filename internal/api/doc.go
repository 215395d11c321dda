// Package api implements the control API: a gorilla/websocket JSON-RPC
// 2.0 endpoint the GUI and MIDI-bridge collaborators consume to list
// devices, read and set parameters, observe changes, and manage tally
// maps and device config (SPEC_FULL.md §6 Control API). It is a pure
// read/command facade over internal/engine and internal/config — it
// never bypasses the parameter model's edit arbitration, though
// set_parameter on a tally parameter bypasses the UMD source mapping by
// routing through the tally router directly (spec.md §4.H).
package api
