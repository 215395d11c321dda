// Package device owns a single camera's HTTP lifecycle: the state machine
// from session creation through connect, poll, and reconnect, the command
// queue that serializes writes against the parameter model, and the
// capability cache that remembers which parameter groups a camera model
// does not support.
//
// A Session is created once per configured device and outlives individual
// connect attempts; it is the engine supervisor's sole handle on the
// device's network activity (spec.md §4.D, §9).
package device
