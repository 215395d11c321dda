// Package tally implements the tally routing core (spec.md §4.H). It
// consumes tally-updated events from the UMD listener and direct writes
// from the control API, applies the user-configured (screen, tallyIndex,
// tallyType) → (deviceIndex, Program|Preview) mapping, and writes the
// resulting booleans into each device's parameter model as a local
// writer. Both input sources are processed by a single goroutine so the
// two are totally ordered, giving the documented later-message-wins
// conflict policy for free. The command-port server only reads this
// state back (it has no inbound write verb); it observes writes through
// WriteObserver to keep its own tally vector in sync.
package tally
