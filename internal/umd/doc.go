// Package umd implements the UDP-based UMD (under-monitor display) tally
// ingest listener (spec.md §4.G). It parses inbound frames carrying one or
// more (screen, tallyIndex, lhColor, rhColor, txtColor, text) entries,
// maintains the last-known fields per (screen, tallyIndex) key, and emits
// tally-updated events only when a field actually changes. Malformed
// frames are counted and dropped rather than torn down the socket.
package umd
