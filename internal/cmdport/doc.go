// Package cmdport implements the line-framed TCP command-port server
// (spec.md §4.I, §6). It exposes the current Program/Preview tally vector
// to a single connected third-party control processor and can push
// changes unsolicited or on a configured interval. The port is read-only:
// its grammar has no inbound tally write verb, and the tally vector it
// serves changes only through Update, which the tally router's write
// observer calls.
package cmdport
