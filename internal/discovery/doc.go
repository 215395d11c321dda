// Package discovery browses for cameras advertising themselves via
// link-local mDNS service discovery and reports sightings and losses to
// the engine supervisor (spec.md §4.A, §6).
//
// Discovery is best-effort: a browse failure (no multicast route, a
// misconfigured network) is logged and retried rather than treated as
// fatal, since devices can always be added manually through the config
// store.
package discovery
