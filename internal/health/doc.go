// Package health exposes the engine's liveness, readiness, and metrics
// surface for container/process supervision (SPEC_FULL.md §2 component
// K): HTTP endpoints for liveness and readiness probes, component status
// tracking, and a Prometheus /metrics endpoint.
//
// Endpoints:
//   - /health: basic status (healthy/degraded/unhealthy)
//   - /health/detailed: components and metrics
//   - /health/ready: readiness probe
//   - /health/live: liveness probe
//   - /metrics: Prometheus exposition
//
// The HTTP server (HTTPHealthServer) only routes and serializes; the
// actual status bookkeeping lives in HealthMonitor, whose component
// statuses are set through UpdateComponentStatus. The server entry point
// (cmd/server) marks the "engine" component healthy once every component
// has been started; no other component reports its own status.
package health
