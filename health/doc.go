// Package health derives health checks from resilience primitives.
//
// A breaker is unhealthy while its circuit is open; a bulkhead is unhealthy
// when it is nearly saturated or sheds a significant fraction of its load.
// Registry-level checkers roll the per-instance results up into a single
// status for liveness/readiness style consumers; serving them over a
// transport is the caller's concern.
package health
