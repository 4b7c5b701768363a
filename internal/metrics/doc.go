// Package metrics provides Prometheus metrics for monitoring.
//
// Key metrics:
//   - Stream state, transitions and scheduled reconnects
//   - Inbound frames by routing outcome
//   - Pong timeouts
//   - Sink buffer depth, overwrites and delivery counts
package metrics
