// SPDX-License-Identifier: MPL-2.0

// Package host serves HTTP on top of a lifespan.Coordinator.
//
// The listener opens before startup so that probes can observe the starting
// phase. Application routes sit behind an admission middleware that calls
// BeginWork for every request, answers 503 with an RFC 7807 problem body
// while the coordinator is not ready, and calls EndWork when the handler
// returns (panics included). Handlers read their per-request view of the
// published state with StateFrom.
//
// Endpoints outside admission:
//   - GET /healthz: liveness, 503 only once stopped
//   - GET /readyz: readiness, 200 only while ready
//   - GET /debug/state: phase and published key names
//   - GET <metrics path>: Prometheus exposition, when a registry is configured
package host
