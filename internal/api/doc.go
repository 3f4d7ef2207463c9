// Package api implements the read-only HTTP API for quotewatch.
//
// New(store, metrics) returns an http.Handler that serves:
//
//	GET /api/v1/quotes  - the current snapshot (types.SnapshotJSON)
//	GET /prices         - same body, kept for older clients
//	GET /api/v1/status  - readiness, message and diagnostic hints
//	GET /healthz        - liveness; 200 whenever the process is serving
//	GET /readyz         - 200 once the first cycle succeeded, 503 before
//	GET /metrics        - Prometheus text exposition
//
// JSON endpoints respond with Content-Type: application/json and all
// endpoints return 405 for non-GET methods. Handlers only read the store.
package api
