// Package api hosts the HTTP server for liveness probes and operator access.
// Notable routes:
//   - GET /, /health, /healthz and /ping for keep-alive and probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/status, /v1/categories and /v1/products/{id}/history for read-only state.
//   - POST /v1/scan to queue an extra monitoring cycle.
package api
