// Package api hosts the watch-mode HTTP server. Routes:
//   - GET /healthz and /readyz for probes; readyz turns green after the first cycle.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/status for the last cycle summary.
//   - POST /v1/cycles to request an immediate cycle.
package api
