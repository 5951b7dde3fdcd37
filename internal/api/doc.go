// Package api hosts the HTTP server, middleware, and REST handlers for operator
// access. Notable routes:
//   - GET /healthz / readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/crawl/{start,stop,resume,reset} to drive the controller.
//   - GET /v1/crawl/{progress,results,artifact} for the running session and
//     the spreadsheet download.
//   - /v1/conferences and /v1/roster to edit the session configuration.
//   - GET /v1/runs and /v1/runs/{run_id} for the run history, when a
//     database is configured.
package api
