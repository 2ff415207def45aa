// Package api hosts the operator HTTP server that runs alongside a harvest.
// Notable routes:
//   - GET /healthz and /readyz for probes; readyz is 200 only while running.
//   - GET /metrics for Prometheus scraping.
//   - GET /status for the live run snapshot.
//   - GET /api/runs and /api/runs/{run_id} for recorded run history via the
//     RunRepository interface.
package api
