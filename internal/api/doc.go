// Package api exposes the run ledger over HTTP for operators. Routes:
//   - GET /api/runs?limit= lists the most recent runs.
//   - GET /api/runs/{run_id} loads one run.
//   - GET /api/runs/{run_id}/units lists unit outcomes.
//   - GET /api/runs/{run_id}/failed-targets lists child downloads that failed.
//
// The routes mount beside /metrics and /healthz on the metrics listener.
package api
