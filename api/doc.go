// Package api defines the REST request/response DTOs and the shared
// error envelope for the video-analysis-bundle HTTP surface.
//
// # API Overview
//
// The orchestrator exposes a thin REST facade:
//   - POST /analyze          — enqueue (or idempotently hit) a job
//   - POST /ingest           — upload a source video
//   - GET  /status/{id}      — poll job state
//   - GET  /status/{id}/stream — WebSocket push of the same status shape
//   - GET  /result/{id}      — fetch the completed bundle
//   - GET  /health           — liveness/readiness of GPU pool, queue, VL endpoint
//
// No business logic lives here; api/handlers delegates everything to
// the job package.
package api
