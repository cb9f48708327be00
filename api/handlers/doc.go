// Copyright (c) ReelScope Authors.
// Licensed under the MIT License.

/*
Package handlers implements the orchestrator's thin HTTP request
handlers: analyze/ingest/status/result/health, plus a WebSocket status
stream. Every handler decodes its input, delegates to the job package,
and shapes the result into the api package's response DTOs — no
scheduling, coverage, or fallback logic lives here.

# Core types

  - VideoHandler   — POST /analyze, POST /ingest, GET /status/{id}, GET /result/{id}
  - StreamHandler  — GET /status/{id}/stream (WebSocket)
  - HealthHandler  — GET /health
  - Response       — uniform JSON envelope (success + data + error + timestamp)
  - ErrorInfo      — structured error info (code, message, retryable)
*/
package handlers
