// Copyright (c) ReelScope Authors.
// Licensed under the MIT License.

/*
Package main provides the reelscope service entry point.

# Overview

cmd/reelscope is the executable entry point for the video analysis
bundle orchestrator: it exposes the REST surface (POST /analyze, POST
/ingest, GET /status/{video_id}, its WebSocket stream variant, GET
/result/{video_id}, GET /health), runs the asynq worker that drives
the DAG scheduler for queued jobs, and serves Prometheus metrics on a
separate port.

# Core types

  - Server       — owns the HTTP API server, the metrics server, and
    the asynq worker, and coordinates graceful shutdown across them.
  - Middleware    — the HTTP middleware function signature
    func(http.Handler) http.Handler.

# Capabilities

  - Subcommands: serve (start the service), version, health (probe a
    running instance's /health endpoint).
  - Middleware chain: Recovery, RequestID, SecurityHeaders,
    RequestLogger, CORS, and Prometheus HTTP metrics.
  - Metrics server: a separate port exposing /metrics.
  - Graceful shutdown: signal handling -> stop worker -> close HTTP ->
    close metrics -> wait.
  - Build injection: Version, BuildTime, GitCommit via ldflags.
*/
package main
