// Package config loads the orchestrator's configuration: detection,
// audio, runtime, ablation, and coverage-threshold options
// (spec.md §6), layered defaults -> YAML file -> environment
// variables, with the bare-named operator-facing variables
// (STORE_PATH, MAX_VIDEO_MB, MIME_WHITELIST, VL_API_BASE, VL_MODEL,
// QUEUE_HOST, QUEUE_PORT) applied last.
package config
