// Package metrics provides Prometheus instrumentation for the HTTP
// surface, the DAG scheduler's detector invocations, the GPU pool, the
// OOM fallback ladder, coverage gating, the VL reasoning client, and
// job lifecycle, via a single Collector using promauto registration.
package metrics
