// Package telemetry wraps OpenTelemetry SDK initialization, giving the
// orchestrator a centralized TracerProvider. Metrics are served by
// Prometheus (internal/metrics), not an OTel MeterProvider. When
// telemetry is disabled, it installs a noop tracer without contacting
// any external collector.
package telemetry
