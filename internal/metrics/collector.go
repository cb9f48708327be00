// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// Metrics collector
// =============================================================================

// Collector holds every Prometheus vector this orchestrator exposes,
// grouped by subsystem: HTTP surface, DAG scheduler/detectors, the GPU
// pool, the OOM fallback ladder, coverage gating, and the VL client.
type Collector struct {
	// HTTP
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Detector invocations
	detectorInvocationsTotal *prometheus.CounterVec
	detectorDuration         *prometheus.HistogramVec

	// GPU pool
	gpuPoolCapacity *prometheus.GaugeVec
	gpuPoolInFlight *prometheus.GaugeVec
	gpuPoolWaiting  *prometheus.GaugeVec
	gpuPoolRejected *prometheus.CounterVec
	gpuAcquireWait  *prometheus.HistogramVec

	// OOM fallback ladder
	oomTripsTotal    *prometheus.CounterVec
	fallbackLevel    *prometheus.GaugeVec
	fallbackStepHits *prometheus.CounterVec

	// Coverage gate
	coverageGateTotal  *prometheus.CounterVec
	coveragePctByField *prometheus.GaugeVec

	// VL reasoning client
	vlRequestsTotal   *prometheus.CounterVec
	vlRequestDuration *prometheus.HistogramVec

	// Job lifecycle
	jobsTotal       *prometheus.CounterVec
	jobDuration     *prometheus.HistogramVec
	jobsQueueLength prometheus.Gauge

	logger *zap.Logger
}

// NewCollector creates a metrics collector, registering every series
// under namespace via promauto's default registry.
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	c.httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	c.httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	c.detectorInvocationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "detector_invocations_total",
			Help:      "Total number of detector invocations",
		},
		[]string{"kind", "outcome"}, // outcome: ok, skipped, timeout, oom, error
	)

	c.detectorDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "detector_duration_seconds",
			Help:      "Detector invocation duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"kind"},
	)

	c.gpuPoolCapacity = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "gpu_pool_capacity",
			Help:      "Configured GPU permit capacity",
		},
		[]string{"pool"},
	)

	c.gpuPoolInFlight = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "gpu_pool_in_flight",
			Help:      "Permits currently held",
		},
		[]string{"pool"},
	)

	c.gpuPoolWaiting = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "gpu_pool_waiting",
			Help:      "Callers currently blocked waiting for a permit",
		},
		[]string{"pool"},
	)

	c.gpuPoolRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gpu_pool_rejected_total",
			Help:      "Total permit acquisitions abandoned via context cancellation",
		},
		[]string{"pool"},
	)

	c.gpuAcquireWait = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "gpu_pool_acquire_wait_seconds",
			Help:      "Time spent waiting for a GPU permit",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"pool"},
	)

	c.oomTripsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "oom_trips_total",
			Help:      "Total OOM trips observed by the fallback ladder",
		},
		[]string{"video_id"},
	)

	c.fallbackLevel = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "fallback_ladder_level",
			Help:      "Current fallback ladder step (0=full quality .. 4=single_scale_tiling)",
		},
		[]string{"video_id"},
	)

	c.fallbackStepHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fallback_step_transitions_total",
			Help:      "Total transitions into a given fallback ladder step",
		},
		[]string{"step", "reason"},
	)

	c.coverageGateTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "coverage_gate_total",
			Help:      "Total coverage gate evaluations",
		},
		[]string{"result"}, // pass, fail
	)

	c.coveragePctByField = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "coverage_pct",
			Help:      "Most recent coverage percentage per field",
		},
		[]string{"video_id", "field"}, // field: frames_analyzed, lufs_trace, stoi
	)

	c.vlRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "vl_requests_total",
			Help:      "Total VL reasoning requests",
		},
		[]string{"model", "status"},
	)

	c.vlRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "vl_request_duration_seconds",
			Help:      "VL reasoning request duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"model"},
	)

	c.jobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_total",
			Help:      "Total jobs transitioning to a terminal state",
		},
		[]string{"state"}, // completed, failed
	)

	c.jobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Wall-clock duration from queued to terminal state",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		},
		[]string{"state"},
	)

	c.jobsQueueLength = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "jobs_queue_length",
			Help:      "Number of jobs currently queued or running",
		},
	)

	logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// =============================================================================
// HTTP
// =============================================================================

// RecordHTTPRequest records one completed HTTP request.
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	c.httpRequestsTotal.WithLabelValues(method, path, statusClass(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// =============================================================================
// Detectors
// =============================================================================

// RecordDetectorInvocation records one detector call.
func (c *Collector) RecordDetectorInvocation(kind, outcome string, duration time.Duration) {
	c.detectorInvocationsTotal.WithLabelValues(kind, outcome).Inc()
	c.detectorDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// =============================================================================
// GPU pool
// =============================================================================

// PoolSnapshot mirrors gpupool.Stats without importing it, keeping this
// package free of a dependency on the scheduler-side domain packages.
type PoolSnapshot struct {
	Capacity int
	InFlight int
	Waiting  int
	Rejected int64
}

// RecordGPUPoolSnapshot records a point-in-time view of a GPU pool's
// counters, labeled by pool name (there is one pool per process today,
// but the label keeps the series future-proof against per-node pools).
func (c *Collector) RecordGPUPoolSnapshot(pool string, s PoolSnapshot) {
	c.gpuPoolCapacity.WithLabelValues(pool).Set(float64(s.Capacity))
	c.gpuPoolInFlight.WithLabelValues(pool).Set(float64(s.InFlight))
	c.gpuPoolWaiting.WithLabelValues(pool).Set(float64(s.Waiting))
	c.gpuPoolRejected.WithLabelValues(pool).Add(float64(s.Rejected))
}

// RecordGPUAcquireWait records the time a caller spent waiting for a permit.
func (c *Collector) RecordGPUAcquireWait(pool string, wait time.Duration) {
	c.gpuAcquireWait.WithLabelValues(pool).Observe(wait.Seconds())
}

// =============================================================================
// Fallback ladder
// =============================================================================

// RecordOOMTrip records one OOM trip for a job.
func (c *Collector) RecordOOMTrip(videoID string) {
	c.oomTripsTotal.WithLabelValues(videoID).Inc()
}

// RecordFallbackLevel records the ladder's current step for a job.
func (c *Collector) RecordFallbackLevel(videoID string, level int) {
	c.fallbackLevel.WithLabelValues(videoID).Set(float64(level))
}

// RecordFallbackTransition records a transition into a ladder step.
func (c *Collector) RecordFallbackTransition(step, reason string) {
	c.fallbackStepHits.WithLabelValues(step, reason).Inc()
}

// =============================================================================
// Coverage
// =============================================================================

// RecordCoverageGate records the outcome of one coverage gate evaluation.
func (c *Collector) RecordCoverageGate(passed bool) {
	result := "pass"
	if !passed {
		result = "fail"
	}
	c.coverageGateTotal.WithLabelValues(result).Inc()
}

// RecordCoveragePct records the most recent value of a coverage field.
func (c *Collector) RecordCoveragePct(videoID, field string, pct float64) {
	c.coveragePctByField.WithLabelValues(videoID, field).Set(pct)
}

// =============================================================================
// VL client
// =============================================================================

// RecordVLRequest records one VL reasoning request.
func (c *Collector) RecordVLRequest(model, status string, duration time.Duration) {
	c.vlRequestsTotal.WithLabelValues(model, status).Inc()
	c.vlRequestDuration.WithLabelValues(model).Observe(duration.Seconds())
}

// =============================================================================
// Jobs
// =============================================================================

// RecordJobTerminal records a job reaching a terminal state.
func (c *Collector) RecordJobTerminal(state string, duration time.Duration) {
	c.jobsTotal.WithLabelValues(state).Inc()
	c.jobDuration.WithLabelValues(state).Observe(duration.Seconds())
}

// SetQueueLength sets the current queued+running job count.
func (c *Collector) SetQueueLength(n int) {
	c.jobsQueueLength.Set(float64(n))
}

// =============================================================================
// Helpers
// =============================================================================

func statusClass(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
