// Package scheduler implements the per-shot DAG execution described in
// spec.md §4.4: a sequential GPU chain (Phase A), a parallel CPU/light-GPU
// fan-out (Phase B), and VL reasoning (Phase C), all wrapped by the
// fallback ladder and the GPU pool, with shots themselves scheduled
// concurrently up to the pool's capacity.
package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/basui01/reelscope/detector"
	"github.com/basui01/reelscope/errs"
	"github.com/basui01/reelscope/fallback"
	"github.com/basui01/reelscope/gpupool"
	"github.com/basui01/reelscope/provenance"
	"github.com/basui01/reelscope/types"
)

// Config carries the scheduler's tunables, all sourced from the
// configuration surface in spec.md §6.
type Config struct {
	GPUDeadline time.Duration // default 120s
	CPUDeadline time.Duration // default 30s
	VLDeadline  time.Duration // default 60s

	// InternalErrorBudget is the fraction of shots (0..1) allowed to carry
	// an internal detector error before the job's final status is forced
	// to degraded. Default 0.2 (20%).
	InternalErrorBudget float64

	SRTriggerMinH int // superres.trigger_min_h
	TileSize      int // tile.size, default 512
	TileStride    int // tile.stride, default 256
}

// DefaultConfig returns the configuration defaults named in spec.md §6.
func DefaultConfig() Config {
	return Config{
		GPUDeadline:         120 * time.Second,
		CPUDeadline:         30 * time.Second,
		VLDeadline:          60 * time.Second,
		InternalErrorBudget: 0.2,
		SRTriggerMinH:       720,
		TileSize:            512,
		TileStride:          256,
	}
}

// Scheduler drives the detector DAG for a registry of detectors under a
// shared GPU pool. One Scheduler is constructed per process and reused
// across jobs; per-job mutable state (the ladder, deadline-violation
// counters) lives in JobRun.
type Scheduler struct {
	registry *detector.Registry
	pool     *gpupool.Pool
	reasoner Reasoner
	cfg      Config
	logger   *zap.Logger
}

// New constructs a Scheduler.
func New(registry *detector.Registry, pool *gpupool.Pool, reasoner Reasoner, cfg Config, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		registry: registry,
		pool:     pool,
		reasoner: reasoner,
		cfg:      cfg,
		logger:   logger.With(zap.String("component", "scheduler")),
	}
}

func (s *Scheduler) deadlineFor(class types.ResourceClass) time.Duration {
	switch class {
	case types.ResourceGPUHeavy, types.ResourceGPULight:
		return s.cfg.GPUDeadline
	case types.ResourceIO:
		return s.cfg.VLDeadline
	default:
		return s.cfg.CPUDeadline
	}
}

// invocationOutcome is the classified result of one wrapped detector call.
type invocationOutcome struct {
	result   types.DetectorResult
	internal bool // true if this invocation consumed the internal-error budget
}

// invokeDetector runs one detector against one shot, applying the
// per-class deadline, GPU pool admission (if applicable), and fallback
// ladder routing on transient_resource failures. It never returns an
// error: every failure mode resolves to a DetectorResult, skipped or not,
// per spec.md invariant 4 and §4.3's "a detector that was skipped by a
// ladder step emits an empty payload with a provenance stub" rule.
// invokeDetector takes a request builder, not a fixed request, because a
// ladder-triggered retry must reflect the just-advanced ladder state
// (e.g. single-scale tiling, a shrunk VL context) rather than the
// pre-failure parameters.
func (s *Scheduler) invokeDetector(ctx context.Context, run *JobRun, kind types.DetectorKind, buildReq func() detector.Request) invocationOutcome {
	d, ok := s.registry.Get(kind)
	if !ok {
		return invocationOutcome{result: skippedResult(kind, string(kind), "unversioned", "not_registered")}
	}

	if proceed, reason := run.ladder.PreCheck(kind); !proceed {
		return invocationOutcome{result: skippedResult(kind, d.ToolName(), d.ToolVersion(), reason)}
	}
	if reason, disabled := run.ablationDisabled(kind); disabled {
		return invocationOutcome{result: skippedResult(kind, d.ToolName(), d.ToolVersion(), reason)}
	}

	req := buildReq()
	res, err := s.callOnce(ctx, run, d, req)
	if err == nil {
		return invocationOutcome{result: s.successResult(kind, d, req, res)}
	}

	switch errs.KindOf(err) {
	case errs.KindTransientResource:
		run.ladder.RecordOOMTrip()
		retry, reason := run.ladder.OnTransient(kind)
		if !retry {
			return invocationOutcome{result: skippedResult(kind, d.ToolName(), d.ToolVersion(), reason)}
		}
		retryReq := buildReq() // rebuilt: picks up the ladder state OnTransient just advanced
		res2, err2 := s.callOnce(ctx, run, d, retryReq)
		if err2 == nil {
			return invocationOutcome{result: s.successResult(kind, d, retryReq, res2)}
		}
		return invocationOutcome{result: skippedResult(kind, d.ToolName(), d.ToolVersion(), fallback.ReasonResourceExhausted)}

	case errs.KindInputDefect:
		return invocationOutcome{result: skippedResult(kind, d.ToolName(), d.ToolVersion(), fallback.ReasonInputDefect)}

	case errs.KindExternal:
		return invocationOutcome{result: skippedResult(kind, d.ToolName(), d.ToolVersion(), fallback.ReasonVLUnreachable)}

	default: // internal
		return invocationOutcome{
			result:   skippedResult(kind, d.ToolName(), d.ToolVersion(), fallback.ReasonInternalError),
			internal: true,
		}
	}
}

// callOnce runs the detector exactly once under its per-class deadline
// and, for GPU-class detectors, under the shared pool. A deadline
// overrun is classified transient_resource the first time this (job,
// kind) pair overruns and internal on repeat (spec.md §5).
func (s *Scheduler) callOnce(ctx context.Context, run *JobRun, d detector.Detector, req detector.Request) (detector.Result, error) {
	dctx, cancel := context.WithTimeout(ctx, s.deadlineFor(d.ResourceClass()))
	defer cancel()

	var res detector.Result
	var err error

	switch d.ResourceClass() {
	case types.ResourceGPUHeavy, types.ResourceGPULight:
		poolErr := s.pool.Do(dctx, func(pctx context.Context) error {
			res, err = d.Detect(pctx, req)
			return err
		})
		if poolErr != nil && err == nil {
			err = poolErr
		}
	default:
		res, err = d.Detect(dctx, req)
	}

	if err != nil && dctx.Err() == context.DeadlineExceeded {
		if run.firstDeadlineViolation(d.Kind()) {
			return res, errs.Transient("detector deadline exceeded", err)
		}
		return res, errs.Internal("detector deadline exceeded (repeat)", err)
	}
	return res, err
}

func (s *Scheduler) successResult(kind types.DetectorKind, d detector.Detector, req detector.Request, res detector.Result) types.DetectorResult {
	paramsHash, hashErr := provenance.FingerprintParams(req.Params)
	if hashErr != nil {
		paramsHash = ""
	}
	return types.DetectorResult{
		Kind:       kind,
		Payload:    res.Payload,
		Provenance: provenance.New(d.ToolName(), d.ToolVersion(), "", paramsHash),
	}
}

func skippedResult(kind types.DetectorKind, tool, version, reason string) types.DetectorResult {
	return types.DetectorResult{
		Kind:       kind,
		Provenance: provenance.Skipped(tool, version, reason),
	}
}

// deadlineTracker records, per detector kind, whether a deadline
// violation has already been observed in this job.
type deadlineTracker struct {
	mu   sync.Mutex
	seen map[types.DetectorKind]bool
}

func newDeadlineTracker() *deadlineTracker {
	return &deadlineTracker{seen: make(map[types.DetectorKind]bool)}
}

// firstDeadlineViolation reports true the first time kind overruns its
// deadline in this job, false on every subsequent overrun.
func (t *deadlineTracker) firstDeadlineViolation(kind types.DetectorKind) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.seen[kind] {
		return false
	}
	t.seen[kind] = true
	return true
}
