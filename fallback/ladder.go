// Package fallback implements the OOM-fallback ladder controller
// (spec.md §4.3): a small state machine, job-scoped and monotonic, that
// maps transient-resource detector failures onto capability-reducing
// degradation steps and a single retry.
package fallback

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/basui01/reelscope/types"
)

// Step is one rung of the degradation ladder, in firing order.
type Step int

const (
	// StepNone means no ladder step has fired yet.
	StepNone Step = iota
	// StepDisableMaskRefine disables mask refinement for the rest of the job.
	StepDisableMaskRefine
	// StepDisableSuperRes disables super-resolution and its dependent
	// fine-object pass for the rest of the job.
	StepDisableSuperRes
	// StepShrinkVLContext halves qwen_context_max_frames (floor 4).
	StepShrinkVLContext
	// StepSingleScaleTiling reduces the tile pass to a single scale.
	StepSingleScaleTiling
)

// Reason strings recorded in the bundle's status.reasons and in
// individual provenance skip stubs.
const (
	ReasonMaskRefinementDisabled = "mask_refinement_disabled"
	ReasonSRDisabledByFallback   = "sr_disabled_by_fallback"
	ReasonSRDisabledByAblation   = "sr_disabled_by_ablation"
	ReasonTilingDisabledByAbl    = "tiling_disabled_by_ablation"
	ReasonVLContextShrunk        = "vl_context_shrunk"
	ReasonSingleScaleTiling      = "single_scale_tiling"
	ReasonResourceExhausted      = "resource_exhausted"
	ReasonInputDefect            = "input_defect"
	ReasonInternalError          = "internal_error"
	ReasonVLUnreachable          = "vl_unreachable"
	ReasonParseFailed            = "parse_failed"
	ReasonNoAdjacentShot         = "no_adjacent_shot"
)

const minQwenContextFrames = 4

// Controller is the job-scoped ladder state machine. One Controller is
// constructed per job; it must never be shared across jobs.
type Controller struct {
	mu    sync.Mutex
	level Step

	initialQwenCtx int
	qwenCtx        int

	logger   *zap.Logger
	oomTrips atomic.Int64

	firedReasons map[string]struct{}
	firedOrder   []string
}

// NewController creates a ladder controller for a single job.
func NewController(initialQwenContextFrames int, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		initialQwenCtx: initialQwenContextFrames,
		qwenCtx:        initialQwenContextFrames,
		logger:         logger.With(zap.String("component", "fallback_ladder")),
		firedReasons:   make(map[string]struct{}),
	}
}

// Level returns the current ladder level (highest step fired so far).
func (c *Controller) Level() Step {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.level
}

// MaskRefineDisabled reports whether step 1 has fired.
func (c *Controller) MaskRefineDisabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.level >= StepDisableMaskRefine
}

// SuperResDisabled reports whether step 2 has fired.
func (c *Controller) SuperResDisabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.level >= StepDisableSuperRes
}

// SingleScaleTiling reports whether step 4 has fired.
func (c *Controller) SingleScaleTiling() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.level >= StepSingleScaleTiling
}

// QwenContextMaxFrames returns the current (possibly shrunk) VL context
// frame budget.
func (c *Controller) QwenContextMaxFrames() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.qwenCtx
}

// OOMTrips returns the number of transient-resource errors observed so
// far, surfaced in the bundle's video.metrics.oom_trips.
func (c *Controller) OOMTrips() int64 {
	return c.oomTrips.Load()
}

// Reasons returns every distinct reason fired so far, in firing order,
// for the bundle's status.reasons.
func (c *Controller) Reasons() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.firedOrder))
	copy(out, c.firedOrder)
	return out
}

// PreCheck reports whether a detector of kind should even be attempted,
// given ladder-disabled capabilities. Call this before invoking a
// detector; if proceed is false, record a skipped result with reason.
func (c *Controller) PreCheck(kind types.DetectorKind) (proceed bool, reason string) {
	switch kind {
	case types.KindMaskRefine:
		if c.MaskRefineDisabled() {
			return false, ReasonMaskRefinementDisabled
		}
	case types.KindSuperRes, types.KindObjectsFine:
		if c.SuperResDisabled() {
			return false, ReasonSRDisabledByFallback
		}
	}
	return true, ""
}

// RecordOOMTrip increments the oom_trips metric. Call this once per
// observed transient-resource error, independent of how the ladder
// subsequently routes it.
func (c *Controller) RecordOOMTrip() {
	c.oomTrips.Add(1)
}

// OnTransient handles a transient-resource failure at the given failure
// site (the detector kind that raised it). It advances the ladder by
// exactly one relevant step (if one hasn't already fired for this site)
// and reports whether the caller should retry the same detector
// invocation once more.
//
// Per spec.md §9's open-question resolution: if a parameter-shrinking
// step (VL context, tile scale) was already fired by an earlier shot
// (ladder is monotonic), or the detector kind has no dedicated ladder
// step, this falls through to the generic step 5 — mark the shot's
// offending detector skipped with reason "resource_exhausted" — without
// retrying. The capability-disabling steps (mask refinement,
// super-resolution and objects_fine) never retry and report their own
// disable reason whether or not the step had already fired.
func (c *Controller) OnTransient(kind types.DetectorKind) (retry bool, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch kind {
	case types.KindMaskRefine:
		if c.level < StepDisableMaskRefine {
			c.advanceLocked(StepDisableMaskRefine, ReasonMaskRefinementDisabled)
		}
		return false, ReasonMaskRefinementDisabled

	case types.KindSuperRes, types.KindObjectsFine:
		if c.level < StepDisableSuperRes {
			c.advanceLocked(StepDisableSuperRes, ReasonSRDisabledByFallback)
		}
		return false, ReasonSRDisabledByFallback

	case types.KindReasoning:
		if c.level < StepShrinkVLContext {
			c.advanceLocked(StepShrinkVLContext, ReasonVLContextShrunk)
			c.qwenCtx = max(minQwenContextFrames, c.qwenCtx/2)
			c.logger.Info("shrinking VL reasoning context",
				zap.Int("qwen_context_max_frames", c.qwenCtx))
			return true, ""
		}
		c.recordReasonLocked(ReasonResourceExhausted)
		return false, ReasonResourceExhausted

	case types.KindObjectsTiled:
		if c.level < StepSingleScaleTiling {
			c.advanceLocked(StepSingleScaleTiling, ReasonSingleScaleTiling)
			return true, ""
		}
		c.recordReasonLocked(ReasonResourceExhausted)
		return false, ReasonResourceExhausted

	default:
		c.recordReasonLocked(ReasonResourceExhausted)
		return false, ReasonResourceExhausted
	}
}

// advanceLocked moves the ladder forward to step and records its reason.
// Callers must hold c.mu.
func (c *Controller) advanceLocked(step Step, reason string) {
	if step > c.level {
		c.level = step
		c.logger.Warn("fallback ladder advanced",
			zap.Int("level", int(step)),
			zap.String("reason", reason))
	}
	c.recordReasonLocked(reason)
}

func (c *Controller) recordReasonLocked(reason string) {
	if _, ok := c.firedReasons[reason]; ok {
		return
	}
	c.firedReasons[reason] = struct{}{}
	c.firedOrder = append(c.firedOrder, reason)
}

// RecordAblationReason records a reason triggered by an ablation flag
// rather than a ladder step (e.g. sr_disabled_by_ablation), so it still
// shows up in status.reasons alongside genuine ladder steps.
func (c *Controller) RecordAblationReason(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recordReasonLocked(reason)
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
