package scheduler

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/basui01/reelscope/detector"
	"github.com/basui01/reelscope/errs"
	"github.com/basui01/reelscope/fallback"
	"github.com/basui01/reelscope/gpupool"
	"github.com/basui01/reelscope/types"
)

// stubDetector is a deterministic, injectable detector used across
// scheduler tests, standing in for the model-backend seam described in
// SPEC_FULL.md §5.1.
type stubDetector struct {
	kind    types.DetectorKind
	class   types.ResourceClass
	tool    string
	version string

	// fail, when non-nil, is called once per invocation; returning a
	// non-nil error fails that call.
	fail func(attempt int64) error

	calls atomic.Int64
}

func (d *stubDetector) Kind() types.DetectorKind          { return d.kind }
func (d *stubDetector) ResourceClass() types.ResourceClass { return d.class }
func (d *stubDetector) ToolName() string                  { return d.tool }
func (d *stubDetector) ToolVersion() string                { return d.version }

func (d *stubDetector) Detect(ctx context.Context, req detector.Request) (detector.Result, error) {
	n := d.calls.Add(1)
	if d.fail != nil {
		if err := d.fail(n); err != nil {
			return detector.Result{}, err
		}
	}
	return detector.Result{Payload: map[string]any{"shot": req.Shot.ShotID}}, nil
}

func newStub(kind types.DetectorKind, class types.ResourceClass) *stubDetector {
	return &stubDetector{kind: kind, class: class, tool: string(kind), version: "1.0.0"}
}

// newTestRegistry registers a clean stub for every detector kind the
// scheduler drives, using realistic resource classes per spec.md §4.1.
func newTestRegistry() (*detector.Registry, map[types.DetectorKind]*stubDetector) {
	reg := detector.NewRegistry()
	stubs := make(map[types.DetectorKind]*stubDetector)
	classes := map[types.DetectorKind]types.ResourceClass{
		types.KindObjectsCoarse: types.ResourceGPUHeavy,
		types.KindObjectsTiled:  types.ResourceGPUHeavy,
		types.KindSuperRes:      types.ResourceGPUHeavy,
		types.KindObjectsFine:   types.ResourceGPUHeavy,
		types.KindMaskRefine:    types.ResourceGPUHeavy,
		types.KindFaces:         types.ResourceGPULight,
		types.KindText:          types.ResourceGPULight,
		types.KindColor:         types.ResourceCPU,
		types.KindMotion:        types.ResourceCPU,
		types.KindAudio:         types.ResourceCPU,
		types.KindTransition:    types.ResourceCPU,
	}
	for kind, class := range classes {
		s := newStub(kind, class)
		stubs[kind] = s
		reg.Register(s)
	}
	return reg, stubs
}

func newTestScheduler(reg *detector.Registry, reasoner Reasoner) *Scheduler {
	pool := gpupool.New(4, nil)
	return New(reg, pool, reasoner, DefaultConfig(), nil)
}

// hdMeta reports a source resolution above the default sr_trigger_min_h
// (720), so super-res never triggers; most tests use this and exercise
// the superres/objects_fine branch through ablation instead.
var hdMeta = types.VideoMeta{Width: 1920, Height: 1080}

type stubReasoner struct {
	result ReasonResult
	err    error
}

func (r *stubReasoner) Reason(ctx context.Context, req ReasonRequest) (ReasonResult, error) {
	if r.err != nil {
		return ReasonResult{}, r.err
	}
	return r.result, nil
}

func oneShot(id string, frames int) types.Shot {
	paths := make([]string, frames)
	for i := range paths {
		paths[i] = fmt.Sprintf("%s/frame_%04d.jpg", id, i)
	}
	return types.Shot{ShotID: id, StartFrame: 0, EndFrame: frames, FrameCount: frames, FramePaths: paths}
}

func TestRunJob_HappyPath(t *testing.T) {
	reg, _ := newTestRegistry()
	reasoner := &stubReasoner{result: ReasonResult{Summary: "a shot", Mood: "neutral"}}
	s := newTestScheduler(reg, reasoner)

	shots := []types.Shot{oneShot("s0", 10)}
	jr, err := s.RunJob(context.Background(), shots, hdMeta, types.Ablations{}, 16)
	require.NoError(t, err)

	results := jr.ShotResults["s0"]
	require.NotNil(t, results)

	for _, kind := range []types.DetectorKind{
		types.KindObjectsCoarse, types.KindObjectsTiled, types.KindFaces,
		types.KindText, types.KindColor, types.KindMotion, types.KindAudio,
		types.KindReasoning,
	} {
		r, ok := results[kind]
		require.True(t, ok, "missing result for %s", kind)
		assert.False(t, r.Skipped(), "%s should not be skipped", kind)
	}

	// Single shot: no adjacent shot for transition classification.
	transition, ok := results[types.KindTransition]
	require.True(t, ok)
	assert.True(t, transition.Skipped())
	assert.Equal(t, fallback.ReasonNoAdjacentShot, transition.Provenance.SkippedReason)

	assert.EqualValues(t, 0, jr.Ladder.OOMTrips())
	assert.EqualValues(t, 0, jr.InternalErrorShots)
}

func TestRunJob_OOMOnMaskRefineAdvancesLadderAndDisablesForAllShots(t *testing.T) {
	reg, stubs := newTestRegistry()
	stubs[types.KindMaskRefine].fail = func(attempt int64) error {
		return errs.Transient("simulated OOM", nil)
	}
	s := newTestScheduler(reg, &stubReasoner{})

	shots := []types.Shot{oneShot("s0", 5), oneShot("s1", 5)}
	jr, err := s.RunJob(context.Background(), shots, hdMeta, types.Ablations{}, 16)
	require.NoError(t, err)

	assert.True(t, jr.Ladder.MaskRefineDisabled())
	assert.GreaterOrEqual(t, jr.Ladder.OOMTrips(), int64(1))
	assert.Contains(t, jr.Ladder.Reasons(), fallback.ReasonMaskRefinementDisabled)

	// Both shots must have a skipped mask_refine entry, even the second
	// shot which never actually failed — the ladder is job-scoped.
	for _, shotID := range []string{"s0", "s1"} {
		r := jr.ShotResults[shotID][types.KindMaskRefine]
		assert.True(t, r.Skipped())
		assert.Equal(t, fallback.ReasonMaskRefinementDisabled, r.Provenance.SkippedReason)
	}
}

func TestRunJob_VLUnreachableSkipsReasoningOnly(t *testing.T) {
	reg, _ := newTestRegistry()
	s := newTestScheduler(reg, &stubReasoner{err: externalErr{}})

	shots := []types.Shot{oneShot("s0", 4)}
	jr, err := s.RunJob(context.Background(), shots, hdMeta, types.Ablations{}, 16)
	require.NoError(t, err)

	reasoning := jr.ShotResults["s0"][types.KindReasoning]
	assert.True(t, reasoning.Skipped())
	assert.Equal(t, fallback.ReasonVLUnreachable, reasoning.Provenance.SkippedReason)

	// Other detectors are unaffected.
	faces := jr.ShotResults["s0"][types.KindFaces]
	assert.False(t, faces.Skipped())
}

func TestRunJob_AblationNoSRDisablesSuperResAndFine(t *testing.T) {
	reg, _ := newTestRegistry()
	s := newTestScheduler(reg, &stubReasoner{})

	shots := []types.Shot{oneShot("s0", 4)}
	jr, err := s.RunJob(context.Background(), shots, hdMeta, types.Ablations{NoSR: true}, 16)
	require.NoError(t, err)

	sr := jr.ShotResults["s0"][types.KindSuperRes]
	assert.True(t, sr.Skipped())
	assert.Equal(t, fallback.ReasonSRDisabledByAblation, sr.Provenance.SkippedReason)

	fine := jr.ShotResults["s0"][types.KindObjectsFine]
	assert.True(t, fine.Skipped())
	assert.Equal(t, fallback.ReasonSRDisabledByAblation, fine.Provenance.SkippedReason)
}

func TestRunJob_LowResolutionTriggersSuperRes(t *testing.T) {
	reg, stubs := newTestRegistry()
	s := newTestScheduler(reg, &stubReasoner{})

	shots := []types.Shot{oneShot("s0", 4)}
	sdMeta := types.VideoMeta{Width: 640, Height: 360}
	_, err := s.RunJob(context.Background(), shots, sdMeta, types.Ablations{}, 16)
	require.NoError(t, err)

	assert.EqualValues(t, 1, stubs[types.KindSuperRes].calls.Load(), "superres should trigger below sr_trigger_min_h")
	assert.EqualValues(t, 1, stubs[types.KindObjectsFine].calls.Load(), "objects_fine should trigger alongside superres")
}

func TestRunJob_HDResolutionSkipsSuperRes(t *testing.T) {
	reg, stubs := newTestRegistry()
	s := newTestScheduler(reg, &stubReasoner{})

	shots := []types.Shot{oneShot("s0", 4)}
	_, err := s.RunJob(context.Background(), shots, hdMeta, types.Ablations{}, 16)
	require.NoError(t, err)

	assert.EqualValues(t, 0, stubs[types.KindSuperRes].calls.Load(), "superres should not trigger above sr_trigger_min_h")
	assert.EqualValues(t, 0, stubs[types.KindObjectsFine].calls.Load(), "objects_fine should not trigger without a superres pass")
}

func TestRunJob_InternalErrorBudgetExceeded(t *testing.T) {
	reg, stubs := newTestRegistry()
	stubs[types.KindColor].fail = func(attempt int64) error {
		return errs.Internal("simulated panic recovery", nil)
	}
	s := newTestScheduler(reg, &stubReasoner{})

	shots := []types.Shot{oneShot("s0", 3), oneShot("s1", 3)}
	jr, err := s.RunJob(context.Background(), shots, hdMeta, types.Ablations{}, 16)
	require.NoError(t, err)

	assert.EqualValues(t, 2, jr.InternalErrorShots)
	assert.True(t, jr.ExceedsInternalErrorBudget(0.2))
}

// externalErr implements the minimal ExternalUnreachable() contract the
// scheduler checks for to distinguish "endpoint unreachable" from
// "endpoint replied with unparseable JSON".
type externalErr struct{}

func (externalErr) Error() string          { return "vl endpoint unreachable" }
func (externalErr) ExternalUnreachable() bool { return true }
