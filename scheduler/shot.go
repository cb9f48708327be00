package scheduler

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/basui01/reelscope/detector"
	"github.com/basui01/reelscope/fallback"
	"github.com/basui01/reelscope/provenance"
	"github.com/basui01/reelscope/types"
)

// executeShot runs Phase A (sequential GPU chain), Phase B (parallel
// fan-out), and Phase C (VL reasoning) for one shot. A ≺ C and B ≺ C are
// strict; A and B are not ordered relative to each other (spec.md §4.4).
func (s *Scheduler) executeShot(ctx context.Context, run *JobRun, shot types.Shot, prev *types.Shot) (map[types.DetectorKind]types.DetectorResult, bool) {
	results := make(map[types.DetectorKind]types.DetectorResult)
	var mu sync.Mutex
	var hadInternal bool

	record := func(r types.DetectorResult, internal bool) {
		mu.Lock()
		defer mu.Unlock()
		results[r.Kind] = r
		if internal {
			hadInternal = true
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		for _, outcome := range s.runPhaseA(gctx, run, shot) {
			record(outcome.result, outcome.internal)
		}
		return nil
	})
	g.Go(func() error {
		for _, outcome := range s.runPhaseB(gctx, run, shot, prev) {
			record(outcome.result, outcome.internal)
		}
		return nil
	})
	g.Wait()

	mu.Lock()
	phaseABSnapshot := make(map[types.DetectorKind]types.DetectorResult, len(results))
	for k, v := range results {
		phaseABSnapshot[k] = v
	}
	mu.Unlock()

	reasonOutcome := s.runPhaseC(ctx, run, shot, phaseABSnapshot)
	record(reasonOutcome.result, reasonOutcome.internal)

	return results, hadInternal
}

// runPhaseA executes the sequential GPU chain: objects coarse → tiled →
// conditional superres → conditional fine objects → mask refinement.
// req.Params["prior"] carries the coarse result to tiled, and the tiled
// result to fine objects and to mask refinement; superres gets no prior,
// and mask refinement does not see the fine objects' output.
func (s *Scheduler) runPhaseA(ctx context.Context, run *JobRun, shot types.Shot) []invocationOutcome {
	var outcomes []invocationOutcome

	coarse := s.invokeDetector(ctx, run, types.KindObjectsCoarse, func() detector.Request {
		return detector.Request{Shot: shot, Params: map[string]any{}}
	})
	outcomes = append(outcomes, coarse)

	tiled := s.invokeDetector(ctx, run, types.KindObjectsTiled, func() detector.Request {
		return detector.Request{
			Shot: shot,
			Params: map[string]any{
				"tile_size":           s.cfg.TileSize,
				"stride":              s.cfg.TileStride,
				"single_scale":        run.ladder.SingleScaleTiling(),
				"small_object_min_px": 8,
				"prior":               coarse.result,
			},
		}
	})
	outcomes = append(outcomes, tiled)

	triggerH := run.videoMeta.Height
	srTriggered := triggerH > 0 && triggerH < s.cfg.SRTriggerMinH && !run.ladder.SuperResDisabled()
	if reason, disabled := run.ablationDisabled(types.KindSuperRes); disabled {
		srTriggered = false
		outcomes = append(outcomes, invocationOutcome{result: skippedResult(types.KindSuperRes, "superres", "stub-1.0", reason)})
		outcomes = append(outcomes, invocationOutcome{result: skippedResult(types.KindObjectsFine, "objects_fine", "stub-1.0", reason)})
	} else if !srTriggered {
		outcomes = append(outcomes, invocationOutcome{result: types.DetectorResult{
			Kind:       types.KindSuperRes,
			Payload:    map[string]any{"triggered": false},
			Provenance: provenance.New("superres", "stub-1.0", "", "not_triggered"),
		}})
		outcomes = append(outcomes, invocationOutcome{result: types.DetectorResult{
			Kind:       types.KindObjectsFine,
			Payload:    map[string]any{"triggered": false},
			Provenance: provenance.New("objects_fine", "stub-1.0", "", "not_triggered"),
		}})
	} else {
		sr := s.invokeDetector(ctx, run, types.KindSuperRes, func() detector.Request {
			return detector.Request{Shot: shot, Params: map[string]any{"scale": 4}}
		})
		outcomes = append(outcomes, sr)

		fine := s.invokeDetector(ctx, run, types.KindObjectsFine, func() detector.Request {
			return detector.Request{
				Shot:   shot,
				Params: map[string]any{"prior": tiled.result, "superres": sr.result},
			}
		})
		outcomes = append(outcomes, fine)
	}

	maskRefine := s.invokeDetector(ctx, run, types.KindMaskRefine, func() detector.Request {
		return detector.Request{
			Shot:   shot,
			Params: map[string]any{"prior": tiled.result},
		}
	})
	outcomes = append(outcomes, maskRefine)

	return outcomes
}

// runPhaseB executes the parallel CPU/light-GPU fan-out: faces, text,
// color, motion, audio, and transition classification. Individual
// failures leave their slot skipped but never abort the phase.
func (s *Scheduler) runPhaseB(ctx context.Context, run *JobRun, shot types.Shot, prev *types.Shot) []invocationOutcome {
	kinds := []types.DetectorKind{
		types.KindFaces,
		types.KindText,
		types.KindColor,
		types.KindMotion,
		types.KindAudio,
	}

	outcomes := make([]invocationOutcome, len(kinds)+1)
	var wg sync.WaitGroup
	for i, kind := range kinds {
		i, kind := i, kind
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcomes[i] = s.invokeDetector(ctx, run, kind, func() detector.Request {
				params := map[string]any{}
				if kind == types.KindAudio && run.ablations.LightAudio {
					params["light"] = true
				}
				return detector.Request{Shot: shot, Params: params}
			})
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		if prev == nil {
			outcomes[len(kinds)] = invocationOutcome{
				result: skippedResult(types.KindTransition, "transitions", "stub-1.0", fallback.ReasonNoAdjacentShot),
			}
			return
		}
		outcomes[len(kinds)] = s.invokeDetector(ctx, run, types.KindTransition, func() detector.Request {
			return detector.Request{
				Shot:   shot,
				Params: map[string]any{"prev_shot_id": prev.ShotID},
			}
		})
	}()

	wg.Wait()
	return outcomes
}

// runPhaseC invokes the VL reasoner with up to MaxFrames sampled frames
// and a summary of Phase A/B outputs. On a parse failure it retries once
// with a stricter re-prompt (spec.md §4.4); on an unreachable endpoint
// the reasoning block is recorded empty with reason "vl_unreachable".
func (s *Scheduler) runPhaseC(ctx context.Context, run *JobRun, shot types.Shot, phaseAB map[types.DetectorKind]types.DetectorResult) invocationOutcome {
	if s.reasoner == nil {
		return invocationOutcome{result: skippedResult(types.KindReasoning, "vl_reasoner", "unconfigured", fallback.ReasonVLUnreachable)}
	}

	if proceed, reason := run.ladder.PreCheck(types.KindReasoning); !proceed {
		return invocationOutcome{result: skippedResult(types.KindReasoning, "vl_reasoner", "unknown", reason)}
	}

	summary := make(map[string]any, len(phaseAB))
	for kind, res := range phaseAB {
		summary[string(kind)] = res.Payload
	}

	maxFrames := run.ladder.QwenContextMaxFrames()
	req := ReasonRequest{
		ShotID:          shot.ShotID,
		Frames:          sampleFrames(shot.FramePaths, maxFrames),
		DetectorSummary: summary,
		MaxFrames:       maxFrames,
	}

	dctx, cancel := context.WithTimeout(ctx, s.cfg.VLDeadline)
	defer cancel()

	res, err := s.reasoner.Reason(dctx, req)
	if err == nil {
		return invocationOutcome{result: s.reasoningSuccess(req, res)}
	}

	if isExternalReasonError(err) {
		return invocationOutcome{result: skippedResult(types.KindReasoning, "vl_reasoner", "unknown", fallback.ReasonVLUnreachable)}
	}

	// Treat the first failure as a malformed-response parse failure and
	// retry once with a stricter re-prompt.
	req.Strict = true
	res, err = s.reasoner.Reason(dctx, req)
	if err == nil {
		return invocationOutcome{result: s.reasoningSuccess(req, res)}
	}
	if isExternalReasonError(err) {
		return invocationOutcome{result: skippedResult(types.KindReasoning, "vl_reasoner", "unknown", fallback.ReasonVLUnreachable)}
	}
	return invocationOutcome{result: skippedResult(types.KindReasoning, "vl_reasoner", "unknown", fallback.ReasonParseFailed)}
}

func (s *Scheduler) reasoningSuccess(req ReasonRequest, res ReasonResult) types.DetectorResult {
	paramsHash, err := provenance.FingerprintParams(req)
	if err != nil {
		paramsHash = ""
	}
	return types.DetectorResult{
		Kind:       types.KindReasoning,
		Payload:    res,
		Provenance: provenance.New("vl_reasoner", "chat-completions-v1", "", paramsHash),
	}
}

// externalReasonError is the minimal contract vlclient's errors satisfy
// so the scheduler can tell "endpoint unreachable" apart from "endpoint
// replied but the JSON didn't parse" without importing vlclient.
type externalReasonError interface {
	ExternalUnreachable() bool
}

func isExternalReasonError(err error) bool {
	ext, ok := err.(externalReasonError)
	return ok && ext.ExternalUnreachable()
}

func sampleFrames(frames []string, maxFrames int) []string {
	if maxFrames <= 0 || len(frames) <= maxFrames {
		return frames
	}
	if maxFrames == 1 {
		return frames[:1]
	}
	out := make([]string, 0, maxFrames)
	step := float64(len(frames)-1) / float64(maxFrames-1)
	for i := 0; i < maxFrames; i++ {
		idx := int(float64(i) * step)
		out = append(out, frames[idx])
	}
	return out
}
