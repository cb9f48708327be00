package scheduler

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/basui01/reelscope/fallback"
	"github.com/basui01/reelscope/types"
)

// JobRun is the mutable state scoped to a single job: the fallback
// ladder, deadline-violation tracking, and the internal-error budget
// counter. It must never be shared across jobs.
type JobRun struct {
	scheduler *Scheduler
	ladder    *fallback.Controller
	ablations types.Ablations
	deadlines *deadlineTracker
	videoMeta types.VideoMeta

	internalErrorShots atomic.Int64
	totalShots          atomic.Int64

	mu      sync.Mutex
	results map[string]map[types.DetectorKind]types.DetectorResult
}

func newJobRun(s *Scheduler, meta types.VideoMeta, ablations types.Ablations, qwenContextMaxFrames int) *JobRun {
	return &JobRun{
		scheduler: s,
		ladder:    fallback.NewController(qwenContextMaxFrames, s.logger),
		ablations: ablations,
		deadlines: newDeadlineTracker(),
		videoMeta: meta,
		results:   make(map[string]map[types.DetectorKind]types.DetectorResult),
	}
}

func (r *JobRun) firstDeadlineViolation(kind types.DetectorKind) bool {
	return r.deadlines.firstDeadlineViolation(kind)
}

// ablationDisabled reports whether kind is disabled by a job-level
// ablation flag, and if so, the reason to record.
func (r *JobRun) ablationDisabled(kind types.DetectorKind) (reason string, disabled bool) {
	switch kind {
	case types.KindSuperRes, types.KindObjectsFine:
		if r.ablations.NoSR {
			return fallback.ReasonSRDisabledByAblation, true
		}
	case types.KindObjectsTiled:
		if r.ablations.NoTiling {
			return fallback.ReasonTilingDisabledByAbl, true
		}
	}
	return "", false
}

func (r *JobRun) setShotResults(shotID string, results map[types.DetectorKind]types.DetectorResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results[shotID] = results
}

// JobResult is everything RunJob produces for a single job: per-shot
// detector results, the ladder controller's final state (for merge's
// risk synthesis and the bundle's oom_trips metric), and the
// internal-error budget outcome (spec.md §4.4 Failure semantics).
type JobResult struct {
	ShotResults         map[string]map[types.DetectorKind]types.DetectorResult
	Ladder              *fallback.Controller
	InternalErrorShots  int64
	TotalShots          int64
}

// ExceedsInternalErrorBudget reports whether the fraction of shots
// carrying at least one internal detector error exceeds the configured
// budget (default 20%), per spec.md §4.4.
func (jr JobResult) ExceedsInternalErrorBudget(budget float64) bool {
	if jr.TotalShots == 0 {
		return false
	}
	return float64(jr.InternalErrorShots)/float64(jr.TotalShots) > budget
}

// RunJob executes Phases A/B/C for every shot, scheduling shots
// concurrently (the GPU pool enforces the real admission bound) while
// keeping each shot's Phase A chain strictly sequential and Phase C
// strictly after that shot's Phase A and B. meta carries the source
// video's actual resolution, used by Phase A's super-res trigger check
// (spec.md §4.4 step 3).
func (s *Scheduler) RunJob(ctx context.Context, shots []types.Shot, meta types.VideoMeta, ablations types.Ablations, qwenContextMaxFrames int) (JobResult, error) {
	run := newJobRun(s, meta, ablations, qwenContextMaxFrames)
	run.totalShots.Store(int64(len(shots)))

	g, gctx := errgroup.WithContext(ctx)
	for i, shot := range shots {
		i, shot := i, shot
		var prev *types.Shot
		if i > 0 {
			p := shots[i-1]
			prev = &p
		}
		g.Go(func() error {
			results, hadInternal := s.executeShot(gctx, run, shot, prev)
			run.setShotResults(shot.ShotID, results)
			if hadInternal {
				run.internalErrorShots.Add(1)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return JobResult{}, err
	}

	return JobResult{
		ShotResults:        run.results,
		Ladder:             run.ladder,
		InternalErrorShots: run.internalErrorShots.Load(),
		TotalShots:         run.totalShots.Load(),
	}, nil
}
