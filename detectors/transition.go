package detectors

import (
	"context"

	"github.com/basui01/reelscope/detector"
	"github.com/basui01/reelscope/types"
)

// Transition type classifications, grounded on
// detect_transition_type() in the original implementation's
// transitions.py.
const (
	TransitionNone         = "none"
	TransitionCut          = "cut"
	TransitionFade         = "fade"
	TransitionFadeToBlack  = "fade_to_black"
	TransitionFadeFromBlack = "fade_from_black"
	TransitionDissolve     = "dissolve"
)

// TransitionResult describes the cut between a shot and its predecessor.
type TransitionResult struct {
	Type       string  `json:"type"`
	Similarity float64 `json:"similarity"`
	Sharpness  string  `json:"sharpness"`
}

// TransitionBackend analyzes the boundary between the previous shot's
// last frame and shot's first frame. prevShotID identifies the
// predecessor; the scheduler only forwards the id, not the full shot,
// since frame-path resolution lives in the prep stage in a real
// deployment.
type TransitionBackend func(ctx context.Context, shot types.Shot, prevShotID string) (TransitionResult, error)

// Transition is a Phase B detector (spec.md §4.4), cpu class. Unlike
// the other Phase B detectors it is only invoked when a previous shot
// exists; the scheduler skips it with no_adjacent_shot for a job's
// first shot.
type Transition struct {
	adapter
	Backend TransitionBackend
}

func NewTransition(backend TransitionBackend) *Transition {
	if backend == nil {
		backend = stubTransitionBackend
	}
	return &Transition{
		adapter: adapter{kind: types.KindTransition, class: types.ResourceCPU, tool: "transition_detector", version: "1.0"},
		Backend: backend,
	}
}

func (d *Transition) Detect(ctx context.Context, req detector.Request) (detector.Result, error) {
	prevShotID, _ := req.Params["prev_shot_id"].(string)
	result, err := d.Backend(ctx, req.Shot, prevShotID)
	if err != nil {
		return detector.Result{}, err
	}
	return detector.Result{Payload: result}, nil
}

func stubTransitionBackend(ctx context.Context, shot types.Shot, prevShotID string) (TransitionResult, error) {
	r := seededRand(prevShotID+"|"+shot.ShotID, "transition")
	similarity := r.Float64()

	var kind string
	switch {
	case similarity > 0.9:
		kind = TransitionNone
	case similarity < 0.3:
		kind = TransitionCut
	default:
		switch {
		case r.Float64() < 0.2:
			kind = TransitionFadeToBlack
		case r.Float64() < 0.4:
			kind = TransitionFadeFromBlack
		case r.Float64() < 0.6:
			kind = TransitionFade
		default:
			kind = TransitionDissolve
		}
	}

	sharpness := "soft"
	if similarity < 0.5 {
		sharpness = "hard"
	}

	return TransitionResult{Type: kind, Similarity: similarity, Sharpness: sharpness}, nil
}
