package scheduler

import "context"

// ReasonRequest is what the scheduler hands the VL reasoner for one shot
// (spec.md §4.4 Phase C / §6's VL endpoint contract).
type ReasonRequest struct {
	ShotID          string
	Frames          []string
	DetectorSummary map[string]any
	MaxFrames       int
	Strict          bool // true on the stricter re-prompt retry
}

// ReasonResult is the strict JSON shape the VL endpoint must return.
type ReasonResult struct {
	Summary           string   `json:"summary"`
	Mood              string   `json:"mood"`
	Intent            string   `json:"intent"`
	CompositionNotes  []string `json:"composition_notes"`
	TransitionGuess   string   `json:"transition_guess"`
}

// Reasoner is the seam between the scheduler and the VL endpoint client
// (package vlclient implements it). Kept here, not in vlclient, so the
// scheduler can be exercised and tested without an HTTP dependency.
type Reasoner interface {
	Reason(ctx context.Context, req ReasonRequest) (ReasonResult, error)
}

// SceneReasonRequest is what the merge stage hands the VL reasoner for
// one scene's narrative synthesis (spec.md §3's per-scene Narrative
// field), aggregating the scene's already-computed features and its
// shots' individual Phase C summaries rather than sampling frames
// again.
type SceneReasonRequest struct {
	SceneID       string
	DurationS     float64
	ShotCount     int
	ShotSummaries []string
	Features      map[string]any
}

// SceneReasoner is the seam for scene-level VL narrative synthesis, run
// once per scene after all its shots have Phase C results. It is
// distinct from Reasoner because it never samples frames (spec.md's
// original scene analysis passes no images, only aggregated text), but
// vlclient implements both against the same VL endpoint.
type SceneReasoner interface {
	ReasonScene(ctx context.Context, req SceneReasonRequest) (map[string]any, error)
}
