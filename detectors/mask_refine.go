package detectors

import (
	"context"

	"github.com/basui01/reelscope/detector"
	"github.com/basui01/reelscope/types"
)

// MaskRefineBackend refines surviving detections with instance
// segmentation masks. Grounded on sam2.py in the original implementation.
type MaskRefineBackend func(ctx context.Context, shot types.Shot, prior []Detection) ([]Detection, error)

// MaskRefine is Phase A step 5: segmentation-mask refinement of
// surviving detections (spec.md §4.4), the most memory-hungry stage and
// the first one the fallback ladder disables.
type MaskRefine struct {
	adapter
	Backend MaskRefineBackend
}

func NewMaskRefine(backend MaskRefineBackend) *MaskRefine {
	if backend == nil {
		backend = func(ctx context.Context, shot types.Shot, prior []Detection) ([]Detection, error) {
			return prior, nil
		}
	}
	return &MaskRefine{
		adapter: adapter{kind: types.KindMaskRefine, class: types.ResourceGPUHeavy, tool: "sam2", version: "2.1"},
		Backend: backend,
	}
}

func (d *MaskRefine) Detect(ctx context.Context, req detector.Request) (detector.Result, error) {
	var prior []Detection
	if dr, ok := priorPayload(req.Params["prior"]); ok {
		if objs, ok := dr["objects"].([]Detection); ok {
			prior = objs
		}
	}
	refined, err := d.Backend(ctx, req.Shot, prior)
	if err != nil {
		return detector.Result{}, err
	}
	return detector.Result{Payload: map[string]any{"objects": refined}}, nil
}

// priorPayload extracts the map-shaped payload out of a prior stage's
// invocation outcome, which scheduler passes through req.Params["prior"]
// as an opaque types.DetectorResult.
func priorPayload(v any) (map[string]any, bool) {
	dr, ok := v.(types.DetectorResult)
	if !ok {
		return nil, false
	}
	m, ok := dr.Payload.(map[string]any)
	return m, ok
}
