package detectors

import (
	"context"

	"github.com/basui01/reelscope/detector"
	"github.com/basui01/reelscope/types"
)

// ObjectsBackend runs full-frame object detection on one shot. Grounded
// on the original implementation's yolo.py detect_objects(); a real
// deployment plugs a YOLO (or equivalent) model in here.
type ObjectsBackend func(ctx context.Context, shot types.Shot, params map[string]any) ([]Detection, error)

// ObjectsCoarse is Phase A step 1: full-frame object detection, no
// tiling or upscaling (spec.md §4.4).
type ObjectsCoarse struct {
	adapter
	Backend ObjectsBackend
}

// NewObjectsCoarse constructs the coarse-pass adapter. A nil backend
// falls back to a deterministic stub.
func NewObjectsCoarse(backend ObjectsBackend) *ObjectsCoarse {
	if backend == nil {
		backend = stubObjectsBackend("objects_coarse")
	}
	return &ObjectsCoarse{
		adapter: adapter{kind: types.KindObjectsCoarse, class: types.ResourceGPUHeavy, tool: "yolo", version: "8.3.2"},
		Backend: backend,
	}
}

func (d *ObjectsCoarse) Detect(ctx context.Context, req detector.Request) (detector.Result, error) {
	dets, err := d.Backend(ctx, req.Shot, req.Params)
	if err != nil {
		return detector.Result{}, err
	}
	return detector.Result{Payload: map[string]any{"objects": dets}}, nil
}

func stubObjectsBackend(salt string) ObjectsBackend {
	return func(ctx context.Context, shot types.Shot, params map[string]any) ([]Detection, error) {
		return stubDetections(shot.ShotID, salt, 3), nil
	}
}
