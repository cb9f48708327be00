package detectors

import (
	"context"

	"github.com/basui01/reelscope/detector"
	"github.com/basui01/reelscope/types"
)

// FineObjectsBackend re-detects on upscaled regions that survived
// coarse+tiled NMS. Grounded on the original's yolo.py applied a second
// time against super-res output.
type FineObjectsBackend func(ctx context.Context, shot types.Shot, params map[string]any) ([]Detection, error)

// ObjectsFine is Phase A step 4: fine-grained detection on upscaled
// regions (spec.md §4.4), only meaningful once super-res has run.
type ObjectsFine struct {
	adapter
	Backend FineObjectsBackend
}

func NewObjectsFine(backend FineObjectsBackend) *ObjectsFine {
	if backend == nil {
		backend = FineObjectsBackend(stubObjectsBackend("objects_fine"))
	}
	return &ObjectsFine{
		adapter: adapter{kind: types.KindObjectsFine, class: types.ResourceGPUHeavy, tool: "yolo_fine", version: "8.3.2"},
		Backend: backend,
	}
}

func (d *ObjectsFine) Detect(ctx context.Context, req detector.Request) (detector.Result, error) {
	dets, err := d.Backend(ctx, req.Shot, req.Params)
	if err != nil {
		return detector.Result{}, err
	}
	return detector.Result{Payload: map[string]any{"objects": dets}}, nil
}
