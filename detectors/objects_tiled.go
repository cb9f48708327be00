package detectors

import (
	"context"

	"github.com/basui01/reelscope/detector"
	"github.com/basui01/reelscope/types"
)

// TiledObjectsBackend runs object detection over a tile grid, returning
// detections plus the tile count actually used (single-scale tiling
// collapses this to 1). Grounded on tile_yolo.py's tiled-inference
// strategy in the original implementation.
type TiledObjectsBackend func(ctx context.Context, shot types.Shot, params map[string]any) ([]Detection, int, error)

// ObjectsTiled is Phase A step 2: multi-scale tiled object detection so
// the union of tiles covers every pixel with overlap (spec.md §4.4).
type ObjectsTiled struct {
	adapter
	Backend TiledObjectsBackend
}

func NewObjectsTiled(backend TiledObjectsBackend) *ObjectsTiled {
	if backend == nil {
		backend = stubTiledBackend
	}
	return &ObjectsTiled{
		adapter: adapter{kind: types.KindObjectsTiled, class: types.ResourceGPUHeavy, tool: "yolo_tiled", version: "8.3.2"},
		Backend: backend,
	}
}

func (d *ObjectsTiled) Detect(ctx context.Context, req detector.Request) (detector.Result, error) {
	dets, tileCount, err := d.Backend(ctx, req.Shot, req.Params)
	if err != nil {
		return detector.Result{}, err
	}
	return detector.Result{Payload: map[string]any{
		"objects":    dets,
		"tile_count": tileCount,
	}}, nil
}

func stubTiledBackend(ctx context.Context, shot types.Shot, params map[string]any) ([]Detection, int, error) {
	tileCount := 6
	if singleScale, _ := params["single_scale"].(bool); singleScale {
		tileCount = 1
	}
	return stubDetections(shot.ShotID, "objects_tiled", 4), tileCount, nil
}
