package detectors

import (
	"context"

	"github.com/basui01/reelscope/detector"
	"github.com/basui01/reelscope/types"
)

// SuperResBackend upscales a shot's frames by scale when triggered.
// Grounded on superres.py in the original implementation.
type SuperResBackend func(ctx context.Context, shot types.Shot, scale int) error

// SuperRes is Phase A step 3: conditional 4x upscaling for shots whose
// frame height falls below sr_trigger_min_h (spec.md §4.4). The
// scheduler only invokes this adapter when its own trigger check has
// already decided to fire.
type SuperRes struct {
	adapter
	Backend SuperResBackend
}

func NewSuperRes(backend SuperResBackend) *SuperRes {
	if backend == nil {
		backend = func(ctx context.Context, shot types.Shot, scale int) error { return nil }
	}
	return &SuperRes{
		adapter: adapter{kind: types.KindSuperRes, class: types.ResourceGPUHeavy, tool: "realesrgan", version: "0.3.0"},
		Backend: backend,
	}
}

func (d *SuperRes) Detect(ctx context.Context, req detector.Request) (detector.Result, error) {
	scale, _ := req.Params["scale"].(int)
	if scale == 0 {
		scale = 4
	}
	if err := d.Backend(ctx, req.Shot, scale); err != nil {
		return detector.Result{}, err
	}
	return detector.Result{Payload: map[string]any{"triggered": true, "scale": scale}}, nil
}
