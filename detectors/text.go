package detectors

import (
	"context"

	"github.com/basui01/reelscope/detector"
	"github.com/basui01/reelscope/types"
)

// TextRegion is one detected on-screen text region with its typography,
// grounded on ocr_fonts.py in the original implementation.
type TextRegion struct {
	BBox [4]float64 `json:"bbox"`
	Text string     `json:"text"`
	Font string     `json:"font,omitempty"`
}

// TextBackend detects on-screen text and typography in a shot.
type TextBackend func(ctx context.Context, shot types.Shot) ([]TextRegion, error)

// Text is a Phase B detector (spec.md §4.4), gpu_light class.
type Text struct {
	adapter
	Backend TextBackend
}

func NewText(backend TextBackend) *Text {
	if backend == nil {
		backend = func(ctx context.Context, shot types.Shot) ([]TextRegion, error) { return nil, nil }
	}
	return &Text{
		adapter: adapter{kind: types.KindText, class: types.ResourceGPULight, tool: "ocr_fonts", version: "1.0"},
		Backend: backend,
	}
}

func (d *Text) Detect(ctx context.Context, req detector.Request) (detector.Result, error) {
	regions, err := d.Backend(ctx, req.Shot)
	if err != nil {
		return detector.Result{}, err
	}
	return detector.Result{Payload: map[string]any{"regions": regions}}, nil
}
