package detectors

import (
	"context"

	"github.com/basui01/reelscope/detector"
	"github.com/basui01/reelscope/types"
)

// ColorProfile aggregates a shot's color/composition characteristics,
// grounded on color_comp.py in the original implementation.
type ColorProfile struct {
	DominantColors []string `json:"dominant_colors"`
	Brightness     float64  `json:"brightness"`
	Contrast       float64  `json:"contrast"`
}

// ColorBackend computes a shot's color/composition profile.
type ColorBackend func(ctx context.Context, shot types.Shot) (ColorProfile, error)

// Color is a Phase B detector (spec.md §4.4), cpu class.
type Color struct {
	adapter
	Backend ColorBackend
}

func NewColor(backend ColorBackend) *Color {
	if backend == nil {
		backend = stubColorBackend
	}
	return &Color{
		adapter: adapter{kind: types.KindColor, class: types.ResourceCPU, tool: "color_comp", version: "1.0"},
		Backend: backend,
	}
}

func (d *Color) Detect(ctx context.Context, req detector.Request) (detector.Result, error) {
	profile, err := d.Backend(ctx, req.Shot)
	if err != nil {
		return detector.Result{}, err
	}
	return detector.Result{Payload: profile}, nil
}

func stubColorBackend(ctx context.Context, shot types.Shot) (ColorProfile, error) {
	r := seededRand(shot.ShotID, "color")
	palette := []string{"#202020", "#c0c0c0", "#3a6ea5", "#e3b23c"}
	return ColorProfile{
		DominantColors: []string{palette[r.Intn(len(palette))], palette[r.Intn(len(palette))]},
		Brightness:     r.Float64(),
		Contrast:       r.Float64(),
	}, nil
}
