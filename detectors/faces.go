package detectors

import (
	"context"

	"github.com/basui01/reelscope/detector"
	"github.com/basui01/reelscope/types"
)

// Face is one detected face with coarse attributes, grounded on the
// original implementation's faces.py InsightFace wrapper.
type Face struct {
	BBox    [4]float64 `json:"bbox"`
	Age     int        `json:"age,omitempty"`
	Gender  string      `json:"gender,omitempty"`
	Emotion string      `json:"emotion"`
}

// FacesBackend detects faces and coarse emotion in a shot.
type FacesBackend func(ctx context.Context, shot types.Shot) ([]Face, error)

// Faces is a Phase B detector (spec.md §4.4), gpu_light class.
type Faces struct {
	adapter
	Backend FacesBackend
}

func NewFaces(backend FacesBackend) *Faces {
	if backend == nil {
		backend = stubFacesBackend
	}
	return &Faces{
		adapter: adapter{kind: types.KindFaces, class: types.ResourceGPULight, tool: "insightface", version: "buffalo_l"},
		Backend: backend,
	}
}

func (d *Faces) Detect(ctx context.Context, req detector.Request) (detector.Result, error) {
	faces, err := d.Backend(ctx, req.Shot)
	if err != nil {
		return detector.Result{}, err
	}
	return detector.Result{Payload: map[string]any{"faces": faces}}, nil
}

var stubEmotions = []string{"neutral", "happy", "surprise"}

func stubFacesBackend(ctx context.Context, shot types.Shot) ([]Face, error) {
	r := seededRand(shot.ShotID, "faces")
	n := r.Intn(2)
	out := make([]Face, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, Face{
			BBox:    [4]float64{r.Float64() * 400, r.Float64() * 300, 80, 80},
			Age:     20 + r.Intn(40),
			Gender:  []string{"male", "female"}[r.Intn(2)],
			Emotion: stubEmotions[r.Intn(len(stubEmotions))],
		})
	}
	return out, nil
}
