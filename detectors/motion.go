package detectors

import (
	"context"

	"github.com/basui01/reelscope/detector"
	"github.com/basui01/reelscope/types"
)

// MotionProfile summarizes a shot's motion/saliency characteristics,
// grounded on motion_saliency.py and optical_flow.py in the original
// implementation.
type MotionProfile struct {
	SaliencyScore   float64 `json:"saliency_score"`
	HasCameraMotion bool    `json:"has_camera_motion"`
}

// MotionBackend computes a shot's motion/saliency profile.
type MotionBackend func(ctx context.Context, shot types.Shot) (MotionProfile, error)

// Motion is a Phase B detector (spec.md §4.4), cpu class.
type Motion struct {
	adapter
	Backend MotionBackend
}

func NewMotion(backend MotionBackend) *Motion {
	if backend == nil {
		backend = stubMotionBackend
	}
	return &Motion{
		adapter: adapter{kind: types.KindMotion, class: types.ResourceCPU, tool: "motion_saliency", version: "1.0"},
		Backend: backend,
	}
}

func (d *Motion) Detect(ctx context.Context, req detector.Request) (detector.Result, error) {
	profile, err := d.Backend(ctx, req.Shot)
	if err != nil {
		return detector.Result{}, err
	}
	return detector.Result{Payload: profile}, nil
}

func stubMotionBackend(ctx context.Context, shot types.Shot) (MotionProfile, error) {
	r := seededRand(shot.ShotID, "motion")
	return MotionProfile{SaliencyScore: r.Float64(), HasCameraMotion: r.Float64() > 0.5}, nil
}
