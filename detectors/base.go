// Package detectors implements one adapter per detector kind (spec.md
// §4.1), each a thin wrapper around an injected backend function. The
// real model weights (YOLO, InsightFace, OCR, optical flow,
// loudness/STOI, SSIM) are external collaborators (spec.md §1); every
// adapter here ships a deterministic stub backend (the randomized ones
// seeded off the shot ID; the text, mask-refinement and super-resolution
// stubs return empty, pass-through or no-op output), so the orchestrator
// is fully exercisable without them.
package detectors

import (
	"hash/fnv"
	"math/rand"

	"github.com/basui01/reelscope/types"
)

// adapter is the shared shape every concrete detector embeds, mirroring
// the uniform detect(shot, cfg) -> {payload, provenance, resource_class}
// contract from spec.md §4.1.
type adapter struct {
	kind    types.DetectorKind
	class   types.ResourceClass
	tool    string
	version string
}

func (a adapter) Kind() types.DetectorKind           { return a.kind }
func (a adapter) ResourceClass() types.ResourceClass { return a.class }
func (a adapter) ToolName() string                   { return a.tool }
func (a adapter) ToolVersion() string                { return a.version }

// seededRand returns a *rand.Rand deterministic for a given shot ID and
// salt, so a stub backend's "detections" are reproducible across runs
// for the same shot and params (spec.md §4.1 determinism guarantee).
func seededRand(shotID, salt string) *rand.Rand {
	h := fnv.New64a()
	h.Write([]byte(shotID))
	h.Write([]byte(salt))
	return rand.New(rand.NewSource(int64(h.Sum64())))
}

// Detection is the common per-object detection shape shared by the
// coarse/tiled/fine object passes and mask refinement, grounded on the
// original implementation's yolo.py detect_objects() return shape.
type Detection struct {
	Label   string     `json:"label"`
	Conf    float64    `json:"conf"`
	BBox    [4]float64 `json:"bbox"`
	Area    float64    `json:"area"`
	ClassID int        `json:"class_id"`
}

var stubLabels = []string{"person", "car", "dog", "chair", "bottle", "phone"}

func stubDetections(shotID, salt string, n int) []Detection {
	r := seededRand(shotID, salt)
	out := make([]Detection, 0, n)
	for i := 0; i < n; i++ {
		x1 := r.Float64() * 800
		y1 := r.Float64() * 450
		w := 20 + r.Float64()*200
		h := 20 + r.Float64()*200
		out = append(out, Detection{
			Label:   stubLabels[r.Intn(len(stubLabels))],
			Conf:    0.4 + r.Float64()*0.59,
			BBox:    [4]float64{x1, y1, x1 + w, y1 + h},
			Area:    w * h,
			ClassID: r.Intn(len(stubLabels)),
		})
	}
	return out
}
