package types

import "time"

// DetectorKind enumerates every detector kind the DAG scheduler can drive.
type DetectorKind string

const (
	KindObjectsCoarse DetectorKind = "objects_coarse"
	KindObjectsTiled  DetectorKind = "objects_tiled"
	KindSuperRes      DetectorKind = "superres"
	KindObjectsFine   DetectorKind = "objects_fine"
	KindMaskRefine    DetectorKind = "mask_refine"
	KindFaces         DetectorKind = "faces"
	KindText          DetectorKind = "text"
	KindColor         DetectorKind = "color"
	KindMotion        DetectorKind = "motion"
	KindAudio         DetectorKind = "audio"
	KindTransition    DetectorKind = "transition"
	KindReasoning     DetectorKind = "reasoning"
)

// ResourceClass determines GPU pool admission per spec.md §4.1.
type ResourceClass string

const (
	ResourceGPUHeavy ResourceClass = "gpu_heavy"
	ResourceGPULight ResourceClass = "gpu_light"
	ResourceCPU      ResourceClass = "cpu"
	ResourceIO       ResourceClass = "io"
)

// Provenance identifies the origin of a single detector invocation.
type Provenance struct {
	Tool            string    `json:"tool"`
	Version         string    `json:"version"`
	ModelCkptID     string    `json:"ckpt,omitempty"`
	ParamsHash      string    `json:"params_hash"`
	Timestamp       time.Time `json:"ts"`
	SkippedReason   string    `json:"skipped_reason,omitempty"`
}

// Key returns the dedup identity used by the top-level provenance list
// (spec.md invariant 2): distinct (tool, version, params_fingerprint).
func (p Provenance) Key() [3]string {
	return [3]string{p.Tool, p.Version, p.ParamsHash}
}

// DetectorResult is the uniform output of a single detector invocation on
// a single shot (spec.md §3 "Detector result").
type DetectorResult struct {
	Kind       DetectorKind   `json:"kind"`
	Payload    any            `json:"payload,omitempty"`
	Provenance Provenance     `json:"provenance"`
}

// Skipped reports whether this result represents a skipped invocation.
func (r DetectorResult) Skipped() bool {
	return r.Provenance.SkippedReason != ""
}
