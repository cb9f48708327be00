package types

const SchemaVersion = "1.1.0"

// VideoMetrics carries per-job latency and resource metrics surfaced in
// the bundle's video.metrics block.
type VideoMetrics struct {
	LatencyMS   map[string]int64 `json:"latency_ms"`
	GPUMemMBPeak int             `json:"gpu_mem_mb_peak"`
	Retries      int             `json:"retries"`
	OOMTrips     int             `json:"oom_trips"`
}

// BundleVideo is the video.* block of the VAB.
type BundleVideo struct {
	VideoID string       `json:"video_id"`
	Path    string       `json:"path"`
	SHA256  string       `json:"sha256"`
	Metrics VideoMetrics `json:"metrics"`
}

// Resolution is a frame resolution pair.
type Resolution struct {
	W int `json:"w"`
	H int `json:"h"`
}

// GlobalDetections is the global.detections aggregate.
type GlobalDetections struct {
	TotalObjects        int            `json:"total_objects"`
	TotalFaces          int            `json:"total_faces"`
	TotalTextRegions     int           `json:"total_text_regions"`
	ObjectCounts        map[string]int `json:"object_counts"`
	UniqueObjectClasses int            `json:"unique_object_classes"`
}

// GlobalStats is the global.* block of the VAB.
type GlobalStats struct {
	TotalFrames int              `json:"total_frames"`
	DurationS   float64          `json:"duration_s"`
	FPS         float64          `json:"fps"`
	Resolution  Resolution       `json:"resolution"`
	Detections  GlobalDetections `json:"detections"`
}

// ShotDetectors is the per-shot detectors map in the VAB, plus the
// VL-reasoning narrative fields that are attached at the shot level.
type ShotDetectors struct {
	Objects    []DetectorResult `json:"objects,omitempty"`
	Faces      *DetectorResult  `json:"faces,omitempty"`
	Text       *DetectorResult  `json:"text,omitempty"`
	Color      *DetectorResult  `json:"color,omitempty"`
	Motion     *DetectorResult  `json:"motion,omitempty"`
	Saliency   *DetectorResult  `json:"saliency,omitempty"`
	Audio      *DetectorResult  `json:"audio,omitempty"`
	Transition *DetectorResult  `json:"transition,omitempty"`
	SRUsed     bool             `json:"sr_used"`
}

// BundleShot is a single shots[] entry in the VAB.
type BundleShot struct {
	ShotID            string        `json:"shot_id"`
	StartFrame        int           `json:"start_frame"`
	EndFrame          int           `json:"end_frame"`
	FrameCount        int           `json:"frame_count"`
	DurationS         float64       `json:"duration_s"`
	Detectors         ShotDetectors `json:"detectors"`
	Summary           string        `json:"summary,omitempty"`
	Mood              string        `json:"mood,omitempty"`
	Intent            string        `json:"intent,omitempty"`
	CompositionNotes  []string      `json:"composition_notes,omitempty"`
	TransitionGuess   string        `json:"transition_guess,omitempty"`
}

// Track is a single-frame passthrough object track: one detected
// object numbered within its own shot. Grounded on the original
// implementation's tracker.py, which assigns sequential track ids per
// shot as a ByteTrack fallback rather than correlating identities
// across shots (real multi-frame tracking needs a decoded frame
// stream, out of scope per spec.md §1) — so TrackID is only unique
// within ShotID, not across the whole bundle.
type Track struct {
	ShotID  string     `json:"shot_id"`
	TrackID int        `json:"track_id"`
	Label   string     `json:"label"`
	BBox    [4]float64 `json:"bbox"`
}

// Bundle is the aggregate Video Analysis Bundle (VAB), the single
// structured document this system produces (spec.md §3).
type Bundle struct {
	SchemaVersion string             `json:"schema_version"`
	Status        Status             `json:"status"`
	Video         BundleVideo        `json:"video"`
	Global        GlobalStats        `json:"global"`
	Scenes        []Scene            `json:"scenes"`
	Shots         []BundleShot       `json:"shots"`
	Tracks        []Track            `json:"tracks"`
	Risks         []Risk             `json:"risks"`
	Provenance    []Provenance       `json:"provenance"`
	Calibration   []CalibrationEntry `json:"calibration"`
}
