package types

// AudioWindow is the [StartS, EndS) audio span backing a shot.
type AudioWindow struct {
	StartS float64 `json:"start_s"`
	EndS   float64 `json:"end_s"`
}

// Shot is a contiguous range of frames between detected boundaries — the
// unit of per-detector work. Derived once in prep and immutable
// thereafter.
type Shot struct {
	ShotID      string      `json:"shot_id"`
	StartFrame  int         `json:"start_frame"`
	EndFrame    int         `json:"end_frame"` // exclusive
	FrameCount  int         `json:"frame_count"`
	DurationS   float64     `json:"duration_s"`
	FramePaths  []string    `json:"frame_paths"`
	AudioWindow AudioWindow `json:"audio_window"`
}

// Scene is a group of visually/temporally coherent shots, derived at
// merge time. ShotIDs holds ids, not pointers, so shots and scenes never
// form a reference cycle (spec.md §9).
type Scene struct {
	SceneID    string         `json:"scene_id"`
	ShotIDs    []string       `json:"shots"`
	StartFrame int            `json:"start_frame"`
	EndFrame   int            `json:"end_frame"`
	Features   SceneFeatures  `json:"features"`
	Narrative  map[string]any `json:"narrative,omitempty"`
}

// SceneFeatures are aggregate, scene-level features computed at merge time.
type SceneFeatures struct {
	AvgBrightness    float64           `json:"avg_brightness"`
	DominantMood     string            `json:"dominant_mood"`
	HasCameraMotion  bool              `json:"has_camera_motion"`
	ShotCount        int               `json:"shot_count"`
	TotalDurationS   float64           `json:"total_duration_s"`
	Audio            SceneAudioFeature `json:"audio"`
}

// SceneAudioFeature aggregates per-scene audio characteristics.
type SceneAudioFeature struct {
	AvgLoudnessLUFS float64 `json:"avg_loudness"`
	HasSpeech       bool    `json:"has_speech"`
	HasMusic        bool    `json:"has_music"`
}

// VideoMeta carries the source-level facts prep derives about the video
// before any shot-level work begins.
type VideoMeta struct {
	VideoID    string  `json:"video_id"`
	Path       string  `json:"path"`
	SHA256     string  `json:"sha256"`
	TotalFrame int     `json:"total_frames"`
	DurationS  float64 `json:"duration_s"`
	FPS        float64 `json:"fps"`
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	AudioPath  string  `json:"audio_path,omitempty"`
}
