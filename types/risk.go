package types

// RiskType enumerates the risk categories risk synthesis can emit.
type RiskType string

const (
	RiskLowDialogueIntelligibility RiskType = "low_dialogue_intelligibility"
	RiskAudioClipping              RiskType = "audio_clipping"
	RiskCaptionFaceOverlap         RiskType = "caption_face_overlap"
	RiskDegradedDetection          RiskType = "degraded_detection"
)

// Severity is the risk severity scale.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMed    Severity = "med"
	SeverityHigh   Severity = "high"
)

// Risk is a single derived risk flag attached to a shot.
type Risk struct {
	ShotID   string         `json:"shot_id"`
	Type     RiskType       `json:"type"`
	Severity Severity       `json:"severity"`
	Metric   map[string]any `json:"metric,omitempty"`
}

// CalibrationEntry documents expected detector-family accuracy, carried
// through from the original implementation's static calibration table.
type CalibrationEntry struct {
	Family       string  `json:"family"`
	ExpectedTPR  float64 `json:"expected_tpr"`
	ExpectedFPR  float64 `json:"expected_fpr"`
}
