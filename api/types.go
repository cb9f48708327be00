package api

import "github.com/basui01/reelscope/types"

// AnalyzeRequest is the body of POST /analyze.
type AnalyzeRequest struct {
	VideoID   string          `json:"video_id" binding:"required"`
	MediaURL  string          `json:"media_url,omitempty"`
	Ablations types.Ablations `json:"ablations,omitempty"`
}

// AnalyzeResponse is returned by POST /analyze, including on an
// idempotent hit against an already queued or running job.
type AnalyzeResponse struct {
	JobID   string `json:"job_id"`
	VideoID string `json:"video_id"`
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// IngestResponse is returned by POST /ingest on success.
type IngestResponse struct {
	VideoID  string `json:"video_id"`
	Path     string `json:"path"`
	Bytes    int64  `json:"bytes"`
	MimeType string `json:"mime_type"`
}

// StatusResponse is returned by GET /status/{video_id} and pushed by
// the supplementary WebSocket stream at the same shape.
type StatusResponse struct {
	JobID        string `json:"job_id"`
	VideoID      string `json:"video_id"`
	State        string `json:"state"`
	Progress     int    `json:"progress"`
	Message      string `json:"message,omitempty"`
	VABAvailable bool   `json:"vab_available"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status         string `json:"status"`
	GPUAvailable   bool   `json:"gpu_available"`
	QueueConnected bool   `json:"queue_connected"`
	VLAvailable    bool   `json:"vl_available"`
}
