package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/basui01/reelscope/api"
	"github.com/basui01/reelscope/job"
	"github.com/basui01/reelscope/types"
)

// VideoHandler implements the analyze/ingest/status/result surface
// (spec.md §6). No business logic lives here: every handler decodes
// its request, delegates to job.Manager or job.ArtifactStore, and
// shapes the result into the api.* response DTOs.
type VideoHandler struct {
	manager   *job.Manager
	artifacts *job.ArtifactStore
	logger    *zap.Logger

	maxVideoBytes int64
	mimeWhitelist map[string]struct{}
}

// NewVideoHandler constructs a VideoHandler. mimeWhitelist entries are
// matched against the multipart file part's declared Content-Type.
func NewVideoHandler(manager *job.Manager, artifacts *job.ArtifactStore, maxVideoBytes int64, mimeWhitelist []string, logger *zap.Logger) *VideoHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	allowed := make(map[string]struct{}, len(mimeWhitelist))
	for _, m := range mimeWhitelist {
		allowed[m] = struct{}{}
	}
	return &VideoHandler{
		manager:       manager,
		artifacts:     artifacts,
		logger:        logger.With(zap.String("component", "video_handler")),
		maxVideoBytes: maxVideoBytes,
		mimeWhitelist: allowed,
	}
}

// HandleAnalyze implements POST /analyze.
func (h *VideoHandler) HandleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req api.AnalyzeRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if req.VideoID == "" {
		WriteErrorMessage(w, http.StatusBadRequest, api.ErrInvalidRequest, "video_id is required", h.logger)
		return
	}

	source := req.MediaURL
	if source == "" {
		source = h.artifacts.VideoPath(req.VideoID)
	}

	j, err := h.manager.Analyze(r.Context(), req.VideoID, source, req.Ablations)
	if err != nil {
		h.logger.Error("analyze failed", zap.String("video_id", req.VideoID), zap.Error(err))
		WriteErrorMessage(w, http.StatusInternalServerError, api.ErrInternal, "failed to enqueue analysis", h.logger)
		return
	}

	status := http.StatusOK
	message := ""
	switch j.State {
	case types.JobQueued:
		message = "queued"
	case types.JobRunning:
		message = "already running"
	case types.JobCompleted:
		message = "already completed"
	}

	WriteJSON(w, status, Response{
		Success: true,
		Data: api.AnalyzeResponse{
			JobID:   j.JobID,
			VideoID: j.VideoID,
			Status:  string(j.State),
			Message: message,
		},
		Timestamp: j.CreatedAt,
	})
}

// HandleIngest implements POST /ingest: a multipart upload stored under
// the persisted state layout's store/<video_id>/video.mp4.
func (h *VideoHandler) HandleIngest(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxVideoBytes+1<<20)

	videoID := r.FormValue("video_id")
	if videoID == "" {
		WriteErrorMessage(w, http.StatusBadRequest, api.ErrInvalidRequest, "video_id is required", h.logger)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		WriteErrorMessage(w, http.StatusBadRequest, api.ErrInvalidRequest, "missing multipart file field", h.logger)
		return
	}
	defer file.Close()

	if header.Size > h.maxVideoBytes {
		WriteErrorMessage(w, http.StatusRequestEntityTooLarge, api.ErrPayloadTooLarge,
			fmt.Sprintf("file exceeds maximum of %d bytes", h.maxVideoBytes), h.logger)
		return
	}

	contentType := header.Header.Get("Content-Type")
	if len(h.mimeWhitelist) > 0 {
		if _, ok := h.mimeWhitelist[contentType]; !ok {
			WriteErrorMessage(w, http.StatusUnsupportedMediaType, api.ErrUnsupportedMedia,
				fmt.Sprintf("mime type %q is not allowed", contentType), h.logger)
			return
		}
	}

	if err := h.artifacts.EnsureDir(videoID); err != nil {
		h.logger.Error("ensure dir failed", zap.String("video_id", videoID), zap.Error(err))
		WriteErrorMessage(w, http.StatusInternalServerError, api.ErrInternal, "failed to prepare storage", h.logger)
		return
	}

	dest := h.artifacts.VideoPath(videoID)
	tmp := dest + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		h.logger.Error("create tmp video file failed", zap.Error(err))
		WriteErrorMessage(w, http.StatusInternalServerError, api.ErrInternal, "failed to store upload", h.logger)
		return
	}

	written, copyErr := io.Copy(out, file)
	closeErr := out.Close()
	if copyErr != nil || closeErr != nil {
		os.Remove(tmp)
		err := copyErr
		if err == nil {
			err = closeErr
		}
		if err != nil && err.Error() == "http: request body too large" {
			WriteErrorMessage(w, http.StatusRequestEntityTooLarge, api.ErrPayloadTooLarge, "file exceeds maximum upload size", h.logger)
			return
		}
		h.logger.Error("write upload failed", zap.Error(err))
		WriteErrorMessage(w, http.StatusInternalServerError, api.ErrInternal, "failed to store upload", h.logger)
		return
	}

	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp)
		h.logger.Error("finalize upload failed", zap.Error(err))
		WriteErrorMessage(w, http.StatusInternalServerError, api.ErrInternal, "failed to store upload", h.logger)
		return
	}

	WriteCreated(w, api.IngestResponse{
		VideoID:  videoID,
		Path:     filepath.ToSlash(dest),
		Bytes:    written,
		MimeType: contentType,
	})
}

// HandleStatus implements GET /status/{video_id}.
func (h *VideoHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	videoID := r.PathValue("video_id")
	j, found, err := h.manager.Status(r.Context(), videoID)
	if err != nil {
		h.logger.Error("status lookup failed", zap.String("video_id", videoID), zap.Error(err))
		WriteErrorMessage(w, http.StatusInternalServerError, api.ErrInternal, "failed to read job status", h.logger)
		return
	}
	if !found {
		WriteErrorMessage(w, http.StatusNotFound, api.ErrNotFound, "no job for this video_id", h.logger)
		return
	}
	WriteSuccess(w, statusResponse(j, h.artifacts))
}

// HandleResult implements GET /result/{video_id}.
func (h *VideoHandler) HandleResult(w http.ResponseWriter, r *http.Request) {
	videoID := r.PathValue("video_id")
	j, found, err := h.manager.Status(r.Context(), videoID)
	if err != nil {
		h.logger.Error("result lookup failed", zap.String("video_id", videoID), zap.Error(err))
		WriteErrorMessage(w, http.StatusInternalServerError, api.ErrInternal, "failed to read job status", h.logger)
		return
	}
	if !found {
		WriteErrorMessage(w, http.StatusNotFound, api.ErrNotFound, "no job for this video_id", h.logger)
		return
	}
	if j.State != types.JobCompleted {
		WriteErrorMessage(w, http.StatusConflict, api.ErrStillRunning, "analysis has not completed", h.logger)
		return
	}

	bundle, err := h.artifacts.ReadBundle(videoID)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			WriteErrorMessage(w, http.StatusNotFound, api.ErrNotFound, "no bundle for this video_id", h.logger)
			return
		}
		h.logger.Error("read bundle failed", zap.String("video_id", videoID), zap.Error(err))
		WriteErrorMessage(w, http.StatusInternalServerError, api.ErrInternal, "failed to read bundle", h.logger)
		return
	}
	WriteSuccess(w, bundle)
}

func statusResponse(j *types.Job, artifacts *job.ArtifactStore) api.StatusResponse {
	return api.StatusResponse{
		JobID:        j.JobID,
		VideoID:      j.VideoID,
		State:        string(j.State),
		Progress:     j.Progress,
		Message:      j.Message,
		VABAvailable: j.State == types.JobCompleted && artifacts.BundleExists(j.VideoID),
	}
}
