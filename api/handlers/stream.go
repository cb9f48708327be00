package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/basui01/reelscope/job"
	"github.com/basui01/reelscope/types"
)

// StreamHandler implements the supplementary GET /status/{video_id}/stream
// WebSocket push channel (SPEC_FULL.md §7): it polls job.Manager at a
// fixed interval and pushes the same {state, progress, message} shape
// the polling GET /status endpoint returns, closing once the job
// reaches a terminal state. This is additive; a client that never
// upgrades can keep polling GET /status.
type StreamHandler struct {
	manager   *job.Manager
	artifacts *job.ArtifactStore
	interval  time.Duration
	logger    *zap.Logger
}

// NewStreamHandler constructs a StreamHandler. interval defaults to
// 500ms when zero or negative.
func NewStreamHandler(manager *job.Manager, artifacts *job.ArtifactStore, interval time.Duration, logger *zap.Logger) *StreamHandler {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StreamHandler{
		manager:   manager,
		artifacts: artifacts,
		interval:  interval,
		logger:    logger.With(zap.String("component", "stream_handler")),
	}
}

// HandleStatusStream upgrades the request to a WebSocket connection and
// pushes status snapshots until the job is terminal or the client
// disconnects.
func (h *StreamHandler) HandleStatusStream(w http.ResponseWriter, r *http.Request) {
	videoID := r.PathValue("video_id")
	if videoID == "" {
		http.Error(w, "video_id is required", http.StatusBadRequest)
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket accept failed", zap.String("video_id", videoID), zap.Error(err))
		return
	}
	defer conn.CloseNow()

	ctx := conn.CloseRead(r.Context())
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		j, found, err := h.manager.Status(r.Context(), videoID)
		if err != nil {
			h.logger.Error("status lookup failed", zap.String("video_id", videoID), zap.Error(err))
			conn.Close(websocket.StatusInternalError, "status lookup failed")
			return
		}
		if !found {
			conn.Close(websocket.StatusNormalClosure, "no job for this video_id")
			return
		}

		if err := h.writeStatus(ctx, conn, j); err != nil {
			h.logger.Debug("stream write failed, client likely gone", zap.String("video_id", videoID), zap.Error(err))
			return
		}
		if j.State.Terminal() {
			conn.Close(websocket.StatusNormalClosure, "job reached terminal state")
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (h *StreamHandler) writeStatus(ctx context.Context, conn *websocket.Conn, j *types.Job) error {
	payload, err := json.Marshal(statusResponse(j, h.artifacts))
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, payload)
}
