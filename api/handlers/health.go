package handlers

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/basui01/reelscope/api"
)

// HealthCheck is a pluggable liveness probe for a collaborator the
// orchestrator depends on (GPU pool, Redis/asynq queue, VL endpoint).
type HealthCheck interface {
	Name() string
	Check(ctx context.Context) error
}

// HealthHandler implements GET /health (spec.md §6): it is never
// dependent on a specific job, only on whether the GPU pool, the
// queue, and the VL endpoint are reachable.
type HealthHandler struct {
	logger *zap.Logger
	gpu    HealthCheck
	queue  HealthCheck
	vl     HealthCheck
}

// NewHealthHandler constructs a HealthHandler. Any of gpu/queue/vl may
// be nil, in which case that collaborator reports available.
func NewHealthHandler(gpu, queue, vl HealthCheck, logger *zap.Logger) *HealthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HealthHandler{logger: logger.With(zap.String("component", "health_handler")), gpu: gpu, queue: queue, vl: vl}
}

// HandleHealth implements GET /health, returning 200 when every
// collaborator that was wired is reachable and 503 otherwise.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	resp := api.HealthResponse{
		Status:         "healthy",
		GPUAvailable:   h.probe(ctx, h.gpu),
		QueueConnected: h.probe(ctx, h.queue),
		VLAvailable:    h.probe(ctx, h.vl),
	}
	status := http.StatusOK
	if !resp.GPUAvailable || !resp.QueueConnected || !resp.VLAvailable {
		resp.Status = "degraded"
		status = http.StatusServiceUnavailable
	}
	WriteJSON(w, status, resp)
}

func (h *HealthHandler) probe(ctx context.Context, check HealthCheck) bool {
	if check == nil {
		return true
	}
	if err := check.Check(ctx); err != nil {
		h.logger.Warn("health check failed", zap.String("check", check.Name()), zap.Error(err))
		return false
	}
	return true
}

// FuncHealthCheck adapts a bare function into a HealthCheck.
type FuncHealthCheck struct {
	name string
	fn   func(ctx context.Context) error
}

// NewFuncHealthCheck builds a HealthCheck from name and fn.
func NewFuncHealthCheck(name string, fn func(ctx context.Context) error) *FuncHealthCheck {
	return &FuncHealthCheck{name: name, fn: fn}
}

func (c *FuncHealthCheck) Name() string                    { return c.name }
func (c *FuncHealthCheck) Check(ctx context.Context) error { return c.fn(ctx) }
