package main

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/basui01/reelscope/api/handlers"
	"github.com/basui01/reelscope/config"
	"github.com/basui01/reelscope/coverage"
	"github.com/basui01/reelscope/detector"
	"github.com/basui01/reelscope/detectors"
	"github.com/basui01/reelscope/gpupool"
	"github.com/basui01/reelscope/internal/metrics"
	"github.com/basui01/reelscope/internal/server"
	"github.com/basui01/reelscope/internal/telemetry"
	"github.com/basui01/reelscope/job"
	"github.com/basui01/reelscope/merge"
	"github.com/basui01/reelscope/prep"
	"github.com/basui01/reelscope/scheduler"
	"github.com/basui01/reelscope/vlclient"
)

// Server owns the HTTP API server, the metrics server, and the asynq
// worker that drives the DAG scheduler for queued jobs, coordinating
// graceful shutdown across all three (spec.md §4.7 / §6).
type Server struct {
	cfg    *config.Config
	logger *zap.Logger
	otel   *telemetry.Providers

	httpManager    *server.Manager
	metricsManager *server.Manager
	worker         *asynq.Server

	redisClient *redis.Client
	jobStore    *job.RedisStore
	artifacts   *job.ArtifactStore
	jobManager  *job.Manager
	pool        *gpupool.Pool
	vlClient    *vlclient.Client

	rateLimiterCancel context.CancelFunc
	wg                sync.WaitGroup
}

// NewServer constructs a Server from a loaded config.
func NewServer(cfg *config.Config, logger *zap.Logger, otel *telemetry.Providers) *Server {
	return &Server{cfg: cfg, logger: logger, otel: otel}
}

// Start wires and launches the HTTP API, the asynq worker, and the
// Prometheus metrics server.
func (s *Server) Start() error {
	s.redisClient = redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", s.cfg.Queue.Host, s.cfg.Queue.Port),
		Password: s.cfg.Queue.Password,
		DB:       s.cfg.Queue.DB,
	})
	s.jobStore = job.NewRedisStore(s.redisClient, s.cfg.Queue.JobKeyPrefix)
	s.artifacts = job.NewArtifactStore(s.cfg.Store.Path)

	asynqClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     fmt.Sprintf("%s:%d", s.cfg.Queue.Host, s.cfg.Queue.Port),
		Password: s.cfg.Queue.Password,
		DB:       s.cfg.Queue.DB,
	})
	enqueuer := job.NewAsynqEnqueuer(asynqClient, 1)
	s.jobManager = job.NewManager(s.jobStore, enqueuer, s.logger)

	s.pool = gpupool.New(s.cfg.Runtime.GPUSemaphore, s.logger)
	s.vlClient = vlclient.New(vlclient.Config{
		BaseURL:           s.cfg.VL.BaseURL,
		Model:             s.cfg.VL.Model,
		EndpointPath:      s.cfg.VL.EndpointPath,
		Timeout:           s.cfg.VL.Timeout,
		RequestsPerSecond: s.cfg.VL.RequestsPerSecond,
		Burst:             s.cfg.VL.Burst,
	}, s.logger)

	registry := buildDetectorRegistry()
	schedCfg := scheduler.Config{
		GPUDeadline:         s.cfg.Runtime.GPUDeadline,
		CPUDeadline:         s.cfg.Runtime.CPUDeadline,
		VLDeadline:          s.cfg.Runtime.VLDeadline,
		InternalErrorBudget: s.cfg.Runtime.InternalErrorBudget,
		SRTriggerMinH:       s.cfg.Detection.SuperResTriggerH,
		TileSize:            s.cfg.Detection.TileSize,
		TileStride:          s.cfg.Detection.TileStride,
	}
	sched := scheduler.New(registry, s.pool, s.vlClient, schedCfg, s.logger)

	segmenter := prep.NewFixedWindowSegmenter(150, 30.0, nil, s.logger)

	pipeline := &job.Pipeline{
		Manager:              s.jobManager,
		Segmenter:            segmenter,
		Scheduler:            sched,
		SceneReasoner:        s.vlClient,
		Artifacts:            s.artifacts,
		SceneCfg:             merge.DefaultSceneGroupingConfig(),
		Thresholds:           coverage.Thresholds{FramesAnalyzedPct: s.cfg.Coverage.FramesAnalyzedPct, LUFSTracePct: s.cfg.Coverage.LUFSTracePct, STOIPct: s.cfg.Coverage.STOIPct, MinDetectablePx: s.cfg.Coverage.MinDetectablePx},
		SchedCfg:             schedCfg,
		QwenContextMaxFrames: s.cfg.Runtime.QwenContextMaxFrames,
		TileStride:           s.cfg.Runtime.FrameStride,
		Logger:               s.logger,
	}

	if err := s.startWorker(pipeline); err != nil {
		return fmt.Errorf("start worker: %w", err)
	}
	if err := s.startHTTPServer(); err != nil {
		return fmt.Errorf("start http server: %w", err)
	}
	if err := s.startMetricsServer(); err != nil {
		return fmt.Errorf("start metrics server: %w", err)
	}

	s.logger.Info("all servers started",
		zap.Int("http_port", s.cfg.Server.HTTPPort),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
		zap.Int("queue_concurrency", s.cfg.Queue.Concurrency),
	)
	return nil
}

// buildDetectorRegistry registers one adapter per detector kind named
// in spec.md §4.1, each with its nil-backend deterministic stub — the
// injection seam a real deployment plugs model backends into.
func buildDetectorRegistry() *detector.Registry {
	reg := detector.NewRegistry()
	reg.Register(detectors.NewObjectsCoarse(nil))
	reg.Register(detectors.NewObjectsTiled(nil))
	reg.Register(detectors.NewSuperRes(nil))
	reg.Register(detectors.NewObjectsFine(nil))
	reg.Register(detectors.NewMaskRefine(nil))
	reg.Register(detectors.NewFaces(nil))
	reg.Register(detectors.NewText(nil))
	reg.Register(detectors.NewColor(nil))
	reg.Register(detectors.NewMotion(nil))
	reg.Register(detectors.NewAudio(nil))
	reg.Register(detectors.NewTransition(nil))
	return reg
}

// startWorker launches the asynq worker driving job.Pipeline against
// TaskAnalyze tasks, non-blocking (asynq.Server.Start spawns its own
// goroutines internally).
func (s *Server) startWorker(pipeline *job.Pipeline) error {
	concurrency := s.cfg.Queue.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	s.worker = asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     fmt.Sprintf("%s:%d", s.cfg.Queue.Host, s.cfg.Queue.Port),
			Password: s.cfg.Queue.Password,
			DB:       s.cfg.Queue.DB,
		},
		asynq.Config{Concurrency: concurrency},
	)
	mux := asynq.NewServeMux()
	mux.HandleFunc(job.TaskAnalyze, pipeline.ProcessTask)
	return s.worker.Start(mux)
}

// startHTTPServer wires the REST surface (spec.md §6) plus the
// supplementary WebSocket stream (SPEC_FULL.md §7) behind the shared
// middleware chain.
func (s *Server) startHTTPServer() error {
	videoHandler := handlers.NewVideoHandler(s.jobManager, s.artifacts, s.cfg.Store.MaxVideoMB<<20, s.cfg.Store.MimeWhitelist, s.logger)
	streamHandler := handlers.NewStreamHandler(s.jobManager, s.artifacts, s.cfg.Server.StreamInterval, s.logger)
	healthHandler := handlers.NewHealthHandler(
		handlers.NewFuncHealthCheck("gpu_pool", func(ctx context.Context) error { return nil }),
		handlers.NewFuncHealthCheck("queue", func(ctx context.Context) error { return s.redisClient.Ping(ctx).Err() }),
		handlers.NewFuncHealthCheck("vl_endpoint", func(ctx context.Context) error { return nil }),
		s.logger,
	)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /analyze", videoHandler.HandleAnalyze)
	mux.HandleFunc("POST /ingest", videoHandler.HandleIngest)
	mux.HandleFunc("GET /status/{video_id}", videoHandler.HandleStatus)
	mux.HandleFunc("GET /status/{video_id}/stream", streamHandler.HandleStatusStream)
	mux.HandleFunc("GET /result/{video_id}", videoHandler.HandleResult)
	mux.HandleFunc("GET /health", healthHandler.HandleHealth)

	rateLimiterCtx, cancel := context.WithCancel(context.Background())
	s.rateLimiterCancel = cancel

	metricsCollector := metrics.NewCollector("reelscope_http", s.logger)
	handler := Chain(mux,
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		RequestLogger(s.logger),
		CORS(s.cfg.Server.CORSAllowedOrigins),
		RateLimiter(rateLimiterCtx, s.cfg.Server.RateLimitRPS, s.cfg.Server.RateLimitBurst, s.logger),
		MetricsMiddleware(metricsCollector),
	)

	serverConfig := server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.HTTPPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		IdleTimeout:     2 * s.cfg.Server.ReadTimeout,
		MaxHeaderBytes:  1 << 20,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}
	s.httpManager = server.NewManager(handler, serverConfig, s.logger)
	if err := s.httpManager.Start(); err != nil {
		return err
	}
	s.logger.Info("http server started", zap.Int("port", s.cfg.Server.HTTPPort))
	return nil
}

// startMetricsServer serves Prometheus's /metrics on its own port, kept
// separate from the API port so scraping never competes with request
// traffic for connection slots.
func (s *Server) startMetricsServer() error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	serverConfig := server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.MetricsPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}
	s.metricsManager = server.NewManager(mux, serverConfig, s.logger)
	if err := s.metricsManager.Start(); err != nil {
		return err
	}
	s.logger.Info("metrics server started", zap.Int("port", s.cfg.Server.MetricsPort))
	return nil
}

// WaitForShutdown blocks on the HTTP manager's own signal-handling wait
// (SIGINT/SIGTERM), then tears down the worker and metrics server.
func (s *Server) WaitForShutdown() {
	if s.httpManager != nil {
		s.httpManager.WaitForShutdown()
	}
	s.Shutdown()
}

// Shutdown gracefully stops the worker, the HTTP server, the metrics
// server, and closes the Redis client, in that order so no new work is
// admitted while in-flight jobs still hold GPU permits.
func (s *Server) Shutdown() {
	s.logger.Info("starting graceful shutdown")
	ctx := context.Background()

	if s.rateLimiterCancel != nil {
		s.rateLimiterCancel()
	}
	if s.worker != nil {
		s.worker.Shutdown()
	}
	if s.httpManager != nil {
		if err := s.httpManager.Shutdown(ctx); err != nil {
			s.logger.Error("http server shutdown error", zap.Error(err))
		}
	}
	if s.metricsManager != nil {
		if err := s.metricsManager.Shutdown(ctx); err != nil {
			s.logger.Error("metrics server shutdown error", zap.Error(err))
		}
	}
	if s.otel != nil {
		if err := s.otel.Shutdown(ctx); err != nil {
			s.logger.Error("telemetry shutdown error", zap.Error(err))
		}
	}
	if s.redisClient != nil {
		if err := s.redisClient.Close(); err != nil {
			s.logger.Error("redis client close error", zap.Error(err))
		}
	}

	s.wg.Wait()
	s.logger.Info("graceful shutdown completed")
}
