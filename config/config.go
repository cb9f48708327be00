package config

import "time"

// Config is the orchestrator's complete configuration surface:
// spec.md §6's recognized options plus the ambient runtime knobs
// (server, queue, VL endpoint, logging, telemetry) SPEC_FULL.md adds
// around them.
type Config struct {
	Store     StoreConfig     `yaml:"store" env:"STORE"`
	Detection DetectionConfig `yaml:"detection" env:"DETECTION"`
	Audio     AudioConfig     `yaml:"audio" env:"AUDIO"`
	Runtime   RuntimeConfig   `yaml:"runtime" env:"RUNTIME"`
	Ablation  AblationConfig  `yaml:"ablation" env:"ABLATION"`
	Coverage  CoverageConfig  `yaml:"coverage" env:"COVERAGE"`
	VL        VLConfig        `yaml:"vl" env:"VL"`
	Queue     QueueConfig     `yaml:"queue" env:"QUEUE"`
	Server    ServerConfig    `yaml:"server" env:"SERVER"`
	Log       LogConfig       `yaml:"log" env:"LOG"`
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`
}

// StoreConfig governs the persisted state layout (spec.md §6's
// store/<video_id>/{video.mp4,audio.wav,frames/,vab.json}) and the
// ingest admission rules guarding it.
type StoreConfig struct {
	// Path is the store root. Settable through the nested
	// REELSCOPE_STORE_PATH form and the bare STORE_PATH environment
	// variable spec.md §6 names literally; the bare one is applied last
	// and wins when both are set.
	Path string `yaml:"path" env:"PATH"`
	// MaxVideoMB bounds POST /ingest's accepted upload size. Overridden
	// by the bare MAX_VIDEO_MB environment variable.
	MaxVideoMB int64 `yaml:"max_video_mb" env:"MAX_VIDEO_MB"`
	// MimeWhitelist lists the multipart file part Content-Types POST
	// /ingest accepts. Overridden by the bare MIME_WHITELIST
	// environment variable (comma-separated).
	MimeWhitelist []string `yaml:"mime_whitelist" env:"MIME_WHITELIST"`
}

// DetectionConfig carries spec.md §6's Detection options.
type DetectionConfig struct {
	TileSize         int  `yaml:"tile_size" env:"TILE_SIZE"`
	TileStride       int  `yaml:"tile_stride" env:"TILE_STRIDE"`
	SuperResEnabled  bool `yaml:"superres_enabled" env:"SUPERRES_ENABLED"`
	SuperResTriggerH int  `yaml:"superres_trigger_min_h" env:"SUPERRES_TRIGGER_MIN_H"`
	SmallObjectMinPx int  `yaml:"small_object_min_px" env:"SMALL_OBJECT_MIN_PX"`
}

// AudioConfig carries spec.md §6's Audio options.
type AudioConfig struct {
	LoudnessTargetLUFS float64 `yaml:"loudness_target_lufs" env:"LOUDNESS_TARGET_LUFS"`
	STOIEnabled        bool    `yaml:"stoi_enabled" env:"STOI_ENABLED"`
	STOIMinOK          float64 `yaml:"stoi_min_ok" env:"STOI_MIN_OK"`
}

// RuntimeConfig carries spec.md §6's Runtime options.
type RuntimeConfig struct {
	FrameStride          int      `yaml:"frame_stride" env:"FRAME_STRIDE"`
	GPUSemaphore         int      `yaml:"gpu_semaphore" env:"GPU_SEMAPHORE"`
	QwenContextMaxFrames int      `yaml:"qwen_context_max_frames" env:"QWEN_CONTEXT_MAX_FRAMES"`
	OOMFallbackOrder     []string `yaml:"oom_fallback_order" env:"OOM_FALLBACK_ORDER"`

	GPUDeadline         time.Duration `yaml:"gpu_deadline" env:"GPU_DEADLINE"`
	CPUDeadline         time.Duration `yaml:"cpu_deadline" env:"CPU_DEADLINE"`
	VLDeadline          time.Duration `yaml:"vl_deadline" env:"VL_DEADLINE"`
	InternalErrorBudget float64       `yaml:"internal_error_budget" env:"INTERNAL_ERROR_BUDGET"`
}

// AblationConfig carries spec.md §6's Ablation options — the
// process-wide default for jobs that don't set their own per-request
// ablations in the POST /analyze body.
type AblationConfig struct {
	NoSR       bool `yaml:"no_sr" env:"NO_SR"`
	NoTiling   bool `yaml:"no_tiling" env:"NO_TILING"`
	LightAudio bool `yaml:"light_audio" env:"LIGHT_AUDIO"`
}

// CoverageConfig carries spec.md §6's coverage-gate thresholds.
type CoverageConfig struct {
	FramesAnalyzedPct float64 `yaml:"frames_analyzed_pct" env:"FRAMES_ANALYZED_PCT"`
	LUFSTracePct      float64 `yaml:"lufs_trace_pct" env:"LUFS_TRACE_PCT"`
	STOIPct           float64 `yaml:"stoi_pct" env:"STOI_PCT"`
	MinDetectablePx   int     `yaml:"min_detectable_px" env:"MIN_DETECTABLE_PX"`
}

// VLConfig carries the VL endpoint contract's connection settings.
// BaseURL and Model are overridden by the bare VL_API_BASE/VL_MODEL
// environment variables, per spec.md §6.
type VLConfig struct {
	BaseURL           string        `yaml:"base_url" env:"BASE_URL"`
	Model             string        `yaml:"model" env:"MODEL"`
	EndpointPath      string        `yaml:"endpoint_path" env:"ENDPOINT_PATH"`
	Timeout           time.Duration `yaml:"timeout" env:"TIMEOUT"`
	RequestsPerSecond float64       `yaml:"requests_per_second" env:"REQUESTS_PER_SECOND"`
	Burst             int           `yaml:"burst" env:"BURST"`
}

// QueueConfig carries the asynq/Redis connection settings. Host/Port
// are overridden by the bare QUEUE_HOST/QUEUE_PORT environment
// variables, per spec.md §6.
type QueueConfig struct {
	Host          string `yaml:"host" env:"HOST"`
	Port          int    `yaml:"port" env:"PORT"`
	Password      string `yaml:"password" env:"PASSWORD"`
	DB            int    `yaml:"db" env:"DB"`
	Concurrency   int    `yaml:"concurrency" env:"CONCURRENCY"`
	JobKeyPrefix  string `yaml:"job_key_prefix" env:"JOB_KEY_PREFIX"`
}

// ServerConfig carries the HTTP/metrics server's listen settings.
type ServerConfig struct {
	HTTPPort        int           `yaml:"http_port" env:"HTTP_PORT"`
	MetricsPort     int           `yaml:"metrics_port" env:"METRICS_PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	StreamInterval  time.Duration `yaml:"stream_interval" env:"STREAM_INTERVAL"`

	CORSAllowedOrigins []string `yaml:"cors_allowed_origins" env:"CORS_ALLOWED_ORIGINS"`
	RateLimitRPS       float64  `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS"`
	RateLimitBurst     int      `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST"`
}

// LogConfig carries zap logger construction settings.
type LogConfig struct {
	Level            string `yaml:"level" env:"LEVEL"`
	Format           string `yaml:"format" env:"FORMAT"`
	EnableCaller     bool   `yaml:"enable_caller" env:"ENABLE_CALLER"`
	EnableStacktrace bool   `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// TelemetryConfig carries OpenTelemetry exporter settings for the
// vlclient round-trip tracing.
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled" env:"ENABLED"`
	OTLPEndpoint string  `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	ServiceName  string  `yaml:"service_name" env:"SERVICE_NAME"`
	SampleRate   float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}
