// =============================================================================
// Default configuration
// =============================================================================
// Every default named in spec.md §4/§6: the 99%/100%/90%/8x8 coverage
// gate, 512/256 tile size/stride, 720p superres trigger, a 4-slot GPU
// semaphore, and the 120s/30s/60s GPU/CPU/VL deadlines.
// =============================================================================
package config

import "time"

// DefaultConfig returns the full default configuration.
func DefaultConfig() *Config {
	return &Config{
		Store:     DefaultStoreConfig(),
		Detection: DefaultDetectionConfig(),
		Audio:     DefaultAudioConfig(),
		Runtime:   DefaultRuntimeConfig(),
		Ablation:  AblationConfig{},
		Coverage:  DefaultCoverageConfig(),
		VL:        DefaultVLConfig(),
		Queue:     DefaultQueueConfig(),
		Server:    DefaultServerConfig(),
		Log:       DefaultLogConfig(),
		Telemetry: DefaultTelemetryConfig(),
	}
}

func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		Path:          "store",
		MaxVideoMB:    2048,
		MimeWhitelist: []string{"video/mp4", "video/quicktime", "video/x-matroska"},
	}
}

func DefaultDetectionConfig() DetectionConfig {
	return DetectionConfig{
		TileSize:         512,
		TileStride:       256,
		SuperResEnabled:  true,
		SuperResTriggerH: 720,
		SmallObjectMinPx: 8,
	}
}

func DefaultAudioConfig() AudioConfig {
	return AudioConfig{
		LoudnessTargetLUFS: -23.0,
		STOIEnabled:        true,
		STOIMinOK:          0.8,
	}
}

func DefaultRuntimeConfig() RuntimeConfig {
	return RuntimeConfig{
		FrameStride:          1,
		GPUSemaphore:         4,
		QwenContextMaxFrames: 16,
		OOMFallbackOrder: []string{
			"disable_mask_refine",
			"disable_superres",
			"shrink_vl_context",
			"single_scale_tiling",
		},
		GPUDeadline:         120 * time.Second,
		CPUDeadline:         30 * time.Second,
		VLDeadline:          60 * time.Second,
		InternalErrorBudget: 0.2,
	}
}

func DefaultCoverageConfig() CoverageConfig {
	return CoverageConfig{
		FramesAnalyzedPct: 99.0,
		LUFSTracePct:      100.0,
		STOIPct:           90.0,
		MinDetectablePx:   8,
	}
}

func DefaultVLConfig() VLConfig {
	return VLConfig{
		BaseURL:           "http://localhost:8000",
		Model:             "qwen-vl",
		EndpointPath:      "/v1/chat/completions",
		Timeout:           60 * time.Second,
		RequestsPerSecond: 2,
		Burst:             4,
	}
}

func DefaultQueueConfig() QueueConfig {
	return QueueConfig{
		Host:         "localhost",
		Port:         6379,
		DB:           0,
		Concurrency:  10,
		JobKeyPrefix: "reelscope:job:",
	}
}

func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        8080,
		MetricsPort:     9091,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 15 * time.Second,
		StreamInterval:  500 * time.Millisecond,
		RateLimitRPS:    5,
		RateLimitBurst:  10,
	}
}

func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "reelscope",
		SampleRate:   0.1,
	}
}
