package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 8080, cfg.Server.HTTPPort)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)

	assert.Equal(t, 512, cfg.Detection.TileSize)
	assert.Equal(t, 256, cfg.Detection.TileStride)
	assert.Equal(t, 720, cfg.Detection.SuperResTriggerH)

	assert.Equal(t, 0.8, cfg.Audio.STOIMinOK)

	assert.Equal(t, 1, cfg.Runtime.FrameStride)
	assert.Equal(t, 4, cfg.Runtime.GPUSemaphore)
	assert.Equal(t, 16, cfg.Runtime.QwenContextMaxFrames)

	assert.Equal(t, 99.0, cfg.Coverage.FramesAnalyzedPct)
	assert.Equal(t, 100.0, cfg.Coverage.LUFSTracePct)
	assert.Equal(t, 90.0, cfg.Coverage.STOIPct)
	assert.Equal(t, 8, cfg.Coverage.MinDetectablePx)

	assert.Equal(t, "store", cfg.Store.Path)
	assert.Equal(t, "http://localhost:8000", cfg.VL.BaseURL)
	assert.Equal(t, "localhost", cfg.Queue.Host)
}

func TestLoader_LoadDefaults(t *testing.T) {
	cfg, err := NewLoader().Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, 8080, cfg.Server.HTTPPort)
}

func TestLoader_LoadFromYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlContent := `
server:
  http_port: 8888
detection:
  tile_size: 1024
  tile_stride: 512
runtime:
  gpu_semaphore: 8
`
	require.NoError(t, os.WriteFile(configPath, []byte(yamlContent), 0o644))

	cfg, err := NewLoader().WithConfigPath(configPath).Load()
	require.NoError(t, err)
	assert.Equal(t, 8888, cfg.Server.HTTPPort)
	assert.Equal(t, 1024, cfg.Detection.TileSize)
	assert.Equal(t, 512, cfg.Detection.TileStride)
	assert.Equal(t, 8, cfg.Runtime.GPUSemaphore)
	// Unset fields keep their default.
	assert.Equal(t, "store", cfg.Store.Path)
}

func TestLoader_MissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := NewLoader().WithConfigPath(filepath.Join(t.TempDir(), "missing.yaml")).Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.HTTPPort)
}

func TestLoader_NestedEnvOverride(t *testing.T) {
	t.Setenv("REELSCOPE_RUNTIME_GPU_SEMAPHORE", "12")
	cfg, err := NewLoader().Load()
	require.NoError(t, err)
	assert.Equal(t, 12, cfg.Runtime.GPUSemaphore)
}

func TestLoader_NamedEnvOverridesWinOverNested(t *testing.T) {
	t.Setenv("STORE_PATH", "/mnt/reelscope-store")
	t.Setenv("MAX_VIDEO_MB", "4096")
	t.Setenv("MIME_WHITELIST", "video/mp4, video/webm")
	t.Setenv("VL_API_BASE", "http://vl-endpoint:9000")
	t.Setenv("VL_MODEL", "qwen-vl-72b")
	t.Setenv("QUEUE_HOST", "redis.internal")
	t.Setenv("QUEUE_PORT", "6380")
	t.Setenv("REELSCOPE_STORE_PATH", "/nested-store")
	t.Setenv("REELSCOPE_VL_BASE_URL", "http://nested-vl:1")
	t.Setenv("REELSCOPE_QUEUE_HOST", "nested-host")

	cfg, err := NewLoader().Load()
	require.NoError(t, err)
	assert.Equal(t, "/mnt/reelscope-store", cfg.Store.Path)
	assert.Equal(t, int64(4096), cfg.Store.MaxVideoMB)
	assert.Equal(t, []string{"video/mp4", "video/webm"}, cfg.Store.MimeWhitelist)
	assert.Equal(t, "http://vl-endpoint:9000", cfg.VL.BaseURL)
	assert.Equal(t, "qwen-vl-72b", cfg.VL.Model)
	assert.Equal(t, "redis.internal", cfg.Queue.Host)
	assert.Equal(t, 6380, cfg.Queue.Port)
}

func TestConfig_ValidateRejectsOutOfRangeValues(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server.HTTPPort = 0
	cfg.Detection.TileStride = cfg.Detection.TileSize + 1
	require.Error(t, cfg.Validate())
}

func TestConfig_ValidateRejectsNonPermutationFallbackOrder(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Runtime.OOMFallbackOrder = []string{"disable_superres", "unknown_step"}
	require.Error(t, cfg.Validate())
}

func TestConfig_ValidateAcceptsReorderedPermutation(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Runtime.OOMFallbackOrder = []string{
		"shrink_vl_context", "single_scale_tiling", "disable_mask_refine", "disable_superres",
	}
	require.NoError(t, cfg.Validate())
}
