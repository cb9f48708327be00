// =============================================================================
// Configuration loader
// =============================================================================
// Unified config loading: YAML file + environment variable overrides.
//
// Usage:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("config.yaml").
//	    Load()
//
// Priority: defaults -> YAML file -> nested REELSCOPE_* env vars ->
// spec.md §6's bare-named env vars (STORE_PATH, MAX_VIDEO_MB, ...),
// which win last since they're the names an operator is told to set.
// =============================================================================
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Loader loads a Config from defaults, an optional YAML file, and
// environment variables (builder pattern).
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader creates a new Loader.
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  "REELSCOPE",
		validators: []func(*Config) error{(*Config).Validate},
	}
}

// WithConfigPath sets the YAML config file path.
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix overrides the nested env var prefix (default REELSCOPE).
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator adds a config validator.
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load loads the config: defaults, then the YAML file if configured,
// then nested REELSCOPE_* env vars, then spec.md §6's bare-named env
// vars, then runs every validator.
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("config: load from file: %w", err)
		}
	}

	if err := l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix); err != nil {
		return nil, fmt.Errorf("config: load from env: %w", err)
	}

	applyNamedEnvOverrides(cfg)

	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config: validation failed: %w", err)
		}
	}

	return cfg, nil
}

func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}
		envKey := prefix + "_" + envTag

		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}
		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("set %s: %w", envKey, err)
		}
	}
	return nil
}

// applyNamedEnvOverrides applies spec.md §6's bare environment variable
// names, which don't follow the nested REELSCOPE_SECTION_FIELD scheme
// because they're named once, literally, in the configuration surface.
func applyNamedEnvOverrides(cfg *Config) {
	if v := os.Getenv("STORE_PATH"); v != "" {
		cfg.Store.Path = v
	}
	if v := os.Getenv("MAX_VIDEO_MB"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Store.MaxVideoMB = n
		}
	}
	if v := os.Getenv("MIME_WHITELIST"); v != "" {
		parts := strings.Split(v, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		cfg.Store.MimeWhitelist = parts
	}
	if v := os.Getenv("VL_API_BASE"); v != "" {
		cfg.VL.BaseURL = v
	}
	if v := os.Getenv("VL_MODEL"); v != "" {
		cfg.VL.Model = v
	}
	if v := os.Getenv("QUEUE_HOST"); v != "" {
		cfg.Queue.Host = v
	}
	if v := os.Getenv("QUEUE_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Queue.Port = n
		}
	}
}

func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetUint(u)

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}

	return nil
}

// MustLoad loads the config from path, panicking on failure.
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("config: failed to load: %v", err))
	}
	return cfg
}

// LoadFromEnv loads the config from environment variables only.
func LoadFromEnv() (*Config, error) {
	return NewLoader().Load()
}

var canonicalOOMOrder = []string{
	"disable_mask_refine",
	"disable_superres",
	"shrink_vl_context",
	"single_scale_tiling",
}

// Validate checks the config for internally-inconsistent values.
func (c *Config) Validate() error {
	var problems []string

	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		problems = append(problems, "server.http_port must be between 1 and 65535")
	}
	if c.Detection.TileSize <= 0 {
		problems = append(problems, "detection.tile_size must be positive")
	}
	if c.Detection.TileStride <= 0 || c.Detection.TileStride > c.Detection.TileSize {
		problems = append(problems, "detection.tile_stride must be positive and no larger than tile_size")
	}
	if c.Runtime.FrameStride <= 0 {
		problems = append(problems, "runtime.frame_stride must be positive")
	}
	if c.Runtime.GPUSemaphore <= 0 {
		problems = append(problems, "runtime.gpu_semaphore must be positive")
	}
	if c.Runtime.QwenContextMaxFrames <= 0 {
		problems = append(problems, "runtime.qwen_context_max_frames must be positive")
	}
	if c.Runtime.InternalErrorBudget < 0 || c.Runtime.InternalErrorBudget > 1 {
		problems = append(problems, "runtime.internal_error_budget must be between 0 and 1")
	}
	if len(c.Runtime.OOMFallbackOrder) > 0 && !sameElements(c.Runtime.OOMFallbackOrder, canonicalOOMOrder) {
		problems = append(problems, fmt.Sprintf("runtime.oom_fallback_order must be a permutation of %v", canonicalOOMOrder))
	}
	if c.Coverage.FramesAnalyzedPct < 0 || c.Coverage.FramesAnalyzedPct > 100 {
		problems = append(problems, "coverage.frames_analyzed_pct must be between 0 and 100")
	}
	if c.Store.MaxVideoMB <= 0 {
		problems = append(problems, "store.max_video_mb must be positive")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%s", strings.Join(problems, "; "))
	}
	return nil
}

func sameElements(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[string]struct{}, len(a))
	for _, s := range a {
		seen[s] = struct{}{}
	}
	for _, s := range b {
		if _, ok := seen[s]; !ok {
			return false
		}
	}
	return true
}
