// Package config captures process-wide runtime settings once, at instance creation, and
// carries them through context.Context.
package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// TargetMode selects the compositor presentation backend.
type TargetMode string

const (
	TargetAuto     TargetMode = "auto"
	TargetWindow   TargetMode = "window"
	TargetHeadless TargetMode = "headless"
	TargetDirect   TargetMode = "direct"
)

// Config is the immutable runtime configuration. Callers receive copies.
type Config struct {
	// DebugEntrypoints logs every call of an entrypoint resolved through GetProcAddr.
	DebugEntrypoints bool `toml:"debug_entrypoints"`
	// BreakOnError traps on every error except function-unsupported.
	BreakOnError bool `toml:"break_on_error"`
	// NoPrinting silences every log sink.
	NoPrinting bool `toml:"no_printing"`
	// NoPrintingStderr moves log output from stderr to stdout.
	NoPrintingStderr bool `toml:"no_printing_stderr"`
	// IPDMillimeters is the interpupillary distance used by the default HMD.
	IPDMillimeters int `toml:"ipd_mm"`
	// PredictionMs is the present-to-display offset used when DynamicPrediction is off.
	PredictionMs int `toml:"prediction_ms"`
	// DynamicPrediction enables feedback-driven display time prediction. When off, every
	// pacer predicts display as desired present plus PredictionMs.
	DynamicPrediction bool `toml:"dynamic_prediction"`
	// DebugViews logs the per-eye view poses returned by locate-views.
	DebugViews bool `toml:"debug_views"`
	// LogLevel is the minimum level written by the runtime logger.
	LogLevel slog.Level `toml:"-"`
	// Target selects the presentation backend.
	Target TargetMode `toml:"target"`
	// DirectModeIndex pins a display mode on direct targets; -1 selects automatically.
	DirectModeIndex int `toml:"direct_mode_index"`
	// FramePeriod is the nominal display refresh interval used before real timing is known.
	FramePeriod time.Duration `toml:"-"`
	// Window holds settings for the windowed target.
	Window WindowConfig `toml:"window"`
}

// WindowConfig configures the desktop preview window.
type WindowConfig struct {
	Title  string `toml:"title"`
	Width  int    `toml:"width"`
	Height int    `toml:"height"`
}

// fileConfig mirrors Config for TOML decoding; pointer fields distinguish unset values.
type fileConfig struct {
	DebugEntrypoints  *bool         `toml:"debug_entrypoints"`
	BreakOnError      *bool         `toml:"break_on_error"`
	NoPrinting        *bool         `toml:"no_printing"`
	NoPrintingStderr  *bool         `toml:"no_printing_stderr"`
	IPDMillimeters    *int          `toml:"ipd_mm"`
	PredictionMs      *int          `toml:"prediction_ms"`
	DynamicPrediction *bool         `toml:"dynamic_prediction"`
	DebugViews        *bool         `toml:"debug_views"`
	LogLevel          *string       `toml:"log_level"`
	Target            *string       `toml:"target"`
	DirectModeIndex   *int          `toml:"direct_mode_index"`
	FramePeriodMs     *float64      `toml:"frame_period_ms"`
	Window            *WindowConfig `toml:"window"`
}

// Default returns the built-in configuration.
//
// Returns:
//   - Config: the defaults
func Default() Config {
	return Config{
		IPDMillimeters:    63,
		PredictionMs:      11,
		DynamicPrediction: true,
		LogLevel:          slog.LevelWarn,
		Target:            TargetAuto,
		DirectModeIndex:   -1,
		FramePeriod:       time.Second / 60,
		Window: WindowConfig{
			Title:  "oxy-xr preview",
			Width:  1280,
			Height: 720,
		},
	}
}

// Load builds a Config from defaults, an optional TOML file and the environment, in that
// order of precedence (environment wins).
//
// Parameters:
//   - options: functional options for the loader (environment source, file path)
//
// Returns:
//   - Config: the resolved configuration
//   - error: error if the config file cannot be read or decoded, or a value is malformed
func Load(options ...LoaderOption) (Config, error) {
	l := &loader{lookup: os.LookupEnv, readFile: os.ReadFile}
	for _, opt := range options {
		opt(l)
	}

	cfg := Default()

	path := l.file
	if path == "" {
		path, _ = l.lookup("OXR_CONFIG_FILE")
	}
	if path != "" {
		data, err := l.readFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file %q: %w", path, err)
		}
		if err := applyTOML(&cfg, data); err != nil {
			return Config{}, fmt.Errorf("decode config file %q: %w", path, err)
		}
	}

	if err := applyEnv(&cfg, l.lookup); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyTOML(cfg *Config, data []byte) error {
	var fc fileConfig
	if err := toml.Unmarshal(data, &fc); err != nil {
		return err
	}
	setIf(&cfg.DebugEntrypoints, fc.DebugEntrypoints)
	setIf(&cfg.BreakOnError, fc.BreakOnError)
	setIf(&cfg.NoPrinting, fc.NoPrinting)
	setIf(&cfg.NoPrintingStderr, fc.NoPrintingStderr)
	setIf(&cfg.IPDMillimeters, fc.IPDMillimeters)
	setIf(&cfg.PredictionMs, fc.PredictionMs)
	setIf(&cfg.DynamicPrediction, fc.DynamicPrediction)
	setIf(&cfg.DebugViews, fc.DebugViews)
	setIf(&cfg.DirectModeIndex, fc.DirectModeIndex)
	if fc.LogLevel != nil {
		lvl, err := ParseLevel(*fc.LogLevel)
		if err != nil {
			return err
		}
		cfg.LogLevel = lvl
	}
	if fc.Target != nil {
		t, err := parseTarget(*fc.Target)
		if err != nil {
			return err
		}
		cfg.Target = t
	}
	if fc.FramePeriodMs != nil && *fc.FramePeriodMs > 0 {
		cfg.FramePeriod = time.Duration(*fc.FramePeriodMs * float64(time.Millisecond))
	}
	if fc.Window != nil {
		cfg.Window.Title = coalesce(fc.Window.Title, cfg.Window.Title)
		if fc.Window.Width > 0 {
			cfg.Window.Width = fc.Window.Width
		}
		if fc.Window.Height > 0 {
			cfg.Window.Height = fc.Window.Height
		}
	}
	return nil
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	bools := []struct {
		key string
		dst *bool
	}{
		{"OXR_DEBUG_ENTRYPOINTS", &cfg.DebugEntrypoints},
		{"OXR_BREAK_ON_ERROR", &cfg.BreakOnError},
		{"OXR_NO_PRINTING", &cfg.NoPrinting},
		{"OXR_NO_PRINTING_STDERR", &cfg.NoPrintingStderr},
		{"OXR_DYNAMIC_PREDICTION", &cfg.DynamicPrediction},
		{"OXR_DEBUG_VIEWS", &cfg.DebugViews},
	}
	for _, b := range bools {
		v, ok := lookup(b.key)
		if !ok || v == "" {
			continue
		}
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", b.key, err)
		}
		*b.dst = parsed
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"OXR_DEBUG_IPD_MM", &cfg.IPDMillimeters},
		{"OXR_DEBUG_PREDICTION_MS", &cfg.PredictionMs},
		{"OXR_DIRECT_MODE_INDEX", &cfg.DirectModeIndex},
	}
	for _, i := range ints {
		v, ok := lookup(i.key)
		if !ok || v == "" {
			continue
		}
		parsed, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", i.key, err)
		}
		*i.dst = parsed
	}

	if v, ok := lookup("OXR_LOG"); ok && v != "" {
		lvl, err := ParseLevel(v)
		if err != nil {
			return fmt.Errorf("OXR_LOG: %w", err)
		}
		cfg.LogLevel = lvl
	}
	if v, ok := lookup("OXR_TARGET"); ok && v != "" {
		t, err := parseTarget(v)
		if err != nil {
			return fmt.Errorf("OXR_TARGET: %w", err)
		}
		cfg.Target = t
	}
	if v, ok := lookup("OXR_FRAME_PERIOD_MS"); ok && v != "" {
		ms, err := strconv.ParseFloat(v, 64)
		if err != nil || ms <= 0 {
			return fmt.Errorf("OXR_FRAME_PERIOD_MS: invalid period %q", v)
		}
		cfg.FramePeriod = time.Duration(ms * float64(time.Millisecond))
	}
	return nil
}

// ParseLevel maps trace|debug|info|warn|error to a slog level.
//
// Parameters:
//   - s: the level name, case-insensitive
//
// Returns:
//   - slog.Level: the parsed level
//   - error: error if the name is unknown
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace", "t":
		return slog.LevelDebug - 4, nil
	case "debug", "d":
		return slog.LevelDebug, nil
	case "info", "i":
		return slog.LevelInfo, nil
	case "warn", "warning", "w":
		return slog.LevelWarn, nil
	case "error", "e":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("unknown log level %q", s)
}

func parseTarget(s string) (TargetMode, error) {
	switch t := TargetMode(strings.ToLower(strings.TrimSpace(s))); t {
	case TargetAuto, TargetWindow, TargetHeadless, TargetDirect:
		return t, nil
	}
	return "", fmt.Errorf("unknown target %q", s)
}

// IPDMeters returns the configured interpupillary distance in meters.
func (c Config) IPDMeters() float32 {
	return float32(c.IPDMillimeters) / 1000
}

// StaticPrediction returns the static prediction offset.
func (c Config) StaticPrediction() time.Duration {
	return time.Duration(c.PredictionMs) * time.Millisecond
}

type ctxKey struct{}

// WithContext returns a child context carrying cfg.
//
// Parameters:
//   - ctx: the parent context
//   - cfg: the configuration to attach
//
// Returns:
//   - context.Context: the derived context
func WithContext(ctx context.Context, cfg Config) context.Context {
	return context.WithValue(ctx, ctxKey{}, cfg)
}

// FromContext returns the configuration attached to ctx, or Default if none is attached.
//
// Parameters:
//   - ctx: the context to inspect
//
// Returns:
//   - Config: the attached or default configuration
func FromContext(ctx context.Context) Config {
	if ctx != nil {
		if cfg, ok := ctx.Value(ctxKey{}).(Config); ok {
			return cfg
		}
	}
	return Default()
}

func setIf[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}

func coalesce(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
