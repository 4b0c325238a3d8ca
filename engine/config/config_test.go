package config

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(WithEnvMap(nil))
	require.NoError(t, err)
	assert.Equal(t, 63, cfg.IPDMillimeters)
	assert.Equal(t, 11, cfg.PredictionMs)
	assert.Equal(t, TargetAuto, cfg.Target)
	assert.Equal(t, -1, cfg.DirectModeIndex)
	assert.Equal(t, time.Second/60, cfg.FramePeriod)
	assert.InDelta(t, 0.063, cfg.IPDMeters(), 1e-6)
}

func TestLoadEnv(t *testing.T) {
	cfg, err := Load(WithEnvMap(map[string]string{
		"OXR_DEBUG_ENTRYPOINTS":   "true",
		"OXR_BREAK_ON_ERROR":      "1",
		"OXR_NO_PRINTING_STDERR":  "TRUE",
		"OXR_DEBUG_IPD_MM":        "70",
		"OXR_DEBUG_PREDICTION_MS": "20",
		"OXR_LOG":                 "debug",
		"OXR_TARGET":              "headless",
		"OXR_FRAME_PERIOD_MS":     "11.111",
	}))
	require.NoError(t, err)
	assert.True(t, cfg.DebugEntrypoints)
	assert.True(t, cfg.BreakOnError)
	assert.True(t, cfg.NoPrintingStderr)
	assert.Equal(t, 70, cfg.IPDMillimeters)
	assert.Equal(t, 20*time.Millisecond, cfg.StaticPrediction())
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.Equal(t, TargetHeadless, cfg.Target)
	assert.InDelta(t, 11.111, float64(cfg.FramePeriod)/float64(time.Millisecond), 1e-6)
}

func TestLoadEnvRejectsMalformed(t *testing.T) {
	_, err := Load(WithEnvMap(map[string]string{"OXR_DEBUG_IPD_MM": "wide"}))
	assert.Error(t, err)
	_, err = Load(WithEnvMap(map[string]string{"OXR_TARGET": "hologram"}))
	assert.Error(t, err)
}

func TestLoadFileThenEnv(t *testing.T) {
	file := []byte(`
ipd_mm = 65
target = "window"
log_level = "info"
frame_period_ms = 8.0

[window]
title = "bench"
width = 640
`)
	read := func(string) ([]byte, error) { return file, nil }

	cfg, err := Load(
		WithFile("oxr.toml"),
		WithFileReader(read),
		WithEnvMap(map[string]string{"OXR_DEBUG_IPD_MM": "60"}),
	)
	require.NoError(t, err)
	assert.Equal(t, 60, cfg.IPDMillimeters, "environment overrides the file")
	assert.Equal(t, TargetWindow, cfg.Target)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.Equal(t, 8*time.Millisecond, cfg.FramePeriod)
	assert.Equal(t, "bench", cfg.Window.Title)
	assert.Equal(t, 640, cfg.Window.Width)
	assert.Equal(t, 720, cfg.Window.Height)
}

func TestLoadFileErrors(t *testing.T) {
	_, err := Load(
		WithEnvMap(map[string]string{"OXR_CONFIG_FILE": "missing.toml"}),
		WithFileReader(func(string) ([]byte, error) { return nil, errors.New("no such file") }),
	)
	assert.ErrorContains(t, err, "missing.toml")

	_, err = Load(WithFile("bad.toml"), WithFileReader(func(string) ([]byte, error) {
		return []byte("ipd_mm = ["), nil
	}), WithEnvMap(nil))
	assert.Error(t, err)
}

func TestContextRoundTrip(t *testing.T) {
	assert.Equal(t, Default(), FromContext(context.Background()))

	cfg := Default()
	cfg.DebugViews = true
	ctx := WithContext(context.Background(), cfg)
	assert.True(t, FromContext(ctx).DebugViews)
}

func TestNewLoggerSinks(t *testing.T) {
	var out, errOut bytes.Buffer

	cfg := Default()
	cfg.LogLevel = slog.LevelInfo
	cfg.newLogger(&out, &errOut).Info("hello")
	assert.Empty(t, out.String())
	assert.Contains(t, errOut.String(), "hello")

	out.Reset()
	errOut.Reset()
	cfg.NoPrintingStderr = true
	cfg.newLogger(&out, &errOut).Info("moved")
	assert.Contains(t, out.String(), "moved")
	assert.Empty(t, errOut.String())

	out.Reset()
	cfg.NoPrinting = true
	cfg.newLogger(&out, &errOut).Error("silent")
	assert.Empty(t, out.String())
}
