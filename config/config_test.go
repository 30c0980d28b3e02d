package config_test

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nvr-ai/leafscan/config"
	"github.com/nvr-ai/leafscan/inference/providers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const baseConfig = `
log_level = "debug"

[server]
host = "127.0.0.1"
port = 9000
read_timeout = "30s"
max_upload_mb = 20

[detector]
model_path = "models/best.onnx"
input_size = 640
nms_threshold = 0.6
provider = "cuda"
intra_threads = 4

[detector.provider_options]
device_id = "1"

[ui]
default_confidence = 0.0
draw_boxes = false
`

const overlayConfig = `
[server]
port = 9090

[ui]
default_confidence = 0.5
`

// inTempDir runs the test from an empty directory so a stray leafscan.toml
// in the working tree cannot leak in.
func inTempDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	return dir
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func TestLoadDefaults(t *testing.T) {
	inTempDir(t)

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8501", cfg.Server.Addr())
	assert.Equal(t, time.Minute, cfg.Server.ReadTimeoutDuration())
	assert.Equal(t, 2*time.Minute, cfg.Server.WriteTimeoutDuration())
	assert.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeoutDuration())
	assert.Equal(t, int64(200<<20), cfg.Server.MaxUploadBytes())

	assert.Equal(t, "best.onnx", cfg.Detector.ModelPath)
	assert.Equal(t, 640, cfg.Detector.InputSize)
	assert.Equal(t, float32(0.7), cfg.Detector.NMSThreshold)
	require.NotNil(t, cfg.Detector.FloorConfidence)
	assert.Equal(t, float32(0.25), *cfg.Detector.FloorConfidence)
	assert.Equal(t, "cpu", cfg.Detector.Provider)

	opts := cfg.UI.Options()
	assert.Equal(t, float32(0.35), opts.Threshold)
	assert.True(t, opts.DrawBoxes)
	assert.Equal(t, 4096, cfg.UI.MaxImageSide)
	assert.Equal(t, 50_000_000, cfg.UI.MaxImagePixels)

	assert.Equal(t, slog.LevelInfo, cfg.Level())
	assert.Zero(t, cfg.ReportIntervalDuration())
	assert.Equal(t, "local", cfg.Env())
	assert.Empty(t, cfg.Knowledge.Path)
}

func TestLoadBaseAndOverlay(t *testing.T) {
	dir := inTempDir(t)
	writeFile(t, filepath.Join(dir, config.BaseConfigFile), baseConfig)
	writeFile(t, filepath.Join(dir, "leafscan.prod.toml"), overlayConfig)

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, slog.LevelDebug, cfg.Level())

	// Explicit zero and false survive defaulting.
	opts := cfg.UI.Options()
	assert.Equal(t, float32(0), opts.Threshold)
	assert.False(t, opts.DrawBoxes)

	t.Setenv(config.EnvLeafscanEnv, "prod")
	cfg, err = config.Load()
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, float32(0.5), cfg.UI.Options().Threshold)
	assert.False(t, cfg.UI.Options().DrawBoxes)
	assert.Equal(t, "prod", cfg.Env())
}

func TestEnvOverrides(t *testing.T) {
	dir := inTempDir(t)
	writeFile(t, filepath.Join(dir, config.BaseConfigFile), baseConfig)

	t.Setenv(config.EnvServerPort, "8088")
	t.Setenv(config.EnvDetectorModelPath, "/models/leaf.onnx")
	t.Setenv(config.EnvDetectorFloorConfidence, "0.1")
	t.Setenv(config.EnvUIDefaultConfidence, "0.6")
	t.Setenv(config.EnvUIDrawBoxes, "true")
	t.Setenv(config.EnvLeafscanReportInterval, "1m")
	t.Setenv(config.EnvUIMaxImagePixels, "-1")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, 8088, cfg.Server.Port)
	assert.Equal(t, "/models/leaf.onnx", cfg.Detector.ModelPath)
	assert.Equal(t, float32(0.1), *cfg.Detector.FloorConfidence)
	assert.Equal(t, float32(0.6), cfg.UI.Options().Threshold)
	assert.True(t, cfg.UI.Options().DrawBoxes)
	assert.Equal(t, time.Minute, cfg.ReportIntervalDuration())
	assert.Equal(t, -1, cfg.UI.MaxImagePixels)
}

func TestFloorConfidenceZero(t *testing.T) {
	dir := inTempDir(t)
	writeFile(t, filepath.Join(dir, config.BaseConfigFile), "[detector]\nfloor_confidence = 0.4\n")
	writeFile(t, filepath.Join(dir, "leafscan.nofloor.toml"), "[detector]\nfloor_confidence = 0.0\n")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, float32(0.4), cfg.Detector.Detectors().FloorConfidence)

	t.Setenv(config.EnvLeafscanEnv, "nofloor")
	cfg, err = config.Load()
	require.NoError(t, err)
	require.NotNil(t, cfg.Detector.FloorConfidence)
	assert.Zero(t, *cfg.Detector.FloorConfidence)
	assert.Zero(t, cfg.Detector.Detectors().FloorConfidence)

	t.Setenv(config.EnvLeafscanEnv, "")
	writeFile(t, filepath.Join(dir, config.BaseConfigFile), "[detector]\nfloor_confidence = 0\n")
	cfg, err = config.Load()
	require.NoError(t, err)
	assert.Zero(t, cfg.Detector.Detectors().FloorConfidence)
}

func TestDetectorsConversion(t *testing.T) {
	dir := inTempDir(t)
	writeFile(t, filepath.Join(dir, config.BaseConfigFile), baseConfig)

	cfg, err := config.Load()
	require.NoError(t, err)

	d := cfg.Detector.Detectors()
	assert.Equal(t, "models/best.onnx", d.ModelPath)
	assert.Equal(t, float32(0.6), d.NMSThreshold)
	assert.Equal(t, 300, d.MaxDetections)
	assert.Equal(t, providers.CUDAExecutionProvider, d.Optimization.ExecutionProvider.Provider)
	assert.Equal(t, "1", d.Optimization.ExecutionProvider.Options["device_id"])
	assert.Equal(t, 4, d.Optimization.IntraOpNumThreads)
	assert.NoError(t, d.Validate())
}

func TestLoadFile(t *testing.T) {
	dir := inTempDir(t)
	path := filepath.Join(dir, "custom.toml")
	writeFile(t, path, baseConfig)

	cfg, err := config.LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Server.Port)

	_, err = config.LoadFile(filepath.Join(dir, "missing.toml"))
	assert.Error(t, err)
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"bad toml", `[server`},
		{"bad port", "[server]\nport = 70000"},
		{"bad timeout", "[server]\nread_timeout = \"soon\""},
		{"bad provider", "[detector]\nprovider = \"tpu\""},
		{"bad input size", "[detector]\ninput_size = 500"},
		{"bad confidence", "[ui]\ndefault_confidence = 1.5"},
		{"bad floor", "[detector]\nfloor_confidence = -0.1"},
		{"bad log level", `log_level = "loud"`},
		{"missing knowledge", "[knowledge]\npath = \"nowhere.json\""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := inTempDir(t)
			writeFile(t, filepath.Join(dir, config.BaseConfigFile), tt.content)
			_, err := config.Load()
			assert.Error(t, err)
		})
	}
}

func TestDefault(t *testing.T) {
	t.Setenv(config.EnvServerPort, "9999")
	cfg, err := config.Default()
	require.NoError(t, err)
	assert.Equal(t, 9999, cfg.Server.Port)

	t.Setenv(config.EnvServerPort, "0")
	_, err = config.Default()
	assert.Error(t, err)
}
