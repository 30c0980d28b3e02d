package config

import (
	"os"
	"strconv"

	"github.com/nvr-ai/leafscan/inference/detectors"
	"github.com/nvr-ai/leafscan/inference/providers"
	"github.com/pkg/errors"
)

const (
	EnvDetectorModelPath       = "LEAFSCAN_DETECTOR_MODEL_PATH"
	EnvDetectorLibraryPath     = "LEAFSCAN_DETECTOR_LIBRARY_PATH"
	EnvDetectorLabelsPath      = "LEAFSCAN_DETECTOR_LABELS_PATH"
	EnvDetectorInputSize       = "LEAFSCAN_DETECTOR_INPUT_SIZE"
	EnvDetectorNMSThreshold    = "LEAFSCAN_DETECTOR_NMS_THRESHOLD"
	EnvDetectorFloorConfidence = "LEAFSCAN_DETECTOR_FLOOR_CONFIDENCE"
	EnvDetectorMaxDetections   = "LEAFSCAN_DETECTOR_MAX_DETECTIONS"
	EnvDetectorProvider        = "LEAFSCAN_DETECTOR_PROVIDER"
	EnvDetectorIntraThreads    = "LEAFSCAN_DETECTOR_INTRA_THREADS"
	EnvDetectorInterThreads    = "LEAFSCAN_DETECTOR_INTER_THREADS"
)

// DetectorConfig holds the ONNX detector parameters. FloorConfidence is a
// pointer because zero disables the candidate floor.
type DetectorConfig struct {
	ModelPath       string   `toml:"model_path"`
	LibraryPath     string   `toml:"library_path"`
	LabelsPath      string   `toml:"labels_path"`
	InputSize       int      `toml:"input_size"`
	NMSThreshold    float32  `toml:"nms_threshold"`
	FloorConfidence *float32 `toml:"floor_confidence"`
	MaxDetections   int      `toml:"max_detections"`
	Warmup          int      `toml:"warmup"`
	// Provider is the execution provider: cpu, cuda, coreml or openvino.
	Provider        string            `toml:"provider"`
	ProviderOptions map[string]string `toml:"provider_options"`
	IntraThreads    int               `toml:"intra_threads"`
	InterThreads    int               `toml:"inter_threads"`
}

// Finalize applies defaults, environment variable overrides, and validation.
func (c *DetectorConfig) Finalize() error {
	c.loadDefaults()
	c.loadEnv()
	return c.validate()
}

// Merge overwrites non-zero fields from overlay.
func (c *DetectorConfig) Merge(overlay *DetectorConfig) {
	if overlay.ModelPath != "" {
		c.ModelPath = overlay.ModelPath
	}
	if overlay.LibraryPath != "" {
		c.LibraryPath = overlay.LibraryPath
	}
	if overlay.LabelsPath != "" {
		c.LabelsPath = overlay.LabelsPath
	}
	if overlay.InputSize != 0 {
		c.InputSize = overlay.InputSize
	}
	if overlay.NMSThreshold != 0 {
		c.NMSThreshold = overlay.NMSThreshold
	}
	if overlay.FloorConfidence != nil {
		v := *overlay.FloorConfidence
		c.FloorConfidence = &v
	}
	if overlay.MaxDetections != 0 {
		c.MaxDetections = overlay.MaxDetections
	}
	if overlay.Warmup != 0 {
		c.Warmup = overlay.Warmup
	}
	if overlay.Provider != "" {
		c.Provider = overlay.Provider
	}
	if len(overlay.ProviderOptions) > 0 {
		c.ProviderOptions = overlay.ProviderOptions
	}
	if overlay.IntraThreads != 0 {
		c.IntraThreads = overlay.IntraThreads
	}
	if overlay.InterThreads != 0 {
		c.InterThreads = overlay.InterThreads
	}
}

// Detectors converts the section into the detector's own configuration.
func (c *DetectorConfig) Detectors() detectors.Config {
	cfg := detectors.DefaultConfig()
	cfg.ModelPath = c.ModelPath
	cfg.LibraryPath = c.LibraryPath
	cfg.LabelsPath = c.LabelsPath
	cfg.InputSize = c.InputSize
	cfg.NMSThreshold = c.NMSThreshold
	if c.FloorConfidence != nil {
		cfg.FloorConfidence = *c.FloorConfidence
	}
	cfg.MaxDetections = c.MaxDetections
	cfg.Warmup = c.Warmup

	provider, _ := providers.ParseProvider(c.Provider)
	cfg.Optimization.ExecutionProvider = providers.ExecutionProviderConfig{
		Provider: provider,
		Options:  c.ProviderOptions,
	}
	if c.IntraThreads > 0 {
		cfg.Optimization.IntraOpNumThreads = c.IntraThreads
	}
	if c.InterThreads > 0 {
		cfg.Optimization.InterOpNumThreads = c.InterThreads
	}
	return cfg
}

func (c *DetectorConfig) loadDefaults() {
	d := detectors.DefaultConfig()
	if c.ModelPath == "" {
		c.ModelPath = d.ModelPath
	}
	if c.InputSize == 0 {
		c.InputSize = d.InputSize
	}
	if c.NMSThreshold == 0 {
		c.NMSThreshold = d.NMSThreshold
	}
	if c.FloorConfidence == nil {
		c.FloorConfidence = &d.FloorConfidence
	}
	if c.MaxDetections == 0 {
		c.MaxDetections = d.MaxDetections
	}
	if c.Warmup == 0 {
		c.Warmup = d.Warmup
	}
	if c.Provider == "" {
		c.Provider = string(providers.CPUExecutionProvider)
	}
}

func (c *DetectorConfig) loadEnv() {
	if v := os.Getenv(EnvDetectorModelPath); v != "" {
		c.ModelPath = v
	}
	if v := os.Getenv(EnvDetectorLibraryPath); v != "" {
		c.LibraryPath = v
	}
	if v := os.Getenv(EnvDetectorLabelsPath); v != "" {
		c.LabelsPath = v
	}
	if v := os.Getenv(EnvDetectorInputSize); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.InputSize = n
		}
	}
	if v := os.Getenv(EnvDetectorNMSThreshold); v != "" {
		if f, err := strconv.ParseFloat(v, 32); err == nil {
			c.NMSThreshold = float32(f)
		}
	}
	if v := os.Getenv(EnvDetectorFloorConfidence); v != "" {
		if f, err := strconv.ParseFloat(v, 32); err == nil {
			floor := float32(f)
			c.FloorConfidence = &floor
		}
	}
	if v := os.Getenv(EnvDetectorMaxDetections); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxDetections = n
		}
	}
	if v := os.Getenv(EnvDetectorProvider); v != "" {
		c.Provider = v
	}
	if v := os.Getenv(EnvDetectorIntraThreads); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.IntraThreads = n
		}
	}
	if v := os.Getenv(EnvDetectorInterThreads); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.InterThreads = n
		}
	}
}

func (c *DetectorConfig) validate() error {
	if _, err := providers.ParseProvider(c.Provider); err != nil {
		return err
	}
	if c.IntraThreads < 0 || c.InterThreads < 0 {
		return errors.New("thread counts must not be negative")
	}
	return c.Detectors().Validate()
}
