// Package detectors - Detector configuration.
package detectors

import (
	"github.com/nvr-ai/leafscan/inference/providers"
	"github.com/pkg/errors"
)

// Config represents the configuration of the ONNX leaf detector.
type Config struct {
	// ModelPath is the path to the YOLO ONNX export.
	ModelPath string `json:"model_path"`

	// LibraryPath is the ONNX Runtime shared library; empty selects the
	// platform default.
	LibraryPath string `json:"library_path"`

	// LabelsPath is a labels file used when the model carries no names metadata.
	LabelsPath string `json:"labels_path"`

	// InputSize is the inference size used for models with dynamic inputs.
	InputSize int `json:"input_size"`

	// FloorConfidence drops candidates before NMS. The user-facing threshold
	// is applied later, over the detector's output.
	FloorConfidence float32 `json:"floor_confidence"`

	// NMSThreshold controls Non-Maximum Suppression IoU threshold
	NMSThreshold float32 `json:"nms_threshold"`

	// MaxDetections caps the number of detections returned per image.
	MaxDetections int `json:"max_detections"`

	// Warmup is the number of blank inference runs performed at startup.
	Warmup int `json:"warmup"`

	// Optimization configures the runtime session.
	Optimization providers.OptimizationConfig `json:"optimization"`
}

// DefaultConfig returns the settings the detector was trained and validated
// with: a 640px input, 0.25 candidate floor, 0.7 NMS IoU and at most 300
// detections.
func DefaultConfig() Config {
	return Config{
		ModelPath:       "best.onnx",
		InputSize:       640,
		FloorConfidence: 0.25,
		NMSThreshold:    0.7,
		MaxDetections:   300,
		Warmup:          1,
		Optimization:    providers.DefaultOptimizationConfig(),
	}
}

// Validate checks the configuration for values the detector cannot run with.
func (c Config) Validate() error {
	if c.ModelPath == "" {
		return errors.New("model_path is required")
	}
	if c.InputSize < 32 || c.InputSize%32 != 0 {
		return errors.Errorf("input_size must be a positive multiple of 32, got %d", c.InputSize)
	}
	if c.FloorConfidence < 0 || c.FloorConfidence > 1 {
		return errors.Errorf("floor_confidence must be within [0, 1], got %v", c.FloorConfidence)
	}
	if c.NMSThreshold <= 0 || c.NMSThreshold > 1 {
		return errors.Errorf("nms_threshold must be within (0, 1], got %v", c.NMSThreshold)
	}
	if c.MaxDetections < 1 {
		return errors.Errorf("max_detections must be at least 1, got %d", c.MaxDetections)
	}
	return nil
}
