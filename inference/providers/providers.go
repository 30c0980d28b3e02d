// Package providers - ONNX Runtime execution providers and session options.
package providers

import (
	"strings"

	"github.com/pkg/errors"
)

// Provider represents different ONNX Runtime execution providers
type Provider string

const (
	// CPUExecutionProvider uses CPU for inference
	CPUExecutionProvider Provider = "cpu"

	// CUDAExecutionProvider uses NVIDIA CUDA for GPU acceleration
	CUDAExecutionProvider Provider = "cuda"

	// CoreMLExecutionProvider uses Apple CoreML for macOS/iOS acceleration
	CoreMLExecutionProvider Provider = "coreml"

	// OpenVINOExecutionProvider uses Intel OpenVINO for inference optimization
	OpenVINOExecutionProvider Provider = "openvino"
)

// Providers lists every supported execution provider.
var Providers = []Provider{
	CPUExecutionProvider,
	CUDAExecutionProvider,
	CoreMLExecutionProvider,
	OpenVINOExecutionProvider,
}

// ParseProvider resolves a provider name, case-insensitively. The empty
// string selects the CPU provider.
func ParseProvider(name string) (Provider, error) {
	if name == "" {
		return CPUExecutionProvider, nil
	}
	for _, p := range Providers {
		if strings.EqualFold(string(p), name) {
			return p, nil
		}
	}
	return "", errors.Errorf("unknown execution provider %q", name)
}

// ExecutionProviderConfig contains configuration for specific execution providers
type ExecutionProviderConfig struct {
	// Provider specifies which execution provider to use
	Provider Provider `json:"provider" toml:"provider"`

	// Options contains provider-specific configuration options
	Options map[string]string `json:"options" toml:"options"`
}
