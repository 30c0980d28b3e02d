package providers

import (
	"log/slog"
	"runtime"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
)

// OptimizationConfig contains the ONNX Runtime session settings used when a
// detector session is created.
type OptimizationConfig struct {
	// GraphOptimizationLevel controls the level of graph optimization
	GraphOptimizationLevel ort.GraphOptimizationLevel `json:"graph_optimization_level"`

	// ExecutionMode controls sequential vs parallel execution
	ExecutionMode ort.ExecutionMode `json:"execution_mode"`

	// IntraOpNumThreads sets threads for parallelizing ops
	IntraOpNumThreads int `json:"intra_op_num_threads"`

	// InterOpNumThreads sets threads for parallelizing independent ops
	InterOpNumThreads int `json:"inter_op_num_threads"`

	// ExecutionProvider is the accelerator appended to the session. CPU needs
	// no registration.
	ExecutionProvider ExecutionProviderConfig `json:"execution_provider"`
}

// DefaultOptimizationConfig returns a production-ready optimization configuration
//
// A single image is processed per request, so ops are executed sequentially
// and intra-op threads scale with the available CPUs.
func DefaultOptimizationConfig() OptimizationConfig {
	numCPU := runtime.NumCPU()

	return OptimizationConfig{
		GraphOptimizationLevel: ort.GraphOptimizationLevelEnableExtended,
		ExecutionMode:          ort.ExecutionModeSequential,
		IntraOpNumThreads:      max(1, numCPU/2),
		InterOpNumThreads:      1,
		ExecutionProvider: ExecutionProviderConfig{
			Provider: CPUExecutionProvider,
			Options:  map[string]string{},
		},
	}
}

// OptimizedSessionOptions creates ONNX Runtime session options with the
// specified optimization configuration.
//
// Arguments:
//   - config: Optimization configuration to apply
//   - logger: Receives warnings for accelerators that could not be enabled
//
// Returns:
//   - *ort.SessionOptions: Configured session options, owned by the caller
//   - error: Configuration error if any
func OptimizedSessionOptions(config OptimizationConfig, logger *slog.Logger) (*ort.SessionOptions, error) {
	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create session options")
	}

	if err := options.SetGraphOptimizationLevel(config.GraphOptimizationLevel); err != nil {
		options.Destroy()
		return nil, errors.Wrap(err, "set graph optimization level")
	}
	if err := options.SetExecutionMode(config.ExecutionMode); err != nil {
		options.Destroy()
		return nil, errors.Wrap(err, "set execution mode")
	}
	if err := options.SetIntraOpNumThreads(config.IntraOpNumThreads); err != nil {
		options.Destroy()
		return nil, errors.Wrap(err, "set intra-op threads")
	}
	if err := options.SetInterOpNumThreads(config.InterOpNumThreads); err != nil {
		options.Destroy()
		return nil, errors.Wrap(err, "set inter-op threads")
	}

	// Accelerators may be missing from the installed runtime; inference
	// still works on the CPU, so failures are logged rather than returned.
	if err := applyExecutionProvider(options, config.ExecutionProvider); err != nil {
		logger.Warn("execution provider unavailable, using cpu",
			"provider", config.ExecutionProvider.Provider,
			"error", err,
		)
	}

	return options, nil
}

func applyExecutionProvider(options *ort.SessionOptions, provider ExecutionProviderConfig) error {
	switch provider.Provider {
	case CPUExecutionProvider, "":
		return nil

	case CUDAExecutionProvider:
		cudaOptions, err := NewCUDAOptions(provider.Options).ToNativeProviderOptions()
		if err != nil {
			return err
		}
		defer cudaOptions.Destroy()
		return options.AppendExecutionProviderCUDA(cudaOptions)

	case CoreMLExecutionProvider:
		return options.AppendExecutionProviderCoreML(0)

	case OpenVINOExecutionProvider:
		opts := map[string]string{
			"device_type": "CPU",
			"precision":   "FP32",
		}
		for k, v := range provider.Options {
			opts[k] = v
		}
		return options.AppendExecutionProviderOpenVINO(opts)

	default:
		return errors.Errorf("unsupported execution provider %q", provider.Provider)
	}
}
