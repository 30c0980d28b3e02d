package providers

import (
	"strconv"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
)

// CUDAOptions contains arguments for the CUDA provider.
// See:
// https://onnxruntime.ai/docs/execution-providers/CUDA-ExecutionProvider.html#configuration-options
type CUDAOptions struct {
	// The device ID.
	DeviceID int
	// The size limit of the device memory arena in bytes. Zero leaves the
	// runtime default in place.
	GPUMemLimit int64
	// The type of search done for cuDNN convolution algorithms.
	// 0: EXHAUSTIVE, 1: HEURISTIC, 2: DEFAULT
	CudnnConvAlgoSearch int
}

// NewCUDAOptions reads CUDA options from the generic provider option map
// ("device_id", "gpu_mem_limit", "cudnn_conv_algo_search"). Unparseable
// values are ignored.
func NewCUDAOptions(raw map[string]string) CUDAOptions {
	var o CUDAOptions
	if v, err := strconv.Atoi(raw["device_id"]); err == nil {
		o.DeviceID = v
	}
	if v, err := strconv.ParseInt(raw["gpu_mem_limit"], 10, 64); err == nil {
		o.GPUMemLimit = v
	}
	if v, err := strconv.Atoi(raw["cudnn_conv_algo_search"]); err == nil {
		o.CudnnConvAlgoSearch = v
	}
	return o
}

// ToNativeProviderOptions converts the CUDA options to the native provider
// options. The caller owns the result and must Destroy it.
func (o CUDAOptions) ToNativeProviderOptions() (*ort.CUDAProviderOptions, error) {
	opts, err := ort.NewCUDAProviderOptions()
	if err != nil {
		return nil, errors.Wrap(err, "create CUDA provider options")
	}

	settings := map[string]string{
		"device_id":              strconv.Itoa(o.DeviceID),
		"cudnn_conv_algo_search": cudnnSearch(o.CudnnConvAlgoSearch),
	}
	if o.GPUMemLimit > 0 {
		settings["gpu_mem_limit"] = strconv.FormatInt(o.GPUMemLimit, 10)
	}

	if err := opts.Update(settings); err != nil {
		opts.Destroy()
		return nil, errors.Wrap(err, "update CUDA provider options")
	}
	return opts, nil
}

func cudnnSearch(v int) string {
	switch v {
	case 0:
		return "EXHAUSTIVE"
	case 1:
		return "HEURISTIC"
	default:
		return "DEFAULT"
	}
}
