// Package inference - Inference sessions.
package inference

import (
	"log/slog"
	"os"
	"sync"

	"github.com/nvr-ai/leafscan/inference/providers"
	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
)

// NamesMetadataKey is the custom metadata key YOLO exports store the class
// names table under.
const NamesMetadataKey = "names"

var (
	envMu          sync.Mutex
	envInitialized bool
)

// InitializeEnvironment loads the ONNX Runtime shared library and prepares
// the native environment. It is safe to call more than once; only the first
// successful call has an effect.
//
// Arguments:
//   - libPath: Path to the ONNX Runtime shared library.
//
// Returns:
//   - error: An error if the library is missing or fails to initialize.
func InitializeEnvironment(libPath string) error {
	envMu.Lock()
	defer envMu.Unlock()

	if envInitialized {
		return nil
	}

	// Check if the shared library exists before trying to use it.
	if _, err := os.Stat(libPath); err != nil {
		return errors.Wrapf(err, "ONNX Runtime library not found at %s", libPath)
	}

	ort.SetSharedLibraryPath(libPath)
	if err := ort.InitializeEnvironment(); err != nil {
		return errors.Wrap(err, "error initializing ORT environment")
	}
	envInitialized = true
	return nil
}

// DestroyEnvironment releases the native environment. Sessions must be
// closed first.
func DestroyEnvironment() error {
	envMu.Lock()
	defer envMu.Unlock()

	if !envInitialized {
		return nil
	}
	envInitialized = false
	return ort.DestroyEnvironment()
}

// Session represents a model session from the onnxruntime with its input and
// output tensors bound. Run reuses the same tensors, so a Session must not be
// run concurrently.
type Session struct {
	Session *ort.AdvancedSession
	Input   *ort.Tensor[float32]
	Output  *ort.Tensor[float32]

	// InputName and OutputName are the model's tensor names.
	InputName, OutputName string
	// InputSize is the side of the square model input.
	InputSize int
	// OutputShape is the shape of the raw model output, e.g. [1, 4+nc, N].
	OutputShape ort.Shape
}

// NewSessionArgs represents the arguments for creating a new session.
type NewSessionArgs struct {
	// ModelPath is the path to the ONNX model file.
	ModelPath string
	// InputSize is used when the model input has dynamic spatial dimensions.
	InputSize int
	// Optimization configures threading and the execution provider.
	Optimization providers.OptimizationConfig
	// Logger receives session setup diagnostics.
	Logger *slog.Logger
}

// NewSession creates a new ONNX Runtime session with preallocated input and
// output tensors. The environment must already be initialized.
//
// Order of operations:
//  1. Model inspection: reads the input/output names and shapes.
//  2. Tensor allocation: fixed-shape buffers for input/output data.
//  3. Session options: threading, optimization level and execution provider.
//  4. Session creation: loads the model and binds the tensors.
//
// Arguments:
//   - args: The arguments for the session.
//
// Returns:
//   - *Session: The session, owned by the caller.
//   - error: An error if the session creation fails.
func NewSession(args NewSessionArgs) (*Session, error) {
	if _, err := os.Stat(args.ModelPath); err != nil {
		return nil, errors.Wrapf(err, "model file not found: %s", args.ModelPath)
	}
	logger := args.Logger
	if logger == nil {
		logger = slog.Default()
	}

	inputs, outputs, err := ort.GetInputOutputInfo(args.ModelPath)
	if err != nil {
		return nil, errors.Wrap(err, "error reading model inputs and outputs")
	}
	if len(inputs) != 1 || len(outputs) < 1 {
		return nil, errors.Errorf("expected one input and at least one output, got %d and %d",
			len(inputs), len(outputs))
	}

	inputSize, err := ResolveInputSize(inputs[0].Dimensions, args.InputSize)
	if err != nil {
		return nil, err
	}
	outputShape, err := ResolveOutputShape(outputs[0].Dimensions, inputSize)
	if err != nil {
		return nil, err
	}

	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 3, int64(inputSize), int64(inputSize)))
	if err != nil {
		return nil, errors.Wrap(err, "error creating input tensor")
	}

	outputTensor, err := ort.NewEmptyTensor[float32](outputShape)
	if err != nil {
		inputTensor.Destroy()
		return nil, errors.Wrap(err, "error creating output tensor")
	}

	options, err := providers.OptimizedSessionOptions(args.Optimization, logger)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, err
	}
	defer options.Destroy()

	session, err := ort.NewAdvancedSession(
		args.ModelPath,
		[]string{inputs[0].Name},
		[]string{outputs[0].Name},
		[]ort.Value{inputTensor},
		[]ort.Value{outputTensor},
		options,
	)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, errors.Wrap(err, "error creating ORT session")
	}

	return &Session{
		Session:     session,
		Input:       inputTensor,
		Output:      outputTensor,
		InputName:   inputs[0].Name,
		OutputName:  outputs[0].Name,
		InputSize:   inputSize,
		OutputShape: outputShape,
	}, nil
}

// Run executes the model over the current input tensor contents.
func (s *Session) Run() error {
	if s.Session == nil {
		return errors.New("session is closed")
	}
	return s.Session.Run()
}

// Close releases the resources associated with the Session.
func (s *Session) Close() error {
	if s.Input != nil {
		s.Input.Destroy()
		s.Input = nil
	}
	if s.Output != nil {
		s.Output.Destroy()
		s.Output = nil
	}
	if s.Session != nil {
		err := s.Session.Destroy()
		s.Session = nil
		if err != nil {
			return errors.Wrap(err, "error destroying ORT session")
		}
	}
	return nil
}

// ReadNames reads the class names table from the model's custom metadata.
//
// Returns:
//   - Names: The names table.
//   - bool: False when the model carries no names metadata.
//   - error: An error if the metadata could not be read or parsed.
func ReadNames(modelPath string) (Names, bool, error) {
	meta, err := ort.GetModelMetadata(modelPath)
	if err != nil {
		return nil, false, errors.Wrap(err, "error reading model metadata")
	}
	defer meta.Destroy()

	return namesFromMetadata(meta.LookupCustomMetadataMap)
}

// namesFromMetadata resolves the names table through a custom metadata
// lookup with the signature of ModelMetadata.LookupCustomMetadataMap.
func namesFromMetadata(lookup func(key string) (string, bool, error)) (Names, bool, error) {
	raw, ok, err := lookup(NamesMetadataKey)
	if err != nil {
		return nil, false, errors.Wrap(err, "error reading names metadata")
	}
	if !ok {
		return nil, false, nil
	}
	names, err := ParseNames(raw)
	if err != nil {
		return nil, false, err
	}
	return names, true, nil
}

// ResolveInputSize returns the square spatial size of an NCHW model input.
// Dynamic dimensions (<= 0) resolve to fallback.
func ResolveInputSize(dims ort.Shape, fallback int) (int, error) {
	if len(dims) != 4 {
		return 0, errors.Errorf("expected NCHW input, got shape %v", dims)
	}
	if dims[1] > 0 && dims[1] != 3 {
		return 0, errors.Errorf("expected 3 input channels, got %d", dims[1])
	}
	h, w := dims[2], dims[3]
	switch {
	case h <= 0 && w <= 0:
		if fallback <= 0 {
			return 0, errors.New("model input is dynamic and no input size is configured")
		}
		return fallback, nil
	case h != w:
		return 0, errors.Errorf("expected a square model input, got %dx%d", w, h)
	default:
		return int(h), nil
	}
}

// ResolveOutputShape returns the concrete [1, 4+nc, N] output shape. A
// dynamic candidate dimension is derived from the three YOLO detection strides.
func ResolveOutputShape(dims ort.Shape, inputSize int) (ort.Shape, error) {
	if len(dims) != 3 {
		return nil, errors.Errorf("expected [batch, 4+classes, candidates] output, got shape %v", dims)
	}
	if dims[1] <= 4 {
		return nil, errors.Errorf("output has no class scores: shape %v", dims)
	}
	candidates := dims[2]
	if candidates <= 0 {
		candidates = 0
		for _, stride := range []int{8, 16, 32} {
			side := int64(inputSize / stride)
			candidates += side * side
		}
	}
	return ort.NewShape(1, dims[1], candidates), nil
}
