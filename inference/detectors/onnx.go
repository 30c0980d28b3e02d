// Package detectors - ONNX model inference.
package detectors

import (
	"context"
	"image"
	"image/color"
	"log/slog"
	"sync"
	"time"

	"github.com/nvr-ai/leafscan/inference"
	"github.com/nvr-ai/leafscan/inference/providers"
	"github.com/pkg/errors"
)

// ONNXDetector runs a YOLO leaf disease model through ONNX Runtime.
type ONNXDetector struct {
	config  Config
	session *inference.Session
	names   inference.Names
	logger  *slog.Logger

	// mu serializes access to the session's bound tensors.
	mu     sync.Mutex
	closed bool
}

// NewONNXDetector creates a new ONNX detector.
//
// Arguments:
//   - config: The configuration for the ONNX detector.
//   - logger: Receives model loading diagnostics; nil uses slog.Default().
//
// Returns:
//   - *ONNXDetector: The detector, owned by the caller.
//   - error: An error if the runtime or the model fails to load.
func NewONNXDetector(config Config, logger *slog.Logger) (*ONNXDetector, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid detector config")
	}
	if logger == nil {
		logger = slog.Default()
	}

	libPath := providers.GetSharedLibPath(config.LibraryPath)
	if err := inference.InitializeEnvironment(libPath); err != nil {
		return nil, err
	}

	session, err := inference.NewSession(inference.NewSessionArgs{
		ModelPath:    config.ModelPath,
		InputSize:    config.InputSize,
		Optimization: config.Optimization,
		Logger:       logger,
	})
	if err != nil {
		return nil, err
	}

	names, err := loadNames(config, session)
	if err != nil {
		session.Close()
		return nil, err
	}

	d := &ONNXDetector{
		config:  config,
		session: session,
		names:   names,
		logger:  logger,
	}

	logger.Info("loaded detector model",
		"model", config.ModelPath,
		"input_size", session.InputSize,
		"output_shape", session.OutputShape,
		"classes", len(names),
		"provider", config.Optimization.ExecutionProvider.Provider,
	)

	if err := d.warmup(config.Warmup); err != nil {
		d.Close()
		return nil, err
	}
	return d, nil
}

// loadNames resolves the class names table from the model metadata, falling
// back to the configured labels file, and sizes it to the model's class count.
func loadNames(config Config, session *inference.Session) (inference.Names, error) {
	classes := int(session.OutputShape[1]) - 4

	names, ok, err := inference.ReadNames(config.ModelPath)
	if err != nil {
		return nil, err
	}
	if !ok && config.LabelsPath != "" {
		names, err = inference.LoadNames(config.LabelsPath)
		if err != nil {
			return nil, err
		}
	}
	return names.Resize(classes), nil
}

func (d *ONNXDetector) warmup(runs int) error {
	if runs <= 0 {
		return nil
	}
	blank := image.NewUniform(color.Gray{Y: 114})
	img := &boundedImage{Uniform: blank, bounds: image.Rect(0, 0, d.session.InputSize, d.session.InputSize)}

	start := time.Now()
	for i := 0; i < runs; i++ {
		if _, err := d.Detect(context.Background(), img); err != nil {
			return errors.Wrap(err, "warmup run failed")
		}
	}
	d.logger.Debug("detector warmed up", "runs", runs, "elapsed", time.Since(start))
	return nil
}

// Detect runs the model over img and returns detections in img's pixel space,
// sorted by descending confidence.
//
// Arguments:
//   - ctx: Checked before the run starts; a run in progress is not interrupted.
//   - img: The image to analyze.
//
// Returns:
//   - []inference.BoundingBox: The detections surviving the floor confidence and NMS.
//   - error: An error if preprocessing or inference fails.
func (d *ONNXDetector) Detect(ctx context.Context, img image.Image) ([]inference.BoundingBox, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil, errors.New("detector is closed")
	}

	lb, err := inference.PrepareInput(img, d.session.InputSize, d.session.Input.GetData())
	if err != nil {
		return nil, errors.Wrap(err, "error preparing input")
	}

	if err := d.session.Run(); err != nil {
		return nil, errors.Wrap(err, "error running session")
	}

	return DecodeOutput(d.session.Output.GetData(), d.session.OutputShape, DecodeOptions{
		Names:           d.names,
		Letterbox:       lb,
		FloorConfidence: d.config.FloorConfidence,
		NMSThreshold:    d.config.NMSThreshold,
		MaxDetections:   d.config.MaxDetections,
	})
}

// Classes returns the model's class names table.
func (d *ONNXDetector) Classes() inference.Names {
	return d.names
}

// Close releases the session. It is safe to call more than once.
func (d *ONNXDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true
	return d.session.Close()
}

// boundedImage gives a uniform color finite bounds.
type boundedImage struct {
	*image.Uniform
	bounds image.Rectangle
}

func (b *boundedImage) Bounds() image.Rectangle {
	return b.bounds
}
