package diagnosis

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nvr-ai/leafscan/images"
	"github.com/nvr-ai/leafscan/inference"
	"github.com/nvr-ai/leafscan/inference/detectors"
	"github.com/nvr-ai/leafscan/profiler"
	"github.com/pkg/errors"
)

// Profiler operation and metric names.
const (
	OpDecode    = "decode"
	OpDetect    = "detect"
	OpSummarize = "summarize"
	OpAnnotate  = "annotate"
	OpDiagnose  = "diagnose"

	MetricRawDetections = "raw_detections"
	MetricDetections    = "detections"
	MetricNoDetection   = "no_detection"
)

// DecodeError reports an upload that could not be decoded as an image.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return "decode upload: " + e.Err.Error()
}

// Unwrap returns the decoder error.
func (e *DecodeError) Unwrap() error { return e.Err }

// Cause returns the decoder error.
func (e *DecodeError) Cause() error { return e.Err }

// ServiceArgs represents the arguments for creating a Service.
type ServiceArgs struct {
	Detector  detectors.Detector
	Knowledge Lookup
	Profiler  *profiler.RuntimeProfiler
	Logger    *slog.Logger
	// MaxImageSide bounds the longest side of an upload before detection;
	// zero keeps the original size.
	MaxImageSide int
	// MaxImagePixels rejects uploads whose header declares more pixels;
	// zero uses images.DefaultMaxPixels and a negative value disables it.
	MaxImagePixels int
}

// Service runs the full diagnosis of an uploaded image.
type Service struct {
	detector       detectors.Detector
	knowledge      Lookup
	profiler       *profiler.RuntimeProfiler
	logger         *slog.Logger
	maxImageSide   int
	maxImagePixels int
}

// NewService creates a diagnosis service.
func NewService(args ServiceArgs) (*Service, error) {
	if args.Detector == nil {
		return nil, errors.New("diagnosis service requires a detector")
	}
	if args.Knowledge == nil {
		return nil, errors.New("diagnosis service requires a knowledge store")
	}
	if args.Profiler == nil {
		args.Profiler = profiler.NewRuntimeProfiler(profiler.ProfilingOptions{Logger: args.Logger})
	}
	if args.Logger == nil {
		args.Logger = slog.Default()
	}
	if args.MaxImagePixels == 0 {
		args.MaxImagePixels = images.DefaultMaxPixels
	}
	return &Service{
		detector:       args.Detector,
		knowledge:      args.Knowledge,
		profiler:       args.Profiler,
		logger:         args.Logger.With("system", "diagnosis"),
		maxImageSide:   args.MaxImageSide,
		maxImagePixels: args.MaxImagePixels,
	}, nil
}

// Classes returns the detector's class names.
func (s *Service) Classes() inference.Names {
	return s.detector.Classes()
}

// Profiler returns the profiler the service records into.
func (s *Service) Profiler() *profiler.RuntimeProfiler {
	return s.profiler
}

// Diagnose decodes an uploaded image, runs the detector over it and
// summarizes the detections. Finding nothing above the threshold is a normal
// outcome reported through Report.NoDetection.
//
// Arguments:
//   - ctx: Cancels the diagnosis before detection starts.
//   - data: The encoded upload.
//   - opts: The user's threshold and drawing choice.
//
// Returns:
//   - *Report: The diagnosis.
//   - error: ErrInvalidThreshold, a *DecodeError or a wrapped detector error.
func (s *Service) Diagnose(ctx context.Context, data []byte, opts Options) (*Report, error) {
	if !ValidThreshold(opts.Threshold) {
		return nil, errors.Wrapf(ErrInvalidThreshold, "got %v", opts.Threshold)
	}

	start := time.Now()
	report := &Report{
		ID:        uuid.NewString(),
		CreatedAt: start.UTC(),
		Options:   opts,
	}

	done := s.profiler.StartOperation(OpDecode)
	img, err := images.DecodeLimit(data, s.maxImagePixels)
	report.Timings.Decode = done()
	if err != nil {
		return nil, &DecodeError{Err: err}
	}
	report.Source = *img
	pixels := images.Fit(img.Pixels, s.maxImageSide)
	fitted := pixels.Bounds()
	report.Analyzed = Size{Width: fitted.Dx(), Height: fitted.Dy()}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	done = s.profiler.StartOperation(OpDetect)
	raw, err := s.detector.Detect(ctx, pixels)
	report.Timings.Detect = done()
	if err != nil {
		return nil, errors.Wrap(err, "detect")
	}
	report.RawDetections = len(raw)

	done = s.profiler.StartOperation(OpSummarize)
	summary, err := Summarize(raw, opts.Threshold, s.knowledge)
	report.Timings.Summarize = done()
	switch {
	case errors.Is(err, ErrNoDetection):
		report.NoDetection = true
	case err != nil:
		return nil, err
	default:
		report.Summary = summary
	}

	report.Boxes = make([]inference.BoundingBox, 0, len(raw))
	for _, b := range raw {
		if b.Confidence >= opts.Threshold {
			report.Boxes = append(report.Boxes, b)
		}
	}

	report.Image = pixels
	if opts.DrawBoxes && !report.NoDetection {
		done = s.profiler.StartOperation(OpAnnotate)
		report.Image = images.Annotate(pixels, report.Boxes)
		report.Timings.Annotate = done()
	}

	report.Timings.Total = time.Since(start)
	s.profiler.RecordOperation(OpDiagnose, report.Timings.Total)
	s.profiler.RecordMetric(MetricRawDetections, float64(report.RawDetections))
	s.profiler.RecordMetric(MetricDetections, float64(len(report.Boxes)))
	if report.NoDetection {
		s.profiler.RecordMetric(MetricNoDetection, 1)
	} else {
		s.profiler.RecordMetric(MetricNoDetection, 0)
	}

	attrs := []any{
		"id", report.ID,
		"format", report.Source.Format,
		"raw", report.RawDetections,
		"threshold", opts.Threshold,
		"elapsed", report.Timings.Total,
	}
	if summary != nil {
		attrs = append(attrs, "detections", summary.Detections, "unique", summary.Unique)
	} else {
		attrs = append(attrs, "no_detection", true)
	}
	s.logger.Debug("diagnosed image", attrs...)

	return report, nil
}
