// Package detectors - Leaf disease detectors.
package detectors

import (
	"context"
	"image"

	"github.com/nvr-ai/leafscan/inference"
)

// Detector finds disease instances in an image.
type Detector interface {
	// Detect returns the raw detections for img, sorted by descending
	// confidence, with boxes in img's pixel space.
	Detect(ctx context.Context, img image.Image) ([]inference.BoundingBox, error)

	// Classes returns the model's class names table.
	Classes() inference.Names

	// Close releases the detector's resources.
	Close() error
}

// StaticDetector returns a fixed set of detections. It stands in for a model
// in tests and dry runs.
type StaticDetector struct {
	Detections []inference.BoundingBox
	Names      inference.Names
	Err        error
}

// Detect returns a copy of the configured detections, or the configured error.
func (d *StaticDetector) Detect(ctx context.Context, _ image.Image) ([]inference.BoundingBox, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if d.Err != nil {
		return nil, d.Err
	}
	return append([]inference.BoundingBox(nil), d.Detections...), nil
}

// Classes returns the configured names table.
func (d *StaticDetector) Classes() inference.Names {
	return d.Names
}

// Close is a no-op.
func (d *StaticDetector) Close() error {
	return nil
}
