// Package diagnosis turns raw detections into a per-disease summary and
// drives a full image diagnosis.
package diagnosis

import (
	"fmt"

	"github.com/chewxy/math32"
	"github.com/nvr-ai/leafscan/inference"
	"github.com/nvr-ai/leafscan/knowledge"
	"github.com/pkg/errors"
)

var (
	// ErrNoDetection means no detection reached the confidence threshold.
	ErrNoDetection = errors.New("no detection above threshold")

	// ErrInvalidThreshold means the threshold is NaN or outside [0, 1].
	ErrInvalidThreshold = errors.New("confidence threshold must be within [0, 1]")
)

// NoDetectionError reports an empty result. It matches ErrNoDetection.
type NoDetectionError struct {
	// Raw is the number of detections before thresholding; zero means the
	// model found nothing at all.
	Raw int
	// Threshold is the confidence threshold that was applied.
	Threshold float32
}

func (e *NoDetectionError) Error() string {
	return fmt.Sprintf("%s: %d raw detections, threshold %.2f", ErrNoDetection, e.Raw, e.Threshold)
}

// Is makes errors.Is(err, ErrNoDetection) succeed.
func (e *NoDetectionError) Is(target error) bool {
	return target == ErrNoDetection
}

// Lookup resolves a class name to its knowledge entry.
type Lookup interface {
	Lookup(name string) (knowledge.Entry, bool)
}

// ClassSummary is the aggregated result for one detected class.
type ClassSummary struct {
	Label          string  `json:"label"`
	BestConfidence float32 `json:"best_confidence"`
	Cause          string  `json:"cause"`
	Cure           string  `json:"cure"`
	// Known is false when the knowledge store has no entry for Label.
	Known bool `json:"known"`
	// Count is the number of detections of this class above the threshold.
	Count int `json:"count"`
}

// Summary is the de-duplicated view of one image's detections.
type Summary struct {
	// Classes holds one entry per label, in the order labels first appear
	// among the filtered detections.
	Classes []ClassSummary `json:"classes"`
	// Detections is the number of detections at or above Threshold.
	Detections int `json:"detections"`
	// Unique is the number of distinct labels, len(Classes).
	Unique    int     `json:"unique"`
	Threshold float32 `json:"threshold"`
}

// ValidThreshold reports whether t is a usable confidence threshold.
func ValidThreshold(t float32) bool {
	return !math32.IsNaN(t) && t >= 0 && t <= 1
}

// Summarize filters detections by threshold, groups them by label in
// first-seen order, keeps the best confidence per label and joins each label
// with its knowledge entry.
//
// Arguments:
//   - detections: Raw detections in the detector's output order.
//   - threshold: Minimum confidence, inclusive.
//   - kb: The knowledge source; labels it does not know get Unavailable text.
//
// Returns:
//   - *Summary: The per-class summary.
//   - error: ErrInvalidThreshold, or a *NoDetectionError when nothing passes
//     the threshold.
func Summarize(detections []inference.BoundingBox, threshold float32, kb Lookup) (*Summary, error) {
	if !ValidThreshold(threshold) {
		return nil, errors.Wrapf(ErrInvalidThreshold, "got %v", threshold)
	}

	index := make(map[string]int)
	classes := make([]ClassSummary, 0, 4)
	kept := 0

	for _, d := range detections {
		if d.Confidence < threshold || math32.IsNaN(d.Confidence) {
			continue
		}
		kept++

		if i, ok := index[d.Label]; ok {
			if d.Confidence > classes[i].BestConfidence {
				classes[i].BestConfidence = d.Confidence
			}
			classes[i].Count++
			continue
		}
		index[d.Label] = len(classes)
		classes = append(classes, ClassSummary{
			Label:          d.Label,
			BestConfidence: d.Confidence,
			Count:          1,
		})
	}

	if kept == 0 {
		return nil, &NoDetectionError{Raw: len(detections), Threshold: threshold}
	}

	for i := range classes {
		classes[i].Cause = knowledge.Unavailable
		classes[i].Cure = knowledge.Unavailable
		if kb == nil {
			continue
		}
		if entry, ok := kb.Lookup(classes[i].Label); ok {
			classes[i].Known = true
			if entry.Cause != "" {
				classes[i].Cause = entry.Cause
			}
			if entry.Cure != "" {
				classes[i].Cure = entry.Cure
			}
		}
	}

	return &Summary{
		Classes:    classes,
		Detections: kept,
		Unique:     len(classes),
		Threshold:  threshold,
	}, nil
}
