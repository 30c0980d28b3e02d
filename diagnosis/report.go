package diagnosis

import (
	"image"
	"time"

	"github.com/nvr-ai/leafscan/images"
	"github.com/nvr-ai/leafscan/inference"
)

// Options are the per-request settings a user picks.
type Options struct {
	// Threshold is the minimum confidence a detection needs to be reported.
	Threshold float32 `json:"threshold"`
	// DrawBoxes selects the annotated image over the original.
	DrawBoxes bool `json:"draw_boxes"`
}

// DefaultOptions returns the settings the upload form starts with.
func DefaultOptions() Options {
	return Options{Threshold: 0.35, DrawBoxes: true}
}

// Timings holds the time spent in each stage of a diagnosis.
type Timings struct {
	Decode    time.Duration `json:"decode_ns"`
	Detect    time.Duration `json:"detect_ns"`
	Summarize time.Duration `json:"summarize_ns"`
	Annotate  time.Duration `json:"annotate_ns"`
	Total     time.Duration `json:"total_ns"`
}

// Size is an image's width and height in pixels.
type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Report is the outcome of diagnosing one image.
type Report struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Options   Options   `json:"options"`

	// NoDetection is set when nothing reached the threshold; Summary is nil
	// in that case.
	NoDetection bool     `json:"no_detection"`
	Summary     *Summary `json:"summary,omitempty"`

	// RawDetections is the number of detections before thresholding.
	RawDetections int `json:"raw_detections"`
	// Boxes are the detections at or above the threshold, in Analyzed
	// pixel coordinates.
	Boxes []inference.BoundingBox `json:"boxes"`

	// Source describes the upload as decoded.
	Source images.Image `json:"source"`
	// Analyzed is the size of the image the detector saw and Image shows.
	// It is smaller than Source when the upload exceeded the side limit.
	Analyzed Size    `json:"analyzed"`
	Timings  Timings `json:"timings"`

	// Image is the annotated image when boxes were requested and found,
	// otherwise the uploaded image.
	Image image.Image `json:"-"`
}

// Message returns the headline and detail shown for a report.
func (r *Report) Message() (string, string) {
	if r.NoDetection {
		return "No leaf detected", "Please upload a clearer image showing a leaf close-up."
	}
	return "Diagnosis complete", ""
}
