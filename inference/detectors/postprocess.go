package detectors

import (
	"sort"

	"github.com/chewxy/math32"
	"github.com/nvr-ai/leafscan/inference"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// DecodeOptions controls how a raw YOLO output is turned into detections.
type DecodeOptions struct {
	// Names resolves class indices to labels.
	Names inference.Names
	// Letterbox maps model input coordinates back to the original image.
	Letterbox inference.Letterbox
	// FloorConfidence drops candidates scoring below it.
	FloorConfidence float32
	// NMSThreshold is the IoU above which same-class boxes are suppressed.
	NMSThreshold float32
	// MaxDetections caps the result length; zero means no cap.
	MaxDetections int
}

// DecodeOutput converts the raw [1, 4+nc, N] output of a YOLOv8-style model
// into detections.
//
// Each of the N candidates carries (cx, cy, w, h) in model input pixels
// followed by one score per class. The best-scoring class is kept per
// candidate, boxes are mapped back to original image pixels and clipped, and
// class-aware NMS removes duplicates.
//
// Arguments:
//   - output: The raw output tensor data.
//   - shape: The output tensor shape.
//   - opts: Decoding options.
//
// Returns:
//   - []inference.BoundingBox: Detections sorted by descending confidence.
//   - error: An error if output does not match shape.
func DecodeOutput(output []float32, shape []int64, opts DecodeOptions) ([]inference.BoundingBox, error) {
	if len(shape) != 3 || shape[0] != 1 {
		return nil, errors.Errorf("unexpected output shape %v", shape)
	}
	rows, cols := int(shape[1]), int(shape[2])
	if rows <= 4 || cols <= 0 {
		return nil, errors.Errorf("unexpected output shape %v", shape)
	}
	if len(output) < rows*cols {
		return nil, errors.Errorf("output holds %d floats, shape %v needs %d", len(output), shape, rows*cols)
	}

	// The model lays candidates out column-wise; transposing a copy gives
	// one contiguous row of attributes per candidate.
	backing := make([]float32, rows*cols)
	copy(backing, output[:rows*cols])
	t := tensor.New(tensor.WithShape(rows, cols), tensor.WithBacking(backing))
	if err := t.T(); err != nil {
		return nil, errors.Wrap(err, "transpose output")
	}
	if err := t.Transpose(); err != nil {
		return nil, errors.Wrap(err, "transpose output")
	}
	candidates, ok := t.Data().([]float32)
	if !ok {
		return nil, errors.New("output tensor is not float32")
	}

	lb := opts.Letterbox
	boxes := make([]inference.BoundingBox, 0, 64)
	for i := 0; i < cols; i++ {
		row := candidates[i*rows : (i+1)*rows]

		classID := 0
		score := math32.Inf(-1)
		for c, s := range row[4:] {
			if s > score {
				score = s
				classID = c
			}
		}
		if score < opts.FloorConfidence || math32.IsNaN(score) {
			continue
		}

		cx, cy, w, h := row[0], row[1], row[2], row[3]
		x1, y1 := lb.Unmap(cx-w/2, cy-h/2)
		x2, y2 := lb.Unmap(cx+w/2, cy+h/2)
		box := inference.BoundingBox{
			Label:      opts.Names.Name(classID),
			ClassID:    classID,
			Confidence: score,
			X1:         x1,
			Y1:         y1,
			X2:         x2,
			Y2:         y2,
		}
		box.Clip(lb.Width, lb.Height)
		if box.Empty() {
			continue
		}
		boxes = append(boxes, box)
	}

	sort.SliceStable(boxes, func(i, j int) bool {
		return boxes[i].Confidence > boxes[j].Confidence
	})

	kept := ApplyNMS(boxes, opts.NMSThreshold)
	if opts.MaxDetections > 0 && len(kept) > opts.MaxDetections {
		kept = kept[:opts.MaxDetections]
	}
	return kept, nil
}

// ApplyNMS performs class-aware greedy Non-Maximum Suppression.
//
// Arguments:
//   - boxes: Detections sorted by descending confidence.
//   - iouThreshold: IoU above which a lower-scoring box of the same class is suppressed.
//
// Returns:
//   - The kept detections, in input order.
func ApplyNMS(boxes []inference.BoundingBox, iouThreshold float32) []inference.BoundingBox {
	if len(boxes) == 0 {
		return nil
	}

	used := make([]bool, len(boxes))
	kept := make([]inference.BoundingBox, 0, len(boxes))
	for i := range boxes {
		if used[i] {
			continue
		}
		anchor := boxes[i]
		kept = append(kept, anchor)
		used[i] = true

		for j := i + 1; j < len(boxes); j++ {
			if used[j] || boxes[j].ClassID != anchor.ClassID {
				continue
			}
			if anchor.IOU(&boxes[j]) > iouThreshold {
				used[j] = true
			}
		}
	}
	return kept
}
