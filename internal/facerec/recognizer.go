package facerec

import (
	"context"
	"fmt"
	"math"
)

// Recognizer matches unknown descriptors against a gallery.
// It is immutable after construction and safe for concurrent use.
type Recognizer struct {
	gallery   Gallery
	threshold float64
	dim       int
}

// ValidateThreshold rejects negative and non-finite distance thresholds.
func ValidateThreshold(threshold float64) error {
	if threshold < 0 || math.IsNaN(threshold) || math.IsInf(threshold, 0) {
		return fmt.Errorf("%w: %v", ErrInvalidThreshold, threshold)
	}
	return nil
}

// NewRecognizer builds a recognizer from a copy of gallery.
// threshold is the maximum distance still reported as a known label.
func NewRecognizer(gallery Gallery, threshold float64) (*Recognizer, error) {
	if err := ValidateThreshold(threshold); err != nil {
		return nil, err
	}
	if len(gallery) == 0 {
		return nil, ErrEmptyGallery
	}

	r := &Recognizer{
		gallery:   make(Gallery, len(gallery)),
		threshold: threshold,
	}
	for i, set := range gallery {
		if err := set.validate(); err != nil {
			return nil, fmt.Errorf("gallery entry %d: %w", i, err)
		}
		for _, d := range set.Descriptors {
			if r.dim == 0 {
				r.dim = len(d)
			}
			if len(d) == 0 || len(d) != r.dim {
				return nil, fmt.Errorf("%w: label %q has %d dimensions, expected %d", ErrDimensionMismatch, set.Label, len(d), r.dim)
			}
		}
		r.gallery[i] = set.clone()
	}

	return r, nil
}

// Threshold returns the distance threshold.
func (r *Recognizer) Threshold() float64 {
	return r.threshold
}

// Dimension returns the descriptor length.
func (r *Recognizer) Dimension() int {
	return r.dim
}

// Len returns the number of labeled sets.
func (r *Recognizer) Len() int {
	return len(r.gallery)
}

// Labels returns the labels in gallery order.
func (r *Recognizer) Labels() []string {
	labels := make([]string, len(r.gallery))
	for i, set := range r.gallery {
		labels[i] = set.Label
	}
	return labels
}

// Match finds the nearest gallery label for a descriptor.
// Ties are resolved to the first label in gallery order.
func (r *Recognizer) Match(desc Descriptor) (MatchResult, error) {
	if len(desc) != r.dim {
		return MatchResult{}, fmt.Errorf("%w: query has %d dimensions, expected %d", ErrDimensionMismatch, len(desc), r.dim)
	}

	best := math.Inf(1)
	label := ""
	for _, set := range r.gallery {
		for _, d := range set.Descriptors {
			if dist := EuclideanDistance(desc, d); dist < best {
				best = dist
				label = set.Label
			}
		}
	}

	if best > r.threshold {
		label = UnknownLabel
	}

	confidence := 1 - best
	return MatchResult{
		Label:             label,
		Distance:          best,
		Confidence:        confidence,
		PercentConfidence: percent(confidence),
	}, nil
}

// MatchOne matches the descriptor of a detection and carries the detection along.
func (r *Recognizer) MatchOne(det Detection) (MatchResult, error) {
	res, err := r.Match(det.Descriptor)
	if err != nil {
		return MatchResult{}, err
	}
	res.Detection = &det
	return res, nil
}

// MatchAll matches each detection independently, preserving order.
func (r *Recognizer) MatchAll(dets []Detection) ([]MatchResult, error) {
	results := make([]MatchResult, len(dets))
	for i, det := range dets {
		res, err := r.MatchOne(det)
		if err != nil {
			return nil, fmt.Errorf("face %d: %w", i, err)
		}
		results[i] = res
	}
	return results, nil
}

// RecognizeImage extracts every face from img and matches them.
func (r *Recognizer) RecognizeImage(ctx context.Context, ex FaceExtractor, img *Image) ([]MatchResult, error) {
	dets, err := ex.ExtractAll(ctx, img)
	if err != nil {
		return nil, err
	}
	return r.MatchAll(dets)
}
