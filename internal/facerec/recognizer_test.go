package facerec

import (
	"context"
	"errors"
	"math"
	"slices"
	"testing"
)

func TestNewRecognizerValidation(t *testing.T) {
	valid := Gallery{{Label: "alice", Descriptors: []Descriptor{{0, 0}}}}

	tests := []struct {
		name      string
		gallery   Gallery
		threshold float64
		wantErr   error
	}{
		{"negative threshold", valid, -0.1, ErrInvalidThreshold},
		{"NaN threshold", valid, math.NaN(), ErrInvalidThreshold},
		{"empty gallery", Gallery{}, 0.6, ErrEmptyGallery},
		{"empty label", Gallery{{Descriptors: []Descriptor{{0, 0}}}}, 0.6, ErrEmptyLabel},
		{"no descriptors", Gallery{{Label: "alice"}}, 0.6, ErrNoDescriptors},
		{
			"mixed dimensions",
			Gallery{{Label: "alice", Descriptors: []Descriptor{{0, 0}}}, {Label: "bob", Descriptors: []Descriptor{{0, 0, 0}}}},
			0.6,
			ErrDimensionMismatch,
		},
		{"zero threshold", valid, 0, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRecognizer(tt.gallery, tt.threshold)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("NewRecognizer() error = %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("NewRecognizer() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestRecognizerCopiesGallery(t *testing.T) {
	gallery := Gallery{{Label: "alice", Descriptors: []Descriptor{{0, 0}}}}
	r, err := NewRecognizer(gallery, 0.6)
	if err != nil {
		t.Fatalf("NewRecognizer() error = %v", err)
	}

	gallery[0].Label = "mallory"
	gallery[0].Descriptors[0][0] = 5

	res, _ := r.Match(Descriptor{0, 0})
	if res.Label != "alice" || res.Distance != 0 {
		t.Errorf("Match() after caller mutation = %+v, want alice at 0", res)
	}
}

func TestMatchAliceBob(t *testing.T) {
	gallery := Gallery{
		{Label: "alice", Descriptors: []Descriptor{{0, 0}}},
		{Label: "bob", Descriptors: []Descriptor{{1, 1}}},
	}
	r, err := NewRecognizer(gallery, 0.6)
	if err != nil {
		t.Fatalf("NewRecognizer() error = %v", err)
	}

	tests := []struct {
		name        string
		query       Descriptor
		wantLabel   string
		wantDist    float64
		wantPercent int
	}{
		{"near alice", Descriptor{0.4, 0}, "alice", 0.4, 60},
		{"far from both", Descriptor{0.9, 0}, UnknownLabel, 0.9, 10},
		{"exact bob", Descriptor{1, 1}, "bob", 0, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := r.Match(tt.query)
			if err != nil {
				t.Fatalf("Match() error = %v", err)
			}
			if res.Label != tt.wantLabel {
				t.Errorf("Label = %q, want %q", res.Label, tt.wantLabel)
			}
			if math.Abs(res.Distance-tt.wantDist) > 1e-6 {
				t.Errorf("Distance = %v, want %v", res.Distance, tt.wantDist)
			}
			if math.Abs(res.Confidence-(1-tt.wantDist)) > 1e-6 {
				t.Errorf("Confidence = %v, want %v", res.Confidence, 1-tt.wantDist)
			}
			if res.PercentConfidence != tt.wantPercent {
				t.Errorf("PercentConfidence = %d, want %d", res.PercentConfidence, tt.wantPercent)
			}
		})
	}
}

func TestMatchThresholdBoundary(t *testing.T) {
	// Distances are exact in float32 and float64 for these values.
	gallery := Gallery{{Label: "alice", Descriptors: []Descriptor{{0}}}}
	r, err := NewRecognizer(gallery, 0.5)
	if err != nil {
		t.Fatalf("NewRecognizer() error = %v", err)
	}

	res, _ := r.Match(Descriptor{0.5})
	if res.Label != "alice" {
		t.Errorf("distance equal to threshold: Label = %q, want alice", res.Label)
	}

	res, _ = r.Match(Descriptor{0.5000001})
	if res.Label != UnknownLabel {
		t.Errorf("distance above threshold: Label = %q, want unknown", res.Label)
	}
}

func TestMatchZeroThreshold(t *testing.T) {
	r, err := NewRecognizer(Gallery{{Label: "alice", Descriptors: []Descriptor{{0.25, 0.5}}}}, 0)
	if err != nil {
		t.Fatalf("NewRecognizer() error = %v", err)
	}
	if res, _ := r.Match(Descriptor{0.25, 0.5}); res.Label != "alice" {
		t.Errorf("identical descriptor: Label = %q, want alice", res.Label)
	}
	if res, _ := r.Match(Descriptor{0.25, 0.75}); res.Label != UnknownLabel {
		t.Errorf("different descriptor: Label = %q, want unknown", res.Label)
	}
}

func TestMatchTieBreak(t *testing.T) {
	gallery := Gallery{
		{Label: "first", Descriptors: []Descriptor{{1, 0}}},
		{Label: "second", Descriptors: []Descriptor{{-1, 0}}},
	}
	r, err := NewRecognizer(gallery, 2)
	if err != nil {
		t.Fatalf("NewRecognizer() error = %v", err)
	}

	res, _ := r.Match(Descriptor{0, 0})
	if res.Label != "first" {
		t.Errorf("tie: Label = %q, want first", res.Label)
	}
}

func TestMatchUsesNearestDescriptorOfSet(t *testing.T) {
	gallery := Gallery{
		{Label: "alice", Descriptors: []Descriptor{{5, 5}, {0, 0}}},
		{Label: "bob", Descriptors: []Descriptor{{0.3, 0}}},
	}
	r, err := NewRecognizer(gallery, 0.6)
	if err != nil {
		t.Fatalf("NewRecognizer() error = %v", err)
	}

	res, _ := r.Match(Descriptor{0.1, 0})
	if res.Label != "alice" {
		t.Errorf("Label = %q, want alice", res.Label)
	}
}

func TestMatchDimensionMismatch(t *testing.T) {
	r, err := NewRecognizer(Gallery{{Label: "alice", Descriptors: []Descriptor{{0, 0}}}}, 0.6)
	if err != nil {
		t.Fatalf("NewRecognizer() error = %v", err)
	}
	if _, err := r.Match(Descriptor{0, 0, 0}); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("Match() error = %v, want ErrDimensionMismatch", err)
	}
}

func TestRecognizerAccessors(t *testing.T) {
	r, err := NewRecognizer(Gallery{
		{Label: "alice", Descriptors: []Descriptor{{0, 0, 0}}},
		{Label: "bob", Descriptors: []Descriptor{{1, 1, 1}}},
	}, 0.45)
	if err != nil {
		t.Fatalf("NewRecognizer() error = %v", err)
	}
	if r.Len() != 2 || r.Dimension() != 3 || r.Threshold() != 0.45 {
		t.Errorf("Len/Dimension/Threshold = %d/%d/%v", r.Len(), r.Dimension(), r.Threshold())
	}
	if !slices.Equal(r.Labels(), []string{"alice", "bob"}) {
		t.Errorf("Labels() = %v", r.Labels())
	}
}

func TestRecognizeImage(t *testing.T) {
	ex := newFakeExtractor()
	ex.all["group.jpg"] = []Detection{
		{Descriptor: Descriptor{0.4, 0}, Box: Box{X: 10, Y: 10, Width: 50, Height: 50}},
		{Descriptor: Descriptor{0.9, 0}, Box: Box{X: 100, Y: 10, Width: 50, Height: 50}},
	}
	engine, err := NewEngine(context.Background(), ex, DefaultEngineConfig())
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	r, err := NewRecognizer(Gallery{
		{Label: "alice", Descriptors: []Descriptor{{0, 0}}},
		{Label: "bob", Descriptors: []Descriptor{{1, 1}}},
	}, 0.6)
	if err != nil {
		t.Fatalf("NewRecognizer() error = %v", err)
	}

	results, err := r.RecognizeImage(context.Background(), engine, &Image{Ref: "group.jpg"})
	if err != nil {
		t.Fatalf("RecognizeImage() error = %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("len(results) = %d, want 2", len(results))
	}
	if results[0].Label != "alice" || results[1].Label != UnknownLabel {
		t.Errorf("labels = %q, %q", results[0].Label, results[1].Label)
	}
	if results[1].Detection == nil || results[1].Detection.Box.X != 100 {
		t.Errorf("second result lost its detection: %+v", results[1].Detection)
	}

	if _, err := r.RecognizeImage(context.Background(), engine, &Image{Ref: "empty.jpg"}); !errors.Is(err, ErrNoFacesFound) {
		t.Errorf("RecognizeImage() on empty image error = %v, want ErrNoFacesFound", err)
	}
}

func TestPercent(t *testing.T) {
	tests := []struct {
		confidence float64
		expected   int
	}{
		{0.6, 60},
		{0.125, 13},
		{0.005, 1},
		{1, 100},
		{-0.2, -20},
		{-0.005, 0},
	}

	for _, tt := range tests {
		if got := percent(tt.confidence); got != tt.expected {
			t.Errorf("percent(%v) = %d, want %d", tt.confidence, got, tt.expected)
		}
	}
}

func TestEuclideanDistance(t *testing.T) {
	if d := EuclideanDistance(Descriptor{0, 0}, Descriptor{3, 4}); math.Abs(d-5) > 1e-9 {
		t.Errorf("EuclideanDistance = %v, want 5", d)
	}
	if d := EuclideanDistance(Descriptor{0}, Descriptor{0, 1}); !math.IsInf(d, 1) {
		t.Errorf("EuclideanDistance with mismatched lengths = %v, want +Inf", d)
	}
}
