package facematch

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"testing"

	"github.com/kozaktomas/facerec/internal/facerec"
)

// sizeRecorder returns fixed detections and records the size it was given.
type sizeRecorder struct {
	dets []facerec.Detection
	err  error
	got  image.Point
}

func (s *sizeRecorder) ExtractAll(_ context.Context, img *facerec.Image) ([]facerec.Detection, error) {
	s.got = image.Pt(img.Width, img.Height)
	return s.dets, s.err
}

func testImage(t *testing.T, w, h int) *facerec.Image {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))); err != nil {
		t.Fatal(err)
	}
	img, err := facerec.NewImage("face.png", buf.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	return img
}

func TestDetectFacesDownscales(t *testing.T) {
	ex := &sizeRecorder{dets: []facerec.Detection{
		{Box: box(10, 10, 20, 20), Score: 0.9},
		{Box: box(11, 11, 20, 20), Score: 0.8},
	}}

	dets, err := DetectFaces(context.Background(), ex, testImage(t, 400, 200), 100)
	if err != nil {
		t.Fatalf("DetectFaces() error = %v", err)
	}
	if ex.got != image.Pt(100, 50) {
		t.Errorf("extractor saw %v, want 100x50", ex.got)
	}
	if len(dets) != 1 {
		t.Fatalf("expected duplicate to be dropped, got %d detections", len(dets))
	}
	if dets[0].Box != box(40, 40, 80, 80) {
		t.Errorf("box = %+v, want it in original coordinates", dets[0].Box)
	}
}

func TestDetectFacesSmallImage(t *testing.T) {
	ex := &sizeRecorder{dets: []facerec.Detection{{Box: box(1, 2, 3, 4)}}}

	dets, err := DetectFaces(context.Background(), ex, testImage(t, 50, 40), 100)
	if err != nil {
		t.Fatalf("DetectFaces() error = %v", err)
	}
	if ex.got != image.Pt(50, 40) || dets[0].Box != box(1, 2, 3, 4) {
		t.Errorf("extractor saw %v, box %+v", ex.got, dets[0].Box)
	}
}

func TestDetectFacesError(t *testing.T) {
	ex := &sizeRecorder{err: &facerec.NoFaceError{Image: "face.png", All: true}}
	_, err := DetectFaces(context.Background(), ex, testImage(t, 10, 10), 100)
	if !errors.Is(err, facerec.ErrNoFacesFound) {
		t.Errorf("DetectFaces() error = %v, want ErrNoFacesFound", err)
	}
}

func TestDetectorRecognizeImage(t *testing.T) {
	ex := &sizeRecorder{dets: []facerec.Detection{
		{Box: box(10, 10, 20, 20), Score: 0.9, Descriptor: facerec.Descriptor{0, 0}},
		{Box: box(11, 11, 20, 20), Score: 0.8, Descriptor: facerec.Descriptor{1, 1}},
	}}
	rec, err := facerec.NewRecognizer(facerec.Gallery{
		{Label: "alice", Descriptors: []facerec.Descriptor{{0, 0}}},
	}, 0.5)
	if err != nil {
		t.Fatalf("NewRecognizer() error = %v", err)
	}

	results, err := rec.RecognizeImage(context.Background(), NewDetector(ex, 100), testImage(t, 400, 200))
	if err != nil {
		t.Fatalf("RecognizeImage() error = %v", err)
	}
	if ex.got != image.Pt(100, 50) {
		t.Errorf("extractor saw %v, want 100x50", ex.got)
	}
	if len(results) != 1 || results[0].Label != "alice" {
		t.Fatalf("results = %+v, want a single alice match", results)
	}
	if results[0].Detection == nil || results[0].Detection.Box != box(40, 40, 80, 80) {
		t.Errorf("detection = %+v, want box in original coordinates", results[0].Detection)
	}
}
