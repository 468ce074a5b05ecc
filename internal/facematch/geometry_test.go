package facematch

import (
	"image"
	"math"
	"testing"

	"github.com/kozaktomas/facerec/internal/facerec"
)

func box(x, y, w, h float64) facerec.Box {
	return facerec.Box{X: x, Y: y, Width: w, Height: h}
}

func TestComputeIoU(t *testing.T) {
	tests := []struct {
		name     string
		a        facerec.Box
		b        facerec.Box
		expected float64
	}{
		{"identical boxes", box(0, 0, 10, 10), box(0, 0, 10, 10), 1.0},
		{"no overlap", box(0, 0, 10, 10), box(20, 20, 10, 10), 0.0},
		{"partial overlap", box(0, 0, 10, 10), box(5, 5, 10, 10), 25.0 / 175.0}, // intersection=25, union=175
		{"one inside other", box(0, 0, 20, 20), box(5, 5, 10, 10), 100.0 / 400.0},
		{"empty boxes", box(0, 0, 0, 0), box(0, 0, 0, 0), 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ComputeIoU(tt.a, tt.b)
			if math.Abs(result-tt.expected) > 0.0001 {
				t.Errorf("ComputeIoU(%v, %v) = %v, want %v", tt.a, tt.b, result, tt.expected)
			}
		})
	}
}

func boxesClose(a, b facerec.Box) bool {
	return math.Abs(a.X-b.X) < 1e-9 && math.Abs(a.Y-b.Y) < 1e-9 &&
		math.Abs(a.Width-b.Width) < 1e-9 && math.Abs(a.Height-b.Height) < 1e-9
}

func TestRelativeBox(t *testing.T) {
	tests := []struct {
		name     string
		b        facerec.Box
		width    int
		height   int
		expected facerec.Box
	}{
		{"simple conversion", box(100, 200, 200, 200), 1000, 1000, box(0.1, 0.2, 0.2, 0.2)},
		{"full image", box(0, 0, 1920, 1080), 1920, 1080, box(0, 0, 1, 1)},
		{"zero dimensions", box(100, 200, 300, 400), 0, 1000, box(100, 200, 300, 400)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := RelativeBox(tt.b, tt.width, tt.height)
			if !boxesClose(result, tt.expected) {
				t.Errorf("RelativeBox() = %+v, want %+v", result, tt.expected)
			}
		})
	}
}

func TestScaleBox(t *testing.T) {
	result := ScaleBox(box(10, 20, 30, 40), image.Pt(100, 200), image.Pt(50, 400))
	if !boxesClose(result, box(5, 40, 15, 80)) {
		t.Errorf("ScaleBox() = %+v", result)
	}

	unchanged := ScaleBox(box(1, 2, 3, 4), image.Pt(0, 0), image.Pt(10, 10))
	if unchanged != box(1, 2, 3, 4) {
		t.Errorf("ScaleBox() with zero source = %+v", unchanged)
	}

	p := ScalePoint(facerec.Point{X: 10, Y: 10}, image.Pt(100, 100), image.Pt(200, 50))
	if p.X != 20 || p.Y != 5 {
		t.Errorf("ScalePoint() = %+v", p)
	}
}

func TestCornerBox(t *testing.T) {
	result := CornerBox(box(0.1, 0.2, 0.3, 0.4))
	expected := []float64{0.1, 0.2, 0.4, 0.6000000000000001}
	for i := range expected {
		if math.Abs(result[i]-expected[i]) > 0.0001 {
			t.Errorf("CornerBox()[%d] = %v, want %v", i, result[i], expected[i])
		}
	}
}

func TestSuppressDuplicates(t *testing.T) {
	dets := []facerec.Detection{
		{Box: box(0, 0, 10, 10), Score: 0.7},
		{Box: box(1, 1, 10, 10), Score: 0.9},
		{Box: box(50, 50, 10, 10), Score: 0.5},
	}

	kept := SuppressDuplicates(dets, 0.5)
	if len(kept) != 2 {
		t.Fatalf("len(kept) = %d, want 2", len(kept))
	}
	if kept[0].Score != 0.9 || kept[1].Score != 0.5 {
		t.Errorf("kept scores = %v, %v", kept[0].Score, kept[1].Score)
	}

	same := []facerec.Detection{{Box: box(0, 0, 10, 10)}, {Box: box(0, 0, 10, 10)}}
	if got := SuppressDuplicates(same, 0.5); len(got) != 1 {
		t.Errorf("identical detections kept %d, want 1", len(got))
	}
}

func TestScaleDetections(t *testing.T) {
	in := []facerec.Detection{
		{Box: box(10, 10, 20, 20), Landmarks: []facerec.Point{{X: 10, Y: 20}}, Score: 0.9},
		{Box: box(0, 0, 5, 5)},
	}

	out := ScaleDetections(in, image.Pt(100, 50), image.Pt(200, 200))
	if out[0].Box != box(20, 40, 40, 80) {
		t.Errorf("box = %+v", out[0].Box)
	}
	if out[0].Landmarks[0] != (facerec.Point{X: 20, Y: 80}) {
		t.Errorf("landmark = %+v", out[0].Landmarks[0])
	}
	if out[0].Score != 0.9 {
		t.Errorf("score changed to %v", out[0].Score)
	}
	if out[1].Landmarks != nil {
		t.Errorf("landmarks appeared: %v", out[1].Landmarks)
	}
	if in[0].Box.X != 10 || in[0].Landmarks[0].X != 10 {
		t.Error("ScaleDetections() modified its input")
	}
}
