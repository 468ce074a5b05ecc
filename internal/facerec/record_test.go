package facerec

import (
	"bytes"
	"encoding/json"
	"errors"
	"math/rand/v2"
	"path/filepath"
	"strings"
	"testing"
)

func randomGallery(rng *rand.Rand, labels, perLabel, dim int) Gallery {
	g := make(Gallery, labels)
	for i := range g {
		set := LabeledDescriptors{Label: string(rune('a' + i))}
		for range perLabel {
			d := make(Descriptor, dim)
			for k := range d {
				d[k] = rng.Float32()*0.4 - 0.2
			}
			set.Descriptors = append(set.Descriptors, d)
		}
		g[i] = set
	}
	return g
}

func TestRecordRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	orig, err := NewRecognizer(randomGallery(rng, 6, 3, 128), 0.6)
	if err != nil {
		t.Fatalf("NewRecognizer() error = %v", err)
	}

	var buf bytes.Buffer
	if _, err := orig.WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo() error = %v", err)
	}
	restored, err := ReadRecognizer(&buf)
	if err != nil {
		t.Fatalf("ReadRecognizer() error = %v", err)
	}

	if restored.Threshold() != orig.Threshold() {
		t.Errorf("Threshold() = %v, want %v", restored.Threshold(), orig.Threshold())
	}
	for i := range 100 {
		q := make(Descriptor, 128)
		for k := range q {
			q[k] = rng.Float32()*0.4 - 0.2
		}
		want, _ := orig.Match(q)
		got, _ := restored.Match(q)
		if got.Label != want.Label {
			t.Errorf("query %d: Label = %q, want %q", i, got.Label, want.Label)
		}
		if diff := got.Distance - want.Distance; diff > 1e-6 || diff < -1e-6 {
			t.Errorf("query %d: Distance = %v, want %v", i, got.Distance, want.Distance)
		}
	}
}

func TestRecordJSONShape(t *testing.T) {
	r, err := NewRecognizer(Gallery{{Label: "alice", Descriptors: []Descriptor{{0.5, -0.25}}}}, 0.6)
	if err != nil {
		t.Fatalf("NewRecognizer() error = %v", err)
	}
	data, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("json.Marshal() error = %v", err)
	}

	want := `{"version":1,"labeledDescriptors":[{"label":"alice","descriptors":[[0.5,-0.25]]}],"distanceThreshold":0.6}`
	if string(data) != want {
		t.Errorf("json = %s, want %s", data, want)
	}
}

func TestReadRecognizerLegacy(t *testing.T) {
	legacy := `{"labeledDescriptors":[{"label":"bob","descriptors":[[1,1],[0.9,1]]}],"distanceThreshold":0.5}`
	r, err := ReadRecognizer(strings.NewReader(legacy))
	if err != nil {
		t.Fatalf("ReadRecognizer() error = %v", err)
	}
	res, _ := r.Match(Descriptor{1, 1})
	if res.Label != "bob" || r.Threshold() != 0.5 {
		t.Errorf("legacy record: Match = %+v, Threshold = %v", res, r.Threshold())
	}
}

func TestReadRecognizerErrors(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr error
	}{
		{"future version", `{"version":2,"labeledDescriptors":[{"label":"a","descriptors":[[1]]}],"distanceThreshold":0.5}`, ErrUnsupportedRecordVersion},
		{"empty gallery", `{"version":1,"labeledDescriptors":[],"distanceThreshold":0.5}`, ErrEmptyGallery},
		{"negative threshold", `{"version":1,"labeledDescriptors":[{"label":"a","descriptors":[[1]]}],"distanceThreshold":-1}`, ErrInvalidThreshold},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadRecognizer(strings.NewReader(tt.input))
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ReadRecognizer() error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	if _, err := ReadRecognizer(strings.NewReader("{not json")); err == nil {
		t.Error("ReadRecognizer() on malformed input returned nil error")
	}
}

func TestSaveAndLoadFile(t *testing.T) {
	r, err := NewRecognizer(Gallery{
		{Label: "alice", Descriptors: []Descriptor{{0, 0}}},
		{Label: "bob", Descriptors: []Descriptor{{1, 1}}},
	}, 0.6)
	if err != nil {
		t.Fatalf("NewRecognizer() error = %v", err)
	}

	path := filepath.Join(t.TempDir(), "recognizer.json")
	if err := r.SaveFile(path); err != nil {
		t.Fatalf("SaveFile() error = %v", err)
	}
	loaded, err := LoadRecognizerFile(path)
	if err != nil {
		t.Fatalf("LoadRecognizerFile() error = %v", err)
	}
	if loaded.Len() != 2 {
		t.Errorf("Len() = %d, want 2", loaded.Len())
	}

	if _, err := LoadRecognizerFile(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("LoadRecognizerFile() on missing file returned nil error")
	}
}
