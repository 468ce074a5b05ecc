package facerec

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// RecordVersion is the current serialized recognizer format.
// Records without a version are read as legacy face-api matcher JSON.
const RecordVersion = 1

// Record is the portable form of a Recognizer.
type Record struct {
	Version            int           `json:"version"`
	LabeledDescriptors []RecordEntry `json:"labeledDescriptors"`
	DistanceThreshold  float64       `json:"distanceThreshold"`
}

// RecordEntry is one labeled set of a Record.
type RecordEntry struct {
	Label       string      `json:"label"`
	Descriptors [][]float32 `json:"descriptors"`
}

// Record returns the serializable form of the recognizer.
func (r *Recognizer) Record() Record {
	rec := Record{
		Version:            RecordVersion,
		LabeledDescriptors: make([]RecordEntry, len(r.gallery)),
		DistanceThreshold:  r.threshold,
	}
	for i, set := range r.gallery {
		entry := RecordEntry{Label: set.Label, Descriptors: make([][]float32, len(set.Descriptors))}
		for j, d := range set.Descriptors {
			entry.Descriptors[j] = d.Clone()
		}
		rec.LabeledDescriptors[i] = entry
	}
	return rec
}

// Gallery converts the record entries back to a gallery.
func (rec Record) Gallery() Gallery {
	g := make(Gallery, len(rec.LabeledDescriptors))
	for i, e := range rec.LabeledDescriptors {
		set := LabeledDescriptors{Label: e.Label, Descriptors: make([]Descriptor, len(e.Descriptors))}
		for j, d := range e.Descriptors {
			set.Descriptors[j] = Descriptor(d).Clone()
		}
		g[i] = set
	}
	return g
}

// FromRecord rebuilds a recognizer from its record.
func FromRecord(rec Record) (*Recognizer, error) {
	if rec.Version < 0 || rec.Version > RecordVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedRecordVersion, rec.Version)
	}
	return NewRecognizer(rec.Gallery(), rec.DistanceThreshold)
}

// MarshalJSON encodes the recognizer as its Record.
func (r *Recognizer) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Record())
}

// WriteTo writes the JSON record to w.
func (r *Recognizer) WriteTo(w io.Writer) (int64, error) {
	data, err := json.Marshal(r.Record())
	if err != nil {
		return 0, fmt.Errorf("encoding recognizer: %w", err)
	}
	n, err := w.Write(data)
	return int64(n), err
}

// ReadRecognizer decodes a JSON record from rd.
func ReadRecognizer(rd io.Reader) (*Recognizer, error) {
	var rec Record
	if err := json.NewDecoder(rd).Decode(&rec); err != nil {
		return nil, fmt.Errorf("decoding recognizer: %w", err)
	}
	return FromRecord(rec)
}

// LoadRecognizerFile reads a recognizer saved with SaveFile.
func LoadRecognizerFile(path string) (*Recognizer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening recognizer: %w", err)
	}
	defer f.Close()
	return ReadRecognizer(f)
}

// SaveFile writes the recognizer record to path via a temporary file and rename.
func (r *Recognizer) SaveFile(path string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := r.WriteTo(tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("writing recognizer: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("renaming recognizer file: %w", err)
	}
	return nil
}
