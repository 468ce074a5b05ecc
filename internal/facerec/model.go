package facerec

import (
	"fmt"
	"strings"
)

// ModelID identifies one of the supported networks of the extractor service.
type ModelID int

const (
	// TinyFaceDetector is the small and fast detector, less accurate on small faces.
	TinyFaceDetector ModelID = iota + 1
	// SsdMobilenetv1 is the default detector.
	SsdMobilenetv1
	// Mtcnn is the multi-task cascaded detector.
	Mtcnn
	// FaceLandmark68Net is required for descriptor extraction.
	FaceLandmark68Net
	// FaceRecognitionNet produces the descriptors.
	FaceRecognitionNet
)

var modelNames = map[ModelID]string{
	TinyFaceDetector:   "TinyFaceDetector",
	SsdMobilenetv1:     "SsdMobilenetv1",
	Mtcnn:              "Mtcnn",
	FaceLandmark68Net:  "FaceLandmark68Net",
	FaceRecognitionNet: "FaceRecognitionNet",
}

// Detectors lists the detector models in their canonical order.
var Detectors = []ModelID{TinyFaceDetector, SsdMobilenetv1, Mtcnn}

// RequiredNets are initialized for every engine regardless of the detector selection.
var RequiredNets = []ModelID{FaceLandmark68Net, FaceRecognitionNet}

func (m ModelID) String() string {
	if name, ok := modelNames[m]; ok {
		return name
	}
	return fmt.Sprintf("ModelID(%d)", int(m))
}

// IsDetector reports whether the model is a face detector usable in a priority list.
func (m ModelID) IsDetector() bool {
	return m == TinyFaceDetector || m == SsdMobilenetv1 || m == Mtcnn
}

// MarshalText implements encoding.TextMarshaler.
func (m ModelID) MarshalText() ([]byte, error) {
	if _, ok := modelNames[m]; !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownModel, int(m))
	}
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *ModelID) UnmarshalText(text []byte) error {
	id, err := ParseModelID(string(text))
	if err != nil {
		return err
	}
	*m = id
	return nil
}

// ParseModelID parses a model name case-insensitively.
func ParseModelID(s string) (ModelID, error) {
	name := strings.TrimSpace(s)
	for id, n := range modelNames {
		if strings.EqualFold(n, name) {
			return id, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownModel, s)
}

// ParseModelIDs parses a list of model names, failing on the first unknown one.
func ParseModelIDs(names []string) ([]ModelID, error) {
	ids := make([]ModelID, 0, len(names))
	for _, n := range names {
		if strings.TrimSpace(n) == "" {
			continue
		}
		id, err := ParseModelID(n)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// ModelOptions holds the detector parameters sent to the extractor.
// Only the fields relevant to the model are used.
type ModelOptions struct {
	InputSize      int     `yaml:"input_size" json:"input_size,omitempty"`           // TinyFaceDetector
	ScoreThreshold float64 `yaml:"score_threshold" json:"score_threshold,omitempty"` // TinyFaceDetector
	MinConfidence  float64 `yaml:"min_confidence" json:"min_confidence,omitempty"`   // SsdMobilenetv1
	MaxResults     int     `yaml:"max_results" json:"max_results,omitempty"`         // SsdMobilenetv1
	MinFaceSize    int     `yaml:"min_face_size" json:"min_face_size,omitempty"`     // Mtcnn
	ScaleFactor    float64 `yaml:"scale_factor" json:"scale_factor,omitempty"`       // Mtcnn
}

// DefaultModelOptions returns the stock options for a detector.
func DefaultModelOptions(m ModelID) ModelOptions {
	switch m {
	case TinyFaceDetector:
		return ModelOptions{InputSize: 416, ScoreThreshold: 0.5}
	case SsdMobilenetv1:
		return ModelOptions{MinConfidence: 0.5, MaxResults: 100}
	case Mtcnn:
		return ModelOptions{MinFaceSize: 20, ScaleFactor: 0.709}
	default:
		return ModelOptions{}
	}
}
