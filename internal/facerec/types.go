package facerec

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"  // register GIF decoder
	_ "image/jpeg" // register JPEG decoder
	_ "image/png"  // register PNG decoder

	_ "golang.org/x/image/bmp"  // register BMP decoder
	_ "golang.org/x/image/tiff" // register TIFF decoder
	_ "golang.org/x/image/webp" // register WebP decoder
)

// UnknownLabel is reported when the nearest gallery descriptor is farther than the threshold.
const UnknownLabel = "unknown"

// Descriptor is a face embedding vector produced by the extractor.
type Descriptor []float32

// Clone returns a copy of the descriptor.
func (d Descriptor) Clone() Descriptor {
	if d == nil {
		return nil
	}
	out := make(Descriptor, len(d))
	copy(out, d)
	return out
}

// Box is a face bounding box in pixel coordinates.
type Box struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Rect converts the box to an integer rectangle.
func (b Box) Rect() image.Rectangle {
	return image.Rect(int(b.X), int(b.Y), int(b.X+b.Width), int(b.Y+b.Height))
}

// Point is a facial landmark position in pixel coordinates.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Detection pairs a descriptor with the detection metadata it came from.
type Detection struct {
	Descriptor Descriptor `json:"descriptor"`
	Box        Box        `json:"box"`
	Landmarks  []Point    `json:"landmarks,omitempty"`
	Score      float64    `json:"score"`
	Model      ModelID    `json:"model,omitempty"`
}

// LabeledDescriptors is a label with the descriptors believed to belong to it.
type LabeledDescriptors struct {
	Label       string       `json:"label"`
	Descriptors []Descriptor `json:"descriptors"`
}

func (l LabeledDescriptors) validate() error {
	if l.Label == "" {
		return ErrEmptyLabel
	}
	if len(l.Descriptors) == 0 {
		return fmt.Errorf("%w: label %q", ErrNoDescriptors, l.Label)
	}
	return nil
}

func (l LabeledDescriptors) clone() LabeledDescriptors {
	out := LabeledDescriptors{Label: l.Label, Descriptors: make([]Descriptor, len(l.Descriptors))}
	for i, d := range l.Descriptors {
		out.Descriptors[i] = d.Clone()
	}
	return out
}

// Gallery is the ordered labeled corpus a Recognizer is built from.
type Gallery []LabeledDescriptors

// MatchResult is the outcome of comparing one unknown descriptor against a gallery.
type MatchResult struct {
	Label             string     `json:"label"`
	Distance          float64    `json:"distance"`
	Confidence        float64    `json:"confidence"`
	PercentConfidence int        `json:"percent_confidence"`
	Detection         *Detection `json:"detection,omitempty"`
}

// Known reports whether the match resolved to a gallery label.
func (m MatchResult) Known() bool {
	return m.Label != UnknownLabel
}

// Image is an encoded image handed from an ImageSource to the extractor.
type Image struct {
	Ref    string
	Data   []byte
	Format string
	Width  int
	Height int
}

// Decode decodes the image payload.
func (i *Image) Decode() (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(i.Data))
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", i.Ref, err)
	}
	return img, nil
}

// NewImage validates data as a decodable image and records its format and size.
func NewImage(ref string, data []byte) (*Image, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, &ImageLoadError{Ref: ref, Err: err}
	}
	return &Image{
		Ref:    ref,
		Data:   data,
		Format: format,
		Width:  cfg.Width,
		Height: cfg.Height,
	}, nil
}
