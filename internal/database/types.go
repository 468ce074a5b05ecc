package database

import (
	"time"

	"github.com/kozaktomas/facerec/internal/facerec"
)

// StoredDescriptor is one enrolled face descriptor.
type StoredDescriptor struct {
	ID         int64
	Label      string
	ImageRef   string // image the descriptor was extracted from, may be empty
	Descriptor []float32
	Model      string // detector that found the face
	Dim        int
	CreatedAt  time.Time
}

// Neighbor is a stored descriptor with its Euclidean distance to a query.
type Neighbor struct {
	StoredDescriptor
	Distance float64
}

// BuildGallery groups descriptors by label in first-seen order.
func BuildGallery(descs []StoredDescriptor) facerec.Gallery {
	index := make(map[string]int)
	var gallery facerec.Gallery
	for _, d := range descs {
		if len(d.Descriptor) == 0 {
			continue
		}
		i, ok := index[d.Label]
		if !ok {
			i = len(gallery)
			index[d.Label] = i
			gallery = append(gallery, facerec.LabeledDescriptors{Label: d.Label})
		}
		gallery[i].Descriptors = append(gallery[i].Descriptors, facerec.Descriptor(d.Descriptor).Clone())
	}
	return gallery
}

// FromGallery flattens a gallery into descriptors ready to be saved.
func FromGallery(gallery facerec.Gallery, model string) []StoredDescriptor {
	var out []StoredDescriptor
	for _, set := range gallery {
		for _, d := range set.Descriptors {
			out = append(out, StoredDescriptor{
				Label:      set.Label,
				Descriptor: d.Clone(),
				Model:      model,
				Dim:        len(d),
			})
		}
	}
	return out
}
