package database

import (
	"context"
)

// GalleryReader provides read-only access to enrolled descriptors
type GalleryReader interface {
	// All returns every descriptor ordered by ID
	All(ctx context.Context) ([]StoredDescriptor, error)
	// ByLabel returns the descriptors of a label. Labels are normalized before
	// comparison (lowercase, no diacritics, dashes to spaces) so "jan-novak" matches "Jan Novák".
	ByLabel(ctx context.Context, label string) ([]StoredDescriptor, error)
	// Labels returns the distinct labels in enrollment order
	Labels(ctx context.Context) ([]string, error)
	// Count returns the total number of descriptors stored
	Count(ctx context.Context) (int, error)
	// FindNearest returns the k descriptors closest to desc by Euclidean distance
	FindNearest(ctx context.Context, desc []float32, k int) ([]Neighbor, error)
}

// GalleryWriter provides write access to enrolled descriptors
type GalleryWriter interface {
	GalleryReader

	// Save stores descriptors and returns their assigned IDs
	Save(ctx context.Context, descs []StoredDescriptor) ([]int64, error)
	// DeleteLabel removes every descriptor of a label and returns the deleted IDs for index cleanup
	DeleteLabel(ctx context.Context, label string) ([]int64, error)
}
