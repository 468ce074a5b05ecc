// Package mock provides mock implementations of database interfaces for testing.
package mock

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/kozaktomas/facerec/internal/database"
	"github.com/kozaktomas/facerec/internal/facematch"
	"github.com/kozaktomas/facerec/internal/facerec"
)

// MockGallery is an in-memory implementation of database.GalleryWriter
type MockGallery struct {
	mu     sync.RWMutex
	descs  []database.StoredDescriptor
	nextID int64

	// Error injection
	AllError         error
	ByLabelError     error
	LabelsError      error
	CountError       error
	FindNearestError error
	SaveError        error
	DeleteError      error
}

// NewMockGallery creates an empty mock gallery
func NewMockGallery() *MockGallery {
	return &MockGallery{nextID: 1}
}

// AddDescriptors adds descriptors without going through Save
func (m *MockGallery) AddDescriptors(descs ...database.StoredDescriptor) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range descs {
		m.assign(&d)
		m.descs = append(m.descs, d)
	}
}

func (m *MockGallery) assign(d *database.StoredDescriptor) {
	if d.ID == 0 {
		d.ID = m.nextID
	}
	if d.ID >= m.nextID {
		m.nextID = d.ID + 1
	}
	if d.Dim == 0 {
		d.Dim = len(d.Descriptor)
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now()
	}
}

// All returns every descriptor ordered by ID
func (m *MockGallery) All(_ context.Context) ([]database.StoredDescriptor, error) {
	if m.AllError != nil {
		return nil, m.AllError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.descs), nil
}

// ByLabel returns the descriptors of a normalized label
func (m *MockGallery) ByLabel(_ context.Context, label string) ([]database.StoredDescriptor, error) {
	if m.ByLabelError != nil {
		return nil, m.ByLabelError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []database.StoredDescriptor
	for _, d := range m.descs {
		if facematch.SameLabel(d.Label, label) {
			out = append(out, d)
		}
	}
	return out, nil
}

// Labels returns distinct labels in enrollment order
func (m *MockGallery) Labels(_ context.Context) ([]string, error) {
	if m.LabelsError != nil {
		return nil, m.LabelsError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var labels []string
	for _, d := range m.descs {
		if !slices.Contains(labels, d.Label) {
			labels = append(labels, d.Label)
		}
	}
	return labels, nil
}

// Count returns the number of descriptors
func (m *MockGallery) Count(_ context.Context) (int, error) {
	if m.CountError != nil {
		return 0, m.CountError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.descs), nil
}

// FindNearest does a brute-force Euclidean search
func (m *MockGallery) FindNearest(_ context.Context, desc []float32, k int) ([]database.Neighbor, error) {
	if m.FindNearestError != nil {
		return nil, m.FindNearestError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []database.Neighbor
	for _, d := range m.descs {
		if len(d.Descriptor) != len(desc) {
			continue
		}
		out = append(out, database.Neighbor{
			StoredDescriptor: d,
			Distance:         facerec.EuclideanDistance(desc, d.Descriptor),
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Distance < out[j].Distance })
	if k >= 0 && len(out) > k {
		out = out[:k]
	}
	return out, nil
}

// Save stores descriptors and assigns IDs
func (m *MockGallery) Save(_ context.Context, descs []database.StoredDescriptor) ([]int64, error) {
	if m.SaveError != nil {
		return nil, m.SaveError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]int64, len(descs))
	for i := range descs {
		d := descs[i]
		d.ID = 0
		m.assign(&d)
		m.descs = append(m.descs, d)
		ids[i] = d.ID
	}
	return ids, nil
}

// DeleteLabel removes a label's descriptors
func (m *MockGallery) DeleteLabel(_ context.Context, label string) ([]int64, error) {
	if m.DeleteError != nil {
		return nil, m.DeleteError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []int64
	kept := m.descs[:0]
	for _, d := range m.descs {
		if facematch.SameLabel(d.Label, label) {
			ids = append(ids, d.ID)
			continue
		}
		kept = append(kept, d)
	}
	m.descs = kept
	return ids, nil
}

var _ database.GalleryWriter = (*MockGallery)(nil)
