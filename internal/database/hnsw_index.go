package database

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/coder/hnsw"
	log "github.com/sirupsen/logrus"

	"github.com/kozaktomas/facerec/internal/facerec"
)

// ErrIndexEmpty is returned by Search on an index with no graph.
var ErrIndexEmpty = errors.New("index not initialized")

// HNSWIndex wraps the HNSW graph for nearest gallery descriptor search.
// The descriptor length is fixed by the first inserted descriptor.
type HNSWIndex struct {
	graph  *hnsw.Graph[int64]
	byID   map[int64]*StoredDescriptor // Maps HNSW node ID to descriptor
	dim    int
	mu     sync.RWMutex
	logger log.FieldLogger
}

// NewHNSWIndex creates a new empty HNSW index.
func NewHNSWIndex() *HNSWIndex {
	return &HNSWIndex{
		byID:   make(map[int64]*StoredDescriptor),
		logger: log.WithField("component", "hnsw"),
	}
}

func newGraph() *hnsw.Graph[int64] {
	g := hnsw.NewGraph[int64]()
	g.M = HNSWMaxNeighbors
	g.Ml = 1.0 / float64(HNSWMaxNeighbors) // Standard HNSW formula
	g.EfSearch = HNSWEfSearch
	g.Distance = hnsw.EuclideanDistance
	return g
}

// Build replaces the index content with descs.
func (h *HNSWIndex) Build(descs []StoredDescriptor) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.byID = make(map[int64]*StoredDescriptor, len(descs))
	h.dim = 0
	h.graph = nil
	if len(descs) == 0 {
		return
	}

	h.graph = newGraph()
	for i := range descs {
		h.addLocked(&descs[i])
	}
}

// addLocked inserts d unless its length differs from the index dimension.
func (h *HNSWIndex) addLocked(d *StoredDescriptor) {
	n := len(d.Descriptor)
	if n == 0 {
		return
	}
	if h.dim == 0 {
		h.dim = n
	}
	if n != h.dim {
		h.logger.WithFields(log.Fields{
			"id":    d.ID,
			"label": d.Label,
			"dim":   n,
			"want":  h.dim,
		}).Warn("skipping descriptor with mismatched dimension")
		return
	}
	h.graph.Add(hnsw.MakeNode(d.ID, d.Descriptor))
	h.byID[d.ID] = d
}

// Add inserts a single descriptor.
func (h *HNSWIndex) Add(d StoredDescriptor) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.graph == nil {
		h.graph = newGraph()
	}
	h.addLocked(&d)
}

// Delete hides a descriptor from search results.
func (h *HNSWIndex) Delete(ids ...int64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	// The graph keeps the node; lookups filter it out.
	for _, id := range ids {
		delete(h.byID, id)
	}
}

// Search finds the k nearest descriptors to query, closest first.
// Distances are exact Euclidean distances.
func (h *HNSWIndex) Search(query []float32, k int) ([]Neighbor, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.graph == nil || h.dim == 0 {
		return nil, ErrIndexEmpty
	}
	if len(query) != h.dim {
		return nil, fmt.Errorf("%w: query has %d values, index has %d",
			facerec.ErrDimensionMismatch, len(query), h.dim)
	}
	if k <= 0 {
		return nil, nil
	}

	nodes := h.graph.Search(query, k*HNSWSearchMultiplier)
	out := make([]Neighbor, 0, k)
	for _, n := range nodes {
		d, ok := h.byID[n.Key]
		if !ok {
			continue
		}
		out = append(out, Neighbor{
			StoredDescriptor: *d,
			Distance:         facerec.EuclideanDistance(query, facerec.Descriptor(n.Value)),
		})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Distance < out[j].Distance })
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

// Get returns the descriptor for a given ID.
func (h *HNSWIndex) Get(id int64) *StoredDescriptor {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.byID[id]
}

// Dim returns the descriptor length of the index, 0 when nothing was inserted.
func (h *HNSWIndex) Dim() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.dim
}

// Count returns the number of searchable descriptors.
func (h *HNSWIndex) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.byID)
}

// Save persists the graph to path and the descriptor metadata to path + ".gallery".
func (h *HNSWIndex) Save(path string) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.graph == nil {
		// Remove existing files if index is empty (best-effort cleanup).
		_ = os.Remove(path)
		_ = os.Remove(path + ".gallery")
		return nil
	}

	f, err := os.Create(path) //nolint:gosec // path is from trusted config
	if err != nil {
		return fmt.Errorf("failed to create HNSW index file: %w", err)
	}
	if err := h.graph.Export(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to export HNSW graph: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close HNSW index file: %w", err)
	}

	descs := make([]StoredDescriptor, 0, len(h.byID))
	for _, d := range h.byID {
		descs = append(descs, *d)
	}
	sort.Slice(descs, func(i, j int) bool { return descs[i].ID < descs[j].ID })

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(descs); err != nil {
		return fmt.Errorf("failed to encode descriptors: %w", err)
	}
	if err := os.WriteFile(path+".gallery", buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("failed to write descriptors file: %w", err)
	}
	return nil
}

// Load reads an index written by Save. A missing index file is not an error;
// the index stays empty and the caller rebuilds it.
func (h *HNSWIndex) Load(path string) (bool, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return false, nil
	}

	saved, err := hnsw.LoadSavedGraph[int64](path)
	if err != nil {
		return false, fmt.Errorf("failed to load HNSW index: %w", err)
	}

	data, err := os.ReadFile(path + ".gallery") //nolint:gosec // path is from trusted config
	if err != nil {
		return false, fmt.Errorf("failed to read descriptors file: %w", err)
	}
	var descs []StoredDescriptor
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&descs); err != nil {
		return false, fmt.Errorf("failed to decode descriptors: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.graph = saved.Graph
	h.byID = make(map[int64]*StoredDescriptor, len(descs))
	h.dim = 0
	for i := range descs {
		h.byID[descs[i].ID] = &descs[i]
		if h.dim == 0 {
			h.dim = len(descs[i].Descriptor)
		}
	}
	return true, nil
}
