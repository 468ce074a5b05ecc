package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/pgvector/pgvector-go"
	log "github.com/sirupsen/logrus"

	"github.com/kozaktomas/facerec/internal/database"
	"github.com/kozaktomas/facerec/internal/facematch"
)

const descriptorColumns = `id, label, image_ref, descriptor, model, dim, created_at`

// GalleryRepository provides PostgreSQL-backed gallery storage with optional in-memory HNSW index.
type GalleryRepository struct {
	pool          *Pool
	hnswIndex     *database.HNSWIndex
	hnswIndexPath string // Path to persist HNSW index (optional)
	hnswMu        sync.RWMutex
	logger        log.FieldLogger
}

// NewGalleryRepository creates a new PostgreSQL gallery repository.
func NewGalleryRepository(pool *Pool) *GalleryRepository {
	return &GalleryRepository{
		pool:   pool,
		logger: log.WithField("component", "gallery"),
	}
}

// All returns every descriptor ordered by ID.
func (r *GalleryRepository) All(ctx context.Context) ([]database.StoredDescriptor, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+descriptorColumns+` FROM gallery_descriptors ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query descriptors: %w", err)
	}
	defer rows.Close()
	return scanDescriptors(rows)
}

// ByLabel returns the descriptors of a label, compared after normalization.
func (r *GalleryRepository) ByLabel(ctx context.Context, label string) ([]database.StoredDescriptor, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+descriptorColumns+`
		FROM gallery_descriptors
		WHERE label_key = $1
		ORDER BY id
	`, facematch.NormalizeLabel(label))
	if err != nil {
		return nil, fmt.Errorf("query descriptors by label: %w", err)
	}
	defer rows.Close()
	return scanDescriptors(rows)
}

// Labels returns the distinct labels in enrollment order.
func (r *GalleryRepository) Labels(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT label FROM gallery_descriptors
		GROUP BY label
		ORDER BY MIN(id)
	`)
	if err != nil {
		return nil, fmt.Errorf("query labels: %w", err)
	}
	defer rows.Close()

	var labels []string
	for rows.Next() {
		var l string
		if err := rows.Scan(&l); err != nil {
			return nil, fmt.Errorf("scan label: %w", err)
		}
		labels = append(labels, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate labels: %w", err)
	}
	return labels, nil
}

// Count returns the total number of descriptors stored.
func (r *GalleryRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM gallery_descriptors").Scan(&n); err != nil {
		return 0, fmt.Errorf("count descriptors: %w", err)
	}
	return n, nil
}

// FindNearest returns the k closest descriptors by Euclidean distance.
// Uses the in-memory HNSW index if enabled, otherwise falls back to PostgreSQL.
func (r *GalleryRepository) FindNearest(ctx context.Context, desc []float32, k int) ([]database.Neighbor, error) {
	r.hnswMu.RLock()
	idx := r.hnswIndex
	r.hnswMu.RUnlock()

	if idx != nil && idx.Count() > 0 {
		neighbors, err := idx.Search(desc, k)
		if err != nil {
			return nil, fmt.Errorf("HNSW search: %w", err)
		}
		return neighbors, nil
	}
	return r.findNearestPostgres(ctx, desc, k)
}

func (r *GalleryRepository) findNearestPostgres(ctx context.Context, desc []float32, k int) ([]database.Neighbor, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+descriptorColumns+`, descriptor <-> $1::vector AS distance
		FROM gallery_descriptors
		WHERE dim = $3
		ORDER BY distance
		LIMIT $2
	`, pgvector.NewVector(desc), k, len(desc))
	if err != nil {
		return nil, fmt.Errorf("query nearest descriptors: %w", err)
	}
	defer rows.Close()

	var out []database.Neighbor
	for rows.Next() {
		var n database.Neighbor
		d, err := scanDescriptorRow(rows, &n.Distance)
		if err != nil {
			return nil, err
		}
		n.StoredDescriptor = d
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate nearest descriptors: %w", err)
	}
	return out, nil
}

// Save stores descriptors in one transaction and returns their IDs.
func (r *GalleryRepository) Save(ctx context.Context, descs []database.StoredDescriptor) ([]int64, error) {
	tx, err := r.pool.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	ids := make([]int64, len(descs))
	for i := range descs {
		d := &descs[i]
		if d.Dim == 0 {
			d.Dim = len(d.Descriptor)
		}
		err := tx.QueryRowContext(ctx, `
			INSERT INTO gallery_descriptors (label, label_key, image_ref, descriptor, model, dim)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id, created_at
		`, d.Label, facematch.NormalizeLabel(d.Label), d.ImageRef, pgvector.NewVector(d.Descriptor), d.Model, d.Dim,
		).Scan(&d.ID, &d.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("insert descriptor for %q: %w", d.Label, err)
		}
		ids[i] = d.ID
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit descriptors: %w", err)
	}

	r.hnswMu.RLock()
	if r.hnswIndex != nil {
		for _, d := range descs {
			r.hnswIndex.Add(d)
		}
	}
	r.hnswMu.RUnlock()

	return ids, nil
}

// DeleteLabel removes every descriptor of a label and returns the deleted IDs.
func (r *GalleryRepository) DeleteLabel(ctx context.Context, label string) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `DELETE FROM gallery_descriptors WHERE label_key = $1 RETURNING id`,
		facematch.NormalizeLabel(label))
	if err != nil {
		return nil, fmt.Errorf("delete label: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan deleted id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate deleted ids: %w", err)
	}

	r.hnswMu.RLock()
	if r.hnswIndex != nil {
		r.hnswIndex.Delete(ids...)
	}
	r.hnswMu.RUnlock()

	return ids, nil
}

// EnableHNSW loads the index from indexPath when it matches the table, otherwise rebuilds it.
func (r *GalleryRepository) EnableHNSW(ctx context.Context, indexPath string) error {
	r.hnswMu.Lock()
	defer r.hnswMu.Unlock()

	r.hnswIndexPath = indexPath

	var dbCount, dbMaxID int64
	err := r.pool.QueryRow(ctx, "SELECT COUNT(*), COALESCE(MAX(id), 0) FROM gallery_descriptors").Scan(&dbCount, &dbMaxID)
	if err != nil {
		return fmt.Errorf("failed to get gallery stats: %w", err)
	}

	if indexPath != "" {
		idx := database.NewHNSWIndex()
		ok, err := idx.Load(indexPath)
		switch {
		case err != nil:
			r.logger.WithError(err).Warn("failed to load HNSW index, rebuilding")
		case ok && int64(idx.Count()) == dbCount && (dbCount == 0 || idx.Get(dbMaxID) != nil):
			r.hnswIndex = idx
			r.logger.WithField("count", dbCount).Info("loaded HNSW index from disk")
			return nil
		case ok:
			r.logger.Info("HNSW index on disk is stale, rebuilding")
		}
	}

	descs, err := r.All(ctx)
	if err != nil {
		return fmt.Errorf("failed to load descriptors: %w", err)
	}

	r.hnswIndex = database.NewHNSWIndex()
	r.hnswIndex.Build(descs)
	r.logger.WithField("count", len(descs)).Info("built HNSW index")

	if indexPath != "" && len(descs) > 0 {
		if err := r.hnswIndex.Save(indexPath); err != nil {
			r.logger.WithError(err).Warn("failed to save HNSW index to disk")
		}
	}
	return nil
}

// HNSWCount returns the number of items in the HNSW index.
func (r *GalleryRepository) HNSWCount() int {
	r.hnswMu.RLock()
	defer r.hnswMu.RUnlock()
	if r.hnswIndex == nil {
		return 0
	}
	return r.hnswIndex.Count()
}

// RebuildHNSW rebuilds the HNSW index from PostgreSQL data.
func (r *GalleryRepository) RebuildHNSW(ctx context.Context) error {
	r.hnswMu.RLock()
	indexPath := r.hnswIndexPath
	r.hnswMu.RUnlock()
	return r.EnableHNSW(ctx, indexPath)
}

// SaveHNSWIndex saves the current HNSW index to disk (if path configured).
func (r *GalleryRepository) SaveHNSWIndex() error {
	r.hnswMu.RLock()
	defer r.hnswMu.RUnlock()

	if r.hnswIndexPath == "" || r.hnswIndex == nil {
		return nil
	}
	if err := r.hnswIndex.Save(r.hnswIndexPath); err != nil {
		return fmt.Errorf("saving HNSW gallery index: %w", err)
	}
	r.logger.WithField("path", r.hnswIndexPath).Info("saved HNSW index")
	return nil
}

func scanDescriptors(rows *sql.Rows) ([]database.StoredDescriptor, error) {
	var descs []database.StoredDescriptor
	for rows.Next() {
		d, err := scanDescriptorRow(rows)
		if err != nil {
			return nil, err
		}
		descs = append(descs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate descriptors: %w", err)
	}
	return descs, nil
}

func scanDescriptorRow(scanner interface{ Scan(...any) error }, extraDest ...any) (database.StoredDescriptor, error) {
	var d database.StoredDescriptor
	var vec pgvector.Vector

	dest := make([]any, 0, 7+len(extraDest))
	dest = append(dest, &d.ID, &d.Label, &d.ImageRef, &vec, &d.Model, &d.Dim, &d.CreatedAt)
	dest = append(dest, extraDest...)

	if err := scanner.Scan(dest...); err != nil {
		return d, fmt.Errorf("scan descriptor: %w", err)
	}
	d.Descriptor = vec.Slice()
	return d, nil
}
