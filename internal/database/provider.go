package database

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotInitialized is returned when no storage backend was registered.
var ErrNotInitialized = errors.New("PostgreSQL backend not initialized: DATABASE_URL is required")

// HNSWRebuilder is an interface for repositories that support HNSW index rebuilding
type HNSWRebuilder interface {
	// RebuildHNSW rebuilds the in-memory HNSW index
	RebuildHNSW(ctx context.Context) error
	// HNSWCount returns the number of items in the HNSW index
	HNSWCount() int
	// SaveHNSWIndex saves the current index to disk (if path configured)
	SaveHNSWIndex() error
}

var (
	postgresGalleryReader func() GalleryReader
	postgresGalleryWriter func() GalleryWriter
	postgresGalleryHNSW   HNSWRebuilder
	postgresInitialized   bool
)

// RegisterPostgresBackend registers PostgreSQL repository constructors.
// This is called by the postgres package to avoid import cycles.
func RegisterPostgresBackend(reader func() GalleryReader, writer func() GalleryWriter) {
	postgresGalleryReader = reader
	postgresGalleryWriter = writer
	postgresInitialized = true
}

// RegisterGalleryHNSWRebuilder registers the HNSW rebuilder for the gallery repository.
func RegisterGalleryHNSWRebuilder(rebuilder HNSWRebuilder) {
	postgresGalleryHNSW = rebuilder
}

// GetGalleryHNSWRebuilder returns the registered rebuilder, or nil if not registered.
func GetGalleryHNSWRebuilder() HNSWRebuilder {
	return postgresGalleryHNSW
}

// IsInitialized returns whether the PostgreSQL backend has been initialized.
func IsInitialized() bool {
	return postgresInitialized
}

// GetGalleryReader returns a GalleryReader from the PostgreSQL backend
func GetGalleryReader(_ context.Context) (GalleryReader, error) {
	if !postgresInitialized {
		return nil, ErrNotInitialized
	}
	if postgresGalleryReader == nil {
		return nil, fmt.Errorf("PostgreSQL gallery reader not registered")
	}
	return postgresGalleryReader(), nil
}

// GetGalleryWriter returns a GalleryWriter from the PostgreSQL backend
func GetGalleryWriter(_ context.Context) (GalleryWriter, error) {
	if !postgresInitialized {
		return nil, ErrNotInitialized
	}
	if postgresGalleryWriter == nil {
		return nil, fmt.Errorf("PostgreSQL gallery writer not registered")
	}
	return postgresGalleryWriter(), nil
}
