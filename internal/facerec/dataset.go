package facerec

import (
	"context"
	"errors"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"
)

// ImageSource fetches or loads an image by reference.
// Failures are reported as *ImageLoadError.
type ImageSource interface {
	Load(ctx context.Context, ref string) (*Image, error)
}

// DatasetEntry is a labeled image reference awaiting extraction.
type DatasetEntry struct {
	Label    string `json:"label" yaml:"label"`
	ImageRef string `json:"image" yaml:"image"`
}

func (e DatasetEntry) complete() bool {
	return e.Label != "" && e.ImageRef != ""
}

// TransformFunc remaps an input entry before it is appended.
type TransformFunc func(DatasetEntry) DatasetEntry

// SkippedEntry records an entry that was dropped and why.
type SkippedEntry struct {
	Index int
	Entry DatasetEntry
	Err   error
}

// ImportReport summarizes a bulk import.
type ImportReport struct {
	Added   int
	Skipped []SkippedEntry
}

// ConversionReport summarizes a dataset to gallery conversion.
type ConversionReport struct {
	Total     int
	Converted int
	Skipped   []SkippedEntry
	// Models holds the detector that produced each converted set, in gallery order.
	Models []ModelID
}

// Dataset accumulates labeled image references. It is not safe for concurrent writers.
type Dataset struct {
	entries []DatasetEntry
	logger  log.FieldLogger
}

// NewDataset creates an empty dataset.
func NewDataset() *Dataset {
	return &Dataset{logger: log.WithField("component", "dataset")}
}

// SetLogger replaces the dataset logger.
func (d *Dataset) SetLogger(l log.FieldLogger) {
	d.logger = l
}

// Len returns the number of entries.
func (d *Dataset) Len() int {
	return len(d.entries)
}

// Entries returns a copy of the accumulated entries.
func (d *Dataset) Entries() []DatasetEntry {
	out := make([]DatasetEntry, len(d.entries))
	copy(out, d.entries)
	return out
}

// Append adds one labeled image reference.
func (d *Dataset) Append(label, imageRef string) error {
	if label == "" {
		return ErrEmptyLabel
	}
	d.entries = append(d.entries, DatasetEntry{Label: label, ImageRef: imageRef})
	return nil
}

// AddEntries appends entries, optionally remapping each through transform.
// Entries left without a label or image reference are skipped with a warning.
func (d *Dataset) AddEntries(entries []DatasetEntry, transform TransformFunc) ImportReport {
	if transform == nil {
		transform = func(e DatasetEntry) DatasetEntry { return e }
	}
	return ImportFunc(d, entries, func(e DatasetEntry) DatasetEntry { return transform(e) })
}

// ImportFunc appends items of any shape using transform to produce the entries.
func ImportFunc[T any](d *Dataset, items []T, transform func(T) DatasetEntry) ImportReport {
	var report ImportReport
	for i, item := range items {
		entry := transform(item)
		if !entry.complete() {
			err := fmt.Errorf("%w: entry %d (label=%q, image=%q)", ErrTransformIncomplete, i, entry.Label, entry.ImageRef)
			d.logger.WithFields(log.Fields{"index": i, "label": entry.Label, "image": entry.ImageRef}).
				Warn("transform did not produce a label and image reference, skipping entry")
			report.Skipped = append(report.Skipped, SkippedEntry{Index: i, Entry: entry, Err: err})
			continue
		}
		d.entries = append(d.entries, entry)
		report.Added++
	}
	return report
}

type convertSettings struct {
	workers  int
	progress func(done, total int)
}

// ConvertOption configures ToGallery.
type ConvertOption func(*convertSettings)

// WithWorkers bounds the number of concurrent extractions. Values below 1 mean sequential.
func WithWorkers(n int) ConvertOption {
	return func(s *convertSettings) {
		if n < 1 {
			n = 1
		}
		s.workers = n
	}
}

// WithProgress registers a callback invoked after each entry is processed.
func WithProgress(fn func(done, total int)) ConvertOption {
	return func(s *convertSettings) {
		s.progress = fn
	}
}

type convertResult struct {
	set   LabeledDescriptors
	model ModelID
	err   error
}

// ToGallery extracts one descriptor per entry and returns the labeled sets that yielded a face.
// Per-entry failures are skipped and reported; only context cancellation aborts.
// The gallery keeps append order independently of the worker count.
func (d *Dataset) ToGallery(ctx context.Context, engine *Engine, src ImageSource, opts ...ConvertOption) (Gallery, ConversionReport, error) {
	settings := convertSettings{workers: 1}
	for _, opt := range opts {
		opt(&settings)
	}

	entries := d.Entries()
	results := make([]convertResult, len(entries))
	report := ConversionReport{Total: len(entries)}

	var (
		mu   sync.Mutex
		done int
		wg   sync.WaitGroup
	)
	sem := make(chan struct{}, settings.workers)

	for i, entry := range entries {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		go func(i int, entry DatasetEntry) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			results[i] = convertEntry(ctx, engine, src, entry)

			mu.Lock()
			done++
			n := done
			mu.Unlock()
			if settings.progress != nil {
				settings.progress(n, len(entries))
			}
		}(i, entry)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, report, fmt.Errorf("converting dataset: %w", err)
	}

	gallery := make(Gallery, 0, len(entries))
	for i, res := range results {
		if res.err != nil {
			d.logger.WithFields(log.Fields{
				"index": i,
				"label": entries[i].Label,
				"image": entries[i].ImageRef,
			}).WithError(res.err).Warn("skipping dataset entry")
			report.Skipped = append(report.Skipped, SkippedEntry{Index: i, Entry: entries[i], Err: res.err})
			continue
		}
		gallery = append(gallery, res.set)
		report.Models = append(report.Models, res.model)
	}
	report.Converted = len(gallery)

	d.logger.WithFields(log.Fields{
		"total":     report.Total,
		"converted": report.Converted,
		"skipped":   len(report.Skipped),
	}).Info("dataset converted")

	return gallery, report, nil
}

func convertEntry(ctx context.Context, engine *Engine, src ImageSource, entry DatasetEntry) convertResult {
	if err := ctx.Err(); err != nil {
		return convertResult{err: err}
	}
	img, err := src.Load(ctx, entry.ImageRef)
	if err != nil {
		var loadErr *ImageLoadError
		if !errors.As(err, &loadErr) {
			err = &ImageLoadError{Ref: entry.ImageRef, Err: err}
		}
		return convertResult{err: err}
	}
	set, model, err := engine.labeledDetection(ctx, entry.Label, img)
	if err != nil {
		return convertResult{err: err}
	}
	return convertResult{set: set, model: model}
}
