package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/kozaktomas/facerec/internal/config"
	"github.com/kozaktomas/facerec/internal/database"
	"github.com/kozaktomas/facerec/internal/facerec"
)

var enrollCmd = &cobra.Command{
	Use:   "enroll <manifest|directory>",
	Short: "Build a recognizer from a labeled image dataset",
	Long: `Extract one face descriptor per labeled image and save the resulting recognizer.

The dataset is either a YAML/JSON manifest holding a list of objects with a
label and an image reference, or a directory with one subdirectory per label.
Relative image paths are resolved against the manifest's directory. Images that
fail to load or contain no face are skipped and reported.

Examples:
  # Manifest with {label, image} objects
  facerec enroll people.yaml --out recognizer.json

  # Manifest with custom keys
  facerec enroll export.json --label-field name --image-field photo_url

  # Directory layout people/<label>/*.jpg, also stored in PostgreSQL
  facerec enroll people/ --store --workers 4`,
	Args: cobra.ExactArgs(1),
	RunE: runEnroll,
}

func init() {
	rootCmd.AddCommand(enrollCmd)

	enrollCmd.Flags().String("label-field", "label", "Manifest key holding the label")
	enrollCmd.Flags().String("image-field", "image", "Manifest key holding the image reference")
	enrollCmd.Flags().Float64("threshold", 0.6, "Distance threshold (overrides FACEREC_THRESHOLD)")
	enrollCmd.Flags().Int("workers", 0, "Concurrent extractions (default FACEREC_WORKERS)")
	enrollCmd.Flags().String("out", "recognizer.json", "Write the recognizer JSON to this path (empty to skip)")
	enrollCmd.Flags().Bool("store", false, "Also save the descriptors to the PostgreSQL gallery")
	enrollCmd.Flags().Bool("replace", false, "With --store, delete existing descriptors of enrolled labels first")
	enrollCmd.Flags().Bool("json", false, "Output the summary as JSON")
}

// EnrollSkipped is one dataset entry that produced no descriptor.
type EnrollSkipped struct {
	Index int    `json:"index"`
	Label string `json:"label"`
	Image string `json:"image"`
	Error string `json:"error"`
}

// EnrollResult summarizes an enroll run.
type EnrollResult struct {
	Total         int             `json:"total"`
	Converted     int             `json:"converted"`
	Labels        []string        `json:"labels"`
	Threshold     float64         `json:"threshold"`
	Output        string          `json:"output,omitempty"`
	Stored        int             `json:"stored,omitempty"`
	ImportSkipped []EnrollSkipped `json:"import_skipped,omitempty"`
	Skipped       []EnrollSkipped `json:"skipped,omitempty"`
	DurationMs    int64           `json:"duration_ms"`
}

// parseManifest decodes a list of objects from JSON or YAML.
func parseManifest(data []byte, ext string) ([]map[string]any, error) {
	var items []map[string]any
	var err error
	if strings.EqualFold(ext, ".json") {
		err = json.Unmarshal(data, &items)
	} else {
		err = yaml.Unmarshal(data, &items)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing manifest: %w", err)
	}
	return items, nil
}

// manifestTransform maps manifest objects to dataset entries using the given keys.
func manifestTransform(labelField, imageField string) func(map[string]any) facerec.DatasetEntry {
	field := func(item map[string]any, key string) string {
		v, ok := item[key]
		if !ok || v == nil {
			return ""
		}
		return strings.TrimSpace(fmt.Sprint(v))
	}
	return func(item map[string]any) facerec.DatasetEntry {
		return facerec.DatasetEntry{Label: field(item, labelField), ImageRef: field(item, imageField)}
	}
}

var imageExtensions = []string{".jpg", ".jpeg", ".png", ".gif", ".bmp", ".webp", ".tif", ".tiff"}

// directoryEntries lists dir/<label>/<image> files in lexical order.
func directoryEntries(dir string) ([]facerec.DatasetEntry, error) {
	labels, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading dataset directory: %w", err)
	}
	var entries []facerec.DatasetEntry
	for _, l := range labels {
		if !l.IsDir() || strings.HasPrefix(l.Name(), ".") {
			continue
		}
		files, err := os.ReadDir(filepath.Join(dir, l.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading label directory %s: %w", l.Name(), err)
		}
		for _, f := range files {
			if f.IsDir() || !slices.Contains(imageExtensions, strings.ToLower(filepath.Ext(f.Name()))) {
				continue
			}
			entries = append(entries, facerec.DatasetEntry{
				Label:    l.Name(),
				ImageRef: filepath.Join(l.Name(), f.Name()),
			})
		}
	}
	return entries, nil
}

// loadDataset fills a dataset from a manifest file or a label directory.
// It returns the root that relative image references resolve against.
func loadDataset(path, labelField, imageField string) (*facerec.Dataset, facerec.ImportReport, string, error) {
	ds := facerec.NewDataset()

	info, err := os.Stat(path)
	if err != nil {
		return nil, facerec.ImportReport{}, "", fmt.Errorf("reading dataset: %w", err)
	}

	if info.IsDir() {
		entries, err := directoryEntries(path)
		if err != nil {
			return nil, facerec.ImportReport{}, "", err
		}
		return ds, ds.AddEntries(entries, nil), path, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, facerec.ImportReport{}, "", fmt.Errorf("reading manifest: %w", err)
	}
	items, err := parseManifest(data, filepath.Ext(path))
	if err != nil {
		return nil, facerec.ImportReport{}, "", err
	}
	report := facerec.ImportFunc(ds, items, manifestTransform(labelField, imageField))
	return ds, report, filepath.Dir(path), nil
}

func skippedEntries(skipped []facerec.SkippedEntry) []EnrollSkipped {
	out := make([]EnrollSkipped, len(skipped))
	for i, s := range skipped {
		out[i] = EnrollSkipped{Index: s.Index, Label: s.Entry.Label, Image: s.Entry.ImageRef, Error: s.Err.Error()}
	}
	return out
}

// storedDescriptors pairs converted gallery sets with the entries they came from
// and tags each with the detector that found the face.
func storedDescriptors(entries []facerec.DatasetEntry, gallery facerec.Gallery, report facerec.ConversionReport) []database.StoredDescriptor {
	skipped := make(map[int]bool, len(report.Skipped))
	for _, s := range report.Skipped {
		skipped[s.Index] = true
	}

	var out []database.StoredDescriptor
	next := 0
	for i, entry := range entries {
		if skipped[i] || next >= len(gallery) {
			continue
		}
		var model string
		if next < len(report.Models) && report.Models[next] != 0 {
			model = report.Models[next].String()
		}
		for _, d := range database.FromGallery(gallery[next:next+1], model) {
			d.ImageRef = entry.ImageRef
			out = append(out, d)
		}
		next++
	}
	return out
}

func runEnroll(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	start := time.Now()

	threshold := thresholdFlag(cmd, cfg.Recognizer.Threshold)
	if err := facerec.ValidateThreshold(threshold); err != nil {
		return err
	}
	workers := mustGetInt(cmd, "workers")
	if workers < 1 {
		workers = cfg.Recognizer.Workers
	}
	out := mustGetString(cmd, "out")
	store := mustGetBool(cmd, "store")
	jsonOutput := mustGetBool(cmd, "json")

	ds, importReport, root, err := loadDataset(args[0], mustGetString(cmd, "label-field"), mustGetString(cmd, "image-field"))
	if err != nil {
		return err
	}
	if ds.Len() == 0 {
		return fmt.Errorf("dataset %s has no usable entries", args[0])
	}

	engine, err := newEngine(ctx, cfg)
	if err != nil {
		return err
	}

	opts := []facerec.ConvertOption{facerec.WithWorkers(workers)}
	if !jsonOutput {
		bar := progressbar.NewOptions(ds.Len(),
			progressbar.OptionSetDescription("Enrolling faces"),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("images"),
			progressbar.OptionShowElapsedTimeOnFinish(),
			progressbar.OptionSetPredictTime(true),
			progressbar.OptionFullWidth(),
		)
		defer bar.Finish()
		opts = append(opts, facerec.WithProgress(func(int, int) { bar.Add(1) }))
	}

	gallery, report, err := ds.ToGallery(ctx, engine, newImageSource(root), opts...)
	if err != nil {
		return err
	}

	rec, err := facerec.NewRecognizer(gallery, threshold)
	if err != nil {
		return fmt.Errorf("building recognizer: %w", err)
	}

	result := EnrollResult{
		Total:         report.Total,
		Converted:     report.Converted,
		Labels:        rec.Labels(),
		Threshold:     rec.Threshold(),
		ImportSkipped: skippedEntries(importReport.Skipped),
		Skipped:       skippedEntries(report.Skipped),
	}

	if out != "" {
		if err := rec.SaveFile(out); err != nil {
			return err
		}
		result.Output = out
	}

	if store {
		stored, err := storeGallery(ctx, cfg, storedDescriptors(ds.Entries(), gallery, report), mustGetBool(cmd, "replace"))
		if err != nil {
			return err
		}
		result.Stored = stored
	}
	result.DurationMs = time.Since(start).Milliseconds()

	if jsonOutput {
		return outputJSON(result)
	}
	printEnrollResult(result)
	return nil
}

// storeGallery saves descriptors to PostgreSQL, optionally replacing their labels first.
func storeGallery(ctx context.Context, cfg *config.Config, descs []database.StoredDescriptor, replace bool) (int, error) {
	if _, err := openStore(ctx, cfg); err != nil {
		return 0, err
	}
	defer closeStore()

	writer, err := database.GetGalleryWriter(ctx)
	if err != nil {
		return 0, err
	}

	if replace {
		var done []string
		for _, d := range descs {
			if slices.Contains(done, d.Label) {
				continue
			}
			if _, err := writer.DeleteLabel(ctx, d.Label); err != nil {
				return 0, fmt.Errorf("deleting label %s: %w", d.Label, err)
			}
			done = append(done, d.Label)
		}
	}

	ids, err := writer.Save(ctx, descs)
	if err != nil {
		return 0, fmt.Errorf("saving descriptors: %w", err)
	}
	return len(ids), nil
}

func printEnrollResult(r EnrollResult) {
	fmt.Printf("\nEnrolled %d of %d images into %d labels (threshold %.2f)\n", r.Converted, r.Total, len(r.Labels), r.Threshold)
	if r.Output != "" {
		fmt.Printf("Recognizer saved to %s\n", r.Output)
	}
	if r.Stored > 0 {
		fmt.Printf("Stored %d descriptors in PostgreSQL\n", r.Stored)
	}
	for _, s := range r.ImportSkipped {
		fmt.Printf("  skipped manifest entry %d: %s\n", s.Index, s.Error)
	}
	for _, s := range r.Skipped {
		fmt.Printf("  skipped %s (%s): %s\n", s.Image, s.Label, s.Error)
	}
	fmt.Printf("Done in %s\n", time.Duration(r.DurationMs)*time.Millisecond)
}
