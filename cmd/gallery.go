package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/facerec/internal/config"
	"github.com/kozaktomas/facerec/internal/constants"
	"github.com/kozaktomas/facerec/internal/database"
	"github.com/kozaktomas/facerec/internal/facerec"
)

var galleryCmd = &cobra.Command{
	Use:   "gallery",
	Short: "Manage the PostgreSQL face gallery",
	Long: `Commands for the descriptor gallery stored in PostgreSQL (DATABASE_URL).
The gallery is an alternative to recognizer JSON files and backs the
similar search with an in-memory HNSW index.`,
}

var galleryPushCmd = &cobra.Command{
	Use:   "push <recognizer.json>",
	Short: "Store the descriptors of a recognizer file in the gallery",
	Args:  cobra.ExactArgs(1),
	RunE:  runGalleryPush,
}

var galleryExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the gallery as a recognizer JSON file",
	Args:  cobra.NoArgs,
	RunE:  runGalleryExport,
}

var gallerySimilarCmd = &cobra.Command{
	Use:   "similar <image>",
	Short: "List the stored descriptors nearest to each face in an image",
	Args:  cobra.ExactArgs(1),
	RunE:  runGallerySimilar,
}

var galleryLabelsCmd = &cobra.Command{
	Use:   "labels",
	Short: "List gallery labels with their descriptor counts",
	Args:  cobra.NoArgs,
	RunE:  runGalleryLabels,
}

var galleryDeleteCmd = &cobra.Command{
	Use:   "delete <label>",
	Short: "Delete every descriptor of a label",
	Args:  cobra.ExactArgs(1),
	RunE:  runGalleryDelete,
}

var galleryReindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Rebuild the HNSW index from PostgreSQL and persist it to HNSW_INDEX_PATH",
	Args:  cobra.NoArgs,
	RunE:  runGalleryReindex,
}

func init() {
	rootCmd.AddCommand(galleryCmd)
	galleryCmd.AddCommand(galleryPushCmd, galleryExportCmd, gallerySimilarCmd, galleryLabelsCmd, galleryDeleteCmd, galleryReindexCmd)

	galleryPushCmd.Flags().String("model", "", "Detector name recorded with the descriptors")
	galleryPushCmd.Flags().Bool("replace", false, "Delete existing descriptors of the pushed labels first")

	galleryExportCmd.Flags().String("out", "", "Output path (stdout when empty)")
	galleryExportCmd.Flags().Float64("threshold", 0.6, "Distance threshold (overrides FACEREC_THRESHOLD)")

	gallerySimilarCmd.Flags().Int("k", constants.DefaultSimilarK, "Number of neighbors per face")
	gallerySimilarCmd.Flags().Bool("json", false, "Output as JSON")
	gallerySimilarCmd.Flags().Int("max-size", constants.MaxImageDimension, "Downscale larger images to this many pixels before detection (0 to disable)")

	galleryLabelsCmd.Flags().Bool("json", false, "Output as JSON")
}

// withStore opens the gallery store for the duration of fn.
func withStore(cmd *cobra.Command, fn func(ctx context.Context, cfg *config.Config) error) error {
	cfg := config.Load()
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if _, err := openStore(ctx, cfg); err != nil {
		return err
	}
	defer closeStore()
	return fn(ctx, cfg)
}

func runGalleryPush(cmd *cobra.Command, args []string) error {
	rec, err := facerec.LoadRecognizerFile(args[0])
	if err != nil {
		return err
	}
	descs := database.FromGallery(rec.Record().Gallery(), mustGetString(cmd, "model"))

	cfg := config.Load()
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	stored, err := storeGallery(ctx, cfg, descs, mustGetBool(cmd, "replace"))
	if err != nil {
		return err
	}
	fmt.Printf("Stored %d descriptors for %d labels\n", stored, rec.Len())
	return nil
}

func runGalleryExport(cmd *cobra.Command, args []string) error {
	return withStore(cmd, func(ctx context.Context, cfg *config.Config) error {
		threshold := thresholdFlag(cmd, cfg.Recognizer.Threshold)
		rec, err := galleryRecognizer(ctx, threshold)
		if err != nil {
			return err
		}

		out := mustGetString(cmd, "out")
		if out == "" {
			return outputJSON(rec.Record())
		}
		if err := rec.SaveFile(out); err != nil {
			return err
		}
		fmt.Printf("Exported %d labels to %s\n", rec.Len(), out)
		return nil
	})
}

// SimilarNeighbor is a stored descriptor near a query face.
type SimilarNeighbor struct {
	ID       int64   `json:"id"`
	Label    string  `json:"label"`
	ImageRef string  `json:"image_ref,omitempty"`
	Distance float64 `json:"distance"`
}

// SimilarFace lists the nearest stored descriptors of one detected face.
type SimilarFace struct {
	Box       facerec.Box       `json:"box"`
	Neighbors []SimilarNeighbor `json:"neighbors"`
}

func runGallerySimilar(cmd *cobra.Command, args []string) error {
	k := mustGetInt(cmd, "k")
	if k < 1 {
		return fmt.Errorf("--k must be positive, got %d", k)
	}
	jsonOutput := mustGetBool(cmd, "json")

	return withStore(cmd, func(ctx context.Context, cfg *config.Config) error {
		reader, err := database.GetGalleryReader(ctx)
		if err != nil {
			return err
		}
		engine, err := newEngine(ctx, cfg)
		if err != nil {
			return err
		}
		_, dets, err := detectFaces(ctx, engine, args[0], mustGetInt(cmd, "max-size"))
		if err != nil {
			return err
		}

		faces := make([]SimilarFace, len(dets))
		for i, det := range dets {
			neighbors, err := reader.FindNearest(ctx, det.Descriptor, k)
			if err != nil {
				return fmt.Errorf("searching neighbors of face %d: %w", i, err)
			}
			face := SimilarFace{Box: det.Box, Neighbors: make([]SimilarNeighbor, len(neighbors))}
			for j, n := range neighbors {
				face.Neighbors[j] = SimilarNeighbor{ID: n.ID, Label: n.Label, ImageRef: n.ImageRef, Distance: n.Distance}
			}
			faces[i] = face
		}

		if jsonOutput {
			return outputJSON(faces)
		}
		for i, f := range faces {
			fmt.Printf("Face #%d [%.0f,%.0f %.0fx%.0f]\n", i+1, f.Box.X, f.Box.Y, f.Box.Width, f.Box.Height)
			for _, n := range f.Neighbors {
				fmt.Printf("  %-20s %.4f  %s\n", n.Label, n.Distance, n.ImageRef)
			}
		}
		return nil
	})
}

// LabelCount is a gallery label with its number of descriptors.
type LabelCount struct {
	Label       string `json:"label"`
	Descriptors int    `json:"descriptors"`
}

func runGalleryLabels(cmd *cobra.Command, args []string) error {
	jsonOutput := mustGetBool(cmd, "json")
	return withStore(cmd, func(ctx context.Context, cfg *config.Config) error {
		reader, err := database.GetGalleryReader(ctx)
		if err != nil {
			return err
		}
		labels, err := reader.Labels(ctx)
		if err != nil {
			return err
		}

		counts := make([]LabelCount, len(labels))
		for i, label := range labels {
			descs, err := reader.ByLabel(ctx, label)
			if err != nil {
				return err
			}
			counts[i] = LabelCount{Label: label, Descriptors: len(descs)}
		}

		if jsonOutput {
			return outputJSON(counts)
		}
		total, err := reader.Count(ctx)
		if err != nil {
			return err
		}
		for _, c := range counts {
			fmt.Printf("%-30s %d\n", c.Label, c.Descriptors)
		}
		fmt.Printf("%d labels, %d descriptors\n", len(counts), total)
		return nil
	})
}

func runGalleryDelete(cmd *cobra.Command, args []string) error {
	return withStore(cmd, func(ctx context.Context, cfg *config.Config) error {
		writer, err := database.GetGalleryWriter(ctx)
		if err != nil {
			return err
		}
		ids, err := writer.DeleteLabel(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Deleted %d descriptors of %q\n", len(ids), args[0])
		return nil
	})
}

func runGalleryReindex(cmd *cobra.Command, args []string) error {
	return withStore(cmd, func(ctx context.Context, cfg *config.Config) error {
		rebuilder := database.GetGalleryHNSWRebuilder()
		if rebuilder == nil {
			return database.ErrNotInitialized
		}
		if err := rebuilder.RebuildHNSW(ctx); err != nil {
			return fmt.Errorf("rebuilding HNSW index: %w", err)
		}
		fmt.Printf("HNSW index rebuilt with %d descriptors\n", rebuilder.HNSWCount())
		return nil
	})
}
