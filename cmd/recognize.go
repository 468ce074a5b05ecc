package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/facerec/internal/config"
	"github.com/kozaktomas/facerec/internal/constants"
	"github.com/kozaktomas/facerec/internal/facematch"
	"github.com/kozaktomas/facerec/internal/facerec"
	"github.com/kozaktomas/facerec/internal/overlay"
)

var recognizeCmd = &cobra.Command{
	Use:   "recognize <image>",
	Short: "Recognize the faces in an image",
	Long: `Detect every face in an image (path or URL) and match it against a recognizer.

The recognizer is read from --recognizer, FACEREC_RECOGNIZER_PATH, or built
from the PostgreSQL gallery when neither is set.

Examples:
  facerec recognize party.jpg --recognizer recognizer.json
  facerec recognize https://example.com/door.jpg --json
  facerec recognize party.jpg --annotate party-labeled.png`,
	Args: cobra.ExactArgs(1),
	RunE: runRecognize,
}

func init() {
	rootCmd.AddCommand(recognizeCmd)

	recognizeCmd.Flags().String("recognizer", "", "Recognizer JSON file")
	recognizeCmd.Flags().Bool("json", false, "Output as JSON")
	recognizeCmd.Flags().String("annotate", "", "Write a PNG with boxes and labels to this path")
	recognizeCmd.Flags().Bool("landmarks", false, "With --annotate, also draw facial landmarks")
	recognizeCmd.Flags().Int("max-size", constants.MaxImageDimension, "Downscale larger images to this many pixels before detection (0 to disable)")
}

// RecognizedFace is one face in the recognize output.
type RecognizedFace struct {
	Label             string      `json:"label"`
	Distance          float64     `json:"distance"`
	Confidence        float64     `json:"confidence"`
	PercentConfidence int         `json:"percent_confidence"`
	Box               facerec.Box `json:"box"`
	BoxRel            facerec.Box `json:"box_rel"`
	Model             string      `json:"model,omitempty"`
}

// RecognizeResult is the output of the recognize command.
type RecognizeResult struct {
	Image     string           `json:"image"`
	Width     int              `json:"width"`
	Height    int              `json:"height"`
	Faces     []RecognizedFace `json:"faces"`
	Annotated string           `json:"annotated,omitempty"`
}

func recognizeResult(img *facerec.Image, results []facerec.MatchResult) RecognizeResult {
	out := RecognizeResult{
		Image:  img.Ref,
		Width:  img.Width,
		Height: img.Height,
		Faces:  make([]RecognizedFace, len(results)),
	}
	for i, m := range results {
		face := RecognizedFace{
			Label:             m.Label,
			Distance:          m.Distance,
			Confidence:        m.Confidence,
			PercentConfidence: m.PercentConfidence,
		}
		if m.Detection != nil {
			face.Box = m.Detection.Box
			face.BoxRel = facematch.RelativeBox(m.Detection.Box, img.Width, img.Height)
			if m.Detection.Model != 0 {
				face.Model = m.Detection.Model.String()
			}
		}
		out.Faces[i] = face
	}
	return out
}

// writeAnnotated renders results onto img and saves a PNG.
func writeAnnotated(path string, img *facerec.Image, results []facerec.MatchResult, landmarks bool) error {
	src, err := img.Decode()
	if err != nil {
		return err
	}
	opts := overlay.DefaultOptions()
	opts.DrawLandmarks = landmarks

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if err := overlay.EncodePNG(f, overlay.Render(src, results, opts)); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func runRecognize(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	jsonOutput := mustGetBool(cmd, "json")
	annotate := mustGetString(cmd, "annotate")

	rec, err := loadRecognizer(ctx, cfg, mustGetString(cmd, "recognizer"))
	if err != nil {
		return err
	}
	defer closeStore()

	engine, err := newEngine(ctx, cfg)
	if err != nil {
		return err
	}

	img, err := newImageSource("").Load(ctx, args[0])
	if err != nil {
		return err
	}
	results, err := rec.RecognizeImage(ctx, facematch.NewDetector(engine, mustGetInt(cmd, "max-size")), img)
	if err != nil {
		return err
	}

	out := recognizeResult(img, results)
	if annotate != "" {
		if err := writeAnnotated(annotate, img, results, mustGetBool(cmd, "landmarks")); err != nil {
			return err
		}
		out.Annotated = annotate
	}

	if jsonOutput {
		return outputJSON(out)
	}

	fmt.Printf("%s (%dx%d): %d face(s)\n", out.Image, out.Width, out.Height, len(out.Faces))
	for i, f := range out.Faces {
		fmt.Printf("  #%d %-20s %3d%%  distance %.4f  box [%.0f,%.0f %.0fx%.0f]\n",
			i+1, f.Label, f.PercentConfidence, f.Distance, f.Box.X, f.Box.Y, f.Box.Width, f.Box.Height)
	}
	if out.Annotated != "" {
		fmt.Printf("Annotated image saved to %s\n", out.Annotated)
	}
	return nil
}
