// Package overlay draws recognition results onto images.
package overlay

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/kozaktomas/facerec/internal/facematch"
	"github.com/kozaktomas/facerec/internal/facerec"
)

// Options controls what Render draws.
type Options struct {
	DrawDetections bool
	DrawLandmarks  bool
	LineColor      color.Color
	LineWidth      int
	LabelFunc      func(facerec.MatchResult) string
}

// DefaultOptions draws 2px blue boxes labeled "<label> (<percent>%)".
func DefaultOptions() Options {
	return Options{
		DrawDetections: true,
		DrawLandmarks:  false,
		LineColor:      color.RGBA{R: 0, G: 0, B: 255, A: 255},
		LineWidth:      2,
		LabelFunc:      DefaultLabel,
	}
}

// DefaultLabel formats a result as "<label> (<percent>%)".
func DefaultLabel(m facerec.MatchResult) string {
	return fmt.Sprintf("%s (%d%%)", m.Label, m.PercentConfidence)
}

// Render copies src and draws every result that carries a detection.
func Render(src image.Image, results []facerec.MatchResult, opts Options) *image.RGBA {
	bounds := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(dst, dst.Bounds(), src, bounds.Min, draw.Src)

	if opts.LineColor == nil {
		opts.LineColor = DefaultOptions().LineColor
	}
	if opts.LineWidth < 1 {
		opts.LineWidth = 1
	}

	for _, res := range results {
		if res.Detection == nil {
			continue
		}
		r := res.Detection.Box.Rect()
		if opts.DrawDetections {
			strokeRect(dst, r, opts.LineColor, opts.LineWidth)
			if opts.LabelFunc != nil {
				drawLabel(dst, r, opts.LabelFunc(res), opts.LineColor)
			}
		}
		if opts.DrawLandmarks {
			for _, p := range res.Detection.Landmarks {
				pt := image.Pt(int(p.X), int(p.Y))
				fill(dst, image.Rectangle{Min: pt.Sub(image.Pt(1, 1)), Max: pt.Add(image.Pt(2, 2))}, opts.LineColor)
			}
		}
	}
	return dst
}

// ScaleResults maps detection geometry from an image of size from onto an image of size to.
// The input slice is not modified.
func ScaleResults(results []facerec.MatchResult, from, to image.Point) []facerec.MatchResult {
	out := make([]facerec.MatchResult, len(results))
	for i, res := range results {
		out[i] = res
		if res.Detection == nil {
			continue
		}
		det := facematch.ScaleDetection(*res.Detection, from, to)
		out[i].Detection = &det
	}
	return out
}

// EncodePNG writes img as PNG.
func EncodePNG(w io.Writer, img image.Image) error {
	if err := png.Encode(w, img); err != nil {
		return fmt.Errorf("encoding png: %w", err)
	}
	return nil
}

func fill(dst *image.RGBA, r image.Rectangle, c color.Color) {
	draw.Draw(dst, r.Intersect(dst.Bounds()), image.NewUniform(c), image.Point{}, draw.Src)
}

func strokeRect(dst *image.RGBA, r image.Rectangle, c color.Color, width int) {
	fill(dst, image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+width), c)
	fill(dst, image.Rect(r.Min.X, r.Max.Y-width, r.Max.X, r.Max.Y), c)
	fill(dst, image.Rect(r.Min.X, r.Min.Y, r.Min.X+width, r.Max.Y), c)
	fill(dst, image.Rect(r.Max.X-width, r.Min.Y, r.Max.X, r.Max.Y), c)
}

// drawLabel writes text on a filled background just below the box, or inside it near the image bottom.
func drawLabel(dst *image.RGBA, r image.Rectangle, text string, bg color.Color) {
	face := basicfont.Face7x13
	d := &font.Drawer{Dst: dst, Src: image.White, Face: face}
	width := d.MeasureString(text).Ceil()
	height := face.Metrics().Height.Ceil()

	top := r.Max.Y
	if top+height+4 > dst.Bounds().Max.Y {
		top = r.Max.Y - height - 4
	}
	fill(dst, image.Rect(r.Min.X, top, r.Min.X+width+4, top+height+4), bg)

	d.Dot = fixed.P(r.Min.X+2, top+2+face.Metrics().Ascent.Ceil())
	d.DrawString(text)
}
