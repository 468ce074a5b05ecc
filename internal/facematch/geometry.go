package facematch

import (
	"image"

	"github.com/kozaktomas/facerec/internal/facerec"
)

// ComputeIoU calculates Intersection over Union between two boxes.
func ComputeIoU(a, b facerec.Box) float64 {
	x1 := max(a.X, b.X)
	y1 := max(a.Y, b.Y)
	x2 := min(a.X+a.Width, b.X+b.Width)
	y2 := min(a.Y+a.Height, b.Y+b.Height)

	if x2 <= x1 || y2 <= y1 {
		return 0
	}

	intersection := (x2 - x1) * (y2 - y1)
	union := a.Width*a.Height + b.Width*b.Height - intersection
	if union <= 0 {
		return 0
	}

	return intersection / union
}

// RelativeBox converts a pixel box to relative (0-1) coordinates.
// The box is returned unchanged for non-positive dimensions.
func RelativeBox(b facerec.Box, width, height int) facerec.Box {
	if width <= 0 || height <= 0 {
		return b
	}
	w, h := float64(width), float64(height)
	return facerec.Box{X: b.X / w, Y: b.Y / h, Width: b.Width / w, Height: b.Height / h}
}

// ScaleBox maps a box from an image of size from onto an image of size to.
func ScaleBox(b facerec.Box, from, to image.Point) facerec.Box {
	if from.X <= 0 || from.Y <= 0 {
		return b
	}
	sx := float64(to.X) / float64(from.X)
	sy := float64(to.Y) / float64(from.Y)
	return facerec.Box{X: b.X * sx, Y: b.Y * sy, Width: b.Width * sx, Height: b.Height * sy}
}

// ScalePoint maps a landmark the same way as ScaleBox.
func ScalePoint(p facerec.Point, from, to image.Point) facerec.Point {
	if from.X <= 0 || from.Y <= 0 {
		return p
	}
	return facerec.Point{
		X: p.X * float64(to.X) / float64(from.X),
		Y: p.Y * float64(to.Y) / float64(from.Y),
	}
}

// ScaleDetections maps the boxes and landmarks of dets from an image of size from
// onto an image of size to. The input is not modified.
func ScaleDetections(dets []facerec.Detection, from, to image.Point) []facerec.Detection {
	out := make([]facerec.Detection, len(dets))
	for i, d := range dets {
		out[i] = ScaleDetection(d, from, to)
	}
	return out
}

// ScaleDetection maps one detection like ScaleDetections.
func ScaleDetection(d facerec.Detection, from, to image.Point) facerec.Detection {
	d.Box = ScaleBox(d.Box, from, to)
	if d.Landmarks != nil {
		pts := make([]facerec.Point, len(d.Landmarks))
		for j, p := range d.Landmarks {
			pts[j] = ScalePoint(p, from, to)
		}
		d.Landmarks = pts
	}
	return d
}

// CornerBox converts a box to [x1, y1, x2, y2] corner format.
func CornerBox(b facerec.Box) []float64 {
	return []float64{b.X, b.Y, b.X + b.Width, b.Y + b.Height}
}

// SuppressDuplicates drops detections overlapping an earlier, higher scoring one by more than iou.
// Order of the kept detections is preserved.
func SuppressDuplicates(dets []facerec.Detection, iou float64) []facerec.Detection {
	kept := make([]facerec.Detection, 0, len(dets))
	for i, d := range dets {
		dup := false
		for j, other := range dets {
			if i == j {
				continue
			}
			better := other.Score > d.Score || (other.Score == d.Score && j < i)
			if better && ComputeIoU(d.Box, other.Box) > iou {
				dup = true
				break
			}
		}
		if !dup {
			kept = append(kept, d)
		}
	}
	return kept
}
