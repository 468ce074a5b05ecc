package imagesource

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"

	"golang.org/x/image/draw"

	"github.com/kozaktomas/facerec/internal/facerec"
)

// Downscale returns img resized to fit within maxSize on its longer side, re-encoded as JPEG.
// Images already within bounds, and a non-positive maxSize, return img unchanged.
func Downscale(img *facerec.Image, maxSize int) (*facerec.Image, error) {
	if maxSize <= 0 || (img.Width <= maxSize && img.Height <= maxSize) {
		return img, nil
	}

	src, err := img.Decode()
	if err != nil {
		return nil, &facerec.ImageLoadError{Ref: img.Ref, Err: err}
	}

	var width, height int
	if img.Width > img.Height {
		width = maxSize
		height = max(1, int(float64(img.Height)*float64(maxSize)/float64(img.Width)))
	} else {
		height = maxSize
		width = max(1, int(float64(img.Width)*float64(maxSize)/float64(img.Height)))
	}

	resized := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.BiLinear.Scale(resized, resized.Bounds(), src, src.Bounds(), draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, resized, &jpeg.Options{Quality: 90}); err != nil {
		return nil, fmt.Errorf("encoding resized %s: %w", img.Ref, err)
	}

	return &facerec.Image{
		Ref:    img.Ref,
		Data:   buf.Bytes(),
		Format: "jpeg",
		Width:  width,
		Height: height,
	}, nil
}

// Size returns the pixel dimensions of img.
func Size(img *facerec.Image) image.Point {
	return image.Pt(img.Width, img.Height)
}
