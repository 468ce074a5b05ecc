package facematch

import (
	"context"

	"github.com/kozaktomas/facerec/internal/facerec"
	"github.com/kozaktomas/facerec/internal/imagesource"
)

// DuplicateIoU is the overlap above which two detections are treated as one face.
const DuplicateIoU = 0.5

// DetectFaces extracts every face of img, downscaled to fit maxSize first, and maps the
// detections back to img coordinates. Overlapping duplicates are dropped.
func DetectFaces(ctx context.Context, ex facerec.FaceExtractor, img *facerec.Image, maxSize int) ([]facerec.Detection, error) {
	small, err := imagesource.Downscale(img, maxSize)
	if err != nil {
		return nil, err
	}

	dets, err := ex.ExtractAll(ctx, small)
	if err != nil {
		return nil, err
	}
	dets = SuppressDuplicates(dets, DuplicateIoU)

	if small != img {
		dets = ScaleDetections(dets, imagesource.Size(small), imagesource.Size(img))
	}
	return dets, nil
}

// Detector is a facerec.FaceExtractor that applies DetectFaces to every image,
// so recognizers see deduplicated faces in input image coordinates.
type Detector struct {
	ex      facerec.FaceExtractor
	maxSize int
}

// NewDetector wraps ex. A maxSize of 0 disables downscaling.
func NewDetector(ex facerec.FaceExtractor, maxSize int) *Detector {
	return &Detector{ex: ex, maxSize: maxSize}
}

// ExtractAll implements facerec.FaceExtractor.
func (d *Detector) ExtractAll(ctx context.Context, img *facerec.Image) ([]facerec.Detection, error) {
	return DetectFaces(ctx, d.ex, img, d.maxSize)
}
