package facerec

import (
	"errors"
	"fmt"
)

var (
	ErrInitialization           = errors.New("model initialization failed")
	ErrNoFaceFound              = errors.New("no face found")
	ErrNoFacesFound             = errors.New("no faces found")
	ErrImageLoad                = errors.New("could not load image")
	ErrInvalidThreshold         = errors.New("invalid distance threshold")
	ErrTransformIncomplete      = errors.New("transform returned incomplete entry")
	ErrEmptyLabel               = errors.New("label must not be empty")
	ErrNoDescriptors            = errors.New("labeled set has no descriptors")
	ErrEmptyGallery             = errors.New("gallery is empty")
	ErrDimensionMismatch        = errors.New("descriptor dimension mismatch")
	ErrUnknownModel             = errors.New("unknown model")
	ErrUnsupportedRecordVersion = errors.New("unsupported recognizer record version")
)

// InitializationError is returned when a configured model was never successfully initialized.
type InitializationError struct {
	Model ModelID
	Err   error
}

func (e *InitializationError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", ErrInitialization, e.Model)
	}
	return fmt.Sprintf("%s: %s: %v", ErrInitialization, e.Model, e.Err)
}

func (e *InitializationError) Unwrap() error { return e.Err }

func (e *InitializationError) Is(target error) bool { return target == ErrInitialization }

// NoFaceError reports an image on which extraction found nothing.
// All is set for the multi-face path.
type NoFaceError struct {
	Image string
	All   bool
}

func (e *NoFaceError) Error() string {
	if e.All {
		return fmt.Sprintf("%s: %s", ErrNoFacesFound, e.Image)
	}
	return fmt.Sprintf("%s: %s", ErrNoFaceFound, e.Image)
}

func (e *NoFaceError) Is(target error) bool {
	if e.All {
		return target == ErrNoFacesFound
	}
	return target == ErrNoFaceFound
}

// ImageLoadError wraps any I/O or decoding failure for an image reference.
type ImageLoadError struct {
	Ref string
	Err error
}

func (e *ImageLoadError) Error() string {
	return fmt.Sprintf("could not fetch image: %s: %v", e.Ref, e.Err)
}

func (e *ImageLoadError) Unwrap() error { return e.Err }

func (e *ImageLoadError) Is(target error) bool { return target == ErrImageLoad }
