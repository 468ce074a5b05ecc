package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/kozaktomas/facerec/internal/constants"
	"github.com/kozaktomas/facerec/internal/facerec"
	"github.com/kozaktomas/facerec/internal/imagesource"
)

const (
	errNoFile        = "file is required"
	errInvalidForm   = "failed to parse multipart form"
	errInvalidImage  = "invalid image"
	errNoFaces       = "no faces found"
	errExtractFailed = "face extraction failed"
)

// sanitizeForLog removes newlines and carriage returns to prevent log injection.
func sanitizeForLog(s string) string {
	return strings.NewReplacer("\n", "", "\r", "").Replace(s)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// HealthCheck handles the health check endpoint.
func HealthCheck(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// uploadError is a client error while reading the uploaded image.
type uploadError struct {
	message string
	err     error
}

func (e *uploadError) Error() string {
	if e.err == nil {
		return e.message
	}
	return fmt.Sprintf("%s: %v", e.message, e.err)
}

func (e *uploadError) Unwrap() error { return e.err }

// readUpload reads the multipart "file" field as an image.
func readUpload(w http.ResponseWriter, r *http.Request) (*facerec.Image, error) {
	r.Body = http.MaxBytesReader(w, r.Body, constants.MaxUploadSize)
	if err := r.ParseMultipartForm(constants.MaxUploadSize); err != nil {
		return nil, &uploadError{message: errInvalidForm, err: err}
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, &uploadError{message: errNoFile, err: err}
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, &uploadError{message: errInvalidForm, err: err}
	}

	img, err := imagesource.FromBytes(header.Filename, data)
	if err != nil {
		return nil, &uploadError{message: errInvalidImage, err: err}
	}
	return img, nil
}

// respondExtractionError maps upload and extraction failures to HTTP statuses.
func respondExtractionError(w http.ResponseWriter, err error) {
	var upErr *uploadError
	switch {
	case errors.As(err, &upErr):
		respondError(w, http.StatusBadRequest, upErr.message)
	case errors.Is(err, facerec.ErrImageLoad):
		respondError(w, http.StatusBadRequest, errInvalidImage)
	case errors.Is(err, facerec.ErrNoFacesFound), errors.Is(err, facerec.ErrNoFaceFound):
		respondError(w, http.StatusUnprocessableEntity, errNoFaces)
	default:
		respondError(w, http.StatusBadGateway, errExtractFailed)
	}
}
