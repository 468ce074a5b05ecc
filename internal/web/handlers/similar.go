package handlers

import (
	"errors"
	"net/http"
	"strconv"

	log "github.com/sirupsen/logrus"

	"github.com/kozaktomas/facerec/internal/constants"
	"github.com/kozaktomas/facerec/internal/database"
	"github.com/kozaktomas/facerec/internal/facematch"
	"github.com/kozaktomas/facerec/internal/facerec"
)

// SimilarHandler finds the gallery descriptors nearest to each uploaded face.
type SimilarHandler struct {
	detector facerec.FaceExtractor
	gallery  database.GalleryReader
	logger    log.FieldLogger
}

// NewSimilarHandler creates a similar handler. gallery may be nil when no store is configured.
func NewSimilarHandler(ex facerec.FaceExtractor, gallery database.GalleryReader) *SimilarHandler {
	return &SimilarHandler{
		detector: facematch.NewDetector(ex, constants.MaxImageDimension),
		gallery:  gallery,
		logger:   log.WithField("component", "similar"),
	}
}

// SimilarNeighbor is one stored descriptor close to a query face.
type SimilarNeighbor struct {
	ID       int64   `json:"id"`
	Label    string  `json:"label"`
	ImageRef string  `json:"image_ref,omitempty"`
	Model    string  `json:"model,omitempty"`
	Distance float64 `json:"distance"`
}

// SimilarFace is a detected face with its nearest neighbors.
type SimilarFace struct {
	Box       facerec.Box       `json:"box"`
	Neighbors []SimilarNeighbor `json:"neighbors"`
}

// SimilarResponse is the response of the similar endpoint.
type SimilarResponse struct {
	K     int           `json:"k"`
	Faces []SimilarFace `json:"faces"`
}

func parseK(r *http.Request) (int, bool) {
	s := r.URL.Query().Get("k")
	if s == "" {
		return constants.DefaultSimilarK, true
	}
	k, err := strconv.Atoi(s)
	if err != nil || k < 1 {
		return 0, false
	}
	return min(k, constants.MaxSimilarK), true
}

// Find handles POST /api/v1/similar?k=.
func (h *SimilarHandler) Find(w http.ResponseWriter, r *http.Request) {
	if h.gallery == nil {
		respondError(w, http.StatusServiceUnavailable, "gallery store is not configured")
		return
	}

	k, ok := parseK(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "k must be a positive integer")
		return
	}

	img, err := readUpload(w, r)
	if err != nil {
		respondExtractionError(w, err)
		return
	}

	dets, err := h.detector.ExtractAll(r.Context(), img)
	if err != nil {
		respondExtractionError(w, err)
		return
	}

	resp := SimilarResponse{K: k, Faces: make([]SimilarFace, len(dets))}
	for i, det := range dets {
		neighbors, err := h.gallery.FindNearest(r.Context(), det.Descriptor, k)
		if errors.Is(err, facerec.ErrDimensionMismatch) {
			h.logger.WithError(err).Warn("descriptor does not match the gallery dimension")
			respondError(w, http.StatusUnprocessableEntity, "face descriptor does not match the gallery dimension")
			return
		}
		if err != nil {
			h.logger.WithError(err).Error("nearest neighbor search failed")
			respondError(w, http.StatusInternalServerError, "similarity search failed")
			return
		}

		face := SimilarFace{Box: det.Box, Neighbors: make([]SimilarNeighbor, len(neighbors))}
		for j, n := range neighbors {
			face.Neighbors[j] = SimilarNeighbor{
				ID:       n.ID,
				Label:    n.Label,
				ImageRef: n.ImageRef,
				Model:    n.Model,
				Distance: n.Distance,
			}
		}
		resp.Faces[i] = face
	}

	respondJSON(w, http.StatusOK, resp)
}
