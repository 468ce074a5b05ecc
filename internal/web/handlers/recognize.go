package handlers

import (
	"bytes"
	"errors"
	"net/http"

	log "github.com/sirupsen/logrus"

	"github.com/kozaktomas/facerec/internal/constants"
	"github.com/kozaktomas/facerec/internal/facematch"
	"github.com/kozaktomas/facerec/internal/facerec"
	"github.com/kozaktomas/facerec/internal/overlay"
	"github.com/kozaktomas/facerec/internal/publish"
)

// RecognizeHandler matches uploaded images against the loaded recognizer.
type RecognizeHandler struct {
	recognizer *facerec.Recognizer
	detector   facerec.FaceExtractor
	publisher  publish.Publisher
	logger     log.FieldLogger
}

// NewRecognizeHandler creates a recognize handler. pub may be nil.
// Uploads larger than constants.MaxImageDimension are downscaled before extraction.
func NewRecognizeHandler(rec *facerec.Recognizer, ex facerec.FaceExtractor, pub publish.Publisher) *RecognizeHandler {
	return &RecognizeHandler{
		recognizer: rec,
		detector:   facematch.NewDetector(ex, constants.MaxImageDimension),
		publisher:  pub,
		logger:     log.WithField("component", "recognize"),
	}
}

// FaceResult is one recognized face in a response.
type FaceResult struct {
	Label             string          `json:"label"`
	Distance          float64         `json:"distance"`
	Confidence        float64         `json:"confidence"`
	PercentConfidence int             `json:"percent_confidence"`
	Score             float64         `json:"score"`
	Box               facerec.Box     `json:"box"`
	BoxRel            facerec.Box     `json:"box_rel"`
	Landmarks         []facerec.Point `json:"landmarks,omitempty"`
}

// RecognizeResponse is the response of the recognize endpoint.
type RecognizeResponse struct {
	Width  int          `json:"width"`
	Height int          `json:"height"`
	Faces  []FaceResult `json:"faces"`
}

func (h *RecognizeHandler) recognize(w http.ResponseWriter, r *http.Request) (*facerec.Image, []facerec.MatchResult, bool) {
	img, err := readUpload(w, r)
	if err != nil {
		respondExtractionError(w, err)
		return nil, nil, false
	}

	results, err := h.recognizer.RecognizeImage(r.Context(), h.detector, img)
	if errors.Is(err, facerec.ErrDimensionMismatch) {
		h.logger.WithError(err).Warn("matching failed")
		respondError(w, http.StatusBadGateway, err.Error())
		return nil, nil, false
	}
	if err != nil {
		h.logger.WithError(err).WithField("image", sanitizeForLog(img.Ref)).Debug("extraction failed")
		respondExtractionError(w, err)
		return nil, nil, false
	}

	h.publish(r, img.Ref, results)
	return img, results, true
}

func (h *RecognizeHandler) publish(r *http.Request, ref string, results []facerec.MatchResult) {
	if h.publisher == nil {
		return
	}
	if err := h.publisher.Publish(r.Context(), publish.NewEvent(ref, results)); err != nil {
		h.logger.WithError(err).Warn("failed to publish recognition event")
	}
}

// Recognize handles POST /api/v1/recognize.
func (h *RecognizeHandler) Recognize(w http.ResponseWriter, r *http.Request) {
	img, results, ok := h.recognize(w, r)
	if !ok {
		return
	}

	resp := RecognizeResponse{
		Width:  img.Width,
		Height: img.Height,
		Faces:  make([]FaceResult, len(results)),
	}
	for i, m := range results {
		face := FaceResult{
			Label:             m.Label,
			Distance:          m.Distance,
			Confidence:        m.Confidence,
			PercentConfidence: m.PercentConfidence,
		}
		if m.Detection != nil {
			face.Score = m.Detection.Score
			face.Box = m.Detection.Box
			face.BoxRel = facematch.RelativeBox(m.Detection.Box, img.Width, img.Height)
			face.Landmarks = m.Detection.Landmarks
		}
		resp.Faces[i] = face
	}

	respondJSON(w, http.StatusOK, resp)
}

// Annotated handles POST /api/v1/recognize/annotated and returns a PNG with the results drawn.
func (h *RecognizeHandler) Annotated(w http.ResponseWriter, r *http.Request) {
	img, results, ok := h.recognize(w, r)
	if !ok {
		return
	}

	src, err := img.Decode()
	if err != nil {
		respondError(w, http.StatusBadRequest, errInvalidImage)
		return
	}

	opts := overlay.DefaultOptions()
	opts.DrawLandmarks = r.URL.Query().Get("landmarks") == "true"

	var buf bytes.Buffer
	if err := overlay.EncodePNG(&buf, overlay.Render(src, results, opts)); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to encode image")
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

// Record handles GET /api/v1/recognizer and returns the serialized recognizer.
func (h *RecognizeHandler) Record(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, h.recognizer.Record())
}

// Labels handles GET /api/v1/labels.
func (h *RecognizeHandler) Labels(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"labels":    h.recognizer.Labels(),
		"threshold": h.recognizer.Threshold(),
	})
}
