// Package extractor talks to the face embedding server that runs the detector
// and descriptor networks.
package extractor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/kozaktomas/facerec/internal/facerec"
)

const defaultURL = "http://localhost:8000"

// Client implements facerec.Extractor over the embedding server HTTP API.
type Client struct {
	baseURL string
	client  *http.Client
	logger  log.FieldLogger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.client = hc
	}
}

// WithLogger sets the client logger.
func WithLogger(l log.FieldLogger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// NewClient creates a client for the server at baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = defaultURL
	}
	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{},
		logger:  log.WithField("component", "extractor"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FaceDetection is a single face as returned by the server.
type FaceDetection struct {
	FaceIndex int          `json:"face_index"`
	Dim       int          `json:"dim"`
	Embedding []float32    `json:"embedding"`
	BBox      []float64    `json:"bbox"` // [x1, y1, x2, y2]
	DetScore  float64      `json:"det_score"`
	Landmarks [][2]float64 `json:"landmarks,omitempty"`
}

// FaceResponse is the response of the face embedding endpoint.
type FaceResponse struct {
	FacesCount int             `json:"faces_count"`
	Faces      []FaceDetection `json:"faces"`
	Model      string          `json:"model"`
}

type loadModelRequest struct {
	Model  string `json:"model"`
	Source string `json:"source,omitempty"`
}

// Ping checks that the server is reachable.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	_, err = c.do(req)
	return err
}

// InitializeModel asks the server to load a network.
func (c *Client) InitializeModel(ctx context.Context, model facerec.ModelID, source string) error {
	body, err := json.Marshal(loadModelRequest{Model: model.String(), Source: source})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/models/load", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if _, err := c.do(req); err != nil {
		return fmt.Errorf("loading %s: %w", model, err)
	}
	c.logger.WithField("model", model).Debug("model loaded on embedding server")
	return nil
}

// DetectSingleFace returns the highest scoring face or nil if the model found none.
func (c *Client) DetectSingleFace(ctx context.Context, img *facerec.Image, model facerec.ModelID, opts facerec.ModelOptions) (*facerec.Detection, error) {
	resp, err := c.detect(ctx, img, model, opts, true)
	if err != nil {
		return nil, err
	}
	if len(resp.Faces) == 0 {
		return nil, nil
	}

	best := 0
	for i, f := range resp.Faces {
		if f.DetScore > resp.Faces[best].DetScore {
			best = i
		}
	}
	det := toDetection(resp.Faces[best], model)
	return &det, nil
}

// DetectAllFaces returns every face found by the model.
func (c *Client) DetectAllFaces(ctx context.Context, img *facerec.Image, model facerec.ModelID, opts facerec.ModelOptions) ([]facerec.Detection, error) {
	resp, err := c.detect(ctx, img, model, opts, false)
	if err != nil {
		return nil, err
	}
	dets := make([]facerec.Detection, len(resp.Faces))
	for i, f := range resp.Faces {
		dets[i] = toDetection(f, model)
	}
	return dets, nil
}

func (c *Client) detect(ctx context.Context, img *facerec.Image, model facerec.ModelID, opts facerec.ModelOptions, single bool) (*FaceResponse, error) {
	fields := optionFields(opts)
	fields["detector"] = model.String()
	fields["single"] = strconv.FormatBool(single)

	body, err := c.postMultipartImage(ctx, "/embed/face", img.Data, fields)
	if err != nil {
		return nil, err
	}

	var faceResp FaceResponse
	if err := json.Unmarshal(body, &faceResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	for i, f := range faceResp.Faces {
		if len(f.Embedding) == 0 {
			return nil, fmt.Errorf("face %d: empty embedding returned", i)
		}
		if len(f.BBox) != 4 {
			return nil, fmt.Errorf("face %d: bbox has %d values, expected 4", i, len(f.BBox))
		}
	}
	return &faceResp, nil
}

func optionFields(opts facerec.ModelOptions) map[string]string {
	fields := map[string]string{}
	if opts.InputSize > 0 {
		fields["input_size"] = strconv.Itoa(opts.InputSize)
	}
	if opts.ScoreThreshold > 0 {
		fields["score_threshold"] = strconv.FormatFloat(opts.ScoreThreshold, 'f', -1, 64)
	}
	if opts.MinConfidence > 0 {
		fields["min_confidence"] = strconv.FormatFloat(opts.MinConfidence, 'f', -1, 64)
	}
	if opts.MaxResults > 0 {
		fields["max_results"] = strconv.Itoa(opts.MaxResults)
	}
	if opts.MinFaceSize > 0 {
		fields["min_face_size"] = strconv.Itoa(opts.MinFaceSize)
	}
	if opts.ScaleFactor > 0 {
		fields["scale_factor"] = strconv.FormatFloat(opts.ScaleFactor, 'f', -1, 64)
	}
	return fields
}

func toDetection(f FaceDetection, model facerec.ModelID) facerec.Detection {
	det := facerec.Detection{
		Descriptor: facerec.Descriptor(f.Embedding),
		Box: facerec.Box{
			X:      f.BBox[0],
			Y:      f.BBox[1],
			Width:  f.BBox[2] - f.BBox[0],
			Height: f.BBox[3] - f.BBox[1],
		},
		Score: f.DetScore,
		Model: model,
	}
	for _, p := range f.Landmarks {
		det.Landmarks = append(det.Landmarks, facerec.Point{X: p[0], Y: p[1]})
	}
	return det
}

// postMultipartImage posts the image and extra form fields to the given endpoint.
func (c *Client) postMultipartImage(ctx context.Context, endpoint string, imageData []byte, fields map[string]string) ([]byte, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	for k, v := range fields {
		if err := writer.WriteField(k, v); err != nil {
			return nil, fmt.Errorf("failed to write field %s: %w", k, err)
		}
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="image"`)
	h.Set("Content-Type", detectMIMEType(imageData))
	part, err := writer.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(imageData); err != nil {
		return nil, fmt.Errorf("failed to write image data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	return c.do(req)
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}

	return body, nil
}

// detectMIMEType detects the MIME type from image magic bytes.
func detectMIMEType(data []byte) string {
	if len(data) < 8 {
		return "application/octet-stream"
	}
	switch {
	case data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF:
		return "image/jpeg"
	case bytes.HasPrefix(data, []byte{0x89, 'P', 'N', 'G'}):
		return "image/png"
	case bytes.HasPrefix(data, []byte("GIF8")):
		return "image/gif"
	case len(data) >= 12 && bytes.HasPrefix(data, []byte("RIFF")) && string(data[8:12]) == "WEBP":
		return "image/webp"
	case bytes.HasPrefix(data, []byte("BM")):
		return "image/bmp"
	}
	return "application/octet-stream"
}
