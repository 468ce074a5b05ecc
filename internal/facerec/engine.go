package facerec

import (
	"context"
	"fmt"
	"slices"

	log "github.com/sirupsen/logrus"
)

// Extractor is the detector/descriptor service consumed by the engine.
type Extractor interface {
	// InitializeModel loads a model from source. It must complete before the model is used.
	InitializeModel(ctx context.Context, model ModelID, source string) error
	// DetectSingleFace returns the best face with landmarks and descriptor, or nil if none was found.
	DetectSingleFace(ctx context.Context, img *Image, model ModelID, opts ModelOptions) (*Detection, error)
	// DetectAllFaces returns every face found by the model.
	DetectAllFaces(ctx context.Context, img *Image, model ModelID, opts ModelOptions) ([]Detection, error)
}

// FaceExtractor extracts all face detections from an image.
type FaceExtractor interface {
	ExtractAll(ctx context.Context, img *Image) ([]Detection, error)
}

// EngineConfig is the immutable model configuration of an Engine.
type EngineConfig struct {
	// Enabled detectors to initialize.
	Enabled []ModelID
	// Priority is the order in which detectors are tried for single-face extraction.
	Priority []ModelID
	// Primary is the detector used for multi-face extraction.
	Primary ModelID
	// Options overrides DefaultModelOptions per model.
	Options map[ModelID]ModelOptions
	// Source is the location models are loaded from.
	Source string
}

// DefaultEngineConfig enables only SsdMobilenetv1.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Enabled:  []ModelID{SsdMobilenetv1},
		Priority: []ModelID{SsdMobilenetv1},
		Primary:  SsdMobilenetv1,
	}
}

// Engine applies the model fallback policy on top of an Extractor.
type Engine struct {
	extractor Extractor
	priority  []ModelID
	primary   ModelID
	options   map[ModelID]ModelOptions
	logger    log.FieldLogger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithEngineLogger sets the logger used by the engine.
func WithEngineLogger(l log.FieldLogger) EngineOption {
	return func(e *Engine) {
		e.logger = l
	}
}

// validate checks the configuration before any model is touched.
func (c EngineConfig) validate() error {
	if len(c.Priority) == 0 {
		return &InitializationError{Err: fmt.Errorf("model priority list is empty")}
	}
	for _, m := range c.Enabled {
		if !m.IsDetector() {
			return &InitializationError{Model: m, Err: fmt.Errorf("not a detector")}
		}
	}
	for _, m := range c.Priority {
		if !slices.Contains(c.Enabled, m) {
			return &InitializationError{Model: m, Err: fmt.Errorf("model in priority list is not enabled")}
		}
	}
	if !slices.Contains(c.Enabled, c.Primary) {
		return &InitializationError{Model: c.Primary, Err: fmt.Errorf("primary model is not enabled")}
	}
	return nil
}

// NewEngine validates cfg and initializes every enabled detector and the required nets.
// Any failure is an *InitializationError; nothing is retried.
func NewEngine(ctx context.Context, ex Extractor, cfg EngineConfig, opts ...EngineOption) (*Engine, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	e := &Engine{
		extractor: ex,
		priority:  slices.Clone(cfg.Priority),
		primary:   cfg.Primary,
		options:   make(map[ModelID]ModelOptions, len(cfg.Enabled)),
		logger:    log.WithField("component", "facerec"),
	}
	for _, opt := range opts {
		opt(e)
	}

	var initialized []ModelID
	for _, m := range append(slices.Clone(cfg.Enabled), RequiredNets...) {
		if slices.Contains(initialized, m) {
			continue
		}
		if err := ex.InitializeModel(ctx, m, cfg.Source); err != nil {
			return nil, &InitializationError{Model: m, Err: err}
		}
		initialized = append(initialized, m)
		e.logger.WithField("model", m).Debug("model initialized")

		if m.IsDetector() {
			o, ok := cfg.Options[m]
			if !ok {
				o = DefaultModelOptions(m)
			}
			e.options[m] = o
		}
	}

	e.logger.WithFields(log.Fields{
		"priority": e.priority,
		"primary":  e.primary,
	}).Info("face engine ready")

	return e, nil
}

// Priority returns the detector priority list.
func (e *Engine) Priority() []ModelID {
	return slices.Clone(e.priority)
}

// Primary returns the detector used for multi-face extraction.
func (e *Engine) Primary() ModelID {
	return e.primary
}

// ExtractSingle tries each detector in priority order and returns the detection of the
// first one that finds a face. Later detectors are not queried.
func (e *Engine) ExtractSingle(ctx context.Context, img *Image) (*Detection, error) {
	for _, m := range e.priority {
		det, err := e.extractor.DetectSingleFace(ctx, img, m, e.options[m])
		if err != nil {
			return nil, fmt.Errorf("detecting face with %s: %w", m, err)
		}
		if det == nil {
			e.logger.WithFields(log.Fields{"model": m, "image": img.Ref}).
				Debug("model did not detect a face, continuing down the priority list")
			continue
		}
		if det.Model == 0 {
			det.Model = m
		}
		return det, nil
	}
	return nil, &NoFaceError{Image: img.Ref}
}

// ExtractAll detects every face with the primary detector.
func (e *Engine) ExtractAll(ctx context.Context, img *Image) ([]Detection, error) {
	dets, err := e.extractor.DetectAllFaces(ctx, img, e.primary, e.options[e.primary])
	if err != nil {
		return nil, fmt.Errorf("detecting faces with %s: %w", e.primary, err)
	}
	if len(dets) == 0 {
		return nil, &NoFaceError{Image: img.Ref, All: true}
	}
	for i := range dets {
		if dets[i].Model == 0 {
			dets[i].Model = e.primary
		}
	}
	return dets, nil
}

// LabeledDescriptor extracts a single face and wraps its descriptor under label.
func (e *Engine) LabeledDescriptor(ctx context.Context, label string, img *Image) (LabeledDescriptors, error) {
	set, _, err := e.labeledDetection(ctx, label, img)
	return set, err
}

// labeledDetection is LabeledDescriptor that also reports the detector which found the face.
func (e *Engine) labeledDetection(ctx context.Context, label string, img *Image) (LabeledDescriptors, ModelID, error) {
	if label == "" {
		return LabeledDescriptors{}, 0, ErrEmptyLabel
	}
	det, err := e.ExtractSingle(ctx, img)
	if err != nil {
		return LabeledDescriptors{}, 0, err
	}
	return LabeledDescriptors{Label: label, Descriptors: []Descriptor{det.Descriptor.Clone()}}, det.Model, nil
}
