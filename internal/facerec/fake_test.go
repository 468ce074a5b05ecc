package facerec

import (
	"context"
	"errors"
	"sync"
)

// fakeExtractor returns scripted detections keyed by image reference and model.
type fakeExtractor struct {
	mu          sync.Mutex
	single      map[string]map[ModelID]*Detection
	all         map[string][]Detection
	failInit    map[ModelID]error
	failDetect  map[ModelID]error
	initialized []ModelID
	calls       []ModelID
}

func newFakeExtractor() *fakeExtractor {
	return &fakeExtractor{
		single:     map[string]map[ModelID]*Detection{},
		all:        map[string][]Detection{},
		failInit:   map[ModelID]error{},
		failDetect: map[ModelID]error{},
	}
}

func (f *fakeExtractor) face(ref string, model ModelID, desc ...float32) {
	if f.single[ref] == nil {
		f.single[ref] = map[ModelID]*Detection{}
	}
	f.single[ref][model] = &Detection{Descriptor: Descriptor(desc), Score: 0.9}
}

func (f *fakeExtractor) InitializeModel(_ context.Context, model ModelID, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failInit[model]; err != nil {
		return err
	}
	f.initialized = append(f.initialized, model)
	return nil
}

func (f *fakeExtractor) DetectSingleFace(_ context.Context, img *Image, model ModelID, _ ModelOptions) (*Detection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, model)
	if err := f.failDetect[model]; err != nil {
		return nil, err
	}
	det, ok := f.single[img.Ref][model]
	if !ok {
		return nil, nil
	}
	out := *det
	out.Descriptor = det.Descriptor.Clone()
	return &out, nil
}

func (f *fakeExtractor) DetectAllFaces(_ context.Context, img *Image, model ModelID, _ ModelOptions) ([]Detection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, model)
	if err := f.failDetect[model]; err != nil {
		return nil, err
	}
	return f.all[img.Ref], nil
}

// mapSource serves images by reference; refs listed in missing fail to load.
type mapSource struct {
	missing map[string]bool
}

func (s mapSource) Load(_ context.Context, ref string) (*Image, error) {
	if s.missing[ref] {
		return nil, &ImageLoadError{Ref: ref, Err: errors.New("404 not found")}
	}
	return &Image{Ref: ref}, nil
}
