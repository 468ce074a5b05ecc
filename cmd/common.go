package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/kozaktomas/facerec/internal/config"
	"github.com/kozaktomas/facerec/internal/database"
	"github.com/kozaktomas/facerec/internal/database/postgres"
	"github.com/kozaktomas/facerec/internal/extractor"
	"github.com/kozaktomas/facerec/internal/facematch"
	"github.com/kozaktomas/facerec/internal/facerec"
	"github.com/kozaktomas/facerec/internal/imagesource"
)

// newEngine connects to the embedding server and initializes the configured models.
func newEngine(ctx context.Context, cfg *config.Config) (*facerec.Engine, error) {
	engineCfg, err := cfg.Models.EngineConfig()
	if err != nil {
		return nil, err
	}

	client := extractor.NewClient(cfg.Embedding.URL)
	if err := client.Ping(ctx); err != nil {
		return nil, fmt.Errorf("embedding server is not reachable: %w", err)
	}

	engine, err := facerec.NewEngine(ctx, client, engineCfg)
	if err != nil {
		return nil, fmt.Errorf("initializing face engine: %w", err)
	}
	return engine, nil
}

// newImageSource serves local paths relative to root and http(s) URLs.
func newImageSource(root string) imagesource.Router {
	return imagesource.Default(root, &http.Client{Timeout: 60 * time.Second})
}

// openStore connects to PostgreSQL and registers the gallery backend.
func openStore(ctx context.Context, cfg *config.Config) (*postgres.GalleryRepository, error) {
	if cfg.Database.URL == "" {
		return nil, errors.New("DATABASE_URL environment variable is required")
	}
	repo, err := postgres.Initialize(ctx, &cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}
	return repo, nil
}

// closeStore persists the HNSW index and closes the pool.
func closeStore() {
	if !database.IsInitialized() {
		return
	}
	if rebuilder := database.GetGalleryHNSWRebuilder(); rebuilder != nil {
		if err := rebuilder.SaveHNSWIndex(); err != nil {
			log.WithError(err).Warn("failed to save gallery HNSW index")
		}
	}
	if pool := postgres.GetGlobalPool(); pool != nil {
		pool.Close()
	}
}

// galleryRecognizer builds a recognizer from every descriptor in the store.
func galleryRecognizer(ctx context.Context, threshold float64) (*facerec.Recognizer, error) {
	reader, err := database.GetGalleryReader(ctx)
	if err != nil {
		return nil, err
	}
	descs, err := reader.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading gallery: %w", err)
	}
	rec, err := facerec.NewRecognizer(database.BuildGallery(descs), threshold)
	if err != nil {
		return nil, fmt.Errorf("building recognizer from gallery: %w", err)
	}
	return rec, nil
}

// loadRecognizer reads the recognizer from path, falling back to FACEREC_RECOGNIZER_PATH
// and then to the gallery store.
func loadRecognizer(ctx context.Context, cfg *config.Config, path string) (*facerec.Recognizer, error) {
	if path == "" {
		path = cfg.Recognizer.Path
	}
	if path != "" {
		return facerec.LoadRecognizerFile(path)
	}
	if cfg.Database.URL == "" {
		return nil, errors.New("no recognizer: pass --recognizer, set FACEREC_RECOGNIZER_PATH or DATABASE_URL")
	}
	if _, err := openStore(ctx, cfg); err != nil {
		return nil, err
	}
	return galleryRecognizer(ctx, cfg.Recognizer.Threshold)
}

// detectFaces loads ref and extracts every distinct face, downscaling images larger than maxSize.
func detectFaces(ctx context.Context, engine *facerec.Engine, ref string, maxSize int) (*facerec.Image, []facerec.Detection, error) {
	img, err := newImageSource("").Load(ctx, ref)
	if err != nil {
		return nil, nil, err
	}
	dets, err := facematch.DetectFaces(ctx, engine, img, maxSize)
	if err != nil {
		return nil, nil, err
	}
	return img, dets, nil
}

// outputJSON writes data as indented JSON to stdout.
func outputJSON(data any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		return fmt.Errorf("encoding JSON output: %w", err)
	}
	return nil
}
