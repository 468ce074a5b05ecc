package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/facerec/internal/config"
	"github.com/kozaktomas/facerec/internal/constants"
	"github.com/kozaktomas/facerec/internal/facerec"
	"github.com/kozaktomas/facerec/internal/publish"
	"github.com/kozaktomas/facerec/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the recognition API server",
	Long: `Start the HTTP API for face recognition.

The recognizer is read from --recognizer or FACEREC_RECOGNIZER_PATH, otherwise
it is built from the PostgreSQL gallery. When DATABASE_URL is set the similar
endpoint searches the gallery. When MQTT_BROKER is set every recognition is
published to MQTT_TOPIC.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", constants.DefaultPort, "Port to listen on")
	serveCmd.Flags().String("host", "0.0.0.0", "Host to bind to")
	serveCmd.Flags().String("recognizer", "", "Recognizer JSON file")
}

// resolveServeHostPort resolves port and host from flags and environment variables.
func resolveServeHostPort(cmd *cobra.Command) (int, string) {
	port := mustGetInt(cmd, "port")
	host := mustGetString(cmd, "host")

	if envPort := os.Getenv("WEB_PORT"); envPort != "" && !cmd.Flags().Changed("port") {
		fmt.Sscanf(envPort, "%d", &port)
	}
	if envHost := os.Getenv("WEB_HOST"); envHost != "" && !cmd.Flags().Changed("host") {
		host = envHost
	}
	return port, host
}

// serveDeps assembles the recognizer, gallery and publisher for the API.
func serveDeps(ctx context.Context, cfg *config.Config, recognizerPath string) (web.Deps, error) {
	var deps web.Deps

	if cfg.Database.URL != "" {
		repo, err := openStore(ctx, cfg)
		if err != nil {
			return deps, err
		}
		deps.Gallery = repo
		log.WithField("descriptors", repo.HNSWCount()).Info("gallery store ready")
	}

	if recognizerPath == "" {
		recognizerPath = cfg.Recognizer.Path
	}
	var err error
	switch {
	case recognizerPath != "":
		deps.Recognizer, err = facerec.LoadRecognizerFile(recognizerPath)
	case deps.Gallery != nil:
		deps.Recognizer, err = galleryRecognizer(ctx, cfg.Recognizer.Threshold)
	default:
		err = errors.New("no recognizer: pass --recognizer, set FACEREC_RECOGNIZER_PATH or DATABASE_URL")
	}
	if err != nil {
		return deps, err
	}
	log.WithFields(log.Fields{
		"labels":    deps.Recognizer.Len(),
		"threshold": deps.Recognizer.Threshold(),
	}).Info("recognizer loaded")

	engine, err := newEngine(ctx, cfg)
	if err != nil {
		return deps, err
	}
	deps.Extractor = engine

	if cfg.MQTT.Broker != "" {
		pub, err := publish.NewMQTTPublisher(cfg.MQTT)
		if err != nil {
			log.WithError(err).Warn("MQTT publishing disabled")
		} else {
			deps.Publisher = pub
		}
	}
	return deps, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	deps, err := serveDeps(ctx, cfg, mustGetString(cmd, "recognizer"))
	if err != nil {
		closeStore()
		return err
	}

	port, host := resolveServeHostPort(cmd)
	server := web.NewServer(cfg, deps, port, host)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Info("shutting down")

		shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Error("error during shutdown")
		}
		closeStore()
	}()

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}
