package config

import (
	_ "embed"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kozaktomas/facerec/internal/facerec"
)

//go:embed models.yaml
var modelsYAML []byte

type Config struct {
	Models     ModelsConfig
	Recognizer RecognizerConfig
	Embedding  EmbeddingConfig
	Database   DatabaseConfig
	MQTT       MQTTConfig
	Web        WebConfig
	Log        LogConfig
}

type ModelsConfig struct {
	Source   string   // where the embedding server loads weights from
	Enabled  []string // detectors to initialize (default SsdMobilenetv1)
	Priority []string // single-face fallback order (default SsdMobilenetv1)
	Primary  string   // multi-face detector (default first priority entry)
	Presets  map[string]facerec.ModelOptions `yaml:"models"`
}

type RecognizerConfig struct {
	Threshold float64 // maximum distance for a known label (default 0.6)
	Workers   int     // concurrent extractions while enrolling (default 1)
	Path      string  // serialized recognizer JSON
}

type EmbeddingConfig struct {
	URL string // defaults to http://localhost:8000
}

type DatabaseConfig struct {
	URL           string // PostgreSQL connection URL
	MaxOpenConns  int    // Maximum open connections (default 25)
	MaxIdleConns  int    // Maximum idle connections (default 5)
	HNSWIndexPath string // Path to persist the gallery HNSW index (optional, rebuilt on startup if empty)
}

type MQTTConfig struct {
	Broker   string // e.g. tcp://localhost:1883, publishing is disabled when empty
	Topic    string // defaults to facerec/recognitions
	Username string
	Password string
}

type WebConfig struct {
	AllowedOrigins string // comma separated CORS origins, localhost is always allowed
}

type LogConfig struct {
	Level string // logrus level name (default info)
	File  string // optional rotated log file
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads a float as given, falling back to defaultVal when unset.
// Range checks belong to the consumer; an unparseable value yields NaN so it is rejected there too.
func envFloat(key string, defaultVal float64) float64 {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}
	return f
}

// envList reads a comma separated list, dropping empty items.
func envList(key string, defaultVal []string) []string {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	var out []string
	for item := range strings.SplitSeq(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}

func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

func Load() *Config {
	var models ModelsConfig
	if err := yaml.Unmarshal(modelsYAML, &models); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded models.yaml: " + err.Error())
	}

	models.Source = os.Getenv("FACEREC_MODELS_URL")
	models.Enabled = envList("FACEREC_MODELS", []string{"SsdMobilenetv1"})
	models.Priority = envList("FACEREC_MODEL_PRIORITY", []string{"SsdMobilenetv1"})
	models.Primary = os.Getenv("FACEREC_PRIMARY_MODEL")

	return &Config{
		Models: models,
		Recognizer: RecognizerConfig{
			Threshold: envFloat("FACEREC_THRESHOLD", 0.6),
			Workers:   envInt("FACEREC_WORKERS", 1),
			Path:      os.Getenv("FACEREC_RECOGNIZER_PATH"),
		},
		Embedding: EmbeddingConfig{
			URL: os.Getenv("EMBEDDING_URL"),
		},
		Database: DatabaseConfig{
			URL:           os.Getenv("DATABASE_URL"),
			MaxOpenConns:  envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:  envInt("DATABASE_MAX_IDLE_CONNS", 5),
			HNSWIndexPath: os.Getenv("HNSW_INDEX_PATH"),
		},
		MQTT: MQTTConfig{
			Broker:   os.Getenv("MQTT_BROKER"),
			Topic:    envString("MQTT_TOPIC", "facerec/recognitions"),
			Username: os.Getenv("MQTT_USERNAME"),
			Password: os.Getenv("MQTT_PASSWORD"),
		},
		Web: WebConfig{
			AllowedOrigins: os.Getenv("FACEREC_ALLOWED_ORIGINS"),
		},
		Log: LogConfig{
			Level: envString("LOG_LEVEL", "info"),
			File:  os.Getenv("LOG_FILE"),
		},
	}
}

// EngineConfig validates the model names and builds the engine configuration.
func (c *ModelsConfig) EngineConfig() (facerec.EngineConfig, error) {
	enabled, err := facerec.ParseModelIDs(c.Enabled)
	if err != nil {
		return facerec.EngineConfig{}, fmt.Errorf("FACEREC_MODELS: %w", err)
	}
	priority, err := facerec.ParseModelIDs(c.Priority)
	if err != nil {
		return facerec.EngineConfig{}, fmt.Errorf("FACEREC_MODEL_PRIORITY: %w", err)
	}

	cfg := facerec.EngineConfig{
		Enabled:  enabled,
		Priority: priority,
		Source:   c.Source,
		Options:  make(map[facerec.ModelID]facerec.ModelOptions, len(c.Presets)),
	}
	if c.Primary != "" {
		if cfg.Primary, err = facerec.ParseModelID(c.Primary); err != nil {
			return facerec.EngineConfig{}, fmt.Errorf("FACEREC_PRIMARY_MODEL: %w", err)
		}
	} else if len(priority) > 0 {
		cfg.Primary = priority[0]
	}

	for name, opts := range c.Presets {
		id, err := facerec.ParseModelID(name)
		if err != nil {
			return facerec.EngineConfig{}, fmt.Errorf("models.yaml: %w", err)
		}
		cfg.Options[id] = opts
	}
	return cfg, nil
}
