// Package config loads service settings from environment variables, with a
// best-effort .env file for local runs.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all service settings, populated from environment variables.
// The ETL and API binaries share one shape; each validates the slice it
// needs.
type Config struct {
	MongoURI      string
	MongoDatabase string

	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Refinement pipeline.
	RefineInterval   time.Duration
	FacilityThrottle time.Duration // courtesy delay between facilities
	FetchTimeout     time.Duration

	// Extraction model.
	OpenAIAPIKey    string
	OpenAIModel     string
	OpenAIBaseURL   string
	LLMMaxAttempts  int
	LLMRetryBackoff time.Duration

	// OCR gateway (enabled when both endpoint and secret are set).
	OCREnabled  bool
	OCREndpoint string
	OCRSecret   string
	OCRTimeout  time.Duration

	// Naver geocoding (used by the seed routine).
	NaverClientID     string
	NaverClientSecret string
	GeocodeTimeout    time.Duration
	GeocodeCacheSize  int

	// Optional refinement-event publishing.
	KafkaEnabled bool
	KafkaBrokers []string
	KafkaTopic   string

	// Availability policy: count sessions already underway as available.
	IncludeInProgress bool
}

// Load reads configuration from the environment, applying defaults where
// unset. A .env file in the working directory is merged in when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	shutdownTimeout, err := parseDuration("SHUTDOWN_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}
	refineInterval, err := parseDuration("REFINE_INTERVAL", "6h")
	if err != nil {
		return nil, err
	}
	facilityThrottle, err := parseDuration("FACILITY_THROTTLE", "2000ms")
	if err != nil {
		return nil, err
	}
	fetchTimeout, err := parseDuration("FETCH_TIMEOUT", "15s")
	if err != nil {
		return nil, err
	}
	llmRetryBackoff, err := parseDuration("LLM_RETRY_BACKOFF", "2000ms")
	if err != nil {
		return nil, err
	}
	ocrTimeout, err := parseDuration("OCR_TIMEOUT", "20s")
	if err != nil {
		return nil, err
	}
	geocodeTimeout, err := parseDuration("GEOCODE_TIMEOUT", "5s")
	if err != nil {
		return nil, err
	}

	llmMaxAttempts, err := parsePositiveInt("LLM_MAX_ATTEMPTS", 3)
	if err != nil {
		return nil, err
	}
	geocodeCacheSize, err := parsePositiveInt("GEOCODE_CACHE_SIZE", 1000)
	if err != nil {
		return nil, err
	}

	ocrEndpoint := os.Getenv("OCR_ENDPOINT")
	ocrSecret := os.Getenv("OCR_SECRET")

	kafkaBrokers := parseBrokers(os.Getenv("KAFKA_BROKERS"))

	cfg := &Config{
		MongoURI:      envOrDefault("MONGO_URI", "mongodb://localhost:27017"),
		MongoDatabase: envOrDefault("MONGO_DATABASE", "freeswim"),

		HTTPAddr:        envOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        envOrDefault("LOG_LEVEL", "info"),
		LogFormat:       envOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		RefineInterval:   refineInterval,
		FacilityThrottle: facilityThrottle,
		FetchTimeout:     fetchTimeout,

		OpenAIAPIKey:    os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:     os.Getenv("OPENAI_MODEL"),
		OpenAIBaseURL:   os.Getenv("OPENAI_BASE_URL"),
		LLMMaxAttempts:  llmMaxAttempts,
		LLMRetryBackoff: llmRetryBackoff,

		OCREnabled:  ocrEndpoint != "" && ocrSecret != "",
		OCREndpoint: ocrEndpoint,
		OCRSecret:   ocrSecret,
		OCRTimeout:  ocrTimeout,

		NaverClientID:     os.Getenv("NAVER_CLIENT_ID"),
		NaverClientSecret: os.Getenv("NAVER_CLIENT_SECRET"),
		GeocodeTimeout:    geocodeTimeout,
		GeocodeCacheSize:  geocodeCacheSize,

		KafkaEnabled: len(kafkaBrokers) > 0,
		KafkaBrokers: kafkaBrokers,
		KafkaTopic:   envOrDefault("KAFKA_TOPIC", "schedule-refined"),

		IncludeInProgress: os.Getenv("INCLUDE_IN_PROGRESS") == "true",
	}

	if cfg.MongoURI == "" {
		return nil, errors.New("MONGO_URI is required")
	}
	if cfg.MongoDatabase == "" {
		return nil, errors.New("MONGO_DATABASE is required")
	}

	return cfg, nil
}

// ValidateExtraction checks the settings only the refinement binary needs.
func (c *Config) ValidateExtraction() error {
	if c.OpenAIAPIKey == "" {
		return errors.New("OPENAI_API_KEY is required for the refinement pipeline")
	}
	return nil
}

// ValidateGeocoding checks the settings only the seed routine needs.
func (c *Config) ValidateGeocoding() error {
	if c.NaverClientID == "" || c.NaverClientSecret == "" {
		return errors.New("NAVER_CLIENT_ID and NAVER_CLIENT_SECRET are required for geocoding")
	}
	return nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseDuration(key, fallback string) (time.Duration, error) {
	raw := envOrDefault(key, fallback)
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, raw)
	}
	return d, nil
}

func parsePositiveInt(key string, fallback int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, raw)
	}
	return n, nil
}

func parseBrokers(raw string) []string {
	var brokers []string
	for _, b := range strings.Split(raw, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}
