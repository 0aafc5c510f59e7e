package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const apiKeyPlaceholder = "your-api-key-here"

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Incident and policy data sources.
	HistoricalURL string
	RecentURL     string
	CurrentURL    string
	PoliciesURL   string
	FetchTimeout  time.Duration

	// AI analysis provider. The key is read once at startup; a missing or
	// placeholder key disables the client without a network call.
	AIAPIKey  string
	AITimeout time.Duration

	// Bookmark persistence directory.
	StateDir string

	// Optional Kafka sink for normalized incidents.
	KafkaEnabled bool
	KafkaBrokers []string
	KafkaTopic   string
}

// Load reads configuration from environment variables, applying defaults
// where unset. An optional .env file in the working directory is loaded
// first and never overrides already-set variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	shutdownTimeout, err := parseDuration("SHUTDOWN_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}
	fetchTimeout, err := parseDuration("FETCH_TIMEOUT", "60s")
	if err != nil {
		return nil, err
	}
	aiTimeout, err := parseDuration("AI_TIMEOUT", "30s")
	if err != nil {
		return nil, err
	}

	kafkaBrokers := parseBrokers(envOrDefault("KAFKA_BROKERS", ""))
	kafkaEnabled := len(kafkaBrokers) > 0
	if v := os.Getenv("KAFKA_ENABLED"); v != "" {
		kafkaEnabled = v == "true"
	}

	cfg := &Config{
		HTTPAddr:        envOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        envOrDefault("LOG_LEVEL", "info"),
		LogFormat:       envOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		HistoricalURL: envOrDefault("DATA_HISTORICAL_URL", "https://data.pacifymap.org/gun_incidents_1985-2018_victim_level.csv"),
		RecentURL:     envOrDefault("DATA_RECENT_URL", "https://data.pacifymap.org/gun_incidents_2019-2025_incident_level.csv"),
		CurrentURL:    envOrDefault("DATA_CURRENT_URL", "https://data.pacifymap.org/gun_incidents_current_year.csv"),
		PoliciesURL:   envOrDefault("DATA_POLICIES_URL", "https://data.pacifymap.org/policy_analysis_results.json"),
		FetchTimeout:  fetchTimeout,

		AIAPIKey:  os.Getenv("AI_API_KEY"),
		AITimeout: aiTimeout,

		StateDir: envOrDefault("STATE_DIR", "state"),

		KafkaEnabled: kafkaEnabled,
		KafkaBrokers: kafkaBrokers,
		KafkaTopic:   envOrDefault("KAFKA_TOPIC", "normalized-incidents"),
	}

	if cfg.HistoricalURL == "" || cfg.RecentURL == "" || cfg.CurrentURL == "" || cfg.PoliciesURL == "" {
		return nil, errors.New("all DATA_*_URL values are required")
	}
	if cfg.StateDir == "" {
		return nil, errors.New("STATE_DIR is required")
	}
	if cfg.KafkaEnabled && len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_ENABLED is true but KAFKA_BROKERS is not set")
	}

	return cfg, nil
}

// AIConfigured reports whether a usable AI API key is present.
func (c *Config) AIConfigured() bool {
	return c.AIAPIKey != "" && c.AIAPIKey != apiKeyPlaceholder
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(envOrDefault(key, def))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parseBrokers(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	brokers := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			brokers = append(brokers, p)
		}
	}
	return brokers
}
