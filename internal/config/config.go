// Package config provides environment-backed configuration for the
// ingestion CLI, with fail-fast validation before any phase runs.
package config

import (
	"errors"
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

var ErrMissingRequired = errors.New("missing required configuration")

// Config is the environment-backed configuration. CLI flags override the
// directory and behavior fields after loading; credentials come only from
// the environment.
type Config struct {
	DatabaseURL  string `envconfig:"DATABASE_URL"`
	GeminiAPIKey string `envconfig:"GEMINI_API_KEY"`

	EmbeddingModel string `envconfig:"EMBEDDING_MODEL" default:"text-embedding-004"`
	CaptionModel   string `envconfig:"CAPTION_MODEL" default:"gemini-1.5-flash"`

	StateDir     string `envconfig:"STATE_DIR" default:"data/state"`
	CacheDir     string `envconfig:"CACHE_DIR" default:"data/cache"`
	ErrorLogPath string `envconfig:"ERROR_LOG_PATH" default:"data/logs/fetch_errors.log"`

	FetchRateLimitMS int  `envconfig:"FETCH_RATE_LIMIT_MS" default:"1000"`
	RespectRobots    bool `envconfig:"RESPECT_ROBOTS" default:"true"`
}

// Load reads the configuration from the environment. The caller is
// expected to have loaded any .env file already (godotenv in main).
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment: %w", err)
	}
	return &cfg, nil
}

// Validate fails fast on missing credentials so a misconfigured run dies
// before fetching anything. A dry run never touches the database, so
// DATABASE_URL is not required for it; the embedding key always is.
func (c *Config) Validate(dryRun bool) error {
	if c.GeminiAPIKey == "" {
		return fmt.Errorf("%w: GEMINI_API_KEY", ErrMissingRequired)
	}
	if !dryRun && c.DatabaseURL == "" {
		return fmt.Errorf("%w: DATABASE_URL", ErrMissingRequired)
	}
	return nil
}
