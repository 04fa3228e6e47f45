// Package config loads runtime settings from POINTLEDGER_* environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/dukerupert/pointledger/internal/blob"
)

const envPrefix = "POINTLEDGER"

type Config struct {
	// --- HTTP ---
	Port          string   `envconfig:"PORT" default:"8080"`
	PublicBaseURL string   `envconfig:"PUBLIC_BASE_URL" default:"http://localhost:8080"`
	WSOrigins     []string `envconfig:"WS_ORIGINS"`

	// --- Logging ---
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"text"`

	// --- Database ---
	DBDriver    string `envconfig:"DB_DRIVER" default:"sqlite"`
	DBPath      string `envconfig:"DB_PATH" default:"pointledger.db"`
	DatabaseURL string `envconfig:"DATABASE_URL"`
	DBMaxConns  int    `envconfig:"DB_MAX_CONNS" default:"25"`

	// --- Ledger ---
	TokenTTL       time.Duration `envconfig:"TOKEN_TTL" default:"24h"`
	ActivityPoints int           `envconfig:"ACTIVITY_POINTS" default:"20"`

	// --- Blob storage ---
	BlobBackend string `envconfig:"BLOB_BACKEND" default:"local"`
	UploadDir   string `envconfig:"UPLOAD_DIR" default:"uploads"`
	S3Endpoint  string `envconfig:"S3_ENDPOINT"`
	S3Bucket    string `envconfig:"S3_BUCKET"`
	S3Region    string `envconfig:"S3_REGION" default:"us-east-1"`
	S3AccessKey string `envconfig:"S3_ACCESS_KEY"`
	S3SecretKey string `envconfig:"S3_SECRET_KEY"`
	S3PublicURL string `envconfig:"S3_PUBLIC_URL"`

	// --- Rate limiting ---
	RateLimit       int           `envconfig:"RATE_LIMIT" default:"10"`
	RateLimitWindow time.Duration `envconfig:"RATE_LIMIT_WINDOW" default:"1m"`

	// --- Jobs ---
	CleanupSchedule string `envconfig:"CLEANUP_SCHEDULE" default:"@every 15m"`
}

func (c *Config) Validate() error {
	switch c.DBDriver {
	case "sqlite":
		if c.DBPath == "" {
			return fmt.Errorf("DB_PATH is required for the sqlite driver")
		}
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres driver")
		}
		if c.DBMaxConns <= 0 {
			return fmt.Errorf("DB_MAX_CONNS must be > 0")
		}
	default:
		return fmt.Errorf("DB_DRIVER must be sqlite or postgres, got %q", c.DBDriver)
	}

	switch c.BlobBackend {
	case "local":
		if c.UploadDir == "" {
			return fmt.Errorf("UPLOAD_DIR is required for the local blob backend")
		}
	case "s3":
		if c.S3Bucket == "" || c.S3AccessKey == "" || c.S3SecretKey == "" {
			return fmt.Errorf("S3_BUCKET, S3_ACCESS_KEY and S3_SECRET_KEY are required for the s3 blob backend")
		}
	default:
		return fmt.Errorf("BLOB_BACKEND must be local or s3, got %q", c.BlobBackend)
	}

	if c.TokenTTL <= 0 {
		return fmt.Errorf("TOKEN_TTL must be > 0")
	}
	if c.ActivityPoints <= 0 {
		return fmt.Errorf("ACTIVITY_POINTS must be > 0")
	}
	if c.RateLimit <= 0 || c.RateLimitWindow <= 0 {
		return fmt.Errorf("RATE_LIMIT and RATE_LIMIT_WINDOW must be > 0")
	}
	return nil
}

// S3 returns the blob store settings.
func (c *Config) S3() blob.S3Config {
	return blob.S3Config{
		Endpoint:  c.S3Endpoint,
		Bucket:    c.S3Bucket,
		Region:    c.S3Region,
		AccessKey: c.S3AccessKey,
		SecretKey: c.S3SecretKey,
		PublicURL: c.S3PublicURL,
	}
}

// MediaBaseURL is where locally stored uploads are served from.
func (c *Config) MediaBaseURL() string {
	return strings.TrimRight(c.PublicBaseURL, "/") + "/media"
}

// Load reads the environment and validates the result.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	cfg.DBDriver = strings.ToLower(strings.TrimSpace(cfg.DBDriver))
	cfg.BlobBackend = strings.ToLower(strings.TrimSpace(cfg.BlobBackend))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
