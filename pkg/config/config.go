// Package config loads poolkit settings from the environment and an optional
// YAML file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

var ErrInvalid = errors.New("config: invalid")

type Gateway struct {
	URL        string        `yaml:"url" json:"url"`
	Secret     string        `yaml:"secret" json:"secret"`
	MinVersion string        `yaml:"min_version" json:"min_version"`
	RPS        float64       `yaml:"rps" json:"rps"`
	Burst      int           `yaml:"burst" json:"burst"`
	Timeout    time.Duration `yaml:"timeout" json:"timeout"`
}

type Store struct {
	Kind          string `yaml:"kind" json:"kind"` // memory | sqlite | redis
	SQLitePath    string `yaml:"sqlite_path" json:"sqlite_path"`
	RedisAddr     string `yaml:"redis_addr" json:"redis_addr"`
	RedisPassword string `yaml:"redis_password" json:"redis_password"`
	RedisDB       int    `yaml:"redis_db" json:"redis_db"`
}

type Telemetry struct {
	Enabled    bool    `yaml:"enabled" json:"enabled"`
	Endpoint   string  `yaml:"endpoint" json:"endpoint"`
	SampleRate float64 `yaml:"sample_rate" json:"sample_rate"`
}

type Backup struct {
	Kind       string `yaml:"kind" json:"kind"` // file | s3 | gcs
	DataDir    string `yaml:"data_dir" json:"data_dir"`
	S3Bucket   string `yaml:"s3_bucket" json:"s3_bucket"`
	S3Region   string `yaml:"s3_region" json:"s3_region"`
	S3Endpoint string `yaml:"s3_endpoint" json:"s3_endpoint"`
	S3Prefix   string `yaml:"s3_prefix" json:"s3_prefix"`
	GCSBucket  string `yaml:"gcs_bucket" json:"gcs_bucket"`
	GCSPrefix  string `yaml:"gcs_prefix" json:"gcs_prefix"`
}

// Config holds poolkit configuration.
type Config struct {
	Chain       string    `yaml:"chain" json:"chain"`
	Gateway     Gateway   `yaml:"gateway" json:"gateway"`
	Store       Store     `yaml:"store" json:"store"`
	HistoryDSN  string    `yaml:"history_dsn" json:"history_dsn"`
	KeystoreDir string    `yaml:"keystore_dir" json:"keystore_dir"`
	LogLevel    string    `yaml:"log_level" json:"log_level"`
	LogFormat   string    `yaml:"log_format" json:"log_format"`
	Telemetry   Telemetry `yaml:"telemetry" json:"telemetry"`
	ProxyPolicy string    `yaml:"proxy_policy" json:"proxy_policy"`
	Backup      Backup    `yaml:"backup" json:"backup"`
}

// Defaults is the configuration with nothing set.
func Defaults() *Config {
	return &Config{
		Chain: "westend",
		Gateway: Gateway{
			URL:     "http://localhost:8545",
			RPS:     10,
			Burst:   5,
			Timeout: 30 * time.Second,
		},
		Store:       Store{Kind: "memory", SQLitePath: "poolkit.db", RedisAddr: "localhost:6379"},
		KeystoreDir: "keystore",
		LogLevel:    "INFO",
		LogFormat:   "text",
		Telemetry:   Telemetry{Endpoint: "localhost:4317", SampleRate: 1.0},
		Backup:      Backup{Kind: "file", DataDir: "data", S3Region: "us-east-1"},
	}
}

// Load reads configuration from environment variables over the defaults.
func Load() (*Config, error) {
	cfg := Defaults()
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

func applyEnv(cfg *Config) error {
	str := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	var errs []error
	num := func(key string, dst *float64) {
		if v := os.Getenv(key); v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%w: %s=%q", ErrInvalid, key, v))
				return
			}
			*dst = f
		}
	}
	integer := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%w: %s=%q", ErrInvalid, key, v))
				return
			}
			*dst = n
		}
	}

	str("POOLKIT_CHAIN", &cfg.Chain)
	str("POOLKIT_GATEWAY_URL", &cfg.Gateway.URL)
	str("POOLKIT_GATEWAY_SECRET", &cfg.Gateway.Secret)
	str("POOLKIT_MIN_GATEWAY_VERSION", &cfg.Gateway.MinVersion)
	num("POOLKIT_RPS", &cfg.Gateway.RPS)
	integer("POOLKIT_BURST", &cfg.Gateway.Burst)
	if v := os.Getenv("POOLKIT_GATEWAY_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%w: POOLKIT_GATEWAY_TIMEOUT=%q", ErrInvalid, v))
		} else {
			cfg.Gateway.Timeout = d
		}
	}

	str("POOLKIT_STORE", &cfg.Store.Kind)
	str("POOLKIT_SQLITE_PATH", &cfg.Store.SQLitePath)
	str("POOLKIT_REDIS_ADDR", &cfg.Store.RedisAddr)
	str("POOLKIT_REDIS_PASSWORD", &cfg.Store.RedisPassword)
	integer("POOLKIT_REDIS_DB", &cfg.Store.RedisDB)
	str("POOLKIT_HISTORY_DSN", &cfg.HistoryDSN)
	str("POOLKIT_KEYSTORE_DIR", &cfg.KeystoreDir)

	str("LOG_LEVEL", &cfg.LogLevel)
	str("LOG_FORMAT", &cfg.LogFormat)
	if v := os.Getenv("OTEL_ENABLED"); v != "" {
		cfg.Telemetry.Enabled = v == "true" || v == "1"
	}
	str("OTEL_ENDPOINT", &cfg.Telemetry.Endpoint)
	num("OTEL_SAMPLE_RATE", &cfg.Telemetry.SampleRate)

	str("POOLKIT_PROXY_POLICY", &cfg.ProxyPolicy)

	str("POOLKIT_BACKUP", &cfg.Backup.Kind)
	str("POOLKIT_DATA_DIR", &cfg.Backup.DataDir)
	str("POOLKIT_BACKUP_S3_BUCKET", &cfg.Backup.S3Bucket)
	str("POOLKIT_BACKUP_S3_REGION", &cfg.Backup.S3Region)
	str("POOLKIT_BACKUP_S3_ENDPOINT", &cfg.Backup.S3Endpoint)
	str("POOLKIT_BACKUP_S3_PREFIX", &cfg.Backup.S3Prefix)
	str("POOLKIT_BACKUP_GCS_BUCKET", &cfg.Backup.GCSBucket)
	str("POOLKIT_BACKUP_GCS_PREFIX", &cfg.Backup.GCSPrefix)

	return errors.Join(errs...)
}

// Validate checks the values the schema cannot express, and repeats the
// enum checks for configuration that came from the environment only.
func (c *Config) Validate() error {
	var errs []error
	if c.Chain == "" {
		errs = append(errs, fmt.Errorf("%w: chain is empty", ErrInvalid))
	}
	switch c.Store.Kind {
	case "memory", "sqlite", "redis":
	default:
		errs = append(errs, fmt.Errorf("%w: store kind %q", ErrInvalid, c.Store.Kind))
	}
	switch c.Backup.Kind {
	case "file", "s3", "gcs":
	default:
		errs = append(errs, fmt.Errorf("%w: backup kind %q", ErrInvalid, c.Backup.Kind))
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("%w: log format %q", ErrInvalid, c.LogFormat))
	}
	if c.Gateway.RPS < 0 {
		errs = append(errs, fmt.Errorf("%w: negative rps", ErrInvalid))
	}
	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		errs = append(errs, fmt.Errorf("%w: sample rate %v", ErrInvalid, c.Telemetry.SampleRate))
	}
	return errors.Join(errs...)
}
