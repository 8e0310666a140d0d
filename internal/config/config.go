// Package config loads pcxd settings from YAML, an optional .env file and
// PCX_* environment variables, in that order of precedence (last wins).
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"pcx/internal/blob"
	"pcx/internal/core"
	"pcx/pkg/domain"
)

// Config is the full process configuration.
type Config struct {
	HTTP    HTTPConfig    `yaml:"http"`
	Storage StorageConfig `yaml:"storage"`
	Blob    BlobConfig    `yaml:"blob"`
	Events  EventsConfig  `yaml:"events"`
	Exports ExportsConfig `yaml:"exports"`
	Logging LoggingConfig `yaml:"logging"`
	Policy  domain.Policy `yaml:"policy"`
}

type HTTPConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type StorageConfig struct {
	Driver      string `yaml:"driver"`
	SQLitePath  string `yaml:"sqlite_path"`
	PostgresDSN string `yaml:"postgres_dsn"`
}

type BlobConfig struct {
	Driver  string         `yaml:"driver"`
	FSRoot  string         `yaml:"fs_root"`
	BaseURL string         `yaml:"base_url"`
	S3      blob.S3Options `yaml:"s3"`
}

type EventsConfig struct {
	NATSURL       string `yaml:"nats_url"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

type ExportsConfig struct {
	QueueSize int `yaml:"queue_size"`
}

type LoggingConfig struct {
	Level       string `yaml:"level"`
	AuditBuffer int    `yaml:"audit_buffer"`
}

// DefaultConfig returns settings for a single-node pilot: in-memory store,
// artifacts on the local filesystem, no event bus.
func DefaultConfig() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Addr:            ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Storage: StorageConfig{
			Driver:     string(core.StorageMemory),
			SQLitePath: "pcx.db",
		},
		Blob: BlobConfig{
			Driver: string(blob.DriverFilesystem),
			FSRoot: "artifacts",
		},
		Exports: ExportsConfig{QueueSize: 32},
		Logging: LoggingConfig{Level: "info", AuditBuffer: 1000},
		Policy:  domain.DefaultPolicy(),
	}
}

// Load reads path (a missing file yields defaults), then .env, then the
// environment, and validates the result.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		}
	}

	// .env is optional; existing variables are never overwritten.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() error {
	str := map[string]*string{
		"PCX_HTTP_ADDR":        &c.HTTP.Addr,
		"PCX_STORAGE_DRIVER":   &c.Storage.Driver,
		"PCX_SQLITE_PATH":      &c.Storage.SQLitePath,
		"PCX_POSTGRES_DSN":     &c.Storage.PostgresDSN,
		"PCX_BLOB_DRIVER":      &c.Blob.Driver,
		"PCX_BLOB_FS_ROOT":     &c.Blob.FSRoot,
		"PCX_BLOB_S3_BUCKET":   &c.Blob.S3.Bucket,
		"PCX_BLOB_S3_REGION":   &c.Blob.S3.Region,
		"PCX_BLOB_S3_ENDPOINT": &c.Blob.S3.Endpoint,
		"PCX_NATS_URL":         &c.Events.NATSURL,
		"PCX_LOG_LEVEL":        &c.Logging.Level,
	}
	for key, dst := range str {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	if v, ok := os.LookupEnv("PCX_BLOB_S3_PATH_STYLE"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("PCX_BLOB_S3_PATH_STYLE: %w", err)
		}
		c.Blob.S3.PathStyle = b
	}
	return nil
}

// Validate rejects settings the process cannot start with.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.HTTP.Addr) == "" {
		errs = append(errs, errors.New("http.addr is required"))
	}
	switch core.StorageDriver(strings.ToLower(c.Storage.Driver)) {
	case "", core.StorageMemory:
	case core.StorageSQLite:
		if c.Storage.SQLitePath == "" {
			errs = append(errs, errors.New("storage.sqlite_path is required for sqlite"))
		}
	case core.StoragePostgres:
		if c.Storage.PostgresDSN == "" {
			errs = append(errs, errors.New("storage.postgres_dsn is required for postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage driver %q", c.Storage.Driver))
	}
	switch blob.Driver(strings.ToLower(c.Blob.Driver)) {
	case "", blob.DriverFilesystem:
		if c.Blob.FSRoot == "" {
			errs = append(errs, errors.New("blob.fs_root is required for fs"))
		}
	case blob.DriverMemory:
	case blob.DriverS3:
		if c.Blob.S3.Bucket == "" {
			errs = append(errs, errors.New("blob.s3.bucket is required for s3"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown blob driver %q", c.Blob.Driver))
	}
	if c.Exports.QueueSize <= 0 {
		errs = append(errs, errors.New("exports.queue_size must be positive"))
	}
	if err := c.Policy.Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// StorageOptions converts the storage section for core.OpenPersistentStore.
func (c *Config) StorageOptions() core.StorageOptions {
	return core.StorageOptions{
		Driver:      core.StorageDriver(c.Storage.Driver),
		SQLitePath:  c.Storage.SQLitePath,
		PostgresDSN: c.Storage.PostgresDSN,
	}
}

// BlobOptions converts the blob section for blob.Open.
func (c *Config) BlobOptions() blob.Options {
	return blob.Options{
		Driver:  blob.Driver(c.Blob.Driver),
		FSRoot:  c.Blob.FSRoot,
		BaseURL: c.Blob.BaseURL,
		S3:      c.Blob.S3,
	}
}
