// Package config handles loading and managing mshare configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration for mshare.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Storage   StorageConfig   `yaml:"storage"`
	Auth      AuthConfig      `yaml:"auth"`
	Ingestion IngestionConfig `yaml:"ingestion"`
	Log       LogConfig       `yaml:"log"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig selects the metadata store.
type DatabaseConfig struct {
	Driver      string `yaml:"driver"` // postgres, sqlite or memory
	DSN         string `yaml:"dsn"`
	AutoMigrate bool   `yaml:"auto_migrate"`
}

// StorageConfig selects the blob backend.
type StorageConfig struct {
	Backend   string    `yaml:"backend"` // local, s3 or gcs
	LocalPath string    `yaml:"local_path"`
	PublicURL string    `yaml:"public_url"` // base URL objects resolve under
	S3        S3Config  `yaml:"s3"`
	GCS       GCSConfig `yaml:"gcs"`
}

// S3Config configures an S3-compatible bucket, including Backblaze B2.
type S3Config struct {
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
}

// GCSConfig configures a Google Cloud Storage bucket.
type GCSConfig struct {
	Bucket string `yaml:"bucket"`
}

// AuthConfig holds the bearer token secret.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

// IngestionConfig tunes upload processing.
type IngestionConfig struct {
	ScratchDir        string        `yaml:"scratch_dir"`
	Ignore            []string      `yaml:"ignore"`
	MaxUploadBytes    int64         `yaml:"max_upload_bytes"`
	MaxExtractedBytes int64         `yaml:"max_extracted_bytes"` // 0 disables the check
	ProgressRetention time.Duration `yaml:"progress_retention"`  // 0 keeps records forever
	SweepInterval     time.Duration `yaml:"sweep_interval"`
}

// LogConfig controls logging output.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json or text
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	dataDir := DataDir()
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ShutdownTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Driver:      "sqlite",
			DSN:         filepath.Join(dataDir, "mshare.db"),
			AutoMigrate: true,
		},
		Storage: StorageConfig{
			Backend:   "local",
			LocalPath: filepath.Join(dataDir, "blobs"),
			S3:        S3Config{Region: "us-east-1"},
		},
		Ingestion: IngestionConfig{
			Ignore:            []string{"__MACOSX", ".DS_Store"},
			MaxUploadBytes:    500 << 20,
			MaxExtractedBytes: 2 << 30,
			ProgressRetention: 24 * time.Hour,
			SweepInterval:     10 * time.Minute,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads a config file from the given path.
// If the file does not exist, it returns the default config.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	return cfg, nil
}

// ApplyEnv overrides settings from environment variables looked up through
// lookup, normally os.LookupEnv.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	if v, ok := lookup("PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("PORT: %w", err)
		}
		c.Server.Port = port
	}
	str("DATABASE_DRIVER", &c.Database.Driver)
	str("DATABASE_URL", &c.Database.DSN)
	str("STORAGE_BACKEND", &c.Storage.Backend)
	str("LOCAL_STORAGE_PATH", &c.Storage.LocalPath)
	str("BLOB_PUBLIC_URL", &c.Storage.PublicURL)
	str("S3_BUCKET", &c.Storage.S3.Bucket)
	str("S3_REGION", &c.Storage.S3.Region)
	str("S3_ENDPOINT", &c.Storage.S3.Endpoint)
	str("S3_ACCESS_KEY", &c.Storage.S3.AccessKey)
	str("S3_SECRET_KEY", &c.Storage.S3.SecretKey)
	str("GCS_BUCKET", &c.Storage.GCS.Bucket)
	str("JWT_SECRET", &c.Auth.JWTSecret)
	str("LOG_LEVEL", &c.Log.Level)
	str("SCRATCH_DIR", &c.Ingestion.ScratchDir)
	return nil
}

// Validate checks the configuration and fills derived defaults.
func (c *Config) Validate() error {
	var problems []string

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		problems = append(problems, fmt.Sprintf("server.port %d out of range", c.Server.Port))
	}

	switch c.Database.Driver {
	case "postgres", "sqlite":
		if c.Database.DSN == "" {
			problems = append(problems, "database.dsn is required for driver "+c.Database.Driver)
		}
	case "memory":
	default:
		problems = append(problems, fmt.Sprintf("database.driver %q must be postgres, sqlite or memory", c.Database.Driver))
	}

	switch c.Storage.Backend {
	case "local":
		if c.Storage.LocalPath == "" {
			problems = append(problems, "storage.local_path is required for the local backend")
		}
		if c.Storage.PublicURL == "" {
			c.Storage.PublicURL = fmt.Sprintf("http://localhost:%d/blobs", c.Server.Port)
		}
	case "s3":
		if c.Storage.S3.Bucket == "" {
			problems = append(problems, "storage.s3.bucket is required for the s3 backend")
		}
	case "gcs":
		if c.Storage.GCS.Bucket == "" {
			problems = append(problems, "storage.gcs.bucket is required for the gcs backend")
		}
	default:
		problems = append(problems, fmt.Sprintf("storage.backend %q must be local, s3 or gcs", c.Storage.Backend))
	}

	if c.Ingestion.MaxUploadBytes < 0 {
		problems = append(problems, "ingestion.max_upload_bytes must not be negative")
	}
	if c.Ingestion.MaxExtractedBytes < 0 {
		problems = append(problems, "ingestion.max_extracted_bytes must not be negative")
	}
	if c.Ingestion.ProgressRetention < 0 {
		problems = append(problems, "ingestion.progress_retention must not be negative")
	}

	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		problems = append(problems, fmt.Sprintf("log.level %q is not a valid level", c.Log.Level))
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		problems = append(problems, fmt.Sprintf("log.format %q must be json or text", c.Log.Format))
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// ValidateServer runs Validate and additionally requires the settings only
// the API server needs.
func (c *Config) ValidateServer() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("invalid config: auth.jwt_secret is required")
	}
	return nil
}

// FindConfigFile looks for .mshare/config.yaml in the given directory
// and its parents, returning the path if found, or "" if not.
func FindConfigFile(dir string) string {
	for {
		candidate := filepath.Join(dir, ".mshare", "config.yaml")
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return ""
}

// DataDir returns the default directory for the SQLite database and local
// blobs: ~/.local/share/mshare.
func DataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		// Fallback to temp dir if HOME isn't available
		home = os.TempDir()
	}
	return filepath.Join(home, ".local", "share", "mshare")
}
