// Package config provides configuration management for the swipe-engine
// daemon. Settings are loaded from environment variables with the SWIPE_
// prefix, with sensible defaults for every option. An optional YAML file
// can be loaded first; environment variables override file values.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration settings for the swipe-engine daemon.
type Config struct {
	Storage    StorageConfig    `yaml:"storage"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Batch      BatchConfig      `yaml:"batch"`
	Backup     BackupConfig     `yaml:"backup"`
	Clustering ClusteringConfig `yaml:"clustering"`
}

// StorageConfig contains database configuration.
type StorageConfig struct {
	// Engine selects the backend: sqlite or postgres (default: sqlite).
	Engine string `yaml:"engine"`

	// DataPath is the directory for the SQLite database file (default: ./data).
	DataPath string `yaml:"data_path"`

	// PostgresDSN is the connection string used when Engine is postgres.
	PostgresDSN string `yaml:"postgres_dsn"`

	// VectorDimension fixes the pgvector column width (default: 768).
	VectorDimension int `yaml:"vector_dimension"`
}

// EmbeddingConfig contains embedding service configuration.
type EmbeddingConfig struct {
	// ServiceURL is the base URL of the embedding API (default: http://localhost:11434).
	ServiceURL string `yaml:"service_url"`

	// Model is the embedding model name (default: nomic-embed-text).
	Model string `yaml:"model"`

	// RequestTimeout is the per-request timeout (default: 10s).
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// RequestsPerSecond caps the aggregate request rate (default: 10).
	RequestsPerSecond float64 `yaml:"requests_per_second"`
}

// BatchConfig contains the batch processor's scheduling parameters.
type BatchConfig struct {
	// EmbeddingUpdateInterval is how often the refresh pass runs (default: 1h).
	EmbeddingUpdateInterval time.Duration `yaml:"embedding_update_interval"`

	// ClusteringInterval is how often recalculation runs (default: 6h).
	ClusteringInterval time.Duration `yaml:"clustering_interval"`

	// BatchSize is the pagination page size (default: 50).
	BatchSize int `yaml:"batch_size"`

	// MaxItemsPerRun caps one refresh pass (default: 500).
	MaxItemsPerRun int `yaml:"max_items_per_run"`

	// RefreshConcurrency bounds concurrent per-entity refreshes (default: 8).
	RefreshConcurrency int `yaml:"refresh_concurrency"`
}

// BackupConfig controls SQLite snapshotting. Snapshots are disabled unless
// Dir is set. Only meaningful for the sqlite storage engine.
type BackupConfig struct {
	// Dir is where snapshot files are written. Empty disables snapshots.
	Dir string `yaml:"dir"`

	// Interval between snapshots (default: 6h).
	Interval time.Duration `yaml:"interval"`

	// Keep is how many snapshots to retain (default: 12).
	Keep int `yaml:"keep"`
}

// ClusteringConfig contains the density clustering parameters.
type ClusteringConfig struct {
	// Epsilon is the neighborhood radius (default: 0.3).
	Epsilon float64 `yaml:"epsilon"`

	// MinPoints is the minimum neighborhood size for a core point (default: 2).
	MinPoints int `yaml:"min_points"`

	// Distance selects the metric: cosine or euclidean (default: cosine).
	Distance string `yaml:"distance"`
}

// LoadConfig loads configuration from environment variables with defaults.
func LoadConfig() (*Config, error) {
	cfg := buildBaseConfig()
	return cfg, nil
}

// LoadConfigFromFile reads a YAML config file and then applies environment
// variable overrides on top. Missing file fields keep their defaults.
func LoadConfigFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: failed to read %s: %w", path, err)
	}

	cfg := buildBaseConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse %s: %w", path, err)
	}

	// Env vars take precedence over file values.
	applyEnvOverrides(cfg)
	return cfg, nil
}

// buildBaseConfig constructs a Config from environment variables and
// defaults. This is the shared base for both load paths.
func buildBaseConfig() *Config {
	return &Config{
		Storage: StorageConfig{
			Engine:          getEnv("SWIPE_STORAGE_ENGINE", "sqlite"),
			DataPath:        getEnv("SWIPE_DATA_PATH", "./data"),
			PostgresDSN:     getEnv("SWIPE_POSTGRES_DSN", ""),
			VectorDimension: getEnvInt("SWIPE_VECTOR_DIMENSION", 768),
		},
		Embedding: EmbeddingConfig{
			ServiceURL:        getEnv("SWIPE_EMBEDDING_URL", "http://localhost:11434"),
			Model:             getEnv("SWIPE_EMBEDDING_MODEL", "nomic-embed-text"),
			RequestTimeout:    getEnvDuration("SWIPE_EMBEDDING_TIMEOUT", 10*time.Second),
			RequestsPerSecond: getEnvFloat("SWIPE_EMBEDDING_RPS", 10),
		},
		Batch: BatchConfig{
			EmbeddingUpdateInterval: getEnvDuration("SWIPE_EMBEDDING_INTERVAL", time.Hour),
			ClusteringInterval:      getEnvDuration("SWIPE_CLUSTERING_INTERVAL", 6*time.Hour),
			BatchSize:               getEnvInt("SWIPE_BATCH_SIZE", 50),
			MaxItemsPerRun:          getEnvInt("SWIPE_MAX_ITEMS_PER_RUN", 500),
			RefreshConcurrency:      getEnvInt("SWIPE_REFRESH_CONCURRENCY", 8),
		},
		Backup: BackupConfig{
			Dir:      getEnv("SWIPE_BACKUP_DIR", ""),
			Interval: getEnvDuration("SWIPE_BACKUP_INTERVAL", 6*time.Hour),
			Keep:     getEnvInt("SWIPE_BACKUP_KEEP", 12),
		},
		Clustering: ClusteringConfig{
			Epsilon:   getEnvFloat("SWIPE_CLUSTER_EPSILON", 0.3),
			MinPoints: getEnvInt("SWIPE_CLUSTER_MIN_POINTS", 2),
			Distance:  getEnv("SWIPE_CLUSTER_DISTANCE", "cosine"),
		},
	}
}

// applyEnvOverrides re-applies any explicitly set environment variables
// over a file-loaded config.
func applyEnvOverrides(cfg *Config) {
	setString(&cfg.Storage.Engine, "SWIPE_STORAGE_ENGINE")
	setString(&cfg.Storage.DataPath, "SWIPE_DATA_PATH")
	setString(&cfg.Storage.PostgresDSN, "SWIPE_POSTGRES_DSN")
	setInt(&cfg.Storage.VectorDimension, "SWIPE_VECTOR_DIMENSION")

	setString(&cfg.Embedding.ServiceURL, "SWIPE_EMBEDDING_URL")
	setString(&cfg.Embedding.Model, "SWIPE_EMBEDDING_MODEL")
	setDuration(&cfg.Embedding.RequestTimeout, "SWIPE_EMBEDDING_TIMEOUT")
	setFloat(&cfg.Embedding.RequestsPerSecond, "SWIPE_EMBEDDING_RPS")

	setDuration(&cfg.Batch.EmbeddingUpdateInterval, "SWIPE_EMBEDDING_INTERVAL")
	setDuration(&cfg.Batch.ClusteringInterval, "SWIPE_CLUSTERING_INTERVAL")
	setInt(&cfg.Batch.BatchSize, "SWIPE_BATCH_SIZE")
	setInt(&cfg.Batch.MaxItemsPerRun, "SWIPE_MAX_ITEMS_PER_RUN")
	setInt(&cfg.Batch.RefreshConcurrency, "SWIPE_REFRESH_CONCURRENCY")

	setString(&cfg.Backup.Dir, "SWIPE_BACKUP_DIR")
	setDuration(&cfg.Backup.Interval, "SWIPE_BACKUP_INTERVAL")
	setInt(&cfg.Backup.Keep, "SWIPE_BACKUP_KEEP")

	setFloat(&cfg.Clustering.Epsilon, "SWIPE_CLUSTER_EPSILON")
	setInt(&cfg.Clustering.MinPoints, "SWIPE_CLUSTER_MIN_POINTS")
	setString(&cfg.Clustering.Distance, "SWIPE_CLUSTER_DISTANCE")
}

// getEnv retrieves a string environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns a default
// value. Unparseable values fall back to the default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvFloat retrieves a float environment variable or returns a default
// value.
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// getEnvDuration retrieves a duration environment variable (Go duration
// syntax, e.g. "90m") or returns a default value.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func setString(dst *string, key string) {
	if value := os.Getenv(key); value != "" {
		*dst = value
	}
}

func setInt(dst *int, key string) {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			*dst = intValue
		}
	}
}

func setFloat(dst *float64, key string) {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			*dst = floatValue
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			*dst = d
		}
	}
}
