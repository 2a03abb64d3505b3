package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/momenta/swipe-engine/internal/config"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := config.LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.Storage.Engine != "sqlite" {
		t.Errorf("Storage.Engine = %q, want sqlite", cfg.Storage.Engine)
	}
	if cfg.Batch.EmbeddingUpdateInterval != time.Hour {
		t.Errorf("EmbeddingUpdateInterval = %v, want 1h", cfg.Batch.EmbeddingUpdateInterval)
	}
	if cfg.Batch.ClusteringInterval != 6*time.Hour {
		t.Errorf("ClusteringInterval = %v, want 6h", cfg.Batch.ClusteringInterval)
	}
	if cfg.Clustering.Epsilon != 0.3 {
		t.Errorf("Epsilon = %f, want 0.3", cfg.Clustering.Epsilon)
	}
	if cfg.Clustering.Distance != "cosine" {
		t.Errorf("Distance = %q, want cosine", cfg.Clustering.Distance)
	}
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("SWIPE_STORAGE_ENGINE", "postgres")
	t.Setenv("SWIPE_BATCH_SIZE", "123")
	t.Setenv("SWIPE_CLUSTERING_INTERVAL", "90m")
	t.Setenv("SWIPE_CLUSTER_EPSILON", "0.45")

	cfg, err := config.LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.Storage.Engine != "postgres" {
		t.Errorf("Storage.Engine = %q, want postgres", cfg.Storage.Engine)
	}
	if cfg.Batch.BatchSize != 123 {
		t.Errorf("BatchSize = %d, want 123", cfg.Batch.BatchSize)
	}
	if cfg.Batch.ClusteringInterval != 90*time.Minute {
		t.Errorf("ClusteringInterval = %v, want 90m", cfg.Batch.ClusteringInterval)
	}
	if cfg.Clustering.Epsilon != 0.45 {
		t.Errorf("Epsilon = %f, want 0.45", cfg.Clustering.Epsilon)
	}
}

func TestLoadConfigIgnoresUnparseableEnvValues(t *testing.T) {
	t.Setenv("SWIPE_BATCH_SIZE", "not-a-number")

	cfg, err := config.LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.Batch.BatchSize != 50 {
		t.Errorf("BatchSize = %d, want default 50", cfg.Batch.BatchSize)
	}
}

func TestLoadConfigFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "swipe.yaml")

	content := []byte(`
storage:
  engine: postgres
  postgres_dsn: postgres://localhost/swipe
batch:
  batch_size: 200
clustering:
  epsilon: 0.5
  min_points: 4
`)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := config.LoadConfigFromFile(path)
	if err != nil {
		t.Fatalf("LoadConfigFromFile: %v", err)
	}

	if cfg.Storage.Engine != "postgres" {
		t.Errorf("Storage.Engine = %q, want postgres", cfg.Storage.Engine)
	}
	if cfg.Batch.BatchSize != 200 {
		t.Errorf("BatchSize = %d, want 200", cfg.Batch.BatchSize)
	}
	if cfg.Clustering.MinPoints != 4 {
		t.Errorf("MinPoints = %d, want 4", cfg.Clustering.MinPoints)
	}
	// Unset fields keep their defaults.
	if cfg.Embedding.Model != "nomic-embed-text" {
		t.Errorf("Embedding.Model = %q, want default", cfg.Embedding.Model)
	}
}

func TestFileValuesYieldToEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "swipe.yaml")

	if err := os.WriteFile(path, []byte("batch:\n  batch_size: 200\n"), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	t.Setenv("SWIPE_BATCH_SIZE", "75")

	cfg, err := config.LoadConfigFromFile(path)
	if err != nil {
		t.Fatalf("LoadConfigFromFile: %v", err)
	}

	if cfg.Batch.BatchSize != 75 {
		t.Errorf("BatchSize = %d, want env override 75", cfg.Batch.BatchSize)
	}
}

func TestLoadConfigFromFileMissing(t *testing.T) {
	if _, err := config.LoadConfigFromFile("/does/not/exist.yaml"); err == nil {
		t.Fatal("expected error for missing config file")
	}
}
