// Package engine provides the batch clustering engine: embedding
// collection, cluster recalculation, and the scheduled coordinator that
// drives both on independent timers.
package engine

import (
	"context"
	"fmt"
	"time"
)

// EmbeddingService recomputes the embedding for a single entity. The
// engine treats each call as an opaque, possibly-failing operation; it
// never inspects the computed vector. Implemented by embedder.Refresher.
type EmbeddingService interface {
	RefreshUserEmbedding(ctx context.Context, entityID string) error
	RefreshPostEmbedding(ctx context.Context, entityID string) error
}

// Config holds configuration for the batch processor.
type Config struct {
	// EmbeddingUpdateInterval is how often the embedding refresh pass runs
	// (default: 1 hour).
	EmbeddingUpdateInterval time.Duration

	// ClusteringInterval is how often cluster recalculation runs
	// (default: 6 hours).
	ClusteringInterval time.Duration

	// BatchSize is the page size used when paginating embedding and ID
	// sources (default: 50).
	BatchSize int

	// MaxItemsPerRun caps how many entities a single embedding refresh
	// pass will touch (default: 500). Collection for clustering is never
	// capped; it always reads the full population.
	MaxItemsPerRun int

	// RefreshConcurrency is the number of per-entity refresh operations in
	// flight at once within one pass (default: 8).
	RefreshConcurrency int
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		EmbeddingUpdateInterval: time.Hour,
		ClusteringInterval:      6 * time.Hour,
		BatchSize:               50,
		MaxItemsPerRun:          500,
		RefreshConcurrency:      8,
	}
}

// Validate checks if the config is valid.
func (c *Config) Validate() error {
	if c.EmbeddingUpdateInterval <= 0 {
		return fmt.Errorf("EmbeddingUpdateInterval must be > 0, got %v", c.EmbeddingUpdateInterval)
	}
	if c.ClusteringInterval <= 0 {
		return fmt.Errorf("ClusteringInterval must be > 0, got %v", c.ClusteringInterval)
	}
	if c.BatchSize < 1 {
		return fmt.Errorf("BatchSize must be >= 1, got %d", c.BatchSize)
	}
	if c.MaxItemsPerRun < 1 {
		return fmt.Errorf("MaxItemsPerRun must be >= 1, got %d", c.MaxItemsPerRun)
	}
	if c.RefreshConcurrency < 1 {
		return fmt.Errorf("RefreshConcurrency must be >= 1, got %d", c.RefreshConcurrency)
	}
	return nil
}
