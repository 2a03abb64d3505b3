// Package storage provides composable storage interfaces for the
// swipe-engine clustering system.
//
// The storage layer is designed with small, focused interfaces that can be
// implemented independently and composed as needed. The batch engine only
// ever depends on these interfaces, never on a concrete backend, so the
// pagination and persistence contracts below are the whole coupling surface.
package storage

import (
	"context"

	"github.com/momenta/swipe-engine/pkg/types"
)

// EmbeddingSource supplies embedding records for one entity population in
// bounded pages.
//
// Pagination contract: a call returns fewer than limit records (possibly
// zero) exactly when the population is exhausted, and ordering is stable
// across calls within one collection run, so advancing offset by the page
// length neither duplicates nor skips records.
type EmbeddingSource interface {
	// FindAllEmbeddings returns up to limit embedding records for the given
	// entity type starting at offset. Records with a nil vector are
	// returned as-is; skipping malformed records is the caller's job.
	FindAllEmbeddings(ctx context.Context, entityType types.EntityType, limit, offset int) ([]types.EmbeddingRecord, error)
}

// IDSource supplies entity IDs for one population in bounded pages, with
// the same pagination contract as EmbeddingSource. Used by the embedding
// refresh pass, which walks IDs rather than full records.
type IDSource interface {
	// FindAllIDs returns up to limit entity IDs of the given type starting
	// at offset.
	FindAllIDs(ctx context.Context, entityType types.EntityType, limit, offset int) ([]string, error)
}

// EmbeddingWriter durably stores a freshly computed embedding vector.
type EmbeddingWriter interface {
	// StoreEmbedding upserts the vector for the given entity. model records
	// which embedding model produced the vector.
	StoreEmbedding(ctx context.Context, entityType types.EntityType, entityID string, vector []float64, model string) error
}

// ContentSource reads the raw text an entity is embedded from.
type ContentSource interface {
	// Content returns the embeddable text for the given entity.
	// Returns ErrNotFound when the entity is unknown.
	Content(ctx context.Context, entityType types.EntityType, entityID string) (string, error)
}

// ClusterStore persists clustering results and serves the current cluster
// assignment lookup.
type ClusterStore interface {
	// SaveClusteringResult durably stores a clustering result keyed by its
	// entity type. Each save is a new run record; history is retained.
	SaveClusteringResult(ctx context.Context, result *types.ClusteringResult) error

	// LatestClusteringResult returns the most recently saved result for the
	// given entity type, or ErrNotFound when no run has been persisted yet.
	LatestClusteringResult(ctx context.Context, entityType types.EntityType) (*types.ClusteringResult, error)
}

// Store is the full backend surface the daemon wires together. Both the
// Postgres and SQLite backends implement it.
type Store interface {
	EmbeddingSource
	IDSource
	EmbeddingWriter
	ContentSource
	ClusterStore

	// Close releases any resources held by the store.
	Close() error
}
