package engine

import (
	"context"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/momenta/swipe-engine/internal/clustering"
	"github.com/momenta/swipe-engine/internal/storage"
	"github.com/momenta/swipe-engine/pkg/types"
)

// Recalculator drives one full cluster recalculation: collect the
// population's embeddings, run density clustering over them, score the
// result, and persist it. It is stateless across calls except for its
// configured collaborators.
type Recalculator struct {
	collector *Collector
	clusterer *clustering.Clusterer
	source    storage.EmbeddingSource
	sink      storage.ClusterStore // optional; nil disables persistence
}

// NewRecalculator creates a Recalculator. source and the clustering config
// are required; sink may be nil, in which case results are computed and
// returned but never persisted.
func NewRecalculator(source storage.EmbeddingSource, sink storage.ClusterStore, batchSize int, clusterConfig clustering.Config) (*Recalculator, error) {
	if source == nil {
		return nil, fmt.Errorf("embedding source is required")
	}

	collector, err := NewCollector(batchSize)
	if err != nil {
		return nil, err
	}

	clusterer, err := clustering.NewClusterer(clusterConfig)
	if err != nil {
		return nil, err
	}

	return &Recalculator{
		collector: collector,
		clusterer: clusterer,
		source:    source,
		sink:      sink,
	}, nil
}

// Recalculate computes a fresh clustering result for the given population.
//
// Collection and clustering errors propagate to the caller: computation
// correctness is not best-effort. Persistence is: a sink failure is logged
// and deliberately discarded, and the freshly computed result is still
// returned. An empty population yields a valid zero-cluster result, not an
// error.
func (r *Recalculator) Recalculate(ctx context.Context, entityType types.EntityType) (*types.ClusteringResult, error) {
	if !entityType.Valid() {
		return nil, fmt.Errorf("unknown entity type %q", entityType)
	}

	batch, err := r.collector.Collect(ctx, r.source, entityType)
	if err != nil {
		return nil, fmt.Errorf("collection failed for %s: %w", entityType, err)
	}

	now := time.Now()

	if len(batch.Vectors) == 0 {
		// A cold system with no embeddings yet is a normal outcome.
		log.Printf("recalculator: no %s embeddings collected (%d records seen), returning empty result",
			entityType, batch.TotalItems)
		result := types.EmptyResult(entityType, batch.TotalItems, now)
		r.persist(ctx, result)
		return result, nil
	}

	clustered, err := r.clusterer.Process(batch.Vectors, batch.Entities)
	if err != nil {
		return nil, fmt.Errorf("clustering failed for %s: %w", entityType, err)
	}

	result := &types.ClusteringResult{
		Clusters:    clustered.Clusters,
		Assignments: clustered.Assignments,
		Quality:     qualityScore(len(clustered.Clusters), batch.TotalItems),
		Converged:   true,
		Iterations:  clustered.Iterations,
		Metadata: types.ResultMetadata{
			TotalItems: batch.TotalItems,
			EntityType: entityType,
			CreatedAt:  now,
		},
	}

	log.Printf("recalculator: %s run complete: %d clusters over %d/%d items, quality=%.3f",
		entityType, len(result.Clusters), len(batch.Vectors), batch.TotalItems, result.Quality)

	r.persist(ctx, result)
	return result, nil
}

// persist writes the result to the sink when one is configured. Durability
// is best-effort: the error variant is logged and deliberately discarded so
// a sink outage never masks a successfully computed result.
func (r *Recalculator) persist(ctx context.Context, result *types.ClusteringResult) {
	if r.sink == nil {
		return
	}

	if err := r.sink.SaveClusteringResult(ctx, result); err != nil {
		log.Printf("WARNING: recalculator: failed to persist %s clustering result: %v",
			result.Metadata.EntityType, err)
	}
}

// qualityScore is a cheap, bounded proxy for clustering richness relative
// to population size: min(1, clusterCount / sqrt(totalItems)). Zero when no
// clusters were found.
func qualityScore(clusterCount, totalItems int) float64 {
	if clusterCount == 0 || totalItems == 0 {
		return 0
	}
	return math.Min(1.0, float64(clusterCount)/math.Sqrt(float64(totalItems)))
}
