// Package types defines the core data structures for the swipe-engine
// clustering system. These types represent entities, embedding records,
// clusters, and clustering results shared between the batch engine and
// its storage backends.
package types

import (
	"fmt"
	"time"
)

// EntityType identifies the population an entity belongs to.
type EntityType string

const (
	// EntityTypeUser identifies user entities.
	EntityTypeUser EntityType = "user"

	// EntityTypePost identifies content/post entities.
	EntityTypePost EntityType = "post"
)

// Valid reports whether t is a known entity type.
func (t EntityType) Valid() bool {
	return t == EntityTypeUser || t == EntityTypePost
}

// Entity is a lightweight descriptor of a user or post participating in a
// clustering run. Identity is the (Type, ID) pair; the engine never creates
// or deletes entities, it only reads their associated embedding vectors.
type Entity struct {
	// ID is the opaque external identifier of the entity.
	ID string

	// Type classifies the entity population (user or post).
	Type EntityType

	// Metadata carries free-form attributes supplied by the embedding source.
	// The engine passes it through untouched.
	Metadata map[string]interface{}
}

// EmbeddingRecord is the unit of input read from an embedding source.
// Records with a nil or zero-length vector are skipped during collection
// (counted, logged, never fatal).
type EmbeddingRecord struct {
	// EntityID is the external identifier of the embedded entity.
	EntityID string

	// Vector is the embedding; all accepted vectors within one collection
	// pass share the same dimensionality.
	Vector []float64

	// Metadata carries free-form attributes stored alongside the embedding.
	Metadata map[string]interface{}
}

// Cluster describes one discovered interest group. Cluster IDs are stable
// only within a single clustering run; recalculation produces a fresh set.
type Cluster struct {
	// ID uniquely identifies the cluster within its run.
	ID string `json:"id"`

	// Centroid is the element-wise mean of the member vectors.
	Centroid []float64 `json:"centroid"`

	// Size is the number of member entities.
	Size int `json:"size"`

	// Density is a proxy for how tightly packed the cluster is. It grows
	// with member count and shrinks with spatial spread.
	Density float64 `json:"density"`

	// CreatedAt is when the cluster was discovered.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt matches CreatedAt for freshly computed clusters.
	UpdatedAt time.Time `json:"updated_at"`
}

// AssignmentMap maps entity IDs to the ID of the cluster they belong to.
// Entities classified as noise are absent from the map.
type AssignmentMap map[string]string

// ResultMetadata carries run-level bookkeeping for a clustering result.
type ResultMetadata struct {
	// TotalItems is the number of embedding records seen during collection,
	// including malformed records that were skipped.
	TotalItems int `json:"total_items"`

	// EntityType is the population that was clustered.
	EntityType EntityType `json:"entity_type"`

	// CreatedAt is when the result was computed.
	CreatedAt time.Time `json:"created_at"`
}

// ClusteringResult is the immutable output of one recalculation. It is
// constructed fresh on every run and persisted by value; the engine never
// mutates a result after returning it.
type ClusteringResult struct {
	// Clusters is the discovered partition.
	Clusters []Cluster `json:"clusters"`

	// Assignments maps entity IDs to cluster IDs. Every value references
	// an ID present in Clusters.
	Assignments AssignmentMap `json:"assignments"`

	// Quality is a bounded heuristic in [0, 1] for how meaningfully the
	// population was partitioned. Zero when no clusters were found.
	Quality float64 `json:"quality"`

	// Converged reports whether the algorithm ran to completion.
	Converged bool `json:"converged"`

	// Iterations counts points visited by the clustering pass.
	Iterations int `json:"iterations"`

	// Metadata carries run-level bookkeeping.
	Metadata ResultMetadata `json:"metadata"`
}

// EmptyResult returns a valid zero-cluster result for the given population.
// An empty population is a normal outcome (e.g. a cold system with no
// embeddings yet), not an error.
func EmptyResult(entityType EntityType, totalItems int, now time.Time) *ClusteringResult {
	return &ClusteringResult{
		Clusters:    []Cluster{},
		Assignments: AssignmentMap{},
		Quality:     0,
		Converged:   true,
		Iterations:  0,
		Metadata: ResultMetadata{
			TotalItems: totalItems,
			EntityType: entityType,
			CreatedAt:  now,
		},
	}
}

// Validate checks the structural invariants of a clustering result:
// quality bounded to [0, 1], non-negative sizes, and every assignment
// referencing a cluster present in the result.
func (r *ClusteringResult) Validate() error {
	if r.Quality < 0 || r.Quality > 1 {
		return fmt.Errorf("quality %f is outside [0, 1]", r.Quality)
	}

	if r.Iterations < 0 {
		return fmt.Errorf("iterations must be >= 0, got %d", r.Iterations)
	}

	known := make(map[string]bool, len(r.Clusters))
	for _, c := range r.Clusters {
		if c.ID == "" {
			return fmt.Errorf("cluster with empty ID")
		}
		if c.Size < 0 {
			return fmt.Errorf("cluster %s has negative size %d", c.ID, c.Size)
		}
		if c.Density < 0 {
			return fmt.Errorf("cluster %s has negative density %f", c.ID, c.Density)
		}
		known[c.ID] = true
	}

	for entityID, clusterID := range r.Assignments {
		if !known[clusterID] {
			return fmt.Errorf("entity %s assigned to unknown cluster %s", entityID, clusterID)
		}
	}

	return nil
}

// ClusterByID returns the cluster with the given ID, or nil if no such
// cluster exists in the result.
func (r *ClusteringResult) ClusterByID(id string) *Cluster {
	for i := range r.Clusters {
		if r.Clusters[i].ID == id {
			return &r.Clusters[i]
		}
	}
	return nil
}

// AssignmentFor returns the cluster an entity was assigned to, or nil when
// the entity was classified as noise or is unknown to this result.
func (r *ClusteringResult) AssignmentFor(entityID string) *Cluster {
	clusterID, ok := r.Assignments[entityID]
	if !ok {
		return nil
	}
	return r.ClusterByID(clusterID)
}
