// Package clustering implements density-based clustering (DBSCAN) over
// entity embedding vectors. Given a batch of vectors it partitions them
// into clusters plus noise using a neighborhood-radius and minimum-density
// rule, and computes per-cluster centroids, sizes, and density scores.
package clustering

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/momenta/swipe-engine/internal/vectormath"
	"github.com/momenta/swipe-engine/pkg/types"
)

const (
	// labelUndefined marks a point not yet visited by the scan.
	labelUndefined = 0

	// labelNoise marks a point whose neighborhood is too sparse to seed a
	// cluster. Noise labels are provisional: a noise point reachable from a
	// later core point is absorbed as a border member of that cluster.
	labelNoise = -1
)

// Config holds the clustering parameters.
type Config struct {
	// Epsilon is the neighborhood radius: two points closer than Epsilon
	// under the configured distance are neighbors.
	Epsilon float64

	// MinPoints is the minimum neighborhood size (including the point
	// itself) for a point to qualify as a core point.
	MinPoints int

	// Distance selects the metric used for neighborhood queries.
	Distance vectormath.Kind
}

// DefaultConfig returns clustering parameters tuned for cosine distance
// over normalized embedding vectors.
func DefaultConfig() Config {
	return Config{
		Epsilon:   0.3,
		MinPoints: 2,
		Distance:  vectormath.Cosine,
	}
}

// Validate checks that the config describes a runnable clustering pass.
func (c *Config) Validate() error {
	if c.Epsilon <= 0 {
		return fmt.Errorf("Epsilon must be > 0, got %f", c.Epsilon)
	}
	if c.MinPoints < 1 {
		return fmt.Errorf("MinPoints must be >= 1, got %d", c.MinPoints)
	}
	if c.Distance != "" && !c.Distance.Valid() {
		return fmt.Errorf("unknown distance kind %q", c.Distance)
	}
	return nil
}

// Result is the raw output of one clustering pass, before the orchestrator
// wraps it with run metadata and a quality score.
type Result struct {
	// Clusters is the discovered partition with computed centroids.
	Clusters []types.Cluster

	// Assignments maps entity IDs to cluster IDs. Noise points are absent.
	Assignments types.AssignmentMap

	// Iterations is the number of points visited during the scan.
	Iterations int
}

// Clusterer runs DBSCAN-style density clustering over parallel arrays of
// vectors and entities. It is stateless across Process calls and safe for
// reuse.
type Clusterer struct {
	config Config
}

// NewClusterer creates a Clusterer with the given config. An empty distance
// kind defaults to cosine.
func NewClusterer(config Config) (*Clusterer, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid clustering config: %w", err)
	}
	if config.Distance == "" {
		config.Distance = vectormath.Cosine
	}
	return &Clusterer{config: config}, nil
}

// Process partitions the given vectors into clusters plus noise.
//
// vectors and entities are parallel arrays: vectors[i] is the embedding of
// entities[i]. A length mismatch is a precondition violation and returns an
// error; the input is never silently truncated. An empty input yields an
// empty result, not an error.
//
// The scan visits points in input order, so repeated runs over identical
// input produce identical partitions and identical first-visit cluster
// ordering.
func (c *Clusterer) Process(vectors [][]float64, entities []types.Entity) (*Result, error) {
	if len(vectors) != len(entities) {
		return nil, fmt.Errorf("parallel array mismatch: %d vectors, %d entities",
			len(vectors), len(entities))
	}

	n := len(vectors)
	result := &Result{
		Clusters:    []types.Cluster{},
		Assignments: types.AssignmentMap{},
	}
	if n == 0 {
		return result, nil
	}

	labels := make([]int, n) // labelUndefined everywhere
	clusterID := 0

	for i := 0; i < n; i++ {
		if labels[i] != labelUndefined {
			continue
		}
		result.Iterations++

		neighbors := c.rangeQuery(vectors, i)
		if len(neighbors) < c.config.MinPoints {
			labels[i] = labelNoise
			continue
		}

		// Point i is a core point: start a new cluster and grow it.
		clusterID++
		labels[i] = clusterID

		seed := make([]int, 0, len(neighbors))
		for _, j := range neighbors {
			if j != i {
				seed = append(seed, j)
			}
		}

		for len(seed) > 0 {
			q := seed[0]
			seed = seed[1:]

			if labels[q] == labelNoise {
				// Border point: absorbed into the cluster but not expanded.
				labels[q] = clusterID
				continue
			}
			if labels[q] != labelUndefined {
				continue
			}
			labels[q] = clusterID
			result.Iterations++

			qNeighbors := c.rangeQuery(vectors, q)
			if len(qNeighbors) >= c.config.MinPoints {
				seed = append(seed, qNeighbors...)
			}
		}
	}

	c.buildClusters(result, labels, clusterID, vectors, entities)
	return result, nil
}

// rangeQuery returns the indices of all points within Epsilon of
// vectors[idx], including idx itself.
func (c *Clusterer) rangeQuery(vectors [][]float64, idx int) []int {
	var neighbors []int
	q := vectors[idx]
	for i, v := range vectors {
		if vectormath.Distance(q, v, c.config.Distance) <= c.config.Epsilon {
			neighbors = append(neighbors, i)
		}
	}
	return neighbors
}

// buildClusters materializes types.Cluster values from the label array:
// centroid, size, density, and the entity→cluster assignment map. Cluster
// output order follows first-visit order, keeping runs deterministic.
func (c *Clusterer) buildClusters(result *Result, labels []int, clusterCount int, vectors [][]float64, entities []types.Entity) {
	if clusterCount == 0 {
		return
	}

	now := time.Now()
	ids := make([]string, clusterCount+1)
	members := make([][][]float64, clusterCount+1)

	for i, label := range labels {
		if label <= 0 {
			continue // noise points receive no assignment
		}
		if ids[label] == "" {
			ids[label] = uuid.NewString()
		}
		members[label] = append(members[label], vectors[i])
		result.Assignments[entities[i].ID] = ids[label]
	}

	for label := 1; label <= clusterCount; label++ {
		centroid := vectormath.Centroid(members[label])
		result.Clusters = append(result.Clusters, types.Cluster{
			ID:        ids[label],
			Centroid:  centroid,
			Size:      len(members[label]),
			Density:   clusterDensity(centroid, members[label], c.config.Distance),
			CreatedAt: now,
			UpdatedAt: now,
		})
	}
}

// clusterDensity returns size / (1 + mean member-to-centroid distance):
// monotonically increasing in member count and decreasing in spatial spread.
func clusterDensity(centroid []float64, members [][]float64, kind vectormath.Kind) float64 {
	if len(members) == 0 {
		return 0
	}

	var total float64
	for _, v := range members {
		total += vectormath.Distance(centroid, v, kind)
	}
	meanSpread := total / float64(len(members))

	return float64(len(members)) / (1.0 + meanSpread)
}
