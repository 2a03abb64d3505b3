package engine

import (
	"context"
	"fmt"
	"log"

	"github.com/momenta/swipe-engine/internal/storage"
	"github.com/momenta/swipe-engine/pkg/types"
)

// Batch is the output of one full collection pass: parallel vector and
// entity arrays ready for clustering, plus the total record count seen
// (including malformed records that were skipped).
type Batch struct {
	// Vectors holds the accepted embedding vectors; Vectors[i] belongs to
	// Entities[i].
	Vectors [][]float64

	// Entities holds the descriptors of the accepted records.
	Entities []types.Entity

	// TotalItems counts every record returned by the source, including
	// malformed ones that were skipped.
	TotalItems int
}

// Collector pages through an embedding source in bounded-size pages until
// exhaustion, accumulating the full population in memory. Collection always
// completes before clustering begins; there is no streaming path.
type Collector struct {
	batchSize int
}

// NewCollector creates a Collector with the given page size.
func NewCollector(batchSize int) (*Collector, error) {
	if batchSize < 1 {
		return nil, fmt.Errorf("batch size must be >= 1, got %d", batchSize)
	}
	return &Collector{batchSize: batchSize}, nil
}

// Collect reads all embedding records of the given type from source.
//
// Pages advance by the number of records returned; a page shorter than the
// batch size (or empty) signals end-of-data. Records with a nil or
// zero-length vector are logged and skipped but still counted in
// TotalItems. A source error propagates and discards all partial progress:
// retry is the coordinator's responsibility, not silent continuation.
func (c *Collector) Collect(ctx context.Context, source storage.EmbeddingSource, entityType types.EntityType) (*Batch, error) {
	batch := &Batch{}
	offset := 0

	for {
		records, err := source.FindAllEmbeddings(ctx, entityType, c.batchSize, offset)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch embeddings page at offset %d: %w", offset, err)
		}

		for _, record := range records {
			batch.TotalItems++
			if len(record.Vector) == 0 {
				log.Printf("collector: skipping %s %s: missing embedding vector", entityType, record.EntityID)
				continue
			}
			batch.Vectors = append(batch.Vectors, record.Vector)
			batch.Entities = append(batch.Entities, types.Entity{
				ID:       record.EntityID,
				Type:     entityType,
				Metadata: record.Metadata,
			})
		}

		offset += len(records)
		if len(records) < c.batchSize {
			return batch, nil
		}
	}
}
