package embedder

import (
	"context"
	"fmt"

	"github.com/momenta/swipe-engine/internal/storage"
	"github.com/momenta/swipe-engine/pkg/types"
)

// Vectorizer is the embedding computation the Refresher depends on.
// *Client satisfies it; tests substitute a fake.
type Vectorizer interface {
	Embed(ctx context.Context, text string) ([]float64, error)
	Model() string
}

// Refresher recomputes the embedding for a single entity: it reads the
// entity's text, calls the embedding service, and writes the resulting
// vector back through the embedding writer. It implements the
// engine.EmbeddingService contract consumed by the batch processor.
type Refresher struct {
	vectorizer Vectorizer
	content    storage.ContentSource
	writer     storage.EmbeddingWriter
}

// NewRefresher creates a Refresher. All collaborators are required.
func NewRefresher(vectorizer Vectorizer, content storage.ContentSource, writer storage.EmbeddingWriter) (*Refresher, error) {
	if vectorizer == nil {
		return nil, fmt.Errorf("vectorizer is required")
	}
	if content == nil {
		return nil, fmt.Errorf("content source is required")
	}
	if writer == nil {
		return nil, fmt.Errorf("embedding writer is required")
	}
	return &Refresher{vectorizer: vectorizer, content: content, writer: writer}, nil
}

// RefreshUserEmbedding recomputes and stores the embedding for a user.
func (r *Refresher) RefreshUserEmbedding(ctx context.Context, entityID string) error {
	return r.refresh(ctx, types.EntityTypeUser, entityID)
}

// RefreshPostEmbedding recomputes and stores the embedding for a post.
func (r *Refresher) RefreshPostEmbedding(ctx context.Context, entityID string) error {
	return r.refresh(ctx, types.EntityTypePost, entityID)
}

func (r *Refresher) refresh(ctx context.Context, entityType types.EntityType, entityID string) error {
	text, err := r.content.Content(ctx, entityType, entityID)
	if err != nil {
		return fmt.Errorf("failed to read content for %s/%s: %w", entityType, entityID, err)
	}
	if text == "" {
		return fmt.Errorf("entity %s/%s has no embeddable content", entityType, entityID)
	}

	vector, err := r.vectorizer.Embed(ctx, text)
	if err != nil {
		return fmt.Errorf("failed to embed %s/%s: %w", entityType, entityID, err)
	}

	if err := r.writer.StoreEmbedding(ctx, entityType, entityID, vector, r.vectorizer.Model()); err != nil {
		return fmt.Errorf("failed to store embedding for %s/%s: %w", entityType, entityID, err)
	}

	return nil
}
