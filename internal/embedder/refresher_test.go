package embedder_test

import (
	"context"
	"errors"
	"testing"

	"github.com/momenta/swipe-engine/internal/embedder"
	"github.com/momenta/swipe-engine/pkg/types"
)

type fakeVectorizer struct {
	vector []float64
	err    error
	calls  []string
}

func (f *fakeVectorizer) Embed(ctx context.Context, text string) ([]float64, error) {
	f.calls = append(f.calls, text)
	return f.vector, f.err
}

func (f *fakeVectorizer) Model() string { return "fake-model" }

type fakeContentSource struct {
	content map[string]string
	err     error
}

func (f *fakeContentSource) Content(ctx context.Context, entityType types.EntityType, entityID string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.content[string(entityType)+"/"+entityID], nil
}

type fakeWriter struct {
	stored map[string][]float64
	model  string
	err    error
}

func (f *fakeWriter) StoreEmbedding(ctx context.Context, entityType types.EntityType, entityID string, vector []float64, model string) error {
	if f.err != nil {
		return f.err
	}
	if f.stored == nil {
		f.stored = make(map[string][]float64)
	}
	f.stored[string(entityType)+"/"+entityID] = vector
	f.model = model
	return nil
}

func TestRefreshPostEmbedding(t *testing.T) {
	vectorizer := &fakeVectorizer{vector: []float64{0.1, 0.2}}
	content := &fakeContentSource{content: map[string]string{"post/post-1": "sunset at the pier"}}
	writer := &fakeWriter{}

	r, err := embedder.NewRefresher(vectorizer, content, writer)
	if err != nil {
		t.Fatalf("NewRefresher: %v", err)
	}

	if err := r.RefreshPostEmbedding(context.Background(), "post-1"); err != nil {
		t.Fatalf("RefreshPostEmbedding: %v", err)
	}

	if len(vectorizer.calls) != 1 || vectorizer.calls[0] != "sunset at the pier" {
		t.Errorf("vectorizer calls = %v, want the post content", vectorizer.calls)
	}
	if got := writer.stored["post/post-1"]; len(got) != 2 {
		t.Errorf("stored vector = %v, want the computed embedding", got)
	}
	if writer.model != "fake-model" {
		t.Errorf("stored model = %q, want fake-model", writer.model)
	}
}

func TestRefreshFailsOnMissingContent(t *testing.T) {
	vectorizer := &fakeVectorizer{vector: []float64{1}}
	content := &fakeContentSource{content: map[string]string{}}
	writer := &fakeWriter{}

	r, _ := embedder.NewRefresher(vectorizer, content, writer)

	if err := r.RefreshUserEmbedding(context.Background(), "user-1"); err == nil {
		t.Fatal("expected error for entity with no content")
	}
	if len(vectorizer.calls) != 0 {
		t.Error("vectorizer should not be called without content")
	}
}

func TestRefreshPropagatesEmbedError(t *testing.T) {
	embedErr := errors.New("service down")
	vectorizer := &fakeVectorizer{err: embedErr}
	content := &fakeContentSource{content: map[string]string{"user/user-1": "bio text"}}
	writer := &fakeWriter{}

	r, _ := embedder.NewRefresher(vectorizer, content, writer)

	err := r.RefreshUserEmbedding(context.Background(), "user-1")
	if !errors.Is(err, embedErr) {
		t.Errorf("error = %v, want wrapped %v", err, embedErr)
	}
	if len(writer.stored) != 0 {
		t.Error("nothing should be stored when embedding fails")
	}
}

func TestNewRefresherRequiresCollaborators(t *testing.T) {
	if _, err := embedder.NewRefresher(nil, &fakeContentSource{}, &fakeWriter{}); err == nil {
		t.Error("expected error for nil vectorizer")
	}
	if _, err := embedder.NewRefresher(&fakeVectorizer{}, nil, &fakeWriter{}); err == nil {
		t.Error("expected error for nil content source")
	}
	if _, err := embedder.NewRefresher(&fakeVectorizer{}, &fakeContentSource{}, nil); err == nil {
		t.Error("expected error for nil writer")
	}
}
