package sqlite_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momenta/swipe-engine/internal/storage"
	"github.com/momenta/swipe-engine/internal/storage/sqlite"
	"github.com/momenta/swipe-engine/pkg/types"
)

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.NewStore(":memory:")
	require.NoError(t, err, "failed to open in-memory store")
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStoreAndFindEmbeddings(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	vector := []float64{0.1, -0.2, 0.3}
	require.NoError(t, store.StoreEmbedding(ctx, types.EntityTypePost, "post-1", vector, "nomic-embed-text"))

	records, err := store.FindAllEmbeddings(ctx, types.EntityTypePost, 10, 0)
	require.NoError(t, err)
	require.Len(t, records, 1)

	assert.Equal(t, "post-1", records[0].EntityID)
	assert.Equal(t, vector, records[0].Vector)
}

func TestFindAllEmbeddingsPaginationIsStable(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	const total = 25
	for i := 0; i < total; i++ {
		id := fmt.Sprintf("user-%03d", i)
		require.NoError(t, store.StoreEmbedding(ctx, types.EntityTypeUser, id, []float64{float64(i)}, "m"))
	}

	seen := make(map[string]bool)
	offset := 0
	for {
		page, err := store.FindAllEmbeddings(ctx, types.EntityTypeUser, 10, offset)
		require.NoError(t, err)

		for _, r := range page {
			assert.False(t, seen[r.EntityID], "duplicate record %s across pages", r.EntityID)
			seen[r.EntityID] = true
		}

		offset += len(page)
		if len(page) < 10 {
			break
		}
	}

	assert.Len(t, seen, total, "pagination skipped records")
}

func TestFindAllEmbeddingsReturnsVectorlessRows(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// Content-only row: no vector has been computed yet. The source must
	// still return it so the collector can count and skip it.
	require.NoError(t, store.StoreContent(ctx, types.EntityTypePost, "post-pending", "hello"))
	require.NoError(t, store.StoreEmbedding(ctx, types.EntityTypePost, "post-ready", []float64{1, 2}, "m"))

	records, err := store.FindAllEmbeddings(ctx, types.EntityTypePost, 10, 0)
	require.NoError(t, err)
	require.Len(t, records, 2)

	byID := make(map[string][]float64)
	for _, r := range records {
		byID[r.EntityID] = r.Vector
	}
	assert.Nil(t, byID["post-pending"])
	assert.NotNil(t, byID["post-ready"])
}

func TestFindAllIDs(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.StoreContent(ctx, types.EntityTypeUser, "user-b", ""))
	require.NoError(t, store.StoreContent(ctx, types.EntityTypeUser, "user-a", ""))
	require.NoError(t, store.StoreContent(ctx, types.EntityTypePost, "post-x", ""))

	ids, err := store.FindAllIDs(ctx, types.EntityTypeUser, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"user-a", "user-b"}, ids, "ids should be ordered and filtered by type")
}

func TestContentRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.StoreContent(ctx, types.EntityTypePost, "post-1", "a day at the lake"))

	content, err := store.Content(ctx, types.EntityTypePost, "post-1")
	require.NoError(t, err)
	assert.Equal(t, "a day at the lake", content)

	_, err = store.Content(ctx, types.EntityTypePost, "post-missing")
	assert.True(t, errors.Is(err, storage.ErrNotFound))
}

func TestSaveAndLoadClusteringResult(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	result := &types.ClusteringResult{
		Clusters: []types.Cluster{
			{ID: "c1", Centroid: []float64{1, 2}, Size: 2, Density: 1.5, CreatedAt: now, UpdatedAt: now},
		},
		Assignments: types.AssignmentMap{"post-1": "c1", "post-2": "c1"},
		Quality:     0.7,
		Converged:   true,
		Iterations:  2,
		Metadata: types.ResultMetadata{
			TotalItems: 2,
			EntityType: types.EntityTypePost,
			CreatedAt:  now,
		},
	}

	require.NoError(t, store.SaveClusteringResult(ctx, result))

	loaded, err := store.LatestClusteringResult(ctx, types.EntityTypePost)
	require.NoError(t, err)

	assert.Equal(t, result.Assignments, loaded.Assignments)
	assert.Equal(t, result.Quality, loaded.Quality)
	assert.Len(t, loaded.Clusters, 1)
	assert.NoError(t, loaded.Validate())
}

func TestLatestClusteringResultPicksNewestRun(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	older := types.EmptyResult(types.EntityTypeUser, 0, time.Now().Add(-time.Hour))
	newer := types.EmptyResult(types.EntityTypeUser, 42, time.Now())

	require.NoError(t, store.SaveClusteringResult(ctx, older))
	require.NoError(t, store.SaveClusteringResult(ctx, newer))

	loaded, err := store.LatestClusteringResult(ctx, types.EntityTypeUser)
	require.NoError(t, err)
	assert.Equal(t, 42, loaded.Metadata.TotalItems)
}

func TestLatestClusteringResultNotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.LatestClusteringResult(context.Background(), types.EntityTypePost)
	assert.True(t, errors.Is(err, storage.ErrNotFound))
}

func TestStoreEmbeddingRejectsInvalidInput(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	err := store.StoreEmbedding(ctx, types.EntityTypeUser, "", []float64{1}, "m")
	assert.True(t, errors.Is(err, storage.ErrInvalidInput))

	err = store.StoreEmbedding(ctx, types.EntityTypeUser, "user-1", nil, "m")
	assert.True(t, errors.Is(err, storage.ErrInvalidInput))
}
