// Package sqlite implements the swipe-engine storage interfaces on SQLite
// using the pure-Go modernc.org/sqlite driver. Embedding vectors are stored
// as little-endian float64 BLOBs; clustering results are stored as JSON.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/momenta/swipe-engine/internal/storage"
	"github.com/momenta/swipe-engine/pkg/types"
)

// schema creates the tables used by the engine. Applied on every open;
// CREATE IF NOT EXISTS keeps it idempotent.
const schema = `
CREATE TABLE IF NOT EXISTS embeddings (
	entity_type TEXT NOT NULL,
	entity_id   TEXT NOT NULL,
	content     TEXT NOT NULL DEFAULT '',
	vector      BLOB,
	dimension   INTEGER NOT NULL DEFAULT 0,
	model       TEXT NOT NULL DEFAULT '',
	metadata    TEXT NOT NULL DEFAULT '{}',
	created_at  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (entity_type, entity_id)
);

CREATE TABLE IF NOT EXISTS clustering_results (
	id          TEXT PRIMARY KEY,
	entity_type TEXT NOT NULL,
	payload     TEXT NOT NULL,
	quality     REAL NOT NULL DEFAULT 0,
	total_items INTEGER NOT NULL DEFAULT 0,
	created_at  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_clustering_results_type_created
	ON clustering_results (entity_type, created_at DESC);
`

// Store implements storage.Store using SQLite.
type Store struct {
	db *sql.DB
}

// NewStore opens a SQLite database at the given DSN, enables WAL mode, and
// applies the schema.
func NewStore(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to open database: %w", err)
	}

	// WAL mode allows the refresh pass and collection to read concurrently
	// with embedding writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: failed to configure database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: failed to apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// DB exposes the underlying connection for tests and tooling.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// FindAllEmbeddings returns up to limit embedding records for entityType
// starting at offset, ordered by entity_id so pagination is stable within
// one collection run. Rows with a NULL vector are returned with a nil
// Vector; the collector decides how to treat them.
func (s *Store) FindAllEmbeddings(ctx context.Context, entityType types.EntityType, limit, offset int) ([]types.EmbeddingRecord, error) {
	if limit < 1 {
		return nil, fmt.Errorf("%w: limit must be >= 1, got %d", storage.ErrInvalidInput, limit)
	}
	if offset < 0 {
		return nil, fmt.Errorf("%w: offset must be >= 0, got %d", storage.ErrInvalidInput, offset)
	}

	query := `
		SELECT entity_id, vector, dimension, metadata
		FROM embeddings
		WHERE entity_type = ?
		ORDER BY entity_id
		LIMIT ? OFFSET ?
	`

	rows, err := s.db.QueryContext(ctx, query, string(entityType), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to query embeddings: %w", err)
	}
	defer rows.Close()

	var records []types.EmbeddingRecord
	for rows.Next() {
		var (
			entityID     string
			vectorBytes  []byte
			dimension    int
			metadataJSON string
		)
		if err := rows.Scan(&entityID, &vectorBytes, &dimension, &metadataJSON); err != nil {
			return nil, fmt.Errorf("sqlite: failed to scan embedding row: %w", err)
		}

		record := types.EmbeddingRecord{EntityID: entityID}

		if len(vectorBytes) > 0 {
			vector, err := deserializeVector(vectorBytes, dimension)
			if err != nil {
				return nil, fmt.Errorf("sqlite: corrupt vector for %s: %w", entityID, err)
			}
			record.Vector = vector
		}

		if metadataJSON != "" && metadataJSON != "{}" {
			if err := json.Unmarshal([]byte(metadataJSON), &record.Metadata); err != nil {
				return nil, fmt.Errorf("sqlite: corrupt metadata for %s: %w", entityID, err)
			}
		}

		records = append(records, record)
	}

	return records, rows.Err()
}

// FindAllIDs returns up to limit entity IDs of entityType starting at
// offset, ordered by entity_id.
func (s *Store) FindAllIDs(ctx context.Context, entityType types.EntityType, limit, offset int) ([]string, error) {
	if limit < 1 {
		return nil, fmt.Errorf("%w: limit must be >= 1, got %d", storage.ErrInvalidInput, limit)
	}
	if offset < 0 {
		return nil, fmt.Errorf("%w: offset must be >= 0, got %d", storage.ErrInvalidInput, offset)
	}

	query := `
		SELECT entity_id
		FROM embeddings
		WHERE entity_type = ?
		ORDER BY entity_id
		LIMIT ? OFFSET ?
	`

	rows, err := s.db.QueryContext(ctx, query, string(entityType), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to query ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("sqlite: failed to scan id row: %w", err)
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}

// StoreEmbedding upserts the vector for the given entity.
func (s *Store) StoreEmbedding(ctx context.Context, entityType types.EntityType, entityID string, vector []float64, model string) error {
	if entityID == "" {
		return fmt.Errorf("%w: entity ID is required", storage.ErrInvalidInput)
	}
	if len(vector) == 0 {
		return fmt.Errorf("%w: embedding vector cannot be empty", storage.ErrInvalidInput)
	}

	vectorBytes := serializeVector(vector)

	query := `
		INSERT INTO embeddings (entity_type, entity_id, vector, dimension, model)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(entity_type, entity_id) DO UPDATE SET
			vector = excluded.vector,
			dimension = excluded.dimension,
			model = excluded.model,
			updated_at = CURRENT_TIMESTAMP
	`

	if _, err := s.db.ExecContext(ctx, query, string(entityType), entityID, vectorBytes, len(vector), model); err != nil {
		return fmt.Errorf("sqlite: failed to store embedding: %w", err)
	}

	return nil
}

// StoreContent upserts the embeddable text for an entity without touching
// any existing vector. Used when ingesting entities ahead of the first
// embedding refresh pass.
func (s *Store) StoreContent(ctx context.Context, entityType types.EntityType, entityID, content string) error {
	if entityID == "" {
		return fmt.Errorf("%w: entity ID is required", storage.ErrInvalidInput)
	}

	query := `
		INSERT INTO embeddings (entity_type, entity_id, content)
		VALUES (?, ?, ?)
		ON CONFLICT(entity_type, entity_id) DO UPDATE SET
			content = excluded.content,
			updated_at = CURRENT_TIMESTAMP
	`

	if _, err := s.db.ExecContext(ctx, query, string(entityType), entityID, content); err != nil {
		return fmt.Errorf("sqlite: failed to store content: %w", err)
	}

	return nil
}

// Content returns the embeddable text for the given entity.
func (s *Store) Content(ctx context.Context, entityType types.EntityType, entityID string) (string, error) {
	if entityID == "" {
		return "", fmt.Errorf("%w: entity ID is required", storage.ErrInvalidInput)
	}

	var content string
	err := s.db.QueryRowContext(ctx,
		"SELECT content FROM embeddings WHERE entity_type = ? AND entity_id = ?",
		string(entityType), entityID).Scan(&content)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("%w: entity %s/%s", storage.ErrNotFound, entityType, entityID)
	}
	if err != nil {
		return "", fmt.Errorf("sqlite: failed to read content: %w", err)
	}

	return content, nil
}

// SaveClusteringResult stores a clustering result as a new run record.
func (s *Store) SaveClusteringResult(ctx context.Context, result *types.ClusteringResult) error {
	if result == nil {
		return fmt.Errorf("%w: result is required", storage.ErrInvalidInput)
	}
	if !result.Metadata.EntityType.Valid() {
		return fmt.Errorf("%w: unknown entity type %q", storage.ErrInvalidInput, result.Metadata.EntityType)
	}

	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("sqlite: failed to marshal clustering result: %w", err)
	}

	query := `
		INSERT INTO clustering_results (id, entity_type, payload, quality, total_items, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err = s.db.ExecContext(ctx, query,
		uuid.NewString(), string(result.Metadata.EntityType), string(payload),
		result.Quality, result.Metadata.TotalItems, result.Metadata.CreatedAt)
	if err != nil {
		return fmt.Errorf("sqlite: failed to save clustering result: %w", err)
	}

	return nil
}

// LatestClusteringResult returns the most recently saved result for the
// given entity type.
func (s *Store) LatestClusteringResult(ctx context.Context, entityType types.EntityType) (*types.ClusteringResult, error) {
	query := `
		SELECT payload
		FROM clustering_results
		WHERE entity_type = ?
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`

	var payload string
	err := s.db.QueryRowContext(ctx, query, string(entityType)).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: no clustering result for %s", storage.ErrNotFound, entityType)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to read clustering result: %w", err)
	}

	var result types.ClusteringResult
	if err := json.Unmarshal([]byte(payload), &result); err != nil {
		return nil, fmt.Errorf("sqlite: corrupt clustering result payload: %w", err)
	}

	return &result, nil
}

// serializeVector converts a float64 slice to little-endian bytes.
func serializeVector(vector []float64) []byte {
	buf := make([]byte, 8*len(vector))
	for i, v := range vector {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(v))
	}
	return buf
}

// deserializeVector converts little-endian bytes back to a float64 slice,
// validating against the stored dimension.
func deserializeVector(data []byte, dimension int) ([]float64, error) {
	if len(data) != dimension*8 {
		return nil, fmt.Errorf("expected %d bytes for dimension %d, got %d",
			dimension*8, dimension, len(data))
	}

	vector := make([]float64, dimension)
	for i := range vector {
		vector[i] = math.Float64frombits(binary.LittleEndian.Uint64(data[i*8:]))
	}
	return vector, nil
}

var _ storage.Store = (*Store)(nil)
