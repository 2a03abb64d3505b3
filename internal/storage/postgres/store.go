// Package postgres implements the swipe-engine storage interfaces on
// PostgreSQL. Embedding vectors are always stored in a BYTEA column; when
// the pgvector extension is installed they are additionally stored in a
// vector column so downstream ranking queries can use cosine-distance
// indexes.
package postgres

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log"
	"math"

	"github.com/google/uuid"
	_ "github.com/lib/pq" // PostgreSQL driver
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/momenta/swipe-engine/internal/storage"
	"github.com/momenta/swipe-engine/pkg/types"
)

// defaultDimension is the vector column width created when no explicit
// dimension is configured. Matches nomic-embed-text output.
const defaultDimension = 768

// Store implements storage.Store using PostgreSQL.
type Store struct {
	db                *sql.DB
	pgvectorAvailable bool
	dimension         int
}

// NewStore connects to PostgreSQL using the given DSN and applies the
// schema. dimension fixes the width of the pgvector column; pass 0 for the
// default. The pgvector extension is optional: when absent the store falls
// back to BYTEA-only vectors and logs once.
func NewStore(dsn string, dimension int) (*Store, error) {
	if dimension <= 0 {
		dimension = defaultDimension
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres: failed to connect: %w", err)
	}

	s := &Store{db: db, dimension: dimension}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// migrate creates the tables, probing for the pgvector extension first.
func (s *Store) migrate() error {
	if _, err := s.db.Exec("CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		log.Printf("postgres: pgvector extension unavailable, using BYTEA vectors only: %v", err)
		s.pgvectorAvailable = false
	} else {
		s.pgvectorAvailable = true
	}

	schema := `
		CREATE TABLE IF NOT EXISTS embeddings (
			entity_type TEXT NOT NULL,
			entity_id   TEXT NOT NULL,
			content     TEXT NOT NULL DEFAULT '',
			vector      BYTEA,
			dimension   INTEGER NOT NULL DEFAULT 0,
			model       TEXT NOT NULL DEFAULT '',
			metadata    JSONB NOT NULL DEFAULT '{}',
			created_at  TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at  TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (entity_type, entity_id)
		);

		CREATE TABLE IF NOT EXISTS clustering_results (
			id          TEXT PRIMARY KEY,
			entity_type TEXT NOT NULL,
			payload     JSONB NOT NULL,
			quality     DOUBLE PRECISION NOT NULL DEFAULT 0,
			total_items INTEGER NOT NULL DEFAULT 0,
			created_at  TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		CREATE INDEX IF NOT EXISTS idx_clustering_results_type_created
			ON clustering_results (entity_type, created_at DESC);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("postgres: failed to apply schema: %w", err)
	}

	if s.pgvectorAvailable {
		alter := fmt.Sprintf(
			"ALTER TABLE embeddings ADD COLUMN IF NOT EXISTS embedding_vec vector(%d)", s.dimension)
		if _, err := s.db.Exec(alter); err != nil {
			log.Printf("postgres: failed to add embedding_vec column, using BYTEA vectors only: %v", err)
			s.pgvectorAvailable = false
		}
	}

	return nil
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
// starting at offset, ordered by entity_id for stable pagination. Rows
// with a NULL vector are returned with a nil Vector.
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
		WHERE entity_type = $1
		ORDER BY entity_id
		LIMIT $2 OFFSET $3
	`

	rows, err := s.db.QueryContext(ctx, query, string(entityType), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query embeddings: %w", err)
	}
	defer rows.Close()

	var records []types.EmbeddingRecord
	for rows.Next() {
		var (
			entityID      string
			vectorBytes   []byte
			dimension     int
			metadataBytes []byte
		)
		if err := rows.Scan(&entityID, &vectorBytes, &dimension, &metadataBytes); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan embedding row: %w", err)
		}

		record := types.EmbeddingRecord{EntityID: entityID}

		if len(vectorBytes) > 0 {
			vector, err := deserializeVector(vectorBytes, dimension)
			if err != nil {
				return nil, fmt.Errorf("postgres: corrupt vector for %s: %w", entityID, err)
			}
			record.Vector = vector
		}

		if len(metadataBytes) > 0 && string(metadataBytes) != "{}" {
			if err := json.Unmarshal(metadataBytes, &record.Metadata); err != nil {
				return nil, fmt.Errorf("postgres: corrupt metadata for %s: %w", entityID, err)
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
		WHERE entity_type = $1
		ORDER BY entity_id
		LIMIT $2 OFFSET $3
	`

	rows, err := s.db.QueryContext(ctx, query, string(entityType), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan id row: %w", err)
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}

// StoreEmbedding upserts the vector for the given entity. The BYTEA column
// is always written; when pgvector is available the vector column is
// written too, and a pgvector failure falls back to the BYTEA-only path
// rather than failing the refresh.
func (s *Store) StoreEmbedding(ctx context.Context, entityType types.EntityType, entityID string, vector []float64, model string) error {
	if entityID == "" {
		return fmt.Errorf("%w: entity ID is required", storage.ErrInvalidInput)
	}
	if len(vector) == 0 {
		return fmt.Errorf("%w: embedding vector cannot be empty", storage.ErrInvalidInput)
	}

	vectorBytes := serializeVector(vector)

	if s.pgvectorAvailable && len(vector) == s.dimension {
		f32 := make([]float32, len(vector))
		for i, v := range vector {
			f32[i] = float32(v)
		}
		vec := pgvector.NewVector(f32)

		query := `
			INSERT INTO embeddings (entity_type, entity_id, vector, dimension, model, embedding_vec)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (entity_type, entity_id) DO UPDATE SET
				vector = excluded.vector,
				dimension = excluded.dimension,
				model = excluded.model,
				embedding_vec = excluded.embedding_vec,
				updated_at = CURRENT_TIMESTAMP
		`

		_, err := s.db.ExecContext(ctx, query,
			string(entityType), entityID, vectorBytes, len(vector), model, vec)
		if err == nil {
			return nil
		}
		log.Printf("postgres: failed to store embedding_vec (falling back to BYTEA only): %v", err)
	}

	query := `
		INSERT INTO embeddings (entity_type, entity_id, vector, dimension, model)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (entity_type, entity_id) DO UPDATE SET
			vector = excluded.vector,
			dimension = excluded.dimension,
			model = excluded.model,
			updated_at = CURRENT_TIMESTAMP
	`

	if _, err := s.db.ExecContext(ctx, query,
		string(entityType), entityID, vectorBytes, len(vector), model); err != nil {
		return fmt.Errorf("postgres: failed to store embedding: %w", err)
	}

	return nil
}

// StoreContent upserts the embeddable text for an entity without touching
// any existing vector.
func (s *Store) StoreContent(ctx context.Context, entityType types.EntityType, entityID, content string) error {
	if entityID == "" {
		return fmt.Errorf("%w: entity ID is required", storage.ErrInvalidInput)
	}

	query := `
		INSERT INTO embeddings (entity_type, entity_id, content)
		VALUES ($1, $2, $3)
		ON CONFLICT (entity_type, entity_id) DO UPDATE SET
			content = excluded.content,
			updated_at = CURRENT_TIMESTAMP
	`

	if _, err := s.db.ExecContext(ctx, query, string(entityType), entityID, content); err != nil {
		return fmt.Errorf("postgres: failed to store content: %w", err)
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
		"SELECT content FROM embeddings WHERE entity_type = $1 AND entity_id = $2",
		string(entityType), entityID).Scan(&content)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("%w: entity %s/%s", storage.ErrNotFound, entityType, entityID)
	}
	if err != nil {
		return "", fmt.Errorf("postgres: failed to read content: %w", err)
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
		return fmt.Errorf("postgres: failed to marshal clustering result: %w", err)
	}

	query := `
		INSERT INTO clustering_results (id, entity_type, payload, quality, total_items, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err = s.db.ExecContext(ctx, query,
		uuid.NewString(), string(result.Metadata.EntityType), payload,
		result.Quality, result.Metadata.TotalItems, result.Metadata.CreatedAt)
	if err != nil {
		return fmt.Errorf("postgres: failed to save clustering result: %w", err)
	}

	return nil
}

// LatestClusteringResult returns the most recently saved result for the
// given entity type.
func (s *Store) LatestClusteringResult(ctx context.Context, entityType types.EntityType) (*types.ClusteringResult, error) {
	query := `
		SELECT payload
		FROM clustering_results
		WHERE entity_type = $1
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`

	var payload []byte
	err := s.db.QueryRowContext(ctx, query, string(entityType)).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: no clustering result for %s", storage.ErrNotFound, entityType)
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to read clustering result: %w", err)
	}

	var result types.ClusteringResult
	if err := json.Unmarshal(payload, &result); err != nil {
		return nil, fmt.Errorf("postgres: corrupt clustering result payload: %w", err)
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
