package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ctxmem/ctxmem/src/memory/model"
)

// PostgresIndex implements VectorIndex using Postgres + pgvector.
type PostgresIndex struct {
	DB    *pgxpool.Pool
	table string
}

var _ VectorIndex = (*PostgresIndex)(nil)

// NewPostgresIndex connects to Postgres and returns a pgvector-backed index.
func NewPostgresIndex(ctx context.Context, connStr string) (*PostgresIndex, error) {
	db, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Postgres: %w", err)
	}
	return &PostgresIndex{DB: db, table: "knowledge_bank"}, nil
}

// CreateSchema provisions the pgvector extension and the knowledge table.
func (ps *PostgresIndex) CreateSchema(ctx context.Context) error {
	if ps == nil || ps.DB == nil {
		return model.ErrBackendUnavailable
	}
	statements := []string{
		"CREATE EXTENSION IF NOT EXISTS vector",
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
                        id TEXT PRIMARY KEY,
                        content TEXT NOT NULL,
                        metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
                        embedding vector(768),
                        created_at TIMESTAMPTZ NOT NULL DEFAULT now()
                )`, ps.table),
	}
	for _, stmt := range statements {
		if _, err := ps.DB.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres schema: %w", err)
		}
	}
	return nil
}

// Add inserts a knowledge entry and returns its identifier.
func (ps *PostgresIndex) Add(ctx context.Context, content string, embedding []float32, metadata map[string]any) (string, error) {
	if ps == nil || ps.DB == nil {
		return "", model.ErrBackendUnavailable
	}
	if content == "" {
		return "", fmt.Errorf("%w: empty content", model.ErrMalformedItem)
	}
	id := "vec_" + uuid.NewString()
	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return "", fmt.Errorf("encode metadata: %w", err)
	}
	query := fmt.Sprintf(`
                INSERT INTO %s (id, content, metadata, embedding)
                VALUES ($1, $2, $3::jsonb, $4::vector)`, ps.table)
	if _, err := ps.DB.Exec(ctx, query, id, content, string(metadataJSON), pgVectorLiteral(embedding)); err != nil {
		return "", err
	}
	return id, nil
}

// Search returns top-k similar entries ordered by vector distance. Distances
// are mapped to a similarity score with 1/(1+distance).
func (ps *PostgresIndex) Search(ctx context.Context, queryEmbedding []float32, topK int) ([]model.KnowledgeHit, error) {
	if ps == nil || ps.DB == nil {
		return nil, model.ErrBackendUnavailable
	}
	if topK <= 0 {
		return nil, nil
	}
	query := fmt.Sprintf(`
        SELECT id, content, metadata::text, embedding::text, (embedding <-> $1::vector) AS distance
        FROM %s
        WHERE embedding IS NOT NULL
        ORDER BY embedding <-> $1::vector
        LIMIT $2`, ps.table)
	rows, err := ps.DB.Query(ctx, query, pgVectorLiteral(queryEmbedding), topK)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var hits []model.KnowledgeHit
	for rows.Next() {
		var (
			hit          model.KnowledgeHit
			metadataText string
			vectorText   string
			distance     float64
		)
		if err := rows.Scan(&hit.VectorID, &hit.Content, &metadataText, &vectorText, &distance); err != nil {
			return nil, err
		}
		hit.Metadata = decodeMetadataJSON(metadataText)
		hit.Embedding = parsePgVector(vectorText)
		hit.Score = 1.0 / (1.0 + distance)
		hit.Rank = len(hits) + 1
		hits = append(hits, hit)
	}
	return hits, rows.Err()
}

// GetByID fetches a single entry by identifier.
func (ps *PostgresIndex) GetByID(ctx context.Context, id string) (model.KnowledgeHit, error) {
	if ps == nil || ps.DB == nil {
		return model.KnowledgeHit{}, model.ErrBackendUnavailable
	}
	query := fmt.Sprintf(`SELECT id, content, metadata::text, embedding::text FROM %s WHERE id = $1`, ps.table)
	var (
		hit          model.KnowledgeHit
		metadataText string
		vectorText   string
	)
	err := ps.DB.QueryRow(ctx, query, id).Scan(&hit.VectorID, &hit.Content, &metadataText, &vectorText)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.KnowledgeHit{}, fmt.Errorf("vector entry %s: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return model.KnowledgeHit{}, err
	}
	hit.Metadata = decodeMetadataJSON(metadataText)
	hit.Embedding = parsePgVector(vectorText)
	return hit, nil
}

// Delete removes entries by id.
func (ps *PostgresIndex) Delete(ctx context.Context, id string) error {
	if ps == nil || ps.DB == nil {
		return model.ErrBackendUnavailable
	}
	_, err := ps.DB.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = $1", ps.table), id)
	return err
}

// Count reports the number of stored entries.
func (ps *PostgresIndex) Count(ctx context.Context) (int, error) {
	if ps == nil || ps.DB == nil {
		return 0, model.ErrBackendUnavailable
	}
	var count int
	if err := ps.DB.QueryRow(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", ps.table)).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// Clear removes every entry.
func (ps *PostgresIndex) Clear(ctx context.Context) error {
	if ps == nil || ps.DB == nil {
		return model.ErrBackendUnavailable
	}
	_, err := ps.DB.Exec(ctx, fmt.Sprintf("DELETE FROM %s", ps.table))
	return err
}

// Close releases the connection pool.
func (ps *PostgresIndex) Close() {
	if ps != nil && ps.DB != nil {
		ps.DB.Close()
	}
}

// pgVectorLiteral renders an embedding in pgvector's text format.
func pgVectorLiteral(embedding []float32) string {
	parts := make([]string, len(embedding))
	for i, v := range embedding {
		parts[i] = fmt.Sprintf("%g", v)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

// parsePgVector reads pgvector's "[1,2,3]" text representation.
func parsePgVector(text string) []float32 {
	text = strings.Trim(strings.TrimSpace(text), "[]")
	if text == "" {
		return nil
	}
	parts := strings.Split(text, ",")
	out := make([]float32, 0, len(parts))
	for _, part := range parts {
		var v float64
		if _, err := fmt.Sscanf(strings.TrimSpace(part), "%g", &v); err != nil {
			return nil
		}
		out = append(out, float32(v))
	}
	return out
}

func decodeMetadataJSON(text string) map[string]any {
	if text == "" {
		return nil
	}
	var meta map[string]any
	if err := json.Unmarshal([]byte(text), &meta); err != nil {
		return nil
	}
	return meta
}
