package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/lawyeralthomali/legatoo-backend-sub004/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// KnowledgeChunkRepository handles database operations for knowledge chunks
type KnowledgeChunkRepository struct {
	db *pgxpool.Pool
}

// NewKnowledgeChunkRepository creates a new knowledge chunk repository
func NewKnowledgeChunkRepository(db *pgxpool.Pool) *KnowledgeChunkRepository {
	return &KnowledgeChunkRepository{db: db}
}

// formatVector renders an embedding in pgvector's input syntax
func formatVector(embedding []float64) string {
	parts := make([]string, len(embedding))
	for i, v := range embedding {
		parts[i] = fmt.Sprintf("%f", v)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

// vectorParam passes NULL through for chunks whose embedding is still
// missing, so they stay queryable by ListMissingEmbeddings
func vectorParam(embedding []float64) interface{} {
	if embedding == nil {
		return nil
	}
	return formatVector(embedding)
}

// InsertBatch writes all chunks in one transaction so a source is either
// fully chunked or not chunked at all
func (r *KnowledgeChunkRepository) InsertBatch(ctx context.Context, chunks []models.KnowledgeChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for i := range chunks {
		c := &chunks[i]
		_, err := tx.Exec(ctx, `
			INSERT INTO knowledge_chunks (
				id, document_id, law_source_id, chunk_index, content,
				article_number, section_title, page_number, source_reference,
				keywords, embedding
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11::vector)`,
			c.ID, c.DocumentID, c.LawSourceID, c.ChunkIndex, c.Content,
			c.ArticleNumber, c.SectionTitle, c.PageNumber, c.SourceReference,
			c.Keywords, vectorParam(c.Embedding),
		)
		if err != nil {
			return fmt.Errorf("failed to insert chunk %d: %w", c.ChunkIndex, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// GetByIDs retrieves chunks with their law source names. Chunks not tied
// to a law source come back with an empty law name.
func (r *KnowledgeChunkRepository) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]models.ChunkWithLaw, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.db.Query(ctx, `
		SELECT c.id, c.document_id, c.law_source_id, c.chunk_index, c.content,
			c.article_number, c.section_title, c.page_number, c.source_reference,
			c.keywords, c.created_at, COALESCE(s.name, '')
		FROM knowledge_chunks c
		LEFT JOIN law_sources s ON s.id = c.law_source_id
		WHERE c.id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer rows.Close()

	var out []models.ChunkWithLaw
	for rows.Next() {
		var cw models.ChunkWithLaw
		c := &cw.Chunk
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.LawSourceID, &c.ChunkIndex, &c.Content,
			&c.ArticleNumber, &c.SectionTitle, &c.PageNumber, &c.SourceReference,
			&c.Keywords, &c.CreatedAt, &cw.LawName); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		if c.Keywords == nil {
			c.Keywords = []string{}
		}
		out = append(out, cw)
	}
	return out, rows.Err()
}

// DeleteByLawSource removes all chunks of a law source and returns the
// deleted ids so the caller can evict them from the vector index
func (r *KnowledgeChunkRepository) DeleteByLawSource(ctx context.Context, lawSourceID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.db.Query(ctx,
		`DELETE FROM knowledge_chunks WHERE law_source_id = $1 RETURNING id`, lawSourceID)
	if err != nil {
		return nil, fmt.Errorf("failed to delete chunks: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// CountByLawSource returns how many chunks a law source has
func (r *KnowledgeChunkRepository) CountByLawSource(ctx context.Context, lawSourceID uuid.UUID) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM knowledge_chunks WHERE law_source_id = $1`, lawSourceID).Scan(&count)
	return count, err
}

// IndexedVector is a chunk id with its stored embedding, used to rebuild
// the in-memory index from the database
type IndexedVector struct {
	ID        uuid.UUID
	Embedding []float64
}

// ListVectors streams every stored embedding. The vector column comes back
// in pgvector text form and is parsed here.
func (r *KnowledgeChunkRepository) ListVectors(ctx context.Context) ([]IndexedVector, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, embedding::text FROM knowledge_chunks WHERE embedding IS NOT NULL ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to query embeddings: %w", err)
	}
	defer rows.Close()

	var out []IndexedVector
	for rows.Next() {
		var (
			id  uuid.UUID
			raw string
		)
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, err
		}
		vec, err := parseVector(raw)
		if err != nil {
			return nil, fmt.Errorf("failed to parse embedding for chunk %s: %w", id, err)
		}
		out = append(out, IndexedVector{ID: id, Embedding: vec})
	}
	return out, rows.Err()
}

// ListMissingEmbeddings returns chunks whose embedding was never stored,
// typically because the embedding call failed during ingestion
func (r *KnowledgeChunkRepository) ListMissingEmbeddings(ctx context.Context) ([]models.KnowledgeChunk, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, chunk_index, content, article_number FROM knowledge_chunks WHERE embedding IS NULL ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer rows.Close()

	var out []models.KnowledgeChunk
	for rows.Next() {
		var c models.KnowledgeChunk
		if err := rows.Scan(&c.ID, &c.ChunkIndex, &c.Content, &c.ArticleNumber); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// UpdateEmbedding backfills the embedding of one chunk
func (r *KnowledgeChunkRepository) UpdateEmbedding(ctx context.Context, id uuid.UUID, embedding []float64) error {
	_, err := r.db.Exec(ctx,
		`UPDATE knowledge_chunks SET embedding = $2::vector WHERE id = $1`,
		id, formatVector(embedding))
	return err
}

// parseVector reads pgvector's "[0.1,0.2,...]" text form
func parseVector(raw string) ([]float64, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "[")
	raw = strings.TrimSuffix(raw, "]")
	if raw == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	vec := make([]float64, len(parts))
	for i, p := range parts {
		if _, err := fmt.Sscanf(strings.TrimSpace(p), "%g", &vec[i]); err != nil {
			return nil, err
		}
	}
	return vec, nil
}
