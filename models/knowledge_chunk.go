package models

import (
	"time"

	"github.com/google/uuid"
)

// KnowledgeChunk is a contiguous slice of text from an article or a generic
// document, sized for embedding. For a fixed parent, chunk_index values are
// unique and contiguous from 0, and rejoining chunks in order (trimming the
// overlap from each chunk after the first) reconstructs the parent text.
type KnowledgeChunk struct {
	ID              uuid.UUID  `json:"id"`
	DocumentID      *uuid.UUID `json:"document_id,omitempty"`
	LawSourceID     *uuid.UUID `json:"law_source_id,omitempty"`
	ChunkIndex      int        `json:"chunk_index"`
	Content         string     `json:"content"`
	ArticleNumber   *string    `json:"article_number,omitempty"`
	SectionTitle    *string    `json:"section_title,omitempty"`
	PageNumber      *int       `json:"page_number,omitempty"`
	SourceReference *string    `json:"source_reference,omitempty"`
	Keywords        []string   `json:"keywords"`
	Embedding       []float64  `json:"-"`
	CreatedAt       time.Time  `json:"created_at"`
}

// ChunkWithLaw pairs a chunk with the name of the law source it belongs
// to, for citation in search results
type ChunkWithLaw struct {
	Chunk   KnowledgeChunk `json:"chunk"`
	LawName string         `json:"law_name"`
}

// SearchResult is a chunk scored by the retrieval pipeline
type SearchResult struct {
	ChunkID         uuid.UUID `json:"chunk_id"`
	Content         string    `json:"content"`
	ArticleNumber   *string   `json:"article_number,omitempty"`
	LawName         string    `json:"law_name"`
	Score           float64   `json:"score"`
	PageNumber      *int      `json:"page_number,omitempty"`
	SourceReference *string   `json:"source_reference,omitempty"`
}
