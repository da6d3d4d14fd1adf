package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/lawyeralthomali/legatoo-backend-sub004/cache"
	"github.com/lawyeralthomali/legatoo-backend-sub004/models"

	"github.com/google/uuid"
)

const (
	// DefaultTopK is the result count when the caller does not specify one
	DefaultTopK = 5
	// DefaultThreshold drops candidates with a rerank score below it
	DefaultThreshold = 0.3
	// candidateCeiling caps the over-fetched candidate set
	candidateCeiling = 20
	// queryCacheTTL bounds how long a cached query result is served
	queryCacheTTL = 5 * time.Minute
)

// ChunkReader hydrates chunks for scored index hits
type ChunkReader interface {
	GetByIDs(ctx context.Context, ids []uuid.UUID) ([]models.ChunkWithLaw, error)
}

// QueryRequest is the retrieval input
type QueryRequest struct {
	Query     string  `json:"query"`
	TopK      int     `json:"top_k"`
	Threshold float64 `json:"threshold"`
}

// QueryResult is the retrieval output. "No results" is a valid outcome,
// not a failure.
type QueryResult struct {
	Success      bool                  `json:"success"`
	Message      string                `json:"message"`
	Results      []models.SearchResult `json:"results"`
	ResultsCount int                   `json:"results_count"`
}

// RetrievalService runs the two-stage query pipeline: vector search over
// the index, then cross-scoring of the candidate set.
type RetrievalService struct {
	embedder Embedder
	index    *IndexManager
	chunks   ChunkReader
	reranker Reranker
	cache    cache.Cache
}

// NewRetrievalService wires the retrieval pipeline. cache may be nil.
func NewRetrievalService(embedder Embedder, index *IndexManager, chunks ChunkReader, reranker Reranker, c cache.Cache) *RetrievalService {
	return &RetrievalService{
		embedder: embedder,
		index:    index,
		chunks:   chunks,
		reranker: reranker,
		cache:    c,
	}
}

// Query embeds the query text, over-fetches nearest neighbors, reranks
// them and returns at most top_k results above the threshold, sorted by
// descending rerank score with ties broken by vector rank.
func (s *RetrievalService) Query(ctx context.Context, req QueryRequest) (*QueryResult, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, errors.New("query must not be empty")
	}
	topK := req.TopK
	if topK <= 0 {
		topK = DefaultTopK
	}
	threshold := req.Threshold
	if threshold <= 0 {
		threshold = DefaultThreshold
	}

	cacheKey := queryCacheKey(query, topK, threshold)
	if s.cache != nil {
		if raw, ok := s.cache.Get(ctx, cacheKey); ok {
			var cached QueryResult
			if err := json.Unmarshal(raw, &cached); err == nil {
				return &cached, nil
			}
		}
	}

	if s.index.Len() == 0 {
		return &QueryResult{
			Success:      true,
			Message:      "the knowledge index is empty; no documents have been indexed yet",
			Results:      []models.SearchResult{},
			ResultsCount: 0,
		}, nil
	}

	vec, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	fetch := topK * 4
	if fetch > candidateCeiling {
		fetch = candidateCeiling
	}
	hits := s.index.Search(vec, fetch)
	if len(hits) == 0 {
		return &QueryResult{
			Success:      true,
			Message:      "no matching content found",
			Results:      []models.SearchResult{},
			ResultsCount: 0,
		}, nil
	}

	ids := make([]uuid.UUID, len(hits))
	for i, h := range hits {
		ids[i] = h.ID
	}
	hydrated, err := s.chunks.GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load chunks: %w", err)
	}
	byID := make(map[uuid.UUID]models.ChunkWithLaw, len(hydrated))
	for _, c := range hydrated {
		byID[c.Chunk.ID] = c
	}

	candidates := make([]Candidate, 0, len(hits))
	for _, h := range hits {
		c, ok := byID[h.ID]
		if !ok {
			// index entry with no backing row; the index is a derived
			// cache, so log and move on
			log.Printf("index hit %s has no chunk row, skipping", h.ID)
			continue
		}
		candidates = append(candidates, Candidate{Chunk: c.Chunk, VectorScore: h.Score, VectorRank: h.Rank})
	}

	scores, err := s.reranker.Rerank(ctx, query, candidates)
	if err != nil {
		return nil, fmt.Errorf("failed to rerank candidates: %w", err)
	}

	type scored struct {
		cand  Candidate
		score float64
	}
	kept := make([]scored, 0, len(candidates))
	for i, c := range candidates {
		if scores[i] >= threshold {
			kept = append(kept, scored{cand: c, score: scores[i]})
		}
	}
	// candidates arrive in vector-rank order, so a stable sort leaves
	// rerank-score ties in vector order
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].score > kept[j].score })
	if len(kept) > topK {
		kept = kept[:topK]
	}

	results := make([]models.SearchResult, len(kept))
	for i, k := range kept {
		results[i] = models.SearchResult{
			ChunkID:         k.cand.Chunk.ID,
			Content:         k.cand.Chunk.Content,
			ArticleNumber:   k.cand.Chunk.ArticleNumber,
			LawName:         byID[k.cand.Chunk.ID].LawName,
			Score:           k.score,
			PageNumber:      k.cand.Chunk.PageNumber,
			SourceReference: k.cand.Chunk.SourceReference,
		}
	}

	result := &QueryResult{
		Success:      true,
		Message:      fmt.Sprintf("retrieved %d results", len(results)),
		Results:      results,
		ResultsCount: len(results),
	}

	if s.cache != nil {
		if raw, err := json.Marshal(result); err == nil {
			s.cache.Set(ctx, cacheKey, raw, queryCacheTTL)
		}
	}
	return result, nil
}

func queryCacheKey(query string, topK int, threshold float64) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("q:%s|k:%d|t:%.4f", query, topK, threshold)))
	return "legatoo:query:" + hex.EncodeToString(sum[:])
}
