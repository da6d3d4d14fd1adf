package service

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/lawyeralthomali/legatoo-backend-sub004/cache"
	"github.com/lawyeralthomali/legatoo-backend-sub004/models"

	"github.com/google/uuid"
)

// fakeEmbedder returns canned vectors keyed by text
type fakeEmbedder struct {
	dim     int
	vectors map[string][]float64
	fail    bool
}

func (f *fakeEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float64, error) {
	if f.fail {
		return nil, errors.New("embedding backend down")
	}
	out := make([][]float64, len(texts))
	for i, t := range texts {
		out[i] = f.vectors[t]
	}
	return out, nil
}

func (f *fakeEmbedder) EmbedQuery(_ context.Context, text string) ([]float64, error) {
	if f.fail {
		return nil, errors.New("embedding backend down")
	}
	if v, ok := f.vectors[text]; ok {
		return v, nil
	}
	return make([]float64, f.dim), nil
}

func (f *fakeEmbedder) Dimension() int { return f.dim }

// fakeChunkReader serves chunks from a map
type fakeChunkReader struct {
	chunks map[uuid.UUID]models.ChunkWithLaw
}

func (f *fakeChunkReader) GetByIDs(_ context.Context, ids []uuid.UUID) ([]models.ChunkWithLaw, error) {
	var out []models.ChunkWithLaw
	for _, id := range ids {
		if c, ok := f.chunks[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func buildRetrievalFixture(t *testing.T) (*RetrievalService, []uuid.UUID) {
	t.Helper()
	index, err := NewIndexManager(filepath.Join(t.TempDir(), "index.gob"), 3)
	if err != nil {
		t.Fatal(err)
	}

	ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	// the chunk closest in vector space talks about leave; the one that
	// actually repeats the query terms sits second by cosine
	vectors := [][]float64{
		{0.95, 0.05, 0},
		{0.90, 0.10, 0},
		{0, 0, 1},
	}
	if err := index.Insert(context.Background(), ids, vectors); err != nil {
		t.Fatal(err)
	}

	reader := &fakeChunkReader{chunks: map[uuid.UUID]models.ChunkWithLaw{
		ids[0]: {Chunk: models.KnowledgeChunk{ID: ids[0], Content: "تستحق الاجازة السنوية بعد سنة من الخدمة"}, LawName: "نظام العمل"},
		ids[1]: {Chunk: models.KnowledgeChunk{ID: ids[1], Content: "المادة الأولى يسمى هذا النظام نظام العمل"}, LawName: "نظام العمل"},
		ids[2]: {Chunk: models.KnowledgeChunk{ID: ids[2], Content: "عقوبات مخالفة أحكام السلامة"}, LawName: "نظام العمل"},
	}}

	embedder := &fakeEmbedder{dim: 3, vectors: map[string][]float64{
		"المادة الأولى": {1, 0, 0},
	}}

	svc := NewRetrievalService(embedder, index, reader, NewLexicalReranker(), cache.NewMemoryCache())
	return svc, ids
}

func TestQueryRerankBeatsCosine(t *testing.T) {
	svc, ids := buildRetrievalFixture(t)

	res, err := svc.Query(context.Background(), QueryRequest{Query: "المادة الأولى", TopK: 2, Threshold: 0.1})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if !res.Success {
		t.Fatal("expected success")
	}
	if res.ResultsCount < 2 {
		t.Fatalf("expected at least 2 results, got %d", res.ResultsCount)
	}
	// the chunk containing the query words must outrank the cosine winner
	if res.Results[0].ChunkID != ids[1] {
		t.Errorf("top result = %s, want the lexically matching chunk %s", res.Results[0].ChunkID, ids[1])
	}
	if res.Results[0].Score <= res.Results[1].Score {
		t.Error("results must be sorted by descending score")
	}
	if res.Results[0].LawName != "نظام العمل" {
		t.Errorf("result missing law name, got %q", res.Results[0].LawName)
	}
}

func TestQueryEmptyIndexIsSuccess(t *testing.T) {
	index, err := NewIndexManager(filepath.Join(t.TempDir(), "index.gob"), 3)
	if err != nil {
		t.Fatal(err)
	}
	svc := NewRetrievalService(&fakeEmbedder{dim: 3}, index, &fakeChunkReader{}, NewLexicalReranker(), nil)

	res, err := svc.Query(context.Background(), QueryRequest{Query: "أي شيء"})
	if err != nil {
		t.Fatalf("empty index must not error: %v", err)
	}
	if !res.Success || res.ResultsCount != 0 {
		t.Errorf("expected success with zero results, got %+v", res)
	}
}

func TestQueryEmptyQueryRejected(t *testing.T) {
	svc, _ := buildRetrievalFixture(t)
	if _, err := svc.Query(context.Background(), QueryRequest{Query: "   "}); err == nil {
		t.Error("expected error for blank query")
	}
}

func TestQueryThresholdFiltersAll(t *testing.T) {
	svc, _ := buildRetrievalFixture(t)
	res, err := svc.Query(context.Background(), QueryRequest{Query: "المادة الأولى", Threshold: 0.999})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if !res.Success || res.ResultsCount != 0 {
		t.Errorf("all candidates below threshold must yield success with zero results, got %+v", res)
	}
}

func TestQueryTopKCapsResults(t *testing.T) {
	svc, _ := buildRetrievalFixture(t)
	res, err := svc.Query(context.Background(), QueryRequest{Query: "المادة الأولى", TopK: 1, Threshold: 0.01})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if res.ResultsCount != 1 {
		t.Errorf("expected exactly 1 result, got %d", res.ResultsCount)
	}
}

func TestQueryCachesResults(t *testing.T) {
	svc, _ := buildRetrievalFixture(t)
	req := QueryRequest{Query: "المادة الأولى", TopK: 2, Threshold: 0.1}

	first, err := svc.Query(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	// break the embedder; a cached query must still answer
	svc.embedder.(*fakeEmbedder).fail = true
	second, err := svc.Query(context.Background(), req)
	if err != nil {
		t.Fatalf("cached query must not hit the embedder: %v", err)
	}
	if second.ResultsCount != first.ResultsCount {
		t.Errorf("cached result differs: %d vs %d", second.ResultsCount, first.ResultsCount)
	}

	// a different query misses the cache and reaches the broken embedder
	if _, err := svc.Query(context.Background(), QueryRequest{Query: "استعلام آخر"}); err == nil {
		t.Error("expected uncached query to fail with broken embedder")
	}
}
