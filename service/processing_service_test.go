package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/lawyeralthomali/legatoo-backend-sub004/extraction"
	"github.com/lawyeralthomali/legatoo-backend-sub004/models"

	"github.com/google/uuid"
)

// memLawStore records trees and every status transition in order
type memLawStore struct {
	mu          sync.Mutex
	sources     map[uuid.UUID]*models.LawSource
	transitions []models.ProcessingStatus
	notes       map[uuid.UUID]string
}

func newMemLawStore() *memLawStore {
	return &memLawStore{sources: map[uuid.UUID]*models.LawSource{}, notes: map[uuid.UUID]string{}}
}

func (s *memLawStore) CreateTree(_ context.Context, source *models.LawSource) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sources[source.ID] = source
	return nil
}

func (s *memLawStore) GetTree(_ context.Context, id uuid.UUID) (*models.LawSource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	src, ok := s.sources[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return src, nil
}

func (s *memLawStore) UpdateStatus(_ context.Context, id uuid.UUID, status models.ProcessingStatus, note *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transitions = append(s.transitions, status)
	if note != nil {
		s.notes[id] = *note
	}
	return nil
}

// memChunkStore collects inserted chunks
type memChunkStore struct {
	mu     sync.Mutex
	chunks []models.KnowledgeChunk
}

func (s *memChunkStore) InsertBatch(_ context.Context, chunks []models.KnowledgeChunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks = append(s.chunks, chunks...)
	return nil
}

func (s *memChunkStore) DeleteByLawSource(_ context.Context, lawSourceID uuid.UUID) ([]uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed []uuid.UUID
	kept := s.chunks[:0]
	for _, c := range s.chunks {
		if c.LawSourceID != nil && *c.LawSourceID == lawSourceID {
			removed = append(removed, c.ID)
			continue
		}
		kept = append(kept, c)
	}
	s.chunks = kept
	return removed, nil
}

func (s *memChunkStore) CountByLawSource(_ context.Context, lawSourceID uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.chunks {
		if c.LawSourceID != nil && *c.LawSourceID == lawSourceID {
			n++
		}
	}
	return n, nil
}

// memDocStore holds uploaded document records
type memDocStore struct {
	mu   sync.Mutex
	docs map[uuid.UUID]*models.LegalDocument
}

func (s *memDocStore) GetByID(_ context.Context, id uuid.UUID) (*models.LegalDocument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[id]
	if !ok {
		return nil, errors.New("not found")
	}
	cp := *doc
	return &cp, nil
}

func (s *memDocStore) UpdateStatus(_ context.Context, id uuid.UUID, status models.ProcessingStatus, notes *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if doc, ok := s.docs[id]; ok {
		doc.Status = status
		if notes != nil {
			doc.Notes = notes
		}
	}
	return nil
}

// memStorage serves fixed bytes for any path
type memStorage struct{ data []byte }

func (s *memStorage) Upload(_ context.Context, _ uuid.UUID, _ string, r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	s.data = data
	return "mem/path", nil
}

func (s *memStorage) Download(_ context.Context, _ string) (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(s.data)), nil
}

func (s *memStorage) Delete(_ context.Context, _ string) error { return nil }

// fixedExtractor returns a canned extraction result
type fixedExtractor struct {
	result *extraction.Result
	err    error
}

func (f *fixedExtractor) Extract(_ context.Context, _ string) (*extraction.Result, error) {
	return f.result, f.err
}

// scriptedEmbedder embeds everything to a unit vector, optionally failing
// specific texts or blocking until the context dies
type scriptedEmbedder struct {
	dim       int
	failTexts map[string]bool
	block     bool
}

func (e *scriptedEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float64, error) {
	if e.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	out := make([][]float64, len(texts))
	for i, t := range texts {
		if e.failTexts[t] {
			continue
		}
		v := make([]float64, e.dim)
		v[0] = 1
		out[i] = v
	}
	return out, nil
}

func (e *scriptedEmbedder) EmbedQuery(_ context.Context, _ string) ([]float64, error) {
	v := make([]float64, e.dim)
	v[0] = 1
	return v, nil
}

func (e *scriptedEmbedder) Dimension() int { return e.dim }

type processingFixture struct {
	svc    *ProcessingService
	laws   *memLawStore
	chunks *memChunkStore
	docs   *memDocStore
	index  *IndexManager
}

func newProcessingFixture(t *testing.T, embedder Embedder, extractor extraction.TextExtractor, store *memStorage) *processingFixture {
	t.Helper()
	index, err := NewIndexManager(filepath.Join(t.TempDir(), "index.gob"), embedder.Dimension())
	if err != nil {
		t.Fatal(err)
	}
	laws := newMemLawStore()
	chunks := &memChunkStore{}
	docs := &memDocStore{docs: map[uuid.UUID]*models.LegalDocument{}}
	svc := NewProcessingService(ProcessingConfig{
		LawSources: laws,
		Chunks:     chunks,
		Documents:  docs,
		Files:      store,
		Extractor:  extractor,
		Ingest:     NewIngestService(),
		Chunker:    &Chunker{MaxSize: 80, Overlap: 10},
		Embedder:   embedder,
		Index:      index,
		JobTimeout: 5 * time.Second,
	})
	return &processingFixture{svc: svc, laws: laws, chunks: chunks, docs: docs, index: index}
}

func TestProcessFlatTextFullPipeline(t *testing.T) {
	fx := newProcessingFixture(t, &scriptedEmbedder{dim: 4}, &fixedExtractor{}, &memStorage{})

	res, err := fx.svc.ProcessFlatText(context.Background(), FlatIngestRequest{
		LawName: "قرار وزاري",
		Text:    strings.Repeat("يلتزم صاحب العمل بأحكام هذا القرار. ", 8),
	})
	if err != nil {
		t.Fatalf("ProcessFlatText: %v", err)
	}
	if res.Source.Status != models.StatusIndexed {
		t.Errorf("final status = %q, want indexed", res.Source.Status)
	}

	want := []models.ProcessingStatus{models.StatusProcessing, models.StatusProcessed, models.StatusIndexed}
	if len(fx.laws.transitions) != len(want) {
		t.Fatalf("transitions = %v, want %v", fx.laws.transitions, want)
	}
	for i, st := range want {
		if fx.laws.transitions[i] != st {
			t.Errorf("transition %d = %q, want %q", i, fx.laws.transitions[i], st)
		}
	}

	if len(fx.chunks.chunks) == 0 {
		t.Fatal("no chunks were stored")
	}
	if fx.index.Len() != len(fx.chunks.chunks) {
		t.Errorf("index has %d vectors for %d chunks", fx.index.Len(), len(fx.chunks.chunks))
	}
}

func TestProcessFlatTextPartialEmbeddingFailure(t *testing.T) {
	// the chunker at MaxSize 80 cuts this text into several chunks; fail
	// exactly the first chunk's content
	text := strings.Repeat("تسري أحكام هذه المادة على كل منشأة. ", 8)
	chunker := &Chunker{MaxSize: 80, Overlap: 10}
	pieces, err := chunker.Split(normalizeForTest(text))
	if err != nil {
		t.Fatal(err)
	}
	if len(pieces) < 2 {
		t.Fatalf("fixture text too short, got %d chunks", len(pieces))
	}

	embedder := &scriptedEmbedder{dim: 4, failTexts: map[string]bool{pieces[0]: true}}
	fx := newProcessingFixture(t, embedder, &fixedExtractor{}, &memStorage{})

	res, err := fx.svc.ProcessFlatText(context.Background(), FlatIngestRequest{LawName: "نظام", Text: text})
	if err != nil {
		t.Fatalf("partial embedding failure must not abort the job: %v", err)
	}
	if len(res.Report.Warnings) == 0 {
		t.Error("expected a warning for the unembedded chunk")
	}
	if res.Source.Status != models.StatusIndexed {
		t.Errorf("final status = %q, want indexed", res.Source.Status)
	}

	// every chunk row is persisted; the failed one carries no embedding
	// so the chunk_index range stays contiguous from 0
	if len(fx.chunks.chunks) != len(pieces) {
		t.Fatalf("stored %d chunks, want %d", len(fx.chunks.chunks), len(pieces))
	}
	seen := map[int]bool{}
	withVector := 0
	for _, c := range fx.chunks.chunks {
		seen[c.ChunkIndex] = true
		if c.Embedding != nil {
			withVector++
		}
	}
	for i := 0; i < len(pieces); i++ {
		if !seen[i] {
			t.Errorf("chunk_index %d missing, stored set %v", i, seen)
		}
	}
	if withVector != len(pieces)-1 {
		t.Errorf("%d chunks carry an embedding, want %d", withVector, len(pieces)-1)
	}
	// only embedded chunks reach the index
	if fx.index.Len() != len(pieces)-1 {
		t.Errorf("index has %d vectors, want %d", fx.index.Len(), len(pieces)-1)
	}
}

func normalizeForTest(text string) string {
	svc := NewIngestService()
	res, err := svc.FromFlatText(FlatIngestRequest{LawName: "x", Text: text})
	if err != nil {
		panic(err)
	}
	return res.Source.Articles[0].Content
}

func TestProcessFlatTextAllEmbeddingsFail(t *testing.T) {
	embedder := &scriptedEmbedder{dim: 4, failTexts: map[string]bool{"نص قصير.": true}}
	fx := newProcessingFixture(t, embedder, &fixedExtractor{}, &memStorage{})

	_, err := fx.svc.ProcessFlatText(context.Background(), FlatIngestRequest{LawName: "نظام", Text: "نص قصير."})
	if err == nil {
		t.Fatal("expected error when no chunk can be embedded")
	}
	var embErr *EmbeddingError
	if !errors.As(err, &embErr) {
		t.Fatalf("expected *EmbeddingError, got %T", err)
	}
	last := fx.laws.transitions[len(fx.laws.transitions)-1]
	if last != models.StatusFailed {
		t.Errorf("source must be parked in failed, last transition = %q", last)
	}
}

func TestProcessDocumentAlreadyProcessing(t *testing.T) {
	fx := newProcessingFixture(t, &scriptedEmbedder{dim: 4}, &fixedExtractor{}, &memStorage{})
	docID := uuid.New()
	fx.docs.docs[docID] = &models.LegalDocument{ID: docID, Filename: "law.pdf", Status: models.StatusRaw}

	// simulate an in-flight job holding the per-document slot
	fx.svc.mu.Lock()
	fx.svc.active[docID] = true
	fx.svc.mu.Unlock()

	_, err := fx.svc.ProcessDocument(context.Background(), docID, FlatIngestRequest{})
	if err == nil {
		t.Fatal("expected rejection")
	}
	var already *AlreadyProcessingError
	if !errors.As(err, &already) {
		t.Fatalf("expected *AlreadyProcessingError, got %T", err)
	}
}

func TestProcessDocumentExtractionFailure(t *testing.T) {
	extractor := &fixedExtractor{err: extraction.ErrNoText}
	store := &memStorage{data: []byte("%PDF-1.4 stub")}
	fx := newProcessingFixture(t, &scriptedEmbedder{dim: 4}, extractor, store)

	docID := uuid.New()
	fx.docs.docs[docID] = &models.LegalDocument{ID: docID, Filename: "scan.pdf", Status: models.StatusRaw, StoragePath: "mem/path"}

	_, err := fx.svc.ProcessDocument(context.Background(), docID, FlatIngestRequest{})
	if err == nil {
		t.Fatal("expected extraction error")
	}
	var exErr *ExtractionError
	if !errors.As(err, &exErr) {
		t.Fatalf("expected *ExtractionError, got %T", err)
	}
	doc, _ := fx.docs.GetByID(context.Background(), docID)
	if doc.Status != models.StatusFailed {
		t.Errorf("document status = %q, want failed", doc.Status)
	}
	if doc.Notes == nil || *doc.Notes == "" {
		t.Error("failed document must carry a failure note")
	}
}

func TestProcessDocumentHappyPath(t *testing.T) {
	extractor := &fixedExtractor{result: &extraction.Result{
		Text:   "المادة الأولى: يسمى هذا النظام نظام المرافعات.",
		Method: extraction.MethodDirect,
		Pages:  1,
	}}
	store := &memStorage{data: []byte("%PDF-1.4 stub")}
	fx := newProcessingFixture(t, &scriptedEmbedder{dim: 4}, extractor, store)

	docID := uuid.New()
	fx.docs.docs[docID] = &models.LegalDocument{ID: docID, Filename: "نظام المرافعات.pdf", Status: models.StatusRaw, StoragePath: "mem/path"}

	res, err := fx.svc.ProcessDocument(context.Background(), docID, FlatIngestRequest{LawName: "نظام المرافعات"})
	if err != nil {
		t.Fatalf("ProcessDocument: %v", err)
	}
	if res.Source.Status != models.StatusIndexed {
		t.Errorf("source status = %q, want indexed", res.Source.Status)
	}
	doc, _ := fx.docs.GetByID(context.Background(), docID)
	if doc.Status != models.StatusIndexed {
		t.Errorf("document status = %q, want indexed", doc.Status)
	}
	if res.Source.DocumentID == nil || *res.Source.DocumentID != docID {
		t.Error("law source must point back at the document")
	}
}

func TestProcessFlatTextTimeout(t *testing.T) {
	embedder := &scriptedEmbedder{dim: 4, block: true}
	fx := newProcessingFixture(t, embedder, &fixedExtractor{}, &memStorage{})
	fx.svc.jobTimeout = 50 * time.Millisecond

	_, err := fx.svc.ProcessFlatText(context.Background(), FlatIngestRequest{LawName: "نظام", Text: "نص قصير."})
	if err == nil {
		t.Fatal("expected timeout")
	}
	var timeout *TimeoutError
	if !errors.As(err, &timeout) {
		t.Fatalf("expected *TimeoutError, got %T", err)
	}
	last := fx.laws.transitions[len(fx.laws.transitions)-1]
	if last != models.StatusFailed {
		t.Errorf("timed-out source must be failed, last transition = %q", last)
	}
}

// blockingExtractor stalls until the job context dies
type blockingExtractor struct{}

func (blockingExtractor) Extract(ctx context.Context, _ string) (*extraction.Result, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestProcessDocumentExtractionTimeout(t *testing.T) {
	store := &memStorage{data: []byte("%PDF-1.4 stub")}
	fx := newProcessingFixture(t, &scriptedEmbedder{dim: 4}, blockingExtractor{}, store)
	fx.svc.jobTimeout = 50 * time.Millisecond

	docID := uuid.New()
	fx.docs.docs[docID] = &models.LegalDocument{ID: docID, Filename: "slow.pdf", Status: models.StatusRaw, StoragePath: "mem/path"}

	_, err := fx.svc.ProcessDocument(context.Background(), docID, FlatIngestRequest{})
	if err == nil {
		t.Fatal("expected timeout")
	}
	var timeout *TimeoutError
	if !errors.As(err, &timeout) {
		t.Fatalf("expected *TimeoutError, got %T: %v", err, err)
	}
	doc, _ := fx.docs.GetByID(context.Background(), docID)
	if doc.Status != models.StatusFailed {
		t.Errorf("document status = %q, want failed", doc.Status)
	}
	if doc.Notes == nil || *doc.Notes == "" {
		t.Error("timed-out document must carry a failure note")
	}
}

func TestProcessDocumentFromQueuedStatus(t *testing.T) {
	extractor := &fixedExtractor{result: &extraction.Result{
		Text:   "المادة الأولى: نص المادة.",
		Method: extraction.MethodDirect,
		Pages:  1,
	}}
	store := &memStorage{data: []byte("%PDF-1.4 stub")}
	fx := newProcessingFixture(t, &scriptedEmbedder{dim: 4}, extractor, store)

	docID := uuid.New()
	fx.docs.docs[docID] = &models.LegalDocument{ID: docID, Filename: "queued.pdf", Status: models.StatusPendingParsing, StoragePath: "mem/path"}

	res, err := fx.svc.ProcessDocument(context.Background(), docID, FlatIngestRequest{LawName: "نظام"})
	if err != nil {
		t.Fatalf("ProcessDocument from pending_parsing: %v", err)
	}
	if res.Source.Status != models.StatusIndexed {
		t.Errorf("source status = %q, want indexed", res.Source.Status)
	}
	doc, _ := fx.docs.GetByID(context.Background(), docID)
	if doc.Status != models.StatusIndexed {
		t.Errorf("document status = %q, want indexed", doc.Status)
	}
}

func TestReindexSourceReplacesChunks(t *testing.T) {
	fx := newProcessingFixture(t, &scriptedEmbedder{dim: 4}, &fixedExtractor{}, &memStorage{})

	res, err := fx.svc.ProcessFlatText(context.Background(), FlatIngestRequest{LawName: "نظام", Text: "نص المادة الكامل."})
	if err != nil {
		t.Fatal(err)
	}
	firstIDs := map[uuid.UUID]bool{}
	for _, c := range fx.chunks.chunks {
		firstIDs[c.ID] = true
	}

	res2, err := fx.svc.ReindexSource(context.Background(), res.Source.ID)
	if err != nil {
		t.Fatalf("ReindexSource: %v", err)
	}
	if res2.Source.Status != models.StatusIndexed {
		t.Errorf("status after reindex = %q, want indexed", res2.Source.Status)
	}
	for _, c := range fx.chunks.chunks {
		if firstIDs[c.ID] {
			t.Error("reindex must replace chunks, not keep old ids")
		}
	}
	if fx.index.Len() != len(fx.chunks.chunks) {
		t.Errorf("index has %d vectors for %d chunks", fx.index.Len(), len(fx.chunks.chunks))
	}
}

func TestReindexSourceRequiresIndexedStatus(t *testing.T) {
	fx := newProcessingFixture(t, &scriptedEmbedder{dim: 4}, &fixedExtractor{}, &memStorage{})
	id := uuid.New()
	fx.laws.sources[id] = &models.LawSource{ID: id, Name: "نظام", Status: models.StatusRaw}

	if _, err := fx.svc.ReindexSource(context.Background(), id); err == nil {
		t.Error("expected rejection for non-indexed source")
	}
}
