package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/lawyeralthomali/legatoo-backend-sub004/arabic"
	"github.com/lawyeralthomali/legatoo-backend-sub004/extraction"
	"github.com/lawyeralthomali/legatoo-backend-sub004/models"
	"github.com/lawyeralthomali/legatoo-backend-sub004/storage"

	"github.com/google/uuid"
)

// DefaultJobTimeout bounds one ingestion job end to end
const DefaultJobTimeout = 10 * time.Minute

// LawSourceStore is the persistence surface the state machine needs for
// law sources
type LawSourceStore interface {
	CreateTree(ctx context.Context, source *models.LawSource) error
	GetTree(ctx context.Context, id uuid.UUID) (*models.LawSource, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status models.ProcessingStatus, note *string) error
}

// ChunkStore persists knowledge chunks
type ChunkStore interface {
	InsertBatch(ctx context.Context, chunks []models.KnowledgeChunk) error
	DeleteByLawSource(ctx context.Context, lawSourceID uuid.UUID) ([]uuid.UUID, error)
	CountByLawSource(ctx context.Context, lawSourceID uuid.UUID) (int, error)
}

// DocumentStore persists uploaded document records
type DocumentStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.LegalDocument, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status models.ProcessingStatus, notes *string) error
}

// ProcessingConfig wires the state machine's collaborators
type ProcessingConfig struct {
	LawSources LawSourceStore
	Chunks     ChunkStore
	Documents  DocumentStore
	Files      storage.Storage
	Extractor  extraction.TextExtractor
	Ingest     *IngestService
	Chunker    *Chunker
	Embedder   Embedder
	Index      *IndexManager
	JobTimeout time.Duration
}

// ProcessingService orchestrates the ingestion pipeline per source
// document and is the only writer of processing status. It enforces
// at-most-one active job per document.
type ProcessingService struct {
	lawSources LawSourceStore
	chunks     ChunkStore
	documents  DocumentStore
	files      storage.Storage
	extractor  extraction.TextExtractor
	ingest     *IngestService
	chunker    *Chunker
	embedder   Embedder
	index      *IndexManager
	jobTimeout time.Duration

	mu     sync.Mutex
	active map[uuid.UUID]bool
}

// NewProcessingService creates the pipeline orchestrator
func NewProcessingService(cfg ProcessingConfig) *ProcessingService {
	timeout := cfg.JobTimeout
	if timeout <= 0 {
		timeout = DefaultJobTimeout
	}
	return &ProcessingService{
		lawSources: cfg.LawSources,
		chunks:     cfg.Chunks,
		documents:  cfg.Documents,
		files:      cfg.Files,
		extractor:  cfg.Extractor,
		ingest:     cfg.Ingest,
		chunker:    cfg.Chunker,
		embedder:   cfg.Embedder,
		index:      cfg.Index,
		jobTimeout: timeout,
		active:     make(map[uuid.UUID]bool),
	}
}

// acquire claims the per-document job slot or fails with
// AlreadyProcessingError
func (s *ProcessingService) acquire(id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active[id] {
		return &AlreadyProcessingError{DocumentID: id.String()}
	}
	s.active[id] = true
	return nil
}

func (s *ProcessingService) release(id uuid.UUID) {
	s.mu.Lock()
	delete(s.active, id)
	s.mu.Unlock()
}

// ProcessLawSourceJSON runs the structured ingestion path: parse and
// validate the payload, persist each law source tree, then chunk, embed
// and index it.
func (s *ProcessingService) ProcessLawSourceJSON(ctx context.Context, payload []byte) ([]*IngestResult, error) {
	results, err := s.ingest.ParsePayload(payload)
	if err != nil {
		return nil, err
	}

	for _, res := range results {
		if err := s.lawSources.CreateTree(ctx, res.Source); err != nil {
			return nil, fmt.Errorf("failed to persist law source %q: %w", res.Source.Name, err)
		}
		if err := s.runSourceJob(ctx, res); err != nil {
			res.Report.Errors = append(res.Report.Errors, err.Error())
			return results, err
		}
	}
	return results, nil
}

// ProcessFlatText ingests raw text that was extracted elsewhere
func (s *ProcessingService) ProcessFlatText(ctx context.Context, req FlatIngestRequest) (*IngestResult, error) {
	res, err := s.ingest.FromFlatText(req)
	if err != nil {
		return nil, err
	}
	if err := s.lawSources.CreateTree(ctx, res.Source); err != nil {
		return nil, fmt.Errorf("failed to persist law source %q: %w", res.Source.Name, err)
	}
	if err := s.runSourceJob(ctx, res); err != nil {
		res.Report.Errors = append(res.Report.Errors, err.Error())
		return res, err
	}
	return res, nil
}

// ProcessDocument runs the full pipeline for an uploaded document:
// extraction, normalization, single-article promotion, chunking, embedding
// and indexing. A second call for the same document while one is in flight
// is rejected with AlreadyProcessingError.
func (s *ProcessingService) ProcessDocument(ctx context.Context, documentID uuid.UUID, meta FlatIngestRequest) (*IngestResult, error) {
	if err := s.acquire(documentID); err != nil {
		return nil, err
	}
	defer s.release(documentID)

	jobCtx, cancel := context.WithTimeout(ctx, s.jobTimeout)
	defer cancel()

	doc, err := s.documents.GetByID(jobCtx, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load document: %w", err)
	}
	if !models.CanTransition(doc.Status, models.StatusProcessing) {
		return nil, fmt.Errorf("document %s cannot start processing from status %q", documentID, doc.Status)
	}
	if err := s.documents.UpdateStatus(jobCtx, documentID, models.StatusProcessing, nil); err != nil {
		return nil, err
	}

	res, err := s.extractAndIngest(jobCtx, doc, meta)
	if err != nil {
		if jobCtx.Err() == context.DeadlineExceeded {
			err = &TimeoutError{Stage: "extraction"}
		}
		s.failDocument(documentID, err)
		return nil, err
	}

	if err := s.documents.UpdateStatus(jobCtx, documentID, models.StatusProcessed, nil); err != nil {
		return nil, err
	}
	if err := s.runSourceJob(jobCtx, res); err != nil {
		s.failDocument(documentID, err)
		res.Report.Errors = append(res.Report.Errors, err.Error())
		return res, err
	}
	if err := s.documents.UpdateStatus(jobCtx, documentID, models.StatusIndexed, nil); err != nil {
		return nil, err
	}
	return res, nil
}

func (s *ProcessingService) extractAndIngest(ctx context.Context, doc *models.LegalDocument, meta FlatIngestRequest) (*IngestResult, error) {
	reader, err := s.files.Download(ctx, doc.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("failed to download document: %w", err)
	}
	defer reader.Close()

	tmp, err := os.CreateTemp("", "legatoo-extract-*"+filepath.Ext(doc.Filename))
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := io.Copy(tmp, reader); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("failed to stage document: %w", err)
	}
	tmp.Close()

	extracted, err := s.extractor.Extract(ctx, tmp.Name())
	if err != nil {
		if errors.Is(err, extraction.ErrNoText) {
			return nil, &ExtractionError{Document: doc.Filename, Reason: "no usable text from either extraction path"}
		}
		return nil, err
	}
	for _, w := range extracted.Warnings {
		log.Printf("extraction warning for %s: %s", doc.Filename, w)
	}

	if meta.TextSource == "" {
		// the extraction method is a hint, not a guarantee; callers can
		// override it per document
		if extracted.Method == extraction.MethodOCR {
			meta.TextSource = arabic.SourceOCR
		} else {
			meta.TextSource = arabic.SourceDirect
		}
	}
	meta.Text = extracted.Text
	id := doc.ID
	meta.DocumentID = &id
	if meta.LawName == "" {
		meta.LawName = doc.Filename
	}

	res, err := s.ingest.FromFlatText(meta)
	if err != nil {
		return nil, err
	}
	if err := s.lawSources.CreateTree(ctx, res.Source); err != nil {
		return nil, fmt.Errorf("failed to persist law source: %w", err)
	}
	return res, nil
}

// runSourceJob advances one law source raw -> processing -> processed ->
// indexed, or parks it in failed with a structured cause. Chunk rows from
// a failed attempt are fully rolled back by the batch insert transaction.
func (s *ProcessingService) runSourceJob(ctx context.Context, res *IngestResult) error {
	jobCtx := ctx
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		jobCtx, cancel = context.WithTimeout(ctx, s.jobTimeout)
		defer cancel()
	}

	source := res.Source
	if err := s.setStatus(source.ID, source.Status, models.StatusProcessing, nil); err != nil {
		return err
	}
	source.Status = models.StatusProcessing

	err := s.chunkEmbedIndex(jobCtx, res)
	if err != nil {
		cause := err
		if jobCtx.Err() == context.DeadlineExceeded {
			cause = &TimeoutError{Stage: "ingestion"}
		}
		note := cause.Error()
		if stErr := s.setStatus(source.ID, source.Status, models.StatusFailed, &note); stErr != nil {
			log.Printf("failed to mark law source %s failed: %v", source.ID, stErr)
		}
		source.Status = models.StatusFailed
		return cause
	}
	return nil
}

func (s *ProcessingService) chunkEmbedIndex(ctx context.Context, res *IngestResult) error {
	source := res.Source

	chunks, err := s.chunker.ChunkArticles(source)
	if err != nil {
		return err
	}
	if err := s.setStatus(source.ID, source.Status, models.StatusProcessed, nil); err != nil {
		return err
	}
	source.Status = models.StatusProcessed

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}
	vectors, err := s.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return err
	}

	// every chunk is stored so chunk_index stays a contiguous range per
	// article; chunks whose embedding failed after bounded retries get a
	// NULL vector, are left out of the index and can be backfilled later.
	// Partial indexing is acceptable, partial corruption is not.
	var (
		indexIDs  []uuid.UUID
		indexVecs [][]float64
	)
	for i := range chunks {
		if vectors[i] == nil {
			res.Report.Warnings = append(res.Report.Warnings,
				fmt.Sprintf("chunk %d of article %s not indexed: embedding failed", chunks[i].ChunkIndex, deref(chunks[i].ArticleNumber)))
			continue
		}
		chunks[i].Embedding = vectors[i]
		indexIDs = append(indexIDs, chunks[i].ID)
		indexVecs = append(indexVecs, vectors[i])
	}
	if len(indexIDs) == 0 {
		return &EmbeddingError{ChunkIndex: 0, Err: errors.New("no chunk could be embedded")}
	}

	if err := s.chunks.InsertBatch(ctx, chunks); err != nil {
		return fmt.Errorf("failed to store chunks: %w", err)
	}

	if err := s.index.Insert(ctx, indexIDs, indexVecs); err != nil {
		return err
	}

	if err := s.setStatus(source.ID, source.Status, models.StatusIndexed, nil); err != nil {
		return err
	}
	source.Status = models.StatusIndexed
	log.Printf("law source %s indexed: %d of %d chunks", source.ID, len(indexIDs), len(chunks))
	return nil
}

// ReindexSource deliberately moves an indexed source back to processing,
// replaces its chunks (never edits them in place) and re-indexes
func (s *ProcessingService) ReindexSource(ctx context.Context, lawSourceID uuid.UUID) (*IngestResult, error) {
	if err := s.acquire(lawSourceID); err != nil {
		return nil, err
	}
	defer s.release(lawSourceID)

	jobCtx, cancel := context.WithTimeout(ctx, s.jobTimeout)
	defer cancel()

	source, err := s.lawSources.GetTree(jobCtx, lawSourceID)
	if err != nil {
		return nil, fmt.Errorf("failed to load law source: %w", err)
	}
	if !models.CanTransition(source.Status, models.StatusProcessing) {
		return nil, fmt.Errorf("law source %s cannot be re-indexed from status %q", lawSourceID, source.Status)
	}
	if err := s.setStatus(source.ID, source.Status, models.StatusProcessing, nil); err != nil {
		return nil, err
	}
	source.Status = models.StatusProcessing

	oldIDs, err := s.chunks.DeleteByLawSource(jobCtx, lawSourceID)
	if err != nil {
		return nil, fmt.Errorf("failed to drop old chunks: %w", err)
	}
	removed := make(map[uuid.UUID]bool, len(oldIDs))
	for _, id := range oldIDs {
		removed[id] = true
	}
	if err := s.index.RemoveByID(jobCtx, removed); err != nil {
		return nil, err
	}

	res := &IngestResult{
		Source: source,
		Report: models.ProcessingReport{Warnings: []string{}, Errors: []string{}, StructureConfidence: 1.0},
	}
	if err := s.chunkEmbedIndex(jobCtx, res); err != nil {
		cause := err
		if jobCtx.Err() == context.DeadlineExceeded {
			cause = &TimeoutError{Stage: "reindex"}
		}
		note := cause.Error()
		if stErr := s.setStatus(source.ID, source.Status, models.StatusFailed, &note); stErr != nil {
			log.Printf("failed to mark law source %s failed: %v", source.ID, stErr)
		}
		return res, cause
	}
	return res, nil
}

// setStatus writes a status transition after checking it against the
// transition table. Status updates use a background context so a failure
// note survives job-context cancellation.
func (s *ProcessingService) setStatus(id uuid.UUID, from, to models.ProcessingStatus, note *string) error {
	if !models.CanTransition(from, to) {
		return fmt.Errorf("illegal status transition %q -> %q for %s", from, to, id)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.lawSources.UpdateStatus(ctx, id, to, note)
}

func (s *ProcessingService) failDocument(id uuid.UUID, cause error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	note := cause.Error()
	if err := s.documents.UpdateStatus(ctx, id, models.StatusFailed, &note); err != nil {
		log.Printf("failed to mark document %s failed: %v", id, err)
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
