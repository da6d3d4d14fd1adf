package service

import "fmt"

// Error codes surfaced to HTTP callers. Callers distinguish failure classes
// by code, never by parsing free text.
const (
	CodeExtractionFailed  = "EXTRACTION_FAILED"
	CodeHierarchyInvalid  = "HIERARCHY_INVALID"
	CodeChunkingFailed    = "CHUNKING_FAILED"
	CodeEmbeddingFailed   = "EMBEDDING_FAILED"
	CodeIndexBusy         = "INDEX_BUSY"
	CodeAlreadyProcessing = "ALREADY_PROCESSING"
	CodeTimeout           = "TIMEOUT"
)

// ExtractionError means no usable text came out of either extraction path
type ExtractionError struct {
	Document string
	Reason   string
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extraction failed for %s: %s", e.Document, e.Reason)
}

func (e *ExtractionError) Code() string { return CodeExtractionFailed }

// HierarchyError means the root of an ingestion payload failed structural
// validation. Inner omissions degrade into warnings instead.
type HierarchyError struct {
	Reason string
}

func (e *HierarchyError) Error() string {
	return fmt.Sprintf("invalid law hierarchy: %s", e.Reason)
}

func (e *HierarchyError) Code() string { return CodeHierarchyInvalid }

// ChunkingError means the chunker received degenerate input
type ChunkingError struct {
	Reason string
}

func (e *ChunkingError) Error() string {
	return fmt.Sprintf("chunking failed: %s", e.Reason)
}

func (e *ChunkingError) Code() string { return CodeChunkingFailed }

// EmbeddingError is a per-chunk embedding failure. It is recoverable by
// retrying that chunk alone and never aborts the whole batch.
type EmbeddingError struct {
	ChunkIndex int
	Err        error
}

func (e *EmbeddingError) Error() string {
	return fmt.Sprintf("embedding failed for chunk %d: %v", e.ChunkIndex, e.Err)
}

func (e *EmbeddingError) Unwrap() error { return e.Err }

func (e *EmbeddingError) Code() string { return CodeEmbeddingFailed }

// IndexBusyError means a concurrent index mutation was rejected
type IndexBusyError struct {
	Operation string
}

func (e *IndexBusyError) Error() string {
	return fmt.Sprintf("vector index busy, cannot %s", e.Operation)
}

func (e *IndexBusyError) Code() string { return CodeIndexBusy }

// AlreadyProcessingError means a second ingestion job was requested for a
// document that already has one in flight
type AlreadyProcessingError struct {
	DocumentID string
}

func (e *AlreadyProcessingError) Error() string {
	return fmt.Sprintf("document %s is already being processed", e.DocumentID)
}

func (e *AlreadyProcessingError) Code() string { return CodeAlreadyProcessing }

// TimeoutError means a job exceeded its time budget
type TimeoutError struct {
	Stage string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("job timed out during %s", e.Stage)
}

func (e *TimeoutError) Code() string { return CodeTimeout }

// Coded is implemented by every taxonomy error
type Coded interface {
	error
	Code() string
}
