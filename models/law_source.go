package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// LawSourceType classifies the legal instrument
type LawSourceType string

const (
	SourceTypeLaw        LawSourceType = "law"
	SourceTypeRegulation LawSourceType = "regulation"
	SourceTypeCode       LawSourceType = "code"
	SourceTypeDirective  LawSourceType = "directive"
	SourceTypeDecree     LawSourceType = "decree"
)

// ParseLawSourceType validates a source type string
func ParseLawSourceType(s string) (LawSourceType, error) {
	switch LawSourceType(s) {
	case SourceTypeLaw, SourceTypeRegulation, SourceTypeCode, SourceTypeDirective, SourceTypeDecree:
		return LawSourceType(s), nil
	}
	return "", fmt.Errorf("unknown law source type: %q", s)
}

// ProcessingStatus represents the pipeline stage a source or document has reached
type ProcessingStatus string

const (
	StatusRaw            ProcessingStatus = "raw"
	StatusPendingParsing ProcessingStatus = "pending_parsing"
	StatusProcessing     ProcessingStatus = "processing"
	StatusProcessed      ProcessingStatus = "processed"
	StatusIndexed        ProcessingStatus = "indexed"
	StatusFailed         ProcessingStatus = "failed"
)

// ParseProcessingStatus rejects any status value outside the enumeration
func ParseProcessingStatus(s string) (ProcessingStatus, error) {
	switch ProcessingStatus(s) {
	case StatusRaw, StatusPendingParsing, StatusProcessing, StatusProcessed, StatusIndexed, StatusFailed:
		return ProcessingStatus(s), nil
	}
	return "", fmt.Errorf("unknown processing status: %q", s)
}

// statusTransitions is the exhaustive transition table. Transitions are
// monotonic: no state is re-entered once passed, except failed, and except
// the deliberate indexed -> processing re-index path.
var statusTransitions = map[ProcessingStatus][]ProcessingStatus{
	StatusRaw:            {StatusProcessing, StatusPendingParsing},
	StatusPendingParsing: {StatusProcessing},
	StatusProcessing:     {StatusProcessed, StatusFailed},
	StatusProcessed:      {StatusIndexed, StatusFailed},
	StatusIndexed:        {StatusProcessing},
	StatusFailed:         {},
}

// CanTransition reports whether moving from one status to another is allowed
func CanTransition(from, to ProcessingStatus) bool {
	for _, next := range statusTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// LawSource represents one legal instrument and owns its branch tree
type LawSource struct {
	ID               uuid.UUID        `json:"id"`
	Name             string           `json:"name"`
	Type             LawSourceType    `json:"type"`
	Jurisdiction     string           `json:"jurisdiction"`
	IssuingAuthority string           `json:"issuing_authority"`
	IssueDate        string           `json:"issue_date"` // YYYY-MM-DD when parseable, opaque otherwise
	Description      string           `json:"description"`
	Status           ProcessingStatus `json:"status"`
	DocumentID       *uuid.UUID       `json:"document_id,omitempty"`
	Branches         []LawBranch      `json:"branches,omitempty"`
	// Articles attached directly to the source, for flat documents
	// without branch/chapter structure
	Articles  []LawArticle `json:"articles,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// LawBranch is a numbered top-level division of a law source
type LawBranch struct {
	ID           uuid.UUID    `json:"id"`
	LawSourceID  uuid.UUID    `json:"law_source_id"`
	BranchNumber string       `json:"branch_number"`
	BranchName   string       `json:"branch_name"`
	OrderIndex   int          `json:"order_index"`
	Chapters     []LawChapter `json:"chapters,omitempty"`
}

// LawChapter is a numbered subdivision of a branch
type LawChapter struct {
	ID            uuid.UUID    `json:"id"`
	BranchID      uuid.UUID    `json:"branch_id"`
	ChapterNumber string       `json:"chapter_number"`
	ChapterName   string       `json:"chapter_name"`
	OrderIndex    int          `json:"order_index"`
	Articles      []LawArticle `json:"articles,omitempty"`
}

// LawArticle is the leaf legal unit. ArticleNumber is a string because
// Arabic ordinal forms ("الأولى") are common article numbers.
type LawArticle struct {
	ID            uuid.UUID  `json:"id"`
	ChapterID     *uuid.UUID `json:"chapter_id,omitempty"`
	LawSourceID   uuid.UUID  `json:"law_source_id"`
	ArticleNumber string     `json:"article_number"`
	Title         *string    `json:"title,omitempty"`
	Content       string     `json:"content"`
	Keywords      []string   `json:"keywords"`
	OrderIndex    int        `json:"order_index"`
}

// Statistics summarizes an ingested hierarchy
type Statistics struct {
	TotalBranches int `json:"total_branches"`
	TotalChapters int `json:"total_chapters"`
	TotalArticles int `json:"total_articles"`
}

// ProcessingReport carries warnings, errors and a structure-confidence
// score in [0,1] estimating how completely the parsed hierarchy matched
// the expected fields
type ProcessingReport struct {
	Warnings            []string `json:"warnings"`
	Errors              []string `json:"errors"`
	StructureConfidence float64  `json:"structure_confidence"`
}
