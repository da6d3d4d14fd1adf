package models

import (
	"time"

	"github.com/google/uuid"
)

// LegalDocument represents an uploaded artifact (PDF or text file) that
// knowledge chunks cite back to
type LegalDocument struct {
	ID          uuid.UUID        `json:"id"`
	Filename    string           `json:"filename"`
	MimeType    string           `json:"mime_type"`
	Size        int64            `json:"size"`
	StoragePath string           `json:"storage_path"`
	Type        string           `json:"type"`     // e.g. "law", "contract", "court_ruling"
	Language    string           `json:"language"` // BCP 47-ish, "ar" for most inputs
	Status      ProcessingStatus `json:"status"`
	Notes       *string          `json:"notes,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}
