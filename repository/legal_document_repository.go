package repository

import (
	"context"

	"github.com/lawyeralthomali/legatoo-backend-sub004/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// LegalDocumentRepository handles database operations for uploaded documents
type LegalDocumentRepository struct {
	db *pgxpool.Pool
}

// NewLegalDocumentRepository creates a new legal document repository
func NewLegalDocumentRepository(db *pgxpool.Pool) *LegalDocumentRepository {
	return &LegalDocumentRepository{db: db}
}

// Create inserts an uploaded document record
func (r *LegalDocumentRepository) Create(ctx context.Context, doc *models.LegalDocument) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO legal_documents (
			id, filename, mime_type, size, storage_path, type, language,
			status, notes
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		doc.ID, doc.Filename, doc.MimeType, doc.Size, doc.StoragePath,
		doc.Type, doc.Language, doc.Status, doc.Notes,
	)
	return err
}

// GetByID retrieves a document by its id
func (r *LegalDocumentRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.LegalDocument, error) {
	doc := &models.LegalDocument{}
	err := r.db.QueryRow(ctx, `
		SELECT id, filename, mime_type, size, storage_path, type, language,
			status, notes, created_at, updated_at
		FROM legal_documents
		WHERE id = $1`, id).Scan(
		&doc.ID, &doc.Filename, &doc.MimeType, &doc.Size, &doc.StoragePath,
		&doc.Type, &doc.Language, &doc.Status, &doc.Notes,
		&doc.CreatedAt, &doc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// UpdateStatus writes a document status transition with an optional note
func (r *LegalDocumentRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status models.ProcessingStatus, note *string) error {
	_, err := r.db.Exec(ctx, `
		UPDATE legal_documents SET
			status = $2,
			notes = COALESCE($3, notes),
			updated_at = NOW()
		WHERE id = $1`, id, status, note)
	return err
}

// List retrieves documents, newest first
func (r *LegalDocumentRepository) List(ctx context.Context) ([]*models.LegalDocument, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, filename, mime_type, size, storage_path, type, language,
			status, notes, created_at, updated_at
		FROM legal_documents
		ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []*models.LegalDocument
	for rows.Next() {
		doc := &models.LegalDocument{}
		if err := rows.Scan(&doc.ID, &doc.Filename, &doc.MimeType, &doc.Size, &doc.StoragePath,
			&doc.Type, &doc.Language, &doc.Status, &doc.Notes,
			&doc.CreatedAt, &doc.UpdatedAt); err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// Delete removes a document record
func (r *LegalDocumentRepository) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.Exec(ctx, `DELETE FROM legal_documents WHERE id = $1`, id)
	return err
}
