package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/lawyeralthomali/legatoo-backend-sub004/arabic"
	"github.com/lawyeralthomali/legatoo-backend-sub004/models"
	"github.com/lawyeralthomali/legatoo-backend-sub004/repository"
	"github.com/lawyeralthomali/legatoo-backend-sub004/service"
	"github.com/lawyeralthomali/legatoo-backend-sub004/storage"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// DocumentHandler handles HTTP requests for uploaded legal documents
type DocumentHandler struct {
	docRepo     *repository.LegalDocumentRepository
	storage     storage.Storage
	processing  *service.ProcessingService
	maxFileSize int64
	allowedMime map[string]bool
}

// NewDocumentHandler creates a new document handler
func NewDocumentHandler(docRepo *repository.LegalDocumentRepository, store storage.Storage, processing *service.ProcessingService) *DocumentHandler {
	return &DocumentHandler{
		docRepo:     docRepo,
		storage:     store,
		processing:  processing,
		maxFileSize: 50 * 1024 * 1024, // scanned Arabic codes run large
		allowedMime: map[string]bool{
			"application/pdf": true,
			"text/plain":      true,
		},
	}
}

// Upload handles POST /api/documents/upload. The document lands in status
// raw; processing is a separate, explicit step.
func (h *DocumentHandler) Upload(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		fail(c, http.StatusBadRequest, "MISSING_FILE", "file is required")
		return
	}
	if fileHeader.Size > h.maxFileSize {
		fail(c, http.StatusBadRequest, "FILE_TOO_LARGE",
			fmt.Sprintf("file size exceeds maximum of %d bytes", h.maxFileSize))
		return
	}

	mimeType := fileHeader.Header.Get("Content-Type")
	if mimeType == "" {
		lower := strings.ToLower(fileHeader.Filename)
		switch {
		case strings.HasSuffix(lower, ".pdf"):
			mimeType = "application/pdf"
		case strings.HasSuffix(lower, ".txt"):
			mimeType = "text/plain"
		default:
			mimeType = "application/octet-stream"
		}
	}
	if !h.allowedMime[mimeType] && !strings.HasPrefix(mimeType, "text/") {
		fail(c, http.StatusBadRequest, "INVALID_FILE_TYPE", "file type not allowed; allowed types: PDF, TXT")
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		fail(c, http.StatusInternalServerError, "FILE_OPEN_ERROR", err.Error())
		return
	}
	defer file.Close()

	docID := uuid.New()
	storagePath, err := h.storage.Upload(c.Request.Context(), docID, fileHeader.Filename, file)
	if err != nil {
		fail(c, http.StatusInternalServerError, "UPLOAD_FAILED", fmt.Sprintf("failed to upload file: %v", err))
		return
	}

	// queue=true marks the upload as already waiting for parsing, so a
	// batch uploader can distinguish queued work from untouched files
	status := models.StatusRaw
	if c.DefaultPostForm("queue", "false") == "true" {
		status = models.StatusPendingParsing
	}

	doc := &models.LegalDocument{
		ID:          docID,
		Filename:    fileHeader.Filename,
		MimeType:    mimeType,
		Size:        fileHeader.Size,
		StoragePath: storagePath,
		Type:        c.DefaultPostForm("type", "law"),
		Language:    c.DefaultPostForm("language", "ar"),
		Status:      status,
	}
	if err := h.docRepo.Create(c.Request.Context(), doc); err != nil {
		h.storage.Delete(c.Request.Context(), storagePath)
		fail(c, http.StatusInternalServerError, "DATABASE_ERROR", fmt.Sprintf("failed to save document record: %v", err))
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"data": gin.H{
			"id":         doc.ID,
			"filename":   doc.Filename,
			"mime_type":  doc.MimeType,
			"size":       doc.Size,
			"status":     doc.Status,
			"created_at": doc.CreatedAt,
		},
	})
}

// Get handles GET /api/documents/:id
func (h *DocumentHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		fail(c, http.StatusBadRequest, "INVALID_ID", "invalid document id")
		return
	}
	doc, err := h.docRepo.GetByID(c.Request.Context(), id)
	if err != nil {
		fail(c, http.StatusNotFound, "NOT_FOUND", "document not found")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    gin.H{"document": doc},
	})
}

// List handles GET /api/documents
func (h *DocumentHandler) List(c *gin.Context) {
	docs, err := h.docRepo.List(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, "DATABASE_ERROR", err.Error())
		return
	}
	if docs == nil {
		docs = []*models.LegalDocument{}
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    gin.H{"documents": docs},
	})
}

// Process handles POST /api/documents/:id/process: extract text, build the
// law source and push it through chunking, embedding and indexing. A second
// request while one is running gets ALREADY_PROCESSING.
func (h *DocumentHandler) Process(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		fail(c, http.StatusBadRequest, "INVALID_ID", "invalid document id")
		return
	}

	var req struct {
		LawName        string `json:"law_name"`
		LawType        string `json:"law_type"`
		Jurisdiction   string `json:"jurisdiction"`
		Description    string `json:"description"`
		ForceOCRRepair bool   `json:"force_ocr_repair"`
	}
	// the body is optional; defaults come from the document record
	c.ShouldBindJSON(&req)

	meta := service.FlatIngestRequest{
		LawName:      req.LawName,
		LawType:      req.LawType,
		Jurisdiction: req.Jurisdiction,
		Description:  req.Description,
	}
	if req.ForceOCRRepair {
		meta.TextSource = arabic.SourceOCR
	}

	res, err := h.processing.ProcessDocument(c.Request.Context(), id, meta)
	if err != nil {
		failFromService(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"document_id":       id,
			"law_source_id":     res.Source.ID,
			"status":            res.Source.Status,
			"statistics":        res.Statistics,
			"processing_report": res.Report,
		},
	})
}

// Delete handles DELETE /api/documents/:id. The stored file goes first; a
// dangling record is recoverable, an orphaned blob is not.
func (h *DocumentHandler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		fail(c, http.StatusBadRequest, "INVALID_ID", "invalid document id")
		return
	}
	doc, err := h.docRepo.GetByID(c.Request.Context(), id)
	if err != nil {
		fail(c, http.StatusNotFound, "NOT_FOUND", "document not found")
		return
	}
	if err := h.storage.Delete(c.Request.Context(), doc.StoragePath); err != nil {
		fail(c, http.StatusInternalServerError, "DELETE_FAILED", fmt.Sprintf("failed to delete stored file: %v", err))
		return
	}
	if err := h.docRepo.Delete(c.Request.Context(), id); err != nil {
		fail(c, http.StatusInternalServerError, "DATABASE_ERROR", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    gin.H{"id": id},
	})
}

// Download handles GET /api/documents/:id/download
func (h *DocumentHandler) Download(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		fail(c, http.StatusBadRequest, "INVALID_ID", "invalid document id")
		return
	}
	doc, err := h.docRepo.GetByID(c.Request.Context(), id)
	if err != nil {
		fail(c, http.StatusNotFound, "NOT_FOUND", "document not found")
		return
	}
	reader, err := h.storage.Download(c.Request.Context(), doc.StoragePath)
	if err != nil {
		fail(c, http.StatusInternalServerError, "DOWNLOAD_FAILED", fmt.Sprintf("failed to download document: %v", err))
		return
	}
	defer reader.Close()

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", doc.Filename))
	c.DataFromReader(http.StatusOK, doc.Size, doc.MimeType, reader, nil)
}
