package handlers

import (
	"io"
	"net/http"

	"github.com/lawyeralthomali/legatoo-backend-sub004/models"
	"github.com/lawyeralthomali/legatoo-backend-sub004/repository"
	"github.com/lawyeralthomali/legatoo-backend-sub004/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// maxIngestPayload caps structured JSON ingestion bodies at 20MB
const maxIngestPayload = 20 << 20

// LawHandler handles HTTP requests for law source ingestion and lifecycle
type LawHandler struct {
	processing *service.ProcessingService
	lawRepo    *repository.LawSourceRepository
	chunkRepo  *repository.KnowledgeChunkRepository
	index      *service.IndexManager
}

// NewLawHandler creates a new law handler
func NewLawHandler(processing *service.ProcessingService, lawRepo *repository.LawSourceRepository, chunkRepo *repository.KnowledgeChunkRepository, index *service.IndexManager) *LawHandler {
	return &LawHandler{
		processing: processing,
		lawRepo:    lawRepo,
		chunkRepo:  chunkRepo,
		index:      index,
	}
}

// IngestJSON handles POST /api/laws/ingest. The body is a structured law
// export with a law_sources key holding one object or an array.
func (h *LawHandler) IngestJSON(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxIngestPayload))
	if err != nil {
		fail(c, http.StatusBadRequest, "INVALID_BODY", "failed to read request body")
		return
	}

	results, err := h.processing.ProcessLawSourceJSON(c.Request.Context(), payload)
	if err != nil {
		failFromService(c, err)
		return
	}

	data := make([]gin.H, len(results))
	for i, res := range results {
		data[i] = gin.H{
			"law_source_id":     res.Source.ID,
			"name":              res.Source.Name,
			"status":            res.Source.Status,
			"statistics":        res.Statistics,
			"processing_report": res.Report,
		}
	}
	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"data":    gin.H{"law_sources": data},
	})
}

// IngestText handles POST /api/laws/ingest-text: raw extracted text plus
// minimal metadata, promoted to a single-article law source
func (h *LawHandler) IngestText(c *gin.Context) {
	var req struct {
		LawName      string `json:"law_name" binding:"required"`
		LawType      string `json:"law_type"`
		Jurisdiction string `json:"jurisdiction"`
		Description  string `json:"description"`
		Text         string `json:"text" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "INVALID_BODY", "law_name and text are required")
		return
	}

	res, err := h.processing.ProcessFlatText(c.Request.Context(), service.FlatIngestRequest{
		LawName:      req.LawName,
		LawType:      req.LawType,
		Jurisdiction: req.Jurisdiction,
		Description:  req.Description,
		Text:         req.Text,
	})
	if err != nil {
		failFromService(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"data": gin.H{
			"law_source_id":     res.Source.ID,
			"name":              res.Source.Name,
			"status":            res.Source.Status,
			"statistics":        res.Statistics,
			"processing_report": res.Report,
		},
	})
}

// List handles GET /api/laws
func (h *LawHandler) List(c *gin.Context) {
	sources, err := h.lawRepo.List(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, "DATABASE_ERROR", err.Error())
		return
	}
	if sources == nil {
		sources = []*models.LawSource{}
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    gin.H{"law_sources": sources},
	})
}

// GetTree handles GET /api/laws/:id
func (h *LawHandler) GetTree(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		fail(c, http.StatusBadRequest, "INVALID_ID", "invalid law source id")
		return
	}
	source, err := h.lawRepo.GetTree(c.Request.Context(), id)
	if err != nil {
		fail(c, http.StatusNotFound, "NOT_FOUND", "law source not found")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    gin.H{"law_source": source},
	})
}

// GetStatus handles GET /api/laws/:id/status
func (h *LawHandler) GetStatus(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		fail(c, http.StatusBadRequest, "INVALID_ID", "invalid law source id")
		return
	}
	status, note, err := h.lawRepo.GetStatusNote(c.Request.Context(), id)
	if err != nil {
		fail(c, http.StatusNotFound, "NOT_FOUND", "law source not found")
		return
	}
	count, err := h.chunkRepo.CountByLawSource(c.Request.Context(), id)
	if err != nil {
		fail(c, http.StatusInternalServerError, "DATABASE_ERROR", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"law_source_id": id,
			"status":        status,
			"note":          note,
			"chunk_count":   count,
		},
	})
}

// Reindex handles POST /api/laws/:id/reindex. Chunks are replaced, never
// edited in place.
func (h *LawHandler) Reindex(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		fail(c, http.StatusBadRequest, "INVALID_ID", "invalid law source id")
		return
	}
	res, err := h.processing.ReindexSource(c.Request.Context(), id)
	if err != nil {
		failFromService(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"law_source_id":     res.Source.ID,
			"status":            res.Source.Status,
			"processing_report": res.Report,
		},
	})
}

// Delete handles DELETE /api/laws/:id. Chunks are evicted from the vector
// index before the database cascade removes their rows.
func (h *LawHandler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		fail(c, http.StatusBadRequest, "INVALID_ID", "invalid law source id")
		return
	}
	if _, err := h.lawRepo.GetByID(c.Request.Context(), id); err != nil {
		fail(c, http.StatusNotFound, "NOT_FOUND", "law source not found")
		return
	}

	chunkIDs, err := h.chunkRepo.DeleteByLawSource(c.Request.Context(), id)
	if err != nil {
		fail(c, http.StatusInternalServerError, "DATABASE_ERROR", err.Error())
		return
	}
	removed := make(map[uuid.UUID]bool, len(chunkIDs))
	for _, cid := range chunkIDs {
		removed[cid] = true
	}
	if err := h.index.RemoveByID(c.Request.Context(), removed); err != nil {
		failFromService(c, err)
		return
	}
	if err := h.lawRepo.Delete(c.Request.Context(), id); err != nil {
		fail(c, http.StatusInternalServerError, "DATABASE_ERROR", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"law_source_id":  id,
			"chunks_removed": len(chunkIDs),
		},
	})
}
