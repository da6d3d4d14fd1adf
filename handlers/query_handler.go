package handlers

import (
	"net/http"

	"github.com/lawyeralthomali/legatoo-backend-sub004/service"

	"github.com/gin-gonic/gin"
)

// QueryHandler handles HTTP requests for semantic search
type QueryHandler struct {
	retrieval *service.RetrievalService
}

// NewQueryHandler creates a new query handler
func NewQueryHandler(retrieval *service.RetrievalService) *QueryHandler {
	return &QueryHandler{retrieval: retrieval}
}

// Query handles POST /api/search/query. An empty index or a query with no
// matches above the threshold is a successful response with zero results.
func (h *QueryHandler) Query(c *gin.Context) {
	var req service.QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "INVALID_BODY", "request body must be JSON with a query field")
		return
	}
	if req.Query == "" {
		fail(c, http.StatusBadRequest, "MISSING_QUERY", "query must not be empty")
		return
	}
	if req.TopK < 0 || req.TopK > 100 {
		fail(c, http.StatusBadRequest, "INVALID_TOP_K", "top_k must be between 1 and 100")
		return
	}

	result, err := h.retrieval.Query(c.Request.Context(), req)
	if err != nil {
		failFromService(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    result,
	})
}
