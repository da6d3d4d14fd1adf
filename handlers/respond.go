package handlers

import (
	"errors"
	"net/http"

	"github.com/lawyeralthomali/legatoo-backend-sub004/service"

	"github.com/gin-gonic/gin"
)

// fail writes the standard error envelope
func fail(c *gin.Context, status int, code, message string) {
	c.JSON(status, gin.H{
		"success": false,
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	})
}

// failFromService maps pipeline errors onto HTTP statuses by their error
// code, falling back to 500 for anything outside the taxonomy
func failFromService(c *gin.Context, err error) {
	var coded service.Coded
	if !errors.As(err, &coded) {
		fail(c, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}
	status := http.StatusInternalServerError
	switch coded.Code() {
	case service.CodeHierarchyInvalid, service.CodeChunkingFailed:
		status = http.StatusUnprocessableEntity
	case service.CodeExtractionFailed:
		status = http.StatusUnprocessableEntity
	case service.CodeAlreadyProcessing, service.CodeIndexBusy:
		status = http.StatusConflict
	case service.CodeTimeout:
		status = http.StatusGatewayTimeout
	case service.CodeEmbeddingFailed:
		status = http.StatusBadGateway
	}
	fail(c, status, coded.Code(), coded.Error())
}
