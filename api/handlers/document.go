package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/ninalin0217/docsplit/internal/apperr"
	"github.com/ninalin0217/docsplit/internal/markdown"
	"github.com/ninalin0217/docsplit/internal/service/ingest"
	"github.com/ninalin0217/docsplit/pkg/logger"
)

type DocumentHandler struct {
	service ingest.Service
	logger  logger.Logger
}

type ErrorResponse struct {
	Error   string `json:"error,omitempty"`
	Message string `json:"message"`
}

func NewDocumentHandler(service ingest.Service, log logger.Logger) *DocumentHandler {
	return &DocumentHandler{
		service: service,
		logger:  log.Named("api"),
	}
}

// ProcessDocument accepts one PDF upload and queues it for conversion.
func (h *DocumentHandler) ProcessDocument(c *gin.Context) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		h.handleError(c, http.StatusBadRequest, "Invalid file upload", err)
		return
	}
	defer file.Close()

	opts := ingest.Options{
		Priority:       intQuery(c, "priority", 2),
		SplitThreshold: intQuery(c, "splitThreshold", 0),
		SplitSize:      intQuery(c, "splitSize", 0),
	}

	receipt, err := h.service.ProcessFile(c.Request.Context(), file, header, opts)
	if err != nil {
		if apperr.IsValidation(err) {
			h.handleError(c, http.StatusBadRequest, "Rejected upload", err)
			return
		}
		h.handleError(c, http.StatusInternalServerError, "Failed to process file", err)
		return
	}

	c.JSON(http.StatusAccepted, receipt)
}

// GetStatus reports job progress for one document.
func (h *DocumentHandler) GetStatus(c *gin.Context) {
	documentID := c.Param("documentId")
	if documentID == "" {
		h.handleError(c, http.StatusBadRequest, "Document ID is required", nil)
		return
	}

	snapshot, err := h.service.Status(c.Request.Context(), documentID)
	if err != nil {
		if errors.Is(err, apperr.ErrJobNotFound) {
			h.handleError(c, http.StatusNotFound, "Unknown document", err)
			return
		}
		h.handleError(c, http.StatusInternalServerError, "Failed to get status", err)
		return
	}

	c.JSON(http.StatusOK, snapshot)
}

// DownloadMarkdown serves the final merged document.
func (h *DocumentHandler) DownloadMarkdown(c *gin.Context) {
	documentID := c.Param("documentId")
	if documentID == "" {
		h.handleError(c, http.StatusBadRequest, "Document ID is required", nil)
		return
	}

	text, err := h.service.Markdown(c.Request.Context(), documentID)
	if err != nil {
		if errors.Is(err, markdown.ErrNotFound) {
			h.handleError(c, http.StatusNotFound, "Document not ready", err)
			return
		}
		h.handleError(c, http.StatusInternalServerError, "Failed to get document", err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s.md", documentID))
	c.Data(http.StatusOK, "text/markdown; charset=utf-8", []byte(text))
}

// GetManifest reports how the document was partitioned.
func (h *DocumentHandler) GetManifest(c *gin.Context) {
	documentID := c.Param("documentId")
	if documentID == "" {
		h.handleError(c, http.StatusBadRequest, "Document ID is required", nil)
		return
	}

	manifest, err := h.service.Manifest(c.Request.Context(), documentID)
	if err != nil {
		if errors.Is(err, markdown.ErrNotFound) {
			h.handleError(c, http.StatusNotFound, "Unknown document", err)
			return
		}
		h.handleError(c, http.StatusInternalServerError, "Failed to get manifest", err)
		return
	}

	c.JSON(http.StatusOK, manifest)
}

// CancelDocument abandons an in-flight job.
func (h *DocumentHandler) CancelDocument(c *gin.Context) {
	documentID := c.Param("documentId")
	if documentID == "" {
		h.handleError(c, http.StatusBadRequest, "Document ID is required", nil)
		return
	}

	if err := h.service.Cancel(c.Request.Context(), documentID); err != nil {
		switch {
		case errors.Is(err, apperr.ErrJobNotFound):
			h.handleError(c, http.StatusNotFound, "Unknown document", err)
		case apperr.IsValidation(err):
			h.handleError(c, http.StatusConflict, "Job already finished", err)
		default:
			h.handleError(c, http.StatusInternalServerError, "Failed to cancel job", err)
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":    "Job cancelled",
		"documentId": documentID,
	})
}

func (h *DocumentHandler) handleError(c *gin.Context, status int, message string, err error) {
	h.logger.Error(message,
		logger.String("path", c.Request.URL.Path),
		logger.Error(err),
	)

	response := ErrorResponse{Message: message}
	if err != nil {
		response.Error = err.Error()
	}
	c.JSON(status, response)
}

func intQuery(c *gin.Context, name string, fallback int) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed < 0 {
		return fallback
	}
	return parsed
}
