package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ninalin0217/docsplit/internal/apperr"
	"github.com/ninalin0217/docsplit/internal/markdown"
	"github.com/ninalin0217/docsplit/internal/models"
	"github.com/ninalin0217/docsplit/internal/service/ingest"
	"github.com/ninalin0217/docsplit/pkg/logger"
)

// stubService cans responses for the handler tests.
type stubService struct {
	receipt  *ingest.Receipt
	snapshot *models.JobProgressSnapshot
	markdown string
	err      error
	lastOpts ingest.Options
}

func (s *stubService) ProcessFile(ctx context.Context, file multipart.File, header *multipart.FileHeader, opts ingest.Options) (*ingest.Receipt, error) {
	s.lastOpts = opts
	if s.err != nil {
		return nil, s.err
	}
	return s.receipt, nil
}

func (s *stubService) Status(ctx context.Context, documentID string) (*models.JobProgressSnapshot, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.snapshot, nil
}

func (s *stubService) Markdown(ctx context.Context, documentID string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return s.markdown, nil
}

func (s *stubService) Manifest(ctx context.Context, documentID string) (*models.DocumentManifest, error) {
	return nil, markdown.ErrNotFound
}

func (s *stubService) Cancel(ctx context.Context, documentID string) error {
	return s.err
}

func (s *stubService) CleanupExpired(ctx context.Context, retention time.Duration) error {
	return nil
}

func newRouter(service ingest.Service) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := NewDocumentHandler(service, logger.NewTestLogger())
	r.POST("/documents/process", h.ProcessDocument)
	r.GET("/documents/status/:documentId", h.GetStatus)
	r.GET("/documents/download/:documentId", h.DownloadMarkdown)
	return r
}

func multipartBody(t *testing.T, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, writer.Close())
	return &body, writer.FormDataContentType()
}

func TestProcessDocumentAccepted(t *testing.T) {
	service := &stubService{receipt: &ingest.Receipt{
		DocumentID: "doc-1",
		PageCount:  65,
		TotalParts: 4,
		Split:      true,
		Status:     models.JobProcessing,
	}}
	router := newRouter(service)

	body, contentType := multipartBody(t, "report.pdf", []byte("%PDF-1.4"))
	req := httptest.NewRequest("POST", "/documents/process?priority=1&splitSize=10", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusAccepted, w.Code)

	var got ingest.Receipt
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "doc-1", got.DocumentID)
	assert.Equal(t, 4, got.TotalParts)

	assert.Equal(t, 1, service.lastOpts.Priority)
	assert.Equal(t, 10, service.lastOpts.SplitSize)
	assert.Zero(t, service.lastOpts.SplitThreshold)
}

func TestProcessDocumentValidationFailureIsBadRequest(t *testing.T) {
	service := &stubService{err: &apperr.ValidationError{Field: "file", Reason: "unsupported type"}}
	router := newRouter(service)

	body, contentType := multipartBody(t, "notes.txt", []byte("text"))
	req := httptest.NewRequest("POST", "/documents/process", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestProcessDocumentMissingFile(t *testing.T) {
	router := newRouter(&stubService{})

	req := httptest.NewRequest("POST", "/documents/process", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetStatusOK(t *testing.T) {
	service := &stubService{snapshot: &models.JobProgressSnapshot{
		DocumentID:      "doc-1",
		Status:          models.JobProcessing,
		TotalParts:      4,
		CompletedParts:  []int{0, 1},
		PercentComplete: 50,
	}}
	router := newRouter(service)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/documents/status/doc-1", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var got models.JobProgressSnapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, models.JobProcessing, got.Status)
	assert.Equal(t, []int{0, 1}, got.CompletedParts)
}

func TestGetStatusUnknownDocumentIs404(t *testing.T) {
	router := newRouter(&stubService{err: apperr.ErrJobNotFound})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/documents/status/doc-x", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDownloadMarkdown(t *testing.T) {
	router := newRouter(&stubService{markdown: "# Part 0\n\n# Part 1"})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/documents/download/doc-1", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "# Part 0\n\n# Part 1", w.Body.String())
	assert.Contains(t, w.Header().Get("Content-Disposition"), "doc-1.md")
}

func TestDownloadMarkdownNotReadyIs404(t *testing.T) {
	router := newRouter(&stubService{err: markdown.ErrNotFound})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/documents/download/doc-1", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
}
