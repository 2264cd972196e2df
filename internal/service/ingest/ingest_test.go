package ingest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ninalin0217/docsplit/config"
	"github.com/ninalin0217/docsplit/internal/apperr"
	"github.com/ninalin0217/docsplit/internal/markdown"
	"github.com/ninalin0217/docsplit/internal/models"
	"github.com/ninalin0217/docsplit/internal/planner"
	"github.com/ninalin0217/docsplit/internal/tracker"
	"github.com/ninalin0217/docsplit/pkg/logger"
	"github.com/ninalin0217/docsplit/pkg/queue"
	"github.com/ninalin0217/docsplit/pkg/storage"
)

// stubSplitter reports a fixed page count and fabricates one payload per
// range.
type stubSplitter struct {
	pages      int
	splitCalls int
}

func (s *stubSplitter) PageCount(data []byte) (int, error) {
	if s.pages <= 0 {
		return 0, fmt.Errorf("unreadable pdf")
	}
	return s.pages, nil
}

func (s *stubSplitter) Split(ctx context.Context, data []byte, ranges []models.PageRange) ([][]byte, error) {
	s.splitCalls++
	parts := make([][]byte, 0, len(ranges))
	for _, r := range ranges {
		parts = append(parts, []byte(fmt.Sprintf("pages %d-%d", r.Start, r.End)))
	}
	return parts, nil
}

type ingestFixture struct {
	storage  *storage.Memory
	tracker  *tracker.Memory
	markdown markdown.Store
	bus      *queue.Memory
	splitter *stubSplitter
	service  *IngestService
}

func newIngestFixture(pages int, cfg *config.PipelineConfig) *ingestFixture {
	if cfg == nil {
		cfg = config.DefaultPipelineConfig()
	}
	f := &ingestFixture{
		storage:  storage.NewMemory(),
		tracker:  tracker.NewMemory(),
		markdown: markdown.NewObjectStore(storage.NewMemory(), logger.NewTestLogger()),
		bus:      queue.NewMemory(),
		splitter: &stubSplitter{pages: pages},
	}
	f.service = NewService(
		f.storage, f.tracker, f.markdown, f.bus,
		planner.New(cfg.SplitThreshold, cfg.SplitSize),
		f.splitter, cfg, logger.NewTestLogger(),
	)
	return f
}

// upload builds a real multipart header so size and filename behave like
// a gin request.
func upload(t *testing.T, filename string, content []byte) (multipart.File, *multipart.FileHeader) {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest("POST", "/", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	require.NoError(t, req.ParseMultipartForm(32<<20))

	header := req.MultipartForm.File["file"][0]
	file, err := header.Open()
	require.NoError(t, err)
	return file, header
}

func TestProcessFileSplitsAndQueuesParts(t *testing.T) {
	f := newIngestFixture(65, nil)
	ctx := context.Background()

	file, header := upload(t, "report.pdf", []byte("%PDF-1.4 sixty-five pages"))
	receipt, err := f.service.ProcessFile(ctx, file, header, Options{Priority: 2})
	require.NoError(t, err)

	assert.Equal(t, 65, receipt.PageCount)
	assert.Equal(t, 4, receipt.TotalParts)
	assert.True(t, receipt.Split)
	assert.Equal(t, models.JobProcessing, receipt.Status)

	docID := receipt.DocumentID
	require.NotEmpty(t, docID)

	// Source plus four part objects.
	sourceKeys, err := f.storage.List(ctx, "uploads/")
	require.NoError(t, err)
	assert.Len(t, sourceKeys, 1)
	partKeys, err := f.storage.List(ctx, "pdf-parts/"+docID+"/")
	require.NoError(t, err)
	assert.Len(t, partKeys, 4)

	conversions := f.bus.Conversions()
	require.Len(t, conversions, 4)
	for i, c := range conversions {
		assert.Equal(t, docID, c.Request.DocumentID)
		assert.Equal(t, i, c.Request.PartIndex)
		assert.Equal(t, 4, c.Request.TotalParts)
		assert.Equal(t, models.PartObjectKey(docID, i), c.Request.PartKey)
		assert.Equal(t, 0, c.Request.RetryCount)
		assert.Equal(t, 3, c.Request.MaxRetries)
		assert.Zero(t, c.Delay)
	}

	manifest, err := f.markdown.GetManifest(ctx, docID)
	require.NoError(t, err)
	assert.Equal(t, 65, manifest.PageCount)
	require.Len(t, manifest.Parts, 4)
	assert.Equal(t, models.PageRange{Start: 1, End: 20}, manifest.Parts[0].PageRange)
	assert.Equal(t, models.PageRange{Start: 61, End: 65}, manifest.Parts[3].PageRange)

	status, err := f.tracker.JobStatus(ctx, docID)
	require.NoError(t, err)
	assert.Equal(t, models.JobProcessing, status)
}

func TestProcessFileSmallDocumentPassesThrough(t *testing.T) {
	f := newIngestFixture(10, nil)
	ctx := context.Background()

	source := []byte("%PDF-1.4 small")
	file, header := upload(t, "memo.pdf", source)
	receipt, err := f.service.ProcessFile(ctx, file, header, Options{})
	require.NoError(t, err)

	assert.Equal(t, 1, receipt.TotalParts)
	assert.False(t, receipt.Split)
	assert.Zero(t, f.splitter.splitCalls)

	// The single part is the untouched source document.
	reader, err := f.storage.Get(ctx, models.PartObjectKey(receipt.DocumentID, 0))
	require.NoError(t, err)
	defer reader.Close()
	data, err := io.ReadAll(reader)
	require.NoError(t, err)
	assert.Equal(t, source, data)

	manifest, err := f.markdown.GetManifest(ctx, receipt.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, models.PageRange{Start: 1, End: 10}, manifest.Parts[0].PageRange)
}

func TestProcessFilePerRequestOverrides(t *testing.T) {
	f := newIngestFixture(30, nil)
	ctx := context.Background()

	file, header := upload(t, "doc.pdf", []byte("%PDF-1.4"))
	receipt, err := f.service.ProcessFile(ctx, file, header, Options{SplitThreshold: 10, SplitSize: 10})
	require.NoError(t, err)
	assert.Equal(t, 3, receipt.TotalParts)
}

func TestProcessFileRejectsNonPDF(t *testing.T) {
	f := newIngestFixture(10, nil)

	file, header := upload(t, "notes.txt", []byte("plain text"))
	_, err := f.service.ProcessFile(context.Background(), file, header, Options{})
	assert.True(t, apperr.IsValidation(err))
	assert.Empty(t, f.bus.Conversions())
}

func TestProcessFileRejectsOversizedUpload(t *testing.T) {
	cfg := config.DefaultPipelineConfig()
	cfg.MaxUploadSize = 4
	f := newIngestFixture(10, cfg)

	file, header := upload(t, "big.pdf", []byte("%PDF-1.4 too large"))
	_, err := f.service.ProcessFile(context.Background(), file, header, Options{})
	assert.True(t, apperr.IsValidation(err))
}

func TestProcessFileRejectsUnreadablePDF(t *testing.T) {
	f := newIngestFixture(0, nil)

	file, header := upload(t, "broken.pdf", []byte("not a pdf"))
	_, err := f.service.ProcessFile(context.Background(), file, header, Options{})
	assert.True(t, apperr.IsValidation(err))
}

func TestStatusFallsBackToDurableRecord(t *testing.T) {
	f := newIngestFixture(10, nil)
	ctx := context.Background()

	require.NoError(t, f.markdown.UpdateStatus(ctx, "doc-done", models.JobCompleted, 100, ""))

	snapshot, err := f.service.Status(ctx, "doc-done")
	require.NoError(t, err)
	assert.Equal(t, models.JobCompleted, snapshot.Status)
	assert.Equal(t, 100.0, snapshot.PercentComplete)
}

func TestCancelDropsTrackingState(t *testing.T) {
	f := newIngestFixture(65, nil)
	ctx := context.Background()

	file, header := upload(t, "report.pdf", []byte("%PDF-1.4"))
	receipt, err := f.service.ProcessFile(ctx, file, header, Options{})
	require.NoError(t, err)

	require.NoError(t, f.service.Cancel(ctx, receipt.DocumentID))

	_, err = f.tracker.JobStatus(ctx, receipt.DocumentID)
	assert.ErrorIs(t, err, apperr.ErrJobNotFound)

	// The durable record keeps answering status queries.
	snapshot, err := f.service.Status(ctx, receipt.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, models.JobFailed, snapshot.Status)
	assert.Equal(t, "cancelled", snapshot.Error)
}

func TestCancelUnknownDocument(t *testing.T) {
	f := newIngestFixture(10, nil)

	err := f.service.Cancel(context.Background(), "doc-nowhere")
	assert.ErrorIs(t, err, apperr.ErrJobNotFound)
}

func TestStatusUnknownDocument(t *testing.T) {
	f := newIngestFixture(10, nil)

	_, err := f.service.Status(context.Background(), "doc-nowhere")
	assert.ErrorIs(t, err, apperr.ErrJobNotFound)
}
