// Package pdfsplit slices a source PDF into page-range parts.
package pdfsplit

import (
	"bytes"
	"context"
	"fmt"

	ledongthuc "github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/ninalin0217/docsplit/internal/models"
	"github.com/ninalin0217/docsplit/pkg/logger"
)

// Splitter reads and slices PDF bytes.
type Splitter interface {
	// PageCount returns the number of pages in the document.
	PageCount(data []byte) (int, error)

	// Split extracts one PDF per page range, in range order.
	Split(ctx context.Context, data []byte, ranges []models.PageRange) ([][]byte, error)
}

// PDFSplitter implements Splitter on pdfcpu.
type PDFSplitter struct {
	conf   *model.Configuration
	logger logger.Logger
}

func New(log logger.Logger) *PDFSplitter {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return &PDFSplitter{conf: conf, logger: log.Named("pdfsplit")}
}

func (s *PDFSplitter) PageCount(data []byte) (int, error) {
	reader, err := ledongthuc.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return 0, fmt.Errorf("failed to open pdf: %w", err)
	}
	count := reader.NumPage()
	if count <= 0 {
		return 0, fmt.Errorf("pdf has no pages")
	}
	return count, nil
}

func (s *PDFSplitter) Split(ctx context.Context, data []byte, ranges []models.PageRange) ([][]byte, error) {
	parts := make([][]byte, 0, len(ranges))
	for i, r := range ranges {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var out bytes.Buffer
		selection := []string{fmt.Sprintf("%d-%d", r.Start, r.End)}
		if err := api.Trim(bytes.NewReader(data), &out, selection, s.conf); err != nil {
			return nil, fmt.Errorf("failed to extract pages %d-%d for part %d: %w", r.Start, r.End, i, err)
		}
		parts = append(parts, out.Bytes())
	}
	return parts, nil
}
