package handlers

import (
	"github.com/ninalin0217/docsplit/internal/service/ingest"
	"github.com/ninalin0217/docsplit/pkg/logger"
)

type Handlers struct {
	Document *DocumentHandler
}

func NewHandlers(ingestService ingest.Service, log logger.Logger) *Handlers {
	return &Handlers{
		Document: NewDocumentHandler(ingestService, log),
	}
}
