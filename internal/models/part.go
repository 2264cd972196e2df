package models

import (
	"fmt"
	"time"
)

// PartStatus is the lifecycle state of a single document part.
type PartStatus string

const (
	PartPending    PartStatus = "pending"
	PartProcessing PartStatus = "processing"
	PartCompleted  PartStatus = "completed"
	PartFailed     PartStatus = "failed"
)

// JobStatus is the aggregate state of a conversion job.
type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobSplitting  JobStatus = "splitting"
	JobProcessing JobStatus = "processing"
	JobMerging    JobStatus = "merging"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

// PageRange is a contiguous 1-based inclusive page span.
type PageRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Pages returns the number of pages covered by the range.
func (r PageRange) Pages() int { return r.End - r.Start + 1 }

// DocumentPart records one page-range slice of a source document.
// Part indices are 0-based and dense: exactly 0..totalParts-1 per
// document.
type DocumentPart struct {
	DocumentID string     `json:"documentId"`
	PartIndex  int        `json:"partIndex"`
	PageRange  PageRange  `json:"pageRange"`
	Status     PartStatus `json:"status"`
	RetryCount int        `json:"retryCount"`
	MaxRetries int        `json:"maxRetries"`
	LastError  string     `json:"lastError,omitempty"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

// PartEntry is a part's cached content together with its status, as
// returned by the content cache in ascending index order.
type PartEntry struct {
	PartIndex int        `json:"partIndex"`
	Content   string     `json:"content"`
	Status    PartStatus `json:"status"`
	StoredAt  time.Time  `json:"storedAt"`
}

// JobProgressSnapshot is a read-only projection of a job's progress.
type JobProgressSnapshot struct {
	DocumentID      string         `json:"documentId"`
	Status          JobStatus      `json:"status"`
	TotalParts      int            `json:"totalParts"`
	CompletedParts  []int          `json:"completedParts"`
	FailedParts     []int          `json:"failedParts"`
	Parts           []DocumentPart `json:"parts,omitempty"`
	PercentComplete float64        `json:"percentComplete"`
	Error           string         `json:"error,omitempty"`
}

// PartObjectKey is the object-storage key of one split part PDF. Ingest
// writes it, conversion reads it, and the retry path rebuilds it.
func PartObjectKey(documentID string, partIndex int) string {
	return fmt.Sprintf("pdf-parts/%s/part_%d.pdf", documentID, partIndex)
}

// SourceObjectKey is the object-storage key of the ingested source PDF.
func SourceObjectKey(documentID string) string {
	return "uploads/" + documentID + ".pdf"
}

// ManifestPart describes one split part of an ingested document.
type ManifestPart struct {
	PartIndex int       `json:"partIndex"`
	PageRange PageRange `json:"pageRange"`
	ObjectKey string    `json:"objectKey"`
}

// DocumentManifest is written once per ingested document and records how
// the source was partitioned.
type DocumentManifest struct {
	DocumentID string         `json:"documentId"`
	SourceKey  string         `json:"sourceKey"`
	Filename   string         `json:"filename"`
	PageCount  int            `json:"pageCount"`
	TotalParts int            `json:"totalParts"`
	Parts      []ManifestPart `json:"parts"`
	CreatedAt  time.Time      `json:"createdAt"`
}
