package models

// Queue message payloads. All of them ride the task queue as JSON and
// must tolerate redelivery: consumers treat every message as
// at-least-once.

// PartConversionRequest asks the conversion collaborator to (re)generate
// markdown for one part. RetryCount counts storage-level failures for
// this part, not transport retries.
type PartConversionRequest struct {
	DocumentID string `json:"documentId"`
	PartIndex  int    `json:"partIndex"`
	TotalParts int    `json:"totalParts"`
	PartKey    string `json:"partKey"`
	Priority   int    `json:"priority"`
	RetryCount int    `json:"retryCount"`
	MaxRetries int    `json:"maxRetries"`
}

// PartStorageRequest carries one converted part's text to the storage
// worker.
type PartStorageRequest struct {
	DocumentID string `json:"documentId"`
	PartIndex  int    `json:"partIndex"`
	TotalParts int    `json:"totalParts"`
	Content    string `json:"content"`
	Priority   int    `json:"priority"`
	RetryCount int    `json:"retryCount"`
	MaxRetries int    `json:"maxRetries"`
}

// PartStorageProgress is a best-effort progress event.
type PartStorageProgress struct {
	DocumentID string  `json:"documentId"`
	PartIndex  int     `json:"partIndex"`
	TotalParts int     `json:"totalParts"`
	Percent    float64 `json:"percent"`
}

// PartStorageCompleted announces one part stored successfully.
type PartStorageCompleted struct {
	DocumentID string     `json:"documentId"`
	PartIndex  int        `json:"partIndex"`
	TotalParts int        `json:"totalParts"`
	Status     PartStatus `json:"status"`
}

// PartStorageFailed announces one part's storage failure and the retry
// decision taken for it.
type PartStorageFailed struct {
	DocumentID string     `json:"documentId"`
	PartIndex  int        `json:"partIndex"`
	TotalParts int        `json:"totalParts"`
	Status     PartStatus `json:"status"`
	Error      string     `json:"error"`
	RetryCount int        `json:"retryCount"`
	MaxRetries int        `json:"maxRetries"`
	CanRetry   bool       `json:"canRetry"`
}

// MergingRequest triggers reassembly of a fully-converted document.
// CompletedParts is the ascending list of part indices observed complete
// by the emitter; the coordinator re-checks it against TotalParts before
// doing any work.
type MergingRequest struct {
	DocumentID     string `json:"documentId"`
	TotalParts     int    `json:"totalParts"`
	CompletedParts []int  `json:"completedParts"`
}
