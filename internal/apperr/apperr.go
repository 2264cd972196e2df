// Package apperr defines the error taxonomy shared by the split/merge
// pipeline: validation failures, cache and tracker store failures, merge
// preconditions, and final persistence failures. Workers decide retry and
// notification behavior by inspecting these types with errors.As.
package apperr

import (
	"errors"
	"fmt"
)

// ErrJobNotFound is returned by the tracker when a document has no job
// state, typically after cleanup.
var ErrJobNotFound = errors.New("job not found")

// ValidationError reports malformed input: empty document id, negative
// part index, or blank content.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Reason)
}

// StorageError wraps a part-content cache failure.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("content cache %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// TrackerError wraps a part-tracker state store failure.
type TrackerError struct {
	Op  string
	Err error
}

func (e *TrackerError) Error() string {
	return fmt.Sprintf("tracker %s: %v", e.Op, e.Err)
}

func (e *TrackerError) Unwrap() error { return e.Err }

// JobInconsistencyError signals a re-initialization with a different part
// count for the same document, the symptom of a corrupted or duplicated
// job.
type JobInconsistencyError struct {
	DocumentID string
	Have       int
	Want       int
}

func (e *JobInconsistencyError) Error() string {
	return fmt.Sprintf("job %s already initialized with %d parts, got %d",
		e.DocumentID, e.Have, e.Want)
}

// MergeError reports a part missing at merge time. It aborts the current
// merge attempt only; it never fails the job by itself.
type MergeError struct {
	DocumentID   string
	MissingIndex int
}

func (e *MergeError) Error() string {
	return fmt.Sprintf("merge of %s: part %d missing", e.DocumentID, e.MissingIndex)
}

// PersistenceError wraps a failure to save the final document to the
// metadata store. Terminal for the job.
type PersistenceError struct {
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist final document: %v", e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// IsValidation reports whether err is, or wraps, a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsMerge reports whether err is, or wraps, a MergeError.
func IsMerge(err error) bool {
	var me *MergeError
	return errors.As(err, &me)
}
