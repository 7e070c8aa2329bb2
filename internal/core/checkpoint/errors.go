// Package checkpoint defines domain-specific errors
package checkpoint

import (
	"errors"
	"fmt"
)

// Domain errors - defined once, used by every backend
var (
	// Validation errors
	ErrInvalidThreadID = errors.New("invalid thread ID")
	ErrNilSnapshot     = errors.New("snapshot cannot be nil")
	ErrInvalidLimit    = errors.New("limit cannot be negative")
	ErrInvalidPageSize = errors.New("page size cannot be negative")

	// Store error kinds, matched with errors.Is against a *StoreError
	ErrSerializationFailed = errors.New("checkpoint serialization failed")
	ErrPersistenceFailed   = errors.New("checkpoint persistence failed")
)

// StoreErrorKind classifies a failed store operation.
type StoreErrorKind int

const (
	// SerializationFailed means encoding failed and storage was never touched
	SerializationFailed StoreErrorKind = iota + 1
	// PersistenceFailed means the storage operation failed and was rolled back
	PersistenceFailed
)

func (k StoreErrorKind) String() string {
	switch k {
	case SerializationFailed:
		return "serialization_failed"
	case PersistenceFailed:
		return "persistence_failed"
	default:
		return "unknown"
	}
}

// StoreError is returned by Saver operations that fail after validation.
type StoreError struct {
	Kind     StoreErrorKind
	ThreadID string
	Err      error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("checkpoint store: %s for thread %q: %v", e.Kind, e.ThreadID, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// Is lets errors.Is match a StoreError against the kind sentinels.
func (e *StoreError) Is(target error) bool {
	switch target {
	case ErrSerializationFailed:
		return e.Kind == SerializationFailed
	case ErrPersistenceFailed:
		return e.Kind == PersistenceFailed
	}
	return false
}

// Serialization wraps err as a SerializationFailed store error.
func Serialization(threadID string, err error) error {
	return &StoreError{Kind: SerializationFailed, ThreadID: threadID, Err: err}
}

// Persistence wraps err as a PersistenceFailed store error.
func Persistence(threadID string, err error) error {
	return &StoreError{Kind: PersistenceFailed, ThreadID: threadID, Err: err}
}

// KindOf returns the kind of a store error, or 0 when err is not one.
func KindOf(err error) StoreErrorKind {
	var se *StoreError
	if errors.As(err, &se) {
		return se.Kind
	}
	return 0
}

// CorruptRecordError reports a stored record whose blobs no longer decode.
type CorruptRecordError struct {
	RecordID string
	ThreadID string
	Err      error
}

func (e *CorruptRecordError) Error() string {
	return fmt.Sprintf("checkpoint record %s (thread %q) is corrupt: %v", e.RecordID, e.ThreadID, e.Err)
}

func (e *CorruptRecordError) Unwrap() error { return e.Err }
