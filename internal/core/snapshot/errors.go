package snapshot

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedValue is returned for values outside the JSON closure
	ErrUnsupportedValue = errors.New("value is not representable as structured data")
	// ErrMalformed is returned when a structured value has the wrong shape
	ErrMalformed = errors.New("malformed snapshot")
	// ErrUnknownRole is returned for message type tags the codec does not know
	ErrUnknownRole = errors.New("unknown message role")
	// ErrUnsupportedVersion is returned for snapshots written by a newer format
	ErrUnsupportedVersion = errors.New("unsupported snapshot format version")
	// ErrNilSnapshot is returned when encoding a nil snapshot
	ErrNilSnapshot = errors.New("snapshot cannot be nil")
)

// EncodingError reports a value that could not be converted to the
// structured form. Path locates the value inside the snapshot.
type EncodingError struct {
	Path string
	Err  error
}

func (e *EncodingError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("snapshot encoding failed: %v", e.Err)
	}
	return fmt.Sprintf("snapshot encoding failed at %s: %v", e.Path, e.Err)
}

func (e *EncodingError) Unwrap() error { return e.Err }

// DecodingError reports a persisted value that could not be turned back into
// a Snapshot or Metadata.
type DecodingError struct {
	Path string
	Err  error
}

func (e *DecodingError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("snapshot decoding failed: %v", e.Err)
	}
	return fmt.Sprintf("snapshot decoding failed at %s: %v", e.Path, e.Err)
}

func (e *DecodingError) Unwrap() error { return e.Err }

// pathError carries the location of a failure found while walking a value.
type pathError struct {
	path string
	err  error
}

func (e *pathError) Error() string { return e.path + ": " + e.err.Error() }

func (e *pathError) Unwrap() error { return e.err }

func encodingErr(err error) error {
	var pe *pathError
	if errors.As(err, &pe) {
		return &EncodingError{Path: pe.path, Err: pe.err}
	}
	return &EncodingError{Err: err}
}

func decodingErr(err error) error {
	var pe *pathError
	if errors.As(err, &pe) {
		return &DecodingError{Path: pe.path, Err: pe.err}
	}
	return &DecodingError{Err: err}
}
