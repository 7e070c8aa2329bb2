package usecases

import (
	"errors"
	"fmt"
)

var (
	// ErrStoreNotConfigured is returned when a resumer is built without a saver
	ErrStoreNotConfigured = errors.New("checkpoint store is not configured")
	// ErrModelNotConfigured is returned when a resumer is built without a chat model
	ErrModelNotConfigured = errors.New("chat model is not configured")
)

// InitError reports a resumer that could not be constructed.
type InitError struct {
	Component string
	Err       error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("initialize %s: %v", e.Component, e.Err)
}

func (e *InitError) Unwrap() error { return e.Err }
