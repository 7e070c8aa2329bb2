package dto

import "errors"

// Turn errors
var (
	ErrMissingThreadID = errors.New("thread ID is required")
	ErrEmptyMessage    = errors.New("message cannot be empty")
)
