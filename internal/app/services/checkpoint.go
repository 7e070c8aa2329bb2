package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/Fikei1151/nia/internal/core/checkpoint"
)

// ErrThreadNotFound is returned when a thread has no readable checkpoint.
var ErrThreadNotFound = errors.New("thread not found")

// CheckpointService gives operators read access to stored threads
// PRINCIPLES:
// - SRP: Read side of the checkpoint store, writes stay with the resumer
// - DIP: Depends on checkpoint.Saver abstraction
type CheckpointService struct {
	saver checkpoint.Saver
}

// NewCheckpointService creates a new checkpoint service
func NewCheckpointService(saver checkpoint.Saver) *CheckpointService {
	return &CheckpointService{
		saver: saver,
	}
}

// LoadThread returns the latest checkpoint of a thread
func (s *CheckpointService) LoadThread(ctx context.Context, threadID string) (*checkpoint.Tuple, error) {
	tuple, err := s.saver.GetLatest(ctx, threadID)
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoint: %w", err)
	}
	if tuple == nil {
		return nil, fmt.Errorf("%w: %q", ErrThreadNotFound, threadID)
	}
	return tuple, nil
}

// ListThreads collects the tuples matching filter. Corrupt records are
// handed to onCorrupt, when set, and enumeration continues past them.
func (s *CheckpointService) ListThreads(ctx context.Context, filter checkpoint.Filter, onCorrupt func(*checkpoint.CorruptRecordError)) ([]*checkpoint.Tuple, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	var tuples []*checkpoint.Tuple
	for tuple, err := range s.saver.List(ctx, filter) {
		var corrupt *checkpoint.CorruptRecordError
		if errors.As(err, &corrupt) {
			if onCorrupt != nil {
				onCorrupt(corrupt)
			}
			continue
		}
		if err != nil {
			return tuples, fmt.Errorf("failed to list checkpoints: %w", err)
		}
		tuples = append(tuples, tuple)
	}
	return tuples, nil
}
