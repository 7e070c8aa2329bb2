package services

import (
	"context"
	"errors"
	"log/slog"

	"github.com/Fikei1151/nia/internal/app/dto"
	"github.com/Fikei1151/nia/internal/app/usecases"
	"github.com/Fikei1151/nia/internal/core/snapshot"
)

// Replies returned instead of an error to chat clients.
const (
	ReplyUnavailable = "I cannot process your request right now. Please check the server configuration."
	ReplyFailed      = "Sorry, I encountered an error while processing your request."
)

// TurnRunner executes one conversational turn
type TurnRunner interface {
	Turn(ctx context.Context, req dto.TurnRequest) (*dto.TurnResult, error)
}

// RunnerFactory returns the turn runner, building it on first use.
type RunnerFactory func() (TurnRunner, error)

// ResumerFactory adapts a resumer constructor to a RunnerFactory.
func ResumerFactory(build func() (*usecases.Resumer, error)) RunnerFactory {
	return func() (TurnRunner, error) {
		r, err := build()
		if err != nil {
			return nil, err
		}
		return r, nil
	}
}

// ChatService turns chat requests into a plain reply string
// PRINCIPLES:
// - SRP: Maps turn outcomes to user facing replies
// - DIP: Depends on the TurnRunner abstraction
type ChatService struct {
	runner RunnerFactory
	logger *slog.Logger
}

// NewChatService creates a new chat service
func NewChatService(runner RunnerFactory, logger *slog.Logger) *ChatService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChatService{runner: runner, logger: logger}
}

// Process runs a turn on threadID and returns the reply text. Failures are
// logged and replaced by a fixed apology.
func (s *ChatService) Process(ctx context.Context, threadID string, req dto.ChatRequest) string {
	if s.runner == nil {
		s.logger.ErrorContext(ctx, "chat runner is not configured")
		return ReplyUnavailable
	}
	runner, err := s.runner()
	if err != nil {
		s.logger.ErrorContext(ctx, "chat runner unavailable", slog.Any("error", err))
		return ReplyUnavailable
	}

	res, err := runner.Turn(ctx, req.WithDefaults().Turn(threadID))
	if err != nil {
		attrs := []any{slog.String("thread_id", threadID), slog.Any("error", err)}
		var initErr *usecases.InitError
		if errors.As(err, &initErr) {
			s.logger.ErrorContext(ctx, "chat runner unavailable", attrs...)
			return ReplyUnavailable
		}
		s.logger.ErrorContext(ctx, "chat turn failed", attrs...)
		return ReplyFailed
	}

	if res.Reply.Role == snapshot.RoleAgent || res.Snapshot == nil {
		return res.Reply.Content
	}
	last, _ := res.Snapshot.Last()
	return last.Content
}
