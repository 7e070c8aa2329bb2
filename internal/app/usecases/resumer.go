package usecases

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/Fikei1151/nia/internal/app/dto"
	"github.com/Fikei1151/nia/internal/core/checkpoint"
	"github.com/Fikei1151/nia/internal/core/snapshot"
	"github.com/Fikei1151/nia/internal/infrastructure/metrics"
)

// Metadata written with every turn checkpoint.
const (
	MetaSource = "source"
	MetaStep   = "step"
	MetaWrites = "writes"

	// SourceLoop marks a checkpoint written at the end of a regular turn
	SourceLoop = "loop"
)

// ResumerConfig wires the resumer dependencies
type ResumerConfig struct {
	Saver  checkpoint.Saver
	Model  ChatModel
	Logger *slog.Logger
	// Now overrides the clock used to stamp snapshots.
	Now func() time.Time
}

// Resumer runs one conversational turn per call: it loads the latest
// snapshot of the thread, extends it with the user's message and the model
// reply, and writes it back as the new current checkpoint.
// PRINCIPLES:
// - SRP: Orchestrates a turn, persistence stays behind checkpoint.Saver
// - DIP: Depends on the Saver and ChatModel abstractions
type Resumer struct {
	saver  checkpoint.Saver
	model  ChatModel
	logger *slog.Logger
	now    func() time.Time
}

// NewResumer validates the configuration and creates a resumer
func NewResumer(cfg ResumerConfig) (*Resumer, error) {
	if cfg.Saver == nil {
		return nil, &InitError{Component: "checkpoint store", Err: ErrStoreNotConfigured}
	}
	if cfg.Model == nil {
		return nil, &InitError{Component: "chat model", Err: ErrModelNotConfigured}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Resumer{saver: cfg.Saver, model: cfg.Model, logger: logger, now: now}, nil
}

// Turn resumes the thread named in req and records the new state. Model
// failures become an apology reply and are still checkpointed; store
// failures are returned.
func (r *Resumer) Turn(ctx context.Context, req dto.TurnRequest) (*dto.TurnResult, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid turn: %w", err)
	}
	metrics.IncTurns()

	latest, err := r.saver.GetLatest(ctx, req.ThreadID)
	if err != nil {
		metrics.IncTurnFailures()
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}

	snap := snapshot.New()
	step := 0
	if latest != nil && latest.Snapshot != nil {
		// A saver may hand out a tuple it still holds; the turn works on a copy.
		if snap, err = latest.Snapshot.Clone(); err != nil {
			metrics.IncTurnFailures()
			return nil, fmt.Errorf("copy checkpoint: %w", err)
		}
		step = stepOf(latest.Metadata)
	}

	snap.Append(snapshot.Message{
		Role:    snapshot.RoleHuman,
		Content: req.Message,
		ID:      uuid.NewString(),
	})

	reply, err := r.model.Generate(ctx, snap.Messages)
	if err != nil {
		r.logger.WarnContext(ctx, "chat model failed",
			slog.String("thread_id", req.ThreadID),
			slog.Any("error", err))
		reply = snapshot.Message{
			Role:    snapshot.RoleAgent,
			Content: fmt.Sprintf("Sorry, I encountered an error: %v", err),
		}
	}
	if reply.Role == "" {
		reply.Role = snapshot.RoleAgent
	}
	if reply.ID == "" {
		reply.ID = uuid.NewString()
	}
	snap.Append(reply)

	step++
	snap.ID = uuid.NewString()
	snap.CreatedAt = r.now().UTC()

	cfg := req.SessionConfig()
	ack, err := r.saver.Put(ctx, cfg, snap, turnMetadata(cfg, step, reply))
	if err != nil {
		metrics.IncTurnFailures()
		return nil, fmt.Errorf("save checkpoint: %w", err)
	}

	r.logger.DebugContext(ctx, "turn completed",
		slog.String("thread_id", req.ThreadID),
		slog.String("record_id", ack.RecordID),
		slog.Int("step", step),
		slog.Int("messages", len(snap.Messages)))

	return &dto.TurnResult{
		ThreadID: req.ThreadID,
		RecordID: ack.RecordID,
		Reply:    reply,
		Step:     step,
		Fresh:    latest == nil,
		Snapshot: snap,
	}, nil
}

func turnMetadata(cfg checkpoint.SessionConfig, step int, reply snapshot.Message) snapshot.Metadata {
	md := snapshot.Metadata{
		MetaSource: SourceLoop,
		MetaStep:   step,
		MetaWrites: map[string]any{
			"agent": map[string]any{
				"messages": []any{map[string]any{
					"type":    string(reply.Role),
					"content": reply.Content,
				}},
			},
		},
	}
	if cfg.Platform != "" {
		md[checkpoint.MetadataPlatform] = cfg.Platform
	}
	if cfg.UserID != "" {
		md[checkpoint.MetadataUserID] = cfg.UserID
	}
	if cfg.ProjectID != "" {
		md[checkpoint.MetadataProjectID] = cfg.ProjectID
	}
	return md
}

// stepOf reads the step counter from stored metadata. Decoded metadata holds
// numbers as float64.
func stepOf(md snapshot.Metadata) int {
	switch v := md[MetaStep].(type) {
	case float64:
		if v >= 0 && v == math.Trunc(v) {
			return int(v)
		}
	case int:
		return v
	}
	return 0
}
