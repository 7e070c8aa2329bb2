package usecases

import (
	"context"

	"github.com/Fikei1151/nia/internal/core/snapshot"
)

// ChatModel produces the agent reply for a transcript
// PRINCIPLES:
// - SRP: Only responsible for text generation
// - DIP: Lets the resumer run against any provider or a test double
type ChatModel interface {
	// Generate returns the next message given the full transcript
	Generate(ctx context.Context, msgs []snapshot.Message) (snapshot.Message, error)
}

// ChatModelFunc adapts a plain function to ChatModel.
type ChatModelFunc func(ctx context.Context, msgs []snapshot.Message) (snapshot.Message, error)

// Generate calls f.
func (f ChatModelFunc) Generate(ctx context.Context, msgs []snapshot.Message) (snapshot.Message, error) {
	return f(ctx, msgs)
}
