// Package snapshot defines the execution state persisted for a conversation
// thread and the codec that maps it to and from a JSON-equivalent structure.
package snapshot

import "time"

// Role tags who produced a message.
type Role string

const (
	// RoleHuman marks a message written by the end user
	RoleHuman Role = "human"
	// RoleAgent marks a message produced by the agent
	RoleAgent Role = "agent"
	// RoleSystem marks an instruction message
	RoleSystem Role = "system"
	// RoleTool marks the output of a tool call
	RoleTool Role = "tool"
)

// Valid reports whether r is one of the known role tags.
func (r Role) Valid() bool {
	switch r {
	case RoleHuman, RoleAgent, RoleSystem, RoleTool:
		return true
	}
	return false
}

// Metadata is a free-form map of structured values.
type Metadata map[string]any

// Message is a single record in the conversation transcript.
type Message struct {
	Role    Role
	Content string
	ID      string
	Name    string
	// Fields carries optional structured attributes (tool call arguments,
	// provider specific data). Values must stay inside the JSON closure.
	Fields map[string]any
}

// Snapshot is the complete execution state of a thread at its latest turn.
type Snapshot struct {
	ID        string
	CreatedAt time.Time
	Messages  []Message
	Metadata  Metadata
}

// New returns an empty snapshot.
func New() *Snapshot {
	return &Snapshot{}
}

// Append adds messages to the end of the transcript.
func (s *Snapshot) Append(msgs ...Message) {
	s.Messages = append(s.Messages, msgs...)
}

// Last returns the final message and false when the transcript is empty.
func (s *Snapshot) Last() (Message, bool) {
	if s == nil || len(s.Messages) == 0 {
		return Message{}, false
	}
	return s.Messages[len(s.Messages)-1], true
}

// Clone returns a deep copy of the snapshot. Structured values are copied
// through the canonical form, so the clone never shares maps or slices with s.
func (s *Snapshot) Clone() (*Snapshot, error) {
	if s == nil {
		return nil, nil
	}
	enc, err := Encode(s)
	if err != nil {
		return nil, err
	}
	return Decode(enc)
}
