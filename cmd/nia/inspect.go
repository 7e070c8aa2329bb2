package main

import (
	"encoding/json"
	"time"

	"github.com/spf13/cobra"

	"github.com/Fikei1151/nia/internal/app/services"
	"github.com/Fikei1151/nia/internal/core/checkpoint"
	"github.com/Fikei1151/nia/internal/core/snapshot"
	"github.com/Fikei1151/nia/pkg/validation"
)

// tupleView is the JSON rendering of a stored tuple.
type tupleView struct {
	ID        string                   `json:"id"`
	Config    checkpoint.SessionConfig `json:"config"`
	Snapshot  map[string]any           `json:"checkpoint"`
	Metadata  snapshot.Metadata        `json:"metadata,omitempty"`
	CreatedAt time.Time                `json:"created_at"`
	UpdatedAt time.Time                `json:"updated_at"`
}

func newTupleView(t *checkpoint.Tuple) (*tupleView, error) {
	enc, err := snapshot.Encode(t.Snapshot)
	if err != nil {
		return nil, err
	}
	return &tupleView{
		ID:        t.ID,
		Config:    t.Config,
		Snapshot:  enc,
		Metadata:  t.Metadata,
		CreatedAt: t.CreatedAt,
		UpdatedAt: t.UpdatedAt,
	}, nil
}

// inspectOptions are the inspect flags
type inspectOptions struct {
	Role string `json:"role" validate:"omitempty,role"`
}

// onlyRole keeps the messages sent under role.
func onlyRole(s *snapshot.Snapshot, role snapshot.Role) {
	kept := s.Messages[:0]
	for _, m := range s.Messages {
		if m.Role == role {
			kept = append(kept, m)
		}
	}
	s.Messages = kept
}

func newInspectCmd() *cobra.Command {
	var opts inspectOptions

	cmd := &cobra.Command{
		Use:   "inspect <thread-id>",
		Short: "Print the latest checkpoint of a thread as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validation.ValidateStruct(opts); err != nil {
				return err
			}
			store, err := openStore(cmd, false)
			if err != nil {
				return err
			}
			defer store.Close()

			tuple, err := services.NewCheckpointService(store).LoadThread(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if opts.Role != "" {
				onlyRole(tuple.Snapshot, snapshot.Role(opts.Role))
			}
			view, err := newTupleView(tuple)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(view)
		},
	}

	cmd.Flags().StringVar(&opts.Role, "role", "", "Only print messages with this role (human, agent, system, tool)")
	return cmd
}
