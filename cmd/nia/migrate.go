package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the database, checkpoint table and indexes when missing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := openStore(cmd, true)
			if err != nil {
				return err
			}
			defer store.Close()

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s checkpoint store is ready\n", store.Backend)
			return err
		},
	}
}
