package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/Fikei1151/nia/internal/app/services"
	"github.com/Fikei1151/nia/internal/core/checkpoint"
)

func newListCmd() *cobra.Command {
	var filter checkpoint.Filter
	var before string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored threads, most recently updated first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if before != "" {
				t, err := time.Parse(time.RFC3339, before)
				if err != nil {
					return fmt.Errorf("invalid --before: %w", err)
				}
				filter.Before = &t
			}
			store, err := openStore(cmd, false)
			if err != nil {
				return err
			}
			defer store.Close()

			tuples, err := services.NewCheckpointService(store).ListThreads(cmd.Context(), filter, func(e *checkpoint.CorruptRecordError) {
				fmt.Fprintf(cmd.ErrOrStderr(), "skipping %v\n", e)
			})
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "THREAD\tPLATFORM\tUSER\tPROJECT\tMESSAGES\tUPDATED")
			for _, tuple := range tuples {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\n",
					tuple.Config.ThreadID,
					tuple.Config.Platform,
					dash(tuple.Config.UserID),
					dash(tuple.Config.ProjectID),
					len(tuple.Snapshot.Messages),
					tuple.UpdatedAt.Format(time.RFC3339))
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVar(&filter.ThreadID, "thread", "", "Only show this thread")
	cmd.Flags().StringVar(&filter.Platform, "platform", "", "Filter by platform")
	cmd.Flags().StringVar(&filter.UserID, "user", "", "Filter by user id")
	cmd.Flags().StringVar(&filter.ProjectID, "project", "", "Filter by project id")
	cmd.Flags().IntVar(&filter.Limit, "limit", 20, "Maximum number of records (0 for all)")
	cmd.Flags().StringVar(&before, "before", "", "Only records updated before this RFC 3339 time")
	return cmd
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
