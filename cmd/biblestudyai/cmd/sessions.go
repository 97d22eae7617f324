package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

// newSessionsCmd creates the sessions command group.
func newSessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Manage conversation sessions",
	}

	cmd.AddCommand(newSessionsListCmd())
	cmd.AddCommand(newSessionsPurgeCmd())

	return cmd
}

func newSessionsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored sessions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			a, err := buildApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			sessions, err := a.storage.ListSessions(ctx)
			if err != nil {
				return err
			}
			if len(sessions) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No sessions.")
				return nil
			}

			now := time.Now()
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tUPDATED\tEXPIRES\tSTATE")
			for _, s := range sessions {
				state := "active"
				if !s.Active(now) {
					state = "expired"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
					s.ID,
					s.UpdatedAt.Local().Format(time.DateTime),
					s.ExpiresAt.Local().Format(time.DateTime),
					state)
			}
			return w.Flush()
		},
	}
}

func newSessionsPurgeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "purge",
		Short: "Delete expired sessions and their messages",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			a, err := buildApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			purged, err := a.sessions.CollectGarbage(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Purged %d expired session(s).\n", purged)
			return nil
		},
	}
}
