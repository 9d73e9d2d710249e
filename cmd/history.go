package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/simon/sshmux/internal/state"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show the audit trail of past sessions and commands",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := state.Open()
		if err != nil {
			return fmt.Errorf("opening history: %w", err)
		}
		defer store.Close()

		limit, _ := cmd.Flags().GetInt("limit")
		commands, _ := cmd.Flags().GetBool("commands")

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		if commands {
			recs, err := store.RecentCommands(limit)
			if err != nil {
				return err
			}
			fmt.Fprintln(w, "SENT\tSESSION\tVERDICT\tCOMMAND")
			for _, r := range recs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
					r.SentAt.Format(time.DateTime), r.SessionID, r.Verdict, r.Command)
			}
			return w.Flush()
		}

		recs, err := store.RecentSessions(limit)
		if err != nil {
			return err
		}
		fmt.Fprintln(w, "OPENED\tID\tHOST\tTARGET\tCLOSED")
		for _, r := range recs {
			closed := "open"
			if !r.ClosedAt.IsZero() {
				closed = r.ClosedAt.Format(time.DateTime)
			}
			target := r.Hostname
			if r.User != "" {
				target = r.User + "@" + r.Hostname
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				r.OpenedAt.Format(time.DateTime), r.ID, r.Host, target, closed)
		}
		return w.Flush()
	},
}

func init() {
	historyCmd.Flags().IntP("limit", "l", 20, "Maximum entries to show")
	historyCmd.Flags().BoolP("commands", "c", false, "Show sent commands instead of sessions")
	rootCmd.AddCommand(historyCmd)
}
