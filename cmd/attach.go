package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var attachCmd = &cobra.Command{
	Use:   "attach <session-id>",
	Short: "Attach your terminal to a session's tmux window",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		// Verify the session exists before handing the terminal to tmux.
		if _, err := a.mgr.GetSnapshot(cmd.Context(), args[0], 1); err != nil {
			return fmt.Errorf("session %q: %w", args[0], err)
		}

		return a.mux.Attach(a.cfg.Container, args[0])
	},
}

func init() {
	rootCmd.AddCommand(attachCmd)
}
