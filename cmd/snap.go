package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var snapCmd = &cobra.Command{
	Use:   "snap <session-id>",
	Short: "Print a session's current screen without sending anything",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		lines, _ := cmd.Flags().GetInt("lines")

		snap, err := a.mgr.GetSnapshot(cmd.Context(), args[0], lines)
		if err != nil {
			return err
		}

		fmt.Println(snap.Annotated())
		return nil
	},
}

func init() {
	snapCmd.Flags().IntP("lines", "n", 0, "Lines to capture from the end of the screen")
	rootCmd.AddCommand(snapCmd)
}
