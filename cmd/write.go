package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

var writeCmd = &cobra.Command{
	Use:   "write <session-id> <remote-path> [local-file]",
	Short: "Write a file on the remote host through a session",
	Long: `Write a file on the remote host through a session.

Content comes from the local file argument, or from stdin when omitted.`,
	Args: cobra.RangeArgs(2, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		var content []byte
		if len(args) == 3 {
			content, err = os.ReadFile(args[2])
			if err != nil {
				return fmt.Errorf("reading %s: %w", args[2], err)
			}
		} else {
			content, err = io.ReadAll(os.Stdin)
			if err != nil {
				return fmt.Errorf("reading stdin: %w", err)
			}
		}

		appendMode, _ := cmd.Flags().GetBool("append")
		if err := a.mgr.WriteRemoteFile(cmd.Context(), args[0], args[1], content, appendMode); err != nil {
			return err
		}

		fmt.Printf("Wrote %d bytes to %s\n", len(content), args[1])
		return nil
	},
}

func init() {
	writeCmd.Flags().BoolP("append", "a", false, "Append instead of overwrite")
	rootCmd.AddCommand(writeCmd)
}
