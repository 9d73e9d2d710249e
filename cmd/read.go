package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var readCmd = &cobra.Command{
	Use:   "read <session-id> <remote-path>",
	Short: "Read a remote file through a session",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		data, err := a.mgr.ReadRemoteFile(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}

		out, _ := cmd.Flags().GetString("out")
		if out != "" {
			if err := os.WriteFile(out, data, 0o644); err != nil {
				return fmt.Errorf("writing %s: %w", out, err)
			}
			fmt.Printf("Wrote %d bytes to %s\n", len(data), out)
			return nil
		}

		_, err = os.Stdout.Write(data)
		return err
	},
}

func init() {
	readCmd.Flags().StringP("out", "o", "", "Write the file locally instead of to stdout")
	rootCmd.AddCommand(readCmd)
}
