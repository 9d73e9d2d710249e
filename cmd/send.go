package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/simon/sshmux/internal/policy"
)

var sendCmd = &cobra.Command{
	Use:   "send <session-id> <command...>",
	Short: "Send a command to a session and print the settled screen",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		id := args[0]
		command := strings.Join(args[1:], " ")
		lines, _ := cmd.Flags().GetInt("lines")

		res, err := a.mgr.SendCommand(cmd.Context(), id, command, lines)
		if err != nil {
			return err
		}

		if res.Verdict.Action == policy.Warn {
			fmt.Printf("[WARNING: %s]\n\n", res.Verdict.Reason)
		}
		fmt.Println(res.Snapshot.Annotated())
		return nil
	},
}

func init() {
	sendCmd.Flags().IntP("lines", "n", 0, "Lines to capture from the end of the screen")
	rootCmd.AddCommand(sendCmd)
}
