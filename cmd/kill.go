package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var killCmd = &cobra.Command{
	Use:     "kill <session-id>",
	Aliases: []string{"close"},
	Short:   "Close a session",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		force, _ := cmd.Flags().GetBool("force")
		if !force {
			fmt.Printf("Close session %q? [y/N] ", args[0])
			reader := bufio.NewReader(os.Stdin)
			answer, _ := reader.ReadString('\n')
			if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(answer)), "y") {
				fmt.Println("Cancelled.")
				return nil
			}
		}

		final, err := a.mgr.CloseSession(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		fmt.Printf("Session %s closed.\n\nFinal screen:\n%s\n", args[0], final.Text)
		return nil
	},
}

func init() {
	killCmd.Flags().BoolP("force", "f", false, "Skip confirmation")
	rootCmd.AddCommand(killCmd)
}
