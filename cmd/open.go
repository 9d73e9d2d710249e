package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var openCmd = &cobra.Command{
	Use:   "open <host>",
	Short: "Open a new SSH session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		user, _ := cmd.Flags().GetString("user")
		port, _ := cmd.Flags().GetInt("port")

		sess, snap, err := a.mgr.OpenSession(cmd.Context(), args[0], user, port)
		if err != nil {
			return err
		}

		fmt.Printf("Session opened. ID: %s\n\n%s\n", sess.ID, snap.Annotated())
		return nil
	},
}

func init() {
	openCmd.Flags().StringP("user", "u", "", "Username override")
	openCmd.Flags().IntP("port", "p", 0, "Port override")
	rootCmd.AddCommand(openCmd)
}
