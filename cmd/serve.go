package cmd

import (
	"github.com/spf13/cobra"

	"github.com/simon/sshmux/internal/mcpserv"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the MCP server on stdio",
	Long: `Run the Model Context Protocol server on stdin/stdout so an AI agent
can open and drive SSH sessions. All logs go to stderr.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		srv := mcpserv.New(a.mgr, rootCmd.Version)
		a.log.Info("mcp server starting", "transport", "stdio")
		return srv.ServeStdio()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
