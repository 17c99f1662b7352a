package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command for the mailpilot application
var rootCmd = &cobra.Command{
	Use:   "mailpilot",
	Short: "Categorizing Gmail assistant with MCP and REST front-ends",
	Long: `mailpilot triages a Gmail inbox against configurable category rules and
serves the results to AI assistants over the Model Context Protocol and to
home-automation consumers over a small REST API.

It can run as:
  - An MCP server over stdio or SSE (serve)
  - A one-shot digest printer (summary)`,
	SilenceUsage: true,
}

// version will be set by main
var version = "dev"

// SetVersion sets the version for the root command
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

// Execute is the main entry point for the CLI application
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "mailpilot version %s\n" .Version}}`)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newSummaryCmd())
	rootCmd.AddCommand(newAuthCmd())
	rootCmd.AddCommand(newVersionCmd())
}
