// Package cli implements the forgeline CLI commands.
package cli

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "forgeline",
	Short: "Orchestrate coding agent sessions across dependency-ordered tickets",
	Long: `Forgeline orchestrates coding agent sessions over ticket dependency graphs.
Tickets run in dependency layers, with one active session per scope.`,
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Add subcommands (alphabetical)
	rootCmd.AddCommand(daemonCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(sessionCmd)
	rootCmd.AddCommand(ticketCmd)
	rootCmd.AddCommand(updateCmd)
	rootCmd.AddCommand(versionCmd)
}
