// Package cli implements the planguard command line interface.
package cli

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "planguard",
	Short: "Policed interpreter for LLM-planned scripts",
	Long: "Executes planner scripts with provenance tracking. Every value carries\n" +
		"the origins it was derived from; every external call goes through a\n" +
		"policy gateway that sees those origins and can refuse.",
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
