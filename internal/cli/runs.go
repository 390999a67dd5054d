package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/planguard/planguard/internal/runstore"
)

var (
	runsDB    string
	runsLimit int
)

func init() {
	rootCmd.AddCommand(runsCmd)
	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	runsCmd.PersistentFlags().StringVar(&runsDB, "runs-db", "", "Path to run history SQLite database")
	runsListCmd.Flags().IntVarP(&runsLimit, "limit", "n", 20, "Number of runs to show")
}

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect recorded script runs",
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openRuns()
		if err != nil {
			return err
		}
		defer store.Close()

		runs, err := store.List(cmd.Context(), runsLimit)
		if err != nil {
			return err
		}
		for _, r := range runs {
			line := fmt.Sprintf("%s  %s  %-9s", r.CreatedAt.Format("2006-01-02 15:04:05"), r.ID, r.Status)
			if r.ErrorMsg != "" {
				line += "  " + r.ErrorMsg
			}
			fmt.Println(line)
		}
		return nil
	},
}

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show one run, including its flow graph",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openRuns()
		if err != nil {
			return err
		}
		defer store.Close()

		run, err := store.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if run == nil {
			return fmt.Errorf("no run with ID %s", args[0])
		}
		out, err := json.MarshalIndent(run, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
}

func openRuns() (*runstore.Store, error) {
	if runsDB == "" {
		return nil, fmt.Errorf("--runs-db is required")
	}
	return runstore.Open(runsDB)
}
