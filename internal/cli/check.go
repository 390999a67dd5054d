package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/planguard/planguard/internal/policy"
	"github.com/planguard/planguard/internal/scenario"
	"github.com/planguard/planguard/internal/script"
)

var (
	checkPolicy   string
	checkScenario string
	checkFormat   string
)

func init() {
	rootCmd.AddCommand(checkCmd)
	checkCmd.Flags().StringVar(&checkPolicy, "policy", "", "Also validate this policy YAML")
	checkCmd.Flags().StringVar(&checkScenario, "scenario", "", "Glob pattern for scenario YAML files to assert against --policy")
	checkCmd.Flags().StringVarP(&checkFormat, "format", "f", "text", "Scenario output format (text|json)")
}

var checkCmd = &cobra.Command{
	Use:   "check [script]...",
	Short: "Validate scripts, policy, and scenario assertions without executing",
	Long: "Parses each script and reports syntax errors with line positions.\n" +
		"With --policy, also loads and validates the policy file.\n" +
		"With --scenario, evaluates declarative policy test cases and\n" +
		"reports pass/fail.\n\n" +
		"Exit code 0 if everything is valid, 1 otherwise.\n" +
		"Use in CI to gate planner prompt and policy changes.",
	RunE: runCheck,
}

func runCheck(cmd *cobra.Command, args []string) error {
	if len(args) == 0 && checkScenario == "" && checkPolicy == "" {
		return fmt.Errorf("nothing to check: pass scripts, --policy, or --scenario")
	}
	failed := false

	for _, path := range args {
		src, err := os.ReadFile(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
			failed = true
			continue
		}
		if _, err := script.Parse(string(src)); err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
			failed = true
			continue
		}
		fmt.Printf("%s: OK\n", path)
	}

	if checkPolicy != "" {
		if _, hash, err := policy.LoadConfigWithHash(checkPolicy); err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", checkPolicy, err)
			failed = true
		} else {
			fmt.Printf("%s: OK (%s)\n", checkPolicy, hash)
		}
	}

	if checkScenario != "" {
		scenarioFailed, err := runScenarios()
		if err != nil {
			return err
		}
		failed = failed || scenarioFailed
	}

	if failed {
		os.Exit(1)
	}
	return nil
}

func runScenarios() (failed bool, err error) {
	matches, err := filepath.Glob(checkScenario)
	if err != nil {
		return false, fmt.Errorf("invalid glob pattern: %w", err)
	}
	if len(matches) == 0 {
		return false, fmt.Errorf("no scenario files match pattern: %s", checkScenario)
	}

	var results []*scenario.RunResult
	for _, path := range matches {
		r, err := scenario.LoadAndRun(path, checkPolicy)
		if err != nil {
			return false, fmt.Errorf("%s: %w", path, err)
		}
		results = append(results, r)
	}

	switch checkFormat {
	case "json":
		out, err := scenario.FormatJSON(results)
		if err != nil {
			return false, err
		}
		fmt.Println(out)
	default:
		fmt.Print(scenario.FormatText(results))
	}

	for _, r := range results {
		if r.Failed > 0 {
			return true, nil
		}
	}
	return false, nil
}
