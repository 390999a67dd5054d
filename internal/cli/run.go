package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/planguard/planguard/internal/assistant"
	"github.com/planguard/planguard/internal/audit"
	"github.com/planguard/planguard/internal/interp"
	"github.com/planguard/planguard/internal/policy"
	"github.com/planguard/planguard/internal/registry"
	"github.com/planguard/planguard/internal/runstore"
)

var (
	runPolicy      string
	runEngineURL   string
	runRegistryCfg string
	runAuditLog    string
	runRunsDB      string
	runGraphOut    string
	runInputs      []string
	runTimeout     time.Duration
	runModelURL    string
	runModelName   string
)

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringVar(&runPolicy, "policy", "", "Path to policy YAML")
	runCmd.Flags().StringVar(&runEngineURL, "engine-url", "", "Remote policy engine base URL (overrides --policy)")
	runCmd.Flags().StringVar(&runRegistryCfg, "registry", "", "Path to capability registry YAML (MCP servers)")
	runCmd.Flags().StringVar(&runAuditLog, "audit-log", "", "Path to audit log JSONL file")
	runCmd.Flags().StringVar(&runRunsDB, "runs-db", "", "Path to run history SQLite database")
	runCmd.Flags().StringVar(&runGraphOut, "graph-out", "", "Write the flow graph JSON to this file")
	runCmd.Flags().StringArrayVar(&runInputs, "input", nil, "User input as name=value (repeatable)")
	runCmd.Flags().DurationVar(&runTimeout, "call-timeout", 30*time.Second, "Per-capability call deadline")
	runCmd.Flags().StringVar(&runModelURL, "model-url", "", "OpenAI-compatible endpoint for query_ai_assistant")
	runCmd.Flags().StringVar(&runModelName, "model", "", "Model name for query_ai_assistant")
}

var runCmd = &cobra.Command{
	Use:   "run <script>",
	Short: "Execute a planner script through the policy gateway",
	Long: "Parses and runs a planner script against the builtin workspace\n" +
		"capabilities plus any configured MCP servers. A policy denial stops\n" +
		"the run before the external effect happens.\n\n" +
		"Exit code 0 on success, 2 on policy denial, 1 on any other failure.",
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

func runRun(cmd *cobra.Command, args []string) error {
	src, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read script: %w", err)
	}

	inputs, err := parseInputs(runInputs)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	opts := interp.Options{
		UserInputs:  inputs,
		CallTimeout: runTimeout,
	}

	opts.Engine, err = buildEngine()
	if err != nil {
		return err
	}

	reg, cleanup, err := buildRegistry(ctx)
	if err != nil {
		return err
	}
	if cleanup != nil {
		defer cleanup()
	}
	opts.Registry = reg

	if runAuditLog != "" {
		log, err := audit.Open(runAuditLog)
		if err != nil {
			return fmt.Errorf("open audit log: %w", err)
		}
		defer log.Close()
		opts.Audit = log
	}

	if runRunsDB != "" {
		store, err := runstore.Open(runRunsDB)
		if err != nil {
			return fmt.Errorf("open run store: %w", err)
		}
		defer store.Close()
		opts.Runs = store
	}

	if runModelURL != "" {
		opts.Assistant = assistant.NewOpenAI(runModelURL, os.Getenv("PLANGUARD_MODEL_KEY"), runModelName, 0)
	}

	res, runErr := interp.Run(ctx, string(src), opts)

	if runGraphOut != "" {
		if err := writeGraph(runGraphOut, res); err != nil {
			fmt.Fprintf(os.Stderr, "warning: %v\n", err)
		}
	}

	if runErr != nil {
		var verr *policy.ViolationError
		if errors.As(runErr, &verr) {
			fmt.Fprintf(os.Stderr, "DENIED: %s\n", verr.Capability)
			for _, v := range verr.Violations {
				fmt.Fprintf(os.Stderr, "  - %s\n", v)
			}
			os.Exit(2)
		}
		return fmt.Errorf("run %s: %w", res.RunID, runErr)
	}

	if res.Output != "" {
		fmt.Println(res.Output)
	}
	fmt.Fprintf(os.Stderr, "run %s completed (%d graph nodes)\n", res.RunID, len(res.Graph.Nodes))
	return nil
}

func buildEngine() (policy.Engine, error) {
	if runEngineURL != "" {
		return policy.NewClient(runEngineURL, 0), nil
	}
	cfg, hash, err := policy.LoadConfigWithHash(runPolicy)
	if err != nil {
		return nil, fmt.Errorf("load policy: %w", err)
	}
	return policy.NewLocal(cfg, hash), nil
}

func buildRegistry(ctx context.Context) (*registry.Registry, func() error, error) {
	reg := registry.New()
	if err := registry.RegisterDemo(reg, registry.NewWorkspace()); err != nil {
		return nil, nil, err
	}

	cfg, err := registry.LoadConfig(runRegistryCfg)
	if err != nil {
		return nil, nil, err
	}
	if len(cfg.Servers) == 0 {
		return reg, nil, nil
	}
	cleanup, err := registry.PopulateFromMCP(ctx, reg, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("connect MCP servers: %w", err)
	}
	return reg, cleanup, nil
}

func parseInputs(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		name, value, ok := strings.Cut(p, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid --input %q, want name=value", p)
		}
		out[name] = value
	}
	return out, nil
}

func writeGraph(path string, res *interp.Result) error {
	data, err := json.MarshalIndent(res.Graph, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal graph: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write graph: %w", err)
	}
	return nil
}
