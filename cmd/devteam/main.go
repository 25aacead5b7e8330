// Command devteam runs the DevOps agent team against a project directory:
// provisioning (workflow + Dockerfile + build status + prediction) by default,
// or the PR review, chat, and status flows when the matching flag is set.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"devopsteam/internal/orch"
	"devopsteam/pkg/agent"
	"devopsteam/pkg/config"
	"devopsteam/pkg/metrics"
	"devopsteam/pkg/persistence"
	"devopsteam/pkg/version"
)

func main() {
	var (
		projectDir  = flag.String("projectdir", ".", "Project directory")
		reviewPR    = flag.Int("review", 0, "Review the given pull request number")
		chatPR      = flag.Int("chat", 0, "Chat about the given pull request number")
		message     = flag.String("message", "", "Chat message (used with -chat; empty asks for a general review)")
		statusPR    = flag.Int("status", 0, "Print the workflow status of the given pull request number (0: current branch's PR)")
		repo        = flag.String("repo", "", "GitHub repository as owner/repo (default: resolved from the git remote)")
		costRun     = flag.String("cost", "", "Print the token and cost summary for a past run ID")
		initSecrets = flag.Bool("init-secrets", false, "Interactively create the encrypted secrets file")
		showVersion = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	// -status 0 is meaningful (current branch's PR), so flag presence matters.
	statusSet := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "status" {
			statusSet = true
		}
	})

	if *showVersion {
		fmt.Printf("devteam %s\n", version.Version)
		fmt.Printf("  commit: %s\n", version.Commit)
		fmt.Printf("  built:  %s\n", version.Date)
		os.Exit(0)
	}

	opts := runOptions{
		projectDir:  *projectDir,
		reviewPR:    *reviewPR,
		chatPR:      *chatPR,
		message:     *message,
		statusPR:    *statusPR,
		statusSet:   statusSet,
		repo:        *repo,
		costRun:     *costRun,
		initSecrets: *initSecrets,
	}
	os.Exit(run(opts))
}

type runOptions struct {
	projectDir  string
	message     string
	repo        string
	costRun     string
	reviewPR    int
	chatPR      int
	statusPR    int
	statusSet   bool
	initSecrets bool
}

// run contains the main application logic and returns an exit code.
// This allows defers to execute before os.Exit is called.
func run(opts runOptions) int {
	if opts.projectDir == "." {
		fmt.Println("⚠️  -projectdir not set. Using the current directory.")
	}

	if err := config.LoadConfig(opts.projectDir); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	if opts.initSecrets {
		if err := runSecretsBootstrap(opts.projectDir); err != nil {
			fmt.Fprintf(os.Stderr, "Secrets setup failed: %v\n", err)
			return 1
		}
		return 0
	}

	// Load encrypted credentials into memory before any agent needs them.
	if err := handleSecretsDecryption(opts.projectDir); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to handle secrets: %v\n", err)
		return 1
	}

	if err := config.GenerateSessionID(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to generate session ID: %v\n", err)
		return 1
	}

	dbPath := filepath.Join(opts.projectDir, config.ProjectConfigDir, config.DatabaseFilename)
	if err := persistence.Initialize(dbPath, config.GetSessionID()); err != nil {
		// Runs still work without history; agents degrade to logging.
		fmt.Fprintf(os.Stderr, "Warning: run history unavailable: %v\n", err)
	}
	defer func() {
		if err := persistence.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to close database: %v\n", err)
		}
	}()

	cfg, err := config.GetConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to get config: %v\n", err)
		return 1
	}
	if opts.repo != "" {
		cfg.GitHub.Repo = opts.repo
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if opts.costRun != "" {
		return costReport(ctx, &cfg, opts.costRun)
	}

	factory := agent.NewClientFactory(&cfg)
	defer factory.Close()

	runner := orch.NewRunner(cfg, opts.projectDir, factory, os.Stdout)

	if err := dispatch(ctx, runner, opts); err != nil {
		fmt.Fprintf(os.Stderr, "devteam failed: %v\n", err)
		return 1
	}

	return 0
}

// dispatch picks the flow from the flags. The provisioning run is the default.
func dispatch(ctx context.Context, runner *orch.Runner, opts runOptions) error {
	switch {
	case opts.statusSet:
		return runner.StatusFlow(ctx, opts.statusPR)
	case opts.reviewPR > 0:
		return runner.ReviewFlow(ctx, opts.reviewPR)
	case opts.chatPR > 0:
		return runner.ChatFlow(ctx, opts.chatPR, opts.message)
	case opts.message != "":
		return fmt.Errorf("-message requires -chat <pr-number>")
	default:
		return runner.Provision(ctx)
	}
}

// handleSecretsDecryption decrypts .devteam/secrets.json.enc when present. The
// password comes from DEVTEAM_PASSWORD, or from a prompt when unset.
func handleSecretsDecryption(projectDir string) error {
	if !config.SecretsFileExists(projectDir) {
		return nil
	}

	password := os.Getenv(config.EnvDevteamPassword)
	if password == "" {
		read, err := promptForExistingPassword()
		if err != nil {
			return err
		}
		password = read
	}

	secrets, err := config.DecryptSecretsFile(projectDir, password)
	if err != nil {
		return err
	}

	config.SetDecryptedSecrets(secrets)
	fmt.Printf("🔓 Loaded %d credential(s) from encrypted secrets file\n", len(secrets))
	return nil
}

// costReport prints the token and cost summary for a past run. Readback needs
// a Prometheus server; in-memory totals do not outlive the process that
// recorded them.
func costReport(ctx context.Context, cfg *config.Config, runID string) int {
	if cfg.Agents.Metrics.PrometheusURL == "" {
		fmt.Fprintln(os.Stderr, "Cost readback requires agents.metrics.prometheus_url in the config")
		return 1
	}

	query, err := metrics.NewQueryService(cfg.Agents.Metrics.PrometheusURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create metrics query service: %v\n", err)
		return 1
	}

	totals, err := query.GetRunMetrics(ctx, runID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to query run metrics: %v\n", err)
		return 1
	}

	fmt.Printf("💰 Run %s: %d prompt + %d completion = %d tokens, $%.4f\n",
		runID, totals.PromptTokens, totals.CompletionTokens, totals.TotalTokens, totals.TotalCost)

	byModel, err := query.GetRunMetricsByModel(ctx, runID)
	if err == nil {
		for model, m := range byModel {
			fmt.Printf("   %s: %d tokens, $%.4f\n", model, m.TotalTokens, m.TotalCost)
		}
	}
	return 0
}
