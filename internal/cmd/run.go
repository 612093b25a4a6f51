package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"github.com/Iron-Ham/fanout/internal/config"
	"github.com/Iron-Ham/fanout/internal/control"
	"github.com/Iron-Ham/fanout/internal/logging"
	"github.com/Iron-Ham/fanout/internal/manifest"
	"github.com/Iron-Ham/fanout/internal/merge"
	"github.com/Iron-Ham/fanout/internal/orchestrator"
	"github.com/Iron-Ham/fanout/internal/tui"
)

var runCmd = &cobra.Command{
	Use:   "run <manifest>",
	Short: "Run the work units in a manifest",
	Long: `Run the work units declared in a YAML manifest.

Units are dispatched phase by phase through a bounded pool of execution
slots. Each unit's description is executed as a shell command; its
stdout becomes the unit's findings, merged per category into the final
report.

Examples:
  # Run with the live dashboard
  fanout run plan.yaml

  # Run one unit at a time with line-based output
  fanout run plan.yaml --sequential --plain

  # Cap concurrency regardless of config
  fanout run plan.yaml --max-parallel 4`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

var (
	runSequential  bool
	runMaxParallel int
	runPlain       bool
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().BoolVar(&runSequential, "sequential", false, "Run units one at a time")
	runCmd.Flags().IntVar(&runMaxParallel, "max-parallel", 0, "Maximum concurrent units (0 for unlimited)")
	runCmd.Flags().BoolVar(&runPlain, "plain", false, "Line-based output instead of the live dashboard")
}

func runRun(cmd *cobra.Command, args []string) error {
	m, err := manifest.Load(args[0])
	if err != nil {
		return err
	}

	cfg := config.Get()

	// Precedence: config file, then manifest overrides, then flags.
	opts := cfg.Options()
	m.Orchestration.Apply(&opts)
	if cmd.Flags().Changed("sequential") {
		opts.Sequential = runSequential
	}
	if cmd.Flags().Changed("max-parallel") {
		opts.MaxParallel = runMaxParallel
	}

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get current directory: %w", err)
	}

	runID := uuid.NewString()
	runDir := filepath.Join(cfg.Paths.ResolveRunDir(cwd), runID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return fmt.Errorf("failed to create run directory: %w", err)
	}

	logger := logging.NopLogger()
	if cfg.Logging.Enabled {
		logger, err = logging.NewLogger(runDir, cfg.Logging.Level)
		if err != nil {
			return fmt.Errorf("failed to open run log: %w", err)
		}
		defer logger.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	useTUI := cfg.TUI.Enabled && !runPlain && term.IsTerminal(int(os.Stdout.Fd()))

	deps := orchestrator.Deps{
		Executor: newShellExecutor(),
		RunID:    runID,
		Logger:   logger,
	}
	if cfg.Merge.DetectContradictions {
		deps.Detect = merge.OpposingStances
	}

	var app *tui.App
	if useTUI {
		app = tui.New(tui.Options{
			RunID:   runID,
			Refresh: cfg.TUI.Refresh(),
		})
		deps.Decide = app.Decide
	} else if cfg.Control.Enabled {
		watcher, werr := control.NewWatcher(cfg.Paths.ResolveControlDir(runDir), cfg.Control.Debounce(), logger)
		if werr != nil {
			return fmt.Errorf("failed to start control watcher: %w", werr)
		}
		defer watcher.Stop()

		decisionPath := filepath.Join(watcher.Dir(), control.DecisionFileName)
		deps.Decide = func(ctx context.Context, consecutive int) bool {
			fmt.Fprintf(os.Stderr, "run paused after %d consecutive failures; write %q or %q to %s\n",
				consecutive, "continue", "abort", decisionPath)
			return watcher.Decide(ctx, consecutive)
		}
	}

	orch, err := orchestrator.New(opts, deps)
	if err != nil {
		return fmt.Errorf("failed to create orchestrator: %w", err)
	}
	for _, phase := range m.Phases() {
		if err := orch.Enqueue(m.UnitsFor(phase), phase); err != nil {
			return fmt.Errorf("failed to enqueue phase %d: %w", phase, err)
		}
	}

	var (
		report *orchestrator.Report
		runErr error
	)
	g, gctx := errgroup.WithContext(ctx)

	if useTUI {
		app.Attach(orch.Progress())

		runCtx, stopRun := context.WithCancel(gctx)
		defer stopRun()

		g.Go(func() error {
			defer app.Done()
			report, runErr = orch.Run(runCtx)
			return nil
		})
		g.Go(func() error {
			// Quitting the dashboard cancels the run.
			defer stopRun()
			return app.Run()
		})
	} else {
		fmt.Printf("run %s: %d units, logs in %s\n", runID, len(m.Units), runDir)

		events := orch.Progress().Subscribe()
		g.Go(func() error {
			report, runErr = orch.Run(gctx)
			return nil
		})
		g.Go(func() error {
			// Returns when the run closes the event stream.
			printEvents(os.Stdout, events)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("display error: %w", err)
	}

	if report != nil {
		writeReport(os.Stdout, report)
	}

	if runErr != nil {
		if errors.Is(runErr, context.Canceled) {
			return fmt.Errorf("run %s cancelled", runID)
		}
		return runErr
	}
	return nil
}
