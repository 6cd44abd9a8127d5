package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nbenliogludev/softlight-agent/internal/analyzer"
	"github.com/nbenliogludev/softlight-agent/internal/browser"
	"github.com/nbenliogludev/softlight-agent/internal/config"
	"github.com/nbenliogludev/softlight-agent/internal/dataset"
	"github.com/nbenliogludev/softlight-agent/internal/executor"
	"github.com/nbenliogludev/softlight-agent/internal/planner"
	"github.com/nbenliogludev/softlight-agent/internal/state"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfgPath string
	var verbose bool

	cmd := &cobra.Command{
		Use:   "softlight \"task description\"",
		Short: "Drive a browser through a UI task and capture each distinct state",
		Long: "softlight plans a sequence of browser actions for a natural-language\n" +
			"task, executes them, and saves a screenshot plus metadata for every\n" +
			"meaningful UI state change into a per-task dataset directory.",
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cfgPath, strings.Join(args, " "), verbose)
		},
	}

	cmd.Flags().StringVarP(&cfgPath, "config", "c", "config.yaml", "path to config file")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	return cmd
}

func run(cfgPath, task string, verbose bool) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}

	log, err := newLogger(verbose)
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, cfg.TaskTimeout)
	defer cancel()

	fmt.Printf("Task: %s\n", task)

	actions, err := plan(ctx, cfg, task, log)
	if err != nil {
		return err
	}
	printPlan(actions)

	driver, err := newDriver(cfg, log)
	if err != nil {
		return fmt.Errorf("start browser: %w", err)
	}
	defer driver.Close() //nolint:errcheck

	taskRun := state.NewTaskRun(task)
	store, err := dataset.NewFileStore(cfg.DatasetRoot, taskRun.Slug, log)
	if err != nil {
		return err
	}
	manager := state.NewManager(taskRun, store, log)
	exec := executor.New(driver, analyzer.New(log), manager, taskRun, executor.Options{}, log)

	go promptOnPause(exec)

	result, runErr := exec.Run(ctx, actions)
	if result != nil {
		printSummary(result, store.TaskDir())
	}
	return runErr
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	cfg.EncoderConfig = zap.NewDevelopmentConfig().EncoderConfig
	return cfg.Build()
}

func newDriver(cfg *config.Config, log *zap.Logger) (browser.Driver, error) {
	opts := browser.Options{
		Headless:          cfg.Headless,
		SlowMo:            cfg.SlowMo,
		Persistent:        cfg.PersistentContext,
		ContextDir:        cfg.ContextDir,
		NavigationTimeout: cfg.NavigationTimeout,
	}
	if cfg.Driver == "chromedp" {
		return browser.NewChromedpDriver(opts, log)
	}
	return browser.NewPlaywrightDriver(opts, log)
}

// plan asks the configured planner for an action sequence and falls back
// to the built-in heuristic plans when planning is unavailable (no API
// key, provider disabled, malformed response).
func plan(ctx context.Context, cfg *config.Config, task string, log *zap.Logger) ([]planner.Action, error) {
	heuristic := planner.NewHeuristicPlanner(log)

	if cfg.LLM.Provider != "openai" {
		return heuristic.Plan(ctx, task)
	}

	llm, err := planner.NewOpenAIPlanner(cfg.LLM.Model, cfg.LLM.Temperature, log)
	if err == nil {
		actions, planErr := llm.Plan(ctx, task)
		if planErr == nil {
			return actions, nil
		}
		err = planErr
	}
	log.Warn("falling back to heuristic plan", zap.Error(err))
	return heuristic.Plan(ctx, task)
}

func printPlan(actions []planner.Action) {
	fmt.Printf("Plan (%d actions):\n", len(actions))
	for i, a := range actions {
		fmt.Printf("  %2d. %s\n", i+1, a.Describe())
	}
}

// promptOnPause turns executor login pauses into an interactive stdin
// prompt: finish logging in inside the browser window, press Enter here.
func promptOnPause(exec *executor.Executor) {
	reader := bufio.NewReader(os.Stdin)
	for reason := range exec.Paused() {
		fmt.Printf("\nPaused: %s\n", reason)
		fmt.Print("Complete the login in the browser window, then press Enter to continue... ")
		_, _ = reader.ReadString('\n')
		exec.Unblock()
	}
}

func printSummary(res *executor.Result, outDir string) {
	fmt.Printf("\nRun %s: %d/%d actions executed, %d skipped\n",
		res.Status, res.ActionsTotal-len(res.Skipped), res.ActionsTotal, len(res.Skipped))
	for _, step := range res.Steps {
		marker := " "
		if step.Status != executor.StepOK {
			marker = "!"
		}
		fmt.Printf("  %s %2d. %-40s %s\n", marker, step.Index, step.Action, step.Status)
	}
	fmt.Printf("States captured: %d\n", res.StatesCount)
	fmt.Printf("Dataset: %s\n", outDir)
}
