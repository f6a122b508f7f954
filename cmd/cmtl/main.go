// cmtl launches registered security tools, captures their output, and
// writes a consolidated report per run.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"text/tabwriter"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/your-org/cmtl/internal/batch"
	"github.com/your-org/cmtl/internal/config"
	"github.com/your-org/cmtl/internal/menu"
	"github.com/your-org/cmtl/internal/registry"
	"github.com/your-org/cmtl/internal/report"
	"github.com/your-org/cmtl/internal/runner"
	"github.com/your-org/cmtl/internal/session"
	"github.com/your-org/cmtl/internal/sysmon"
	"github.com/your-org/cmtl/internal/workspace"
)

var (
	cfgFile      string
	registryFile string
	target       string
	outputDir    string
	maxParallel  int
	concurrent   bool
	verbose      bool
	quiet        bool
	noJournal    bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "cmtl",
		Short: "CMTL - multi tool launcher for security tooling",
		Long: `CMTL launches the external programs in its tool registry - network
scanners, capture tools, exploitation frameworks - either detached (GUI
tools) or with output captured to per-run logs, and writes a
machine-readable report of what ran and how it ended.`,
		RunE: runDefault,
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "launcher config file (default: cmtl.yaml in the usual locations)")
	rootCmd.PersistentFlags().StringVar(&registryFile, "registry", "", "tool registry file (overrides config)")
	rootCmd.PersistentFlags().StringVarP(&target, "target", "t", "", "scan target (overrides registry default)")
	rootCmd.PersistentFlags().StringVarP(&outputDir, "output", "o", "", "base output directory (overrides config)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log orchestration details to the console")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress console output; the report and logs are still written")
	rootCmd.PersistentFlags().BoolVar(&noJournal, "no-journal", false, "disable the per-run record journal")

	runCmd := &cobra.Command{
		Use:   "run <tool-id>",
		Short: "Run a single registered tool",
		Args:  cobra.ExactArgs(1),
		RunE:  runSingle,
	}

	runAllCmd := &cobra.Command{
		Use:   "run-all",
		Short: "Run every registered tool",
		Args:  cobra.NoArgs,
		RunE:  runAll,
	}
	runAllCmd.Flags().BoolVar(&concurrent, "concurrent", false, "use the bounded worker pool instead of sequential order")
	runAllCmd.Flags().IntVarP(&maxParallel, "parallel", "p", 0, "worker pool size for --concurrent (default: auto)")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List registered tools",
		Args:  cobra.NoArgs,
		RunE:  runList,
	}

	menuCmd := &cobra.Command{
		Use:   "menu",
		Short: "Pick a tool interactively",
		Args:  cobra.NoArgs,
		RunE:  runMenu,
	}

	rootCmd.AddCommand(runCmd, runAllCmd, listCmd, menuCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// runDefault opens the menu on a terminal and prints help otherwise.
func runDefault(cmd *cobra.Command, args []string) error {
	if isatty.IsTerminal(os.Stdin.Fd()) && isatty.IsTerminal(os.Stdout.Fd()) {
		return runMenu(cmd, args)
	}
	return cmd.Help()
}

func runMenu(cmd *cobra.Command, _ []string) error {
	env, err := setup()
	if err != nil {
		return err
	}

	choice, err := menu.Pick(env.registry, env.target)
	if err != nil {
		if errors.Is(err, menu.ErrAborted) {
			return nil
		}
		return err
	}

	if choice.RunAll {
		return env.execute(cmd.Context(), env.registry.All(), batch.Sequential)
	}
	desc, err := env.registry.Resolve(choice.ToolID)
	if err != nil {
		return err
	}
	return env.execute(cmd.Context(), []registry.ToolDescriptor{desc}, batch.Sequential)
}

func runSingle(cmd *cobra.Command, args []string) error {
	env, err := setup()
	if err != nil {
		return err
	}
	desc, err := env.registry.Resolve(args[0])
	if err != nil {
		return err
	}
	return env.execute(cmd.Context(), []registry.ToolDescriptor{desc}, batch.Sequential)
}

func runAll(cmd *cobra.Command, _ []string) error {
	env, err := setup()
	if err != nil {
		return err
	}
	mode := batch.Sequential
	if concurrent {
		mode = batch.Concurrent
	}
	return env.execute(cmd.Context(), env.registry.All(), mode)
}

func runList(*cobra.Command, []string) error {
	env, err := setup()
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tCATEGORY\tMODE\tTIMEOUT")
	for _, d := range env.registry.All() {
		timeout := "-"
		if d.Timeout > 0 {
			timeout = d.Timeout.String()
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", d.ID, d.DisplayName, d.Category, d.Mode, timeout)
	}
	return w.Flush()
}

// environment is everything a batch needs, assembled once per command.
type environment struct {
	cfg      *config.Config
	registry *registry.Registry
	target   string
	sessions *session.Manager
}

// setup loads config and registry and resolves the effective target.
// Failures here are fatal configuration errors: nothing has run yet.
func setup() (*environment, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if registryFile != "" {
		cfg.Registry = registryFile
	}
	if outputDir != "" {
		cfg.OutputDir = outputDir
	}
	if noJournal {
		cfg.Journal = false
	}

	reg, err := registry.Load(cfg.Registry)
	if err != nil {
		return nil, err
	}

	sessions := session.NewManager()

	effective := target
	if effective == "" {
		effective = cfg.Target
	}
	if effective == "" {
		if s, err := sessions.Load(); err == nil && s != nil && s.Target != "" {
			effective = s.Target
		}
	}
	if effective == "" {
		effective = reg.DefaultTarget
	}

	return &environment{cfg: cfg, registry: reg, target: effective, sessions: sessions}, nil
}

// execute runs one batch end to end: workspace, runner, controller,
// aggregator, committed report. Per-tool failures are data in the
// report; only orchestration failures surface as errors.
func (env *environment) execute(parent context.Context, descs []registry.ToolDescriptor, mode batch.Mode) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt)
	defer stop()

	ws, err := workspace.Create(env.cfg.OutputDir, env.target)
	if err != nil {
		return err
	}

	logger, err := ws.Logger(os.Stderr, verbose && !quiet)
	if err != nil {
		return err
	}

	aggOpts := report.Options{Logger: logger}
	if env.cfg.Journal {
		aggOpts.JournalPath = ws.JournalPath()
	}
	agg, err := report.New(env.target, len(descs), aggOpts)
	if err != nil {
		return err
	}
	defer agg.Close()

	run := runner.New(ws.LogsDir(), runner.Options{
		ToolPaths: env.cfg.ToolPaths,
		Logger:    logger,
	})

	var monitor *sysmon.Monitor
	if mode == batch.Concurrent {
		monitor = sysmon.New(env.cfg.Resources.MaxCPUPercent, env.cfg.Resources.MaxMemoryPercent, logger)
	}

	ctrl := batch.New(run, batch.Options{
		MaxParallel: resolveParallel(maxParallel, env.cfg.MaxParallel),
		Monitor:     monitor,
		Logger:      logger,
	})

	console := consoleWriter()
	fmt.Fprintf(console, "Running %d tool(s) against %s (%s)\n", len(descs), env.target, mode)
	ctrl.Run(ctx, descs, env.target, mode, agg)

	rep, err := agg.Commit(ws.ReportPath())
	if err != nil {
		return err
	}
	// Best-effort convenience copy; the canonical report is committed.
	if _, err := agg.Commit(workspace.LatestReportPath(env.cfg.OutputDir)); err != nil {
		logger.Warn("updating latest report", "error", err)
	}

	if err := env.sessions.Save(&session.Session{Target: env.target, LastWorkspace: ws.Root}); err != nil {
		logger.Warn("saving session", "error", err)
	}

	printSummary(console, rep, ws)
	return nil
}

// resolveParallel picks the worker pool bound: the flag wins, then the
// config file, then zero for the controller's auto default. Same
// precedence the target uses.
func resolveParallel(flagValue, configValue int) int {
	if flagValue > 0 {
		return flagValue
	}
	return configValue
}

// consoleWriter is where user-facing run output goes; quiet discards it.
func consoleWriter() io.Writer {
	if quiet {
		return io.Discard
	}
	return os.Stdout
}

func printSummary(w io.Writer, rep report.BatchReport, ws *workspace.Workspace) {
	fmt.Fprintf(w, "\nRun %s finished: %d record(s)\n", rep.RunID, len(rep.Records))
	for _, rec := range rep.Records {
		line := fmt.Sprintf("  %-16s %s", rec.ToolID, rec.Status)
		if rec.ExitCode != nil {
			line += fmt.Sprintf(" (exit %d)", *rec.ExitCode)
		}
		fmt.Fprintln(w, line)
		if rec.InstallHint != "" {
			fmt.Fprintf(w, "      hint: %s\n", rec.InstallHint)
		}
	}
	fmt.Fprintf(w, "\nReport: %s\n", ws.ReportPath())
	fmt.Fprintf(w, "Logs:   %s\n", ws.LogsDir())
}
