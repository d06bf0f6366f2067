package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"text/tabwriter"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/forgekit/forge/internal/analyze"
	"github.com/forgekit/forge/internal/config"
	"github.com/forgekit/forge/internal/doctor"
	"github.com/forgekit/forge/internal/domain"
	"github.com/forgekit/forge/internal/history"
	"github.com/forgekit/forge/internal/loop"
	"github.com/forgekit/forge/internal/notify"
	"github.com/forgekit/forge/internal/plan"
	"github.com/forgekit/forge/internal/runstate"
	"github.com/forgekit/forge/internal/sched"
	"github.com/forgekit/forge/tui"
	"github.com/forgekit/forge/web/api"
)

const historyDBFile = "history.db"

var (
	runResume          string
	runResumeLast      bool
	runEngine          string
	runThinkingMode    string
	runMaxCallsPerHour int
	runTimeoutMinutes  int
	runJSON            bool
	runMaxLoops        uint64

	statusJSON bool

	doctorFix    bool
	doctorStrict bool

	analyzeChunkSize int

	historyLimit int

	scheduleMaxLoops uint64

	serveAddr string
)

func init() {
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the execution loop",
		RunE:  runRun,
	}
	runCmd.Flags().StringVar(&runResume, "resume", "", "resume an explicit engine session id")
	runCmd.Flags().BoolVar(&runResumeLast, "resume-last", false, "resume the most recent engine session")
	runCmd.Flags().StringVar(&runEngine, "engine", "", "engine to drive (codex|opencode)")
	runCmd.Flags().StringVar(&runThinkingMode, "thinking-mode", "", "reasoning visibility (off|summary|raw)")
	runCmd.Flags().IntVar(&runMaxCallsPerHour, "max-calls-per-hour", 0, "hourly engine call budget")
	runCmd.Flags().IntVar(&runTimeoutMinutes, "timeout-minutes", 0, "per-iteration wall clock timeout")
	runCmd.Flags().BoolVar(&runJSON, "json", false, "print the outcome as JSON")
	runCmd.Flags().Uint64Var(&runMaxLoops, "max-loops", 100, "loop budget for this run")
	runCmd.MarkFlagsMutuallyExclusive("resume", "resume-last")
	rootCmd.AddCommand(runCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show the current run status",
		RunE:  runStatus,
	}
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "print status.json verbatim")
	rootCmd.AddCommand(statusCmd)

	monitorCmd := &cobra.Command{
		Use:   "monitor",
		Short: "Watch a run in a live dashboard",
		RunE:  runMonitor,
	}
	rootCmd.AddCommand(monitorCmd)

	doctorCmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check the workspace for run prerequisites",
		RunE:  runDoctor,
	}
	doctorCmd.Flags().BoolVar(&doctorFix, "fix", false, "repair fixable problems before checking")
	doctorCmd.Flags().BoolVar(&doctorStrict, "strict", false, "treat warnings as failures")
	rootCmd.AddCommand(doctorCmd)

	planCmd := &cobra.Command{
		Use:   "plan",
		Short: "Summarize the plan checklist",
		RunE:  runPlan,
	}
	rootCmd.AddCommand(planCmd)

	analyzeCmd := &cobra.Command{
		Use:   "analyze",
		Short: "Review modified files with the engine",
		RunE:  runAnalyze,
	}
	analyzeCmd.Flags().IntVar(&analyzeChunkSize, "chunk-size", analyze.DefaultChunkSize, "files per engine invocation")
	rootCmd.AddCommand(analyzeCmd)

	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "List recent iterations",
		RunE:  runHistory,
	}
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "number of iterations to show")
	rootCmd.AddCommand(historyCmd)

	scheduleCmd := &cobra.Command{
		Use:   "schedule CRON_EXPR",
		Short: "Run the loop on a cron schedule",
		Args:  cobra.ExactArgs(1),
		RunE:  runSchedule,
	}
	scheduleCmd.Flags().Uint64Var(&scheduleMaxLoops, "max-loops", 100, "loop budget per scheduled run")
	rootCmd.AddCommand(scheduleCmd)

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve run state over HTTP and websocket",
		RunE:  runServe,
	}
	serveCmd.Flags().StringVar(&serveAddr, "addr", "127.0.0.1:8484", "listen address")
	rootCmd.AddCommand(serveCmd)
}

func runOverrides() config.Overrides {
	return config.Overrides{
		Engine:          runEngine,
		ThinkingMode:    runThinkingMode,
		MaxCallsPerHour: runMaxCallsPerHour,
		TimeoutMinutes:  runTimeoutMinutes,
		Resume:          runResume,
		ResumeLast:      runResumeLast,
	}
}

func runRun(cmd *cobra.Command, args []string) error {
	cwd, err := resolveCwd()
	if err != nil {
		return err
	}
	return executeRun(cwd, runOverrides(), runMaxLoops, runJSON)
}

// executeRun drives one run to its end and exits the process with the
// outcome's contract code. Shared by run and assistant mode.
func executeRun(cwd string, ov config.Overrides, maxLoops uint64, jsonOut bool) error {
	cfg, err := config.Load(cwd, ov)
	if err != nil {
		return err
	}

	runtimeDir := cfg.RuntimePath(cwd)
	if err := runstate.EnsureDir(runtimeDir); err != nil {
		return err
	}

	hist, err := history.Open(filepath.Join(runtimeDir, historyDBFile))
	if err != nil {
		return fmt.Errorf("opening iteration history: %w", err)
	}

	outcome, err := loop.Run(loop.Request{
		Cwd:      cwd,
		Config:   cfg,
		MaxLoops: maxLoops,
		Recorder: hist,
	})
	hist.Close()
	if err != nil {
		return err
	}

	notifyOutcome(cfg, outcome)

	if jsonOut {
		raw, err := json.MarshalIndent(map[string]any{
			"reason":         outcome.Reason.String(),
			"loops_executed": outcome.LoopsExecuted,
			"status":         outcome.Status,
		}, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(raw))
	} else {
		fmt.Printf("state=%s reason=%s loops=%d\n",
			outcome.Status.State, outcome.Reason, outcome.LoopsExecuted)
	}

	os.Exit(outcome.Reason.ExitCode())
	return nil
}

func notifyOutcome(cfg *config.RunConfig, outcome loop.Outcome) {
	var notifiers []notify.Notifier
	if cfg.SlackWebhook != "" {
		notifiers = append(notifiers, notify.NewSlackNotifier(cfg.SlackWebhook))
	}
	if cfg.DesktopNotify {
		notifiers = append(notifiers, notify.NewDesktopNotifier(true))
	}
	if len(notifiers) == 0 {
		return
	}

	typ := notify.NotifyWarning
	switch outcome.Reason {
	case loop.Completed:
		typ = notify.NotifySuccess
	case loop.CircuitOpened:
		typ = notify.NotifyError
	}

	_ = notify.NewMultiNotifier(notifiers...).Send(notify.Notification{
		Title:     "forge run " + outcome.Reason.String(),
		Message:   fmt.Sprintf("finished after %d loop(s), state %s", outcome.LoopsExecuted, outcome.Status.State),
		Type:      typ,
		SessionID: outcome.Status.SessionID,
	})
}

func runStatus(cmd *cobra.Command, args []string) error {
	cwd, err := resolveCwd()
	if err != nil {
		return err
	}
	cfg, err := config.Load(cwd, config.Overrides{})
	if err != nil {
		return err
	}

	status := runstate.ReadStatusOrDefault(cfg.RuntimePath(cwd))

	if statusJSON {
		raw, err := json.MarshalIndent(status, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(raw))
		return nil
	}

	session := status.SessionID
	if session == "" {
		session = "-"
	}
	fmt.Printf("state: %s\n", status.State)
	fmt.Printf("current_loop: %d\n", status.CurrentLoop)
	fmt.Printf("total_loops_executed: %d\n", status.TotalLoopsExecuted)
	fmt.Printf("completion_indicators: %d\n", status.CompletionIndicators)
	fmt.Printf("exit_signal_seen: %v\n", status.ExitSignalSeen)
	fmt.Printf("session_id: %s\n", session)
	fmt.Printf("updated_at_epoch: %d\n", status.UpdatedAtEpoch)
	return nil
}

func runMonitor(cmd *cobra.Command, args []string) error {
	cwd, err := resolveCwd()
	if err != nil {
		return err
	}
	cfg, err := config.Load(cwd, config.Overrides{})
	if err != nil {
		return err
	}

	model := tui.NewModel(cfg.RuntimePath(cwd))
	p := tea.NewProgram(model, tea.WithAltScreen())
	_, err = p.Run()
	return err
}

func runDoctor(cmd *cobra.Command, args []string) error {
	cwd, err := resolveCwd()
	if err != nil {
		return err
	}

	report, err := doctor.Run(cwd, doctorFix, doctorStrict)
	if err != nil {
		return err
	}

	for _, check := range report.Checks {
		mark := "ok"
		if !check.OK {
			mark = "FAIL"
		}
		fmt.Printf("[%s] %s: %s\n", mark, check.Name, check.Detail)
	}
	for _, warning := range report.Warnings {
		fmt.Printf("[warn] %s\n", warning)
	}
	for _, fix := range report.AttemptedFixes {
		fmt.Printf("[fixed] %s\n", fix)
	}

	if !report.OK {
		os.Exit(1)
	}
	fmt.Println("workspace is ready")
	return nil
}

func runPlan(cmd *cobra.Command, args []string) error {
	cwd, err := resolveCwd()
	if err != nil {
		return err
	}
	cfg, err := config.Load(cwd, config.Overrides{})
	if err != nil {
		return err
	}

	runtimeDir := cfg.RuntimePath(cwd)
	summary, found := plan.Analyze(runtimeDir)
	if !found {
		return fmt.Errorf("no usable plan at %s", filepath.Join(runtimeDir, plan.PlanFile))
	}

	if meta, ok := plan.Meta(runtimeDir); ok && meta.Title != "" {
		fmt.Printf("title: %s\n", meta.Title)
	}
	fmt.Printf("total_items: %d\n", summary.TotalItems)
	fmt.Printf("unchecked_items: %d\n", summary.UncheckedItems)
	fmt.Printf("checked_items: %d\n", summary.CheckedItems)
	return nil
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	cwd, err := resolveCwd()
	if err != nil {
		return err
	}
	cfg, err := config.Load(cwd, config.Overrides{})
	if err != nil {
		return err
	}

	result, err := analyze.Run(cwd, cfg, analyzeChunkSize)
	if err != nil {
		return err
	}

	fmt.Printf("modified_files: %d\n", len(result.ModifiedFiles))
	fmt.Printf("chunks: %d (size %d)\n", result.Chunks, result.ChunkSize)
	if result.FailedChunks > 0 || result.TimedOutChunks > 0 {
		fmt.Printf("failed_chunks: %d timed_out_chunks: %d\n", result.FailedChunks, result.TimedOutChunks)
	}
	fmt.Printf("report: %s\n", result.LatestPath)
	return nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	cwd, err := resolveCwd()
	if err != nil {
		return err
	}
	cfg, err := config.Load(cwd, config.Overrides{})
	if err != nil {
		return err
	}

	hist, err := history.Open(filepath.Join(cfg.RuntimePath(cwd), historyDBFile))
	if err != nil {
		return err
	}
	defer hist.Close()

	records, err := hist.Recent(historyLimit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Println("no iterations recorded yet")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "LOOP\tPROGRESS\tCIRCUIT\tDURATION\tRECORDED\tSUMMARY")
	for _, rec := range records {
		fmt.Fprintf(w, "%d\t%v\t%s\t%s\t%s\t%s\n",
			rec.Loop, rec.Progress, rec.CircuitState,
			rec.Duration.Round(time.Millisecond),
			rec.RecordedAt.Format("2006-01-02 15:04:05"),
			rec.Summary)
	}
	w.Flush()

	progressed, stalled, err := hist.CountByOutcome()
	if err == nil {
		fmt.Printf("\n%d progressed, %d stalled\n", progressed, stalled)
	}
	return nil
}

func runSchedule(cmd *cobra.Command, args []string) error {
	cwd, err := resolveCwd()
	if err != nil {
		return err
	}
	cfg, err := config.Load(cwd, config.Overrides{})
	if err != nil {
		return err
	}

	scheduler, err := sched.Parse(args[0])
	if err != nil {
		return err
	}

	runtimeDir := cfg.RuntimePath(cwd)
	if err := runstate.EnsureDir(runtimeDir); err != nil {
		return err
	}

	stop := make(chan struct{})
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-signals
		close(stop)
	}()

	fmt.Printf("scheduling runs on %q, next at %s\n",
		scheduler.Expression(), scheduler.Next(time.Now()).Format(time.RFC3339))

	scheduler.Run(stop, func(firedAt time.Time) error {
		// One run at a time: skip a firing that overlaps an active run.
		status := runstate.ReadStatusOrDefault(runtimeDir)
		if status.State == domain.StateRunning {
			fmt.Printf("%s: run already active, skipping\n", firedAt.Format(time.RFC3339))
			return nil
		}

		hist, err := history.Open(filepath.Join(runtimeDir, historyDBFile))
		if err != nil {
			return err
		}
		defer hist.Close()

		outcome, err := loop.Run(loop.Request{
			Cwd:      cwd,
			Config:   cfg,
			MaxLoops: scheduleMaxLoops,
			Recorder: hist,
		})
		if err != nil {
			return err
		}

		notifyOutcome(cfg, outcome)
		fmt.Printf("%s: state=%s reason=%s loops=%d\n",
			firedAt.Format(time.RFC3339), outcome.Status.State,
			outcome.Reason, outcome.LoopsExecuted)
		return nil
	}, func(err error) {
		fmt.Fprintf(os.Stderr, "scheduled run failed: %v\n", err)
	})

	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cwd, err := resolveCwd()
	if err != nil {
		return err
	}
	cfg, err := config.Load(cwd, config.Overrides{})
	if err != nil {
		return err
	}

	runtimeDir := cfg.RuntimePath(cwd)
	if err := runstate.EnsureDir(runtimeDir); err != nil {
		return err
	}

	hist, err := history.Open(filepath.Join(runtimeDir, historyDBFile))
	if err != nil {
		return err
	}
	defer hist.Close()

	server := api.NewServer(runtimeDir, hist, serveAddr)
	fmt.Printf("serving run state at http://%s\n", serveAddr)
	return server.Start()
}
