package loop

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/forgekit/forge/internal/config"
	"github.com/forgekit/forge/internal/domain"
	"github.com/forgekit/forge/internal/engine"
	"github.com/forgekit/forge/internal/runstate"
)

// scriptEngine replaces engine execution with a canned result per iteration
func scriptEngine(t *testing.T, results ...engine.RunResult) {
	t.Helper()
	call := 0
	executeEngine = func(e engine.Engine, params engine.ExecParams, heartbeat func() error) (engine.RunResult, error) {
		if err := heartbeat(); err != nil {
			return engine.RunResult{}, err
		}
		result := results[len(results)-1]
		if call < len(results) {
			result = results[call]
		}
		call++
		return result, nil
	}
	t.Cleanup(func() { executeEngine = engine.Execute })
}

func testConfig() *config.RunConfig {
	return &config.RunConfig{
		Engine:               config.EngineCodex,
		EngineCmd:            "codex",
		ThinkingMode:         config.ThinkingSummary,
		MaxCallsPerHour:      100,
		TimeoutMinutes:       1,
		RuntimeDir:           ".forge",
		CompletionIndicators: []string{"STATUS: COMPLETE", "TASK_COMPLETE"},
		SleepOnRateLimitSecs: 1,
		NoProgressLimit:      3,
	}
}

func runRequest(t *testing.T, cfg *config.RunConfig, maxLoops uint64) Request {
	t.Helper()
	return Request{Cwd: t.TempDir(), Config: cfg, MaxLoops: maxLoops}
}

func TestRun_CompletesOnDualGate(t *testing.T) {
	scriptEngine(t, engine.RunResult{
		Stdout: "EXIT_SIGNAL: true\nSTATUS: COMPLETE\n",
		ExitOK: true,
	})
	req := runRequest(t, testConfig(), 10)

	outcome, err := Run(req)
	if err != nil {
		t.Fatal(err)
	}

	if outcome.Reason != Completed {
		t.Errorf("Reason = %v, want Completed", outcome.Reason)
	}
	if outcome.LoopsExecuted != 1 {
		t.Errorf("LoopsExecuted = %d, want 1", outcome.LoopsExecuted)
	}
	if outcome.Reason.ExitCode() != 0 {
		t.Errorf("ExitCode = %d, want 0", outcome.Reason.ExitCode())
	}

	status := runstate.ReadStatusOrDefault(req.Config.RuntimePath(req.Cwd))
	if status.State != domain.StateCompleted {
		t.Errorf("persisted state = %q, want completed", status.State)
	}
	if status.CurrentLoop != 0 || status.LastHeartbeatAtEpoch != 0 {
		t.Error("finalized status should zero loop and heartbeat fields")
	}
}

func TestRun_ExitSignalAloneDoesNotComplete(t *testing.T) {
	scriptEngine(t, engine.RunResult{Stdout: "exit_signal: true\nworking on it\n", ExitOK: true})
	req := runRequest(t, testConfig(), 3)

	outcome, err := Run(req)
	if err != nil {
		t.Fatal(err)
	}
	if outcome.Reason != MaxLoopsReached {
		t.Errorf("Reason = %v, want MaxLoopsReached; one gate leg must not complete the run", outcome.Reason)
	}
	if outcome.Reason.ExitCode() != 4 {
		t.Errorf("ExitCode = %d, want 4", outcome.Reason.ExitCode())
	}
}

func TestRun_IndicatorAloneDoesNotComplete(t *testing.T) {
	scriptEngine(t, engine.RunResult{Stdout: "STATUS: COMPLETE\n", ExitOK: true})
	req := runRequest(t, testConfig(), 2)

	outcome, err := Run(req)
	if err != nil {
		t.Fatal(err)
	}
	if outcome.Reason != MaxLoopsReached {
		t.Errorf("Reason = %v, want MaxLoopsReached", outcome.Reason)
	}
}

func TestRun_BreakerOpensAfterLimit(t *testing.T) {
	scriptEngine(t, engine.RunResult{Stdout: "", ExitOK: false})
	cfg := testConfig()
	cfg.NoProgressLimit = 3
	req := runRequest(t, cfg, 10)

	outcome, err := Run(req)
	if err != nil {
		t.Fatal(err)
	}

	if outcome.Reason != CircuitOpened {
		t.Errorf("Reason = %v, want CircuitOpened", outcome.Reason)
	}
	if outcome.LoopsExecuted != 3 {
		t.Errorf("LoopsExecuted = %d, want 3", outcome.LoopsExecuted)
	}
	if outcome.Reason.ExitCode() != 2 {
		t.Errorf("ExitCode = %d, want 2", outcome.Reason.ExitCode())
	}

	runtimeDir := req.Config.RuntimePath(req.Cwd)
	breakerState := runstate.ReadBreakerState(runtimeDir)
	if breakerState.State != domain.CircuitOpen {
		t.Errorf("persisted breaker state = %q, want open", breakerState.State)
	}
	history, err := os.ReadFile(filepath.Join(runtimeDir, runstate.BreakerHistoryFile))
	if err != nil {
		t.Fatal(err)
	}
	if len(history) == 0 {
		t.Error("breaker history should have one line per iteration")
	}
}

func TestRun_ProgressResetsBreakerStreak(t *testing.T) {
	scriptEngine(t,
		engine.RunResult{ExitOK: false},                          // no progress
		engine.RunResult{ExitOK: false},                          // no progress
		engine.RunResult{Stdout: "wrote file.go\n", ExitOK: true}, // progress
		engine.RunResult{ExitOK: false},
		engine.RunResult{ExitOK: false},
	)
	cfg := testConfig()
	cfg.NoProgressLimit = 3
	req := runRequest(t, cfg, 5)

	outcome, err := Run(req)
	if err != nil {
		t.Fatal(err)
	}
	if outcome.Reason != MaxLoopsReached {
		t.Errorf("Reason = %v, want MaxLoopsReached after streak reset", outcome.Reason)
	}

	progress := runstate.ReadProgress(req.Config.RuntimePath(req.Cwd))
	if progress.LoopsWithProgress != 1 {
		t.Errorf("LoopsWithProgress = %d, want 1", progress.LoopsWithProgress)
	}
	if progress.LoopsWithoutProgress != 4 {
		t.Errorf("LoopsWithoutProgress = %d, want 4", progress.LoopsWithoutProgress)
	}
}

func TestRun_CompletionWinsOverBreakerTrip(t *testing.T) {
	// Failed exit with no progress trips a limit-1 breaker on the same
	// iteration that satisfies the dual gate; completion must win.
	scriptEngine(t, engine.RunResult{
		Stdout: "EXIT_SIGNAL: true\nTASK_COMPLETE\n",
		ExitOK: false,
	})
	cfg := testConfig()
	cfg.NoProgressLimit = 1
	req := runRequest(t, cfg, 5)

	outcome, err := Run(req)
	if err != nil {
		t.Fatal(err)
	}
	if outcome.Reason != Completed {
		t.Errorf("Reason = %v, want Completed", outcome.Reason)
	}
}

func TestRun_RateLimitedWithoutAutoWait(t *testing.T) {
	scriptEngine(t, engine.RunResult{Stdout: "wrote a thing\n", ExitOK: true})
	cfg := testConfig()
	cfg.MaxCallsPerHour = 1
	req := runRequest(t, cfg, 10)

	outcome, err := Run(req)
	if err != nil {
		t.Fatal(err)
	}

	if outcome.Reason != RateLimited {
		t.Errorf("Reason = %v, want RateLimited", outcome.Reason)
	}
	if outcome.Reason.ExitCode() != 3 {
		t.Errorf("ExitCode = %d, want 3", outcome.Reason.ExitCode())
	}
	status := runstate.ReadStatusOrDefault(req.Config.RuntimePath(req.Cwd))
	if status.State != domain.StateRateLimited {
		t.Errorf("persisted state = %q, want rate_limited", status.State)
	}
}

func TestRun_AutoWaitRetriesWithoutConsumingLoops(t *testing.T) {
	scriptEngine(t, engine.RunResult{Stdout: "wrote a thing\n", ExitOK: true})
	cfg := testConfig()
	cfg.MaxCallsPerHour = 1
	cfg.AutoWaitOnRateLimit = true
	req := runRequest(t, cfg, 2)

	runtimeDir := cfg.RuntimePath(req.Cwd)
	sleeps := 0
	req.Sleep = func(time.Duration) {
		sleeps++
		// Stand in for the hour elapsing.
		if err := os.WriteFile(filepath.Join(runtimeDir, ".call_count"), []byte("0"), 0644); err != nil {
			t.Fatal(err)
		}
	}

	outcome, err := Run(req)
	if err != nil {
		t.Fatal(err)
	}

	if outcome.Reason != MaxLoopsReached {
		t.Errorf("Reason = %v, want MaxLoopsReached", outcome.Reason)
	}
	if outcome.Status.TotalLoopsExecuted != 2 {
		t.Errorf("TotalLoopsExecuted = %d, want 2; waiting must not burn the budget", outcome.Status.TotalLoopsExecuted)
	}
	if sleeps != 1 {
		t.Errorf("sleeps = %d, want 1", sleeps)
	}
}

func TestRun_PersistsSessionID(t *testing.T) {
	scriptEngine(t, engine.RunResult{
		Stdout: `{"type":"thread.started","thread_id":"sess-99"}` + "\n",
		ExitOK: true,
	})
	req := runRequest(t, testConfig(), 1)

	outcome, err := Run(req)
	if err != nil {
		t.Fatal(err)
	}

	if outcome.Status.SessionID != "sess-99" {
		t.Errorf("SessionID = %q, want sess-99", outcome.Status.SessionID)
	}
	raw, err := os.ReadFile(filepath.Join(req.Config.RuntimePath(req.Cwd), runstate.SessionIDFile))
	if err != nil {
		t.Fatal(err)
	}
	if string(raw) != "sess-99" {
		t.Errorf(".session_id = %q, want sess-99", raw)
	}
}

func TestRun_PreservesPriorSessionID(t *testing.T) {
	scriptEngine(t, engine.RunResult{Stdout: "no json here\n", ExitOK: true})
	req := runRequest(t, testConfig(), 1)
	runtimeDir := req.Config.RuntimePath(req.Cwd)
	if err := runstate.EnsureDir(runtimeDir); err != nil {
		t.Fatal(err)
	}
	prior := domain.RunStatus{State: domain.StateCompleted, SessionID: "old-session"}
	if err := runstate.WriteStatus(runtimeDir, &prior); err != nil {
		t.Fatal(err)
	}

	outcome, err := Run(req)
	if err != nil {
		t.Fatal(err)
	}
	if outcome.Status.SessionID != "old-session" {
		t.Errorf("SessionID = %q, want carried-over old-session", outcome.Status.SessionID)
	}
}

func TestRun_RemovesRunnerPidGuard(t *testing.T) {
	scriptEngine(t, engine.RunResult{Stdout: "EXIT_SIGNAL: true\nTASK_COMPLETE\n", ExitOK: true})
	req := runRequest(t, testConfig(), 1)

	if _, err := Run(req); err != nil {
		t.Fatal(err)
	}

	pidPath := filepath.Join(req.Config.RuntimePath(req.Cwd), runstate.RunnerPIDFile)
	if _, err := os.Stat(pidPath); !os.IsNotExist(err) {
		t.Error("runner pid guard should be removed after the run")
	}
}

func TestRun_PidGuardHoldsOwnPidDuringRun(t *testing.T) {
	var seenPid int
	executeEngine = func(e engine.Engine, params engine.ExecParams, heartbeat func() error) (engine.RunResult, error) {
		raw, err := os.ReadFile(filepath.Join(filepath.Dir(params.LiveLogPath), runstate.RunnerPIDFile))
		if err != nil {
			return engine.RunResult{}, err
		}
		seenPid, _ = strconv.Atoi(string(raw))
		return engine.RunResult{Stdout: "EXIT_SIGNAL: true\nTASK_COMPLETE\n", ExitOK: true}, nil
	}
	t.Cleanup(func() { executeEngine = engine.Execute })

	req := runRequest(t, testConfig(), 1)
	if _, err := Run(req); err != nil {
		t.Fatal(err)
	}
	if seenPid != os.Getpid() {
		t.Errorf("pid guard = %d, want %d", seenPid, os.Getpid())
	}
}

func TestRun_RecorderReceivesIterations(t *testing.T) {
	scriptEngine(t,
		engine.RunResult{Stdout: "wrote file\n", ExitOK: true},
		engine.RunResult{ExitOK: false},
	)
	req := runRequest(t, testConfig(), 2)
	rec := &captureRecorder{}
	req.Recorder = rec

	if _, err := Run(req); err != nil {
		t.Fatal(err)
	}

	if len(rec.records) != 2 {
		t.Fatalf("records = %d, want 2", len(rec.records))
	}
	if !rec.records[0].Progress || rec.records[1].Progress {
		t.Error("record progress flags should mirror iteration classification")
	}
	if rec.records[1].NoProgressCount != 1 {
		t.Errorf("NoProgressCount = %d, want 1", rec.records[1].NoProgressCount)
	}
}

func TestRun_TimedOutIterationSetsLastError(t *testing.T) {
	scriptEngine(t, engine.RunResult{TimedOut: true})
	cfg := testConfig()
	cfg.NoProgressLimit = 1
	req := runRequest(t, cfg, 1)

	outcome, err := Run(req)
	if err != nil {
		t.Fatal(err)
	}
	if outcome.Status.LastError != "iteration timed out" {
		t.Errorf("LastError = %q", outcome.Status.LastError)
	}
}

func TestRun_SummaryTruncation(t *testing.T) {
	if got := summarizeOutput("hello", "world"); got != "hello world" {
		t.Errorf("summarizeOutput = %q", got)
	}
	long := make([]byte, 300)
	for i := range long {
		long[i] = 'x'
	}
	if got := summarizeOutput(string(long), ""); len([]rune(got)) != 180 {
		t.Errorf("len = %d, want 180", len([]rune(got)))
	}
	if got := summarizeOutput("", ""); got != "no output" {
		t.Errorf("summarizeOutput = %q, want no output", got)
	}
}

func TestReason_StringAndExitCodes(t *testing.T) {
	tests := []struct {
		reason Reason
		name   string
		code   int
	}{
		{Completed, "completed", 0},
		{CircuitOpened, "circuit_open", 2},
		{RateLimited, "rate_limited", 3},
		{MaxLoopsReached, "max_loops_reached", 4},
	}
	for _, tt := range tests {
		if tt.reason.String() != tt.name {
			t.Errorf("String() = %q, want %q", tt.reason.String(), tt.name)
		}
		if tt.reason.ExitCode() != tt.code {
			t.Errorf("%s ExitCode = %d, want %d", tt.name, tt.reason.ExitCode(), tt.code)
		}
	}
}

type captureRecorder struct {
	records []domain.IterationRecord
}

func (c *captureRecorder) Record(rec domain.IterationRecord) error {
	c.records = append(c.records, rec)
	return nil
}
