// Package loop composes the rate limiter, engine execution, output analysis
// and circuit breaker into the bounded iteration loop that drives one run.
package loop

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/forgekit/forge/internal/breaker"
	"github.com/forgekit/forge/internal/config"
	"github.com/forgekit/forge/internal/domain"
	"github.com/forgekit/forge/internal/engine"
	"github.com/forgekit/forge/internal/plan"
	"github.com/forgekit/forge/internal/ratelimit"
	"github.com/forgekit/forge/internal/runstate"
)

// Reason says why a run ended
type Reason int

const (
	Completed Reason = iota
	CircuitOpened
	RateLimited
	MaxLoopsReached
)

func (r Reason) String() string {
	switch r {
	case Completed:
		return "completed"
	case CircuitOpened:
		return "circuit_open"
	case RateLimited:
		return "rate_limited"
	case MaxLoopsReached:
		return "max_loops_reached"
	}
	return "unknown"
}

// ExitCode maps a reason onto the process exit code contract
func (r Reason) ExitCode() int {
	switch r {
	case Completed:
		return 0
	case CircuitOpened:
		return 2
	case RateLimited:
		return 3
	case MaxLoopsReached:
		return 4
	}
	return 1
}

// RunState returns the finalized status state for this reason
func (r Reason) RunState() domain.RunState {
	switch r {
	case Completed:
		return domain.StateCompleted
	case CircuitOpened:
		return domain.StateCircuitOpen
	case RateLimited:
		return domain.StateRateLimited
	}
	return domain.StateMaxLoopsReached
}

// Recorder receives one record per finished iteration. Optional; the run
// works identically without one.
type Recorder interface {
	Record(rec domain.IterationRecord) error
}

// Request configures one run
type Request struct {
	Cwd      string
	Config   *config.RunConfig
	MaxLoops uint64
	Recorder Recorder
	Sleep    func(time.Duration) // nil means time.Sleep
}

// Outcome reports a finished run
type Outcome struct {
	Reason        Reason
	LoopsExecuted uint64
	Status        domain.RunStatus
}

// executeEngine is swapped out by tests that script engine behavior
var executeEngine = engine.Execute

// Run drives iterations until completion, a breaker trip, rate exhaustion,
// or the loop budget. Errors are infrastructure failures (persistence,
// spawning); every domain outcome comes back as an Outcome.
func Run(req Request) (Outcome, error) {
	runtimeDir := req.Config.RuntimePath(req.Cwd)
	if err := runstate.EnsureDir(runtimeDir); err != nil {
		return Outcome{}, err
	}

	pidPath := filepath.Join(runtimeDir, runstate.RunnerPIDFile)
	if err := os.WriteFile(pidPath, []byte(fmt.Sprintf("%d", os.Getpid())), 0644); err != nil {
		return Outcome{}, fmt.Errorf("writing %s: %w", pidPath, err)
	}
	defer os.Remove(pidPath)

	sleep := req.Sleep
	if sleep == nil {
		sleep = time.Sleep
	}

	eng := engine.New(req.Config.Engine)
	previous := runstate.ReadStatusOrDefault(runtimeDir)

	status := domain.RunStatus{
		State:             domain.StateRunning,
		ThinkingMode:      string(req.Config.ThinkingMode),
		RunStartedAtEpoch: domain.EpochNow(),
		SessionID:         previous.SessionID,
		CircuitState:      domain.CircuitClosed,
		UpdatedAtEpoch:    domain.EpochNow(),
	}
	progress := domain.ProgressSnapshot{UpdatedAtEpoch: domain.EpochNow()}
	circuit := breaker.New(req.Config.NoProgressLimit)

	if err := persistAll(runtimeDir, &status, &progress, circuit); err != nil {
		return Outcome{}, err
	}

	limiter := ratelimit.New(req.Config.MaxCallsPerHour)
	liveLog := filepath.Join(runtimeDir, runstate.LiveLogFile)
	var loopCount uint64

	for loopCount < req.MaxLoops {
		loopCount++
		loopStarted := time.Now()
		status.CurrentLoop = loopCount
		status.CurrentLoopStartedAtEpoch = domain.EpochNow()
		status.UpdatedAtEpoch = domain.EpochNow()
		if err := runstate.WriteStatus(runtimeDir, &status); err != nil {
			return Outcome{}, err
		}
		progress.LastSummary = fmt.Sprintf("loop %d started: invoking %s", loopCount, eng.Name())
		progress.UpdatedAtEpoch = domain.EpochNow()
		if err := runstate.WriteProgress(runtimeDir, &progress); err != nil {
			return Outcome{}, err
		}
		_ = runstate.AppendLiveActivity(liveLog, fmt.Sprintf("loop %d: %s exec started", loopCount, eng.Name()))

		// Admission does not consume the loop budget: a rejected check with
		// auto-wait enabled sleeps and retries this same iteration.
		for {
			rate, err := limiter.CheckAndIncrement(runtimeDir, domain.EpochNow())
			if err != nil {
				return Outcome{}, err
			}
			if rate.Allowed {
				break
			}
			if !req.Config.AutoWaitOnRateLimit {
				return finalize(runtimeDir, &status, RateLimited, loopCount)
			}
			_ = runstate.AppendLiveActivity(liveLog, fmt.Sprintf(
				"loop %d: hourly call budget exhausted (%d used); waiting %ds",
				loopCount, rate.CurrentCount, req.Config.SleepOnRateLimitSecs))
			sleep(time.Duration(req.Config.SleepOnRateLimitSecs) * time.Second)
		}

		status.LastHeartbeatAtEpoch = domain.EpochNow()
		if err := runstate.WriteStatus(runtimeDir, &status); err != nil {
			return Outcome{}, err
		}

		prompt := plan.BuildPrompt(runtimeDir)
		result, err := executeEngine(eng, engine.ExecParams{
			Cwd:         req.Cwd,
			Config:      req.Config,
			Prompt:      prompt,
			LiveLogPath: liveLog,
		}, func() error {
			status.LastHeartbeatAtEpoch = domain.EpochNow()
			status.UpdatedAtEpoch = domain.EpochNow()
			return runstate.WriteStatus(runtimeDir, &status)
		})
		if err != nil {
			return Outcome{}, err
		}

		endState := "completed"
		if result.TimedOut {
			endState = "timed out"
		} else if !result.ExitOK {
			endState = "failed"
		}
		_ = runstate.AppendLiveActivity(liveLog, fmt.Sprintf("loop %d: %s exec %s", loopCount, eng.Name(), endState))

		analysis := eng.ParseOutput(result.Stdout, result.Stderr, req.Config.CompletionIndicators)

		if analysis.SessionID != "" {
			status.SessionID = analysis.SessionID
			sessionPath := filepath.Join(runtimeDir, runstate.SessionIDFile)
			if err := os.WriteFile(sessionPath, []byte(analysis.SessionID), 0644); err != nil {
				return Outcome{}, fmt.Errorf("writing %s: %w", sessionPath, err)
			}
		}

		hasProgress := analysis.HasProgressHint || (result.ExitOK && strings.TrimSpace(result.Stdout) != "")

		var action breaker.Action
		if hasProgress {
			action = circuit.RecordProgress()
			progress.LoopsWithProgress++
		} else {
			action = circuit.RecordNoProgress()
			progress.LoopsWithoutProgress++
		}

		progress.LastSummary = summarizeOutput(result.Stdout, result.Stderr)
		progress.UpdatedAtEpoch = domain.EpochNow()

		status.TotalLoopsExecuted++
		status.ExitSignalSeen = analysis.ExitSignalTrue
		status.CompletionIndicators = analysis.CompletionIndicators
		status.LastError = ""
		if result.TimedOut {
			status.LastError = "iteration timed out"
		} else if analysis.HasError {
			status.LastError = "error marker found in output"
		}
		status.CircuitState = circuit.State().State
		status.UpdatedAtEpoch = domain.EpochNow()

		if err := persistAll(runtimeDir, &status, &progress, circuit); err != nil {
			return Outcome{}, err
		}
		if err := runstate.AppendHistory(
			filepath.Join(runtimeDir, runstate.BreakerHistoryFile),
			fmt.Sprintf("%d loop=%d state=%s no_progress=%d\n",
				domain.EpochNow(), loopCount, circuit.State().State, circuit.ConsecutiveNoProgress()),
		); err != nil {
			return Outcome{}, err
		}

		if req.Recorder != nil {
			_ = req.Recorder.Record(domain.IterationRecord{
				Loop:            loopCount,
				Progress:        hasProgress,
				CircuitState:    circuit.State().State,
				NoProgressCount: circuit.ConsecutiveNoProgress(),
				Summary:         progress.LastSummary,
				Duration:        time.Since(loopStarted),
				SessionID:       status.SessionID,
				RecordedAt:      time.Now(),
			})
		}

		// Dual gate, checked ahead of the breaker so genuine completion wins
		// over a circuit trip on the same iteration.
		if completed(analysis, result.Stdout) {
			return finalize(runtimeDir, &status, Completed, loopCount)
		}

		if action == breaker.OpenCircuit {
			return finalize(runtimeDir, &status, CircuitOpened, loopCount)
		}
	}

	return finalize(runtimeDir, &status, MaxLoopsReached, loopCount)
}

// completed requires both gate legs: the exit signal AND either an indicator
// hit or an explicit completion marker in stdout.
func completed(analysis domain.OutputAnalysis, stdout string) bool {
	if !analysis.ExitSignalTrue {
		return false
	}
	if analysis.CompletionIndicators > 0 {
		return true
	}
	lowered := strings.ToLower(stdout)
	return strings.Contains(lowered, "status: complete") || strings.Contains(lowered, "task_complete")
}

func finalize(runtimeDir string, status *domain.RunStatus, reason Reason, loops uint64) (Outcome, error) {
	status.State = reason.RunState()
	status.CurrentLoop = 0
	status.CurrentLoopStartedAtEpoch = 0
	status.LastHeartbeatAtEpoch = 0
	status.UpdatedAtEpoch = domain.EpochNow()
	if err := runstate.WriteStatus(runtimeDir, status); err != nil {
		return Outcome{}, err
	}
	return Outcome{Reason: reason, LoopsExecuted: loops, Status: *status}, nil
}

func persistAll(runtimeDir string, status *domain.RunStatus, progress *domain.ProgressSnapshot, circuit *breaker.Breaker) error {
	if err := runstate.WriteProgress(runtimeDir, progress); err != nil {
		return err
	}
	if err := runstate.WriteStatus(runtimeDir, status); err != nil {
		return err
	}
	return runstate.WriteBreakerState(runtimeDir, circuit.State())
}

func summarizeOutput(stdout, stderr string) string {
	joined := strings.TrimSpace(strings.TrimSpace(stdout) + " " + strings.TrimSpace(stderr))
	if joined == "" {
		return "no output"
	}
	runes := []rune(joined)
	if len(runes) > 180 {
		runes = runes[:180]
	}
	return string(runes)
}
