// Package runstate persists run status and progress under the runtime
// directory and gives external readers a self-healing view of crashed runs.
package runstate

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/forgekit/forge/internal/domain"
	"github.com/forgekit/forge/internal/proc"
)

// File names under the runtime directory. Shared with the run loop and any
// external monitor; the dot-prefixed files are implementation detail state.
const (
	StatusFile         = "status.json"
	ProgressFile       = "progress.json"
	BreakerStateFile   = ".circuit_breaker_state"
	BreakerHistoryFile = ".circuit_breaker_history"
	SessionIDFile      = ".session_id"
	RunnerPIDFile      = ".runner_pid"
	LiveLogFile        = "live.log"
)

// ReadStatus loads status.json. When the status claims "running" but the
// owning process is gone, the status is rewritten in place to "stale_runner"
// before being returned; reads self-heal so a crashed run never appears live.
func ReadStatus(runtimeDir string) (domain.RunStatus, error) {
	path := filepath.Join(runtimeDir, StatusFile)
	status := domain.DefaultRunStatus()
	if err := ReadJSON(path, &status); err != nil {
		return domain.RunStatus{}, err
	}

	if isStaleRunning(runtimeDir, status) {
		status.State = domain.StateStaleRunner
		status.CurrentLoop = 0
		status.CurrentLoopStartedAtEpoch = 0
		status.LastHeartbeatAtEpoch = 0
		if status.LastError == "" {
			status.LastError = "runner process not found"
		}
		status.UpdatedAtEpoch = domain.EpochNow()
		_ = WriteJSON(path, &status)
		_ = os.Remove(filepath.Join(runtimeDir, RunnerPIDFile))
	}
	return status, nil
}

// ReadStatusOrDefault is ReadStatus with an idle default for missing files
func ReadStatusOrDefault(runtimeDir string) domain.RunStatus {
	status, err := ReadStatus(runtimeDir)
	if err != nil {
		return domain.DefaultRunStatus()
	}
	return status
}

// ReadProgress loads progress.json, falling back to an empty snapshot
func ReadProgress(runtimeDir string) domain.ProgressSnapshot {
	var progress domain.ProgressSnapshot
	ReadJSONInto(filepath.Join(runtimeDir, ProgressFile), &progress)
	return progress
}

// WriteStatus persists the status snapshot
func WriteStatus(runtimeDir string, status *domain.RunStatus) error {
	return WriteJSON(filepath.Join(runtimeDir, StatusFile), status)
}

// WriteProgress persists the progress snapshot
func WriteProgress(runtimeDir string, progress *domain.ProgressSnapshot) error {
	return WriteJSON(filepath.Join(runtimeDir, ProgressFile), progress)
}

// ReadBreakerState loads the persisted breaker snapshot, defaulting to closed
func ReadBreakerState(runtimeDir string) domain.CircuitBreakerState {
	state := domain.DefaultCircuitBreakerState()
	ReadJSONInto(filepath.Join(runtimeDir, BreakerStateFile), &state)
	return state
}

// WriteBreakerState persists the breaker snapshot
func WriteBreakerState(runtimeDir string, state domain.CircuitBreakerState) error {
	return WriteJSON(filepath.Join(runtimeDir, BreakerStateFile), state)
}

// ReadRunnerPID returns the recorded owner pid, or 0 when missing/malformed
func ReadRunnerPID(runtimeDir string) int {
	raw, err := os.ReadFile(filepath.Join(runtimeDir, RunnerPIDFile))
	if err != nil {
		return 0
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil || pid <= 0 {
		return 0
	}
	return pid
}

// StopRunner signals the recorded owner process to terminate
func StopRunner(runtimeDir string) (string, error) {
	pid := ReadRunnerPID(runtimeDir)
	if pid == 0 {
		return "", fmt.Errorf("no runner pid recorded")
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return "", fmt.Errorf("finding runner process %d: %w", pid, err)
	}
	if err := process.Signal(syscall.SIGTERM); err != nil {
		return "", fmt.Errorf("signaling runner process %d: %w", pid, err)
	}
	return fmt.Sprintf("sent SIGTERM to runner pid %d", pid), nil
}

func isStaleRunning(runtimeDir string, status domain.RunStatus) bool {
	if status.State != domain.StateRunning {
		return false
	}
	raw, err := os.ReadFile(filepath.Join(runtimeDir, RunnerPIDFile))
	if err != nil {
		return true
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil || pid <= 0 {
		return true
	}
	return !proc.Alive(pid)
}
