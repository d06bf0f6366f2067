package domain

import "time"

// RunState represents the lifecycle state of a run
type RunState string

const (
	StateIdle            RunState = "idle"
	StateRunning         RunState = "running"
	StateCompleted       RunState = "completed"
	StateCircuitOpen     RunState = "circuit_open"
	StateRateLimited     RunState = "rate_limited"
	StateMaxLoopsReached RunState = "max_loops_reached"
	StateStaleRunner     RunState = "stale_runner"
)

// CircuitState represents the circuit breaker position
type CircuitState string

const (
	CircuitClosed   CircuitState = "closed"
	CircuitHalfOpen CircuitState = "half_open"
	CircuitOpen     CircuitState = "open"
)

// CircuitBreakerState is the persisted breaker snapshot
type CircuitBreakerState struct {
	State                 CircuitState `json:"state"`
	ConsecutiveNoProgress int          `json:"consecutive_no_progress"`
}

// DefaultCircuitBreakerState returns a closed breaker with a zeroed counter
func DefaultCircuitBreakerState() CircuitBreakerState {
	return CircuitBreakerState{State: CircuitClosed}
}

// RunStatus is the durable run snapshot written to status.json after every
// mutation. External monitors read it through the filesystem only.
type RunStatus struct {
	State                     RunState     `json:"state"`
	ThinkingMode              string       `json:"thinking_mode"`
	RunStartedAtEpoch         int64        `json:"run_started_at_epoch"`
	CurrentLoop               uint64       `json:"current_loop"`
	TotalLoopsExecuted        uint64       `json:"total_loops_executed"`
	LastError                 string       `json:"last_error,omitempty"`
	CompletionIndicators      int          `json:"completion_indicators"`
	ExitSignalSeen            bool         `json:"exit_signal_seen"`
	SessionID                 string       `json:"session_id,omitempty"`
	CircuitState              CircuitState `json:"circuit_state"`
	CurrentLoopStartedAtEpoch int64        `json:"current_loop_started_at_epoch"`
	LastHeartbeatAtEpoch      int64        `json:"last_heartbeat_at_epoch"`
	UpdatedAtEpoch            int64        `json:"updated_at_epoch"`
}

// DefaultRunStatus returns the status reported before any run has happened
func DefaultRunStatus() RunStatus {
	return RunStatus{
		State:        StateIdle,
		CircuitState: CircuitClosed,
	}
}

// ProgressSnapshot is the durable per-iteration progress summary
type ProgressSnapshot struct {
	LoopsWithProgress    uint64 `json:"loops_with_progress"`
	LoopsWithoutProgress uint64 `json:"loops_without_progress"`
	LastSummary          string `json:"last_summary"`
	UpdatedAtEpoch       int64  `json:"updated_at_epoch"`
}

// OutputAnalysis holds the facts extracted from one iteration's captured
// output. It is ephemeral; the run loop folds it into RunStatus and
// ProgressSnapshot.
type OutputAnalysis struct {
	ExitSignalTrue       bool
	CompletionIndicators int
	HasError             bool
	HasProgressHint      bool
	SessionID            string
}

// IterationRecord is one row of the iteration history store
type IterationRecord struct {
	ID              string
	Loop            uint64
	Progress        bool
	CircuitState    CircuitState
	NoProgressCount int
	Summary         string
	Duration        time.Duration
	SessionID       string
	RecordedAt      time.Time
}

// EpochNow returns the current time as unix seconds
func EpochNow() int64 {
	return time.Now().Unix()
}
