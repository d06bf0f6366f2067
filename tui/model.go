package tui

import (
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/forgekit/forge/internal/domain"
	"github.com/forgekit/forge/internal/plan"
	"github.com/forgekit/forge/internal/proc"
	"github.com/forgekit/forge/internal/runstate"
)

// stallThresholdSecs is how old the heartbeat may get on a running status
// before the monitor flags the run as stalled.
const stallThresholdSecs = 120

const (
	activityLines    = 12
	planPreviewLines = 14
	refreshInterval  = 500 * time.Millisecond
)

// Model is the monitor TUI application model. It owns no run state; every
// tick re-reads the snapshot files under the runtime directory.
type Model struct {
	runtimeDir string

	// Data
	status      domain.RunStatus
	progress    domain.ProgressSnapshot
	planSummary plan.Summary
	planFound   bool
	planPreview string
	activity    []string
	runnerDead  bool

	// UI state
	width      int
	height     int
	actionNote string

	// Refresh
	lastRefresh time.Time
}

// NewModel creates a monitor model watching the given runtime directory
func NewModel(runtimeDir string) Model {
	m := Model{runtimeDir: runtimeDir}
	m.refresh()
	return m
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		tickCmd(),
	)
}

// TickMsg triggers a refresh
type TickMsg time.Time

func tickCmd() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

// refresh re-reads every snapshot the panels render
func (m *Model) refresh() {
	m.status = runstate.ReadStatusOrDefault(m.runtimeDir)
	m.progress = runstate.ReadProgress(m.runtimeDir)
	m.planSummary, m.planFound = plan.Analyze(m.runtimeDir)
	m.planPreview = readPlanPreview(m.runtimeDir, planPreviewLines)

	lines, err := runstate.ReadLinesReverse(filepath.Join(m.runtimeDir, runstate.LiveLogFile), activityLines)
	if err != nil {
		lines = nil
	}
	m.activity = lines

	m.runnerDead = false
	if m.status.State == domain.StateRunning {
		pid := runstate.ReadRunnerPID(m.runtimeDir)
		m.runnerDead = pid == 0 || !proc.Alive(pid)
	}

	m.lastRefresh = time.Now()
}

// heartbeatAgeSecs returns the heartbeat age for a running status, or -1
// when no heartbeat applies (idle, finished, or never beaten).
func (m Model) heartbeatAgeSecs(now int64) int64 {
	if m.status.State != domain.StateRunning || m.status.LastHeartbeatAtEpoch == 0 {
		return -1
	}
	age := now - m.status.LastHeartbeatAtEpoch
	if age < 0 {
		age = 0
	}
	return age
}

func (m Model) stalled(now int64) bool {
	age := m.heartbeatAgeSecs(now)
	return age >= stallThresholdSecs
}
