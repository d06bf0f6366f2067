// Package engine drives the external coding agent: building its command
// line, spawning it, streaming its output, and classifying what it said.
package engine

import (
	"os/exec"
	"time"

	"github.com/forgekit/forge/internal/config"
	"github.com/forgekit/forge/internal/domain"
)

// Engine is the capability surface of one coding agent CLI. Variants differ
// in how the command line is assembled; parsing is shared unless overridden.
type Engine interface {
	Name() string
	BuildArgs(params ExecParams) []string
	ParseOutput(stdout, stderr string, indicators []string) domain.OutputAnalysis
	Available() bool
}

// ExecParams carries everything one engine invocation needs. Timeout and
// Watchdog override the config-derived deadlines when positive; left zero,
// the wall clock comes from TimeoutMinutes and the watchdog from its default.
type ExecParams struct {
	Cwd         string
	Config      *config.RunConfig
	Prompt      string
	LiveLogPath string
	Timeout     time.Duration
	Watchdog    time.Duration
}

// RunResult reports one finished invocation. Non-zero exit and timeouts are
// results, not errors.
type RunResult struct {
	Stdout   string
	Stderr   string
	ExitOK   bool
	TimedOut bool
}

// New returns the engine for the configured kind
func New(kind config.EngineKind) Engine {
	if kind == config.EngineOpenCode {
		return OpenCode{}
	}
	return Codex{}
}

// Codex drives the codex CLI through `codex exec --json`
type Codex struct{}

func (Codex) Name() string { return "codex" }

func (Codex) BuildArgs(params ExecParams) []string {
	cfg := params.Config
	args := append([]string{}, cfg.EnginePreArgs...)
	args = append(args, "exec")
	args = append(args, cfg.EngineExecArgs...)

	switch {
	case cfg.Resume.SessionID != "":
		args = append(args, "resume", cfg.Resume.SessionID, "--json")
	case cfg.Resume.Last:
		args = append(args, "resume", "--last", "--json")
	default:
		args = append(args, "--json")
	}

	if params.Prompt != "" {
		args = append(args, params.Prompt)
	}
	return args
}

func (Codex) ParseOutput(stdout, stderr string, indicators []string) domain.OutputAnalysis {
	return ParseOutput(stdout, stderr, indicators)
}

func (Codex) Available() bool {
	return exec.Command("codex", "--version").Run() == nil
}

// OpenCode drives the opencode CLI through `opencode run --json`
type OpenCode struct{}

func (OpenCode) Name() string { return "opencode" }

func (OpenCode) BuildArgs(params ExecParams) []string {
	cfg := params.Config
	args := append([]string{}, cfg.EnginePreArgs...)
	args = append(args, "run")
	args = append(args, cfg.EngineExecArgs...)
	args = append(args, "--json")

	if cfg.ThinkingMode == config.ThinkingOff {
		args = append(args, "--config", "hide_agent_reasoning=true")
	}

	if params.Prompt != "" {
		args = append(args, "--prompt", params.Prompt)
	}
	return args
}

func (OpenCode) ParseOutput(stdout, stderr string, indicators []string) domain.OutputAnalysis {
	return ParseOutput(stdout, stderr, indicators)
}

func (OpenCode) Available() bool {
	return exec.Command("opencode", "--version").Run() == nil
}
