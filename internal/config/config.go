// Package config loads the run configuration from .forgerc (TOML),
// FORGE_* environment variables, and CLI overrides. Flags beat
// environment, environment beats file, file beats defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// EngineKind selects the coding agent driven by the loop
type EngineKind string

const (
	EngineCodex    EngineKind = "codex"
	EngineOpenCode EngineKind = "opencode"
)

// ThinkingMode controls how much engine reasoning is surfaced
type ThinkingMode string

const (
	ThinkingOff     ThinkingMode = "off"
	ThinkingSummary ThinkingMode = "summary"
	ThinkingRaw     ThinkingMode = "raw"
)

// CodexConfigArgs returns the codex --config flags encoding this mode
func (m ThinkingMode) CodexConfigArgs() []string {
	switch m {
	case ThinkingOff:
		return []string{
			"--config", "hide_agent_reasoning=true",
			"--config", "show_raw_agent_reasoning=false",
			"--config", `model_reasoning_summary="none"`,
		}
	case ThinkingRaw:
		return []string{
			"--config", "hide_agent_reasoning=false",
			"--config", "show_raw_agent_reasoning=true",
			"--config", `model_reasoning_summary="detailed"`,
		}
	default:
		return []string{
			"--config", "hide_agent_reasoning=false",
			"--config", "show_raw_agent_reasoning=false",
			"--config", `model_reasoning_summary="concise"`,
		}
	}
}

// ResumeMode says whether an iteration starts fresh, resumes an explicit
// session, or resumes the most recent one
type ResumeMode struct {
	SessionID string // resume this session when non-empty
	Last      bool   // resume the most recent session
}

// IsNew reports whether iterations start a fresh engine session
func (r ResumeMode) IsNew() bool {
	return !r.Last && r.SessionID == ""
}

// RunConfig is the immutable per-run configuration consumed by the loop
type RunConfig struct {
	Engine               EngineKind
	EngineCmd            string
	EnginePreArgs        []string
	EngineExecArgs       []string
	ThinkingMode         ThinkingMode
	MaxCallsPerHour      int
	TimeoutMinutes       int
	RuntimeDir           string
	CompletionIndicators []string
	AutoWaitOnRateLimit  bool
	SleepOnRateLimitSecs int
	NoProgressLimit      int
	Resume               ResumeMode
	SlackWebhook         string
	DesktopNotify        bool
}

// RuntimePath resolves the runtime directory against cwd
func (c *RunConfig) RuntimePath(cwd string) string {
	if filepath.IsAbs(c.RuntimeDir) {
		return c.RuntimeDir
	}
	return filepath.Join(cwd, c.RuntimeDir)
}

// Overrides carries CLI flag values that take precedence over everything
type Overrides struct {
	Engine          string
	EnginePreArgs   []string
	EngineExecArgs  []string
	ThinkingMode    string
	MaxCallsPerHour int
	TimeoutMinutes  int
	Resume          string
	ResumeLast      bool
}

// forgerc mirrors the optional keys of the .forgerc TOML file. Pointer
// fields distinguish absent keys from zero values for precedence.
type forgerc struct {
	Engine               *string  `toml:"engine"`
	EngineCmd            *string  `toml:"engine_cmd"`
	EnginePreArgs        []string `toml:"engine_pre_args"`
	EngineExecArgs       []string `toml:"engine_exec_args"`
	ThinkingMode         *string  `toml:"thinking_mode"`
	MaxCallsPerHour      *int     `toml:"max_calls_per_hour"`
	TimeoutMinutes       *int     `toml:"timeout_minutes"`
	RuntimeDir           *string  `toml:"runtime_dir"`
	CompletionIndicators []string `toml:"completion_indicators"`
	AutoWaitOnRateLimit  *bool    `toml:"auto_wait_on_rate_limit"`
	SleepOnRateLimitSecs *int     `toml:"sleep_on_rate_limit_secs"`
	NoProgressLimit      *int     `toml:"no_progress_limit"`
	SlackWebhook         *string  `toml:"slack_webhook"`
	DesktopNotify        *bool    `toml:"desktop_notify"`
}

// Load builds the RunConfig for cwd. MaxCallsPerHour of 0 is rejected
// here rather than in the rate limiter: it would deny every call.
func Load(cwd string, ov Overrides) (*RunConfig, error) {
	var file forgerc
	rcPath := filepath.Join(cwd, ".forgerc")
	if raw, err := os.ReadFile(rcPath); err == nil {
		if err := toml.Unmarshal(raw, &file); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", rcPath, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading %s: %w", rcPath, err)
	}

	cfg := &RunConfig{
		Engine:               EngineCodex,
		EngineCmd:            "codex",
		ThinkingMode:         ThinkingSummary,
		MaxCallsPerHour:      100,
		TimeoutMinutes:       15,
		RuntimeDir:           ".forge",
		CompletionIndicators: []string{"STATUS: COMPLETE", "TASK_COMPLETE", "NO_MORE_WORK", "ALL_TASKS_DONE"},
		SleepOnRateLimitSecs: 60,
		NoProgressLimit:      3,
	}

	if kind, ok := firstEngine(ov.Engine, os.Getenv("FORGE_ENGINE"), deref(file.Engine)); ok {
		cfg.Engine = kind
	}
	if cfg.Engine == EngineOpenCode {
		cfg.EngineCmd = "opencode"
	}
	if cmd := firstString(os.Getenv("FORGE_ENGINE_CMD"), deref(file.EngineCmd)); cmd != "" {
		cfg.EngineCmd = cmd
	}
	if mode, ok := firstThinking(ov.ThinkingMode, os.Getenv("FORGE_THINKING_MODE"), deref(file.ThinkingMode)); ok {
		cfg.ThinkingMode = mode
	}

	cfg.EnginePreArgs = firstArgs(ov.EnginePreArgs, envFields("FORGE_ENGINE_PRE_ARGS"), file.EnginePreArgs)
	if cfg.Engine == EngineCodex {
		// codex takes reasoning visibility as --config pairs ahead of the
		// subcommand; opencode handles thinking mode in its own arg builder
		cfg.EnginePreArgs = append(cfg.EnginePreArgs, cfg.ThinkingMode.CodexConfigArgs()...)
	}
	cfg.EngineExecArgs = firstArgs(ov.EngineExecArgs, envFields("FORGE_ENGINE_EXEC_ARGS"), file.EngineExecArgs)

	if v, ok := firstInt(ov.MaxCallsPerHour, envInt("FORGE_MAX_CALLS_PER_HOUR"), file.MaxCallsPerHour); ok {
		cfg.MaxCallsPerHour = v
	}
	if v, ok := firstInt(ov.TimeoutMinutes, envInt("FORGE_TIMEOUT_MINUTES"), file.TimeoutMinutes); ok {
		cfg.TimeoutMinutes = v
	}
	if dir := firstString(os.Getenv("FORGE_RUNTIME_DIR"), deref(file.RuntimeDir)); dir != "" {
		cfg.RuntimeDir = dir
	}
	if indicators := firstArgs(nil, envCSV("FORGE_COMPLETION_INDICATORS"), file.CompletionIndicators); indicators != nil {
		cfg.CompletionIndicators = indicators
	}
	if v, ok := firstBool(envBool("FORGE_AUTO_WAIT_ON_RATE_LIMIT"), file.AutoWaitOnRateLimit); ok {
		cfg.AutoWaitOnRateLimit = v
	}
	if v, ok := firstInt(0, envInt("FORGE_RATE_LIMIT_WAIT_SECS"), file.SleepOnRateLimitSecs); ok {
		cfg.SleepOnRateLimitSecs = v
	}
	if v, ok := firstInt(0, envInt("FORGE_NO_PROGRESS_LIMIT"), file.NoProgressLimit); ok {
		cfg.NoProgressLimit = v
	}
	if hook := firstString(os.Getenv("FORGE_SLACK_WEBHOOK"), deref(file.SlackWebhook)); hook != "" {
		cfg.SlackWebhook = hook
	}
	if v, ok := firstBool(envBool("FORGE_DESKTOP_NOTIFY"), file.DesktopNotify); ok {
		cfg.DesktopNotify = v
	}

	switch {
	case ov.Resume != "":
		cfg.Resume = ResumeMode{SessionID: ov.Resume}
	case ov.ResumeLast:
		cfg.Resume = ResumeMode{Last: true}
	}

	if cfg.MaxCallsPerHour <= 0 {
		return nil, fmt.Errorf("max_calls_per_hour must be greater than 0")
	}
	if cfg.TimeoutMinutes < 0 {
		return nil, fmt.Errorf("timeout_minutes must not be negative")
	}
	if cfg.NoProgressLimit <= 0 {
		return nil, fmt.Errorf("no_progress_limit must be greater than 0")
	}

	return cfg, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func firstString(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// firstInt treats 0 as unset for the flag slot; file values arrive as
// pointers so an explicit 0 in .forgerc still reaches validation.
func firstInt(override int, env *int, file *int) (int, bool) {
	if override != 0 {
		return override, true
	}
	if env != nil {
		return *env, true
	}
	if file != nil {
		return *file, true
	}
	return 0, false
}

func firstBool(env *bool, file *bool) (bool, bool) {
	if env != nil {
		return *env, true
	}
	if file != nil {
		return *file, true
	}
	return false, false
}

func firstArgs(override, env, file []string) []string {
	if override != nil {
		return override
	}
	if env != nil {
		return env
	}
	return file
}

func firstEngine(values ...string) (EngineKind, bool) {
	for _, v := range values {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "codex":
			return EngineCodex, true
		case "opencode":
			return EngineOpenCode, true
		}
	}
	return "", false
}

func firstThinking(values ...string) (ThinkingMode, bool) {
	for _, v := range values {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "off":
			return ThinkingOff, true
		case "summary":
			return ThinkingSummary, true
		case "raw":
			return ThinkingRaw, true
		}
	}
	return "", false
}

func envInt(key string) *int {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil
	}
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return nil
	}
	return &v
}

func envBool(key string) *bool {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil
	}
	var v bool
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "on":
		v = true
	case "0", "false", "no", "off":
		v = false
	default:
		return nil
	}
	return &v
}

func envCSV(key string) []string {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil
	}
	var parts []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return parts
}

func envFields(key string) []string {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil
	}
	fields := strings.Fields(raw)
	if len(fields) == 0 {
		return nil
	}
	return fields
}
