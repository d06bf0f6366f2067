package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(t.TempDir(), Overrides{})
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Engine != EngineCodex {
		t.Errorf("Engine = %q, want codex", cfg.Engine)
	}
	if cfg.EngineCmd != "codex" {
		t.Errorf("EngineCmd = %q, want codex", cfg.EngineCmd)
	}
	if cfg.ThinkingMode != ThinkingSummary {
		t.Errorf("ThinkingMode = %q, want summary", cfg.ThinkingMode)
	}
	if cfg.MaxCallsPerHour != 100 {
		t.Errorf("MaxCallsPerHour = %d, want 100", cfg.MaxCallsPerHour)
	}
	if cfg.TimeoutMinutes != 15 {
		t.Errorf("TimeoutMinutes = %d, want 15", cfg.TimeoutMinutes)
	}
	if cfg.RuntimeDir != ".forge" {
		t.Errorf("RuntimeDir = %q, want .forge", cfg.RuntimeDir)
	}
	if cfg.NoProgressLimit != 3 {
		t.Errorf("NoProgressLimit = %d, want 3", cfg.NoProgressLimit)
	}
	if cfg.SleepOnRateLimitSecs != 60 {
		t.Errorf("SleepOnRateLimitSecs = %d, want 60", cfg.SleepOnRateLimitSecs)
	}
	if len(cfg.CompletionIndicators) != 4 || cfg.CompletionIndicators[0] != "STATUS: COMPLETE" {
		t.Errorf("CompletionIndicators = %v", cfg.CompletionIndicators)
	}
	if !cfg.Resume.IsNew() {
		t.Error("default resume mode should start fresh sessions")
	}
	joined := strings.Join(cfg.EnginePreArgs, " ")
	if !strings.Contains(joined, `model_reasoning_summary="concise"`) {
		t.Errorf("codex pre args %q missing thinking config", joined)
	}
}

func TestLoad_FromFile(t *testing.T) {
	dir := t.TempDir()
	content := `
engine = "opencode"
max_calls_per_hour = 20
timeout_minutes = 5
runtime_dir = ".harness"
completion_indicators = ["DONE", "FINISHED"]
auto_wait_on_rate_limit = true
no_progress_limit = 5
slack_webhook = "https://hooks.slack.com/services/T/B/x"
`
	if err := os.WriteFile(filepath.Join(dir, ".forgerc"), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(dir, Overrides{})
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Engine != EngineOpenCode {
		t.Errorf("Engine = %q, want opencode", cfg.Engine)
	}
	if cfg.EngineCmd != "opencode" {
		t.Errorf("EngineCmd = %q, want opencode", cfg.EngineCmd)
	}
	if cfg.MaxCallsPerHour != 20 {
		t.Errorf("MaxCallsPerHour = %d, want 20", cfg.MaxCallsPerHour)
	}
	if cfg.TimeoutMinutes != 5 {
		t.Errorf("TimeoutMinutes = %d, want 5", cfg.TimeoutMinutes)
	}
	if cfg.RuntimeDir != ".harness" {
		t.Errorf("RuntimeDir = %q, want .harness", cfg.RuntimeDir)
	}
	if len(cfg.CompletionIndicators) != 2 || cfg.CompletionIndicators[0] != "DONE" {
		t.Errorf("CompletionIndicators = %v", cfg.CompletionIndicators)
	}
	if !cfg.AutoWaitOnRateLimit {
		t.Error("AutoWaitOnRateLimit should be true")
	}
	if cfg.NoProgressLimit != 5 {
		t.Errorf("NoProgressLimit = %d, want 5", cfg.NoProgressLimit)
	}
	if cfg.SlackWebhook == "" {
		t.Error("SlackWebhook should be set")
	}
}

func TestLoad_MalformedFileFails(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".forgerc"), []byte("engine = [broken"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(dir, Overrides{}); err == nil {
		t.Error("malformed .forgerc should fail loading")
	}
}

func TestLoad_EnvBeatsFile(t *testing.T) {
	dir := t.TempDir()
	content := "max_calls_per_hour = 20\nengine = \"codex\"\n"
	if err := os.WriteFile(filepath.Join(dir, ".forgerc"), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("FORGE_MAX_CALLS_PER_HOUR", "50")
	t.Setenv("FORGE_ENGINE", "opencode")

	cfg, err := Load(dir, Overrides{})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.MaxCallsPerHour != 50 {
		t.Errorf("MaxCallsPerHour = %d, want 50 (env)", cfg.MaxCallsPerHour)
	}
	if cfg.Engine != EngineOpenCode {
		t.Errorf("Engine = %q, want opencode (env)", cfg.Engine)
	}
}

func TestLoad_FlagsBeatEnv(t *testing.T) {
	t.Setenv("FORGE_MAX_CALLS_PER_HOUR", "50")
	t.Setenv("FORGE_THINKING_MODE", "off")

	cfg, err := Load(t.TempDir(), Overrides{MaxCallsPerHour: 7, ThinkingMode: "raw"})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.MaxCallsPerHour != 7 {
		t.Errorf("MaxCallsPerHour = %d, want 7 (flag)", cfg.MaxCallsPerHour)
	}
	if cfg.ThinkingMode != ThinkingRaw {
		t.Errorf("ThinkingMode = %q, want raw (flag)", cfg.ThinkingMode)
	}
}

func TestLoad_ZeroCallBudgetRejected(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".forgerc"), []byte("max_calls_per_hour = 0\n"), 0644); err != nil {
		t.Fatal(err)
	}

	_, err := Load(dir, Overrides{})
	if err == nil {
		t.Fatal("max_calls_per_hour = 0 should be rejected")
	}
	if !strings.Contains(err.Error(), "max_calls_per_hour") {
		t.Errorf("error %q should name the offending key", err)
	}
}

func TestLoad_ResumeModes(t *testing.T) {
	cfg, err := Load(t.TempDir(), Overrides{Resume: "sess-42"})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Resume.IsNew() || cfg.Resume.SessionID != "sess-42" {
		t.Errorf("Resume = %+v, want explicit session", cfg.Resume)
	}

	cfg, err = Load(t.TempDir(), Overrides{ResumeLast: true})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Resume.IsNew() || !cfg.Resume.Last {
		t.Errorf("Resume = %+v, want last", cfg.Resume)
	}
}

func TestLoad_EnvIndicatorsCSV(t *testing.T) {
	t.Setenv("FORGE_COMPLETION_INDICATORS", "DONE, ALL SET ,")

	cfg, err := Load(t.TempDir(), Overrides{})
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.CompletionIndicators) != 2 {
		t.Fatalf("CompletionIndicators = %v, want 2 entries", cfg.CompletionIndicators)
	}
	if cfg.CompletionIndicators[1] != "ALL SET" {
		t.Errorf("indicator[1] = %q, want trimmed", cfg.CompletionIndicators[1])
	}
}

func TestThinkingMode_CodexConfigArgs(t *testing.T) {
	tests := []struct {
		mode ThinkingMode
		want string
	}{
		{ThinkingOff, "hide_agent_reasoning=true"},
		{ThinkingSummary, `model_reasoning_summary="concise"`},
		{ThinkingRaw, "show_raw_agent_reasoning=true"},
	}
	for _, tt := range tests {
		args := tt.mode.CodexConfigArgs()
		if len(args) != 6 {
			t.Fatalf("%s: got %d args, want 6", tt.mode, len(args))
		}
		joined := strings.Join(args, " ")
		if !strings.Contains(joined, tt.want) {
			t.Errorf("%s: args %q missing %q", tt.mode, joined, tt.want)
		}
	}
}

func TestRunConfig_RuntimePath(t *testing.T) {
	cfg := RunConfig{RuntimeDir: ".forge"}
	if got := cfg.RuntimePath("/work"); got != "/work/.forge" {
		t.Errorf("RuntimePath = %q", got)
	}

	cfg.RuntimeDir = "/abs/state"
	if got := cfg.RuntimePath("/work"); got != "/abs/state" {
		t.Errorf("RuntimePath = %q, want absolute untouched", got)
	}
}
