package engine

import (
	"strings"
	"testing"

	"github.com/forgekit/forge/internal/config"
)

func TestNew_SelectsVariant(t *testing.T) {
	if New(config.EngineCodex).Name() != "codex" {
		t.Error("codex kind should build the codex engine")
	}
	if New(config.EngineOpenCode).Name() != "opencode" {
		t.Error("opencode kind should build the opencode engine")
	}
}

func TestCodex_BuildArgs_NewSession(t *testing.T) {
	cfg := &config.RunConfig{
		EnginePreArgs:  []string{"--config", "sandbox=workspace-write"},
		EngineExecArgs: []string{"--model", "o4"},
	}
	args := Codex{}.BuildArgs(ExecParams{Config: cfg, Prompt: "do the thing"})

	want := []string{
		"--config", "sandbox=workspace-write",
		"exec", "--model", "o4", "--json", "do the thing",
	}
	assertArgs(t, args, want)
}

func TestCodex_BuildArgs_ResumeExplicit(t *testing.T) {
	cfg := &config.RunConfig{Resume: config.ResumeMode{SessionID: "sess-1"}}
	args := Codex{}.BuildArgs(ExecParams{Config: cfg, Prompt: "p"})

	assertArgs(t, args, []string{"exec", "resume", "sess-1", "--json", "p"})
}

func TestCodex_BuildArgs_ResumeLast(t *testing.T) {
	cfg := &config.RunConfig{Resume: config.ResumeMode{Last: true}}
	args := Codex{}.BuildArgs(ExecParams{Config: cfg})

	assertArgs(t, args, []string{"exec", "resume", "--last", "--json"})
}

func TestOpenCode_BuildArgs(t *testing.T) {
	cfg := &config.RunConfig{
		EngineExecArgs: []string{"--model", "gpt"},
		ThinkingMode:   config.ThinkingSummary,
	}
	args := OpenCode{}.BuildArgs(ExecParams{Config: cfg, Prompt: "hello"})

	assertArgs(t, args, []string{"run", "--model", "gpt", "--json", "--prompt", "hello"})
}

func TestOpenCode_BuildArgs_ThinkingOff(t *testing.T) {
	cfg := &config.RunConfig{ThinkingMode: config.ThinkingOff}
	args := OpenCode{}.BuildArgs(ExecParams{Config: cfg})

	joined := strings.Join(args, " ")
	if !strings.Contains(joined, "--config hide_agent_reasoning=true") {
		t.Errorf("args %q missing reasoning suppression", joined)
	}
}

func TestBuildArgs_NoPromptOmitsIt(t *testing.T) {
	cfg := &config.RunConfig{}
	args := Codex{}.BuildArgs(ExecParams{Config: cfg})
	if args[len(args)-1] != "--json" {
		t.Errorf("args %v should end at --json without a prompt", args)
	}
}

func assertArgs(t *testing.T, got, want []string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("args = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("args[%d] = %q, want %q (full: %v)", i, got[i], want[i], got)
		}
	}
}
