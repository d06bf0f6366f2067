// Package doctor probes the workspace for everything a run needs: a working
// engine binary, a git repository, a writable runtime directory, and a
// loadable configuration.
package doctor

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/forgekit/forge/internal/config"
)

// Check is one named probe with its outcome
type Check struct {
	Name   string `json:"name"`
	OK     bool   `json:"ok"`
	Detail string `json:"detail"`
}

// Report summarizes one doctor pass
type Report struct {
	Cwd            string   `json:"cwd"`
	OK             bool     `json:"ok"`
	Checks         []Check  `json:"checks"`
	Warnings       []string `json:"warnings"`
	AttemptedFixes []string `json:"attempted_fixes"`
}

// Run executes all checks. With fix, repairable problems are fixed first and
// the checks re-run against the repaired workspace. With strict, warnings
// also fail the report.
func Run(cwd string, fix, strict bool) (*Report, error) {
	var attemptedFixes []string
	if fix {
		var err error
		attemptedFixes, err = ApplyFixes(cwd)
		if err != nil {
			return nil, err
		}
	}

	checks := CollectChecks(cwd)
	warnings := CollectWarnings(cwd)

	ok := true
	for _, check := range checks {
		if !check.OK {
			ok = false
		}
	}
	if strict && len(warnings) > 0 {
		ok = false
	}

	return &Report{
		Cwd:            cwd,
		OK:             ok,
		Checks:         checks,
		Warnings:       warnings,
		AttemptedFixes: attemptedFixes,
	}, nil
}

// CollectChecks runs the four workspace probes
func CollectChecks(cwd string) []Check {
	engineKind := config.EngineCodex
	engineCmd := "codex"
	if cfg, err := config.Load(cwd, config.Overrides{}); err == nil {
		engineKind = cfg.Engine
		engineCmd = cfg.EngineCmd
	}

	engineOK, engineDetail := checkEngineAvailable(engineKind, engineCmd)
	gitOK, gitDetail := checkGitRepo(cwd)
	writeOK, writeDetail := checkRuntimeWritable(cwd)
	configOK, configDetail := checkConfigLoadable(cwd)

	return []Check{
		{Name: "engine_available", OK: engineOK, Detail: engineDetail},
		{Name: "git_repository", OK: gitOK, Detail: gitDetail},
		{Name: "runtime_writable", OK: writeOK, Detail: writeDetail},
		{Name: "config_loadable", OK: configOK, Detail: configDetail},
	}
}

// CollectWarnings reports advisory conditions that do not block a run
func CollectWarnings(cwd string) []string {
	var warnings []string
	if _, err := os.Stat(filepath.Join(cwd, ".forgerc")); err != nil {
		warnings = append(warnings, "missing .forgerc (using only env/defaults)")
	}
	if _, err := os.Stat(filepath.Join(cwd, ".forge", "analyze", "latest.json")); err != nil {
		warnings = append(warnings, "no persisted analyze report yet (.forge/analyze/latest.json)")
	}
	if _, err := os.Stat(filepath.Join(cwd, ".forge", "plan.md")); err != nil {
		warnings = append(warnings, "no plan checklist yet (.forge/plan.md)")
	}
	return warnings
}

// ApplyFixes creates the pieces doctor can repair on its own
func ApplyFixes(cwd string) ([]string, error) {
	var fixes []string

	runtimeDir := filepath.Join(cwd, ".forge")
	if _, err := os.Stat(runtimeDir); err != nil {
		if err := os.MkdirAll(runtimeDir, 0755); err != nil {
			return nil, fmt.Errorf("creating %s: %w", runtimeDir, err)
		}
		fixes = append(fixes, "created .forge runtime directory")
	}

	forgerc := filepath.Join(cwd, ".forgerc")
	if _, err := os.Stat(forgerc); err != nil {
		template := "# forge defaults\nengine = \"codex\"\nmax_calls_per_hour = 100\ntimeout_minutes = 15\n"
		if err := os.WriteFile(forgerc, []byte(template), 0644); err != nil {
			return nil, fmt.Errorf("writing %s: %w", forgerc, err)
		}
		fixes = append(fixes, "created .forgerc with baseline defaults")
	}

	planFile := filepath.Join(runtimeDir, "plan.md")
	if _, err := os.Stat(planFile); err != nil {
		starter := "# Plan\n\n- [ ] Describe the first task for the agent\n"
		if err := os.WriteFile(planFile, []byte(starter), 0644); err != nil {
			return nil, fmt.Errorf("writing %s: %w", planFile, err)
		}
		fixes = append(fixes, "created starter plan at .forge/plan.md")
	}

	return fixes, nil
}

func checkEngineAvailable(kind config.EngineKind, cmd string) (bool, string) {
	out, err := exec.Command(cmd, "--version").Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return false, fmt.Sprintf("%s returned exit code %d", kind, exitErr.ExitCode())
		}
		return false, fmt.Sprintf("%s not available: %v", kind, err)
	}
	version := strings.TrimSpace(string(out))
	if version == "" {
		version = fmt.Sprintf("%s found", kind)
	}
	return true, version
}

func checkGitRepo(cwd string) (bool, string) {
	cmd := exec.Command("git", "rev-parse", "--is-inside-work-tree")
	cmd.Dir = cwd
	out, err := cmd.Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return false, fmt.Sprintf("git returned exit code %d", exitErr.ExitCode())
		}
		return false, fmt.Sprintf("git not available: %v", err)
	}
	if strings.TrimSpace(string(out)) != "true" {
		return false, fmt.Sprintf("unexpected git response: %s", strings.TrimSpace(string(out)))
	}
	return true, "inside git work tree"
}

func checkRuntimeWritable(cwd string) (bool, string) {
	runtimeDir := filepath.Join(cwd, ".forge")
	if err := os.MkdirAll(runtimeDir, 0755); err != nil {
		return false, fmt.Sprintf("cannot create .forge: %v", err)
	}
	probe := filepath.Join(runtimeDir, ".doctor_write_probe")
	if err := os.WriteFile(probe, []byte("test"), 0644); err != nil {
		return false, fmt.Sprintf("cannot write to .forge: %v", err)
	}
	os.Remove(probe)
	return true, ".forge is writable"
}

func checkConfigLoadable(cwd string) (bool, string) {
	if _, err := config.Load(cwd, config.Overrides{}); err != nil {
		return false, fmt.Sprintf("config error: %v", err)
	}
	return true, "config loaded successfully"
}
