//go:build integration

package integration

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"
)

// binaryPath returns the path to the built CLI binary, building it on demand
func binaryPath(t *testing.T) string {
	t.Helper()
	paths := []string{
		"../forge",
		"./forge",
		filepath.Join(os.Getenv("GOPATH"), "bin", "forge"),
	}

	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			abs, _ := filepath.Abs(p)
			return abs
		}
	}

	t.Log("Binary not found, building...")
	cmd := exec.Command("go", "build", "-o", "../forge", "../cmd/forge")
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("Failed to build binary: %v\n%s", err, out)
	}

	abs, _ := filepath.Abs("../forge")
	return abs
}

// newWorkspace creates a temp cwd with a .forgerc pointing the loop at the
// given stub engine script.
func newWorkspace(t *testing.T, engineScript string) string {
	t.Helper()
	dir := t.TempDir()

	rc := `engine = "codex"
engine_cmd = "` + engineScript + `"
max_calls_per_hour = 100
timeout_minutes = 1
no_progress_limit = 3
`
	if err := os.WriteFile(filepath.Join(dir, ".forgerc"), []byte(rc), 0o644); err != nil {
		t.Fatalf("Failed to write .forgerc: %v", err)
	}
	return dir
}

// stubEngine writes an executable script that ignores its arguments and
// prints the given stdout
func stubEngine(t *testing.T, stdout string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "engine.sh")
	script := "#!/bin/sh\nprintf '%s\\n' \"$STUB_OUTPUT\"\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("Failed to write stub engine: %v", err)
	}
	t.Setenv("STUB_OUTPUT", stdout)
	return path
}

// writePlan puts a checklist plan into the workspace runtime dir
func writePlan(t *testing.T, cwd, content string) {
	t.Helper()
	runtimeDir := filepath.Join(cwd, ".forge")
	if err := os.MkdirAll(runtimeDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(runtimeDir, "plan.md"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}
