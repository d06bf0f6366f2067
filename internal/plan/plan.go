// Package plan reads the checklist plan under the runtime directory and
// builds the continuation prompt for the next engine iteration.
package plan

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/forgekit/forge/internal/domain"
	"github.com/forgekit/forge/internal/runstate"
)

// PlanFile is the checklist location relative to the runtime directory
const PlanFile = "plan.md"

const maxPromptItems = 80

// Frontmatter is the optional YAML header of a plan file
type Frontmatter struct {
	Title    string   `yaml:"title"`
	Priority string   `yaml:"priority"`
	Tags     []string `yaml:"tags"`
}

// Summary counts the checklist items of a plan
type Summary struct {
	TotalItems     int
	UncheckedItems int
	CheckedItems   int
}

// ParseFrontmatter splits an optional YAML header off markdown content
func ParseFrontmatter(content []byte) (*Frontmatter, []byte, error) {
	if !bytes.HasPrefix(content, []byte("---\n")) {
		return &Frontmatter{}, content, nil
	}

	rest := content[4:]
	endIdx := bytes.Index(rest, []byte("\n---"))
	if endIdx == -1 {
		return &Frontmatter{}, content, nil
	}

	fmData := rest[:endIdx]
	remaining := rest[endIdx+4:]

	var fm Frontmatter
	if err := yaml.Unmarshal(fmData, &fm); err != nil {
		return nil, nil, err
	}

	return &fm, bytes.TrimLeft(remaining, "\n"), nil
}

// BuildPrompt assembles the iteration prompt from the plan's unchecked items
// and the last loop summary. Returns "" when no usable plan exists; the loop
// then runs the engine without a prompt.
func BuildPrompt(runtimeDir string) string {
	body, _, ok := readPlanBody(runtimeDir)
	if !ok {
		return ""
	}

	var unchecked []string
	for _, line := range strings.Split(body, "\n") {
		if strings.Contains(line, "- [ ]") {
			unchecked = append(unchecked, strings.TrimSpace(line))
			if len(unchecked) == maxPromptItems {
				break
			}
		}
	}

	pendingBlock := "No explicit unchecked checklist items found; continue from current repo state and finalize remaining plan work."
	if len(unchecked) > 0 {
		pendingBlock = "Unchecked checklist items (execute only what is still pending):\n" + strings.Join(unchecked, "\n")
	}

	var progress domain.ProgressSnapshot
	runstate.ReadJSONInto(filepath.Join(runtimeDir, runstate.ProgressFile), &progress)
	continuity := "Last loop summary: (none)"
	if summary := strings.TrimSpace(progress.LastSummary); summary != "" {
		continuity = "Last loop summary: " + summary
	}

	return fmt.Sprintf(`You are continuing an iterative execution loop.
Continue from current workspace state. Do NOT redo completed checklist items.
Avoid broad scans like `+"`rg --files`"+`; inspect only files needed for the current pending task.
Apply small, verifiable steps and run only targeted validations per step.
Emit `+"`EXIT_SIGNAL: true`"+` only when all pending checklist items are complete.

%s

%s

Plan source: %s`, continuity, pendingBlock, filepath.Join(filepath.Base(runtimeDir), PlanFile))
}

// Analyze counts checklist items, returning ok=false when no plan exists
func Analyze(runtimeDir string) (Summary, bool) {
	body, _, ok := readPlanBody(runtimeDir)
	if !ok {
		return Summary{}, false
	}

	var summary Summary
	for _, line := range strings.Split(body, "\n") {
		switch {
		case strings.Contains(line, "- [ ]"):
			summary.UncheckedItems++
		case strings.Contains(line, "- [x]"):
			summary.CheckedItems++
		}
	}
	summary.TotalItems = summary.UncheckedItems + summary.CheckedItems
	return summary, true
}

// Meta returns the plan's frontmatter, if any
func Meta(runtimeDir string) (*Frontmatter, bool) {
	raw, err := os.ReadFile(filepath.Join(runtimeDir, PlanFile))
	if err != nil {
		return nil, false
	}
	fm, _, err := ParseFrontmatter(raw)
	if err != nil {
		return nil, false
	}
	return fm, true
}

func readPlanBody(runtimeDir string) (string, *Frontmatter, bool) {
	raw, err := os.ReadFile(filepath.Join(runtimeDir, PlanFile))
	if err != nil {
		return "", nil, false
	}
	fm, body, err := ParseFrontmatter(raw)
	if err != nil {
		// Broken frontmatter still leaves a usable checklist.
		fm, body = &Frontmatter{}, raw
	}
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return "", nil, false
	}
	return trimmed, fm, true
}
