// Package sdd renders the assistant-mode interview into a session spec
// snapshot and activates a snapshot as the current plan.
package sdd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/forgekit/forge/internal/config"
	"github.com/forgekit/forge/internal/domain"
)

// Interview carries the answers of one assistant-mode session
type Interview struct {
	ProjectName        string
	ProductGoal        string
	TargetUsers        string
	Thinking           config.ThinkingMode
	InScope            string
	OutOfScope         string
	Constraints        string
	AcceptanceCriteria string // semicolon-separated
	Scenarios          string // semicolon-separated
	Tests              string
	MaxLoops           uint64
}

// Meta identifies a stored snapshot
type Meta struct {
	ID             string `json:"id"`
	ProjectName    string `json:"project_name"`
	Goal           string `json:"goal"`
	CreatedAtEpoch int64  `json:"created_at_epoch"`
}

// Root returns the snapshot directory under the runtime dir
func Root(cwd string) string {
	return filepath.Join(cwd, ".forge", "sdds")
}

// CurrentID returns the active snapshot id, or "" when none is active
func CurrentID(cwd string) string {
	raw, err := os.ReadFile(filepath.Join(cwd, ".forge", "current_sdd"))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(raw))
}

// ReadMeta loads a snapshot's meta.json, zero-valued when missing or broken
func ReadMeta(cwd, id string) Meta {
	raw, err := os.ReadFile(filepath.Join(Root(cwd), id, "meta.json"))
	if err != nil {
		return Meta{}
	}
	var meta Meta
	if err := json.Unmarshal(raw, &meta); err != nil {
		return Meta{}
	}
	return meta
}

// CreateSnapshot renders the interview into spec, acceptance, scenarios and
// plan files under a new snapshot directory and returns the snapshot id.
func CreateSnapshot(cwd string, answers *Interview) (string, error) {
	id := fmt.Sprintf("%d-%s", domain.EpochNow(), slugify(answers.ProjectName, "session"))
	dir := filepath.Join(Root(cwd), id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}

	files := map[string]string{
		"spec.md":       RenderSpec(answers),
		"acceptance.md": RenderAcceptance(answers),
		"scenarios.md":  RenderScenarios(answers),
		"plan.md":       RenderPlan(answers),
	}
	for name, body := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			return "", err
		}
	}

	meta := Meta{
		ID:             id,
		ProjectName:    answers.ProjectName,
		Goal:           answers.ProductGoal,
		CreatedAtEpoch: domain.EpochNow(),
	}
	raw, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(filepath.Join(dir, "meta.json"), raw, 0o644); err != nil {
		return "", err
	}

	return id, nil
}

// Activate copies a snapshot's plan into the runtime dir and its spec files
// into docs/specs/session, then records the snapshot as current.
func Activate(cwd, id string) error {
	source := filepath.Join(Root(cwd), id)
	if _, err := os.Stat(source); err != nil {
		return fmt.Errorf("sdd id not found: %s", id)
	}

	forgeDir := filepath.Join(cwd, ".forge")
	docsDir := filepath.Join(cwd, "docs", "specs", "session")
	for _, dir := range []string{forgeDir, docsDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	copies := [][2]string{
		{filepath.Join(source, "plan.md"), filepath.Join(forgeDir, "plan.md")},
		{filepath.Join(source, "spec.md"), filepath.Join(docsDir, "spec.md")},
		{filepath.Join(source, "acceptance.md"), filepath.Join(docsDir, "acceptance.md")},
		{filepath.Join(source, "scenarios.md"), filepath.Join(docsDir, "scenarios.md")},
	}
	for _, c := range copies {
		if err := copyFile(c[0], c[1]); err != nil {
			return err
		}
	}

	return os.WriteFile(filepath.Join(forgeDir, "current_sdd"), []byte(id), 0o644)
}

func copyFile(from, to string) error {
	body, err := os.ReadFile(from)
	if err != nil {
		return fmt.Errorf("reading %s: %w", from, err)
	}
	if err := os.WriteFile(to, body, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", to, err)
	}
	return nil
}

// RenderSpec builds the session spec markdown
func RenderSpec(a *Interview) string {
	return fmt.Sprintf(
		"# Session Spec\n\n## Project\n%s\n\n## Goal\n%s\n\n## Target Users\n%s\n\n## In Scope\n%s\n\n## Out of Scope\n%s\n\n## Constraints\n%s\n",
		a.ProjectName, a.ProductGoal, a.TargetUsers, a.InScope, a.OutOfScope, a.Constraints)
}

// RenderAcceptance builds the acceptance checklist markdown
func RenderAcceptance(a *Interview) string {
	var b strings.Builder
	b.WriteString("# Session Acceptance Criteria\n\n")
	for _, item := range strings.Split(a.AcceptanceCriteria, ";") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			fmt.Fprintf(&b, "- [ ] %s\n", trimmed)
		}
	}
	b.WriteString("\n## Test Strategy\n")
	b.WriteString(a.Tests)
	b.WriteString("\n")
	return b.String()
}

// RenderScenarios builds the scenarios markdown, with a default scenario
// when no answer was given
func RenderScenarios(a *Interview) string {
	var b strings.Builder
	b.WriteString("# Session Scenarios\n\n")
	n := 0
	for _, item := range strings.Split(a.Scenarios, ";") {
		trimmed := strings.TrimSpace(item)
		if trimmed == "" {
			continue
		}
		n++
		fmt.Fprintf(&b, "## Scenario %d\n%s\n\n", n, trimmed)
	}
	if n == 0 {
		b.WriteString("## Scenario 1\nGiven a planned task When forge run executes Then progress is persisted\n")
	}
	return b.String()
}

// RenderPlan builds the execution plan the run loop will iterate over
func RenderPlan(a *Interview) string {
	return fmt.Sprintf(
		"# Execution Plan\n\nGenerated at epoch %d\n\n## Goal\n%s\n\n## Scope\n- In: %s\n- Out: %s\n\n## Constraints\n%s\n\n## Acceptance\n%s\n\n## Scenarios\n%s\n\n## Test Strategy\n%s\n\n## Thinking Mode\n%s\n\nExecute this plan incrementally. Only stop when completion indicators are present and EXIT_SIGNAL is true. Persist status and progress in .forge/.\n",
		domain.EpochNow(), a.ProductGoal, a.InScope, a.OutOfScope, a.Constraints,
		a.AcceptanceCriteria, a.Scenarios, a.Tests, a.Thinking)
}

func slugify(input, fallback string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(input) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			b.WriteRune(r)
		}
	}
	slug := b.String()
	if slug == "" {
		return fallback
	}
	return slug
}
