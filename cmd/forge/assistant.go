package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/forgekit/forge/internal/config"
	"github.com/forgekit/forge/internal/sdd"
)

// runAssistant is the bare-invocation mode: interview, render the session
// spec snapshot, activate it as the plan, then start the loop on it.
func runAssistant(cmd *cobra.Command, args []string) error {
	cwd, err := resolveCwd()
	if err != nil {
		return err
	}

	fmt.Println("forge assistant mode")
	fmt.Println("answer the SDD questions. forge will generate specs and run the loop.")
	fmt.Println()

	answers, err := collectInterview(bufio.NewReader(os.Stdin))
	if err != nil {
		return err
	}

	id, err := sdd.CreateSnapshot(cwd, answers)
	if err != nil {
		return err
	}
	if err := sdd.Activate(cwd, id); err != nil {
		return err
	}

	fmt.Println("\nGenerated:")
	fmt.Println("- .forge/plan.md")
	fmt.Println("- docs/specs/session/spec.md")
	fmt.Println("- docs/specs/session/acceptance.md")
	fmt.Println("- docs/specs/session/scenarios.md")
	fmt.Println("\nstarting loop...")
	fmt.Println()

	return executeRun(cwd, config.Overrides{
		ThinkingMode: string(answers.Thinking),
	}, answers.MaxLoops, false)
}

func collectInterview(in *bufio.Reader) (*sdd.Interview, error) {
	fmt.Println("[Phase 1] Intent")
	projectName, err := ask(in, "project name", "forge project")
	if err != nil {
		return nil, err
	}
	productGoal, err := ask(in, "primary goal", "deliver autonomous coding outcomes")
	if err != nil {
		return nil, err
	}
	targetUsers, err := ask(in, "target users", "developers")
	if err != nil {
		return nil, err
	}

	fmt.Println("\n[Phase 2] Scope")
	inScope, err := ask(in, "in scope for this phase", "run, status, monitor")
	if err != nil {
		return nil, err
	}
	outOfScope, err := ask(in, "out of scope", "setup, import, windows")
	if err != nil {
		return nil, err
	}

	fmt.Println("\n[Phase 3] Constraints")
	constraints, err := ask(in, "technical constraints", ".forge runtime, .forgerc config")
	if err != nil {
		return nil, err
	}

	fmt.Println("\n[Phase 4] Acceptance")
	acceptance, err := ask(in, "acceptance criteria (semicolon-separated)",
		"dual exit gate works; status is consistent; monitor is stable")
	if err != nil {
		return nil, err
	}

	fmt.Println("\n[Phase 5] Scenarios")
	scenarios, err := ask(in, "given/when/then scenarios (semicolon-separated)",
		"Given completion+exit_signal true When run Then finish loop")
	if err != nil {
		return nil, err
	}

	fmt.Println("\n[Phase 6] Testing")
	tests, err := ask(in, "test strategy",
		"contract CLI tests, acceptance loop tests, resilience tests")
	if err != nil {
		return nil, err
	}

	fmt.Println("\n[Phase 7] Reasoning")
	thinking, err := askThinking(in, "thinking mode", config.ThinkingSummary)
	if err != nil {
		return nil, err
	}

	maxLoopsRaw, err := ask(in, "max loops for execution", "100")
	if err != nil {
		return nil, err
	}
	maxLoops, err := strconv.ParseUint(strings.TrimSpace(maxLoopsRaw), 10, 64)
	if err != nil || maxLoops == 0 {
		maxLoops = 100
	}

	return &sdd.Interview{
		ProjectName:        projectName,
		ProductGoal:        productGoal,
		TargetUsers:        targetUsers,
		Thinking:           thinking,
		InScope:            inScope,
		OutOfScope:         outOfScope,
		Constraints:        constraints,
		AcceptanceCriteria: acceptance,
		Scenarios:          scenarios,
		Tests:              tests,
		MaxLoops:           maxLoops,
	}, nil
}

func ask(in *bufio.Reader, label, defaultValue string) (string, error) {
	fmt.Printf("- %s [%s]: ", label, defaultValue)
	line, err := in.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	value := strings.TrimSpace(line)
	if value == "" {
		return defaultValue, nil
	}
	return value, nil
}

func askThinking(in *bufio.Reader, label string, defaultValue config.ThinkingMode) (config.ThinkingMode, error) {
	for {
		value, err := ask(in, label, string(defaultValue))
		if err != nil {
			return "", err
		}
		switch strings.ToLower(strings.TrimSpace(value)) {
		case "off":
			return config.ThinkingOff, nil
		case "summary":
			return config.ThinkingSummary, nil
		case "raw":
			return config.ThinkingRaw, nil
		}
		fmt.Println("invalid thinking mode. use: off | summary | raw")
	}
}
