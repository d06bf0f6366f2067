package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	cwdFlag string
	rootCmd = &cobra.Command{
		Use:   "forge",
		Short: "forge - autonomous engine execution loop",
		Long: `forge drives a coding agent CLI through bounded iterations until the
work signals completion, the circuit breaker opens, the hourly call budget
runs out, or the loop budget is spent. Run state lives under .forge/ so
status, monitor and serve can observe a run from outside the process.

Invoked without a subcommand, forge runs the SDD assistant: it interviews
you, renders a session spec and plan, and starts the loop on it.`,
		RunE: runAssistant,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&cwdFlag, "cwd", "", "working directory (default: current)")
}

func resolveCwd() (string, error) {
	if cwdFlag != "" {
		return cwdFlag, nil
	}
	return os.Getwd()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
