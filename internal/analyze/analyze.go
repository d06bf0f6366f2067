// Package analyze runs a batch risk review of the working tree's modified
// files: chunked engine invocations whose reports are aggregated and
// persisted under the runtime directory.
package analyze

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/forgekit/forge/internal/config"
	"github.com/forgekit/forge/internal/domain"
	"github.com/forgekit/forge/internal/engine"
)

// DefaultChunkSize is how many files one engine invocation reviews
const DefaultChunkSize = 25

// Result summarizes one analyze pass
type Result struct {
	ModifiedFiles  []string
	Chunks         int
	ChunkSize      int
	TimedOutChunks int
	FailedChunks   int
	Report         string
	LatestPath     string
	HistoryPath    string
}

// executeEngine is swapped out by tests that script engine behavior
var executeEngine = engine.Execute

// ListModifiedFiles returns the working tree's modified paths per git
func ListModifiedFiles(cwd string) ([]string, error) {
	cmd := exec.Command("git", "diff", "--name-only")
	cmd.Dir = cwd
	out, err := cmd.Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return nil, fmt.Errorf("git diff failed: %s", strings.TrimSpace(string(exitErr.Stderr)))
		}
		return nil, fmt.Errorf("listing modified files: %w", err)
	}

	var files []string
	for _, line := range strings.Split(string(out), "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			files = append(files, trimmed)
		}
	}
	return files, nil
}

// BuildPrompt renders the fixed analysis instruction for one chunk
func BuildPrompt(files []string, scopeLabel string) string {
	var sb strings.Builder
	sb.WriteString("Analyze ONLY these modified files and report exactly:\n")
	sb.WriteString("1) Critical risks\n2) High risks\n3) Medium risks\n4) Suggested next actions\n")
	sb.WriteString("Do not propose edits, only analysis.\nEnd with: EXIT_SIGNAL: true\n\n")
	sb.WriteString("Scope: ")
	sb.WriteString(scopeLabel)
	sb.WriteString("\n\nModified files:\n")
	for _, file := range files {
		sb.WriteString("- ")
		sb.WriteString(file)
		sb.WriteByte('\n')
	}
	return sb.String()
}

// Run reviews all modified files in chunks and persists the combined report
func Run(cwd string, cfg *config.RunConfig, chunkSize int) (*Result, error) {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	files, err := ListModifiedFiles(cwd)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no modified files to analyze")
	}

	eng := engine.New(cfg.Engine)
	chunks := (len(files) + chunkSize - 1) / chunkSize

	result := &Result{
		ModifiedFiles: files,
		Chunks:        chunks,
		ChunkSize:     chunkSize,
	}

	liveLog := filepath.Join(cfg.RuntimePath(cwd), "analyze.log")
	var chunkReports []string
	for i := 0; i < chunks; i++ {
		start := i * chunkSize
		end := start + chunkSize
		if end > len(files) {
			end = len(files)
		}
		scope := fmt.Sprintf("chunk %d/%d", i+1, chunks)
		prompt := BuildPrompt(files[start:end], scope)

		run, err := executeEngine(eng, engine.ExecParams{
			Cwd:         cwd,
			Config:      cfg,
			Prompt:      prompt,
			LiveLogPath: liveLog,
		}, func() error { return nil })
		if err != nil {
			return nil, err
		}
		if run.TimedOut {
			result.TimedOutChunks++
		}
		if !run.ExitOK && !run.TimedOut {
			result.FailedChunks++
		}

		report := extractLastAgentMessage(run.Stdout)
		if report == "" {
			merged := strings.TrimSpace(strings.TrimSpace(run.Stdout) + " " + strings.TrimSpace(run.Stderr))
			runes := []rune(merged)
			if len(runes) > 4000 {
				runes = runes[:4000]
			}
			report = string(runes)
		}
		chunkReports = append(chunkReports, report)
	}

	var sb strings.Builder
	for i, report := range chunkReports {
		fmt.Fprintf(&sb, "## Chunk %d/%d\n\n%s\n\n", i+1, chunks, report)
	}
	result.Report = strings.TrimSpace(sb.String())

	latest, history, err := persistReport(cwd, result, chunkReports)
	if err != nil {
		return nil, err
	}
	result.LatestPath = latest
	result.HistoryPath = history
	return result, nil
}

// LoadLatest returns the most recent persisted analyze payload
func LoadLatest(cwd string) (map[string]any, error) {
	path := filepath.Join(cwd, ".forge", "analyze", "latest.json")
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("latest analyze report not found at %s", path)
	}
	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("invalid json in %s: %w", path, err)
	}
	return payload, nil
}

func persistReport(cwd string, result *Result, chunkReports []string) (string, string, error) {
	analyzeDir := filepath.Join(cwd, ".forge", "analyze")
	historyDir := filepath.Join(analyzeDir, "history")
	if err := os.MkdirAll(historyDir, 0755); err != nil {
		return "", "", fmt.Errorf("creating %s: %w", historyDir, err)
	}

	now := domain.EpochNow()
	payload := map[string]any{
		"created_at_epoch": now,
		"modified_files":   len(result.ModifiedFiles),
		"chunks":           result.Chunks,
		"chunk_size":       result.ChunkSize,
		"timed_out_chunks": result.TimedOutChunks,
		"failed_chunks":    result.FailedChunks,
		"files":            result.ModifiedFiles,
		"chunk_reports":    chunkReports,
		"report":           result.Report,
	}
	body, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", "", err
	}

	latestPath := filepath.Join(analyzeDir, "latest.json")
	if err := os.WriteFile(latestPath, body, 0644); err != nil {
		return "", "", fmt.Errorf("writing %s: %w", latestPath, err)
	}
	historyPath := filepath.Join(historyDir, fmt.Sprintf("%d.json", now))
	if err := os.WriteFile(historyPath, body, 0644); err != nil {
		return "", "", fmt.Errorf("writing %s: %w", historyPath, err)
	}
	return latestPath, historyPath, nil
}

// extractLastAgentMessage pulls the final agent_message text from the
// engine's JSON event stream
func extractLastAgentMessage(stdout string) string {
	var last string
	scanner := bufio.NewScanner(strings.NewReader(stdout))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var event struct {
			Type string `json:"type"`
			Item struct {
				Type string `json:"type"`
				Text string `json:"text"`
			} `json:"item"`
		}
		if err := json.Unmarshal(scanner.Bytes(), &event); err != nil {
			continue
		}
		if event.Type != "item.completed" || event.Item.Type != "agent_message" {
			continue
		}
		if event.Item.Text != "" {
			last = event.Item.Text
		}
	}
	return last
}
