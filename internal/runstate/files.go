package runstate

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"
)

// WriteJSON serializes value as indented JSON and writes it in one shot
func WriteJSON(path string, value any) error {
	body, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("serializing json: %w", err)
	}
	if err := os.WriteFile(path, body, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// ReadJSON reads and parses a JSON file into value
func ReadJSON(path string, value any) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	if err := json.Unmarshal(raw, value); err != nil {
		return fmt.Errorf("parsing json from %s: %w", path, err)
	}
	return nil
}

// ReadJSONInto parses a JSON file into value, leaving value untouched when the
// file is missing or corrupt. Concurrent readers see a documented default
// instead of an error for partially written files.
func ReadJSONInto(path string, value any) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return
	}
	_ = json.Unmarshal(raw, value)
}

// AppendHistory appends timestamped lines to an append-only log file
func AppendHistory(path, line string) error {
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer file.Close()

	if _, err := file.WriteString(StampLines(line)); err != nil {
		return fmt.Errorf("appending %s: %w", path, err)
	}
	return nil
}

// AppendLiveActivity appends a harness-originated message to the live log in
// the same envelope the engines use for agent messages, so the monitor can
// render both uniformly.
func AppendLiveActivity(path, text string) error {
	payload := map[string]any{
		"item": map[string]any{
			"type": "agent_message",
			"text": text,
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("serializing activity: %w", err)
	}
	return AppendHistory(path, string(body)+"\n")
}

// StampLines prefixes every non-empty line with a wall-clock timestamp
func StampLines(input string) string {
	ts := time.Now().Format("15:04:05")
	var out strings.Builder
	for _, segment := range strings.SplitAfter(input, "\n") {
		hasNewline := strings.HasSuffix(segment, "\n")
		content := strings.TrimSuffix(segment, "\n")
		if content == "" {
			continue
		}
		fmt.Fprintf(&out, "[%s] %s", ts, content)
		if hasNewline {
			out.WriteByte('\n')
		}
	}
	if out.Len() == 0 && strings.TrimSpace(input) != "" {
		fmt.Fprintf(&out, "[%s] %s", ts, strings.TrimSpace(input))
	}
	return out.String()
}

// ReadLinesReverse returns up to limit non-blank lines, newest first
func ReadLinesReverse(path string, limit int) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)
	for scanner.Scan() {
		if line := scanner.Text(); strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	for i, j := 0, len(lines)-1; i < j; i, j = i+1, j-1 {
		lines[i], lines[j] = lines[j], lines[i]
	}
	if len(lines) > limit {
		lines = lines[:limit]
	}
	return lines, nil
}

// EnsureDir creates the directory and any missing parents
func EnsureDir(path string) error {
	if err := os.MkdirAll(path, 0755); err != nil {
		return fmt.Errorf("creating directory %s: %w", path, err)
	}
	return nil
}
