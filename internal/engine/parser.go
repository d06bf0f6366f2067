package engine

import (
	"bufio"
	"encoding/json"
	"strings"

	"github.com/forgekit/forge/internal/domain"
)

// sessionIDKeys in lookup order; "id" last since it matches almost anything
var sessionIDKeys = []string{"session_id", "thread_id", "conversation_id", "id"}

// ParseOutput classifies one iteration's combined output. Plain-text scanning
// covers indicators, the exit signal, errors and progress hints; JSON lines in
// stdout additionally contribute a session id and, when plain-text matching
// found nothing, indicator hits inside string values.
func ParseOutput(stdout, stderr string, indicators []string) domain.OutputAnalysis {
	text := stdout + "\n" + stderr
	lowercase := strings.ToLower(text)

	analysis := domain.OutputAnalysis{
		CompletionIndicators: countIndicators(text, indicators),
		ExitSignalTrue:       strings.Contains(lowercase, "exit_signal: true"),
		HasError:             detectError(lowercase),
		HasProgressHint:      detectProgressHint(lowercase),
	}

	scanner := bufio.NewScanner(strings.NewReader(stdout))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var value any
		if err := json.Unmarshal([]byte(scanner.Text()), &value); err != nil {
			continue
		}
		if analysis.SessionID == "" {
			analysis.SessionID = extractSessionID(value)
		}
		if analysis.CompletionIndicators == 0 {
			analysis.CompletionIndicators = countJSONIndicators(value, indicators)
		}
	}

	return analysis
}

func countIndicators(text string, indicators []string) int {
	count := 0
	for _, indicator := range indicators {
		if strings.Contains(text, indicator) {
			count++
		}
	}
	return count
}

func detectError(lowercase string) bool {
	return strings.Contains(lowercase, `"error"`) || strings.Contains(lowercase, "error:")
}

func detectProgressHint(lowercase string) bool {
	for _, hint := range []string{"apply_patch", "updated file", "wrote", "created", "modified"} {
		if strings.Contains(lowercase, hint) {
			return true
		}
	}
	return false
}

func countJSONIndicators(value any, indicators []string) int {
	count := 0
	for _, indicator := range indicators {
		if jsonContainsString(value, indicator) {
			count++
		}
	}
	return count
}

func extractSessionID(value any) string {
	switch v := value.(type) {
	case map[string]any:
		for _, key := range sessionIDKeys {
			if s, ok := v[key].(string); ok {
				return s
			}
		}
		for _, nested := range v {
			if id := extractSessionID(nested); id != "" {
				return id
			}
		}
	case []any:
		for _, item := range v {
			if id := extractSessionID(item); id != "" {
				return id
			}
		}
	}
	return ""
}

func jsonContainsString(value any, needle string) bool {
	switch v := value.(type) {
	case string:
		return strings.Contains(v, needle)
	case []any:
		for _, item := range v {
			if jsonContainsString(item, needle) {
				return true
			}
		}
	case map[string]any:
		for _, item := range v {
			if jsonContainsString(item, needle) {
				return true
			}
		}
	}
	return false
}
