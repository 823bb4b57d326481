package history

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dyluth/microchain/pkg/ledger"
)

// OutputFormat specifies how attempts are written.
type OutputFormat string

const (
	// OutputFormatDefault uses a table with truncated errors
	OutputFormatDefault OutputFormat = "default"

	// OutputFormatJSONL outputs complete attempts as line-delimited JSON
	OutputFormatJSONL OutputFormat = "jsonl"
)

// ParseOutputFormat validates a --output flag value.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(s) {
	case OutputFormatDefault, OutputFormatJSONL:
		return OutputFormat(s), nil
	default:
		return "", fmt.Errorf("unknown output format: %s (valid formats: default, jsonl)", s)
	}
}

// FormatTable writes attempts as a table and returns how many were written.
func FormatTable(w io.Writer, attempts []*ledger.Attempt, run string) int {
	if len(attempts) == 0 {
		fmt.Fprintf(w, "No attempts found for run '%s'\n", run)
		return 0
	}

	fmt.Fprintf(w, "Attempts for run '%s':\n\n", run)

	fmt.Fprintf(w, "%-28s %-4s %-10s %-8s %s\n", "CANDIDATE", "VER", "OUTCOME", "AGE", "ERROR")
	fmt.Fprintf(w, "%-28s %-4s %-10s %-8s %s\n",
		"----------------------------", "----", "----------", "--------", "----------------------------------------")

	for _, a := range attempts {
		fmt.Fprintf(w, "%-28s %-4s %-10s %-8s %s\n",
			formatCandidate(a.Candidate),
			fmt.Sprintf("v%d", a.Version),
			string(a.Outcome),
			formatAge(a.CreatedAtMs),
			formatError(a.Error),
		)
	}

	countMsg := "attempt"
	if len(attempts) != 1 {
		countMsg = "attempts"
	}
	fmt.Fprintf(w, "\n%d %s found\n", len(attempts), countMsg)

	return len(attempts)
}

// FormatJSONL writes one attempt per line as compact JSON.
func FormatJSONL(w io.Writer, attempts []*ledger.Attempt) error {
	for _, a := range attempts {
		data, err := json.Marshal(a)
		if err != nil {
			return fmt.Errorf("failed to marshal attempt to JSON: %w", err)
		}
		if _, err := fmt.Fprintf(w, "%s\n", data); err != nil {
			return fmt.Errorf("failed to write JSONL output: %w", err)
		}
	}
	return nil
}

// FormatEvent writes a single live attempt in the requested format.
func FormatEvent(w io.Writer, a *ledger.Attempt, format OutputFormat) error {
	if format == OutputFormatJSONL {
		return FormatJSONL(w, []*ledger.Attempt{a})
	}

	icon := "🔧"
	switch a.Outcome {
	case ledger.OutcomeDeployed:
		icon = "✅"
	case ledger.OutcomeExhausted:
		icon = "❌"
	}

	ts := time.UnixMilli(a.CreatedAtMs).Format("15:04:05")
	_, err := fmt.Fprintf(w, "[%s] %s %s v%d %s %s\n", ts, icon, a.Candidate, a.Version, a.Outcome, formatError(a.Error))
	return err
}

// formatCandidate truncates long candidate keys.
func formatCandidate(candidate string) string {
	if len(candidate) > 28 {
		return candidate[:25] + "..."
	}
	return candidate
}

// formatError shows the last non-empty line of a build error, which is where
// Docker puts the failing command. Empty errors return "-".
func formatError(errText string) string {
	lines := strings.Split(errText, "\n")
	var last string
	for i := len(lines) - 1; i >= 0; i-- {
		if trimmed := strings.TrimSpace(lines[i]); trimmed != "" {
			last = trimmed
			break
		}
	}

	if last == "" {
		return "-"
	}
	if len(last) > 60 {
		return last[:57] + "..."
	}
	return last
}

// formatAge renders a millisecond timestamp as "2m ago" and similar.
func formatAge(timestampMs int64) string {
	if timestampMs == 0 {
		return "-"
	}

	diff := time.Since(time.UnixMilli(timestampMs))
	switch {
	case diff < time.Minute:
		return fmt.Sprintf("%ds ago", int(diff.Seconds()))
	case diff < time.Hour:
		return fmt.Sprintf("%dm ago", int(diff.Minutes()))
	case diff < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(diff.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(diff.Hours()/24))
	}
}
