package deploy

import (
	"regexp"
	"strings"
)

// maxErrorLines caps the error text handed to the repair prompt.
const maxErrorLines = 25

// BuildErrorPrefix starts the lines rendered from the daemon's error entries.
// A bare "ERROR:" is not a failure: pip prints those in builds that succeed.
const BuildErrorPrefix = "BUILD ERROR: "

var (
	// stepHeader matches classic builder steps ("Step 7/8 : RUN pytest")
	// and BuildKit steps ("#11 [7/8] RUN pytest").
	stepHeader = regexp.MustCompile(`^(Step \d+/\d+ :|#\d+ \[\s*[\w-]*\s*\d+/\d+\])`)

	errorMarkers = []string{
		"returned a non-zero code",
		"did not complete successfully",
		"Traceback (most recent call last)",
	}

	// The classic builder ends every finished build with these lines.
	successMarkers = []string{
		"Successfully built ",
		"Successfully tagged ",
	}
)

// ProcessErrorMessage classifies a build log. It returns false when the log
// carries no error, or when the build finished and the daemon reported no
// error. Otherwise it returns the tail of the log starting at the
// last build step, at most 25 lines.
func ProcessErrorMessage(log string) (string, bool) {
	lines := strings.Split(strings.ReplaceAll(log, "\r\n", "\n"), "\n")

	lastError := -1
	lastDaemonError := -1
	finished := false
	for i, line := range lines {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, BuildErrorPrefix):
			lastDaemonError = i
		case isErrorLine(line):
			lastError = i
		case isSuccessLine(line):
			finished = true
		}
	}

	// A finished build only fails when the daemon itself reported an error
	if finished {
		lastError = lastDaemonError
	} else if lastDaemonError > lastError {
		lastError = lastDaemonError
	}
	if lastError < 0 {
		return "", false
	}

	// The step that produced the error is the last header before it.
	start := 0
	for i := 0; i <= lastError; i++ {
		if stepHeader.MatchString(strings.TrimSpace(lines[i])) {
			start = i
		}
	}

	relevant := trimBlank(lines[start:])
	if len(relevant) > maxErrorLines {
		relevant = relevant[len(relevant)-maxErrorLines:]
	}
	return strings.Join(relevant, "\n"), true
}

func isErrorLine(line string) bool {
	for _, marker := range errorMarkers {
		if strings.Contains(line, marker) {
			return true
		}
	}
	return false
}

func isSuccessLine(line string) bool {
	for _, marker := range successMarkers {
		if strings.HasPrefix(line, marker) {
			return true
		}
	}
	return false
}

func trimBlank(lines []string) []string {
	for len(lines) > 0 && strings.TrimSpace(lines[0]) == "" {
		lines = lines[1:]
	}
	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}
