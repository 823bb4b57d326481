// Package printer narrates progress to the terminal.
package printer

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/fatih/color"
)

func init() {
	// Force color output even when not connected to TTY
	// Users can disable with NO_COLOR environment variable
	if os.Getenv("NO_COLOR") == "" {
		color.NoColor = false
	}
}

var (
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed, color.Bold)
	cyan   = color.New(color.FgCyan)

	mu     sync.Mutex
	out    io.Writer = os.Stdout
	errOut io.Writer = os.Stderr
)

// SetOutput redirects narration (stdout) and errors (stderr). Nil keeps the current writer.
// It returns a function restoring the previous writers.
func SetOutput(stdout, stderr io.Writer) func() {
	mu.Lock()
	defer mu.Unlock()
	prevOut, prevErr := out, errOut
	if stdout != nil {
		out = stdout
	}
	if stderr != nil {
		errOut = stderr
	}
	return func() {
		mu.Lock()
		defer mu.Unlock()
		out, errOut = prevOut, prevErr
	}
}

func writers() (io.Writer, io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	return out, errOut
}

// Banner prints a stage header in red, e.g. "############# Executor #############".
func Banner(title string) {
	w, _ := writers()
	red.Fprintf(w, "\n############# %s #############\n", title)
}

// Success prints a success message in green with a checkmark prefix
func Success(format string, a ...any) {
	w, _ := writers()
	msg := fmt.Sprintf(format, a...)
	if !strings.HasPrefix(msg, "✓") {
		green.Fprintf(w, "✓ %s", msg)
	} else {
		green.Fprint(w, msg)
	}
}

// Info prints an informational message in the default color
func Info(format string, a ...any) {
	w, _ := writers()
	fmt.Fprintf(w, format, a...)
}

// Warning prints a warning message in yellow with a warning emoji prefix
func Warning(format string, a ...any) {
	w, _ := writers()
	msg := fmt.Sprintf(format, a...)
	if !strings.HasPrefix(msg, "⚠️") {
		yellow.Fprintf(w, "⚠️  %s", msg)
	} else {
		yellow.Fprint(w, msg)
	}
}

// Step prints a step message with emphasis (used in multi-step operations)
func Step(format string, a ...any) {
	w, _ := writers()
	cyan.Fprintf(w, "→ %s", fmt.Sprintf(format, a...))
}

// Error creates a formatted error message with title, explanation, and suggestions
// Prints the formatted error to stderr with colors and returns a simple error for Cobra
func Error(title string, explanation string, suggestions []string) error {
	return ErrorWithContext(title, explanation, nil, suggestions)
}

// ErrorWithContext creates a formatted error with context details
// Prints the formatted error to stderr with colors and returns a simple error for Cobra
func ErrorWithContext(title string, explanation string, context map[string]string, suggestions []string) error {
	_, w := writers()

	red.Fprintf(w, "%s\n\n", title)

	if explanation != "" {
		fmt.Fprintf(w, "%s\n", explanation)
	}

	if len(context) > 0 {
		fmt.Fprintf(w, "\n")
		for key, value := range context {
			fmt.Fprintf(w, "  %s: %s\n", key, value)
		}
	}

	if len(suggestions) > 0 {
		fmt.Fprintf(w, "\n")
		if len(suggestions) == 1 {
			fmt.Fprintf(w, "%s\n", suggestions[0])
		} else {
			fmt.Fprintf(w, "Either:\n")
			for i, suggestion := range suggestions {
				fmt.Fprintf(w, "  %d. %s\n", i+1, suggestion)
			}
		}
	}

	// Return simple error for Cobra (won't be printed due to SilenceErrors)
	return &printedError{title: title}
}

// printedError marks an error already shown to the user.
type printedError struct {
	title string
}

func (e *printedError) Error() string { return e.title }

// IsPrinted reports whether err was produced by Error or ErrorWithContext.
func IsPrinted(err error) bool {
	var pe *printedError
	return errors.As(err, &pe)
}

// Println prints a plain message (for output that doesn't need coloring)
func Println(a ...any) {
	w, _ := writers()
	fmt.Fprintln(w, a...)
}

// Printf prints a plain formatted message (for output that doesn't need coloring)
func Printf(format string, a ...any) {
	w, _ := writers()
	fmt.Fprintf(w, format, a...)
}
