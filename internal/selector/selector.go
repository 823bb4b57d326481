// Package selector asks the model which package subsets could solve a task.
package selector

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dyluth/microchain/internal/extract"
	"github.com/dyluth/microchain/internal/llm"
	"github.com/dyluth/microchain/internal/prompt"
	"github.com/dyluth/microchain/internal/workspace"
	"go.uber.org/zap"
)

// PackagesLabel labels the block carrying the ranked package table.
const PackagesLabel = "packages.csv"

// maxRows is the longest list the prompt asks for.
const maxRows = 5

var (
	// ErrNoPackages is returned when the response has no usable packages.csv block.
	ErrNoPackages = errors.New("no package candidates in response")

	// ErrInvalidThreads is returned when fewer than one candidate is requested.
	ErrInvalidThreads = errors.New("candidate count must be at least 1")
)

// Candidate is one ranked subset of packages. Uniqueness is not enforced.
type Candidate []string

// Key is the candidate's directory identity: the packages joined with underscores.
func (c Candidate) Key() string {
	return workspace.CandidateKey(c)
}

// Select sends a single package-selection prompt and returns at most threads
// candidates, most preferred first. Fewer rows than requested are returned as is.
func Select(ctx context.Context, backend llm.Backend, description string, threads int, logger *zap.Logger) ([]Candidate, error) {
	if threads < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidThreads, threads)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	conv := llm.NewConversation(backend)
	raw, err := conv.Query(ctx, prompt.PackageSelectionTask(description, max(threads, maxRows)))
	if err != nil {
		return nil, fmt.Errorf("failed to query package candidates: %w", err)
	}

	table, ok := extract.Extract(raw, PackagesLabel)
	if !ok {
		return nil, ErrNoPackages
	}

	candidates := Parse(table)
	if len(candidates) == 0 {
		return nil, ErrNoPackages
	}
	if len(candidates) > threads {
		candidates = candidates[:threads]
	}

	logger.Info("Selected package candidates",
		zap.Int("requested", threads),
		zap.Int("returned", len(candidates)))

	return candidates, nil
}

// Parse splits a packages.csv body into candidates. Blank rows and cells are dropped.
func Parse(table string) []Candidate {
	var candidates []Candidate
	for _, row := range strings.Split(table, "\n") {
		var c Candidate
		for _, cell := range strings.Split(row, ",") {
			if cell = strings.TrimSpace(cell); cell != "" {
				c = append(c, cell)
			}
		}
		if len(c) > 0 {
			candidates = append(candidates, c)
		}
	}
	return candidates
}
