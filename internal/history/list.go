// Package history reads the attempt ledger back for the history command.
package history

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/dyluth/microchain/pkg/ledger"
	"golang.org/x/sync/errgroup"
)

const maxConcurrentReads = 8

// Source is the read side of the ledger.
type Source interface {
	Candidates(ctx context.Context) ([]string, error)
	ListAttempts(ctx context.Context, candidate string) ([]*ledger.Attempt, error)
}

// FilterCriteria narrows the listed attempts. All filters are ANDed.
type FilterCriteria struct {
	Candidate        string         // exact candidate key, empty = all
	Outcome          ledger.Outcome // empty = all
	SinceTimestampMs int64          // 0 = no lower bound
}

func (fc *FilterCriteria) matches(a *ledger.Attempt) bool {
	if fc == nil {
		return true
	}
	if fc.Candidate != "" && a.Candidate != fc.Candidate {
		return false
	}
	if fc.Outcome != "" && a.Outcome != fc.Outcome {
		return false
	}
	if fc.SinceTimestampMs > 0 && a.CreatedAtMs < fc.SinceTimestampMs {
		return false
	}
	return true
}

// ParseSince turns "90m" (ago) or an RFC3339 time into Unix milliseconds.
func ParseSince(value string, now time.Time) (int64, error) {
	if value == "" {
		return 0, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.UnixMilli(), nil
	}
	if d, err := time.ParseDuration(value); err == nil && d >= 0 {
		return now.Add(-d).UnixMilli(), nil
	}
	return 0, fmt.Errorf("invalid --since: %s (use a duration like '1h30m' or RFC3339 like '2026-01-02T15:04:05Z')", value)
}

// Collect loads the attempts of every matching candidate, ordered by
// candidate then version.
func Collect(ctx context.Context, src Source, filters *FilterCriteria) ([]*ledger.Attempt, error) {
	candidates := []string{}
	if filters != nil && filters.Candidate != "" {
		candidates = append(candidates, filters.Candidate)
	} else {
		all, err := src.Candidates(ctx)
		if err != nil {
			return nil, err
		}
		candidates = all
	}

	// Each candidate is its own sorted set, so reads fan out
	perCandidate := make([][]*ledger.Attempt, len(candidates))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentReads)
	for i, c := range candidates {
		i, c := i, c
		g.Go(func() error {
			attempts, err := src.ListAttempts(gctx, c)
			if err != nil {
				return err
			}
			perCandidate[i] = attempts
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []*ledger.Attempt
	for _, attempts := range perCandidate {
		for _, a := range attempts {
			if filters.matches(a) {
				out = append(out, a)
			}
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Candidate != out[j].Candidate {
			return out[i].Candidate < out[j].Candidate
		}
		return out[i].Version < out[j].Version
	})
	return out, nil
}

// List writes the matching attempts of run to w.
func List(ctx context.Context, src Source, run string, filters *FilterCriteria, format OutputFormat, w io.Writer) error {
	attempts, err := Collect(ctx, src, filters)
	if err != nil {
		return err
	}

	if format == OutputFormatJSONL {
		return FormatJSONL(w, attempts)
	}
	FormatTable(w, attempts, run)
	return nil
}

// Follow writes attempts from events until the channel closes or ctx ends.
func Follow(ctx context.Context, events <-chan *ledger.Attempt, filters *FilterCriteria, format OutputFormat, w io.Writer) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case a, ok := <-events:
			if !ok {
				return nil
			}
			if !filters.matches(a) {
				continue
			}
			if err := FormatEvent(w, a, format); err != nil {
				return fmt.Errorf("failed to write event: %w", err)
			}
		}
	}
}
