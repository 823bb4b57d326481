package ledger

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Outcome describes what followed a deploy attempt.
type Outcome string

const (
	// OutcomeDeployed means the build was clean.
	OutcomeDeployed Outcome = "deployed"

	// OutcomeRepaired means the build failed and the next version was written.
	OutcomeRepaired Outcome = "repaired"

	// OutcomeExhausted means the build failed and no repair cycles were left.
	OutcomeExhausted Outcome = "exhausted"
)

// Validate checks that the outcome is one of the known values.
func (o Outcome) Validate() error {
	switch o {
	case OutcomeDeployed, OutcomeRepaired, OutcomeExhausted:
		return nil
	default:
		return fmt.Errorf("invalid outcome: %q", o)
	}
}

// Attempt is one deploy of one executor version.
type Attempt struct {
	ID          string  `json:"id"`            // UUID
	Candidate   string  `json:"candidate"`     // candidate key, e.g. requests_beautifulsoup4
	Version     int     `json:"version"`       // starts at 1
	Path        string  `json:"path"`          // artifact directory of this version
	Error       string  `json:"error"`         // processed build error, empty when deployed
	Outcome     Outcome `json:"outcome"`
	CreatedAtMs int64   `json:"created_at_ms"` // Unix milliseconds
}

// NewAttempt fills in ID and timestamp.
func NewAttempt(candidate string, version int, path, errText string, outcome Outcome) *Attempt {
	return &Attempt{
		ID:          uuid.New().String(),
		Candidate:   candidate,
		Version:     version,
		Path:        path,
		Error:       errText,
		Outcome:     outcome,
		CreatedAtMs: time.Now().UnixMilli(),
	}
}

// Validate checks the attempt's invariants.
func (a *Attempt) Validate() error {
	if _, err := uuid.Parse(a.ID); err != nil {
		return fmt.Errorf("invalid ID: %w", err)
	}
	if a.Candidate == "" {
		return fmt.Errorf("candidate cannot be empty")
	}
	if a.Version < 1 {
		return fmt.Errorf("version must be >= 1, got %d", a.Version)
	}
	if err := a.Outcome.Validate(); err != nil {
		return err
	}
	if a.Outcome == OutcomeDeployed && a.Error != "" {
		return fmt.Errorf("deployed attempt cannot carry an error")
	}
	if a.Outcome != OutcomeDeployed && a.Error == "" {
		return fmt.Errorf("%s attempt must carry the build error", a.Outcome)
	}
	return nil
}
