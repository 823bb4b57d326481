package ledger

import (
	"fmt"
	"strconv"
)

// AttemptToHash converts an Attempt to a Redis hash.
func AttemptToHash(a *Attempt) map[string]interface{} {
	return map[string]interface{}{
		"id":            a.ID,
		"candidate":     a.Candidate,
		"version":       a.Version,
		"path":          a.Path,
		"error":         a.Error,
		"outcome":       string(a.Outcome),
		"created_at_ms": a.CreatedAtMs,
	}
}

// HashToAttempt converts a Redis hash back to an Attempt.
func HashToAttempt(hash map[string]string) (*Attempt, error) {
	version, err := strconv.Atoi(hash["version"])
	if err != nil {
		return nil, fmt.Errorf("invalid version field: %w", err)
	}

	createdAtMs, _ := strconv.ParseInt(hash["created_at_ms"], 10, 64)

	return &Attempt{
		ID:          hash["id"],
		Candidate:   hash["candidate"],
		Version:     version,
		Path:        hash["path"],
		Error:       hash["error"],
		Outcome:     Outcome(hash["outcome"]),
		CreatedAtMs: createdAtMs,
	}, nil
}
