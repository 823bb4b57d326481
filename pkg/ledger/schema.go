package ledger

import "fmt"

// AttemptKey returns the Redis key for an attempt.
// Pattern: microchain:{run}:attempt:{attempt_id}
func AttemptKey(run, attemptID string) string {
	return fmt.Sprintf("microchain:%s:attempt:%s", run, attemptID)
}

// CandidateAttemptsKey returns the Redis key of a candidate's attempt ZSET.
// Pattern: microchain:{run}:candidate:{candidate}:attempts
func CandidateAttemptsKey(run, candidate string) string {
	return fmt.Sprintf("microchain:%s:candidate:%s:attempts", run, candidate)
}

// CandidatesKey returns the Redis key of the set of candidates tried in a run.
// Pattern: microchain:{run}:candidates
func CandidatesKey(run string) string {
	return fmt.Sprintf("microchain:%s:candidates", run)
}

// RunsKey is the ZSET of all runs, scored by first attempt time.
const RunsKey = "microchain:runs"

// AttemptEventsChannel returns the Pub/Sub channel for attempt events.
// Pattern: microchain:{run}:attempt_events
func AttemptEventsChannel(run string) string {
	return fmt.Sprintf("microchain:%s:attempt_events", run)
}
