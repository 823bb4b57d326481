// Package ledger records the history of executor builds in Redis.
//
// Every deploy attempt of every package candidate becomes an Attempt: the
// version that was built, where its files live, the error text the build
// produced and what happened next (the build deployed, a repair was written,
// or the repair budget ran out).
//
// # Redis Schema
//
// All keys are namespaced by run name (the generated executor name):
//
//	Attempts:           microchain:{run}:attempt:{attempt_id}            (hash)
//	Candidate history:  microchain:{run}:candidate:{candidate}:attempts  (zset, score = version)
//	Candidates:         microchain:{run}:candidates                      (set)
//	Runs:               microchain:runs                                   (zset, score = first attempt ms)
//
// Pub/Sub channel: microchain:{run}:attempt_events carries the full attempt JSON
// after every write.
package ledger
