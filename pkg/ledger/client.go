package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Client provides run-scoped Redis operations for the ledger.
// It is safe for concurrent use.
type Client struct {
	rdb *redis.Client
	run string
}

// NewClient creates a ledger client for the run called run.
// Returns an error if run is empty.
func NewClient(redisOpts *redis.Options, run string) (*Client, error) {
	if run == "" {
		return nil, fmt.Errorf("run name cannot be empty")
	}

	return &Client{
		rdb: redis.NewClient(redisOpts),
		run: run,
	}, nil
}

// Dial parses a redis:// URL and returns a connected client.
func Dial(ctx context.Context, redisURL, run string) (*Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid ledger URL: %w", err)
	}

	client, err := NewClient(opts, run)
	if err != nil {
		return nil, err
	}

	if err := client.Ping(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("ledger is not reachable at %s: %w", opts.Addr, err)
	}
	return client, nil
}

// Run returns the run name the client is scoped to.
func (c *Client) Run() string {
	return c.run
}

// Close closes the Redis connection. Implements io.Closer.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping verifies Redis connectivity.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// RecordAttempt validates and stores an attempt, indexes it under its
// candidate and publishes it on the run's attempt channel.
func (c *Client) RecordAttempt(ctx context.Context, a *Attempt) error {
	if err := a.Validate(); err != nil {
		return fmt.Errorf("invalid attempt: %w", err)
	}

	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, AttemptKey(c.run, a.ID), AttemptToHash(a))
		pipe.ZAdd(ctx, CandidateAttemptsKey(c.run, a.Candidate), redis.Z{Score: float64(a.Version), Member: a.ID})
		pipe.SAdd(ctx, CandidatesKey(c.run), a.Candidate)
		pipe.ZAddNX(ctx, RunsKey, redis.Z{Score: float64(a.CreatedAtMs), Member: c.run})
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to write attempt to Redis: %w", err)
	}

	attemptJSON, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("failed to marshal attempt for event: %w", err)
	}

	if err := c.rdb.Publish(ctx, AttemptEventsChannel(c.run), attemptJSON).Err(); err != nil {
		return fmt.Errorf("failed to publish attempt event: %w", err)
	}

	return nil
}

// GetAttempt retrieves an attempt by ID.
// Returns (nil, redis.Nil) if it doesn't exist; check with IsNotFound.
func (c *Client) GetAttempt(ctx context.Context, attemptID string) (*Attempt, error) {
	hashData, err := c.rdb.HGetAll(ctx, AttemptKey(c.run, attemptID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read attempt from Redis: %w", err)
	}

	// HGetAll returns an empty map for missing keys
	if len(hashData) == 0 {
		return nil, redis.Nil
	}

	attempt, err := HashToAttempt(hashData)
	if err != nil {
		return nil, fmt.Errorf("failed to deserialize attempt: %w", err)
	}
	return attempt, nil
}

// ListAttempts returns a candidate's attempts ordered by version.
// An unknown candidate yields an empty slice.
func (c *Client) ListAttempts(ctx context.Context, candidate string) ([]*Attempt, error) {
	ids, err := c.rdb.ZRange(ctx, CandidateAttemptsKey(c.run, candidate), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read attempts of %s: %w", candidate, err)
	}

	attempts := make([]*Attempt, 0, len(ids))
	for _, id := range ids {
		a, err := c.GetAttempt(ctx, id)
		if err != nil {
			if IsNotFound(err) {
				continue
			}
			return nil, err
		}
		attempts = append(attempts, a)
	}
	return attempts, nil
}

// Candidates returns the sorted candidate keys tried in this run.
func (c *Client) Candidates(ctx context.Context) ([]string, error) {
	candidates, err := c.rdb.SMembers(ctx, CandidatesKey(c.run)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read candidates: %w", err)
	}
	sort.Strings(candidates)
	return candidates, nil
}

// Runs returns every recorded run name, newest first.
func (c *Client) Runs(ctx context.Context) ([]string, error) {
	return listRuns(ctx, c.rdb)
}

// ListRuns returns every run recorded at redisURL, newest first. It needs no
// run name, so it is how callers discover one.
func ListRuns(ctx context.Context, redisURL string) ([]string, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid ledger URL: %w", err)
	}

	rdb := redis.NewClient(opts)
	defer rdb.Close()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ledger is not reachable at %s: %w", opts.Addr, err)
	}
	return listRuns(ctx, rdb)
}

func listRuns(ctx context.Context, rdb *redis.Client) ([]string, error) {
	runs, err := rdb.ZRevRange(ctx, RunsKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read runs: %w", err)
	}
	return runs, nil
}

// Subscription delivers attempt events until closed.
type Subscription struct {
	events <-chan *Attempt
	errors <-chan error
	cancel func()
	once   sync.Once
}

// Events returns the channel of attempts. It is closed when the subscription ends.
func (s *Subscription) Events() <-chan *Attempt {
	return s.events
}

// Errors returns non-fatal decoding errors; the offending message is skipped.
func (s *Subscription) Errors() <-chan error {
	return s.errors
}

// Close stops the subscription. Safe to call multiple times.
func (s *Subscription) Close() error {
	s.once.Do(s.cancel)
	return nil
}

// SubscribeAttemptEvents subscribes to attempts recorded for this run.
// Delivery is at-most-once, as with any Redis Pub/Sub consumer.
func (c *Client) SubscribeAttemptEvents(ctx context.Context) (*Subscription, error) {
	pubsub := c.rdb.Subscribe(ctx, AttemptEventsChannel(c.run))

	// Wait for the subscription to be confirmed so no event published after
	// this call returns is missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to attempt events: %w", err)
	}

	eventsChan := make(chan *Attempt, 10)
	errorsChan := make(chan error, 10)
	subCtx, cancelFunc := context.WithCancel(ctx)

	go func() {
		defer close(eventsChan)
		defer close(errorsChan)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}

				var attempt Attempt
				if err := json.Unmarshal([]byte(msg.Payload), &attempt); err != nil {
					select {
					case errorsChan <- fmt.Errorf("failed to unmarshal attempt event: %w", err):
					case <-subCtx.Done():
						return
					}
					continue
				}

				select {
				case eventsChan <- &attempt:
				case <-subCtx.Done():
					return
				}
			}
		}
	}()

	return &Subscription{
		events: eventsChan,
		errors: errorsChan,
		cancel: cancelFunc,
	}, nil
}

// IsNotFound reports whether err is a Redis "key not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, redis.Nil)
}
