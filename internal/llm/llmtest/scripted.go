// Package llmtest provides a deterministic Backend for tests.
package llmtest

import (
	"context"
	"fmt"
	"sync"

	"github.com/dyluth/microchain/internal/llm"
)

// Scripted replays canned replies in order and records every request.
// When the replies run out, Fallback is consulted; without one the call fails.
type Scripted struct {
	mu       sync.Mutex
	replies  []string
	requests [][]llm.Message

	// Fallback answers requests once the scripted replies are used up.
	Fallback func(messages []llm.Message) (string, error)
}

// NewScripted returns a backend that answers with replies, in order.
func NewScripted(replies ...string) *Scripted {
	return &Scripted{replies: replies}
}

// Complete implements llm.Backend.
func (s *Scripted) Complete(_ context.Context, messages []llm.Message) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	msgs := make([]llm.Message, len(messages))
	copy(msgs, messages)
	s.requests = append(s.requests, msgs)

	if len(s.replies) > 0 {
		reply := s.replies[0]
		s.replies = s.replies[1:]
		return reply, nil
	}
	if s.Fallback != nil {
		return s.Fallback(msgs)
	}
	return "", fmt.Errorf("scripted backend: no reply left for request %d", len(s.requests))
}

// Requests returns every history received so far.
func (s *Scripted) Requests() [][]llm.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]llm.Message, len(s.requests))
	copy(out, s.requests)
	return out
}

// LastPrompt returns the final user message of request i.
func (s *Scripted) LastPrompt(i int) string {
	reqs := s.Requests()
	if i < 0 || i >= len(reqs) || len(reqs[i]) == 0 {
		return ""
	}
	return reqs[i][len(reqs[i])-1].Content
}

// Failing is a Backend that always returns Err.
type Failing struct {
	Err error
}

// Complete implements llm.Backend.
func (f Failing) Complete(context.Context, []llm.Message) (string, error) {
	return "", f.Err
}
