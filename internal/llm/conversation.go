// Package llm talks to the text-generation backend.
//
// A Conversation is an explicit value: the ordered list of turns sent so far.
// Each Query replays the whole history to the Backend, appends the new turn and
// returns the reply, so a scripted Backend makes every conversation replayable.
package llm

import (
	"context"
	"fmt"
)

// Message roles understood by every Backend.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one entry of the history handed to a Backend.
type Message struct {
	Role    string
	Content string
}

// Backend returns the model's reply to the given history.
// Implementations must not retain or mutate messages.
type Backend interface {
	Complete(ctx context.Context, messages []Message) (string, error)
}

// Turn is one prompt and the reply it produced.
type Turn struct {
	Prompt   string
	Response string
}

// Conversation accumulates turns against a single Backend.
// It is owned by the stage that created it and is not safe for concurrent use.
type Conversation struct {
	backend Backend
	turns   []Turn
}

// NewConversation starts an empty conversation.
func NewConversation(backend Backend) *Conversation {
	return &Conversation{backend: backend}
}

// Query sends prompt together with all previous turns and records the reply.
// On error the conversation is left unchanged.
func (c *Conversation) Query(ctx context.Context, prompt string) (string, error) {
	if c.backend == nil {
		return "", fmt.Errorf("conversation has no backend")
	}

	reply, err := c.backend.Complete(ctx, c.Messages(prompt))
	if err != nil {
		return "", fmt.Errorf("generation backend failed: %w", err)
	}

	c.turns = append(c.turns, Turn{Prompt: prompt, Response: reply})
	return reply, nil
}

// Messages renders the history followed by prompt as backend messages.
func (c *Conversation) Messages(prompt string) []Message {
	msgs := make([]Message, 0, 2*len(c.turns)+1)
	for _, t := range c.turns {
		msgs = append(msgs,
			Message{Role: RoleUser, Content: t.Prompt},
			Message{Role: RoleAssistant, Content: t.Response},
		)
	}
	return append(msgs, Message{Role: RoleUser, Content: prompt})
}

// Turns returns a copy of the recorded turns.
func (c *Conversation) Turns() []Turn {
	out := make([]Turn, len(c.turns))
	copy(out, c.turns)
	return out
}

// Len returns the number of completed turns.
func (c *Conversation) Len() int {
	return len(c.turns)
}
