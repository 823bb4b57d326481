package llm_test

import (
	"context"
	"errors"
	"testing"

	"github.com/dyluth/microchain/internal/llm"
	"github.com/dyluth/microchain/internal/llm/llmtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConversation_Query(t *testing.T) {
	ctx := context.Background()

	t.Run("accumulates history across turns", func(t *testing.T) {
		backend := llmtest.NewScripted("draft", "final")
		conv := llm.NewConversation(backend)

		reply, err := conv.Query(ctx, "write it")
		require.NoError(t, err)
		assert.Equal(t, "draft", reply)

		reply, err = conv.Query(ctx, "compress it")
		require.NoError(t, err)
		assert.Equal(t, "final", reply)

		reqs := backend.Requests()
		require.Len(t, reqs, 2)
		assert.Equal(t, []llm.Message{{Role: llm.RoleUser, Content: "write it"}}, reqs[0])
		assert.Equal(t, []llm.Message{
			{Role: llm.RoleUser, Content: "write it"},
			{Role: llm.RoleAssistant, Content: "draft"},
			{Role: llm.RoleUser, Content: "compress it"},
		}, reqs[1])

		assert.Equal(t, []llm.Turn{
			{Prompt: "write it", Response: "draft"},
			{Prompt: "compress it", Response: "final"},
		}, conv.Turns())
	})

	t.Run("fresh conversations do not share history", func(t *testing.T) {
		backend := llmtest.NewScripted("a", "b")
		_, err := llm.NewConversation(backend).Query(ctx, "first")
		require.NoError(t, err)
		_, err = llm.NewConversation(backend).Query(ctx, "second")
		require.NoError(t, err)

		reqs := backend.Requests()
		require.Len(t, reqs, 2)
		assert.Len(t, reqs[1], 1)
	})

	t.Run("failed query leaves history unchanged", func(t *testing.T) {
		boom := errors.New("unavailable")
		conv := llm.NewConversation(llmtest.Failing{Err: boom})

		_, err := conv.Query(ctx, "anything")
		require.Error(t, err)
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, 0, conv.Len())
	})

	t.Run("turns are copied", func(t *testing.T) {
		conv := llm.NewConversation(llmtest.NewScripted("x"))
		_, err := conv.Query(ctx, "p")
		require.NoError(t, err)

		turns := conv.Turns()
		turns[0].Response = "mutated"
		assert.Equal(t, "x", conv.Turns()[0].Response)
	})

	t.Run("nil backend is rejected", func(t *testing.T) {
		_, err := llm.NewConversation(nil).Query(ctx, "p")
		assert.Error(t, err)
	})
}
