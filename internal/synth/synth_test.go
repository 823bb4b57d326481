package synth

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dyluth/microchain/internal/artifact"
	"github.com/dyluth/microchain/internal/llm"
	"github.com/dyluth/microchain/internal/llm/llmtest"
	"github.com/dyluth/microchain/internal/printer"
	"github.com/dyluth/microchain/internal/workspace"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var urlTask = Task{
	Description:  "The executor takes a url of a website as input and classifies it as either individual or business.",
	TestScenario: `Takes https://jina.ai/ as input and returns "business".`,
}

func quiet(t *testing.T) {
	t.Cleanup(printer.SetOutput(io.Discard, io.Discard))
}

func newSynth(t *testing.T, backend llm.Backend) *Synthesizer {
	return &Synthesizer{
		Backend:   backend,
		Workspace: workspace.New(t.TempDir()),
		Logger:    zaptest.NewLogger(t),
	}
}

func TestCreateExecutor(t *testing.T) {
	quiet(t)
	ctx := context.Background()
	packages := []string{"requests", "beautifulsoup4"}

	t.Run("writes every file under v1", func(t *testing.T) {
		backend := llmtest.NewScripted()
		backend.Fallback = llmtest.FileResponder(map[string]string{
			artifact.ExecutorFile:     "class MicroChainExecutor1: pass",
			artifact.TestExecutorFile: "def test_executor(): pass",
			artifact.RequirementsFile: "jina==3.14.1\nrequests\nbeautifulsoup4",
			artifact.DockerFile:       "FROM jinaai/jina:3.14.1-py39-standard",
		})
		s := newSynth(t, backend)

		files, err := s.CreateExecutor(ctx, urlTask, "MicroChainExecutor1", packages)
		require.NoError(t, err)
		assert.Empty(t, files.Missing())

		dir := filepath.Join(s.Workspace.Root, "executor", "requests_beautifulsoup4", "v1")
		onDisk, err := workspace.LoadFiles(dir)
		require.NoError(t, err)
		for _, ft := range artifact.ExpectedFiles {
			assert.NotEmpty(t, onDisk[ft.Name], ft.Name)
			assert.Equal(t, files[ft.Name], onDisk[ft.Name])
		}
		assert.Contains(t, onDisk[artifact.ConfigFile], "MicroChainExecutor1")

		_, err = os.Stat(s.Workspace.FlowPath())
		assert.NoError(t, err, "flow directory is recreated")

		// Four stages, one fresh conversation each.
		reqs := backend.Requests()
		require.Len(t, reqs, 4)
		for _, r := range reqs {
			assert.Len(t, r, 1)
		}
	})

	t.Run("each stage is conditioned on prior files", func(t *testing.T) {
		backend := llmtest.NewScripted()
		backend.Fallback = llmtest.FileResponder(map[string]string{
			artifact.ExecutorFile:     "EXECUTOR-BODY",
			artifact.TestExecutorFile: "TEST-BODY",
			artifact.RequirementsFile: "REQ-BODY",
		})
		s := newSynth(t, backend)

		_, err := s.CreateExecutor(ctx, urlTask, "X", packages)
		require.NoError(t, err)

		assert.Contains(t, backend.LastPrompt(0), "requests, beautifulsoup4")
		assert.Contains(t, backend.LastPrompt(0), urlTask.Description)
		assert.NotContains(t, backend.LastPrompt(0), "EXECUTOR-BODY")

		assert.Contains(t, backend.LastPrompt(1), "**executor.py**\n```python\nEXECUTOR-BODY\n```")

		assert.Contains(t, backend.LastPrompt(2), "EXECUTOR-BODY")
		assert.Contains(t, backend.LastPrompt(2), "TEST-BODY")
		assert.Contains(t, backend.LastPrompt(2), "jina==3.14.1")

		assert.Contains(t, backend.LastPrompt(3), "EXECUTOR-BODY")
		assert.Contains(t, backend.LastPrompt(3), "TEST-BODY")
		assert.Contains(t, backend.LastPrompt(3), "**requirements.txt**\n```\nREQ-BODY\n```")
	})

	t.Run("chain of thought compresses within the same conversation", func(t *testing.T) {
		backend := llmtest.NewScripted()
		backend.Fallback = llmtest.FileResponder(nil)
		s := newSynth(t, backend)
		s.ChainOfThought = true
		s.FrameworkVersion = "3.15.0"

		_, err := s.CreateExecutor(ctx, urlTask, "X", packages)
		require.NoError(t, err)

		reqs := backend.Requests()
		require.Len(t, reqs, 8)
		for i := 0; i < 8; i += 2 {
			assert.Len(t, reqs[i], 1, "first turn of stage %d", i/2)
			assert.Len(t, reqs[i+1], 3, "compression turn of stage %d", i/2)
		}
		assert.Contains(t, backend.LastPrompt(3), "Don't add any additional tests.")
		assert.Contains(t, backend.LastPrompt(5), "Keep the same version of jina (3.15.0)")
	})

	t.Run("missing file aborts before later stages", func(t *testing.T) {
		backend := llmtest.NewScripted("I refuse to write code.")
		s := newSynth(t, backend)

		_, err := s.CreateExecutor(ctx, urlTask, "X", packages)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrMissingArtifact)
		assert.Contains(t, err.Error(), artifact.ExecutorFile)
		assert.Len(t, backend.Requests(), 1)
	})

	t.Run("backend failure propagates", func(t *testing.T) {
		boom := errors.New("rate limited")
		s := newSynth(t, llmtest.Failing{Err: boom})

		_, err := s.CreateExecutor(ctx, urlTask, "X", packages)
		assert.ErrorIs(t, err, boom)
	})

	t.Run("stale v1 content is wiped", func(t *testing.T) {
		backend := llmtest.NewScripted()
		backend.Fallback = llmtest.FileResponder(nil)
		s := newSynth(t, backend)

		stale := filepath.Join(s.Workspace.ExecutorPath(packages, 1), "stale.txt")
		require.NoError(t, workspace.PersistFile("old", stale))

		_, err := s.CreateExecutor(ctx, urlTask, "X", packages)
		require.NoError(t, err)
		_, err = os.Stat(stale)
		assert.True(t, os.IsNotExist(err))
	})
}

func TestCreatePlayground(t *testing.T) {
	quiet(t)
	ctx := context.Background()

	backend := llmtest.NewScripted("Let me think about the layout first.")
	backend.Fallback = llmtest.FileResponder(map[string]string{
		artifact.PlaygroundFile: "import streamlit as st",
	})
	s := newSynth(t, backend)

	dir := s.Workspace.ExecutorPath([]string{"requests"}, 3)
	require.NoError(t, workspace.WriteSet(dir, artifact.Set{
		artifact.ExecutorFile:     "EXEC",
		artifact.TestExecutorFile: "TEST",
	}))

	path, err := s.CreatePlayground(ctx, "MicroChainExecutor1", dir, "grpc://127.0.0.1:12345")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, artifact.PlaygroundFile), path)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "import streamlit as st", string(content))

	reqs := backend.Requests()
	require.Len(t, reqs, 2)
	first := backend.LastPrompt(0)
	assert.Contains(t, first, "EXEC")
	assert.Contains(t, first, "TEST")
	assert.Equal(t, 2, strings.Count(first, "grpc://127.0.0.1:12345"), "host appears in description and connection example")
	assert.Len(t, reqs[1], 3)
}

func TestCreatePlayground_MissingApp(t *testing.T) {
	quiet(t)
	backend := llmtest.NewScripted("draft", "no file in this answer")
	s := newSynth(t, backend)

	dir := s.Workspace.ExecutorPath([]string{"requests"}, 1)
	require.NoError(t, workspace.WriteSet(dir, artifact.Set{artifact.ExecutorFile: "E"}))

	_, err := s.CreatePlayground(context.Background(), "X", dir, "grpc://h:1")
	assert.ErrorIs(t, err, ErrMissingArtifact)
}
