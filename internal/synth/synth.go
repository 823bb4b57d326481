// Package synth generates the files of an executor and its playground.
package synth

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/dyluth/microchain/internal/artifact"
	"github.com/dyluth/microchain/internal/extract"
	"github.com/dyluth/microchain/internal/llm"
	"github.com/dyluth/microchain/internal/printer"
	"github.com/dyluth/microchain/internal/prompt"
	"github.com/dyluth/microchain/internal/workspace"
	"go.uber.org/zap"
)

// DefaultFrameworkVersion is the jina version pinned in every requirements file.
const DefaultFrameworkVersion = "3.14.1"

// ErrMissingArtifact is returned when a response lacks the file a stage asked for.
var ErrMissingArtifact = errors.New("response does not contain the requested file")

// Task is what the executor must do and how it will be tested.
type Task struct {
	Description  string
	TestScenario string
}

// Synthesizer runs the generation stages against a Backend.
type Synthesizer struct {
	Backend   llm.Backend
	Workspace *workspace.Workspace
	Logger    *zap.Logger

	// ChainOfThought adds a compression turn to every stage.
	ChainOfThought bool

	// FrameworkVersion is the pinned jina version; DefaultFrameworkVersion when empty.
	FrameworkVersion string
}

// stage is one sequential generation step.
type stage struct {
	title    string
	file     string
	prompt   func(prior artifact.Set) string
	compress func() string
}

func (s *Synthesizer) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger.Named("synth")
}

func (s *Synthesizer) frameworkVersion() string {
	if s.FrameworkVersion == "" {
		return DefaultFrameworkVersion
	}
	return s.FrameworkVersion
}

func (s *Synthesizer) stages(task Task, name string, packages []string) []stage {
	wrap := func(prior artifact.Set, names ...string) string {
		var out string
		for _, n := range names {
			out += extract.Wrap(prior[n], n, artifact.TagFor(n))
		}
		return out
	}

	return []stage{
		{
			title: "Executor",
			file:  artifact.ExecutorFile,
			prompt: func(artifact.Set) string {
				return prompt.GeneralGuidelines() +
					prompt.ExecutorTask(name, task.Description, task.TestScenario, packages) +
					prompt.ChainOfThoughtCreation()
			},
			compress: func() string {
				return prompt.Rules() + prompt.ChainOfThoughtOptimization("python", artifact.ExecutorFile)
			},
		},
		{
			title: "Test Executor",
			file:  artifact.TestExecutorFile,
			prompt: func(prior artifact.Set) string {
				return prompt.GeneralGuidelines() +
					wrap(prior, artifact.ExecutorFile) +
					prompt.TestExecutorTask(name, task.TestScenario)
			},
			compress: func() string {
				return prompt.Rules() +
					prompt.ChainOfThoughtOptimization("python", artifact.TestExecutorFile) +
					"Don't add any additional tests. "
			},
		},
		{
			title: "Requirements",
			file:  artifact.RequirementsFile,
			prompt: func(prior artifact.Set) string {
				return prompt.GeneralGuidelines() +
					wrap(prior, artifact.ExecutorFile, artifact.TestExecutorFile) +
					prompt.RequirementsTask(s.frameworkVersion())
			},
			compress: func() string {
				return prompt.ChainOfThoughtOptimization("", artifact.RequirementsFile) +
					fmt.Sprintf("Keep the same version of jina (%s). ", s.frameworkVersion())
			},
		},
		{
			title: "Dockerfile",
			file:  artifact.DockerFile,
			prompt: func(prior artifact.Set) string {
				return prompt.GeneralGuidelines() +
					wrap(prior, artifact.ExecutorFile, artifact.TestExecutorFile, artifact.RequirementsFile) +
					prompt.DockerTask()
			},
			compress: func() string {
				return prompt.Rules() + prompt.ChainOfThoughtOptimization("dockerfile", artifact.DockerFile)
			},
		},
	}
}

// CreateExecutor generates version 1 of the executor for one package candidate.
// Each stage runs in a fresh conversation and is persisted before the next starts.
// config.yml is written last.
func (s *Synthesizer) CreateExecutor(ctx context.Context, task Task, name string, packages []string) (artifact.Set, error) {
	log := s.logger().With(zap.String("candidate", workspace.CandidateKey(packages)))
	dir := s.Workspace.ExecutorPath(packages, 1)

	if err := workspace.RecreateFolder(dir); err != nil {
		return nil, err
	}
	if err := workspace.RecreateFolder(s.Workspace.FlowPath()); err != nil {
		return nil, err
	}

	files := artifact.Set{}
	for _, st := range s.stages(task, name, packages) {
		printer.Banner(st.title)

		content, err := s.runStage(ctx, st, files)
		if err != nil {
			return nil, err
		}

		if err := workspace.PersistFile(content, filepath.Join(dir, st.file)); err != nil {
			return nil, err
		}
		files[st.file] = content

		log.Info("Generated file", zap.String("file", st.file), zap.Int("bytes", len(content)))
	}

	if err := workspace.WriteConfig(name, dir); err != nil {
		return nil, err
	}

	return files, nil
}

func (s *Synthesizer) runStage(ctx context.Context, st stage, prior artifact.Set) (string, error) {
	conv := llm.NewConversation(s.Backend)

	raw, err := conv.Query(ctx, st.prompt(prior))
	if err != nil {
		return "", fmt.Errorf("failed to generate %s: %w", st.file, err)
	}

	if s.ChainOfThought {
		raw, err = conv.Query(ctx, st.compress())
		if err != nil {
			return "", fmt.Errorf("failed to compress %s: %w", st.file, err)
		}
	}

	content, ok := extract.Extract(raw, st.file)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrMissingArtifact, st.file)
	}
	return content, nil
}

// CreatePlayground generates app.py for the executor deployed at host and writes
// it into executorPath. It returns the path of the written file.
func (s *Synthesizer) CreatePlayground(ctx context.Context, name, executorPath, host string) (string, error) {
	printer.Banner("Playground")

	files, err := workspace.LoadFiles(executorPath)
	if err != nil {
		return "", err
	}

	userQuery := prompt.GeneralGuidelines() +
		extract.Wrap(files[artifact.ExecutorFile], artifact.ExecutorFile, "python") +
		extract.Wrap(files[artifact.TestExecutorFile], artifact.TestExecutorFile, "python") +
		prompt.PlaygroundTask(name, host)

	conv := llm.NewConversation(s.Backend)
	if _, err := conv.Query(ctx, userQuery); err != nil {
		return "", fmt.Errorf("failed to generate playground: %w", err)
	}
	raw, err := conv.Query(ctx, prompt.Rules()+prompt.ChainOfThoughtOptimization("python", artifact.PlaygroundFile))
	if err != nil {
		return "", fmt.Errorf("failed to compress playground: %w", err)
	}

	content, ok := extract.Extract(raw, artifact.PlaygroundFile)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrMissingArtifact, artifact.PlaygroundFile)
	}

	path := filepath.Join(executorPath, artifact.PlaygroundFile)
	if err := workspace.PersistFile(content, path); err != nil {
		return "", err
	}

	s.logger().Info("Generated playground", zap.String("path", path), zap.String("host", host))
	return path, nil
}
