// Package repair deploys executor versions and asks the model to fix the
// ones that fail, until a build is clean or the repair budget runs out.
package repair

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dyluth/microchain/internal/artifact"
	"github.com/dyluth/microchain/internal/deploy"
	"github.com/dyluth/microchain/internal/extract"
	"github.com/dyluth/microchain/internal/llm"
	"github.com/dyluth/microchain/internal/printer"
	"github.com/dyluth/microchain/internal/prompt"
	"github.com/dyluth/microchain/internal/synth"
	"github.com/dyluth/microchain/internal/workspace"
	"github.com/dyluth/microchain/pkg/ledger"
	"go.uber.org/zap"
)

// DefaultMaxIterations bounds the versions built per candidate.
const DefaultMaxIterations = 10

// State of the repair state machine.
type State int

const (
	StateAttempting State = iota
	StateSuccess
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateAttempting:
		return "attempting"
	case StateSuccess:
		return "success"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// ErrExhausted is the sentinel behind every ExhaustedError.
var ErrExhausted = errors.New("could not repair executor within the iteration limit")

// ExhaustedError reports a candidate whose last allowed version still failed.
type ExhaustedError struct {
	Candidate string
	Version   int
	LastError string
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s: candidate %s failed at v%d: %s", ErrExhausted, e.Candidate, e.Version, e.LastError)
}

func (e *ExhaustedError) Unwrap() error {
	return ErrExhausted
}

// Result is the final state of one Run.
type Result struct {
	State   State
	Version int
	Path    string
	Repairs int
}

// Recorder receives every deploy attempt. *ledger.Client implements it.
type Recorder interface {
	RecordAttempt(ctx context.Context, a *ledger.Attempt) error
}

// Loop drives deploy and repair for one candidate at a time.
type Loop struct {
	Backend   llm.Backend
	Deployer  deploy.Deployer
	Workspace *workspace.Workspace
	Recorder  Recorder // optional
	Logger    *zap.Logger

	// MaxIterations is the number of versions allowed, so MaxIterations-1 repairs.
	// DefaultMaxIterations when zero.
	MaxIterations int
}

func (l *Loop) maxIterations() int {
	if l.MaxIterations <= 0 {
		return DefaultMaxIterations
	}
	return l.MaxIterations
}

func (l *Loop) logger() *zap.Logger {
	if l.Logger == nil {
		return zap.NewNop()
	}
	return l.Logger.Named("repair")
}

// Run deploys version 1 of the candidate's executor and repairs it until the
// build is clean. Every repair writes the next version directory; earlier
// versions are never touched. Deployer and backend failures are returned as
// they are. Running out of versions returns an *ExhaustedError.
func (l *Loop) Run(ctx context.Context, packages []string, task synth.Task) (Result, error) {
	key := workspace.CandidateKey(packages)
	log := l.logger().With(zap.String("candidate", key))
	max := l.maxIterations()

	var previousError string
	for version := 1; ; version++ {
		path := l.Workspace.ExecutorPath(packages, version)
		result := Result{State: StateAttempting, Version: version, Path: path, Repairs: version - 1}

		if err := ctx.Err(); err != nil {
			return result, err
		}

		printer.Step("Deploying %s v%d\n", key, version)
		buildLog, err := l.Deployer.Push(ctx, path)
		if err != nil {
			result.State = StateFailed
			return result, err
		}

		errText, failed := deploy.ProcessErrorMessage(buildLog)
		if !failed {
			l.record(ctx, log, key, version, path, "", ledger.OutcomeDeployed)
			printer.Success("%s v%d deployed\n", key, version)
			result.State = StateSuccess
			return result, nil
		}

		log.Info("Build failed", zap.Int("version", version), zap.String("error", errText))

		if version >= max {
			l.record(ctx, log, key, version, path, errText, ledger.OutcomeExhausted)
			result.State = StateFailed
			return result, &ExhaustedError{Candidate: key, Version: version, LastError: errText}
		}

		l.record(ctx, log, key, version, path, errText, ledger.OutcomeRepaired)
		printer.Banner("Debugging")
		printer.Println(errText)

		next, err := l.repair(ctx, log, task, path, previousError, errText)
		if err != nil {
			result.State = StateFailed
			return result, err
		}

		if err := workspace.WriteSet(l.Workspace.ExecutorPath(packages, version+1), next); err != nil {
			result.State = StateFailed
			return result, err
		}
		previousError = errText
	}
}

// repair asks a fresh conversation to fix the files of the version at path and
// returns them merged with the model's replacements.
func (l *Loop) repair(ctx context.Context, log *zap.Logger, task synth.Task, path, previousError, currentError string) (artifact.Set, error) {
	files, err := workspace.LoadFiles(path)
	if err != nil {
		return nil, err
	}

	conv := llm.NewConversation(l.Backend)
	response, err := conv.Query(ctx, prompt.RepairTask(task.Description, task.TestScenario, files.String(), previousError, currentError))
	if err != nil {
		return nil, err
	}

	updates := artifact.Set{}
	for _, ft := range artifact.ExpectedFiles {
		if content, ok := extract.Extract(response, ft.Name); ok {
			updates[ft.Name] = content
		}
	}

	next := files.Clone()
	next.Merge(updates)
	// An expected file the model blanked out keeps its previous content.
	for _, name := range next.Missing() {
		if strings.TrimSpace(files[name]) != "" {
			log.Warn("Repair emptied a file, keeping the previous content", zap.String("file", name))
			next[name] = files[name]
		}
	}

	changed := files.Merge(next)
	if len(changed) == 0 {
		printer.Warning("The model returned no changed files; retrying with the same files\n")
	}
	log.Info("Applied repair", zap.Strings("changed", changed))
	return files, nil
}

func (l *Loop) record(ctx context.Context, log *zap.Logger, candidate string, version int, path, errText string, outcome ledger.Outcome) {
	if l.Recorder == nil {
		return
	}
	if err := l.Recorder.RecordAttempt(ctx, ledger.NewAttempt(candidate, version, path, errText, outcome)); err != nil {
		log.Warn("Failed to record attempt", zap.Int("version", version), zap.Error(err))
	}
}
