// Package pipeline runs the whole generation for one task: select package
// candidates, then synthesize, repair, serve and wrap each one in a playground.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/dyluth/microchain/internal/artifact"
	"github.com/dyluth/microchain/internal/deploy"
	"github.com/dyluth/microchain/internal/llm"
	"github.com/dyluth/microchain/internal/naming"
	"github.com/dyluth/microchain/internal/printer"
	"github.com/dyluth/microchain/internal/repair"
	"github.com/dyluth/microchain/internal/selector"
	"github.com/dyluth/microchain/internal/synth"
	"github.com/dyluth/microchain/internal/workspace"
	"go.uber.org/zap"
)

// Exhaustion policies.
const (
	OnExhaustionContinue = "continue"
	OnExhaustionAbort    = "abort"
)

// ErrAllCandidatesFailed is returned when no candidate could be repaired.
var ErrAllCandidatesFailed = errors.New("no package candidate produced a working executor")

// RecorderFactory opens the attempt recorder for a run.
type RecorderFactory func(ctx context.Context, executorName string) (repair.Recorder, error)

// Pipeline wires the stages together. Synth and Repair must share Workspace.
type Pipeline struct {
	Backend   llm.Backend
	Workspace *workspace.Workspace
	Names     naming.Generator
	Synth     *synth.Synthesizer
	Repair    *repair.Loop
	Flow      deploy.FlowDeployer
	Recorders RecorderFactory // optional
	Logger    *zap.Logger

	// Threads is the number of package candidates to try.
	Threads int

	// OnExhaustion is OnExhaustionContinue (default) or OnExhaustionAbort.
	OnExhaustion string
}

// CandidateReport is the outcome for one package candidate.
type CandidateReport struct {
	Candidate  selector.Candidate
	Result     repair.Result
	Host       string
	Playground string
	Err        error
}

// Succeeded reports whether the candidate was deployed and got a playground.
func (c CandidateReport) Succeeded() bool {
	return c.Err == nil && c.Result.State == repair.StateSuccess
}

// Report summarises a run.
type Report struct {
	ExecutorName string
	Candidates   []CandidateReport
}

// Successes returns the candidates that made it through.
func (r *Report) Successes() []CandidateReport {
	var out []CandidateReport
	for _, c := range r.Candidates {
		if c.Succeeded() {
			out = append(out, c)
		}
	}
	return out
}

func (p *Pipeline) logger() *zap.Logger {
	if p.Logger == nil {
		return zap.NewNop()
	}
	return p.Logger.Named("pipeline")
}

func (p *Pipeline) names() naming.Generator {
	if p.Names == nil {
		return naming.UUIDGenerator{}
	}
	return p.Names
}

// Validate checks the wiring before a run.
func (p *Pipeline) Validate() error {
	switch {
	case p.Backend == nil:
		return fmt.Errorf("pipeline has no generation backend")
	case p.Workspace == nil:
		return fmt.Errorf("pipeline has no workspace")
	case p.Synth == nil || p.Repair == nil:
		return fmt.Errorf("pipeline needs a synthesizer and a repair loop")
	case p.Flow == nil:
		return fmt.Errorf("pipeline has no flow deployer")
	case p.Threads < 1:
		return fmt.Errorf("%w: %d", selector.ErrInvalidThreads, p.Threads)
	}

	switch p.OnExhaustion {
	case "", OnExhaustionContinue, OnExhaustionAbort:
		return nil
	default:
		return fmt.Errorf("invalid on_exhaustion policy %q (must be %q or %q)", p.OnExhaustion, OnExhaustionContinue, OnExhaustionAbort)
	}
}

// Run generates executors for task. Candidates are processed one after the
// other. An exhausted candidate either stops the run or is skipped, depending
// on OnExhaustion; any other failure stops the run.
func (p *Pipeline) Run(ctx context.Context, task synth.Task) (*Report, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	name := p.names().Next()
	report := &Report{ExecutorName: name}
	log := p.logger().With(zap.String("executor", name))

	// Each run repairs with its own copy of the loop so the recorder stays per run.
	loop := *p.Repair
	if p.Recorders != nil {
		recorder, err := p.Recorders(ctx, name)
		if err != nil {
			return report, fmt.Errorf("failed to open attempt ledger: %w", err)
		}
		loop.Recorder = recorder
	}

	printer.Banner("What package to use?")
	candidates, err := selector.Select(ctx, p.Backend, task.Description, p.Threads, p.Logger)
	if err != nil {
		return report, err
	}
	log.Info("Selected package candidates", zap.Int("count", len(candidates)))

	if err := workspace.RecreateFolder(p.Workspace.ExecutorRoot()); err != nil {
		return report, err
	}

	var lastExhausted error
	for _, candidate := range candidates {
		cr, err := p.runCandidate(ctx, &loop, task, name, candidate)
		report.Candidates = append(report.Candidates, cr)
		if err == nil {
			printSummary(name, cr)
			continue
		}

		if !errors.Is(err, repair.ErrExhausted) || p.OnExhaustion == OnExhaustionAbort {
			return report, err
		}

		lastExhausted = err
		printer.Warning("Giving up on %s after v%d, trying the next candidate\n", candidate.Key(), cr.Result.Version)
		log.Warn("Candidate exhausted", zap.String("candidate", candidate.Key()), zap.Error(err))
	}

	if len(report.Successes()) == 0 {
		return report, fmt.Errorf("%w: %w", ErrAllCandidatesFailed, lastExhausted)
	}
	return report, nil
}

func (p *Pipeline) runCandidate(ctx context.Context, loop *repair.Loop, task synth.Task, name string, candidate selector.Candidate) (CandidateReport, error) {
	cr := CandidateReport{Candidate: candidate}
	fail := func(err error) (CandidateReport, error) {
		cr.Err = err
		return cr, err
	}

	printer.Step("Package candidate: %s\n", candidate.Key())

	if _, err := p.Synth.CreateExecutor(ctx, task, name, candidate); err != nil {
		return fail(err)
	}

	result, err := loop.Run(ctx, candidate, task)
	cr.Result = result
	if err != nil {
		return fail(err)
	}

	printer.Info("Deploy a flow\n")
	host, err := p.Flow.DeployFlow(ctx, name, result.Path, p.Workspace.FlowPath())
	if err != nil {
		return fail(fmt.Errorf("failed to deploy flow for %s: %w", candidate.Key(), err))
	}
	cr.Host = host

	printer.Info("Flow is deployed, creating the playground for %s\n", host)
	playground, err := p.Synth.CreatePlayground(ctx, name, result.Path, host)
	if err != nil {
		return fail(err)
	}
	cr.Playground = playground

	return cr, nil
}

// PlaygroundCommand is the command that starts the playground of an executor version.
func PlaygroundCommand(executorPath string) string {
	return "streamlit run " + filepath.Join(executorPath, artifact.PlaygroundFile)
}

func printSummary(name string, cr CandidateReport) {
	printer.Success("Executor %s is ready\n", name)
	printer.Printf("Executor name: %s\n", name)
	printer.Printf("Executor path: %s\n", cr.Result.Path)
	printer.Printf("Host: %s\n", cr.Host)
	printer.Printf("Playground: %s\n", PlaygroundCommand(cr.Result.Path))
}
