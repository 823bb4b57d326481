package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/dyluth/microchain/internal/config"
	"github.com/dyluth/microchain/internal/deploy"
	dockerpkg "github.com/dyluth/microchain/internal/docker"
	"github.com/dyluth/microchain/internal/llm"
	"github.com/dyluth/microchain/internal/naming"
	"github.com/dyluth/microchain/internal/pipeline"
	"github.com/dyluth/microchain/internal/printer"
	"github.com/dyluth/microchain/internal/repair"
	"github.com/dyluth/microchain/internal/selector"
	"github.com/dyluth/microchain/internal/synth"
	"github.com/dyluth/microchain/internal/workspace"
	"github.com/dyluth/microchain/pkg/ledger"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	genDescription    string
	genScenario       string
	genThreads        int
	genMaxIterations  int
	genChainOfThought bool
	genOnExhaustion   string
	genRandomNames    bool
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate, build and serve a microservice executor",
	Long: `Generate a microservice executor from a task description and a test scenario.

For each package combination suggested by the model, microchain writes the
executor, its test, requirements.txt and a Dockerfile under
executor/<packages>/v1, then builds the image. Build failures are fed back to
the model and each repair is written as the next version (v2, v3, ...).

The first version that builds is served through a gRPC flow container and a
playground app is generated next to it.

Requires OPENAI_API_KEY (read from the environment or a .env file) and a
running Docker daemon.

Examples:
  microchain generate \
    --description "Given a PDF, return its text" \
    --scenario "Given the PDF of a test invoice, the text contains 'Total'"

  # Stop at the first candidate that exhausts its repairs
  microchain generate -d "..." -s "..." --on-exhaustion abort`,
	RunE: runGenerate,
}

func init() {
	generateCmd.Flags().StringVarP(&genDescription, "description", "d", "", "What the microservice should do (required)")
	generateCmd.Flags().StringVarP(&genScenario, "scenario", "s", "", "Test scenario the executor test must cover (required)")
	generateCmd.Flags().IntVar(&genThreads, "threads", 0, "Package candidates to try (overrides pipeline.threads)")
	generateCmd.Flags().IntVar(&genMaxIterations, "max-iterations", 0, "Versions per candidate (overrides pipeline.max_iterations)")
	generateCmd.Flags().BoolVar(&genChainOfThought, "chain-of-thought", false, "Ask the model to reason before writing the executor")
	generateCmd.Flags().StringVar(&genOnExhaustion, "on-exhaustion", "", "What to do when a candidate runs out of repairs: continue or abort")
	generateCmd.Flags().BoolVar(&genRandomNames, "random-names", false, "Name executors MicroChainExecutor<n> instead of by UUID")

	_ = generateCmd.MarkFlagRequired("description")
	_ = generateCmd.MarkFlagRequired("scenario")

	rootCmd.AddCommand(generateCmd)
}

// applyGenerateFlags overrides cfg with flags the user set explicitly.
func applyGenerateFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("threads") {
		cfg.Pipeline.Threads = &genThreads
	}
	if flags.Changed("max-iterations") {
		cfg.Pipeline.MaxIterations = &genMaxIterations
	}
	if flags.Changed("chain-of-thought") {
		cfg.Generation.ChainOfThought = genChainOfThought
	}
	if flags.Changed("on-exhaustion") {
		cfg.Pipeline.OnExhaustion = genOnExhaustion
	}
	return cfg.Validate()
}

func runGenerate(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	task := synth.Task{
		Description:  strings.TrimSpace(genDescription),
		TestScenario: strings.TrimSpace(genScenario),
	}
	if task.Description == "" || task.TestScenario == "" {
		return printer.Error(
			"missing task",
			"Both --description and --scenario must be non-empty.",
			[]string{"microchain generate --description \"...\" --scenario \"...\""},
		)
	}

	// A missing .env is fine; the key may already be in the environment
	_ = godotenv.Load()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := applyGenerateFlags(cmd, cfg); err != nil {
		return printer.Error("invalid flags", err.Error(), nil)
	}

	logger := newLogger(cfg)
	defer func() { _ = logger.Sync() }()

	backend, err := llm.NewOpenAIBackend(llm.OpenAIConfig{
		Model:       cfg.Generation.Model,
		BaseURL:     cfg.Generation.BaseURL,
		Temperature: temperature(cfg),
	}, logger)
	if err != nil {
		return printer.Error(
			"generation backend unavailable",
			err.Error(),
			[]string{"Set OPENAI_API_KEY in your environment or in a .env file"},
		)
	}

	cli, err := dockerpkg.NewClient(ctx)
	if err != nil {
		return printer.Error("Docker unavailable", err.Error(), nil)
	}
	defer cli.Close()

	root, err := filepath.Abs(cfg.Pipeline.Root)
	if err != nil {
		return fmt.Errorf("failed to resolve pipeline root: %w", err)
	}
	runID := dockerpkg.GenerateRunID()
	p := newPipeline(cfg, backend, cli, root, runID, logger)

	if url := cfg.Ledger.RedisURL; url != "" {
		var clients []*ledger.Client
		defer func() {
			for _, c := range clients {
				_ = c.Close()
			}
		}()
		p.Recorders = func(ctx context.Context, executorName string) (repair.Recorder, error) {
			c, err := ledger.Dial(ctx, url, executorName)
			if err != nil {
				return nil, err
			}
			clients = append(clients, c)
			logger.Info("Recording attempts", zap.String("run", executorName))
			return c, nil
		}
	}

	logger.Info("Starting generation",
		zap.String("run_id", runID),
		zap.String("root", root),
		zap.Int("threads", p.Threads),
		zap.Int("max_iterations", p.Repair.MaxIterations))

	report, err := p.Run(ctx, task)
	if err != nil {
		return generateError(err, cfg)
	}

	printer.Success("Generated %d executor(s) for %s\n", len(report.Successes()), report.ExecutorName)
	return nil
}

// dockerAPI is what the image builder and the flow deployer need from Docker.
type dockerAPI interface {
	deploy.ImageBuilder
	deploy.ContainerAPI
}

// newPipeline wires the stages for one generate run. Images and flow
// containers of the run carry runID as their run label.
func newPipeline(cfg *config.Config, backend llm.Backend, cli dockerAPI, root, runID string, logger *zap.Logger) *pipeline.Pipeline {
	ws := workspace.New(root)

	return &pipeline.Pipeline{
		Backend:   backend,
		Workspace: ws,
		Names:     nameGenerator(),
		Synth: &synth.Synthesizer{
			Backend:          backend,
			Workspace:        ws,
			Logger:           logger,
			ChainOfThought:   cfg.Generation.ChainOfThought,
			FrameworkVersion: cfg.Generation.FrameworkVersion,
		},
		Repair: &repair.Loop{
			Backend:   backend,
			Workspace: ws,
			Deployer: &deploy.DockerDeployer{
				Client:    cli,
				RunID:     runID,
				Workspace: root,
				Platform:  cfg.Deploy.Platform,
				Logger:    logger,
			},
			Logger:        logger,
			MaxIterations: *cfg.Pipeline.MaxIterations,
		},
		Flow: &deploy.DockerFlowDeployer{
			Client:    cli,
			RunID:     runID,
			Workspace: root,
			Logger:    logger,
		},
		Logger:       logger,
		Threads:      *cfg.Pipeline.Threads,
		OnExhaustion: cfg.Pipeline.OnExhaustion,
	}
}

func temperature(cfg *config.Config) float32 {
	if cfg.Generation.Temperature == nil {
		return 0
	}
	return *cfg.Generation.Temperature
}

func nameGenerator() naming.Generator {
	if genRandomNames {
		return naming.NewRandomGenerator(time.Now().UnixNano())
	}
	return naming.UUIDGenerator{}
}

// generateError turns pipeline failures into printed errors with suggestions.
func generateError(err error, cfg *config.Config) error {
	var exhausted *repair.ExhaustedError
	switch {
	case errors.Is(err, selector.ErrNoPackages):
		return printer.Error(
			"no package candidates",
			"The model did not suggest any usable package combination.",
			[]string{"Rephrase --description to name the input and output more concretely"},
		)
	case errors.As(err, &exhausted):
		ctxInfo := map[string]string{
			"Candidate":    exhausted.Candidate,
			"Last version": fmt.Sprintf("v%d", exhausted.Version),
		}
		suggestions := []string{
			fmt.Sprintf("Allow more repairs:\n  microchain generate ... --max-iterations %d", *cfg.Pipeline.MaxIterations*2),
		}
		if exhausted.LastError != "" {
			printer.Println(exhausted.LastError)
		}
		if errors.Is(err, pipeline.ErrAllCandidatesFailed) {
			return printer.ErrorWithContext("all candidates failed", err.Error(), ctxInfo, suggestions)
		}
		return printer.ErrorWithContext("repair budget exhausted", err.Error(), ctxInfo, suggestions)
	case errors.Is(err, context.Canceled):
		return printer.Error("interrupted", "Generation was cancelled.", nil)
	default:
		return fmt.Errorf("generation failed: %w", err)
	}
}
