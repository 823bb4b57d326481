package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dyluth/microchain/internal/history"
	"github.com/dyluth/microchain/internal/printer"
	"github.com/dyluth/microchain/pkg/ledger"
	"github.com/spf13/cobra"
)

var (
	historyRun       string
	historyCandidate string
	historyOutcome   string
	historyOutput    string
	historySince     string
	historyFollow    bool
	historyRedisURL  string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recorded build and repair attempts",
	Long: `Show the attempts recorded in the Redis ledger.

Every built version of every candidate is recorded with its outcome:
  deployed  - the image built
  repaired  - the build failed and a repair was requested
  exhausted - the build failed and no repairs were left

The ledger is enabled by ledger.redis_url in microchain.yml.

Output Formats:
  default - Human-readable table with the last line of each build error
  jsonl   - Line-delimited JSON, one attempt per line

Examples:
  # Attempts of the most recent run
  microchain history

  # Failed attempts of one candidate in the last hour, as JSON
  microchain history --candidate requests_beautifulsoup4 --outcome repaired --since 1h -o jsonl

  # Stream attempts of a running generation
  microchain history --run MicroChainExecutor4821 --follow`,
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().StringVarP(&historyRun, "run", "r", "", "Executor name of the run (defaults to the most recent run)")
	historyCmd.Flags().StringVar(&historyCandidate, "candidate", "", "Only this candidate (e.g. requests_beautifulsoup4)")
	historyCmd.Flags().StringVar(&historyOutcome, "outcome", "", "Only this outcome: deployed, repaired or exhausted")
	historyCmd.Flags().StringVarP(&historyOutput, "output", "o", "default", "Output format: default or jsonl")
	historyCmd.Flags().StringVar(&historySince, "since", "", "Only attempts after this time (duration or RFC3339)")
	historyCmd.Flags().BoolVar(&historyFollow, "follow", false, "Stream new attempts as they are recorded")
	historyCmd.Flags().StringVar(&historyRedisURL, "redis-url", "", "Ledger Redis URL (overrides ledger.redis_url)")

	rootCmd.AddCommand(historyCmd)
}

// historyFilters validates the filter flags.
func historyFilters(now time.Time) (*history.FilterCriteria, history.OutputFormat, error) {
	format, err := history.ParseOutputFormat(historyOutput)
	if err != nil {
		return nil, "", err
	}

	sinceMs, err := history.ParseSince(historySince, now)
	if err != nil {
		return nil, "", err
	}

	outcome := ledger.Outcome(historyOutcome)
	if outcome != "" {
		if err := outcome.Validate(); err != nil {
			return nil, "", err
		}
	}

	return &history.FilterCriteria{
		Candidate:        historyCandidate,
		Outcome:          outcome,
		SinceTimestampMs: sinceMs,
	}, format, nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	filters, format, err := historyFilters(time.Now())
	if err != nil {
		return printer.Error("invalid flags", err.Error(), nil)
	}

	redisURL := historyRedisURL
	if redisURL == "" {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		redisURL = cfg.Ledger.RedisURL
	}
	if redisURL == "" {
		return printer.Error(
			"ledger not configured",
			"No Redis URL is set, so no attempts were recorded.",
			[]string{
				"Set ledger.redis_url in microchain.yml",
				"Pass --redis-url redis://localhost:6379",
			},
		)
	}

	run := historyRun
	if run == "" {
		run, err = latestRun(ctx, redisURL)
		if err != nil {
			return err
		}
	}

	client, err := ledger.Dial(ctx, redisURL, run)
	if err != nil {
		return printer.ErrorWithContext(
			"Redis connection failed",
			err.Error(),
			map[string]string{"URL": redisURL},
			[]string{"Check that Redis is running and reachable"},
		)
	}
	defer client.Close()

	out := cmd.OutOrStdout()

	if historyFollow {
		sub, err := client.SubscribeAttemptEvents(ctx)
		if err != nil {
			return fmt.Errorf("failed to subscribe to attempts: %w", err)
		}
		defer sub.Close()

		if format == history.OutputFormatDefault {
			fmt.Fprintf(out, "Following attempts for run '%s' (Ctrl+C to stop)\n", run)
		}
		return history.Follow(ctx, sub.Events(), filters, format, out)
	}

	return history.List(ctx, client, run, filters, format, out)
}

// latestRun returns the most recently started run in the ledger.
func latestRun(ctx context.Context, redisURL string) (string, error) {
	runs, err := ledger.ListRuns(ctx, redisURL)
	if err != nil {
		return "", printer.ErrorWithContext(
			"Redis connection failed",
			err.Error(),
			map[string]string{"URL": redisURL},
			[]string{"Check that Redis is running and reachable"},
		)
	}
	if len(runs) == 0 {
		return "", printer.Error(
			"no runs recorded",
			"The ledger does not contain any runs yet.",
			[]string{"Run 'microchain generate' with ledger.redis_url set"},
		)
	}
	return runs[0], nil
}
