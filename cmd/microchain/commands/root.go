package commands

import (
	"fmt"
	"os"

	"github.com/dyluth/microchain/internal/config"
	"github.com/dyluth/microchain/internal/logging"
	"github.com/dyluth/microchain/internal/printer"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	version string
	commit  string
	date    string

	configPath string
	verbose    bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "microchain",
	Short: "microchain - generate and deploy microservice executors from a description",
	Long: `microchain turns a natural-language task description and a test scenario
into a containerized microservice executor.

It asks a language model which Python packages could solve the task, writes
the executor, its tests, requirements and Dockerfile, then builds the image
and feeds build failures back to the model until the image builds or the
repair budget runs out.`,
	Version: version,
	// Prevent silent success when unknown flags are passed to root command
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
	FParseErrWhitelist: cobra.FParseErrWhitelist{},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	// We print formatted colored errors directly in the printer package
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
	err := rootCmd.Execute()
	if err != nil && !printer.IsPrinted(err) {
		printer.Error("command failed", err.Error(), nil)
	}
	return err
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", v, c, d)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "f", config.DefaultFile, "Path to microchain.yml")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Human-readable debug logging on stderr")
}

// loadConfig reads --config, falling back to defaults when the file is absent.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return nil, printer.Error(
			"invalid configuration",
			err.Error(),
			[]string{fmt.Sprintf("Check %s, or run 'microchain init' to create a fresh one", configPath)},
		)
	}
	return cfg, nil
}

// newLogger builds the diagnostic logger for cfg. Console logs go to stderr
// so they never interleave with progress output on stdout.
func newLogger(cfg *config.Config) *zap.Logger {
	level := cfg.Logging.Level
	if verbose {
		level = "debug"
	}
	return logging.New(logging.Options{
		Level:      level,
		Verbose:    verbose,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
	}, zapcore.Lock(os.Stderr))
}
