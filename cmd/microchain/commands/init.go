package commands

import (
	"github.com/dyluth/microchain/internal/printer"
	"github.com/dyluth/microchain/internal/scaffold"
	"github.com/spf13/cobra"
)

var (
	forceInit bool
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a new microchain project",
	Long: `Initialize a new microchain project in the current directory.

Creates:
  • microchain.yml - Generation, pipeline, deploy and ledger settings
  • .env.example   - The secrets microchain reads (OPENAI_API_KEY)

Use --force to overwrite existing files.`,
	RunE: runInit,
}

func init() {
	// Note: Cannot use -f shorthand because it conflicts with global --config flag
	initCmd.Flags().BoolVar(&forceInit, "force", false, "Overwrite existing microchain.yml and .env.example")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	written, err := scaffold.Initialize(".", forceInit)
	if err != nil {
		return printer.Error("initialization failed", err.Error(), nil)
	}

	scaffold.PrintSuccess(written)
	return nil
}
