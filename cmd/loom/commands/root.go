// Package commands implements the loom CLI verbs.
package commands

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/loomctl/loom/pkg/telemetry"
)

var (
	// Global flags
	verbose    bool
	jsonOutput bool
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "loom",
		Short: "Loom - deterministic file-mutation pipeline",
		Long: `Loom turns independently authored plan modules into a single
fingerprinted plan and executes it against a working tree, with full
auditability at every step.

Pipeline stages:
  - apply-updates: apply a versioned update document to the module store
  - compose-plan: merge ordered modules into one combined plan
  - upgrade-plan: convert legacy plan shapes to the canonical format
  - plan-run: execute a plan (dry-run, shadow tree, path policy)
  - validate-deliverables: verify promised files against a manifest`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			cfg := telemetry.DefaultLoggingConfig()
			if verbose {
				cfg.Level = "debug"
				zerolog.SetGlobalLevel(zerolog.DebugLevel)
			}
			if jsonOutput {
				cfg.Format = "json"
			}
			if logger, err := telemetry.NewLogger(cfg); err == nil {
				log.Logger = logger.Zerolog()
				cmd.SetContext(logger.WithContext(cmd.Context()))
			}
		},
	}

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "log in JSON format")

	// Add subcommands
	rootCmd.AddCommand(newApplyUpdatesCommand())
	rootCmd.AddCommand(newComposePlanCommand())
	rootCmd.AddCommand(newPlanRunCommand())
	rootCmd.AddCommand(newUpgradePlanCommand())
	rootCmd.AddCommand(newValidateDeliverablesCommand())

	return rootCmd
}
