package commands

import (
	"github.com/spf13/cobra"

	"github.com/loomctl/loom/pkg/compose"
	"github.com/loomctl/loom/pkg/modstore"
	"github.com/loomctl/loom/pkg/plan"
	"github.com/loomctl/loom/pkg/telemetry"
)

func newComposePlanCommand() *cobra.Command {
	var (
		modulesDir  string
		manifest    string
		outFile     string
		emitSummary bool
	)

	cmd := &cobra.Command{
		Use:   "compose-plan",
		Short: "Compose module files into a combined plan",
		Long: `Merge the module store's files, in manifest or fallback order, into one
combined plan with a recomputed fingerprint.

Composition is deterministic: an unchanged store always yields a
byte-identical ops list and fingerprint. Duplicate write_file targets keep
the first writer; modules named by the manifest but missing on disk are
skipped with a warning.`,
		Example: `  # Compose the default store into combined_repo_plan.json
  loom compose-plan

  # Compose an explicit store and emit the summary artifact
  loom compose-plan --modules plan_modules --out plan.json --emit-plan-summary`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := telemetry.FromContext(cmd.Context())
			store := modstore.NewStore(modulesDir)
			if manifest != "" {
				store.SetManifestPath(manifest)
			}

			composer := compose.NewComposer(".", store, logger)
			result, err := composer.Compose()
			if err != nil {
				return err
			}

			if err := result.Plan.Save(outFile); err != nil {
				return err
			}

			if emitSummary {
				path, err := compose.WriteSummary(".", result.Plan, result.ModuleCount)
				if err != nil {
					return err
				}
				logger.WithField("summary", path).Info("Plan summary written")
			}

			logger.WithFields(map[string]interface{}{
				"plan":        outFile,
				"modules":     result.ModuleCount,
				"ops":         len(result.Plan.Ops),
				"fingerprint": result.Plan.Fingerprint.Value,
			}).Info("Plan composed")
			return nil
		},
	}

	cmd.Flags().StringVarP(&modulesDir, "modules", "m", modstore.DefaultDir, "module store directory")
	cmd.Flags().StringVar(&manifest, "manifest", "", "manifest file overriding the store's manifest.json")
	cmd.Flags().StringVarP(&outFile, "out", "o", plan.DefaultPlanFile, "output plan file")
	cmd.Flags().BoolVar(&emitSummary, "emit-plan-summary", false, "write artifacts/plan/plan.summary.json")

	return cmd
}
