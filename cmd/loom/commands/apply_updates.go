package commands

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/loomctl/loom/pkg/modstore"
	"github.com/loomctl/loom/pkg/ops"
	"github.com/loomctl/loom/pkg/plan"
	"github.com/loomctl/loom/pkg/telemetry"
)

func newApplyUpdatesCommand() *cobra.Command {
	var (
		updateFile string
		schemaFile string
		modulesDir string
	)

	cmd := &cobra.Command{
		Use:   "apply-updates",
		Short: "Apply an update document to the module store",
		Long: `Apply a versioned update document to the module store.

This command:
  - Loads and validates the update file
  - Optionally checks it against an external schema document
  - Applies each operation in order (add_module, upsert_ops, remove_ops,
    replace_ops, merge side files, set paths), fail-fast
  - Emits the update's deliverables manifest under artifacts/updates/`,
		Example: `  # Apply an update to the default store
  loom apply-updates --update update_042.json

  # Apply against an explicit store with schema checking
  loom apply-updates --update update_042.json --modules plan_modules --schema update.schema.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := telemetry.FromContext(cmd.Context()).WithField("update", updateFile)

			if schemaFile != "" {
				raw, err := os.ReadFile(updateFile)
				if err != nil {
					return ops.NewStructuralError("reading update file", err).WithPath(updateFile)
				}
				if err := plan.NewValidator().CheckAgainstSchemaFile(schemaFile, raw); err != nil {
					if ops.IsClass(err, ops.ErrorClassEnvironment) {
						logger.WithError(err).Warn("schema document unavailable, continuing")
					} else {
						return err
					}
				}
			}

			update, err := modstore.LoadUpdate(updateFile)
			if err != nil {
				return err
			}

			store := modstore.NewStore(modulesDir)
			applier := modstore.NewApplier(".", store, logger)
			if err := applier.Apply(update); err != nil {
				return err
			}

			logger.WithUpdateID(update.UpdateID).WithFields(map[string]interface{}{
				"version":    update.Version,
				"operations": len(update.Operations),
			}).Info("Update applied")
			return nil
		},
	}

	cmd.Flags().StringVarP(&updateFile, "update", "u", "", "update document to apply")
	cmd.Flags().StringVar(&schemaFile, "schema", "", "external schema document for the update file")
	cmd.Flags().StringVarP(&modulesDir, "modules", "m", modstore.DefaultDir, "module store directory")
	cmd.MarkFlagRequired("update")

	return cmd
}
