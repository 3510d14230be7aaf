package commands

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/loomctl/loom/pkg/ops"
	"github.com/loomctl/loom/pkg/plan"
	"github.com/loomctl/loom/pkg/telemetry"
)

func newUpgradePlanCommand() *cobra.Command {
	var (
		inFile     string
		outFile    string
		schemaFile string
	)

	cmd := &cobra.Command{
		Use:   "upgrade-plan",
		Short: "Convert a legacy plan to the canonical format",
		Long: `Convert a plan in any historical shape (ops, operations, or
file_operations with structured content) into the canonical format.

Operations are flattened into one ops list, normalized, de-duplicated by
write_file path (first wins), and the fingerprint is recomputed.`,
		Example: `  # Upgrade a legacy plan in place
  loom upgrade-plan --in old_plan.json --out combined_repo_plan.json

  # Upgrade with schema checking of the result
  loom upgrade-plan --in old_plan.json --out plan.json --schema plan.schema.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := telemetry.FromContext(cmd.Context())
			raw, err := os.ReadFile(inFile)
			if err != nil {
				return ops.NewStructuralError("reading plan file", err).WithPath(inFile)
			}

			p, err := plan.Upgrade(raw)
			if err != nil {
				return err
			}

			if schemaFile != "" {
				canonical, err := ops.CanonicalJSON(p)
				if err != nil {
					return err
				}
				if err := plan.NewValidator().CheckAgainstSchemaFile(schemaFile, canonical); err != nil {
					if ops.IsClass(err, ops.ErrorClassEnvironment) {
						logger.WithError(err).Warn("schema document unavailable, continuing")
					} else {
						return err
					}
				}
			}

			if err := p.Save(outFile); err != nil {
				return err
			}

			logger.WithField("fingerprint", p.Fingerprint.Value).
				Infof("Plan upgraded: %s -> %s (%d ops)", inFile, outFile, len(p.Ops))
			return nil
		},
	}

	cmd.Flags().StringVarP(&inFile, "in", "i", "", "legacy plan file to upgrade")
	cmd.Flags().StringVarP(&outFile, "out", "o", "", "canonical plan output file")
	cmd.Flags().StringVar(&schemaFile, "schema", "", "external schema document for the upgraded plan")
	cmd.MarkFlagRequired("in")
	cmd.MarkFlagRequired("out")

	return cmd
}
