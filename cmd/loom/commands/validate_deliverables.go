package commands

import (
	"github.com/spf13/cobra"

	"github.com/loomctl/loom/pkg/deliverables"
	"github.com/loomctl/loom/pkg/telemetry"
)

func newValidateDeliverablesCommand() *cobra.Command {
	var manifestFile string

	cmd := &cobra.Command{
		Use:   "validate-deliverables",
		Short: "Verify promised files against a deliverables manifest",
		Long: `Check every deliverable in a manifest against the working tree:
existence, checksum, and required substrings.

The check is read-only and never mutates anything. The report is written
next to the manifest as <stem>.validation.json; the exit code does not
encode check failures, callers inspect the report.`,
		Example: `  # Validate an update's deliverables
  loom validate-deliverables --manifest artifacts/updates/update_042/deliverables.manifest.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := telemetry.FromContext(cmd.Context())
			manifest, err := deliverables.LoadManifest(manifestFile)
			if err != nil {
				return err
			}

			report := deliverables.NewValidator(".", logger).Validate(manifest)
			path, err := deliverables.WriteReport(manifestFile, report)
			if err != nil {
				return err
			}

			logger.WithFields(map[string]interface{}{
				"report":   path,
				"total":    report.Summary.Total,
				"failures": report.Summary.Failures,
			}).Info("Deliverables validated")
			return nil
		},
	}

	cmd.Flags().StringVarP(&manifestFile, "manifest", "m", "", "deliverables manifest to validate")
	cmd.MarkFlagRequired("manifest")

	return cmd
}
