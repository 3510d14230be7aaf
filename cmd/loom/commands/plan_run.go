package commands

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/loomctl/loom/pkg/executor"
	"github.com/loomctl/loom/pkg/ops"
	"github.com/loomctl/loom/pkg/plan"
	"github.com/loomctl/loom/pkg/stores"
	"github.com/loomctl/loom/pkg/telemetry"
)

func newPlanRunCommand() *cobra.Command {
	var (
		planFile  string
		phase     string
		dryRun    bool
		shadow    bool
		shadowDir string
		allow     []string
		deny      []string
		historyDB string
	)

	cmd := &cobra.Command{
		Use:   "plan-run",
		Short: "Execute a plan",
		Long: `Execute a composed plan against the working tree.

This command:
  - Loads the plan file and validates its structure
  - Verifies the ops fingerprint before any filesystem access
  - Runs the validate phase, then the apply phase, fail-fast
  - Checks every mutating op against the path allow/deny lists
  - Optionally redirects writes into a shadow tree
  - Optionally appends the run outcome to a history database`,
		Example: `  # Dry-run the default plan
  loom plan-run --plan combined_repo_plan.json --dry-run

  # Real run of the apply phase only, with history recording
  loom plan-run --plan plan.json --phase apply --history runs.db

  # Shadowed run: real tree untouched, writes land in the shadow dir
  loom plan-run --plan plan.json --shadow --shadow-dir /tmp/shadow`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := telemetry.FromContext(cmd.Context())
			p, err := plan.Load(planFile)
			if err != nil {
				return err
			}

			var phases []string
			switch phase {
			case "all", "":
				phases = nil // plan's own execution.phases
			case ops.PhaseValidate, ops.PhaseApply:
				phases = []string{phase}
			default:
				return fmt.Errorf("invalid phase %q (want validate, apply, or all)", phase)
			}

			opts := executor.Options{
				Phases:    phases,
				Shadow:    shadow,
				ShadowDir: shadowDir,
				Allow:     allow,
				Deny:      deny,
				Logger:    logger,
			}
			if cmd.Flags().Changed("dry-run") {
				opts.DryRun = &dryRun
			}

			exec := executor.New(opts)
			report, runErr := exec.Run(p)

			if historyDB != "" {
				recordHistory(cmd, logger.WithRunID(report.RunID), historyDB, planFile, report, runErr)
			}

			if runErr != nil {
				return runErr
			}
			if shadow {
				logger.WithField("shadow_dir", exec.ShadowDir()).Info("Shadow tree ready for promotion")
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&planFile, "plan", "p", plan.DefaultPlanFile, "plan file to execute")
	cmd.Flags().StringVar(&phase, "phase", "all", "phase to run (validate, apply, all)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "suppress writes, overriding the plan's execution.dry_run")
	cmd.Flags().BoolVar(&shadow, "shadow", false, "redirect writes into a shadow tree")
	cmd.Flags().StringVar(&shadowDir, "shadow-dir", "", "shadow tree location (default under the system temp dir)")
	cmd.Flags().StringSliceVar(&allow, "allow", nil, "extra path allowlist entries for this run")
	cmd.Flags().StringSliceVar(&deny, "deny", nil, "extra path denylist entries for this run")
	cmd.Flags().StringVar(&historyDB, "history", "", "sqlite database to append the run record to")

	return cmd
}

// recordHistory appends the run outcome to the history store. History
// problems never fail the run; they degrade to warnings.
func recordHistory(cmd *cobra.Command, logger *telemetry.Logger, dbPath, planFile string, report *executor.Report, runErr error) {
	store, err := stores.NewSQLiteStore(stores.Config{Path: dbPath})
	if err != nil {
		logger.Warnf("run history unavailable, skipping: %v", err)
		return
	}
	ctx := cmd.Context()
	if err := store.Init(ctx); err != nil {
		logger.Warnf("run history unavailable, skipping: %v", err)
		return
	}
	defer store.Close()
	if err := store.Migrate(ctx); err != nil {
		logger.Warnf("run history migration failed, skipping: %v", err)
		return
	}

	results, err := json.Marshal(report.Results)
	if err != nil {
		results = []byte("[]")
	}
	record := &stores.RunRecord{
		ID:              report.RunID,
		PlanPath:        planFile,
		PlanFingerprint: report.Fingerprint,
		Phases:          strings.Join(report.Phases, ","),
		DryRun:          report.DryRun,
		Shadow:          report.Shadow,
		Status:          stores.RunStatusCompleted,
		OpsTotal:        report.Summary.Total,
		OpsApplied:      report.Summary.Applied,
		OpsNoop:         report.Summary.Noop,
		OpsSkipped:      report.Summary.Skipped,
		OpsFailed:       report.Summary.Failed,
		Results:         string(results),
		StartedAt:       report.StartedAt,
		FinishedAt:      report.FinishedAt,
	}
	if runErr != nil {
		record.Status = stores.RunStatusFailed
		msg := runErr.Error()
		record.Error = &msg
	}

	if err := store.RecordRun(ctx, record); err != nil {
		logger.WithError(err).Warn("failed to record run history")
		return
	}
	logger.WithField("history", dbPath).Debug("run recorded")
}
