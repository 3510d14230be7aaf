// Package executor validates and runs a plan's operations in two ordered
// phases, optionally redirecting writes into a shadow tree.
//
// Execution is fail-fast with no cross-operation rollback: the first failing
// operation aborts the run and operations already applied stay applied.
// Callers that need atomicity run shadowed and promote the shadow tree after
// success.
package executor

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/loomctl/loom/pkg/ops"
	"github.com/loomctl/loom/pkg/plan"
	"github.com/loomctl/loom/pkg/policy"
	"github.com/loomctl/loom/pkg/telemetry"
)

// Op result statuses.
const (
	StatusApplied = "applied"
	StatusNoop    = "noop"
	StatusSkipped = "skipped"
	StatusFailed  = "failed"
)

// Options configures a run.
type Options struct {
	// Root is the directory operation paths are relative to. Defaults to ".".
	Root string

	// Phases restricts execution to the given phases. Nil runs the plan's
	// own execution.phases.
	Phases []string

	// DryRun overrides the plan's execution.dry_run when non-nil.
	DryRun *bool

	// Shadow redirects writes into ShadowDir instead of the real tree.
	Shadow    bool
	ShadowDir string

	// Allow and Deny extend the plan's path lists for this run only.
	Allow []string
	Deny  []string

	Logger *telemetry.Logger
}

// OpResult records the outcome of one operation.
type OpResult struct {
	Index   int    `json:"index"`
	Type    string `json:"type"`
	Phase   string `json:"phase"`
	Target  string `json:"target,omitempty"`
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// Summary aggregates a report.
type Summary struct {
	Total   int `json:"total"`
	Applied int `json:"applied"`
	Noop    int `json:"noop"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// Report is the full outcome of one run.
type Report struct {
	RunID       string     `json:"run_id"`
	Fingerprint string     `json:"plan_fingerprint"`
	Phases      []string   `json:"phases"`
	DryRun      bool       `json:"dry_run"`
	Shadow      bool       `json:"shadow"`
	StartedAt   time.Time  `json:"started_at"`
	FinishedAt  time.Time  `json:"finished_at"`
	Results     []OpResult `json:"results"`
	Summary     Summary    `json:"summary"`
}

// Executor runs plans. One executor is good for one run.
type Executor struct {
	opts   Options
	logger *telemetry.Logger

	dryRun bool
	policy *policy.PathPolicy
	vars   *Context
}

// New creates an executor.
func New(opts Options) *Executor {
	if opts.Root == "" {
		opts.Root = "."
	}
	if opts.Logger == nil {
		opts.Logger = telemetry.NopLogger()
	}
	return &Executor{
		opts:   opts,
		logger: opts.Logger.NewComponentLogger("executor"),
		vars:   NewContext(),
	}
}

// Run executes the plan. All pre-run gates pass before any operation does
// I/O: the plan must satisfy the struct schema, the external schema its
// $schema field references when one is set, and the recomputed ops
// fingerprint must equal the declared one.
func (e *Executor) Run(p *plan.Plan) (*Report, error) {
	report := &Report{
		RunID:       uuid.New().String(),
		Fingerprint: p.Fingerprint.Value,
		StartedAt:   time.Now().UTC(),
		Shadow:      e.opts.Shadow,
	}
	logger := e.logger.WithRunID(report.RunID)

	if err := plan.NewValidator().ValidatePlan(p); err != nil {
		return report, err
	}
	if err := e.checkExternalSchema(logger, p); err != nil {
		return report, err
	}
	if err := p.VerifyFingerprint(); err != nil {
		return report, err
	}

	e.dryRun = p.Execution.DryRun
	if e.opts.DryRun != nil {
		e.dryRun = *e.opts.DryRun
	}
	report.DryRun = e.dryRun

	var err error
	e.policy, err = policy.New(
		append(append([]string{}, p.PathsAllowlist...), e.opts.Allow...),
		append(append([]string{}, p.PathsDenylist...), e.opts.Deny...),
	)
	if err != nil {
		return report, err
	}

	if e.opts.Shadow {
		if e.opts.ShadowDir == "" {
			e.opts.ShadowDir = filepath.Join(os.TempDir(), "loom-shadow-"+report.RunID)
		}
		if err := os.MkdirAll(e.opts.ShadowDir, 0o755); err != nil {
			return report, err
		}
		logger.WithField("shadow_dir", e.opts.ShadowDir).Info("shadow mode enabled")
	}

	requested := e.requestedPhases(p)
	report.Phases = requested
	inPhase := make(map[string]bool, len(requested))
	for _, phase := range requested {
		inPhase[phase] = true
	}

	logger.WithFields(map[string]interface{}{
		"phases": requested, "dry_run": e.dryRun, "ops": len(p.Ops),
	}).Info("run started")

	defer func() {
		report.FinishedAt = time.Now().UTC()
		report.Summary.Total = len(report.Results)
	}()

	// Two ordered passes: validate, then apply. Each op runs in the pass
	// matching its declared phase; ops outside the requested set are
	// recorded as skipped, never errored.
	for _, phase := range []string{ops.PhaseValidate, ops.PhaseApply} {
		if !inPhase[phase] {
			continue
		}
		for i, op := range p.Ops {
			if op.Phase != phase {
				continue
			}
			result, opErr := e.runOp(logger, i, op)
			report.Results = append(report.Results, result)
			e.count(&report.Summary, result.Status)
			if opErr != nil {
				logger.WithOp(i, op.Type).WithField("target", result.Target).
					Error(result.Message)
				return report, fmt.Errorf("op %d (%s): %w", i, op.Type, opErr)
			}
		}
	}

	for i, op := range p.Ops {
		if !inPhase[op.Phase] {
			report.Results = append(report.Results, OpResult{
				Index: i, Type: op.Type, Phase: op.Phase,
				Status: StatusSkipped, Message: "phase not requested",
			})
			report.Summary.Skipped++
		}
	}

	logger.WithFields(map[string]interface{}{
		"applied": report.Summary.Applied, "noop": report.Summary.Noop,
		"skipped": report.Summary.Skipped,
	}).Info("run completed")
	return report, nil
}

// checkExternalSchema validates the plan against the document its $schema
// field references. A missing document degrades to a warning; a violated
// one aborts the run.
func (e *Executor) checkExternalSchema(logger *telemetry.Logger, p *plan.Plan) error {
	if p.Schema == "" {
		return nil
	}
	raw, err := ops.CanonicalJSON(p)
	if err != nil {
		return err
	}
	if err := plan.NewValidator().CheckAgainstSchemaFile(p.Schema, raw); err != nil {
		if ops.IsClass(err, ops.ErrorClassEnvironment) {
			logger.WithError(err).Warn("schema document unavailable, continuing")
			return nil
		}
		return err
	}
	return nil
}

// ShadowDir returns the shadow tree location, set once shadow mode starts.
func (e *Executor) ShadowDir() string {
	return e.opts.ShadowDir
}

func (e *Executor) requestedPhases(p *plan.Plan) []string {
	phases := e.opts.Phases
	if phases == nil {
		phases = p.Execution.Phases
	}
	if len(phases) == 0 {
		return []string{ops.PhaseValidate, ops.PhaseApply}
	}
	return phases
}

func (e *Executor) count(s *Summary, status string) {
	switch status {
	case StatusApplied:
		s.Applied++
	case StatusNoop:
		s.Noop++
	case StatusSkipped:
		s.Skipped++
	case StatusFailed:
		s.Failed++
	}
}

// runOp dispatches one operation. Mutating ops clear path policy before any
// I/O happens, so a violation has no side effect.
func (e *Executor) runOp(logger *telemetry.Logger, index int, op ops.Op) (OpResult, error) {
	result := OpResult{Index: index, Type: op.Type, Phase: op.Phase}

	target := e.vars.Resolve(op.Target())
	result.Target = target

	if op.Mutates() {
		if err := e.policy.Check(target); err != nil {
			return e.fail(result, err)
		}
	}

	var err error
	switch op.Type {
	case ops.KindLocate:
		result, err = e.runLocate(result, op)
	case ops.KindAssertContains:
		result, err = e.runAssertContains(result, op, target)
	case ops.KindAssertNotContains:
		result, err = e.runAssertNotContains(result, op, target)
	case ops.KindWriteFile:
		result, err = e.runWriteFile(result, op, target)
	case ops.KindReplaceSection:
		result, err = e.runReplaceSection(result, op, target)
	default:
		err = ops.NewStructuralError("unknown op kind: "+op.Type, nil)
	}
	if err != nil {
		return e.fail(result, err)
	}

	logger.WithOp(index, op.Type).WithField("target", target).
		WithField("status", result.Status).Debug("op finished")
	return result, nil
}

func (e *Executor) fail(result OpResult, err error) (OpResult, error) {
	result.Status = StatusFailed
	result.Message = err.Error()
	return result, err
}

// realPath maps an operation target to its location in the real tree.
func (e *Executor) realPath(target string) string {
	return filepath.Join(e.opts.Root, filepath.FromSlash(target))
}

// writePath maps an operation target to where writes land: the mirrored
// shadow path when shadowing, the real path otherwise.
func (e *Executor) writePath(target string) string {
	if e.opts.Shadow {
		return filepath.Join(e.opts.ShadowDir, filepath.FromSlash(target))
	}
	return e.realPath(target)
}

// writeBytes lands content at the target, creating parent directories. The
// caller has already decided dry-run and shadow questions.
func writeBytes(path string, content []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, content, 0o644)
}
