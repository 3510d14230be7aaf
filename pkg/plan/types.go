// Package plan defines the composed execution plan document, its canonical
// fingerprint, schema validation, and the upgrader that normalizes legacy
// plan shapes into the canonical one.
package plan

import (
	"encoding/json"
	"os"

	"github.com/loomctl/loom/pkg/ops"
)

// SpecVersion is the canonical plan schema version emitted by this release.
const SpecVersion = "1.0"

// FingerprintMethod is the only supported fingerprint method: sha256 over
// the canonical JSON encoding of the ops array.
const FingerprintMethod = "sha256_ops"

// DefaultPlanFile is the conventional plan filename.
const DefaultPlanFile = "combined_repo_plan.json"

// Plan is the single composed, fingerprinted, executable operation sequence.
// Plans are always derived from a module store; the only sanctioned hand-off
// besides composition is the upgrader.
type Plan struct {
	// Schema optionally references an external structural-validation document.
	Schema string `json:"$schema,omitempty"`

	SpecVersion string `json:"spec_version" validate:"required"`

	// Metadata and Defaults are free-form side data merged in from the
	// module store's side files. The pipeline carries them but does not
	// interpret them.
	Metadata map[string]interface{} `json:"metadata,omitempty"`
	Defaults map[string]interface{} `json:"defaults,omitempty"`

	Execution Execution `json:"execution"`

	Ops []ops.Op `json:"ops" validate:"dive"`

	// PathsAllowlist and PathsDenylist constrain every mutating operation's
	// target. An empty allowlist permits everything not denied.
	PathsAllowlist []string `json:"paths_allowlist,omitempty"`
	PathsDenylist  []string `json:"paths_denylist,omitempty"`

	Fingerprint Fingerprint `json:"plan_fingerprint"`
}

// Execution controls how a plan runs.
type Execution struct {
	DryRun bool     `json:"dry_run"`
	Phases []string `json:"phases" validate:"omitempty,dive,oneof=validate apply"`
}

// Fingerprint is the tamper-evidence seal over a plan's ops array.
type Fingerprint struct {
	Method string `json:"method" validate:"required,eq=sha256_ops"`
	Value  string `json:"value" validate:"required,hexadecimal,len=64"`
}

// DefaultExecution returns the execution settings used when no side file
// overrides them: dry-run on, both phases.
func DefaultExecution() Execution {
	return Execution{
		DryRun: true,
		Phases: []string{ops.PhaseValidate, ops.PhaseApply},
	}
}

// Refingerprint recomputes the fingerprint from the current ops array.
func (p *Plan) Refingerprint() error {
	value, err := ops.FingerprintOps(p.Ops)
	if err != nil {
		return err
	}
	p.Fingerprint = Fingerprint{Method: FingerprintMethod, Value: value}
	return nil
}

// VerifyFingerprint recomputes the ops fingerprint and compares it with the
// declared one. A mismatch is an integrity error and must abort the caller.
func (p *Plan) VerifyFingerprint() error {
	if p.Fingerprint.Value == "" {
		return ops.NewIntegrityError("plan carries no fingerprint", nil).
			WithCode(ops.ErrCodeFingerprintMismatch)
	}
	if p.Fingerprint.Method != FingerprintMethod {
		return ops.NewIntegrityError("unsupported fingerprint method: "+p.Fingerprint.Method, nil).
			WithCode(ops.ErrCodeFingerprintMismatch)
	}
	recomputed, err := ops.FingerprintOps(p.Ops)
	if err != nil {
		return err
	}
	if recomputed != p.Fingerprint.Value {
		return ops.NewIntegrityError("plan fingerprint mismatch", nil).
			WithCode(ops.ErrCodeFingerprintMismatch).
			WithDetail("declared", p.Fingerprint.Value).
			WithDetail("recomputed", recomputed)
	}
	return nil
}

// Load reads and decodes a plan file. Malformed JSON is a structural error.
func Load(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, ops.NewStructuralError("reading plan file", err).WithPath(path)
	}
	var p Plan
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, ops.NewStructuralError("plan file is not valid JSON", err).WithPath(path)
	}
	return &p, nil
}

// Save writes the plan as indented JSON.
func (p *Plan) Save(path string) error {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}
