package compose

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/loomctl/loom/pkg/plan"
)

// Summary is the compact plan digest written to
// artifacts/plan/plan.summary.json when requested.
type Summary struct {
	GeneratedAt time.Time      `json:"generated_at"`
	ModuleCount int            `json:"module_count"`
	OpCount     int            `json:"op_count"`
	OpsByKind   map[string]int `json:"ops_by_kind"`
	Fingerprint string         `json:"plan_fingerprint"`
}

// WriteSummary emits the plan summary artifact under root.
func WriteSummary(root string, p *plan.Plan, moduleCount int) (string, error) {
	summary := Summary{
		GeneratedAt: time.Now().UTC(),
		ModuleCount: moduleCount,
		OpCount:     len(p.Ops),
		OpsByKind:   make(map[string]int),
		Fingerprint: p.Fingerprint.Value,
	}
	for _, op := range p.Ops {
		summary.OpsByKind[op.Type]++
	}

	dir := filepath.Join(root, "artifacts", "plan")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, "plan.summary.json")
	return path, os.WriteFile(path, append(data, '\n'), 0o644)
}
