// Package compose deterministically merges a module store into one
// fingerprinted plan. Composition is a pure function of the store contents:
// the same modules always yield byte-identical ops and the same fingerprint.
package compose

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/loomctl/loom/pkg/modstore"
	"github.com/loomctl/loom/pkg/ops"
	"github.com/loomctl/loom/pkg/plan"
	"github.com/loomctl/loom/pkg/telemetry"
)

// Composer builds plans from a module store plus the optional side files at
// the working-directory root.
type Composer struct {
	store  *modstore.Store
	root   string
	logger *telemetry.Logger
}

// NewComposer creates a composer over the given store. root holds the
// optional side files metadata.json, defaults.json, execution.json and
// paths.json.
func NewComposer(root string, store *modstore.Store, logger *telemetry.Logger) *Composer {
	if logger == nil {
		logger = telemetry.NopLogger()
	}
	return &Composer{
		store:  store,
		root:   root,
		logger: logger.NewComponentLogger("composer"),
	}
}

// Result is a composed plan plus composition statistics.
type Result struct {
	Plan *plan.Plan

	// ModuleCount is the number of module files that contributed ops.
	ModuleCount int
}

// Compose walks the module store in manifest order, re-normalizes every
// operation, drops write_file ops whose target an earlier module already
// claimed, and seals the result with a fingerprint. Missing optional inputs
// never fail composition; a malformed manifest does.
func (c *Composer) Compose() (*Result, error) {
	p := &plan.Plan{
		SpecVersion: plan.SpecVersion,
		Execution:   plan.DefaultExecution(),
		Ops:         []ops.Op{},
	}

	c.loadSideObject(modstore.MetadataFile, &p.Metadata)
	c.loadSideObject(modstore.DefaultsFile, &p.Defaults)
	c.loadExecution(p)

	order, err := c.store.Order()
	if err != nil {
		return nil, err
	}

	claimed := make(map[string]bool)
	moduleCount := 0
	for _, name := range order {
		if _, err := os.Stat(c.store.ModulePath(name)); os.IsNotExist(err) {
			c.logger.WithModule(name).Warn("manifest names a missing module, skipping")
			continue
		}
		m, err := c.store.LoadModule(name)
		if err != nil {
			return nil, err
		}
		moduleCount++
		for _, op := range m.Ops {
			op = ops.Normalize(op)
			if op.Type == ops.KindWriteFile {
				if claimed[op.Path] {
					c.logger.WithModule(name).WithField("path", op.Path).
						Debug("dropping duplicate write_file, first writer wins")
					continue
				}
				claimed[op.Path] = true
			}
			p.Ops = append(p.Ops, op)
		}
	}

	c.loadPaths(p)

	if err := p.Refingerprint(); err != nil {
		return nil, err
	}

	c.logger.WithFields(map[string]interface{}{
		"modules": moduleCount, "ops": len(p.Ops),
		"fingerprint": p.Fingerprint.Value,
	}).Info("plan composed")
	return &Result{Plan: p, ModuleCount: moduleCount}, nil
}

// loadSideObject reads an optional JSON object side file. Absence and
// malformed content both leave the target untouched; side files are hints,
// not contracts.
func (c *Composer) loadSideObject(name string, target *map[string]interface{}) {
	data, err := os.ReadFile(filepath.Join(c.root, name))
	if err != nil {
		return
	}
	if err := json.Unmarshal(data, target); err != nil {
		c.logger.WithField("file", name).WithError(err).Warn("ignoring malformed side file")
	}
}

func (c *Composer) loadExecution(p *plan.Plan) {
	data, err := os.ReadFile(filepath.Join(c.root, modstore.ExecutionFile))
	if err != nil {
		return
	}
	exec := plan.DefaultExecution()
	if err := json.Unmarshal(data, &exec); err != nil {
		c.logger.WithField("file", modstore.ExecutionFile).WithError(err).
			Warn("ignoring malformed side file")
		return
	}
	p.Execution = exec
}

func (c *Composer) loadPaths(p *plan.Plan) {
	data, err := os.ReadFile(filepath.Join(c.root, modstore.PathsFile))
	if err != nil {
		return
	}
	var doc modstore.PathsDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		c.logger.WithField("file", modstore.PathsFile).WithError(err).
			Warn("ignoring malformed side file")
		return
	}
	p.PathsAllowlist = doc.Allowlist
	p.PathsDenylist = doc.Denylist
}
