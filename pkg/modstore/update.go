package modstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"

	"github.com/loomctl/loom/pkg/deliverables"
	"github.com/loomctl/loom/pkg/ops"
	"github.com/loomctl/loom/pkg/telemetry"
)

// Update operation kinds.
const (
	UpdateAddModule      = "add_module"
	UpdateUpsertOps      = "upsert_ops"
	UpdateRemoveOps      = "remove_ops"
	UpdateReplaceOps     = "replace_ops"
	UpdateSetMetadata    = "set_metadata"
	UpdateSetDefaults    = "set_defaults"
	UpdateSetExecution   = "set_execution"
	UpdateSetPaths       = "set_paths"
	UpdateUpdateManifest = "update_manifest"
)

// Side files maintained at the working-directory root.
const (
	MetadataFile  = "metadata.json"
	DefaultsFile  = "defaults.json"
	ExecutionFile = "execution.json"
	PathsFile     = "paths.json"
)

// Update is a versioned document of module store mutations plus the
// deliverables the update promises to produce.
type Update struct {
	UpdateID     string                     `json:"update_id" validate:"required"`
	Version      string                     `json:"version" validate:"required"`
	Operations   []UpdateOp                 `json:"operations" validate:"dive"`
	Deliverables []deliverables.Deliverable `json:"deliverables,omitempty" validate:"dive"`
}

// UpdateOp is one module store mutation.
type UpdateOp struct {
	Op string `json:"op" validate:"required,oneof=add_module upsert_ops remove_ops replace_ops set_metadata set_defaults set_execution set_paths update_manifest"`

	// Module is the addressed module filename. Selector-driven ops walk the
	// whole store when it is empty.
	Module string `json:"module,omitempty"`

	// add_module: manifest insertion point for new filenames.
	Position   string `json:"position,omitempty" validate:"omitempty,oneof=end before after"`
	RelativeTo string `json:"relative_to,omitempty"`

	// add_module / upsert_ops / replace_ops payload.
	Metadata map[string]interface{} `json:"metadata,omitempty"`
	Ops      []ops.Op               `json:"ops,omitempty"`

	// upsert_ops placement.
	Strategy string `json:"strategy,omitempty" validate:"omitempty,oneof=append prepend"`

	// remove_ops / replace_ops.
	Selector  *SelectorSpec `json:"selector,omitempty"`
	MaxRemove int           `json:"max_remove,omitempty" validate:"omitempty,min=0"`
	Required  *bool         `json:"required,omitempty"`

	// set_metadata / set_defaults / set_execution patch.
	Patch map[string]interface{} `json:"patch,omitempty"`

	// update_manifest payload.
	Manifest []string `json:"manifest,omitempty"`

	// set_paths payload.
	Paths *PathsDoc `json:"paths,omitempty"`
}

// PathsDoc is the content of paths.json.
type PathsDoc struct {
	Allowlist []string `json:"paths_allowlist,omitempty"`
	Denylist  []string `json:"paths_denylist,omitempty"`
}

// required defaults to true for selector-driven update ops.
func (u UpdateOp) required() bool {
	return u.Required == nil || *u.Required
}

// LoadUpdate reads and decodes an update document.
func LoadUpdate(path string) (*Update, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, ops.NewStructuralError("reading update file", err).WithPath(path)
	}
	var u Update
	if err := json.Unmarshal(data, &u); err != nil {
		return nil, ops.NewStructuralError("update file is not valid JSON", err).WithPath(path)
	}
	return &u, nil
}

// Applier mutates a module store according to update documents. There is no
// rollback across update ops: a failing op aborts immediately and earlier
// ops in the same update stay applied.
type Applier struct {
	store    *Store
	root     string
	logger   *telemetry.Logger
	validate *validator.Validate
}

// NewApplier creates an applier for the given store. root is the
// working-directory root holding side files and the artifacts tree.
func NewApplier(root string, store *Store, logger *telemetry.Logger) *Applier {
	if logger == nil {
		logger = telemetry.NopLogger()
	}
	return &Applier{
		store:    store,
		root:     root,
		logger:   logger.NewComponentLogger("update-applier"),
		validate: validator.New(),
	}
}

// Apply validates the update and applies its operations in order, then
// emits the deliverables manifest.
func (a *Applier) Apply(u *Update) error {
	if err := a.validate.Struct(u); err != nil {
		return ops.NewStructuralError("update failed schema validation", err).
			WithCode(ops.ErrCodeSchemaInvalid)
	}

	logger := a.logger.WithUpdateID(u.UpdateID)
	for i, op := range u.Operations {
		logger.WithOp(i, op.Op).WithModule(op.Module).Debug("applying update op")
		if err := a.applyOne(op); err != nil {
			return fmt.Errorf("update op %d (%s): %w", i, op.Op, err)
		}
	}

	if err := a.EmitDeliverablesManifest(u); err != nil {
		return err
	}

	logger.WithField("operations", len(u.Operations)).Info("update applied")
	return nil
}

func (a *Applier) applyOne(op UpdateOp) error {
	switch op.Op {
	case UpdateAddModule:
		return a.addModule(op)
	case UpdateUpsertOps:
		return a.upsertOps(op)
	case UpdateRemoveOps:
		return a.removeOps(op)
	case UpdateReplaceOps:
		return a.replaceOps(op)
	case UpdateSetMetadata:
		return a.mergeSideFile(MetadataFile, op.Patch)
	case UpdateSetDefaults:
		return a.mergeSideFile(DefaultsFile, op.Patch)
	case UpdateSetExecution:
		return a.mergeSideFile(ExecutionFile, op.Patch)
	case UpdateSetPaths:
		return a.setPaths(op)
	case UpdateUpdateManifest:
		return a.store.SaveManifest(op.Manifest)
	default:
		return ops.NewStructuralError("unknown update op: "+op.Op, nil)
	}
}

// addModule writes or overwrites a module wholesale. When a manifest exists
// and the filename is new, it is inserted at the requested position,
// falling back to the end if the anchor cannot be resolved.
func (a *Applier) addModule(op UpdateOp) error {
	if op.Module == "" {
		return ops.NewStructuralError("add_module requires a module name", nil)
	}
	if err := a.store.SaveModule(op.Module, &Module{Metadata: op.Metadata, Ops: op.Ops}); err != nil {
		return err
	}

	names, present, err := a.store.LoadManifest()
	if err != nil {
		return err
	}
	if !present {
		return nil
	}
	name := canonicalName(op.Module)
	for _, existing := range names {
		if existing == name {
			return nil
		}
	}
	return a.store.SaveManifest(insertName(names, name, op.Position, canonicalName(op.RelativeTo)))
}

func insertName(names []string, name, position, relativeTo string) []string {
	anchor := -1
	if position == "before" || position == "after" {
		for i, existing := range names {
			if existing == relativeTo {
				anchor = i
				break
			}
		}
	}
	if anchor < 0 {
		return append(names, name)
	}
	if position == "after" {
		anchor++
	}
	out := make([]string, 0, len(names)+1)
	out = append(out, names[:anchor]...)
	out = append(out, name)
	return append(out, names[anchor:]...)
}

// upsertOps loads the addressed module, or an empty skeleton when it does
// not exist, and prepends or appends the new ops.
func (a *Applier) upsertOps(op UpdateOp) error {
	if op.Module == "" {
		return ops.NewStructuralError("upsert_ops requires a module name", nil)
	}
	m, err := a.store.LoadModuleOrEmpty(op.Module)
	if err != nil {
		return err
	}
	if op.Strategy == "prepend" {
		m.Ops = append(append([]ops.Op{}, op.Ops...), m.Ops...)
	} else {
		m.Ops = append(m.Ops, op.Ops...)
	}
	return a.store.SaveModule(op.Module, m)
}

// removeOps deletes operations matching the selector, at most MaxRemove of
// them when it is positive. An unmatched required selector aborts the
// whole update.
func (a *Applier) removeOps(op UpdateOp) error {
	return a.applySelector(op, func(matchIndex int) ([]ops.Op, bool) {
		if op.MaxRemove > 0 && matchIndex >= op.MaxRemove {
			return nil, true
		}
		return nil, false
	})
}

// replaceOps substitutes the first selector match with the new op sequence
// and removes any further matches.
func (a *Applier) replaceOps(op UpdateOp) error {
	return a.applySelector(op, func(matchIndex int) ([]ops.Op, bool) {
		if matchIndex == 0 {
			return op.Ops, false
		}
		return nil, false
	})
}

// applySelector walks the addressed module, or every module file in the
// store, rewriting files whose op lists changed. rewrite receives the match
// ordinal and returns the replacement sequence, or keep=true to leave the
// matched op in place.
func (a *Applier) applySelector(op UpdateOp, rewrite func(int) ([]ops.Op, bool)) error {
	if op.Selector == nil {
		return ops.NewStructuralError(op.Op+" requires a selector", nil)
	}
	selector, err := op.Selector.Compile()
	if err != nil {
		return err
	}

	var names []string
	if op.Module != "" {
		names = []string{canonicalName(op.Module)}
	} else {
		if names, err = a.store.ListModules(); err != nil {
			return err
		}
	}

	matches := 0
	for _, name := range names {
		m, err := a.store.LoadModule(name)
		if err != nil {
			return err
		}
		var kept []ops.Op
		changed := false
		for _, candidate := range m.Ops {
			if !selector.Match(candidate) {
				kept = append(kept, candidate)
				continue
			}
			replacement, keep := rewrite(matches)
			matches++
			if keep {
				kept = append(kept, candidate)
				continue
			}
			kept = append(kept, replacement...)
			changed = true
		}
		if changed {
			m.Ops = kept
			if err := a.store.SaveModule(name, m); err != nil {
				return err
			}
		}
	}

	if matches == 0 && op.required() {
		return ops.NewPolicyError("required selector matched nothing", nil).
			WithCode(ops.ErrCodeSelectorUnmatched).
			WithDetail("selector", selector.String())
	}
	a.logger.WithField("selector", selector.String()).
		WithField("matches", matches).Debug("selector applied")
	return nil
}

// mergeSideFile shallow-merges a patch into a side file at the root.
func (a *Applier) mergeSideFile(name string, patch map[string]interface{}) error {
	path := filepath.Join(a.root, name)

	current := make(map[string]interface{})
	if data, err := os.ReadFile(path); err == nil {
		if err := json.Unmarshal(data, &current); err != nil {
			return ops.NewStructuralError("side file is not a JSON object", err).WithPath(path)
		}
	} else if !os.IsNotExist(err) {
		return err
	}

	for k, v := range patch {
		current[k] = v
	}
	data, err := json.MarshalIndent(current, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

// setPaths overwrites paths.json wholesale; the lists are never merged.
func (a *Applier) setPaths(op UpdateOp) error {
	doc := op.Paths
	if doc == nil {
		doc = &PathsDoc{}
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(a.root, PathsFile), append(data, '\n'), 0o644)
}
