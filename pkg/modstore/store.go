// Package modstore manages the directory of module files that plans are
// composed from, and applies versioned update documents to it.
package modstore

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/loomctl/loom/pkg/ops"
)

// DefaultDir is the conventional module store location.
const DefaultDir = ".ai/plan_modules"

// ManifestFile is the optional ordering manifest inside the store directory.
const ManifestFile = "manifest.json"

// fallbackPrefix is the fixed module ordering used when no manifest exists:
// these files first, in this order, then every other module lexicographically.
var fallbackPrefix = []string{
	"00_preamble.json",
	"01_paths.json",
	"02_base.json",
	"03_modules.json",
	"04_patches.json",
	"05_checks.json",
}

// Module is one named, independently authored file of operations.
type Module struct {
	Metadata map[string]interface{} `json:"metadata,omitempty"`
	Ops      []ops.Op               `json:"ops"`
}

// Store is a directory of module files plus an optional manifest.
type Store struct {
	dir string

	// manifest overrides the manifest location when non-empty.
	manifest string
}

// NewStore opens a store rooted at dir. The directory does not need to
// exist yet; the first save creates it.
func NewStore(dir string) *Store {
	if dir == "" {
		dir = DefaultDir
	}
	return &Store{dir: dir}
}

// SetManifestPath points the store at a manifest file outside the store
// directory.
func (s *Store) SetManifestPath(path string) {
	s.manifest = path
}

// Dir returns the store directory.
func (s *Store) Dir() string {
	return s.dir
}

// ModulePath returns the path of a module file by name. Names may be given
// with or without the .json extension.
func (s *Store) ModulePath(name string) string {
	return filepath.Join(s.dir, canonicalName(name))
}

func canonicalName(name string) string {
	if !strings.HasSuffix(name, ".json") {
		name += ".json"
	}
	return name
}

// LoadModule reads and decodes one module file.
func (s *Store) LoadModule(name string) (*Module, error) {
	path := s.ModulePath(name)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, ops.NewStructuralError("reading module", err).WithPath(path)
	}
	var m Module
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, ops.NewStructuralError("module file is not valid JSON", err).WithPath(path)
	}
	return &m, nil
}

// LoadModuleOrEmpty reads a module, returning an empty skeleton when the
// file does not exist yet.
func (s *Store) LoadModuleOrEmpty(name string) (*Module, error) {
	if _, err := os.Stat(s.ModulePath(name)); os.IsNotExist(err) {
		return &Module{Ops: []ops.Op{}}, nil
	}
	return s.LoadModule(name)
}

// SaveModule rewrites one module file wholesale. Operations are normalized
// on the way out so stored modules are always canonical.
func (s *Store) SaveModule(name string, m *Module) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return err
	}
	m.Ops = ops.NormalizeAll(m.Ops)
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.ModulePath(name), append(data, '\n'), 0o644)
}

// ListModules returns every module filename in the store, lexicographically,
// excluding the manifest.
func (s *Store) ListModules() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if name == ManifestFile || !strings.HasSuffix(name, ".json") {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// LoadManifest reads the ordering manifest. The second return reports
// whether a manifest file is present; a present manifest that is not a JSON
// array of strings is a structural error.
func (s *Store) LoadManifest() ([]string, bool, error) {
	path := s.manifestPath()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return nil, true, ops.NewStructuralError("manifest is not a list of module names", err).
			WithCode(ops.ErrCodeManifestInvalid).WithPath(path)
	}
	// JSON null unmarshals into a nil slice without an error; a present
	// manifest must be an actual array.
	if names == nil {
		return nil, true, ops.NewStructuralError("manifest is not a list of module names", nil).
			WithCode(ops.ErrCodeManifestInvalid).WithPath(path)
	}
	return names, true, nil
}

// SaveManifest rewrites the manifest wholesale.
func (s *Store) SaveManifest(names []string) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(names, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.manifestPath(), append(data, '\n'), 0o644)
}

func (s *Store) manifestPath() string {
	if s.manifest != "" {
		return s.manifest
	}
	return filepath.Join(s.dir, ManifestFile)
}

// Order resolves the module composition order: the manifest when present,
// otherwise the fixed prefix followed by the remaining modules in
// lexicographic order. Manifest entries whose files are missing are kept;
// composition decides how to treat them.
func (s *Store) Order() ([]string, error) {
	if names, present, err := s.LoadManifest(); present || err != nil {
		return names, err
	}

	all, err := s.ListModules()
	if err != nil {
		return nil, err
	}
	present := make(map[string]bool, len(all))
	for _, name := range all {
		present[name] = true
	}

	var order []string
	claimed := make(map[string]bool)
	for _, name := range fallbackPrefix {
		if present[name] {
			order = append(order, name)
			claimed[name] = true
		}
	}
	for _, name := range all {
		if !claimed[name] {
			order = append(order, name)
		}
	}
	return order, nil
}
