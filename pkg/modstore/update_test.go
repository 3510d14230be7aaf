package modstore

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomctl/loom/pkg/deliverables"
	"github.com/loomctl/loom/pkg/ops"
	"github.com/loomctl/loom/pkg/telemetry"
)

func newTestApplier(t *testing.T) (*Applier, *Store, string) {
	t.Helper()
	root := t.TempDir()
	store := NewStore(filepath.Join(root, DefaultDir))
	return NewApplier(root, store, telemetry.NopLogger()), store, root
}

func boolPtr(b bool) *bool { return &b }

func writeOp(path, content64 string) ops.Op {
	return ops.Op{Type: ops.KindWriteFile, Path: path, ContentBase64: content64}
}

func TestApplyAddModuleInsertsIntoManifest(t *testing.T) {
	a, store, _ := newTestApplier(t)
	require.NoError(t, store.SaveManifest([]string{"00_preamble.json", "05_checks.json"}))

	u := &Update{
		UpdateID: "u-1",
		Version:  "1",
		Operations: []UpdateOp{{
			Op:         UpdateAddModule,
			Module:     "10_new",
			Position:   "before",
			RelativeTo: "05_checks",
			Ops:        []ops.Op{writeOp("a.txt", "YQ==")},
		}},
	}
	require.NoError(t, a.Apply(u))

	names, present, err := store.LoadManifest()
	require.NoError(t, err)
	require.True(t, present)
	assert.Equal(t, []string{"00_preamble.json", "10_new.json", "05_checks.json"}, names)

	m, err := store.LoadModule("10_new")
	require.NoError(t, err)
	assert.Len(t, m.Ops, 1)
}

func TestApplyAddModuleUnresolvableAnchorFallsBackToEnd(t *testing.T) {
	a, store, _ := newTestApplier(t)
	require.NoError(t, store.SaveManifest([]string{"00_preamble.json"}))

	u := &Update{
		UpdateID: "u-2",
		Version:  "1",
		Operations: []UpdateOp{{
			Op:         UpdateAddModule,
			Module:     "10_new",
			Position:   "after",
			RelativeTo: "does_not_exist",
		}},
	}
	require.NoError(t, a.Apply(u))

	names, _, err := store.LoadManifest()
	require.NoError(t, err)
	assert.Equal(t, []string{"00_preamble.json", "10_new.json"}, names)
}

func TestApplyUpsertOpsPrepend(t *testing.T) {
	a, store, _ := newTestApplier(t)
	require.NoError(t, store.SaveModule("mod", &Module{Ops: []ops.Op{writeOp("old.txt", "YQ==")}}))

	u := &Update{
		UpdateID: "u-3",
		Version:  "1",
		Operations: []UpdateOp{{
			Op:       UpdateUpsertOps,
			Module:   "mod",
			Strategy: "prepend",
			Ops:      []ops.Op{writeOp("new.txt", "Yg==")},
		}},
	}
	require.NoError(t, a.Apply(u))

	m, err := store.LoadModule("mod")
	require.NoError(t, err)
	require.Len(t, m.Ops, 2)
	assert.Equal(t, "new.txt", m.Ops[0].Path)
	assert.Equal(t, "old.txt", m.Ops[1].Path)
}

func TestApplyUpsertOpsCreatesSkeleton(t *testing.T) {
	a, store, _ := newTestApplier(t)

	u := &Update{
		UpdateID: "u-4",
		Version:  "1",
		Operations: []UpdateOp{{
			Op:     UpdateUpsertOps,
			Module: "fresh",
			Ops:    []ops.Op{writeOp("n.txt", "Yg==")},
		}},
	}
	require.NoError(t, a.Apply(u))

	m, err := store.LoadModule("fresh")
	require.NoError(t, err)
	assert.Len(t, m.Ops, 1)
}

func TestApplyRemoveOpsBySelector(t *testing.T) {
	a, store, _ := newTestApplier(t)
	require.NoError(t, store.SaveModule("mod", &Module{Ops: []ops.Op{
		writeOp("keep.txt", "YQ=="),
		writeOp("drop.txt", "Yg=="),
	}}))

	u := &Update{
		UpdateID: "u-5",
		Version:  "1",
		Operations: []UpdateOp{{
			Op:       UpdateRemoveOps,
			Selector: &SelectorSpec{WriteFilePath: "drop.txt"},
		}},
	}
	require.NoError(t, a.Apply(u))

	m, err := store.LoadModule("mod")
	require.NoError(t, err)
	require.Len(t, m.Ops, 1)
	assert.Equal(t, "keep.txt", m.Ops[0].Path)
}

func TestApplyRemoveOpsMaxRemove(t *testing.T) {
	a, store, _ := newTestApplier(t)
	require.NoError(t, store.SaveModule("mod", &Module{Ops: []ops.Op{
		{Type: ops.KindAssertContains, Path: "a.txt", MustContain: []string{"x"}},
		{Type: ops.KindAssertContains, Path: "b.txt", MustContain: []string{"x"}},
		{Type: ops.KindAssertContains, Path: "c.txt", MustContain: []string{"x"}},
	}}))

	u := &Update{
		UpdateID: "u-6",
		Version:  "1",
		Operations: []UpdateOp{{
			Op:        UpdateRemoveOps,
			Selector:  &SelectorSpec{OpType: ops.KindAssertContains},
			MaxRemove: 2,
		}},
	}
	require.NoError(t, a.Apply(u))

	m, err := store.LoadModule("mod")
	require.NoError(t, err)
	require.Len(t, m.Ops, 1)
	assert.Equal(t, "c.txt", m.Ops[0].Path)
}

func TestApplyRequiredSelectorUnmatchedAborts(t *testing.T) {
	a, store, _ := newTestApplier(t)
	require.NoError(t, store.SaveModule("mod", &Module{Ops: []ops.Op{writeOp("keep.txt", "YQ==")}}))

	u := &Update{
		UpdateID: "u-7",
		Version:  "1",
		Operations: []UpdateOp{{
			Op:       UpdateRemoveOps,
			Selector: &SelectorSpec{WriteFilePath: "absent.txt"},
		}},
	}
	err := a.Apply(u)
	require.Error(t, err)
	assert.True(t, ops.IsClass(err, ops.ErrorClassPolicy))

	// The store must be unmodified.
	m, err := store.LoadModule("mod")
	require.NoError(t, err)
	assert.Len(t, m.Ops, 1)
}

func TestApplyOptionalSelectorUnmatchedIsNoop(t *testing.T) {
	a, store, _ := newTestApplier(t)
	require.NoError(t, store.SaveModule("mod", &Module{Ops: []ops.Op{writeOp("keep.txt", "YQ==")}}))

	u := &Update{
		UpdateID: "u-8",
		Version:  "1",
		Operations: []UpdateOp{{
			Op:       UpdateRemoveOps,
			Selector: &SelectorSpec{WriteFilePath: "absent.txt"},
			Required: boolPtr(false),
		}},
	}
	require.NoError(t, a.Apply(u))
}

func TestApplyReplaceOpsSubstitutesFirstMatch(t *testing.T) {
	a, store, _ := newTestApplier(t)
	require.NoError(t, store.SaveModule("mod", &Module{Ops: []ops.Op{
		writeOp("target.txt", "YQ=="),
		writeOp("other.txt", "Yg=="),
		writeOp("target.txt", "Yw=="),
	}}))

	u := &Update{
		UpdateID: "u-9",
		Version:  "1",
		Operations: []UpdateOp{{
			Op:       UpdateReplaceOps,
			Selector: &SelectorSpec{WriteFilePath: "target.txt"},
			Ops: []ops.Op{
				writeOp("replaced.txt", "ZA=="),
				{Type: ops.KindAssertContains, Path: "replaced.txt", MustContain: []string{"d"}},
			},
		}},
	}
	require.NoError(t, a.Apply(u))

	m, err := store.LoadModule("mod")
	require.NoError(t, err)
	require.Len(t, m.Ops, 3)
	assert.Equal(t, "replaced.txt", m.Ops[0].Path)
	assert.Equal(t, ops.KindAssertContains, m.Ops[1].Type)
	assert.Equal(t, "other.txt", m.Ops[2].Path)
}

func TestApplySideFileMergeAndPathsOverwrite(t *testing.T) {
	a, _, root := newTestApplier(t)

	u := &Update{
		UpdateID: "u-10",
		Version:  "1",
		Operations: []UpdateOp{
			{Op: UpdateSetMetadata, Patch: map[string]interface{}{"project": "loom", "stage": "dev"}},
			{Op: UpdateSetMetadata, Patch: map[string]interface{}{"stage": "prod"}},
			{Op: UpdateSetPaths, Paths: &PathsDoc{Allowlist: []string{"src/"}}},
		},
	}
	require.NoError(t, a.Apply(u))

	var metadata map[string]interface{}
	data, err := os.ReadFile(filepath.Join(root, MetadataFile))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &metadata))
	assert.Equal(t, "loom", metadata["project"])
	assert.Equal(t, "prod", metadata["stage"])

	var paths PathsDoc
	data, err = os.ReadFile(filepath.Join(root, PathsFile))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &paths))
	assert.Equal(t, []string{"src/"}, paths.Allowlist)
}

func TestDeliverablesManifestInfersChecksums(t *testing.T) {
	a, _, root := newTestApplier(t)

	u := &Update{
		UpdateID: "u-11",
		Version:  "1",
		Operations: []UpdateOp{{
			Op:     UpdateAddModule,
			Module: "mod",
			Ops:    []ops.Op{writeOp("out.txt", "aGVsbG8=")},
		}},
		Deliverables: []deliverables.Deliverable{
			{Path: "out.txt"},
			{Path: "other.txt", ExpectedSHA256: ops.HashString("other")},
		},
	}
	require.NoError(t, a.Apply(u))

	data, err := os.ReadFile(filepath.Join(root, "artifacts", "updates", "u-11", "deliverables.manifest.json"))
	require.NoError(t, err)
	var manifest deliverables.Manifest
	require.NoError(t, json.Unmarshal(data, &manifest))
	require.Len(t, manifest.Deliverables, 2)
	assert.Equal(t, ops.HashString("hello"), manifest.Deliverables[0].ExpectedSHA256)
	assert.Equal(t, ops.HashString("other"), manifest.Deliverables[1].ExpectedSHA256)
}

func TestSelectorCompileRejectsAmbiguity(t *testing.T) {
	_, err := SelectorSpec{WriteFilePath: "a.txt", OpType: ops.KindWriteFile}.Compile()
	require.Error(t, err)

	_, err = SelectorSpec{}.Compile()
	require.Error(t, err)

	_, err = SelectorSpec{Field: "path"}.Compile()
	require.Error(t, err)
}

func TestSelectorByRegexField(t *testing.T) {
	selector, err := SelectorSpec{Field: "path", Regex: `\.txt$`}.Compile()
	require.NoError(t, err)

	assert.True(t, selector.Match(writeOp("notes.txt", "YQ==")))
	assert.False(t, selector.Match(writeOp("notes.md", "YQ==")))
}
