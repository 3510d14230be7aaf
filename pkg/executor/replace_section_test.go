package executor

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomctl/loom/pkg/ops"
	"github.com/loomctl/loom/pkg/plan"
)

const sectionDoc = `# intro
<!-- begin -->
old body
<!-- end -->
# outro
`

func sectionOp(replacement string) ops.Op {
	return ops.Op{
		Type:              ops.KindReplaceSection,
		File:              "doc.md",
		StartRegex:        `<!-- begin -->`,
		EndRegex:          `<!-- end -->`,
		ReplacementBase64: b64(replacement),
	}
}

func runSection(t *testing.T, op ops.Op, doc string, opts Options) (string, *Report, error) {
	t.Helper()
	p := &plan.Plan{
		SpecVersion: plan.SpecVersion,
		Execution:   plan.DefaultExecution(),
		Ops:         ops.NormalizeAll([]ops.Op{op}),
	}
	require.NoError(t, p.Refingerprint())

	e, root := newRunner(t, opts)
	require.NoError(t, os.WriteFile(filepath.Join(root, "doc.md"), []byte(doc), 0o644))
	report, err := e.Run(p)

	data, readErr := os.ReadFile(filepath.Join(root, "doc.md"))
	require.NoError(t, readErr)
	return string(data), report, err
}

func TestReplaceSectionRewritesSpan(t *testing.T) {
	got, report, err := runSection(t, sectionOp("<!-- begin -->\nnew body\n<!-- end -->"), sectionDoc, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Summary.Applied)
	assert.Equal(t, "# intro\n<!-- begin -->\nnew body\n<!-- end -->\n# outro\n", got)
}

func TestReplaceSectionZeroStartMatches(t *testing.T) {
	op := sectionOp("x")
	op.StartRegex = `<!-- missing -->`
	_, _, err := runSection(t, op, sectionDoc, Options{})
	require.Error(t, err)
	assert.True(t, ops.IsClass(err, ops.ErrorClassPolicy))
}

func TestReplaceSectionMissingTarget(t *testing.T) {
	p := &plan.Plan{
		SpecVersion: plan.SpecVersion,
		Execution:   plan.DefaultExecution(),
		Ops:         ops.NormalizeAll([]ops.Op{sectionOp("x")}),
	}
	require.NoError(t, p.Refingerprint())

	e, _ := newRunner(t, Options{})
	_, err := e.Run(p)
	require.Error(t, err)
	assert.True(t, ops.IsClass(err, ops.ErrorClassStructural))
}

func TestReplaceSectionMultipleStartMatches(t *testing.T) {
	doc := sectionDoc + "<!-- begin -->\nsecond\n<!-- end -->\n"

	_, _, err := runSection(t, sectionOp("x"), doc, Options{})
	require.Error(t, err)
	assert.True(t, ops.IsClass(err, ops.ErrorClassPolicy))

	// allow_multiple_matches suppresses the error but still only the first
	// match is processed.
	op := sectionOp("<!-- begin -->\nreplaced\n<!-- end -->")
	op.AllowMultipleMatches = true
	got, _, err := runSection(t, op, doc, Options{})
	require.NoError(t, err)
	assert.Contains(t, got, "replaced")
	assert.Contains(t, got, "second")
}

func TestReplaceSectionIdempotencyMarker(t *testing.T) {
	marker := "generated-by-loom"
	doc := "# intro\n<!-- begin -->\ngenerated-by-loom\n<!-- end -->\n"

	op := sectionOp("x")
	op.IdempotencyMarker = marker
	got, report, err := runSection(t, op, doc, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Summary.Skipped)
	assert.Equal(t, doc, got)

	op.OnDuplicate = ops.OnDuplicateError
	_, _, err = runSection(t, op, doc, Options{})
	require.Error(t, err)
	assert.True(t, ops.IsClass(err, ops.ErrorClassPolicy))

	op.OnDuplicate = ops.OnDuplicateReplaceAgain
	op.ReplacementBase64 = b64("<!-- begin -->\nfresh generated-by-loom\n<!-- end -->")
	got, _, err = runSection(t, op, doc, Options{})
	require.NoError(t, err)
	assert.Contains(t, got, "fresh generated-by-loom")
}

func TestReplaceSectionPreviewGate(t *testing.T) {
	op := sectionOp("<!-- begin -->\nnew body\n<!-- end -->")
	op.VerifyPreviewSHA256 = ops.HashString("not the preview")

	got, _, err := runSection(t, op, sectionDoc, Options{})
	require.Error(t, err)
	assert.True(t, ops.IsClass(err, ops.ErrorClassIntegrity))
	assert.Equal(t, sectionDoc, got)
}

func TestReplaceSectionPreviewGateMatches(t *testing.T) {
	want := "# intro\n<!-- begin -->\nnew body\n<!-- end -->\n# outro\n"
	op := sectionOp("<!-- begin -->\nnew body\n<!-- end -->")
	op.VerifyPreviewSHA256 = ops.HashString(want)

	got, _, err := runSection(t, op, sectionDoc, Options{})
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestReplaceSectionShadowReadsRealWritesShadow(t *testing.T) {
	shadowDir := t.TempDir()
	op := sectionOp("<!-- begin -->\nsandboxed\n<!-- end -->")

	got, _, err := runSection(t, op, sectionDoc, Options{Shadow: true, ShadowDir: shadowDir})
	require.NoError(t, err)
	// Real file untouched; the proposed result landed in the shadow tree.
	assert.Equal(t, sectionDoc, got)

	shadow, readErr := os.ReadFile(filepath.Join(shadowDir, "doc.md"))
	require.NoError(t, readErr)
	assert.Contains(t, string(shadow), "sandboxed")
}

func TestReplaceSectionDryRunNoWrite(t *testing.T) {
	op := sectionOp("<!-- begin -->\nnew body\n<!-- end -->")
	e, root := newRunner(t, Options{DryRun: boolPtr(true)})
	require.NoError(t, os.WriteFile(filepath.Join(root, "doc.md"), []byte(sectionDoc), 0o644))

	p := &plan.Plan{
		SpecVersion: plan.SpecVersion,
		Execution:   plan.DefaultExecution(),
		Ops:         ops.NormalizeAll([]ops.Op{op}),
	}
	require.NoError(t, p.Refingerprint())

	_, err := e.Run(p)
	require.NoError(t, err)
	assert.Equal(t, sectionDoc, readAll(t, filepath.Join(root, "doc.md")))
}
