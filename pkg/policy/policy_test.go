package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomctl/loom/pkg/ops"
)

func TestEmptyPolicyAllowsEverything(t *testing.T) {
	p, err := New(nil, nil)
	require.NoError(t, err)

	assert.True(t, p.Empty())
	assert.NoError(t, p.Check("anything/at/all.txt"))
}

func TestAllowlistPrefix(t *testing.T) {
	p, err := New([]string{"src/"}, nil)
	require.NoError(t, err)

	assert.NoError(t, p.Check("src/main.go"))
	assert.NoError(t, p.Check("./src/nested/file.txt"))

	err = p.Check("secrets/key.pem")
	require.Error(t, err)
	assert.True(t, ops.IsClass(err, ops.ErrorClassPolicy))

	// A prefix rule must not match a sibling directory sharing its spelling.
	assert.Error(t, p.Check("srcery/file.txt"))
}

func TestDenylistWinsOverAllowlist(t *testing.T) {
	p, err := New([]string{"src/"}, []string{"src/generated/"})
	require.NoError(t, err)

	assert.NoError(t, p.Check("src/main.go"))
	assert.Error(t, p.Check("src/generated/code.go"))
}

func TestGlobRules(t *testing.T) {
	p, err := New(nil, []string{"**/*.pem"})
	require.NoError(t, err)

	assert.Error(t, p.Check("deep/nested/key.pem"))
	assert.NoError(t, p.Check("deep/nested/key.txt"))
}

func TestInvalidGlobIsStructural(t *testing.T) {
	_, err := New([]string{"src/[unclosed"}, nil)
	require.Error(t, err)
	assert.True(t, ops.IsClass(err, ops.ErrorClassStructural))
}
