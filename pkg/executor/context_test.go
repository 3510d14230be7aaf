package executor

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContextResolve(t *testing.T) {
	ctx := NewContext()
	ctx.Bind("cfg", "conf/app.json")
	ctx.Bind("cfgdir", "conf")

	assert.Equal(t, "conf/app.json", ctx.Resolve("$cfg"))
	assert.Equal(t, "conf/readme.md", ctx.Resolve("$cfgdir/readme.md"))
	assert.Equal(t, "plain/path.txt", ctx.Resolve("plain/path.txt"))

	// Substitution is single-pass and non-recursive.
	ctx.Bind("a", "$b")
	ctx.Bind("b", "value")
	assert.Equal(t, "$b", ctx.Resolve("$a"))
}
