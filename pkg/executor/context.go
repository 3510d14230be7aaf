package executor

import (
	"regexp"
	"strings"
)

// varPattern matches $name references in operation paths.
var varPattern = regexp.MustCompile(`\$([A-Za-z_][A-Za-z0-9_]*)`)

// Context carries the shared variable map threaded through every operation
// handler. locate binds variables; later operations reference them in paths
// via the $name syntax.
type Context struct {
	Vars map[string]string
}

// NewContext creates an empty execution context.
func NewContext() *Context {
	return &Context{Vars: make(map[string]string)}
}

// Bind associates a variable with a resolved path.
func (c *Context) Bind(name, path string) {
	c.Vars[name] = path
}

// Resolve substitutes $name references in a path. Substitution is a single
// non-recursive pass: substituted values are never rescanned, and unknown
// references are left verbatim.
func (c *Context) Resolve(path string) string {
	if !strings.ContainsRune(path, '$') {
		return path
	}
	return varPattern.ReplaceAllStringFunc(path, func(ref string) string {
		if value, ok := c.Vars[ref[1:]]; ok {
			return value
		}
		return ref
	})
}
