package executor

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"

	"github.com/loomctl/loom/pkg/ops"
)

var errLocateFound = errors.New("locate: found")

// runLocate walks the tree under the root, matching files against the glob
// and filtering by required substrings. Zero matches is fatal; the first
// match binds the variable.
func (e *Executor) runLocate(result OpResult, op ops.Op) (OpResult, error) {
	if op.Name == "" || op.Glob == "" {
		return result, ops.NewStructuralError("locate requires name and glob", nil).WithOp(op.Type)
	}
	matcher, err := glob.Compile(filepath.ToSlash(op.Glob), '/')
	if err != nil {
		return result, ops.NewStructuralError("locate glob does not compile", err).WithOp(op.Type)
	}

	var found string
	walkErr := filepath.WalkDir(e.opts.Root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			// Never descend into the shadow tree.
			if e.opts.Shadow && sameFile(path, e.opts.ShadowDir) {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(e.opts.Root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if !matcher.Match(rel) {
			return nil
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		for _, token := range op.MustContain {
			if !strings.Contains(string(content), token) {
				return nil
			}
		}
		found = rel
		return errLocateFound
	})
	if walkErr != nil && !errors.Is(walkErr, errLocateFound) {
		return result, walkErr
	}
	if found == "" {
		return result, ops.NewPolicyError("no file matching the glob with required content", nil).
			WithCode(ops.ErrCodeNotFound).WithOp(op.Type).
			WithDetail("name", op.Name).WithDetail("glob", op.Glob)
	}

	e.vars.Bind(op.Name, found)
	result.Target = found
	result.Status = StatusApplied
	result.Message = fmt.Sprintf("bound $%s", op.Name)
	return result, nil
}

// sameFile reports whether two paths name the same location once cleaned.
func sameFile(a, b string) bool {
	aa, err := filepath.Abs(a)
	if err != nil {
		return false
	}
	bb, err := filepath.Abs(b)
	if err != nil {
		return false
	}
	return aa == bb
}
