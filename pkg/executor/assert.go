package executor

import (
	"fmt"
	"os"
	"strings"

	"github.com/loomctl/loom/pkg/ops"
)

// runAssertContains fails fast on the first missing required token.
func (e *Executor) runAssertContains(result OpResult, op ops.Op, target string) (OpResult, error) {
	content, err := os.ReadFile(e.realPath(target))
	if err != nil {
		return result, ops.NewStructuralError("reading assert target", err).
			WithCode(ops.ErrCodeNotFound).WithOp(op.Type).WithPath(target)
	}
	for _, token := range op.MustContain {
		if !strings.Contains(string(content), token) {
			return result, ops.NewPolicyError("required token missing", nil).
				WithOp(op.Type).WithPath(target).WithDetail("token", token)
		}
	}
	result.Status = StatusApplied
	result.Message = fmt.Sprintf("%d required tokens present", len(op.MustContain))
	return result, nil
}

// runAssertNotContains fails fast on the first forbidden token present.
func (e *Executor) runAssertNotContains(result OpResult, op ops.Op, target string) (OpResult, error) {
	content, err := os.ReadFile(e.realPath(target))
	if err != nil {
		return result, ops.NewStructuralError("reading assert target", err).
			WithCode(ops.ErrCodeNotFound).WithOp(op.Type).WithPath(target)
	}
	for _, token := range op.MustNotContain {
		if strings.Contains(string(content), token) {
			return result, ops.NewPolicyError("forbidden token present", nil).
				WithOp(op.Type).WithPath(target).WithDetail("token", token)
		}
	}
	result.Status = StatusApplied
	result.Message = fmt.Sprintf("%d forbidden tokens absent", len(op.MustNotContain))
	return result, nil
}
