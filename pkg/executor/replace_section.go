package executor

import (
	"encoding/base64"
	"os"
	"regexp"
	"strings"

	"github.com/loomctl/loom/pkg/ops"
)

// runReplaceSection rewrites the span from the start_regex match through the
// nearest end_regex match after it. Reads always target the real file, even
// in shadow mode: the op models proposing a change to real content with the
// result landing in the sandbox.
func (e *Executor) runReplaceSection(result OpResult, op ops.Op, target string) (OpResult, error) {
	raw, err := os.ReadFile(e.realPath(target))
	if err != nil {
		return result, ops.NewStructuralError("reading section target", err).
			WithCode(ops.ErrCodeNotFound).WithOp(op.Type).WithPath(target)
	}
	content := string(raw)

	if op.IdempotencyMarker != "" && strings.Contains(content, op.IdempotencyMarker) {
		switch op.OnDuplicate {
		case ops.OnDuplicateError:
			return result, ops.NewPolicyError("idempotency marker already present and on_duplicate=error", nil).
				WithCode(ops.ErrCodeDuplicateSection).WithOp(op.Type).WithPath(target)
		case ops.OnDuplicateReplaceAgain:
			// Proceed with the replacement.
		default:
			result.Status = StatusSkipped
			result.Message = "idempotency marker present, on_duplicate=skip"
			return result, nil
		}
	}

	startRe, err := regexp.Compile(op.StartRegex)
	if err != nil {
		return result, ops.NewStructuralError("start_regex does not compile", err).WithOp(op.Type)
	}
	endRe, err := regexp.Compile(op.EndRegex)
	if err != nil {
		return result, ops.NewStructuralError("end_regex does not compile", err).WithOp(op.Type)
	}

	starts := startRe.FindAllStringIndex(content, -1)
	if len(starts) == 0 {
		return result, ops.NewPolicyError("start_regex matched nothing", nil).
			WithCode(ops.ErrCodeNotFound).WithOp(op.Type).WithPath(target)
	}
	if len(starts) > 1 && !op.AllowMultipleMatches {
		return result, ops.NewPolicyError("start_regex matched more than once", nil).
			WithCode(ops.ErrCodeDuplicateSection).WithOp(op.Type).WithPath(target).
			WithDetail("matches", len(starts))
	}
	// Only the first start match is ever processed, even when multiple
	// matches are allowed.
	start := starts[0]

	endLoc := endRe.FindStringIndex(content[start[1]:])
	if endLoc == nil {
		return result, ops.NewPolicyError("no end_regex match after the section start", nil).
			WithCode(ops.ErrCodeNotFound).WithOp(op.Type).WithPath(target)
	}
	sectionEnd := start[1] + endLoc[1]

	replacement, err := base64.StdEncoding.DecodeString(op.ReplacementBase64)
	if err != nil {
		return result, ops.NewStructuralError("replacement is not valid base64", err).
			WithOp(op.Type).WithPath(target)
	}

	next := content[:start[0]] + string(replacement) + content[sectionEnd:]

	// The preview gate runs before any write, shadowed or not.
	if op.VerifyPreviewSHA256 != "" {
		if got := ops.HashString(next); got != op.VerifyPreviewSHA256 {
			return result, ops.NewIntegrityError("post-replacement content does not match the declared preview", nil).
				WithCode(ops.ErrCodePreviewMismatch).WithOp(op.Type).WithPath(target).
				WithDetail("declared", op.VerifyPreviewSHA256).WithDetail("actual", got)
		}
	}

	if e.dryRun && !e.opts.Shadow {
		result.Status = StatusApplied
		result.Message = "dry run, write suppressed"
		return result, nil
	}
	if err := writeBytes(e.writePath(target), []byte(next)); err != nil {
		return result, err
	}

	result.Status = StatusApplied
	return result, nil
}
