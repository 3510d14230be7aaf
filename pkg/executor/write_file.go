package executor

import (
	"encoding/base64"
	"os"
	"strings"

	"github.com/loomctl/loom/pkg/ops"
)

// runWriteFile lands declared content at the target under strict integrity
// checks: the declared checksum must match the decoded bytes before any
// write, and the landed file is re-read and re-verified afterwards.
func (e *Executor) runWriteFile(result OpResult, op ops.Op, target string) (OpResult, error) {
	decoded, err := base64.StdEncoding.DecodeString(op.ContentBase64)
	if err != nil {
		return result, ops.NewStructuralError("content is not valid base64", err).
			WithOp(op.Type).WithPath(target)
	}

	// Hard precondition regardless of dry-run or shadow mode.
	if got := ops.HashBytes(decoded); got != op.ChecksumSHA256 {
		return result, ops.NewIntegrityError("declared checksum does not match content", nil).
			WithCode(ops.ErrCodeChecksumMismatch).WithOp(op.Type).WithPath(target).
			WithDetail("declared", op.ChecksumSHA256).WithDetail("actual", got)
	}

	content := normalizeEOL(decoded, op.EOLNormalization)
	newHash := ops.HashBytes(content)

	current, exists, err := readIfExists(e.realPath(target))
	if err != nil {
		return result, err
	}
	if exists {
		currentHash := ops.HashBytes(current)
		if currentHash == newHash {
			result.Status = StatusNoop
			result.Message = "target already has the expected content"
			return result, nil
		}
		switch {
		case op.ExpectedSHA256Before != "":
			if op.ExpectedSHA256Before != currentHash {
				return result, ops.NewIntegrityError("target changed since the op was authored", nil).
					WithCode(ops.ErrCodeChecksumMismatch).WithOp(op.Type).WithPath(target).
					WithDetail("expected_before", op.ExpectedSHA256Before).
					WithDetail("actual", currentHash)
			}
		case op.IfExists == ops.IfExistsSkip:
			result.Status = StatusSkipped
			result.Message = "target exists, if_exists=skip"
			return result, nil
		case op.IfExists == ops.IfExistsError:
			return result, ops.NewPolicyError("target exists and if_exists=error", nil).
				WithCode(ops.ErrCodeExists).WithOp(op.Type).WithPath(target)
		default:
			// Any other if_exists value falls through to the write.
		}
	}

	if e.dryRun && !e.opts.Shadow {
		result.Status = StatusApplied
		result.Message = "dry run, write suppressed"
		return result, nil
	}

	dest := e.writePath(target)
	if err := writeBytes(dest, content); err != nil {
		return result, err
	}

	// Re-read to catch write-path corruption.
	landed, err := os.ReadFile(dest)
	if err != nil {
		return result, err
	}
	if got := ops.HashBytes(landed); got != newHash {
		return result, ops.NewIntegrityError("content on disk does not match what was written", nil).
			WithCode(ops.ErrCodeChecksumMismatch).WithOp(op.Type).WithPath(target).
			WithDetail("expected", newHash).WithDetail("actual", got)
	}

	result.Status = StatusApplied
	return result, nil
}

func readIfExists(path string) ([]byte, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return data, true, nil
}

// normalizeEOL applies the op's line-ending mode to decoded content.
func normalizeEOL(content []byte, mode string) []byte {
	switch mode {
	case ops.EOLLF:
		s := strings.ReplaceAll(string(content), "\r\n", "\n")
		return []byte(strings.ReplaceAll(s, "\r", "\n"))
	case ops.EOLCRLF:
		s := strings.ReplaceAll(string(content), "\r\n", "\n")
		s = strings.ReplaceAll(s, "\r", "\n")
		return []byte(strings.ReplaceAll(s, "\n", "\r\n"))
	default:
		return content
	}
}
