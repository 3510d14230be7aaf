package ops

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
)

// SourceUnspecified is the provenance tag filled in when an operation does
// not declare where it came from.
const SourceUnspecified = "unspecified"

// Normalize fills kind-specific defaults on an operation and returns the
// result. It never rejects malformed input; validation happens downstream
// once defaults are in place. Normalizing an already-normalized operation
// is a no-op, which keeps fingerprints stable across repeated composition.
func Normalize(op Op) Op {
	if op.Source == "" {
		op.Source = SourceUnspecified
	}

	switch op.Type {
	case KindWriteFile:
		if op.Phase == "" {
			op.Phase = PhaseApply
		}
		if op.DryRunEffect == "" {
			op.DryRunEffect = DryRunSkipWrite
		}
		if op.IfExists == "" {
			op.IfExists = IfExistsSkip
		}
		if op.Encoding == "" {
			op.Encoding = "utf-8"
		}
		if op.EOLNormalization == "" {
			op.EOLNormalization = EOLPreserve
		}
		if op.ChecksumSHA256 == "" && op.ContentBase64 != "" {
			// Inference is best-effort: undecodable content leaves the
			// checksum unset and the schema check downstream reports it.
			if decoded, err := base64.StdEncoding.DecodeString(op.ContentBase64); err == nil {
				op.ChecksumSHA256 = HashBytes(decoded)
			}
		}

	case KindReplaceSection:
		if op.Phase == "" {
			op.Phase = PhaseApply
		}
		if op.DryRunEffect == "" {
			op.DryRunEffect = DryRunSkipWrite
		}
		if op.OnDuplicate == "" {
			op.OnDuplicate = OnDuplicateSkip
		}

	case KindLocate, KindAssertContains, KindAssertNotContains:
		if op.Phase == "" {
			op.Phase = PhaseValidate
		}
		if op.DryRunEffect == "" {
			op.DryRunEffect = DryRunNone
		}

	default:
		// Unknown kinds pass through untouched; the schema check rejects them.
	}

	return op
}

// NormalizeAll normalizes a slice of operations in order.
func NormalizeAll(opList []Op) []Op {
	out := make([]Op, len(opList))
	for i, op := range opList {
		out[i] = Normalize(op)
	}
	return out
}

// HashBytes returns the lowercase hex sha256 digest of data.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// HashString returns the lowercase hex sha256 digest of s.
func HashString(s string) string {
	return HashBytes([]byte(s))
}
