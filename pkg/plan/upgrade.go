package plan

import (
	"encoding/base64"
	"encoding/json"

	"github.com/loomctl/loom/pkg/ops"
)

// Historical plan shapes carried their operations under different keys, and
// the oldest one stored file content as structured JSON rather than base64.
// The upgrader flattens any of them into the canonical shape so downstream
// code reasons about exactly one schema.
var legacyOpsKeys = []string{"ops", "operations", "file_operations"}

// Upgrade normalizes a legacy or foreign plan document into the canonical
// schema: one ops list, normalized operations, write_file targets deduplicated
// first-wins, fingerprint recomputed.
func Upgrade(raw []byte) (*Plan, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, ops.NewStructuralError("plan document is not a JSON object", err)
	}

	var rawOps []map[string]interface{}
	for _, key := range legacyOpsKeys {
		encoded, ok := doc[key]
		if !ok {
			continue
		}
		var list []map[string]interface{}
		if err := json.Unmarshal(encoded, &list); err != nil {
			return nil, ops.NewStructuralError("plan field "+key+" is not an operation list", err)
		}
		rawOps = append(rawOps, list...)
	}

	converted := make([]ops.Op, 0, len(rawOps))
	for _, rawOp := range rawOps {
		op, err := upgradeOp(rawOp)
		if err != nil {
			return nil, err
		}
		converted = append(converted, ops.Normalize(op))
	}

	p := &Plan{
		SpecVersion: SpecVersion,
		Execution:   DefaultExecution(),
		Ops:         dedupeWriteFiles(converted),
	}
	decodeSideFields(doc, p)

	if err := p.Refingerprint(); err != nil {
		return nil, err
	}
	return p, nil
}

// upgradeOp converts one raw operation map into the canonical Op. Legacy
// file operations omit the type tag and store content as a plain string or
// structured JSON value under "content".
func upgradeOp(raw map[string]interface{}) (ops.Op, error) {
	content, hasContent := raw["content"]
	delete(raw, "content")

	encoded, err := json.Marshal(raw)
	if err != nil {
		return ops.Op{}, ops.NewStructuralError("operation is not encodable", err)
	}
	var op ops.Op
	if err := json.Unmarshal(encoded, &op); err != nil {
		return ops.Op{}, ops.NewStructuralError("operation does not match any known shape", err)
	}
	if op.Type == "" {
		op.Type = ops.KindWriteFile
	}

	if hasContent && op.ContentBase64 == "" {
		data, err := contentBytes(content)
		if err != nil {
			return ops.Op{}, err
		}
		op.ContentBase64 = base64.StdEncoding.EncodeToString(data)
		// A checksum authored against the legacy representation no longer
		// matches; drop it so normalization re-infers from the real bytes.
		op.ChecksumSHA256 = ""
	}
	return op, nil
}

// contentBytes renders legacy content as file bytes. Strings pass through;
// structured values are rendered as indented JSON the way the original
// authoring tools wrote them to disk.
func contentBytes(content interface{}) ([]byte, error) {
	if s, ok := content.(string); ok {
		return []byte(s), nil
	}
	data, err := json.MarshalIndent(content, "", "  ")
	if err != nil {
		return nil, ops.NewStructuralError("structured content is not encodable", err)
	}
	return append(data, '\n'), nil
}

// dedupeWriteFiles drops write_file operations whose path was already claimed
// by an earlier one. First writer wins; other kinds always pass through.
func dedupeWriteFiles(opList []ops.Op) []ops.Op {
	seen := make(map[string]bool)
	out := make([]ops.Op, 0, len(opList))
	for _, op := range opList {
		if op.Type == ops.KindWriteFile {
			if seen[op.Path] {
				continue
			}
			seen[op.Path] = true
		}
		out = append(out, op)
	}
	return out
}

// decodeSideFields carries recognized non-ops fields from the legacy
// document into the upgraded plan.
func decodeSideFields(doc map[string]json.RawMessage, p *Plan) {
	if raw, ok := doc["metadata"]; ok {
		_ = json.Unmarshal(raw, &p.Metadata)
	}
	if raw, ok := doc["defaults"]; ok {
		_ = json.Unmarshal(raw, &p.Defaults)
	}
	if raw, ok := doc["execution"]; ok {
		exec := DefaultExecution()
		if err := json.Unmarshal(raw, &exec); err == nil {
			p.Execution = exec
		}
	}
	if raw, ok := doc["paths_allowlist"]; ok {
		_ = json.Unmarshal(raw, &p.PathsAllowlist)
	}
	if raw, ok := doc["paths_denylist"]; ok {
		_ = json.Unmarshal(raw, &p.PathsDenylist)
	}
	if raw, ok := doc["spec_version"]; ok {
		var v string
		if err := json.Unmarshal(raw, &v); err == nil && v != "" {
			p.SpecVersion = v
		}
	}
}
