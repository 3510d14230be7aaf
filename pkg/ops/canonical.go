package ops

import (
	"bytes"
	"encoding/json"
)

// CanonicalJSON encodes v as canonical JSON: object keys sorted, no
// insignificant whitespace. The same logical content always produces the
// same bytes regardless of authoring order, which is what makes the plan
// fingerprint reproducible.
func CanonicalJSON(v interface{}) ([]byte, error) {
	// Round-trip through the generic representation; encoding/json emits
	// map keys in sorted order and compact output by default.
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var generic interface{}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&generic); err != nil {
		return nil, err
	}
	return json.Marshal(generic)
}

// FingerprintOps computes the sha256 digest of the canonical JSON encoding
// of an operation list. This is the plan fingerprint value.
func FingerprintOps(opList []Op) (string, error) {
	if opList == nil {
		opList = []Op{}
	}
	canonical, err := CanonicalJSON(opList)
	if err != nil {
		return "", NewStructuralError("canonical encoding of ops failed", err)
	}
	return HashBytes(canonical), nil
}
