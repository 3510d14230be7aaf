package ops

import (
	"encoding/json"
	"testing"
)

func TestCanonicalJSONSortsKeysAndCompacts(t *testing.T) {
	var a, b map[string]interface{}
	if err := json.Unmarshal([]byte(`{"b": 1, "a": {"y": true, "x": "v"}}`), &a); err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal([]byte(`{
		"a": {"x": "v", "y": true},
		"b": 1
	}`), &b); err != nil {
		t.Fatal(err)
	}

	ca, err := CanonicalJSON(a)
	if err != nil {
		t.Fatalf("canonical encoding failed: %v", err)
	}
	cb, err := CanonicalJSON(b)
	if err != nil {
		t.Fatalf("canonical encoding failed: %v", err)
	}

	if string(ca) != string(cb) {
		t.Errorf("equivalent documents canonicalized differently:\n%s\n%s", ca, cb)
	}
	if want := `{"a":{"x":"v","y":true},"b":1}`; string(ca) != want {
		t.Errorf("unexpected canonical form: %s", ca)
	}
}

func TestFingerprintStableAcrossRuns(t *testing.T) {
	opList := NormalizeAll([]Op{
		{Type: KindWriteFile, Path: "a.txt", ContentBase64: "aGVsbG8="},
		{Type: KindAssertContains, Path: "a.txt", MustContain: []string{"hello"}},
	})

	first, err := FingerprintOps(opList)
	if err != nil {
		t.Fatal(err)
	}
	second, err := FingerprintOps(opList)
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Errorf("fingerprint not stable: %s != %s", first, second)
	}
	if len(first) != 64 {
		t.Errorf("expected 64 hex chars, got %d", len(first))
	}
}

func TestFingerprintSensitiveToContent(t *testing.T) {
	base := NormalizeAll([]Op{{Type: KindWriteFile, Path: "a.txt", ContentBase64: "aGVsbG8="}})
	mutated := NormalizeAll([]Op{{Type: KindWriteFile, Path: "a.txt", ContentBase64: "d29ybGQ="}})

	fa, err := FingerprintOps(base)
	if err != nil {
		t.Fatal(err)
	}
	fb, err := FingerprintOps(mutated)
	if err != nil {
		t.Fatal(err)
	}
	if fa == fb {
		t.Error("different op content produced identical fingerprints")
	}
}

func TestFingerprintEmptyOps(t *testing.T) {
	fp, err := FingerprintOps(nil)
	if err != nil {
		t.Fatal(err)
	}
	same, err := FingerprintOps([]Op{})
	if err != nil {
		t.Fatal(err)
	}
	if fp != same {
		t.Errorf("nil and empty op lists fingerprint differently: %s != %s", fp, same)
	}
}
