// Package deliverables declares expected pipeline outputs and re-checks them
// against the filesystem independently of plan execution.
package deliverables

import "time"

// Deliverable is one declared expected output file.
type Deliverable struct {
	Path string `json:"path" validate:"required"`

	// MustExist defaults to true; a nil pointer means required.
	MustExist *bool `json:"must_exist,omitempty"`

	ExpectedSHA256 string `json:"expected_sha256,omitempty" validate:"omitempty,hexadecimal,len=64"`

	MustContain []string `json:"must_contain,omitempty"`
}

// Required reports whether the deliverable's file must exist.
func (d Deliverable) Required() bool {
	return d.MustExist == nil || *d.MustExist
}

// Manifest is the set of deliverables emitted by one update, written to
// artifacts/updates/<update_id>/deliverables.manifest.json and validated
// later, out-of-band.
type Manifest struct {
	UpdateID     string        `json:"update_id"`
	GeneratedAt  time.Time     `json:"generated_at"`
	Deliverables []Deliverable `json:"deliverables"`
}

// Validation error tags reported per deliverable.
const (
	TagFileMissing      = "file_missing"
	TagChecksumMismatch = "checksum_mismatch"
	TagDecodeError      = "decode_error"
	TagMissingSubstring = "missing_substring"
)

// Result is the validation outcome for one deliverable.
type Result struct {
	Path   string   `json:"path"`
	OK     bool     `json:"ok"`
	Errors []string `json:"errors,omitempty"`

	// ActualSHA256 is the observed digest when the file was readable.
	ActualSHA256 string `json:"actual_sha256,omitempty"`
}

// Report is the full validation outcome for a manifest.
type Report struct {
	UpdateID  string    `json:"update_id,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
	Results   []Result  `json:"results"`
	Summary   Summary   `json:"summary"`
}

// Summary aggregates a report.
type Summary struct {
	Total    int `json:"total"`
	Failures int `json:"failures"`
}
