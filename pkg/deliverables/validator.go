package deliverables

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/loomctl/loom/pkg/ops"
	"github.com/loomctl/loom/pkg/telemetry"
)

// Validator re-checks declared outputs against the filesystem. It is
// read-only and completely decoupled from whether any plan actually ran.
type Validator struct {
	root   string
	logger *telemetry.Logger
}

// NewValidator creates a validator resolving deliverable paths under root.
func NewValidator(root string, logger *telemetry.Logger) *Validator {
	if root == "" {
		root = "."
	}
	if logger == nil {
		logger = telemetry.NopLogger()
	}
	return &Validator{
		root:   root,
		logger: logger.NewComponentLogger("deliverables"),
	}
}

// LoadManifest reads a deliverables manifest file.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, ops.NewStructuralError("reading deliverables manifest", err).WithPath(path)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, ops.NewStructuralError("deliverables manifest is not valid JSON", err).WithPath(path)
	}
	return &m, nil
}

// Validate checks every deliverable and returns the aggregate report. It
// never mutates and never aborts early; callers inspect the report.
func (v *Validator) Validate(m *Manifest) *Report {
	report := &Report{
		UpdateID:  m.UpdateID,
		CheckedAt: time.Now().UTC(),
		Results:   make([]Result, 0, len(m.Deliverables)),
	}
	for _, d := range m.Deliverables {
		result := v.check(d)
		report.Results = append(report.Results, result)
		report.Summary.Total++
		if !result.OK {
			report.Summary.Failures++
		}
	}
	v.logger.WithUpdateID(m.UpdateID).WithFields(map[string]interface{}{
		"total": report.Summary.Total, "failures": report.Summary.Failures,
	}).Info("deliverables checked")
	return report
}

func (v *Validator) check(d Deliverable) Result {
	result := Result{Path: d.Path}

	content, err := os.ReadFile(filepath.Join(v.root, filepath.FromSlash(d.Path)))
	if err != nil {
		if os.IsNotExist(err) {
			if d.Required() {
				result.Errors = append(result.Errors, TagFileMissing)
			} else {
				result.OK = true
			}
			return result
		}
		result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", TagDecodeError, err))
		return result
	}

	result.ActualSHA256 = ops.HashBytes(content)
	if d.ExpectedSHA256 != "" && !strings.EqualFold(d.ExpectedSHA256, result.ActualSHA256) {
		result.Errors = append(result.Errors, TagChecksumMismatch)
	}
	for _, token := range d.MustContain {
		if !strings.Contains(string(content), token) {
			result.Errors = append(result.Errors, TagMissingSubstring+": "+token)
		}
	}

	result.OK = len(result.Errors) == 0
	return result
}

// WriteReport writes the validation report next to the manifest, as
// <stem>.validation.json, and returns the report path.
func WriteReport(manifestPath string, report *Report) (string, error) {
	stem := strings.TrimSuffix(manifestPath, filepath.Ext(manifestPath))
	path := stem + ".validation.json"
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", err
	}
	return path, os.WriteFile(path, append(data, '\n'), 0o644)
}
