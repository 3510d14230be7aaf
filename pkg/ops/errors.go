// Package ops defines the atomic file operations that flow through the Loom
// pipeline, the normalizer that fills their defaults, and the canonical JSON
// encoding used to fingerprint them.
package ops

import (
	"errors"
	"fmt"
)

// ErrorClass classifies a pipeline failure for exit-code and recovery decisions.
type ErrorClass string

const (
	// ErrorClassStructural indicates malformed input (bad JSON, bad manifest,
	// invalid selector). Structural failures abort before any mutation.
	ErrorClassStructural ErrorClass = "structural"

	// ErrorClassIntegrity indicates a checksum or fingerprint mismatch.
	// Integrity failures are hard aborts and are never downgraded.
	ErrorClassIntegrity ErrorClass = "integrity"

	// ErrorClassPolicy indicates a caller-configured hard abort, such as
	// if_exists=error, on_duplicate=error, or an unmatched required selector.
	ErrorClassPolicy ErrorClass = "policy"

	// ErrorClassEnvironment indicates a degraded-but-survivable condition,
	// such as a missing schema document. Environment errors warn and continue.
	ErrorClassEnvironment ErrorClass = "environment"
)

// PipelineError represents a classified error with operation context.
type PipelineError struct {
	// Class is the error classification.
	Class ErrorClass `json:"class"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Code is an optional error code for programmatic handling.
	Code string `json:"code,omitempty"`

	// Op is the operation kind being processed when the error occurred.
	Op string `json:"op,omitempty"`

	// Path is the filesystem path involved, if applicable.
	Path string `json:"path,omitempty"`

	// Err is the underlying error that caused this error.
	Err error `json:"-"`

	// Details contains additional context-specific information.
	Details map[string]interface{} `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *PipelineError) Error() string {
	if e.Op != "" && e.Path != "" {
		return fmt.Sprintf("[%s] %s (op=%s, path=%s)%s",
			e.Class, e.Message, e.Op, e.Path, e.unwrapSuffix())
	}
	if e.Path != "" {
		return fmt.Sprintf("[%s] %s (path=%s)%s", e.Class, e.Message, e.Path, e.unwrapSuffix())
	}
	return fmt.Sprintf("[%s] %s%s", e.Class, e.Message, e.unwrapSuffix())
}

// Unwrap returns the underlying error for error chain inspection.
func (e *PipelineError) Unwrap() error {
	return e.Err
}

func (e *PipelineError) unwrapSuffix() string {
	if e.Err != nil {
		return ": " + e.Err.Error()
	}
	return ""
}

// Is implements error equality checking for errors.Is.
func (e *PipelineError) Is(target error) bool {
	t, ok := target.(*PipelineError)
	if !ok {
		return false
	}
	return e.Class == t.Class && (t.Code == "" || e.Code == t.Code)
}

// NewStructuralError creates a new structural error.
func NewStructuralError(message string, err error) *PipelineError {
	return &PipelineError{Class: ErrorClassStructural, Message: message, Err: err}
}

// NewIntegrityError creates a new integrity error.
func NewIntegrityError(message string, err error) *PipelineError {
	return &PipelineError{Class: ErrorClassIntegrity, Message: message, Err: err}
}

// NewPolicyError creates a new policy error.
func NewPolicyError(message string, err error) *PipelineError {
	return &PipelineError{Class: ErrorClassPolicy, Message: message, Err: err}
}

// NewEnvironmentError creates a new environment error.
func NewEnvironmentError(message string, err error) *PipelineError {
	return &PipelineError{Class: ErrorClassEnvironment, Message: message, Err: err}
}

// WithOp adds the operation kind to an error.
func (e *PipelineError) WithOp(op string) *PipelineError {
	e.Op = op
	return e
}

// WithPath adds a filesystem path to an error.
func (e *PipelineError) WithPath(path string) *PipelineError {
	e.Path = path
	return e
}

// WithCode adds an error code to an error.
func (e *PipelineError) WithCode(code string) *PipelineError {
	e.Code = code
	return e
}

// WithDetail adds a single detail entry to an error.
func (e *PipelineError) WithDetail(key string, value interface{}) *PipelineError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// ClassOf extracts the error class from an error chain.
// Unclassified errors report as structural, the most conservative class.
func ClassOf(err error) ErrorClass {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Class
	}
	return ErrorClassStructural
}

// IsClass reports whether the error chain carries the given class.
func IsClass(err error, class ErrorClass) bool {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Class == class
	}
	return false
}

// Common error codes used across the pipeline.
const (
	ErrCodeChecksumMismatch    = "CHECKSUM_MISMATCH"
	ErrCodeFingerprintMismatch = "FINGERPRINT_MISMATCH"
	ErrCodePathDenied          = "PATH_DENIED"
	ErrCodeSelectorUnmatched   = "SELECTOR_UNMATCHED"
	ErrCodeManifestInvalid     = "MANIFEST_INVALID"
	ErrCodeSchemaMissing       = "SCHEMA_MISSING"
	ErrCodeSchemaInvalid       = "SCHEMA_INVALID"
	ErrCodePreviewMismatch     = "PREVIEW_MISMATCH"
	ErrCodeExists              = "TARGET_EXISTS"
	ErrCodeDuplicateSection    = "DUPLICATE_SECTION"
	ErrCodeNotFound            = "NOT_FOUND"
)
