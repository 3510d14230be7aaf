package ops

// Operation kinds understood by the pipeline.
const (
	KindWriteFile         = "write_file"
	KindReplaceSection    = "replace_section"
	KindLocate            = "locate"
	KindAssertContains    = "assert_contains"
	KindAssertNotContains = "assert_not_contains"
)

// Execution phases. Every operation declares the phase it runs in; the
// executor skips operations whose phase is not in the requested set.
const (
	PhaseValidate = "validate"
	PhaseApply    = "apply"
)

// if_exists policies for write_file.
const (
	IfExistsSkip      = "skip"
	IfExistsError     = "error"
	IfExistsOverwrite = "overwrite"
)

// on_duplicate policies for replace_section when its idempotency marker is
// already present in the target.
const (
	OnDuplicateSkip         = "skip"
	OnDuplicateError        = "error"
	OnDuplicateReplaceAgain = "replace_again"
)

// EOL normalization modes for write_file content.
const (
	EOLPreserve = "preserve"
	EOLLF       = "lf"
	EOLCRLF     = "crlf"
)

// dry_run_effect values describe what a dry run does with an operation.
const (
	DryRunSkipWrite = "skip_write"
	DryRunNone      = "none"
)

// Op is the tagged union of all pipeline operations. Type selects the kind;
// the remaining fields are kind-specific and serialized with omitempty so the
// canonical encoding of each kind stays minimal.
//
// Field usage by kind:
//
//	write_file          path, content_base64, checksum_sha256, encoding,
//	                    eol_normalization, if_exists, expected_sha256_before
//	replace_section     file, start_regex, end_regex, replacement_base64,
//	                    allow_multiple_matches, on_duplicate,
//	                    idempotency_marker, verify_preview_sha256
//	locate              name, glob, must_contain
//	assert_contains     path, must_contain
//	assert_not_contains path, must_not_contain
//
// path and file values may reference a variable bound by an earlier locate
// via the $name syntax.
type Op struct {
	Type  string `json:"type" validate:"required,oneof=write_file replace_section locate assert_contains assert_not_contains"`
	Phase string `json:"phase,omitempty" validate:"omitempty,oneof=validate apply"`

	// DryRunEffect records what a dry run does with this operation.
	DryRunEffect string `json:"dry_run_effect,omitempty"`

	// Source is a provenance tag identifying who authored the operation.
	Source string `json:"source,omitempty"`

	// write_file fields.
	Path                 string `json:"path,omitempty"`
	ContentBase64        string `json:"content_base64,omitempty"`
	ChecksumSHA256       string `json:"checksum_sha256,omitempty" validate:"omitempty,hexadecimal,len=64"`
	Encoding             string `json:"encoding,omitempty"`
	EOLNormalization     string `json:"eol_normalization,omitempty" validate:"omitempty,oneof=preserve lf crlf"`
	IfExists             string `json:"if_exists,omitempty"`
	ExpectedSHA256Before string `json:"expected_sha256_before,omitempty" validate:"omitempty,hexadecimal,len=64"`

	// replace_section fields.
	File                 string `json:"file,omitempty"`
	StartRegex           string `json:"start_regex,omitempty"`
	EndRegex             string `json:"end_regex,omitempty"`
	ReplacementBase64    string `json:"replacement_base64,omitempty"`
	AllowMultipleMatches bool   `json:"allow_multiple_matches,omitempty"`
	OnDuplicate          string `json:"on_duplicate,omitempty" validate:"omitempty,oneof=skip error replace_again"`
	IdempotencyMarker    string `json:"idempotency_marker,omitempty"`
	VerifyPreviewSHA256  string `json:"verify_preview_sha256,omitempty" validate:"omitempty,hexadecimal,len=64"`

	// locate fields. Name is the variable bound to the first match.
	Name string `json:"name,omitempty"`
	Glob string `json:"glob,omitempty"`

	// Substring requirements shared by locate and assert_contains.
	MustContain []string `json:"must_contain,omitempty"`

	// Forbidden substrings for assert_not_contains.
	MustNotContain []string `json:"must_not_contain,omitempty"`
}

// Target returns the filesystem path an operation addresses: path for
// write_file and the assertions, file for replace_section. Empty for locate,
// which addresses a glob rather than a single path.
func (o Op) Target() string {
	if o.Type == KindReplaceSection {
		return o.File
	}
	return o.Path
}

// Mutates reports whether the operation writes to the filesystem.
func (o Op) Mutates() bool {
	return o.Type == KindWriteFile || o.Type == KindReplaceSection
}
