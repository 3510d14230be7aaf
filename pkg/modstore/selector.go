package modstore

import (
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/loomctl/loom/pkg/ops"
)

// SelectorSpec is the wire form of an operation selector. Exactly one
// predicate must be set; compiled selectors are a closed union of four
// variants.
type SelectorSpec struct {
	// WriteFilePath matches write_file operations targeting this path.
	WriteFilePath string `json:"write_file_path,omitempty"`

	// File matches replace_section operations targeting this file.
	File string `json:"file,omitempty"`

	// OpType matches operations of this kind.
	OpType string `json:"op_type,omitempty"`

	// Field plus Regex match operations whose named field matches the
	// pattern. Both must be set together.
	Field string `json:"field,omitempty"`
	Regex string `json:"regex,omitempty"`
}

// Selector matches operations inside module files.
type Selector interface {
	Match(op ops.Op) bool
	String() string
}

// ByPath selects write_file operations by exact target path.
type ByPath struct {
	Path string
}

func (s ByPath) Match(op ops.Op) bool {
	return op.Type == ops.KindWriteFile && op.Path == s.Path
}

func (s ByPath) String() string {
	return fmt.Sprintf("write_file_path=%s", s.Path)
}

// ByFile selects replace_section operations by exact target file.
type ByFile struct {
	File string
}

func (s ByFile) Match(op ops.Op) bool {
	return op.Type == ops.KindReplaceSection && op.File == s.File
}

func (s ByFile) String() string {
	return fmt.Sprintf("file=%s", s.File)
}

// ByOpKind selects operations by kind.
type ByOpKind struct {
	Kind string
}

func (s ByOpKind) Match(op ops.Op) bool {
	return op.Type == s.Kind
}

func (s ByOpKind) String() string {
	return fmt.Sprintf("op_type=%s", s.Kind)
}

// ByRegexField selects operations whose named string field matches a
// compiled pattern. Field names are the JSON names used in module files.
type ByRegexField struct {
	Field   string
	Pattern *regexp.Regexp
}

func (s ByRegexField) Match(op ops.Op) bool {
	encoded, err := json.Marshal(op)
	if err != nil {
		return false
	}
	var fields map[string]interface{}
	if err := json.Unmarshal(encoded, &fields); err != nil {
		return false
	}
	value, ok := fields[s.Field].(string)
	if !ok {
		return false
	}
	return s.Pattern.MatchString(value)
}

func (s ByRegexField) String() string {
	return fmt.Sprintf("%s=~%s", s.Field, s.Pattern)
}

// Compile turns a selector spec into its matching variant. A spec with zero
// or more than one predicate is a structural error.
func (spec SelectorSpec) Compile() (Selector, error) {
	var compiled []Selector

	if spec.WriteFilePath != "" {
		compiled = append(compiled, ByPath{Path: spec.WriteFilePath})
	}
	if spec.File != "" {
		compiled = append(compiled, ByFile{File: spec.File})
	}
	if spec.OpType != "" {
		compiled = append(compiled, ByOpKind{Kind: spec.OpType})
	}
	if spec.Field != "" || spec.Regex != "" {
		if spec.Field == "" || spec.Regex == "" {
			return nil, ops.NewStructuralError("selector field and regex must be set together", nil)
		}
		pattern, err := regexp.Compile(spec.Regex)
		if err != nil {
			return nil, ops.NewStructuralError("selector regex does not compile", err)
		}
		compiled = append(compiled, ByRegexField{Field: spec.Field, Pattern: pattern})
	}

	if len(compiled) != 1 {
		return nil, ops.NewStructuralError(
			fmt.Sprintf("selector must set exactly one predicate, got %d", len(compiled)), nil)
	}
	return compiled[0], nil
}
