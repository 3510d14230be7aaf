// Package policy enforces path containment for mutating operations.
//
// A PathPolicy holds an allowlist and a denylist. Plain entries match by
// path prefix; entries containing glob metacharacters match with glob
// semantics (separator-aware, from gobwas/glob). An empty allowlist permits
// everything the denylist does not forbid. Every mutating operation's target
// is checked before any I/O, so a violation aborts with no side effect.
package policy

import (
	"path"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"

	"github.com/loomctl/loom/pkg/ops"
)

// PathPolicy is the compiled allow/deny path containment policy.
type PathPolicy struct {
	allow []rule
	deny  []rule
}

// rule is one compiled list entry. matcher is nil for prefix rules.
type rule struct {
	raw     string
	matcher glob.Glob
}

// New compiles a path policy from allow and deny entries. An entry with
// glob metacharacters that fails to compile is a structural error.
func New(allow, deny []string) (*PathPolicy, error) {
	p := &PathPolicy{}
	var err error
	if p.allow, err = compileRules(allow); err != nil {
		return nil, err
	}
	if p.deny, err = compileRules(deny); err != nil {
		return nil, err
	}
	return p, nil
}

func compileRules(entries []string) ([]rule, error) {
	rules := make([]rule, 0, len(entries))
	for _, entry := range entries {
		r := rule{raw: normalize(entry)}
		if strings.ContainsAny(entry, "*?[{") {
			matcher, err := glob.Compile(r.raw, '/')
			if err != nil {
				return nil, ops.NewStructuralError("invalid path pattern: "+entry, err)
			}
			r.matcher = matcher
		}
		rules = append(rules, r)
	}
	return rules, nil
}

// Check reports whether target may be mutated. A denylist hit or a miss
// against a non-empty allowlist is a policy error.
func (p *PathPolicy) Check(target string) error {
	clean := normalize(target)

	for _, r := range p.deny {
		if r.match(clean) {
			return ops.NewPolicyError("path is denied by policy", nil).
				WithCode(ops.ErrCodePathDenied).WithPath(target).
				WithDetail("rule", r.raw)
		}
	}

	if len(p.allow) == 0 {
		return nil
	}
	for _, r := range p.allow {
		if r.match(clean) {
			return nil
		}
	}
	return ops.NewPolicyError("path is outside the allowlist", nil).
		WithCode(ops.ErrCodePathDenied).WithPath(target)
}

// Empty reports whether the policy constrains nothing.
func (p *PathPolicy) Empty() bool {
	return len(p.allow) == 0 && len(p.deny) == 0
}

func (r rule) match(clean string) bool {
	if r.matcher != nil {
		return r.matcher.Match(clean)
	}
	return strings.HasPrefix(clean, r.raw)
}

// normalize puts paths and prefix rules into one comparable form: forward
// slashes, no leading ./, cleaned. Trailing slashes on prefix rules are
// kept so "src/" cannot match "srcery".
func normalize(p string) string {
	trailingSlash := strings.HasSuffix(p, "/")
	clean := path.Clean(filepath.ToSlash(p))
	if clean == "." {
		return ""
	}
	clean = strings.TrimPrefix(clean, "./")
	if trailingSlash {
		clean += "/"
	}
	return clean
}
