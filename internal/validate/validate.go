// Package validate checks a script and its target filename against the
// Pybricks firmware's loading rules before any radio time is spent.
package validate

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

const (
	// BannedImport is the official LEGO firmware module. Pybricks does not
	// ship it, and scripts must go through the pybricks package instead.
	BannedImport = "import hub"
	// RequiredImport must appear within HeaderLines lines of the top.
	RequiredImport = "from pybricks"
	// HeaderLines is how far down RequiredImport is searched for.
	HeaderLines = 10
	// ScriptExt is the only extension the hub loader accepts.
	ScriptExt = ".py"
)

var baseNamePattern = regexp.MustCompile(`^[a-z0-9_]+$`)

// Rule identifies which check produced a Violation.
type Rule string

const (
	RuleBannedImport  Rule = "banned-import"
	RuleMissingHeader Rule = "missing-header"
	RuleTabs          Rule = "tabs"
	RuleFilename      Rule = "filename"
)

// Violation is one failed check.
type Violation struct {
	Rule    Rule
	Message string
	Fatal   bool
}

// Report is the ordered list of violations for one payload. A report with
// no fatal violations is valid.
type Report struct {
	Violations []Violation
}

// Valid reports whether the payload may be uploaded.
func (r Report) Valid() bool {
	for _, v := range r.Violations {
		if v.Fatal {
			return false
		}
	}
	return true
}

// Errors returns the fatal violation messages in order.
func (r Report) Errors() []string {
	return r.messages(true)
}

// Warnings returns the non-fatal violation messages in order.
func (r Report) Warnings() []string {
	return r.messages(false)
}

func (r Report) messages(fatal bool) []string {
	var out []string
	for _, v := range r.Violations {
		if v.Fatal == fatal {
			out = append(out, v.Message)
		}
	}
	return out
}

// Has reports whether the report contains a violation of rule.
func (r Report) Has(rule Rule) bool {
	for _, v := range r.Violations {
		if v.Rule == rule {
			return true
		}
	}
	return false
}

func (r Report) String() string {
	msgs := make([]string, len(r.Violations))
	for i, v := range r.Violations {
		msgs[i] = v.Message
	}
	return strings.Join(msgs, " | ")
}

// Policy tunes the content rules.
type Policy struct {
	// AllowTabs downgrades the tab check to a warning.
	AllowTabs bool
}

// DefaultPolicy treats every rule as fatal.
func DefaultPolicy() Policy {
	return Policy{}
}

// Validate checks payload with the default policy.
func Validate(payload string) Report {
	return DefaultPolicy().Validate(payload)
}

// Validate runs every content rule and aggregates the results.
func (p Policy) Validate(payload string) Report {
	var r Report

	if strings.Contains(payload, BannedImport) {
		r.Violations = append(r.Violations, Violation{
			Rule:    RuleBannedImport,
			Message: fmt.Sprintf("%q is from the official firmware. Use 'from pybricks.hubs import ...' instead.", BannedImport),
			Fatal:   true,
		})
	}

	if !strings.Contains(header(payload, HeaderLines), RequiredImport) {
		r.Violations = append(r.Violations, Violation{
			Rule:    RuleMissingHeader,
			Message: fmt.Sprintf("missing required header: script must begin with Pybricks imports (e.g., 'from pybricks.hubs import InventorHub') within the first %d lines.", HeaderLines),
			Fatal:   true,
		})
	}

	if strings.ContainsRune(payload, '\t') {
		r.Violations = append(r.Violations, Violation{
			Rule:    RuleTabs,
			Message: "script contains tabs. Pybricks expects 4-space indentation.",
			Fatal:   !p.AllowTabs,
		})
	}

	return r
}

// ValidateScript checks the target filename and then the payload. A bad
// filename is reported as the first violation.
func (p Policy) ValidateScript(filename, payload string) Report {
	r := p.Validate(payload)
	if err := ValidateFilename(filename); err != nil {
		r.Violations = append([]Violation{{
			Rule:    RuleFilename,
			Message: err.Error(),
			Fatal:   true,
		}}, r.Violations...)
	}
	return r
}

// header returns the first n lines of s.
func header(s string, n int) string {
	lines := strings.SplitN(s, "\n", n+1)
	if len(lines) > n {
		lines = lines[:n]
	}
	return strings.Join(lines, "\n")
}

// ErrFilename is wrapped by every ValidateFilename failure.
var ErrFilename = errors.New("invalid filename")

// ValidateFilename checks that name is loadable by the hub: a ".py"
// extension and a base name of lowercase letters, digits and underscores.
func ValidateFilename(name string) error {
	if !strings.HasSuffix(name, ScriptExt) {
		return fmt.Errorf("%w: %q must end with %s", ErrFilename, name, ScriptExt)
	}
	base := strings.TrimSuffix(name, ScriptExt)
	if !baseNamePattern.MatchString(base) {
		return fmt.Errorf("%w: %q may only contain lowercase letters, numbers, and underscores", ErrFilename, name)
	}
	return nil
}
