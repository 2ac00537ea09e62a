// Package gate decides whether a target takes part in a run based on the git
// reference that triggered it.
package gate

import (
	"fmt"
	"regexp"
)

// Policy holds the compiled inclusion (when) and exclusion (except) patterns of
// one target. A nil pattern is not evaluated.
type Policy struct {
	When   *regexp.Regexp
	Except *regexp.Regexp
}

// Decision explains the outcome of Evaluate.
type Decision struct {
	Eligible bool
	Reason   string
}

// Compile builds a Policy, treating an empty pattern as absent. Patterns are
// anchored at the start of the reference only, so "refs/heads/main" also
// matches "refs/heads/main-hotfix".
func Compile(when, except string) (Policy, error) {
	return CompilePatterns(nonEmpty(when), nonEmpty(except))
}

// CompilePatterns builds a Policy from optional patterns. A nil pattern is not
// evaluated. A present but empty pattern matches every reference, so an empty
// except excludes the target in every gated run.
func CompilePatterns(when, except *string) (Policy, error) {
	var p Policy
	if when != nil {
		re, err := compileAnchored(*when)
		if err != nil {
			return Policy{}, fmt.Errorf("invalid when pattern %q: %w", *when, err)
		}
		p.When = re
	}
	if except != nil {
		re, err := compileAnchored(*except)
		if err != nil {
			return Policy{}, fmt.Errorf("invalid except pattern %q: %w", *except, err)
		}
		p.Except = re
	}
	return p, nil
}

func nonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// IsZero reports whether p has no patterns at all.
func (p Policy) IsZero() bool {
	return p.When == nil && p.Except == nil
}

// Evaluate matches ref against the policy. An absent reference is passed as "".
// Inclusion is checked first; exclusion can still reject a reference that passed
// inclusion.
func (p Policy) Evaluate(ref string) Decision {
	if p.When != nil {
		if !p.When.MatchString(ref) {
			return Decision{Reason: fmt.Sprintf("git-ref %q does not match when pattern (%q)", ref, source(p.When))}
		}
	}
	if p.Except != nil {
		if p.Except.MatchString(ref) {
			return Decision{Reason: fmt.Sprintf("git-ref %q matches except pattern (%q)", ref, source(p.Except))}
		}
	}
	return Decision{Eligible: true, Reason: fmt.Sprintf("git-ref %q passes reference policy", ref)}
}

const anchorPrefix, anchorSuffix = `^(?:`, `)`

func compileAnchored(pattern string) (*regexp.Regexp, error) {
	return regexp.Compile(anchorPrefix + pattern + anchorSuffix)
}

// source returns the pattern as the user wrote it.
func source(re *regexp.Regexp) string {
	s := re.String()
	return s[len(anchorPrefix) : len(s)-len(anchorSuffix)]
}
