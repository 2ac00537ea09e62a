package engine

import (
	"fmt"
	"gitops-replacer/internal/config"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// filteredTarget is a target left out of the run by --only or --skip.
type filteredTarget struct {
	Target config.Target
	Reason string
}

// filterTargets splits targets by the --only and --skip globs. Patterns match
// OWNER/REPO/PATH; a pattern without a path component ("acme/*") also matches
// the repository name alone. With no --only patterns every target is selected.
func filterTargets(targets []config.Target, only, skip []string) ([]config.Target, []filteredTarget, error) {
	only, err := cleanPatterns("only", only)
	if err != nil {
		return nil, nil, err
	}
	skip, err = cleanPatterns("skip", skip)
	if err != nil {
		return nil, nil, err
	}

	var selected []config.Target
	var filtered []filteredTarget
	for _, t := range targets {
		if len(only) > 0 && !matchesAnyPattern(only, t) {
			filtered = append(filtered, filteredTarget{Target: t, Reason: "not selected by --only"})
			continue
		}
		if p, ok := firstMatch(skip, t); ok {
			filtered = append(filtered, filteredTarget{Target: t, Reason: fmt.Sprintf("excluded by --skip %q", p)})
			continue
		}
		selected = append(selected, t)
	}
	return selected, filtered, nil
}

func cleanPatterns(flag string, patterns []string) ([]string, error) {
	var out []string
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid --%s pattern %q", flag, p)
		}
		out = append(out, p)
	}
	return out, nil
}

func matchesAnyPattern(patterns []string, t config.Target) bool {
	_, ok := firstMatch(patterns, t)
	return ok
}

func firstMatch(patterns []string, t config.Target) (string, bool) {
	full := t.Repository + "/" + strings.TrimPrefix(t.File, "/")
	for _, p := range patterns {
		if ok, _ := doublestar.Match(p, full); ok {
			return p, true
		}
		if ok, _ := doublestar.Match(p, t.Repository); ok {
			return p, true
		}
	}
	return "", false
}
