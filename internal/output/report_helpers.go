package output

import (
	"fmt"
	"sort"
	"strings"
)

// statusOrder is the order statuses appear in the report summary, most
// actionable first.
var statusOrder = []Status{
	StatusInvalid,
	StatusError,
	StatusNoMarker,
	StatusApplied,
	StatusChanged,
	StatusUnchanged,
	StatusSkipped,
}

// normalizeErrorReason collapses whitespace, strips wrapping prefixes, and maps known patterns.
func normalizeErrorReason(errText string) string {
	s := strings.Join(strings.Fields(errText), " ")

	// Drop "get acme/deploy@main:path: " style prefixes; the report already
	// names the target.
	for _, prefix := range []string{"get ", "put ", "fetch ", "write "} {
		if strings.HasPrefix(s, prefix) {
			if idx := strings.Index(s, ": "); idx != -1 {
				s = s[idx+2:]
			}
			break
		}
	}

	lower := strings.ToLower(s)
	switch {
	case strings.HasPrefix(lower, "conflict") || strings.HasPrefix(lower, "409"):
		return "409 Conflict: file changed since it was read"
	case strings.HasPrefix(lower, "unauthorized") || strings.HasPrefix(lower, "401"):
		return "401 Unauthorized: token has no access to the repository"
	case strings.HasPrefix(lower, "not found") || strings.HasPrefix(lower, "404"):
		return "404 Not Found: repository, branch, or file does not exist"
	}

	if len(s) > 120 {
		return s[:117] + "..."
	}
	return s
}

type reasonGroup struct {
	Reason  string
	Targets []string
}

// groupByReason buckets failing results by normalized message, largest group first.
func groupByReason(results []Result) []reasonGroup {
	byReason := make(map[string][]string)
	for _, r := range results {
		reason := normalizeErrorReason(r.Message)
		if reason == "" {
			reason = string(r.Status)
		}
		byReason[reason] = append(byReason[reason], r.Target())
	}

	groups := make([]reasonGroup, 0, len(byReason))
	for reason, targets := range byReason {
		sort.Strings(targets)
		groups = append(groups, reasonGroup{Reason: reason, Targets: targets})
	}
	sort.Slice(groups, func(i, j int) bool {
		if len(groups[i].Targets) != len(groups[j].Targets) {
			return len(groups[i].Targets) > len(groups[j].Targets)
		}
		return groups[i].Reason < groups[j].Reason
	})
	return groups
}

func formatTargetList(targets []string, max int) string {
	if len(targets) == 0 {
		return ""
	}
	if len(targets) <= max {
		return fmt.Sprintf("%d targets (%s)", len(targets), strings.Join(targets, ", "))
	}
	return fmt.Sprintf("%d targets (%s, +%d more)", len(targets), strings.Join(targets[:max], ", "), len(targets)-max)
}

// cell makes a value safe for a Markdown table cell.
func cell(s string) string {
	if s == "" {
		return "-"
	}
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.ReplaceAll(s, "\n", " ")
}

func code(s string) string {
	if s == "" {
		return "-"
	}
	return "`" + cell(s) + "`"
}
