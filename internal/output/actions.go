package output

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"

	actions "github.com/sethvargo/go-githubactions"
)

// ActionsSink reports results to a GitHub Actions runner: one annotation per
// target that needs attention, step outputs (changed, applied, failed) and, if
// the runner provides one, a step summary.
type ActionsSink struct {
	mu     sync.Mutex
	action *actions.Action
	getenv func(string) string

	changed int
	applied int
	failed  int
	rows    []string
}

// NewActionsSink writes workflow commands to w. getenv resolves the runner's
// file command paths (GITHUB_OUTPUT, GITHUB_STEP_SUMMARY); nil means os.Getenv.
func NewActionsSink(w io.Writer, getenv func(string) string) *ActionsSink {
	if w == nil {
		w = os.Stdout
	}
	if getenv == nil {
		getenv = os.Getenv
	}
	return &ActionsSink{
		action: actions.New(actions.WithWriter(w), actions.WithGetenv(getenv)),
		getenv: getenv,
	}
}

func (s *ActionsSink) Write(v any) error {
	r, ok := v.(Result)
	if !ok {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	a := s.action.WithFieldsMap(map[string]string{"title": fmt.Sprintf("%s (%s)", r.Target(), r.DepName)})
	switch r.Status {
	case StatusInvalid, StatusError:
		s.failed++
		a.Errorf("%s", r.Message)
	case StatusNoMarker:
		a.Warningf("%s", r.Message)
	case StatusChanged:
		s.changed++
		a.Noticef("would update %s from %s to %s", r.DepName, r.OldValue, r.NewValue)
	case StatusApplied:
		s.changed++
		s.applied++
		a.Noticef("updated %s from %s to %s", r.DepName, r.OldValue, r.NewValue)
	}

	if r.Status != StatusSkipped {
		s.rows = append(s.rows, fmt.Sprintf("| %s | %s | %s |", cell(r.Target()), code(r.DepName), r.Status))
	}
	return nil
}

func (s *ActionsSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// SetOutput panics without a GITHUB_OUTPUT file, e.g. outside a runner.
	if s.getenv("GITHUB_OUTPUT") != "" {
		s.action.SetOutput("changed", strconv.Itoa(s.changed))
		s.action.SetOutput("applied", strconv.Itoa(s.applied))
		s.action.SetOutput("failed", strconv.Itoa(s.failed))
	}

	if s.getenv("GITHUB_STEP_SUMMARY") != "" && len(s.rows) > 0 {
		var b strings.Builder
		b.WriteString("### gitops-replacer\n\n")
		b.WriteString("| Target | Marker | Status |\n")
		b.WriteString("| --- | --- | --- |\n")
		for _, row := range s.rows {
			b.WriteString(row + "\n")
		}
		s.action.AddStepSummary(b.String())
	}
	return nil
}
