package output

import (
	"fmt"
	"os"
	"strings"
	"sync"
)

// ReportSink renders a Markdown summary of a run on Close.
type ReportSink struct {
	path    string
	file    *os.File
	mu      sync.Mutex
	results []Result

	started      *Event
	exitCode     int
	haveExitCode bool
}

func NewReportSink(path string) (*ReportSink, error) {
	if path == "" {
		return nil, fmt.Errorf("report path required")
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create report file: %w", err)
	}

	return &ReportSink{
		path: path,
		file: f,
	}, nil
}

func (s *ReportSink) Write(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch t := v.(type) {
	case Result:
		s.results = append(s.results, t)
	case Event:
		switch t.Type {
		case EventRunStarted:
			ev := t
			s.started = &ev
		case EventRunFinished:
			s.exitCode = t.ExitCode
			s.haveExitCode = true
		}
	}
	return nil
}

func (s *ReportSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.file.WriteString(s.render()); err != nil {
		_ = s.file.Close()
		return err
	}
	return s.file.Close()
}

func (s *ReportSink) render() string {
	counts := make(map[Status]int)
	var changes, attention, skipped []Result
	for _, r := range s.results {
		counts[r.Status]++
		switch r.Status {
		case StatusChanged, StatusApplied:
			changes = append(changes, r)
		case StatusInvalid, StatusError, StatusNoMarker:
			attention = append(attention, r)
		case StatusSkipped:
			skipped = append(skipped, r)
		}
	}

	var b strings.Builder
	b.WriteString("# gitops-replacer Run Report\n\n")

	// --- Run ---
	if s.started != nil {
		mode := "preview (no changes written)"
		if s.started.Apply {
			mode = "apply"
		}
		b.WriteString(fmt.Sprintf("- **Value**: %s\n", code(s.started.Value)))
		b.WriteString(fmt.Sprintf("- **Mode**: %s\n", mode))
		if s.started.Ref != "" {
			b.WriteString(fmt.Sprintf("- **Ref**: %s\n", code(s.started.Ref)))
		}
		b.WriteString(fmt.Sprintf("- **Targets**: %d\n", s.started.Targets))
	}
	if s.haveExitCode {
		b.WriteString(fmt.Sprintf("- **Exit code**: %d\n", s.exitCode))
	}
	b.WriteString("\n")

	// --- Summary ---
	b.WriteString("## Summary\n\n")
	if len(s.results) == 0 {
		b.WriteString("No targets were processed.\n\n")
	} else {
		b.WriteString("| Status | Targets |\n")
		b.WriteString("| --- | ---: |\n")
		for _, st := range statusOrder {
			if counts[st] == 0 {
				continue
			}
			b.WriteString(fmt.Sprintf("| %s | %d |\n", st, counts[st]))
		}
		b.WriteString("\n")
	}

	// --- Changes ---
	b.WriteString("## Changes\n\n")
	if len(changes) == 0 {
		b.WriteString("- None\n\n")
	} else {
		b.WriteString("| Target | Marker | From | To | Commit |\n")
		b.WriteString("| --- | --- | --- | --- | --- |\n")
		for _, r := range changes {
			commit := "not written"
			if r.Status == StatusApplied {
				commit = code(shortSHA(r.CommitSHA))
				if r.CommitURL != "" {
					commit = fmt.Sprintf("[%s](%s)", shortSHA(r.CommitSHA), r.CommitURL)
				}
			}
			b.WriteString(fmt.Sprintf("| %s | %s | %s | %s | %s |\n", cell(r.Target()), code(r.DepName), code(r.OldValue), code(r.NewValue), commit))
		}
		b.WriteString("\n")
	}

	// --- Needs attention ---
	b.WriteString("## Needs attention\n\n")
	if len(attention) == 0 {
		b.WriteString("- None\n\n")
	} else {
		for _, g := range groupByReason(attention) {
			b.WriteString(fmt.Sprintf("- **%s**: %s\n", g.Reason, formatTargetList(g.Targets, 5)))
		}
		b.WriteString("\n")
	}

	// --- Skipped by reference policy ---
	b.WriteString("## Skipped\n\n")
	if len(skipped) == 0 {
		b.WriteString("- None\n\n")
	} else {
		for _, r := range skipped {
			b.WriteString(fmt.Sprintf("- %s (%s)", r.Target(), r.DepName))
			if r.Message != "" {
				b.WriteString(": " + r.Message)
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	// --- Per-target status ---
	b.WriteString("## Per-target status\n\n")
	if len(s.results) == 0 {
		b.WriteString("- None\n")
		return b.String()
	}
	b.WriteString("| Target | Marker | Phase | Status | Detail |\n")
	b.WriteString("| --- | --- | --- | --- | --- |\n")
	for _, r := range s.results {
		b.WriteString(fmt.Sprintf("| %s | %s | %s | %s | %s |\n", cell(r.Target()), code(r.DepName), r.Phase, r.Status, cell(r.Message)))
	}
	return b.String()
}

func shortSHA(sha string) string {
	if len(sha) > 7 {
		return sha[:7]
	}
	return sha
}
