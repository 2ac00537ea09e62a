package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/fatih/color"
)

type ConsoleSink struct {
	writer          io.Writer
	format          string // "text", "json", "ndjson"
	mu              sync.Mutex
	results         []Result // For JSON array output
	allowedStatuses map[string]bool
	colors          map[Status]*color.Color
}

func NewConsoleSink(w io.Writer, format string, filterStatuses []string) *ConsoleSink {
	colorize := false
	if w == nil {
		w = os.Stdout
		colorize = !color.NoColor
	}
	if format == "" {
		format = "text"
	}

	s := &ConsoleSink{
		writer: w,
		format: format,
	}
	if colorize {
		s.colors = statusColors()
	}

	if len(filterStatuses) > 0 {
		s.allowedStatuses = make(map[string]bool)
		for _, st := range filterStatuses {
			s.allowedStatuses[strings.ToUpper(st)] = true
		}
	}

	return s
}

func statusColors() map[Status]*color.Color {
	return map[Status]*color.Color{
		StatusApplied:   color.New(color.FgGreen, color.Bold),
		StatusChanged:   color.New(color.FgCyan),
		StatusUnchanged: color.New(color.Faint),
		StatusSkipped:   color.New(color.Faint),
		StatusNoMarker:  color.New(color.FgYellow),
		StatusError:     color.New(color.FgRed, color.Bold),
		StatusInvalid:   color.New(color.FgRed, color.Bold),
	}
}

func (s *ConsoleSink) statusTag(st Status) string {
	tag := "[" + string(st) + "]"
	if c, ok := s.colors[st]; ok {
		return c.Sprint(tag)
	}
	return tag
}

func (s *ConsoleSink) Write(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeLocked(v)
}

func (s *ConsoleSink) writeLocked(v any) error {
	printf := func(format string, args ...any) error {
		_, err := fmt.Fprintf(s.writer, format, args...)
		return err
	}

	// Apply filtering if configured
	if len(s.allowedStatuses) > 0 {
		if r, ok := v.(Result); ok {
			if !s.allowedStatuses[string(r.Status)] {
				return nil
			}
		}
	}

	switch s.format {
	case "json":
		r, ok := v.(Result)
		if !ok {
			// Ignore non-result events in JSON console mode.
			return nil
		}
		s.results = append(s.results, r)
		return nil
	case "ndjson":
		encoder := json.NewEncoder(s.writer)
		switch t := v.(type) {
		case Event:
			if err := encoder.Encode(t); err != nil {
				return err
			}
			return flushIfPossible(s.writer)
		case Result:
			e := eventFromResult(t)
			if err := encoder.Encode(e); err != nil {
				return err
			}
			return flushIfPossible(s.writer)
		default:
			return nil
		}
	case "text":
		r, ok := v.(Result)
		if !ok {
			// Ignore events in text mode.
			return nil
		}
		if err := printf("%s %s (%s)", s.statusTag(r.Status), r.Target(), r.DepName); err != nil {
			return err
		}
		if detail := valueTransition(r); detail != "" {
			if err := printf(": %s", detail); err != nil {
				return err
			}
		}
		if r.Message != "" {
			if err := printf(" - %s", r.Message); err != nil {
				return err
			}
		}
		if err := printf("\n"); err != nil {
			return err
		}
		return flushIfPossible(s.writer)
	default:
		return fmt.Errorf("unsupported console format: %s", s.format)
	}
}

// valueTransition renders the old/new value pair of a result, if any.
func valueTransition(r Result) string {
	switch r.Status {
	case StatusChanged, StatusApplied:
		return fmt.Sprintf("%s -> %s", r.OldValue, r.NewValue)
	case StatusUnchanged:
		return r.OldValue
	}
	return ""
}

func (s *ConsoleSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.format == "json" {
		encoder := json.NewEncoder(s.writer)
		encoder.SetIndent("", "  ")
		results := s.results
		if results == nil {
			results = []Result{}
		}
		if err := encoder.Encode(results); err != nil {
			return err
		}
		return flushIfPossible(s.writer)
	}
	if s.format != "text" && s.format != "ndjson" {
		return fmt.Errorf("unsupported console format: %s", s.format)
	}
	return nil
}
