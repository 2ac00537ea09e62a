// Package patcher rewrites a single marked value inside a text file without
// parsing the file's format.
//
// A marker is a comment of the form
//
//	# gitops-replacer: <name>
//
// and binds <name> to the line directly below it. Only the value token of that
// line is rewritten; key, indentation, list-item dash, quoting style and any
// trailing inline comment are kept byte-for-byte. Every other line of the file
// is returned untouched.
package patcher

import (
	"regexp"
	"strings"
)

// MarkerKeyword is the keyword that follows the comment sign in a marker line.
const MarkerKeyword = "gitops-replacer"

var (
	markerPattern = regexp.MustCompile(`#\s*` + regexp.QuoteMeta(MarkerKeyword) + `:\s*(\S+)`)

	// prefix, opening quote, raw value, closing quote, trailing comment.
	assignmentPattern = regexp.MustCompile(`^(\s*(?:-\s+)?[\w-]+:\s*)(["']?)([^"'#\n]*)(["']?)(\s*#.*)?$`)
)

// Result is the outcome of Replace.
type Result struct {
	// Content is the full reconstructed file.
	Content string

	// OldValue is the value found on the marked line. Only meaningful when
	// HasOldValue is true.
	OldValue    string
	HasOldValue bool

	// Changed reports whether Content differs from the input.
	Changed bool

	// MarkerLine is the 1-based line number of the marker, or 0 when no marker
	// with the requested name exists.
	MarkerLine int

	// Malformed is set when a marker was found but the line below it is not a
	// recognizable "key: value" assignment (or the marker is the last line).
	Malformed bool
}

// MarkerFound reports whether the requested marker exists in the input.
func (r Result) MarkerFound() bool {
	return r.MarkerLine > 0
}

// Assignment is the structural decomposition of a value line.
//
// String() of an unmodified Assignment reproduces the original line exactly.
type Assignment struct {
	// Prefix holds indentation, optional "- ", key, colon and separating whitespace.
	Prefix string
	// Quote is `"`, `'` or empty. Opening and closing quotes are always equal.
	Quote string
	// Value is the literal value without trailing whitespace.
	Value string
	// Gap is whitespace between the value (or its closing quote) and Comment.
	Gap string
	// Comment is the inline comment including its leading whitespace and '#'.
	Comment string
}

func (a Assignment) String() string {
	var b strings.Builder
	b.Grow(len(a.Prefix) + len(a.Value) + 2*len(a.Quote) + len(a.Gap) + len(a.Comment))
	b.WriteString(a.Prefix)
	b.WriteString(a.Quote)
	b.WriteString(a.Value)
	b.WriteString(a.Quote)
	b.WriteString(a.Gap)
	b.WriteString(a.Comment)
	return b.String()
}

// WithValue returns a copy of a carrying v as its value.
func (a Assignment) WithValue(v string) Assignment {
	out := a
	out.Value = v
	// "key:" followed directly by a bare value would stop being a mapping.
	if out.Quote == "" && a.Value == "" && v != "" && !endsWithSpace(out.Prefix) {
		out.Prefix += " "
	}
	return out
}

// MatchAssignment decomposes line into an Assignment. It fails closed: any
// line that is not a plain `key: value`, `- key: value`, quoted variant, or one
// of those followed by a single inline comment is reported as no match.
func MatchAssignment(line string) (Assignment, bool) {
	m := assignmentPattern.FindStringSubmatch(line)
	if m == nil {
		return Assignment{}, false
	}
	open, raw, closing := m[2], m[3], m[4]
	if open != closing {
		return Assignment{}, false
	}

	a := Assignment{Prefix: m[1], Quote: open, Comment: m[5]}
	if open == "" {
		a.Value = strings.TrimRight(raw, " \t")
		a.Gap = raw[len(a.Value):]
	} else {
		// Inside quotes the value is taken verbatim; only the reported value is
		// trimmed so that `"v1 "` compares equal to v1.
		a.Value = raw
	}

	if comment := a.Comment; comment != "" {
		trimmed := strings.TrimLeft(comment, " \t")
		a.Gap += comment[:len(comment)-len(trimmed)]
		a.Comment = trimmed
	}
	return a, true
}

// ParseMarker returns the name bound by a marker comment on line.
func ParseMarker(line string) (string, bool) {
	m := markerPattern.FindStringSubmatch(line)
	if m == nil {
		return "", false
	}
	return m[1], true
}

type state int

const (
	awaitingMarker state = iota
	awaitingValue
	settled
)

// Replace sets the value on the line following the first marker named name to
// value.
//
// Lines are split and re-joined on "\n". A trailing "\r" is detached before
// matching and re-attached afterwards so CRLF files keep their line endings.
func Replace(content, name, value string) Result {
	lines := strings.Split(content, "\n")
	res := Result{}
	st := awaitingMarker

	for i, line := range lines {
		switch st {
		case awaitingMarker:
			if got, ok := ParseMarker(line); ok && got == name {
				st = awaitingValue
				res.MarkerLine = i + 1
			}
		case awaitingValue:
			st = settled

			body, eol := splitCR(line)
			a, ok := MatchAssignment(body)
			if !ok {
				res.Malformed = true
				continue
			}
			res.OldValue = strings.TrimRight(a.Value, " \t")
			res.HasOldValue = true
			if res.OldValue == value {
				continue
			}
			lines[i] = a.WithValue(value).String() + eol
			res.Changed = true
		}
	}

	// Marker on the last line: nothing to patch.
	if st == awaitingValue {
		res.Malformed = true
	}

	res.Content = strings.Join(lines, "\n")
	return res
}

func splitCR(line string) (string, string) {
	if strings.HasSuffix(line, "\r") {
		return line[:len(line)-1], "\r"
	}
	return line, ""
}

func endsWithSpace(s string) bool {
	return strings.HasSuffix(s, " ") || strings.HasSuffix(s, "\t")
}
