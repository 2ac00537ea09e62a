package engine

import (
	"fmt"
	"strings"

	"github.com/aymerick/raymond"
)

const positionalPlaceholder = "{}"

// messageTemplate renders commit messages. A template without "{{" is
// positional: up to two "{}" are filled with the marker name and the new
// value, in that order. Anything else is a handlebars template.
type messageTemplate struct {
	source string
	tpl    *raymond.Template
}

type messageData struct {
	DepName    string
	Value      string
	OldValue   string
	Repository string
	Branch     string
	File       string
}

func compileMessage(source string) (*messageTemplate, error) {
	if strings.TrimSpace(source) == "" {
		return nil, fmt.Errorf("commit message must not be empty")
	}
	if !strings.Contains(source, "{{") {
		if n := strings.Count(source, positionalPlaceholder); n > 2 {
			return nil, fmt.Errorf("commit message has %d %q placeholders, at most 2 are filled (depName, value)", n, positionalPlaceholder)
		}
		return &messageTemplate{source: source}, nil
	}

	tpl, err := raymond.Parse(source)
	if err != nil {
		return nil, fmt.Errorf("parse commit message template: %w", err)
	}
	return &messageTemplate{source: source, tpl: tpl}, nil
}

func (m *messageTemplate) render(d messageData) (string, error) {
	if m.tpl == nil {
		parts := strings.Split(m.source, positionalPlaceholder)
		args := []string{d.DepName, d.Value}
		var b strings.Builder
		for i, p := range parts {
			b.WriteString(p)
			if i < len(parts)-1 {
				b.WriteString(args[i])
			}
		}
		return b.String(), nil
	}

	// SafeString keeps raymond from HTML-escaping values such as "a&b".
	out, err := m.tpl.Exec(map[string]interface{}{
		"depName":    raymond.SafeString(d.DepName),
		"value":      raymond.SafeString(d.Value),
		"oldValue":   raymond.SafeString(d.OldValue),
		"repository": raymond.SafeString(d.Repository),
		"branch":     raymond.SafeString(d.Branch),
		"file":       raymond.SafeString(d.File),
	})
	if err != nil {
		return "", fmt.Errorf("render commit message: %w", err)
	}
	return out, nil
}
