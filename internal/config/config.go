package config

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"
)

const (
	DefaultConfigFile     = "gitops-replacer.json"
	DefaultCommitterName  = "Replacer Bot"
	DefaultCommitterEmail = "replacer-bot@localhost.localdomain"
	DefaultMessage        = "fix: update {} to {}"
	DefaultAPIURL         = "https://api.github.com"
)

type Config struct {
	// MAINTAINER NOTE: If you add/change/remove config fields that affect run
	// behavior, keep these in sync:
	// - CLI flags in internal/cli/root.go
	// - flag names in internal/flags
	Run     Run
	Commit  Commit
	GitHub  GitHub
	Output  Output
	Runtime Runtime
}

type Run struct {
	// ConfigFile is the batch file listing the targets (see --config).
	ConfigFile string

	// Value is the new value written at every marked location (positional argument).
	Value string

	// Apply writes changes back to the repositories (see --apply).
	// Without it the run only previews.
	Apply bool

	// CI enables reference-gated mode (see --ci). Each target's when/except
	// patterns are evaluated against Ref.
	CI bool

	// Ref is the git reference the run was triggered for, taken from
	// GITHUB_REF or GIT_REF. Required when CI is set.
	Ref string

	// Only restricts the run to targets matching any of these globs over
	// OWNER/REPO/PATH (see --only). Values may be comma-separated.
	Only []string

	// Skip drops targets matching any of these globs (see --skip).
	Skip []string
}

type Commit struct {
	// Name and Email identify the committer (see --name, --email).
	Name  string
	Email string

	// Message is the commit message template (see --message). A template
	// containing "{}" is filled positionally with the marker name and the new
	// value; otherwise it is rendered as a handlebars template.
	Message string
}

type GitHub struct {
	// APIURL is the REST endpoint (see --api).
	APIURL string

	// RequestTimeout bounds each API request including its retries.
	RequestTimeout time.Duration
}

type Output struct {
	// ConsoleFormat controls the human-facing console sink format (see --console-format).
	// Allowed values: text, json, ndjson.
	ConsoleFormat string

	// ConsoleFilterStatus filters console output by result status (see --console-filter-status).
	ConsoleFilterStatus []string

	// Report writes a Markdown report to this path (see --report).
	Report string

	// Out writes structured output to this path (see --out).
	Out string

	// OutFormat selects the format for --out (see --out-format).
	// Allowed values: json, ndjson. If empty, it is inferred from the --out file extension.
	OutFormat string

	// Emit writes an additional structured event stream to stdout (see --emit).
	Emit []string

	// NoConsole suppresses the console sink (see --no-console).
	NoConsole bool

	// Actions writes GitHub Actions annotations and step outputs (see --actions).
	Actions bool
}

type Runtime struct {
	// Timeout is the global timeout for the run (see --timeout).
	Timeout time.Duration

	// Verbose logs every API call and prints the source and desired file content.
	Verbose bool
}

// Statuses accepted by --console-filter-status.
var knownStatuses = []string{"SKIPPED", "NO_MARKER", "UNCHANGED", "CHANGED", "APPLIED", "ERROR", "INVALID"}

func New() *Config {
	return &Config{
		Run: Run{
			ConfigFile: DefaultConfigFile,
		},
		Commit: Commit{
			Name:    DefaultCommitterName,
			Email:   DefaultCommitterEmail,
			Message: DefaultMessage,
		},
		GitHub: GitHub{
			APIURL:         DefaultAPIURL,
			RequestTimeout: 30 * time.Second,
		},
		Output: Output{
			ConsoleFormat: "text",
		},
		Runtime: Runtime{
			Timeout: 10 * time.Minute,
		},
	}
}

func (c *Config) Validate() error {
	c.Run.Only = splitCommaList(c.Run.Only)
	c.Run.Skip = splitCommaList(c.Run.Skip)
	c.Output.ConsoleFilterStatus = splitCommaList(c.Output.ConsoleFilterStatus)

	// Run validation
	c.Run.ConfigFile = strings.TrimSpace(c.Run.ConfigFile)
	if c.Run.ConfigFile == "" {
		return errors.New("--config must not be empty")
	}
	if c.Run.Value == "" {
		return errors.New("a value is required")
	}
	if strings.ContainsAny(c.Run.Value, "\r\n") {
		return errors.New("value must be a single line")
	}
	if c.Run.CI && c.Run.Ref == "" {
		return errors.New("GITHUB_REF is not set (required in --ci mode)")
	}

	// Commit validation
	c.Commit.Name = strings.TrimSpace(c.Commit.Name)
	c.Commit.Email = strings.TrimSpace(c.Commit.Email)
	if c.Commit.Name == "" {
		return errors.New("--name must not be empty")
	}
	if c.Commit.Email == "" {
		return errors.New("--email must not be empty")
	}
	if strings.TrimSpace(c.Commit.Message) == "" {
		return errors.New("--message must not be empty")
	}

	// GitHub validation
	api, err := normalizeAPIURL(c.GitHub.APIURL)
	if err != nil {
		return fmt.Errorf("invalid --api value: %w", err)
	}
	c.GitHub.APIURL = api
	if c.GitHub.RequestTimeout <= 0 {
		return errors.New("request timeout must be > 0")
	}

	// Output validation
	c.Output.ConsoleFormat = normalizeEnumValue(c.Output.ConsoleFormat)
	if c.Output.ConsoleFormat == "" {
		return errors.New("--console-format must be one of: text, json, ndjson")
	}
	if c.Output.ConsoleFormat != "text" && c.Output.ConsoleFormat != "json" && c.Output.ConsoleFormat != "ndjson" {
		return fmt.Errorf("unsupported --console-format: %s (must be one of: text, json, ndjson)", c.Output.ConsoleFormat)
	}

	for i, raw := range c.Output.ConsoleFilterStatus {
		v := strings.ToUpper(strings.TrimSpace(raw))
		if !isKnownStatus(v) {
			return fmt.Errorf("unsupported --console-filter-status value: %s (must be one of: %s)", raw, strings.Join(knownStatuses, ", "))
		}
		c.Output.ConsoleFilterStatus[i] = v
	}

	for _, emit := range c.Output.Emit {
		v := normalizeEnumValue(emit)
		if v == "" {
			return errors.New("--emit must be one of: json, ndjson")
		}
		if v != "json" && v != "ndjson" {
			return fmt.Errorf("unsupported --emit value: %s (must be one of: json, ndjson)", v)
		}
	}

	// Runtime validation
	if c.Runtime.Timeout <= 0 {
		return errors.New("--timeout must be > 0")
	}

	if c.Output.Out != "" {
		c.Output.OutFormat = normalizeEnumValue(c.Output.OutFormat)
		if c.Output.OutFormat == "" {
			ext := strings.ToLower(filepath.Ext(c.Output.Out))
			switch ext {
			case ".json":
				c.Output.OutFormat = "json"
			case ".ndjson", ".jsonl":
				c.Output.OutFormat = "ndjson"
			default:
				if ext == "" {
					return errors.New("cannot infer output format from file extension (missing extension); use --out-format")
				}
				return fmt.Errorf("cannot infer output format from file extension %q; use --out-format", ext)
			}
		} else {
			if c.Output.OutFormat != "json" && c.Output.OutFormat != "ndjson" {
				return fmt.Errorf("unsupported output format: %s", c.Output.OutFormat)
			}
		}
	}

	return nil
}

func isKnownStatus(v string) bool {
	for _, s := range knownStatuses {
		if s == v {
			return true
		}
	}
	return false
}

func normalizeEnumValue(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

// normalizeAPIURL accepts an http(s) URL and strips trailing slashes.
func normalizeAPIURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return DefaultAPIURL, nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%q", raw)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("%q: expected an http(s) URL", raw)
	}
	return strings.TrimRight(raw, "/"), nil
}

func splitCommaList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			p := strings.TrimSpace(part)
			if p == "" {
				continue
			}
			out = append(out, p)
		}
	}
	return out
}
