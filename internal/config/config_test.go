package config

import (
	"reflect"
	"testing"
)

func newValid() *Config {
	cfg := New()
	cfg.Run.Value = "v1.2.3"
	return cfg
}

func TestNew_Defaults(t *testing.T) {
	cfg := New()
	if cfg.Run.ConfigFile != "gitops-replacer.json" {
		t.Fatalf("unexpected default config file %q", cfg.Run.ConfigFile)
	}
	if cfg.Commit.Name != "Replacer Bot" || cfg.Commit.Email != "replacer-bot@localhost.localdomain" {
		t.Fatalf("unexpected default committer %q <%q>", cfg.Commit.Name, cfg.Commit.Email)
	}
	if cfg.Commit.Message != "fix: update {} to {}" {
		t.Fatalf("unexpected default message %q", cfg.Commit.Message)
	}
	if cfg.GitHub.APIURL != "https://api.github.com" {
		t.Fatalf("unexpected default api %q", cfg.GitHub.APIURL)
	}
}

func TestValidate_NormalizesCommaDelimitedSelectors(t *testing.T) {
	cfg := newValid()
	cfg.Run.Only = []string{"acme/deploy/**, acme/infra/**", ",,"}
	cfg.Run.Skip = []string{"acme/deploy/legacy/*"}

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() returned error: %v", err)
	}

	want := []string{"acme/deploy/**", "acme/infra/**"}
	if !reflect.DeepEqual(cfg.Run.Only, want) {
		t.Fatalf("Only normalized mismatch: got %v want %v", cfg.Run.Only, want)
	}
	if !reflect.DeepEqual(cfg.Run.Skip, []string{"acme/deploy/legacy/*"}) {
		t.Fatalf("Skip normalized mismatch: got %v", cfg.Run.Skip)
	}
}

func TestValidate_RejectsInvalidRunSettings(t *testing.T) {
	tests := []struct {
		name      string
		mutateCfg func(cfg *Config)
	}{
		{name: "empty_value", mutateCfg: func(cfg *Config) { cfg.Run.Value = "" }},
		{name: "multiline_value", mutateCfg: func(cfg *Config) { cfg.Run.Value = "v1\nv2" }},
		{name: "carriage_return_value", mutateCfg: func(cfg *Config) { cfg.Run.Value = "v1\r" }},
		{name: "empty_config", mutateCfg: func(cfg *Config) { cfg.Run.ConfigFile = "  " }},
		{name: "ci_without_ref", mutateCfg: func(cfg *Config) { cfg.Run.CI = true }},
		{name: "empty_name", mutateCfg: func(cfg *Config) { cfg.Commit.Name = " " }},
		{name: "empty_email", mutateCfg: func(cfg *Config) { cfg.Commit.Email = "" }},
		{name: "empty_message", mutateCfg: func(cfg *Config) { cfg.Commit.Message = "  " }},
		{name: "bad_api_scheme", mutateCfg: func(cfg *Config) { cfg.GitHub.APIURL = "ftp://example.com" }},
		{name: "api_without_host", mutateCfg: func(cfg *Config) { cfg.GitHub.APIURL = "https://" }},
		{name: "zero_request_timeout", mutateCfg: func(cfg *Config) { cfg.GitHub.RequestTimeout = 0 }},
		{name: "negative_timeout", mutateCfg: func(cfg *Config) { cfg.Runtime.Timeout = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := newValid()
			tt.mutateCfg(cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected error, got nil")
			}
		})
	}
}

func TestValidate_CIWithRef(t *testing.T) {
	cfg := newValid()
	cfg.Run.CI = true
	cfg.Run.Ref = "refs/heads/main"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestValidate_NormalizesAPIURL(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "empty_defaults", in: "", want: "https://api.github.com"},
		{name: "trailing_slash", in: "https://ghe.example.com/api/v3/", want: "https://ghe.example.com/api/v3"},
		{name: "spaces", in: "  http://localhost:8080  ", want: "http://localhost:8080"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := newValid()
			cfg.GitHub.APIURL = tt.in
			if err := cfg.Validate(); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if cfg.GitHub.APIURL != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, cfg.GitHub.APIURL)
			}
		})
	}
}

func TestValidate_RejectsInvalidConsoleFormat(t *testing.T) {
	tests := []struct {
		name          string
		consoleFormat string
	}{
		{name: "empty", consoleFormat: ""},
		{name: "spaces", consoleFormat: "   "},
		{name: "unknown", consoleFormat: "yaml"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := newValid()
			cfg.Output.ConsoleFormat = tt.consoleFormat
			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected error, got nil")
			}
		})
	}
}

func TestValidate_AllowsKnownConsoleFormats(t *testing.T) {
	for _, format := range []string{"text", "json", "ndjson", " TEXT "} {
		t.Run(format, func(t *testing.T) {
			cfg := newValid()
			cfg.Output.ConsoleFormat = format
			if err := cfg.Validate(); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
		})
	}
}

func TestValidate_ConsoleFilterStatus(t *testing.T) {
	cfg := newValid()
	cfg.Output.ConsoleFilterStatus = []string{"changed, error", " applied "}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	want := []string{"CHANGED", "ERROR", "APPLIED"}
	if !reflect.DeepEqual(cfg.Output.ConsoleFilterStatus, want) {
		t.Fatalf("got %v want %v", cfg.Output.ConsoleFilterStatus, want)
	}

	cfg = newValid()
	cfg.Output.ConsoleFilterStatus = []string{"PASS"}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for unknown status")
	}
}

func TestValidate_RejectsInvalidEmit(t *testing.T) {
	tests := []struct {
		name string
		emit []string
	}{
		{name: "empty", emit: []string{""}},
		{name: "unknown", emit: []string{"yaml"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := newValid()
			cfg.Output.Emit = tt.emit
			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected error, got nil")
			}
		})
	}
}

func TestValidate_InfersOutFormat(t *testing.T) {
	tests := []struct {
		name    string
		out     string
		format  string
		want    string
		wantErr bool
	}{
		{name: "json_ext", out: "results.json", want: "json"},
		{name: "ndjson_ext", out: "results.NDJSON", want: "ndjson"},
		{name: "explicit", out: "results.log", format: "ndjson", want: "ndjson"},
		{name: "missing_ext", out: "results", wantErr: true},
		{name: "unknown_ext", out: "results.txt", wantErr: true},
		{name: "unknown_format", out: "results.json", format: "xml", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := newValid()
			cfg.Output.Out = tt.out
			cfg.Output.OutFormat = tt.format
			err := cfg.Validate()
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if cfg.Output.OutFormat != tt.want {
				t.Fatalf("expected out format %q, got %q", tt.want, cfg.Output.OutFormat)
			}
		})
	}
}
