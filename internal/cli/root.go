package cli

import (
	"context"
	"errors"
	"fmt"
	"gitops-replacer/internal/config"
	"gitops-replacer/internal/engine"
	"gitops-replacer/internal/flags"
	gh "gitops-replacer/internal/github"
	"os"

	"github.com/spf13/cobra"
)

var (
	buildVersion = "dev"
	buildCommit  = "unknown"
	buildDate    = "unknown"
)

var cfg = config.New()

const rootHelpTemplate = `{{with (or .Long .Short)}}{{. | trimTrailingWhitespaces}}

{{end}}Usage:
  {{.UseLine}}{{if .HasAvailableSubCommands}}
  {{.CommandPath}} [command]{{end}}

{{if .HasAvailableLocalFlags}}Flags:
{{.LocalFlags.FlagUsages | trimTrailingWhitespaces}}

{{end}}{{if .HasAvailableInheritedFlags}}Global Flags:
{{.InheritedFlags.FlagUsages | trimTrailingWhitespaces}}

{{end}}Environment:
  gitops-replacer authenticates to GitHub with an access token or a GitHub App.

  Sources (in order):
  1) GH_APP_ID, GH_APP_INSTALLATION_ID and GH_APP_KEY (PEM content or path)
  2) GITHUB_TOKEN or GH_TOKEN environment variable
  3) GitHub CLI (gh) authentication via gh auth token (if gh is installed and logged in)

  Other variables:
  GITOPS_REPLACER_CONFIG  default for --config
  GIT_COMMIT_NAME         default for --name
  GIT_COMMIT_EMAIL        default for --email
  GITHUB_API_URL          default for --api
  GITHUB_REF, GIT_REF     the git reference checked in --ci mode
  GITHUB_ACTIONS=true     enables --actions

{{if .HasAvailableSubCommands}}Available Commands:
{{range .Commands}}{{if (or .IsAvailableCommand (eq .Name "help"))}}
  {{rpad .Name .NamePadding }} {{.Short}}{{end}}{{end}}

{{end}}{{if .HasAvailableSubCommands}}Use "{{.CommandPath}} [command] --help" for more information about a command.
{{end}}`

var rootCmd = &cobra.Command{
	Use:   "gitops-replacer [flags] <value>",
	Short: "Set a marked value in files across GitHub repositories",
	Long: `gitops-replacer writes one value into every file location marked with
a "# gitops-replacer: <depName>" comment, across the targets listed in a batch
file.

Every target is checked first. If any target cannot be read, nothing is written.
Without --apply the run only previews the changes.

Batch file (JSON, YAML or TOML):
	gitops-replacer:
	  - repository: owner/name
	    branch: main
	    file: path/to/values.yaml
	    depName: my-app
	    when: refs/heads/main      # optional, checked in --ci mode
	    except: refs/tags/.*       # optional, checked in --ci mode

Output:
	Console output is controlled by --console-format (default: text).
	Structured outputs can be written via:
	- --out / --out-format: write an aggregate JSON array or NDJSON stream to a file
	- --emit: write an additional structured stream to stdout (json or ndjson)
	- --report: write a Markdown summary
	- --no-console: suppress the console sink (use with --emit/--out for machine output)

	NDJSON mode emits one JSON object per line. Objects are lifecycle Events with a
	"type" field (run.started, precheck.started, target.result, apply.started,
	run.finished). Each target's decision is an Event with type "target.result".

Exit codes:
	0 = every target processed (changed, unchanged, skipped or without marker)
	1 = one or more targets failed during apply
	2 = precheck failed for one or more targets, nothing was written
	3 = fatal error (configuration, credentials; run did not start)

Examples:
  # Preview
  gitops-replacer v1.4.2

  # Write, using a YAML batch file
  gitops-replacer --config deploy.yaml --apply v1.4.2

  # In a pipeline, honoring each target's when/except patterns
  GITHUB_REF=refs/tags/v1.4.2 gitops-replacer --ci --apply v1.4.2`,
	Args:          cobra.MaximumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	Run: func(cmd *cobra.Command, args []string) {
		if len(args) == 0 && cmd.Flags().NFlag() == 0 {
			_ = cmd.Help()
			return
		}
		if len(args) == 1 {
			cfg.Run.Value = args[0]
		}
		os.Exit(runReplace(cmd, cfg))
	},
}

func init() {
	rootCmd.SetHelpTemplate(rootHelpTemplate)

	// MAINTAINER NOTE: If you add/change/remove run-affecting flags here,
	// keep internal/flags and the env fallbacks in applyEnvDefaults in sync.

	// Shared with subcommands
	rootCmd.PersistentFlags().StringVar(&cfg.Run.ConfigFile, flags.FlagConfig, config.DefaultConfigFile, "Batch file listing the targets (.json, .yaml, .toml)")
	rootCmd.PersistentFlags().BoolVar(&cfg.Runtime.Verbose, flags.FlagVerbose, false, "Enable verbose logging (prints every GitHub API call, full error details and file contents)")

	// Run
	rootCmd.Flags().BoolVar(&cfg.Run.Apply, flags.FlagApply, false, "Write changes (default: preview only)")
	rootCmd.Flags().BoolVar(&cfg.Run.CI, flags.FlagCI, false, "Reference-gated mode: evaluate each target's when/except against GITHUB_REF or GIT_REF")
	rootCmd.Flags().StringSliceVar(&cfg.Run.Only, flags.FlagOnly, nil, "Only process targets matching these globs over OWNER/REPO/PATH or OWNER/REPO (repeatable; comma-separated accepted)")
	rootCmd.Flags().StringSliceVar(&cfg.Run.Skip, flags.FlagSkip, nil, "Skip targets matching these globs (same matching rules as --only)")

	// Commit
	rootCmd.Flags().StringVar(&cfg.Commit.Name, flags.FlagName, config.DefaultCommitterName, "Committer name")
	rootCmd.Flags().StringVar(&cfg.Commit.Email, flags.FlagEmail, config.DefaultCommitterEmail, "Committer email")
	rootCmd.Flags().StringVar(&cfg.Commit.Message, flags.FlagMessage, config.DefaultMessage, `Commit message template: "{}" is filled with depName then value; handlebars ({{depName}}, {{value}}, {{oldValue}}, {{repository}}, {{branch}}, {{file}}) otherwise`)

	// GitHub
	rootCmd.Flags().StringVar(&cfg.GitHub.APIURL, flags.FlagAPI, config.DefaultAPIURL, "GitHub API base URL")
	rootCmd.Flags().DurationVar(&cfg.GitHub.RequestTimeout, flags.FlagRequestTimeout, cfg.GitHub.RequestTimeout, "Timeout per GitHub API request, including retries")

	// Output
	rootCmd.Flags().StringVar(&cfg.Output.ConsoleFormat, flags.FlagConsoleFormat, "text", "Console output format: text|json|ndjson (default: text)")
	rootCmd.Flags().StringSliceVar(&cfg.Output.ConsoleFilterStatus, flags.FlagConsoleFilterStatus, nil, "Filter console output by status (INVALID, SKIPPED, NO_MARKER, UNCHANGED, CHANGED, APPLIED, ERROR). Comma-separated.")
	rootCmd.Flags().StringVar(&cfg.Output.Report, flags.FlagReport, "", "Write a Markdown report to this path")
	rootCmd.Flags().StringVar(&cfg.Output.Out, flags.FlagOut, "", "Write structured output to this path")
	rootCmd.Flags().StringVar(&cfg.Output.OutFormat, flags.FlagOutFormat, "", "Structured output format for --out: json|ndjson (default: inferred from file extension)")
	rootCmd.Flags().StringSliceVar(&cfg.Output.Emit, flags.FlagEmit, nil, "Emit additional structured stream to stdout: json|ndjson (repeatable; comma-separated accepted)")
	rootCmd.Flags().BoolVar(&cfg.Output.NoConsole, flags.FlagNoConsole, false, "Suppress console output (use with --emit/--out/--report)")
	rootCmd.Flags().BoolVar(&cfg.Output.Actions, flags.FlagActions, false, "Write GitHub Actions annotations, step outputs and step summary (default: on when GITHUB_ACTIONS=true)")

	// Runtime
	rootCmd.Flags().DurationVar(&cfg.Runtime.Timeout, flags.FlagTimeout, cfg.Runtime.Timeout, "Global timeout (default: 10m)")
}

// applyEnvDefaults fills settings from the environment for flags the user did
// not set explicitly.
func applyEnvDefaults(cmd *cobra.Command, cfg *config.Config, getenv func(string) string) {
	changed := func(name string) bool {
		return cmd != nil && cmd.Flags().Changed(name)
	}
	fromEnv := func(dst *string, flag, key string) {
		if changed(flag) {
			return
		}
		if v := getenv(key); v != "" {
			*dst = v
		}
	}

	fromEnv(&cfg.Run.ConfigFile, flags.FlagConfig, "GITOPS_REPLACER_CONFIG")
	fromEnv(&cfg.Commit.Name, flags.FlagName, "GIT_COMMIT_NAME")
	fromEnv(&cfg.Commit.Email, flags.FlagEmail, "GIT_COMMIT_EMAIL")
	fromEnv(&cfg.GitHub.APIURL, flags.FlagAPI, "GITHUB_API_URL")

	cfg.Run.Ref = getenv("GITHUB_REF")
	if cfg.Run.Ref == "" {
		cfg.Run.Ref = getenv("GIT_REF")
	}

	if !changed(flags.FlagActions) && getenv("GITHUB_ACTIONS") == "true" {
		cfg.Output.Actions = true
	}
}

func runReplace(cmd *cobra.Command, cfg *config.Config) int {
	applyEnvDefaults(cmd, cfg, os.Getenv)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 3
	}

	if !cfg.Output.NoConsole {
		fmt.Fprintf(os.Stderr, "Loading targets from %s...\n", cfg.Run.ConfigFile)
	}
	targets, err := config.LoadTargets(cfg.Run.ConfigFile)
	if errors.Is(err, config.ErrNoEntry) {
		fmt.Fprintf(os.Stderr, "no gitops-replacer entry found in %s\n", cfg.Run.ConfigFile)
		return 0
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 3
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Runtime.Timeout)
	defer cancel()

	client, err := newGitHubClient(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 3
	}

	eng := engine.NewEngine(client)
	return eng.Run(ctx, cfg, targets)
}

func newGitHubClient(ctx context.Context, cfg *config.Config) (*gh.Client, error) {
	opts := []gh.Option{
		gh.WithBaseURL(cfg.GitHub.APIURL),
		gh.WithTimeout(cfg.GitHub.RequestTimeout),
		gh.WithVerbose(cfg.Runtime.Verbose, nil),
	}

	app, err := gh.AppCredentialsFromEnv()
	if err != nil {
		return nil, err
	}
	if app != nil {
		client, err := gh.NewClient(ctx, "", append(opts, gh.WithApp(app))...)
		if err != nil {
			return nil, fmt.Errorf("failed to create GitHub client: %w", err)
		}
		return client, nil
	}

	token, _, err := gh.ResolveAuthToken(ctx, "", cfg.GitHub.APIURL)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve GitHub auth token: %w", err)
	}
	if token == "" {
		return nil, errors.New("GitHub auth token is required (set GITHUB_TOKEN, run 'gh auth login', or set GH_APP_ID, GH_APP_INSTALLATION_ID and GH_APP_KEY)")
	}
	client, err := gh.NewClient(ctx, token, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GitHub client: %w", err)
	}
	return client, nil
}

func SetBuildInfo(version, commit, date string) {
	if version != "" {
		buildVersion = version
	}
	if commit != "" {
		buildCommit = commit
	}
	if date != "" {
		buildDate = date
	}

	rootCmd.Version = fmt.Sprintf("%s (%s) %s", buildVersion, buildCommit, buildDate)
	rootCmd.SetVersionTemplate("{{.Version}}\n")
}

func BuildInfo() (version, commit, date string) {
	return buildVersion, buildCommit, buildDate
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(3)
	}
}
