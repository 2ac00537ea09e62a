package flags

// Package flags defines canonical CLI flag names shared across the CLI and its
// tests. Keeping these as constants avoids drift between Cobra flag wiring and
// code that checks whether a flag was set explicitly (env fallbacks).
// IMPORTANT: These are flag *names* without leading dashes.
// Example usage:
//
//	cmd.Flags().StringVar(&cfg.Commit.Name, flags.FlagName, "", "...")
//	arg := "--" + flags.FlagName
const (
	// Run
	FlagConfig = "config"
	FlagApply  = "apply"
	FlagCI     = "ci"
	FlagOnly   = "only"
	FlagSkip   = "skip"

	// Commit
	FlagName    = "name"
	FlagEmail   = "email"
	FlagMessage = "message"

	// GitHub
	FlagAPI            = "api"
	FlagRequestTimeout = "request-timeout"

	// Output
	FlagConsoleFormat       = "console-format"
	FlagConsoleFilterStatus = "console-filter-status"
	FlagReport              = "report"
	FlagOut                 = "out"
	FlagOutFormat           = "out-format"
	FlagEmit                = "emit"
	FlagNoConsole           = "no-console"
	FlagActions             = "actions"

	// Runtime
	FlagTimeout = "timeout"
	FlagVerbose = "verbose"
)
