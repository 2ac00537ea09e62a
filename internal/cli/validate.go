package cli

import (
	"errors"
	"fmt"
	"gitops-replacer/internal/config"
	"io"
	"os"

	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the batch file without contacting GitHub",
	Long: `Load the batch file named by --config, check it against the schema and
compile every when/except pattern. Nothing is read from or written to GitHub.

Exit codes:
	0 = the file is valid (or has no gitops-replacer entry)
	3 = the file is missing or invalid`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		applyEnvDefaults(cmd, cfg, os.Getenv)
		os.Exit(validateTargets(cmd.OutOrStdout(), cmd.ErrOrStderr(), cfg.Run.ConfigFile))
	},
}

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the JSON Schema of the batch file",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		_, _ = cmd.OutOrStdout().Write(config.SchemaJSON())
	},
}

func validateTargets(stdout, stderr io.Writer, path string) int {
	targets, err := config.LoadTargets(path)
	if errors.Is(err, config.ErrNoEntry) {
		fmt.Fprintf(stdout, "no gitops-replacer entry found in %s\n", path)
		return 0
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 3
	}

	gated := 0
	for _, t := range targets {
		if !t.Policy.IsZero() {
			gated++
		}
	}
	fmt.Fprintf(stdout, "%s: %d targets (%d with a reference policy)\n", path, len(targets), gated)
	return 0
}

func init() {
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(schemaCmd)
}
