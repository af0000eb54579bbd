package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigPath string

	// RulesDir, Debug and Database mirror flags that are resolved through
	// config.Load together with the config file and CF_* environment.
	RulesDir string
	Debug    string
	Database string
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the chainfilter CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "chainfilter",
		Short: "chainfilter - rule chain message filter",
		Long: `Compile line-oriented rule files into chains and run chat messages through them.

Rule files live in the rules directory as <chain>.txt. A chain may include
other chains; every rule that matches may rewrite, deny or log the message.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "path to YAML config file")
	cmd.PersistentFlags().StringVar(&opts.RulesDir, "rules-dir", "", "directory of rule files (default \"rules\")")
	cmd.PersistentFlags().StringVar(&opts.Debug, "debug", "", "debug tier (off|low|medium|high)")
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "SQLite database for events and rule log lines")

	cmd.AddCommand(NewCheckCommand(opts))
	cmd.AddCommand(NewFilterCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))
	cmd.AddCommand(NewLogCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}
