package cli

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/roach88/chainfilter/internal/chain"
)

// CheckOptions holds flags for the check command.
type CheckOptions struct {
	*RootOptions
	Strict bool // include loops and dangling includes fail the check
}

// CheckResult is the JSON payload of the check command.
type CheckResult struct {
	Chain       string               `json:"chain"`
	State       string               `json:"state"`
	Rules       int                  `json:"rules"`
	Permissions []string             `json:"permissions"`
	Cycles      []chain.CycleWarning `json:"cycles"`
	Missing     []chain.IncludeRef   `json:"missing"`
}

// NewCheckCommand creates the check command.
func NewCheckCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CheckOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "check [chain]",
		Short: "Compile a chain and report its structure",
		Long: `Compile a rule chain and print its include tree, rule count and the
permissions its conditions reference.

Every rule file in the rules directory is also scanned for include loops
and includes that name a missing chain. Loops are warnings: the chain still
loads without the looping include.

Exit codes:
  0 - Chain compiled
  1 - Include warnings found with --strict
  2 - Chain could not be loaded, or bad configuration

Examples:
  chainfilter check
  chainfilter check chat --rules-dir ./rules
  chainfilter check chat --strict --format json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd, opts, args)
		},
	}

	cmd.Flags().BoolVar(&opts.Strict, "strict", false, "fail on include loops and missing includes")

	return cmd
}

func runCheck(cmd *cobra.Command, opts *CheckOptions, args []string) error {
	env, err := openEnvironment(cmd, opts.RootOptions)
	if err != nil {
		return err
	}
	defer env.Close()

	out := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
	name := env.chainName(args)

	analysis, err := chain.AnalyzeIncludes(env.source)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to scan rules directory", err)
	}

	c, err := env.svc.Load(cmd.Context(), name)
	if err != nil {
		if c == nil {
			_ = out.Error(CodeLoadFailed, err.Error(), nil)
			return WrapExitError(ExitCommandError, fmt.Sprintf("failed to load chain %s", name), err)
		}
		return WrapExitError(ExitCommandError, "failed to record permissions", err)
	}

	result := CheckResult{
		Chain:       name,
		State:       c.State().String(),
		Rules:       c.RuleCount(),
		Permissions: c.Permissions(),
		Cycles:      analysis.Cycles,
		Missing:     analysis.Missing,
	}
	if result.Permissions == nil {
		result.Permissions = []string{}
	}
	if result.Cycles == nil {
		result.Cycles = []chain.CycleWarning{}
	}
	if result.Missing == nil {
		result.Missing = []chain.IncludeRef{}
	}

	warned := len(result.Cycles) > 0 || len(result.Missing) > 0
	text := formatCheckText(c, result, opts.Verbose)

	if opts.Strict && warned {
		msg := fmt.Sprintf("%d include warning(s)", len(result.Cycles)+len(result.Missing))
		if err := out.Fail(CodeCheckFailed, msg, text, result); err != nil {
			return err
		}
		return NewExitError(ExitFailure, msg)
	}
	return out.Render(text, result)
}

func formatCheckText(c *chain.Chain, result CheckResult, verbose bool) string {
	var b strings.Builder
	b.WriteString(c.Tree())
	if verbose {
		b.WriteString(c.String())
		b.WriteByte('\n')
	}

	fmt.Fprintf(&b, "\n%s %s, %s %s\n",
		humanize.Comma(int64(result.Rules)), plural(result.Rules, "rule", "rules"),
		humanize.Comma(int64(len(result.Permissions))), plural(len(result.Permissions), "permission", "permissions"))
	for _, p := range result.Permissions {
		fmt.Fprintf(&b, "  %s\n", p)
	}

	for _, cy := range result.Cycles {
		fmt.Fprintf(&b, "⚠ %s\n", cy.Message)
	}
	for _, m := range result.Missing {
		fmt.Fprintf(&b, "⚠ %s line %d: include of unknown chain %s\n", m.Chain, m.Line, m.Include)
	}
	return b.String()
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
