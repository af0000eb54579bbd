package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/roach88/chainfilter/internal/config"
	"github.com/roach88/chainfilter/internal/store"
)

// LogOptions holds flags for the log command.
type LogOptions struct {
	*RootOptions
	Chain string
	Limit int
	Event string
}

// LogEvent is one stored event with its rule log lines.
type LogEvent struct {
	store.EventRecord
	Lines []string `json:"lines"`
}

// LogOutput is the JSON payload of the log command.
type LogOutput struct {
	Events      []LogEvent `json:"events"`
	Permissions []string   `json:"permissions,omitempty"`
}

// NewLogCommand creates the log command.
func NewLogCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LogOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "log",
		Short: "Show stored events and rule log lines",
		Long: `Print events recorded by "chainfilter filter --db", oldest first, with the
rule log lines each event wrote.

Exit codes:
  0 - Success
  2 - No database configured, database or event not found

Examples:
  chainfilter log --db events.db
  chainfilter log --db events.db --chain chat --limit 20
  chainfilter log --db events.db --event 0191e0a4-...`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLog(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Chain, "chain", "", "only show events for this chain")
	cmd.Flags().IntVar(&opts.Limit, "limit", 50, "show at most this many recent events (0 for all)")
	cmd.Flags().StringVar(&opts.Event, "event", "", "show a single event by ID")

	return cmd
}

func runLog(cmd *cobra.Command, opts *LogOptions) error {
	cfg, err := config.Load(opts.ConfigPath, cmd.Flags())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if cfg.StorePath == "" {
		return NewExitError(ExitCommandError, "no database configured (use --db or store.path)")
	}
	if _, err := os.Stat(cfg.StorePath); errors.Is(err, fs.ErrNotExist) {
		return NewExitError(ExitCommandError, fmt.Sprintf("database not found: %s", cfg.StorePath))
	}

	env, err := openEnvironment(cmd, opts.RootOptions)
	if err != nil {
		return err
	}
	defer env.Close()

	ctx := cmd.Context()
	out := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	var records []store.EventRecord
	if opts.Event != "" {
		rec, err := env.store.GetEvent(ctx, opts.Event)
		if err != nil {
			_ = out.Error(CodeNoStore, fmt.Sprintf("event %s not found", opts.Event), nil)
			return WrapExitError(ExitCommandError, "failed to read event", err)
		}
		records = []store.EventRecord{rec}
	} else {
		records, err = env.store.ListEvents(ctx, store.ListOptions{Chain: opts.Chain, Limit: opts.Limit})
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to list events", err)
		}
	}

	output := LogOutput{Events: make([]LogEvent, 0, len(records))}
	for _, rec := range records {
		lines, err := env.store.ReadRuleLog(ctx, rec.ID)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read rule log", err)
		}
		if lines == nil {
			lines = []string{}
		}
		output.Events = append(output.Events, LogEvent{EventRecord: rec, Lines: lines})
	}

	if opts.Chain != "" {
		output.Permissions, err = env.store.ListPermissions(ctx, opts.Chain)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to list permissions", err)
		}
	}

	return out.Render(formatLogText(output), output)
}

func formatLogText(output LogOutput) string {
	if len(output.Events) == 0 {
		return "No events recorded.\n"
	}

	tw := table.NewWriter()
	tw.AppendHeader(table.Row{"Seq", "Chain", "Player", "Listener", "Message", "Pattern", "Outcome"})
	for _, ev := range output.Events {
		tw.AppendRow(table.Row{ev.Seq, ev.Chain, ev.Player, ev.Listener, ev.Message, ev.Pattern, outcome(ev.EventRecord)})
	}
	tw.SetStyle(table.StyleLight)

	var b strings.Builder
	b.WriteString(tw.Render())
	b.WriteByte('\n')

	for _, ev := range output.Events {
		if len(ev.Lines) == 0 {
			continue
		}
		fmt.Fprintf(&b, "\n[%d] %s\n", ev.Seq, ev.ID)
		for _, line := range ev.Lines {
			fmt.Fprintf(&b, "  %s\n", line)
		}
	}

	if len(output.Permissions) > 0 {
		fmt.Fprintf(&b, "\nPermissions: %s\n", strings.Join(output.Permissions, ", "))
	}
	return b.String()
}

func outcome(rec store.EventRecord) string {
	var parts []string
	switch {
	case rec.Cancelled:
		parts = append(parts, "cancelled")
	case rec.Matched():
		parts = append(parts, "sent")
	default:
		parts = append(parts, "pass")
	}
	if rec.Stopped {
		parts = append(parts, "stopped")
	}
	if rec.Logged {
		parts = append(parts, "logged")
	}
	return strings.Join(parts, ",")
}
