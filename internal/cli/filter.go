package cli

import (
	"bufio"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	dto "github.com/prometheus/client_model/go"
	"github.com/spf13/cobra"

	"github.com/roach88/chainfilter/internal/chain"
	"github.com/roach88/chainfilter/internal/event"
	"github.com/roach88/chainfilter/internal/filter"
)

// FilterOptions holds flags for the filter command.
type FilterOptions struct {
	*RootOptions
	Chain    string
	Player   string
	Listener string
	Strict   bool // any cancelled message fails the command
}

// FilterResult is the outcome of one filtered message.
type FilterResult struct {
	ID        string   `json:"id"`
	Player    string   `json:"player"`
	Listener  string   `json:"listener"`
	Original  string   `json:"original"`
	Message   string   `json:"message"`
	Pattern   string   `json:"pattern,omitempty"`
	Cancelled bool     `json:"cancelled"`
	Stopped   bool     `json:"stopped"`
	Logged    bool     `json:"logged"`
	Responses []string `json:"responses,omitempty"`
}

// FilterOutput is the JSON payload of the filter command.
type FilterOutput struct {
	Chain     string         `json:"chain"`
	Results   []FilterResult `json:"results"`
	Cancelled int            `json:"cancelled"`
}

// NewFilterCommand creates the filter command.
func NewFilterCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &FilterOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "filter [message...]",
		Short: "Run messages through a chain",
		Long: `Load a chain and run each message through it as the given player.

Messages are taken from the arguments, or read from stdin one per line when
no arguments are given. With --db every outcome and rule log line is stored.

Exit codes:
  0 - Messages filtered
  1 - A message was cancelled and --strict is set
  2 - Chain could not be loaded, or bad configuration

Examples:
  chainfilter filter --chain chat "hello there"
  chainfilter filter --chain chat --player steve --db events.db < chat.log
  chainfilter filter --chain signs --listener SIGN "VISIT http://x.io"`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFilter(cmd, opts, args)
		},
	}

	cmd.Flags().StringVar(&opts.Chain, "chain", "", "chain to run (default from config)")
	cmd.Flags().StringVar(&opts.Player, "player", "console", "player sending the messages")
	cmd.Flags().StringVar(&opts.Listener, "listener", "CHAT", "listener the messages arrive on")
	cmd.Flags().BoolVar(&opts.Strict, "strict", false, "exit 1 if any message is cancelled")

	return cmd
}

func runFilter(cmd *cobra.Command, opts *FilterOptions, args []string) error {
	env, err := openEnvironment(cmd, opts.RootOptions)
	if err != nil {
		return err
	}
	defer env.Close()

	out := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
	name := env.chainName([]string{opts.Chain})
	ctx := cmd.Context()

	if c, err := env.svc.Load(ctx, name); err != nil {
		if c == nil {
			_ = out.Error(CodeLoadFailed, err.Error(), nil)
			return WrapExitError(ExitCommandError, fmt.Sprintf("failed to load chain %s", name), err)
		}
		return WrapExitError(ExitCommandError, "failed to record permissions", err)
	}

	messages := args
	if len(messages) == 0 {
		messages, err = readMessages(cmd.InOrStdin())
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read messages", err)
		}
	}

	output := FilterOutput{Chain: name, Results: make([]FilterResult, 0, len(messages))}
	var text strings.Builder
	for _, msg := range messages {
		st, err := env.svc.Filter(ctx, name, filter.Input{
			Player:   opts.Player,
			Listener: opts.Listener,
			Message:  msg,
		})
		if st == nil {
			return WrapExitError(ExitCommandError, "failed to filter message", err)
		}
		if err != nil {
			out.VerboseLog("warning: %v", err)
		}

		res := newFilterResult(st)
		if res.Cancelled {
			output.Cancelled++
		}
		output.Results = append(output.Results, res)
		writeFilterText(&text, st)
	}

	if opts.Verbose {
		writeMetricsSummary(out.GetErrWriter(), env)
	}

	if opts.Strict && output.Cancelled > 0 {
		msg := fmt.Sprintf("%d message(s) cancelled", output.Cancelled)
		if err := out.Fail(CodeCheckFailed, msg, text.String(), output); err != nil {
			return err
		}
		return NewExitError(ExitFailure, msg)
	}
	return out.Render(text.String(), output)
}

// maxMessageBytes bounds a single message read from stdin.
const maxMessageBytes = 1 << 20

// readMessages reads one message per line, skipping blank lines.
func readMessages(r io.Reader) ([]string, error) {
	var msgs []string
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxMessageBytes)
	for sc.Scan() {
		if strings.TrimSpace(sc.Text()) == "" {
			continue
		}
		msgs = append(msgs, sc.Text())
	}
	return msgs, sc.Err()
}

func newFilterResult(st *event.State) FilterResult {
	res := FilterResult{
		ID:        st.ID,
		Player:    st.PlayerName,
		Listener:  st.ListenerName(),
		Original:  st.Original.Colored(),
		Message:   st.Message.Colored(),
		Cancelled: st.Cancel,
		Stopped:   st.Stop,
		Logged:    st.Log,
		Responses: st.Responses,
	}
	if st.Pattern != nil {
		res.Pattern = strings.TrimPrefix(st.Pattern.String(), "(?i)")
	}
	return res
}

func writeFilterText(b *strings.Builder, st *event.State) {
	line := chain.Summary(st)
	if line == "" {
		line = fmt.Sprintf("|%s| PASS <%s> %s", st.ListenerName(), st.PlayerName, st.Message.Plain())
	}
	b.WriteString(line)
	b.WriteByte('\n')
	for _, r := range st.Responses {
		fmt.Fprintf(b, "  → %s\n", r)
	}
}

// writeMetricsSummary prints the counters gathered during the run.
func writeMetricsSummary(w io.Writer, env *environment) {
	families, err := env.registry.Gather()
	if err != nil {
		fmt.Fprintf(w, "metrics unavailable: %v\n", err)
		return
	}

	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.AppendHeader(table.Row{"Metric", "Labels", "Value"})
	for _, fam := range families {
		for _, m := range fam.GetMetric() {
			tw.AppendRow(table.Row{fam.GetName(), labelString(m.GetLabel()), metricValue(fam.GetType(), m)})
		}
	}
	tw.SetStyle(table.StyleLight)
	tw.Render()
}

func labelString(pairs []*dto.LabelPair) string {
	parts := make([]string, 0, len(pairs))
	for _, p := range pairs {
		parts = append(parts, p.GetName()+"="+p.GetValue())
	}
	slices.Sort(parts)
	return strings.Join(parts, ",")
}

func metricValue(typ dto.MetricType, m *dto.Metric) string {
	switch typ {
	case dto.MetricType_COUNTER:
		return humanize.Comma(int64(m.GetCounter().GetValue()))
	case dto.MetricType_GAUGE:
		return humanize.Comma(int64(m.GetGauge().GetValue()))
	case dto.MetricType_HISTOGRAM:
		h := m.GetHistogram()
		return fmt.Sprintf("%s obs, %s", humanize.Comma(int64(h.GetSampleCount())), humanize.SIWithDigits(h.GetSampleSum(), 2, "s"))
	}
	return ""
}
