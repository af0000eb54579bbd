package chain

import (
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/roach88/chainfilter/internal/rule"
)

// Tree renders the chain and its includes as an indented tree, one entry
// per line in execution order.
func (c *Chain) Tree() string {
	var b strings.Builder
	b.WriteString(c.heading())
	b.WriteByte('\n')
	c.writeTree(&b, "")
	return b.String()
}

func (c *Chain) heading() string {
	return fmt.Sprintf("%s (%s, %d rules)", c.name, c.state, c.RuleCount())
}

func (c *Chain) writeTree(b *strings.Builder, prefix string) {
	for i, e := range c.entries {
		branch, indent := "├── ", "│   "
		if i == len(c.entries)-1 {
			branch, indent = "└── ", "    "
		}
		b.WriteString(prefix)
		b.WriteString(branch)
		switch v := e.(type) {
		case *Chain:
			b.WriteString("include ")
			b.WriteString(v.heading())
			b.WriteByte('\n')
			v.writeTree(b, prefix+indent)
		case *rule.Rule:
			b.WriteString(describeRule(v))
			b.WriteByte('\n')
		default:
			fmt.Fprintf(b, "%T\n", e)
		}
	}
}

func describeRule(r *rule.Rule) string {
	s := "match " + r.Source()
	if r.ID != "" {
		s += " [" + r.ID + "]"
	}
	return s
}

// String renders the chain as a table of rules, with included rules
// indented under the chain that owns them.
func (c *Chain) String() string {
	tw := table.NewWriter()
	tw.SetTitle("CHAIN " + c.name)
	tw.AppendHeader(table.Row{"#", "Rule", "Pattern", "Conditions", "Actions"})

	n := 0
	for _, row := range c.rows(0, &n) {
		tw.AppendRow(row)
	}

	style := table.StyleLight
	style.Format.Header = text.FormatDefault
	tw.SetStyle(style)
	return tw.Render()
}

func (c *Chain) rows(depth int, n *int) []table.Row {
	var rows []table.Row
	indent := strings.Repeat("  ", depth)
	for _, e := range c.entries {
		switch v := e.(type) {
		case *Chain:
			rows = append(rows, table.Row{"", indent + "include " + v.name, "", "", ""})
			rows = append(rows, v.rows(depth+1, n)...)
		case *rule.Rule:
			*n++
			rows = append(rows, table.Row{
				*n,
				indent + v.ID,
				v.Source(),
				joinStrings(v.Conditions()),
				joinStrings(v.Actions()),
			})
		}
	}
	return rows
}

func joinStrings[T fmt.Stringer](items []T) string {
	parts := make([]string, len(items))
	for i, it := range items {
		parts[i] = it.String()
	}
	return strings.Join(parts, "\n")
}
