package chain

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/chainfilter/internal/event"
)

// Apply runs every entry in order against st, halting as soon as an entry
// sets st.Stop. A stop raised inside an included chain halts this chain too.
//
// Apply returns an *InvalidChainError if the chain holds no entries.
// Included chains that have since failed a reload are skipped.
func (c *Chain) Apply(st *event.State) error {
	if len(c.entries) == 0 {
		return &InvalidChainError{Chain: c.name}
	}
	for _, e := range c.entries {
		if !e.IsValid() {
			continue
		}
		if err := e.Apply(st); err != nil {
			return err
		}
		if st.Stop {
			break
		}
	}
	return nil
}

// Execute applies the chain and reports the outcome.
//
// After Apply it writes a high-tier debug trace, appends a summary line
// (cancelled, or sent when a rule matched), then drains every log message on
// st. Drained lines go to the rule log when st.Log is set and to the low
// debug tier otherwise.
func (c *Chain) Execute(ctx context.Context, st *event.State) error {
	if err := c.Apply(st); err != nil {
		return err
	}

	log := c.registry.log
	if st.Pattern != nil {
		log.DebugHigh("last match",
			"chain", c.name,
			"event", st.ID,
			"pattern", strings.TrimPrefix(st.Pattern.String(), "(?i)"),
			"original", st.Original.Colored(),
			"current", st.Message.Colored(),
			"log", st.Log,
			"deny", st.Cancel)
	} else {
		log.DebugHigh("no match", "chain", c.name, "event", st.ID, "original", st.Original.Colored())
	}

	if line := Summary(st); line != "" {
		st.AddLogMessage(line)
	}

	for _, line := range st.LogMessages() {
		if st.Log {
			log.Rule(ctx, st.ID, line)
		} else {
			log.DebugLow(line, "event", st.ID)
		}
	}
	return nil
}

// Summary returns the outcome line for an executed event, or "" when no
// rule matched and the message was not cancelled.
func Summary(st *event.State) string {
	switch {
	case st.Cancel:
		return fmt.Sprintf("<%s> Original message cancelled.", st.PlayerName)
	case st.Pattern != nil:
		return fmt.Sprintf("|%s| SENT <%s> %s", st.ListenerName(), st.PlayerName, st.Message.Plain())
	}
	return ""
}
