// Package rule implements a single compiled filter rule: a case-insensitive
// trigger pattern plus an ordered list of conditions and actions.
//
// Rules are built incrementally by the chain compiler. The compiler calls New
// with the text after a match directive, then forwards every following
// statement line to AddStatement until the next terminator.
//
// Statement grammar:
//
//	rule <id> [description]
//	then <deny|abort|log|replace|rewrite|lower|upper|warn|respond> [argument]
//	require|ignore <user|permission|listener|string> <value>...
package rule

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/roach88/chainfilter/internal/event"
)

// Rule is one compiled rule. The zero value is invalid until SetPattern succeeds.
type Rule struct {
	ID          string
	Description string

	pattern    *regexp.Regexp
	source     string
	conditions []Condition
	actions    []Action
}

// New creates a rule seeded with a pattern.
// If the pattern does not compile, the rule is returned invalid; statements
// can still be added and are discarded along with it.
func New(pattern string) *Rule {
	r := &Rule{}
	_ = r.SetPattern(pattern)
	return r
}

// SetPattern compiles pattern as a case-insensitive regular expression.
// On failure the rule keeps no pattern and is invalid.
func (r *Rule) SetPattern(pattern string) error {
	pattern = strings.TrimSpace(pattern)
	r.source = pattern
	r.pattern = nil
	if pattern == "" {
		return ErrEmptyPattern
	}
	p, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return fmt.Errorf("compile pattern %q: %w", pattern, err)
	}
	r.pattern = p
	return nil
}

// Pattern returns the compiled pattern, nil if the rule is invalid.
func (r *Rule) Pattern() *regexp.Regexp {
	return r.pattern
}

// Source returns the pattern text as written.
func (r *Rule) Source() string {
	return r.source
}

// IsValid reports whether the rule has a usable pattern.
func (r *Rule) IsValid() bool {
	return r.pattern != nil
}

// AddStatement attaches a condition, action or metadata statement.
func (r *Rule) AddStatement(command, data string) error {
	switch strings.ToLower(command) {
	case "rule":
		id, desc, _ := strings.Cut(strings.TrimSpace(data), " ")
		if id == "" {
			return fmt.Errorf("rule: %w: id", ErrMissingArgument)
		}
		r.ID = id
		r.Description = strings.TrimSpace(desc)
		return nil

	case "then":
		a, err := parseAction(data)
		if err != nil {
			return err
		}
		r.actions = append(r.actions, a)
		return nil

	case "require", "ignore":
		flag := Require
		if strings.EqualFold(command, "ignore") {
			flag = Ignore
		}
		c, err := parseCondition(flag, data)
		if err != nil {
			return err
		}
		r.conditions = append(r.conditions, c)
		return nil
	}
	return fmt.Errorf("%q: %w", command, ErrUnknownStatement)
}

// Conditions returns the rule's conditions in declaration order.
func (r *Rule) Conditions() []Condition {
	return slices.Clone(r.conditions)
}

// Actions returns the rule's actions in declaration order.
func (r *Rule) Actions() []Action {
	return slices.Clone(r.actions)
}

// Apply runs the rule against the event.
//
// If the pattern matches the current plain text and every condition allows
// it, the rule records itself as the last matched pattern, logs the match,
// and runs its actions in order. Actions see the message as rewritten by the
// actions before them.
func (r *Rule) Apply(st *event.State) error {
	if r.pattern == nil {
		return nil
	}
	plain := st.Message.Plain()
	if !r.pattern.MatchString(plain) {
		return nil
	}
	for _, c := range r.conditions {
		if !c.allows(st) {
			return nil
		}
	}

	st.Pattern = r.pattern
	st.AddLogMessage(fmt.Sprintf("|%s| MATCH <%s> %s", st.ListenerName(), st.PlayerName, plain))
	if r.ID != "" {
		st.AddLogMessage(fmt.Sprintf("Rule: %s %s", r.ID, r.Description))
	}

	for _, a := range r.actions {
		a.run(st, r.pattern)
	}
	return nil
}

// Permissions returns the sorted set of permissions referenced by
// permission conditions.
func (r *Rule) Permissions() []string {
	var perms []string
	for _, c := range r.conditions {
		if c.Type == ConditionPermission {
			perms = append(perms, c.Args...)
		}
	}
	slices.Sort(perms)
	return slices.Compact(perms)
}

// Name returns the rule ID if set, otherwise its pattern source.
func (r *Rule) Name() string {
	if r.ID != "" {
		return r.ID
	}
	return r.source
}
