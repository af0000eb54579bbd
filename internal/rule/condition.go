package rule

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/chainfilter/internal/event"
)

// ConditionFlag decides whether a matching condition enables or suppresses the rule.
type ConditionFlag int

const (
	// Require: the rule fires only if the condition matches.
	Require ConditionFlag = iota
	// Ignore: the rule does not fire if the condition matches.
	Ignore
)

func (f ConditionFlag) String() string {
	if f == Ignore {
		return "ignore"
	}
	return "require"
}

// ConditionType selects what a condition inspects.
type ConditionType string

const (
	ConditionUser       ConditionType = "user"
	ConditionPermission ConditionType = "permission"
	ConditionListener   ConditionType = "listener"
	ConditionString     ConditionType = "string"
)

// Condition is a compiled require/ignore statement.
type Condition struct {
	Flag ConditionFlag
	Type ConditionType
	Args []string
}

func parseCondition(flag ConditionFlag, data string) (Condition, error) {
	kind, rest, _ := strings.Cut(strings.TrimSpace(data), " ")
	args := strings.Fields(rest)
	if kind == "" {
		return Condition{}, fmt.Errorf("%s: %w: condition type", flag, ErrMissingArgument)
	}
	if len(args) == 0 {
		return Condition{}, fmt.Errorf("%s %s: %w", flag, kind, ErrMissingArgument)
	}

	ct := ConditionType(strings.ToLower(kind))
	switch ct {
	case ConditionUser, ConditionPermission, ConditionListener, ConditionString:
	default:
		return Condition{}, fmt.Errorf("%s %s: %w", flag, kind, ErrUnknownCondition)
	}
	return Condition{Flag: flag, Type: ct, Args: args}, nil
}

// matches reports whether the condition's predicate holds for the event,
// independent of the require/ignore flag.
func (c Condition) matches(st *event.State) bool {
	switch c.Type {
	case ConditionUser:
		return slices.ContainsFunc(c.Args, func(name string) bool {
			return strings.EqualFold(name, st.PlayerName)
		})
	case ConditionPermission:
		return slices.ContainsFunc(c.Args, st.HasPermission)
	case ConditionListener:
		return slices.ContainsFunc(c.Args, func(name string) bool {
			return strings.EqualFold(name, st.ListenerName())
		})
	case ConditionString:
		plain := strings.ToLower(st.Message.Plain())
		return slices.ContainsFunc(c.Args, func(s string) bool {
			return strings.Contains(plain, strings.ToLower(s))
		})
	}
	return false
}

// allows reports whether the rule may fire given this condition.
func (c Condition) allows(st *event.State) bool {
	if c.Flag == Ignore {
		return !c.matches(st)
	}
	return c.matches(st)
}

func (c Condition) String() string {
	return fmt.Sprintf("%s %s %s", c.Flag, c.Type, strings.Join(c.Args, " "))
}
