package rule

import "errors"

var (
	// ErrEmptyPattern indicates a match directive without a pattern.
	ErrEmptyPattern = errors.New("empty match pattern")

	// ErrUnknownStatement indicates a statement keyword the rule does not understand.
	ErrUnknownStatement = errors.New("unknown statement")

	// ErrUnknownAction indicates a "then" directive naming an unsupported action.
	ErrUnknownAction = errors.New("unknown action")

	// ErrUnknownCondition indicates a require/ignore directive with an unsupported type.
	ErrUnknownCondition = errors.New("unknown condition type")

	// ErrMissingArgument indicates a statement that needs an argument but has none.
	ErrMissingArgument = errors.New("missing argument")
)
