package harness

import (
	"context"
	"fmt"
	"reflect"
	"slices"
	"sort"
	"strings"

	"github.com/roach88/chainfilter/internal/store"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, ev := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s <%s> %q -> %q cancelled=%v\n",
				ev.Step, ev.ID, ev.Player, ev.Original, ev.Message, ev.Cancelled)
		}
	}

	return buf.String()
}

// assertWarningCount checks that a warning message was logged exactly
// assertion.Count times. Warnings are matched on their message only.
func assertWarningCount(result *Result, assertion Assertion) error {
	count := 0
	for _, w := range result.Warnings {
		if w == assertion.Message || strings.HasPrefix(w, assertion.Message+" ") {
			count++
		}
	}

	if count != assertion.Count {
		return &AssertionError{
			Type:     AssertWarningCount,
			Expected: fmt.Sprintf("%d warnings %q", assertion.Count, assertion.Message),
			Actual:   fmt.Sprintf("%d warnings in %q", count, result.Warnings),
		}
	}
	return nil
}

func assertRuleCount(result *Result, assertion Assertion) error {
	if result.Rules != assertion.Count {
		return &AssertionError{
			Type:     AssertRuleCount,
			Expected: fmt.Sprintf("%d rules", assertion.Count),
			Actual:   fmt.Sprintf("%d rules", result.Rules),
		}
	}
	return nil
}

// assertPermissions compares the interest set, ignoring order.
func assertPermissions(result *Result, assertion Assertion) error {
	want := slices.Clone(assertion.Values)
	sort.Strings(want)
	got := slices.Clone(result.Permissions)
	sort.Strings(got)

	if !slices.Equal(want, got) {
		return &AssertionError{
			Type:     AssertPermissions,
			Expected: fmt.Sprintf("%q", want),
			Actual:   fmt.Sprintf("%q", got),
		}
	}
	return nil
}

// assertEventCount counts stored events, optionally only cancelled or only
// delivered ones.
func assertEventCount(ctx context.Context, st *store.Store, result *Result, assertion Assertion) error {
	events, err := st.ListEvents(ctx, store.ListOptions{})
	if err != nil {
		return err
	}

	count := 0
	for _, ev := range events {
		if assertion.Cancelled == nil || *assertion.Cancelled == ev.Cancelled {
			count++
		}
	}

	if count != assertion.Count {
		filter := "events"
		if assertion.Cancelled != nil {
			filter = fmt.Sprintf("events with cancelled=%v", *assertion.Cancelled)
		}
		return &AssertionError{
			Type:     AssertEventCount,
			Expected: fmt.Sprintf("%d %s", assertion.Count, filter),
			Actual:   fmt.Sprintf("%d %s", count, filter),
			Trace:    result.Trace,
		}
	}
	return nil
}

// assertStoredEvent checks stored columns of one event row.
// Only columns named in assertion.Expect are compared.
func assertStoredEvent(ctx context.Context, st *store.Store, assertion Assertion) error {
	row := make(map[string]any)
	err := st.DB().QueryRowxContext(ctx, `SELECT * FROM events WHERE id = ?`, assertion.Event).MapScan(row)
	if err != nil {
		return &AssertionError{
			Type:     AssertStoredEvent,
			Expected: fmt.Sprintf("stored event %s", assertion.Event),
			Actual:   fmt.Sprintf("query error: %v", err),
		}
	}

	keys := make([]string, 0, len(assertion.Expect))
	for k := range assertion.Expect {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		expectedValue := assertion.Expect[key]
		actualValue, exists := row[key]
		if !exists {
			return &AssertionError{
				Type:     AssertStoredEvent,
				Expected: fmt.Sprintf("column %q to exist", key),
				Actual:   fmt.Sprintf("column %q not present in event %s", key, assertion.Event),
			}
		}

		if !stateValuesEqual(expectedValue, actualValue) {
			return &AssertionError{
				Type:     AssertStoredEvent,
				Expected: fmt.Sprintf("column %q = %v (type %T)", key, expectedValue, expectedValue),
				Actual:   fmt.Sprintf("column %q = %v (type %T)", key, actualValue, actualValue),
			}
		}
	}
	return nil
}

// stateValuesEqual compares a YAML-decoded expected value with a value
// scanned from SQLite. SQLite returns integers as int64, booleans as bool or
// int64 depending on the declared type, and text as string or []byte.
func stateValuesEqual(expected, actual any) bool {
	if expected == nil || actual == nil {
		return expected == nil && actual == nil
	}

	if b, ok := actual.([]byte); ok {
		actual = string(b)
	}

	switch exp := expected.(type) {
	case string:
		act, ok := actual.(string)
		return ok && exp == act
	case int:
		switch act := actual.(type) {
		case int64:
			return int64(exp) == act
		case int:
			return exp == act
		}
		return false
	case int64:
		act, ok := actual.(int64)
		return ok && exp == act
	case bool:
		switch act := actual.(type) {
		case bool:
			return exp == act
		case int64:
			return exp == (act != 0)
		}
		return false
	}

	return reflect.DeepEqual(expected, actual)
}

// AssertionContext provides context for evaluating assertions.
type AssertionContext struct {
	Store *store.Store
	Ctx   context.Context
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
// The actx parameter provides database access for event assertions.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertWarningCount:
			err = assertWarningCount(result, assertion)
		case AssertRuleCount:
			err = assertRuleCount(result, assertion)
		case AssertPermissions:
			err = assertPermissions(result, assertion)
		case AssertEventCount, AssertStoredEvent:
			if actx == nil || actx.Store == nil {
				err = fmt.Errorf("assertion[%d]: %s requires database context", i, assertion.Type)
			} else if assertion.Type == AssertEventCount {
				err = assertEventCount(actx.Ctx, actx.Store, result, assertion)
			} else {
				err = assertStoredEvent(actx.Ctx, actx.Store, assertion)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
