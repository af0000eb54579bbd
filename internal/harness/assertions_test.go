package harness

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/chainfilter/internal/store"
)

func openStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func seedEvents(t *testing.T, st *store.Store) {
	t.Helper()
	ctx := context.Background()
	for _, rec := range []store.EventRecord{
		{ID: "evt-0001", Chain: "chat", Player: "steve", Listener: "CHAT", Original: "badword", Message: "badword", Pattern: "badword", Cancelled: true},
		{ID: "evt-0002", Chain: "chat", Player: "alex", Listener: "CHAT", Original: "hi", Message: "hi"},
	} {
		require.NoError(t, st.WriteEvent(ctx, rec))
	}
}

func TestAssertWarningCount(t *testing.T) {
	result := NewResult()
	result.Warnings = []string{
		"recursion loop detected chain=b include=a line=1",
		"recursion loop detected chain=c include=b line=3",
		"failed to include chain chain=a include=x line=2 error=boom",
	}

	assert.NoError(t, assertWarningCount(result, Assertion{Message: "recursion loop detected", Count: 2}))
	assert.NoError(t, assertWarningCount(result, Assertion{Message: "unable to add statement to rule", Count: 0}))

	err := assertWarningCount(result, Assertion{Message: "failed to include chain", Count: 2})
	require.Error(t, err)

	var assertErr *AssertionError
	require.ErrorAs(t, err, &assertErr)
	assert.Equal(t, AssertWarningCount, assertErr.Type)
	assert.Contains(t, assertErr.Actual, "1 warnings")
}

func TestAssertRuleCount(t *testing.T) {
	result := NewResult()
	result.Rules = 3

	assert.NoError(t, assertRuleCount(result, Assertion{Count: 3}))

	err := assertRuleCount(result, Assertion{Count: 4})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Expected: 4 rules")
	assert.Contains(t, err.Error(), "Actual: 3 rules")
}

func TestAssertPermissions_IgnoresOrder(t *testing.T) {
	result := NewResult()
	result.Permissions = []string{"a.b", "c.d"}

	assert.NoError(t, assertPermissions(result, Assertion{Values: []string{"c.d", "a.b"}}))
	assert.Error(t, assertPermissions(result, Assertion{Values: []string{"a.b"}}))
	assert.NoError(t, assertPermissions(NewResult(), Assertion{}), "empty set matches no values")
}

func TestAssertEventCount(t *testing.T) {
	st := openStore(t)
	seedEvents(t, st)
	ctx := context.Background()
	result := NewResult()
	yes, no := true, false

	assert.NoError(t, assertEventCount(ctx, st, result, Assertion{Count: 2}))
	assert.NoError(t, assertEventCount(ctx, st, result, Assertion{Count: 1, Cancelled: &yes}))
	assert.NoError(t, assertEventCount(ctx, st, result, Assertion{Count: 1, Cancelled: &no}))

	err := assertEventCount(ctx, st, result, Assertion{Count: 2, Cancelled: &yes})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "events with cancelled=true")
}

func TestAssertStoredEvent(t *testing.T) {
	st := openStore(t)
	seedEvents(t, st)
	ctx := context.Background()

	err := assertStoredEvent(ctx, st, Assertion{Event: "evt-0001", Expect: map[string]any{
		"player":    "steve",
		"pattern":   "badword",
		"cancelled": true,
		"seq":       1,
	}})
	assert.NoError(t, err)

	err = assertStoredEvent(ctx, st, Assertion{Event: "evt-0002", Expect: map[string]any{"cancelled": true}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `column "cancelled"`)

	err = assertStoredEvent(ctx, st, Assertion{Event: "evt-0001", Expect: map[string]any{"nope": 1}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not present")

	err = assertStoredEvent(ctx, st, Assertion{Event: "evt-9999", Expect: map[string]any{"seq": 1}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "query error")
}

func TestStateValuesEqual(t *testing.T) {
	tests := []struct {
		name     string
		expected any
		actual   any
		want     bool
	}{
		{"string", "a", "a", true},
		{"string bytes", "a", []byte("a"), true},
		{"string mismatch", "a", "b", false},
		{"int vs int64", 2, int64(2), true},
		{"int vs int", 2, 2, true},
		{"int mismatch", 2, int64(3), false},
		{"int64", int64(2), int64(2), true},
		{"bool vs bool", true, true, true},
		{"bool vs int64", true, int64(1), true},
		{"false vs zero", false, int64(0), true},
		{"bool vs string", true, "true", false},
		{"nil both", nil, nil, true},
		{"nil expected", nil, "a", false},
		{"float fallback", 1.5, 1.5, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, stateValuesEqual(tt.expected, tt.actual))
		})
	}
}

func TestEvaluateAssertions(t *testing.T) {
	result := NewResult()
	result.Rules = 2

	errs := EvaluateAssertions(result, []Assertion{
		{Type: AssertRuleCount, Count: 2},
		{Type: AssertEventCount, Count: 0},
		{Type: "bogus"},
	}, nil)

	require.Len(t, errs, 2)
	assert.Contains(t, errs[0], "event_count requires database context")
	assert.Contains(t, errs[1], `unknown assertion type "bogus"`)
}

func TestAssertionError_IncludesTrace(t *testing.T) {
	err := &AssertionError{
		Type:     AssertEventCount,
		Expected: "1 events",
		Actual:   "0 events",
		Trace:    []TraceEvent{{Step: 0, ID: "evt-0001", Player: "steve", Original: "a", Message: "b"}},
	}

	msg := err.Error()
	assert.Contains(t, msg, "Assertion failed: event_count")
	assert.Contains(t, msg, "Full trace:")
	assert.Contains(t, msg, `[0] evt-0001 <steve> "a" -> "b" cancelled=false`)
}
