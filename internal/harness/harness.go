package harness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"strings"

	"github.com/roach88/chainfilter/internal/chain"
	"github.com/roach88/chainfilter/internal/event"
	"github.com/roach88/chainfilter/internal/filter"
	"github.com/roach88/chainfilter/internal/logging"
	"github.com/roach88/chainfilter/internal/permcache"
	"github.com/roach88/chainfilter/internal/store"
	"github.com/roach88/chainfilter/internal/testutil"
)

// Harness is the scenario execution environment.
// It runs scenarios with deterministic event IDs and captured logs.
type Harness struct {
	store  *store.Store
	svc    *filter.Service
	logs   *testutil.LogRecorder
	grants grantTable
}

// grantTable is the permission backend for a run. Steps replace a player's
// grants before filtering.
type grantTable map[string][]string

func (g grantTable) Check(player, permission string) bool {
	return slices.Contains(g[player], permission)
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
//
// Execution flow:
// 1. Create fresh in-memory database and filter service
// 2. Load the scenario's chain and check the expected load outcome
// 3. Filter each step's message and validate its expect clause
// 4. Evaluate assertions against the result and the store
func Run(scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	logs := testutil.NewLogRecorder()
	grants := grantTable{}
	lm := logging.New(logs.Logger(),
		logging.WithDebugMode(logging.DebugLow),
		logging.WithRuleLogWriter(st),
	)

	h := &Harness{
		store:  st,
		logs:   logs,
		grants: grants,
		svc: filter.NewService(scenario.Source(),
			filter.WithLogging(lm),
			filter.WithPermissionCache(permcache.New(grants)),
			filter.WithStore(st),
			filter.WithIDGenerator(testutil.NewSequentialIDs("evt")),
		),
	}

	ctx := context.Background()
	result := NewResult()

	loaded, err := h.load(ctx, scenario, result)
	if err != nil {
		return nil, err
	}
	if loaded {
		if err := h.executeSteps(ctx, scenario.Chain, scenario.Steps, result); err != nil {
			return nil, fmt.Errorf("failed to execute steps: %w", err)
		}
	}

	result.Warnings = h.warnings()

	actx := &AssertionContext{
		Store: st,
		Ctx:   ctx,
	}
	for _, errMsg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(errMsg)
	}

	return result, nil
}

// load loads the scenario chain and reports whether steps should run.
func (h *Harness) load(ctx context.Context, scenario *Scenario, result *Result) (bool, error) {
	c, err := h.svc.Load(ctx, scenario.Chain)
	if err != nil {
		var le *chain.LoadError
		if !errors.As(err, &le) {
			return false, fmt.Errorf("failed to load chain: %w", err)
		}
		result.LoadError = string(le.Code)
		if scenario.LoadError != result.LoadError {
			result.AddError(fmt.Sprintf("load: got %s, expected %s", describeLoad(result.LoadError), describeLoad(scenario.LoadError)))
		}
		return false, nil
	}

	result.Rules = c.RuleCount()
	result.Permissions = append(result.Permissions, c.Permissions()...)
	if scenario.LoadError != "" {
		result.AddError(fmt.Sprintf("load: got success, expected %s", scenario.LoadError))
		return false, nil
	}
	return true, nil
}

func describeLoad(code string) string {
	if code == "" {
		return "success"
	}
	return code
}

// executeSteps filters every step's message and validates its expect clause.
func (h *Harness) executeSteps(ctx context.Context, chainName string, steps []Step, result *Result) error {
	for i, step := range steps {
		h.grants[step.Player] = step.Permissions
		h.svc.Forget(step.Player)

		st, err := h.svc.Filter(ctx, chainName, toInput(step))
		if err != nil {
			return fmt.Errorf("step %d: %w", i, err)
		}

		rec, err := h.store.GetEvent(ctx, st.ID)
		if err != nil {
			return fmt.Errorf("step %d: %w", i, err)
		}

		ev := TraceEvent{
			Step:      i,
			ID:        rec.ID,
			Seq:       rec.Seq,
			Player:    rec.Player,
			Listener:  rec.Listener,
			Original:  rec.Original,
			Message:   rec.Message,
			Pattern:   rec.Pattern,
			Cancelled: rec.Cancelled,
			Stopped:   rec.Stopped,
			Logged:    rec.Logged,
			Responses: st.Responses,
			Log:       h.eventLog(st.ID),
		}
		result.AddTrace(ev)

		if step.Expect != nil {
			for _, msg := range checkExpect(step.Expect, st, ev) {
				result.AddError(fmt.Sprintf("step %d: %s", i, msg))
			}
		}
	}
	return nil
}

// toInput converts a step into a filter input.
func toInput(step Step) filter.Input {
	return filter.Input{Player: step.Player, Listener: step.Listener, Message: step.Message}
}

// eventLog returns every drained log line recorded for an event.
func (h *Harness) eventLog(id string) []string {
	var lines []string
	for _, rec := range h.logs.Records() {
		if rec.Attrs["event"] == id && rec.Level != slog.LevelWarn {
			lines = append(lines, rec.Message)
		}
	}
	return lines
}

// warnings formats every recorded warning with its attributes.
func (h *Harness) warnings() []string {
	out := []string{}
	for _, rec := range h.logs.Records() {
		if rec.Level != slog.LevelWarn {
			continue
		}
		keys := make([]string, 0, len(rec.Attrs))
		for k := range rec.Attrs {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		var b strings.Builder
		b.WriteString(rec.Message)
		for _, k := range keys {
			fmt.Fprintf(&b, " %s=%v", k, rec.Attrs[k])
		}
		out = append(out, b.String())
	}
	return out
}

// checkExpect compares an event outcome against an expect clause and returns
// a message per mismatch.
func checkExpect(exp *Expect, st *event.State, ev TraceEvent) []string {
	var errs []string
	checkBool := func(name string, want *bool, got bool) {
		if want != nil && *want != got {
			errs = append(errs, fmt.Sprintf("%s = %v, expected %v", name, got, *want))
		}
	}

	checkBool("cancel", exp.Cancel, st.Cancel)
	checkBool("stop", exp.Stop, st.Stop)
	checkBool("log", exp.Log, st.Log)
	checkBool("matched", exp.Matched, st.Pattern != nil)

	if exp.Message != nil && *exp.Message != st.Message.Colored() {
		errs = append(errs, fmt.Sprintf("message = %q, expected %q", st.Message.Colored(), *exp.Message))
	}
	if exp.Responses != nil && !slices.Equal(exp.Responses, st.Responses) {
		errs = append(errs, fmt.Sprintf("responses = %q, expected %q", st.Responses, exp.Responses))
	}
	for _, line := range exp.LogContains {
		if !slices.Contains(ev.Log, line) {
			errs = append(errs, fmt.Sprintf("log missing %q (got %q)", line, ev.Log))
		}
	}
	return errs
}
