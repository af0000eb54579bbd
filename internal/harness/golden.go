package harness

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// Snapshot captures everything a scenario run produced that should stay
// stable across changes: the load outcome, warnings and the per-step trace.
type Snapshot struct {
	ScenarioName string       `json:"scenario_name"`
	Chain        string       `json:"chain"`
	LoadError    string       `json:"load_error,omitempty"`
	Rules        int          `json:"rules"`
	Permissions  []string     `json:"permissions"`
	Warnings     []string     `json:"warnings"`
	Trace        []TraceEvent `json:"trace"`
}

// NewSnapshot builds the golden snapshot for a finished run.
func NewSnapshot(scenario *Scenario, result *Result) Snapshot {
	return Snapshot{
		ScenarioName: scenario.Name,
		Chain:        scenario.Chain,
		LoadError:    result.LoadError,
		Rules:        result.Rules,
		Permissions:  result.Permissions,
		Warnings:     result.Warnings,
		Trace:        result.Trace,
	}
}

// Marshal renders the snapshot as indented JSON with a trailing newline.
// Player names in log lines stay readable: <, > and & are not escaped.
func (s Snapshot) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// RunWithGolden executes a scenario and compares its snapshot against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if the snapshot doesn't match.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result against the scenario's golden
// file without re-running it.
func AssertGolden(t *testing.T, scenario *Scenario, result *Result) error {
	t.Helper()

	data, err := NewSnapshot(scenario, result).Marshal()
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenario.Name, data)
	return nil
}
