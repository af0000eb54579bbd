package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/chainfilter/internal/chain"
)

// DefaultListener is used for steps that do not name a listener.
const DefaultListener = "CHAT"

// Scenario defines a rule chain and the messages to push through it.
// Scenarios check both per-message outcomes and whole-run properties such as
// load warnings and the permission interest set.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Rules holds inline rule sources keyed by chain name.
	// Exactly one of Rules and RulesDir must be set.
	Rules map[string]string `yaml:"rules,omitempty"`

	// RulesDir is a directory of rule files. Relative paths are resolved
	// against the scenario file's directory.
	RulesDir string `yaml:"rules_dir,omitempty"`

	// Chain is the chain to load and filter through.
	Chain string `yaml:"chain"`

	// LoadError is the expected load error code (e.g. EMPTY_CHAIN).
	// When set, the load must fail with that code and no steps run.
	LoadError string `yaml:"load_error,omitempty"`

	// Steps are the messages filtered in order.
	Steps []Step `yaml:"steps,omitempty"`

	// Assertions validate the whole run after every step has executed.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Step is one message pushed through the chain.
type Step struct {
	Player   string `yaml:"player"`
	Listener string `yaml:"listener,omitempty"`
	Message  string `yaml:"message"`

	// Permissions granted to the player for this step only.
	Permissions []string `yaml:"permissions,omitempty"`

	// Expect is checked against the final event state.
	// If nil, the step only contributes to the trace.
	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect lists the outcome fields to check. Unset fields are not checked.
type Expect struct {
	Cancel    *bool    `yaml:"cancel,omitempty"`
	Stop      *bool    `yaml:"stop,omitempty"`
	Log       *bool    `yaml:"log,omitempty"`
	Matched   *bool    `yaml:"matched,omitempty"`
	Message   *string  `yaml:"message,omitempty"`
	Responses []string `yaml:"responses,omitempty"`

	// LogContains lists lines that must appear in the event's drained log.
	LogContains []string `yaml:"log_contains,omitempty"`
}

// Assertion validates whole-run results.
type Assertion struct {
	// Type specifies the assertion type:
	// - "warning_count": Check a warning was logged exactly Count times
	// - "rule_count": Check the loaded chain's rule count
	// - "permissions": Check the chain's permission interest set
	// - "event_count": Check how many events were stored
	// - "stored_event": Check stored columns of one event
	Type string `yaml:"type"`

	// Message is the warning message (used by warning_count).
	Message string `yaml:"message,omitempty"`

	// Count is the expected number (used by warning_count, rule_count, event_count).
	Count int `yaml:"count,omitempty"`

	// Values are the expected permissions (used by permissions).
	Values []string `yaml:"values,omitempty"`

	// Cancelled restricts event_count to cancelled or delivered events.
	Cancelled *bool `yaml:"cancelled,omitempty"`

	// Event is the event ID (used by stored_event).
	Event string `yaml:"event,omitempty"`

	// Expect contains expected column values (used by stored_event).
	// Subset match - only specified columns are validated.
	Expect map[string]any `yaml:"expect,omitempty"`
}

// Assertion type constants.
const (
	AssertWarningCount = "warning_count"
	AssertRuleCount    = "rule_count"
	AssertPermissions  = "permissions"
	AssertEventCount   = "event_count"
	AssertStoredEvent  = "stored_event"
)

// LoadScenario reads and parses a scenario YAML file.
// A relative rules_dir is resolved against the file's directory.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	return LoadScenarioWithBasePath(path, filepath.Dir(path))
}

// LoadScenarioWithBasePath reads and parses a scenario YAML file,
// resolving a relative rules_dir against basePath.
func LoadScenarioWithBasePath(path, basePath string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	scenario, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}

	if scenario.RulesDir != "" && !filepath.IsAbs(scenario.RulesDir) && basePath != "" {
		scenario.RulesDir = filepath.Join(basePath, scenario.RulesDir)
	}
	if scenario.RulesDir != "" {
		if info, err := os.Stat(scenario.RulesDir); err != nil || !info.IsDir() {
			return nil, fmt.Errorf("invalid scenario: rules_dir not found: %s", scenario.RulesDir)
		}
	}
	return scenario, nil
}

// ParseScenario decodes a scenario from YAML and validates it.
// Relative rules_dir paths are left as written.
func ParseScenario(data []byte) (*Scenario, error) {
	// Parse YAML with strict field validation (catches typos like "step:" vs "steps:")
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	for i := range scenario.Steps {
		if scenario.Steps[i].Listener == "" {
			scenario.Steps[i].Listener = DefaultListener
		}
	}
	return &scenario, nil
}

// Source returns the rule source the scenario's chains are read from.
func (s *Scenario) Source() chain.Source {
	if s.RulesDir != "" {
		return chain.DirSource{Dir: s.RulesDir}
	}
	return chain.MapSource(s.Rules)
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if s.Chain == "" {
		return fmt.Errorf("chain is required")
	}

	switch {
	case len(s.Rules) == 0 && s.RulesDir == "":
		return fmt.Errorf("one of rules or rules_dir is required")
	case len(s.Rules) > 0 && s.RulesDir != "":
		return fmt.Errorf("rules and rules_dir are mutually exclusive")
	}

	if s.LoadError != "" {
		if len(s.Steps) > 0 {
			return fmt.Errorf("steps cannot run when load_error is expected")
		}
		if !knownLoadError(s.LoadError) {
			return fmt.Errorf("unknown load_error %q", s.LoadError)
		}
	} else if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if step.Player == "" {
			return fmt.Errorf("steps[%d]: player is required", i)
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

func knownLoadError(code string) bool {
	switch chain.LoadErrorCode(code) {
	case chain.ErrCodeSourceNotFound, chain.ErrCodeReadFailed, chain.ErrCodeLineTooLong, chain.ErrCodeEmptyChain:
		return true
	}
	return false
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	if a.Count < 0 {
		return fmt.Errorf("assertions[%d]: count must be non-negative", index)
	}

	switch a.Type {
	case AssertWarningCount:
		if a.Message == "" {
			return fmt.Errorf("assertions[%d]: message is required for warning_count", index)
		}
	case AssertRuleCount, AssertPermissions, AssertEventCount:
	case AssertStoredEvent:
		if a.Event == "" {
			return fmt.Errorf("assertions[%d]: event is required for stored_event", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for stored_event", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
