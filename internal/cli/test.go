package cli

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/chainfilter/internal/harness"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Update bool   // regenerate golden files
	Filter string // scenario filter (glob pattern)
}

// ScenarioResult holds the result of a single scenario execution.
type ScenarioResult struct {
	Name   string   `json:"name"`
	File   string   `json:"file"`
	Pass   bool     `json:"pass"`
	Golden string   `json:"golden,omitempty"` // "match", "updated" or "missing"
	Errors []string `json:"errors,omitempty"`
}

// TestResult holds the overall test result.
type TestResult struct {
	Scenarios []ScenarioResult `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Total     int              `json:"total"`
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <scenario-file|dir>...",
		Short: "Run scenario files against their rule chains",
		Long: `Run YAML scenarios: each loads its own rules, sends its steps through the
chain and checks the expected outcomes and assertions.

A scenario whose directory holds golden/<file>.golden is also compared
against that snapshot. Use --update to write the snapshots.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, etc.)

Examples:
  chainfilter test ./testdata/scenarios
  chainfilter test ./testdata/scenarios --filter "chat_*"
  chainfilter test ./testdata/scenarios/sign_stop.yaml --update
  chainfilter test ./testdata/scenarios --format json`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(cmd, opts, args)
		},
	}

	cmd.Flags().BoolVar(&opts.Update, "update", false, "regenerate golden files")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scenarios by glob pattern on the file name")

	return cmd
}

func runTests(cmd *cobra.Command, opts *TestOptions, paths []string) error {
	if _, err := filepath.Match(opts.Filter, ""); err != nil {
		return WrapExitError(ExitCommandError, "invalid filter pattern", err)
	}

	var files []string
	for _, p := range paths {
		found, err := findScenarioFiles(p, opts.Filter)
		if err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("failed to find scenarios in %s", p), err)
		}
		files = append(files, found...)
	}

	out := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
	result := TestResult{
		Scenarios: make([]ScenarioResult, 0, len(files)),
		Total:     len(files),
	}

	var text strings.Builder
	if len(files) == 0 {
		text.WriteString("No scenarios found.\n")
	}
	for _, f := range files {
		res := runScenario(f, opts.Update)
		result.Scenarios = append(result.Scenarios, res)
		writeScenarioText(&text, res)
		if res.Pass {
			result.Passed++
		} else {
			result.Failed++
		}
	}

	if len(files) > 0 {
		fmt.Fprintf(&text, "\nTest Summary: %d passed, %d failed, %d total\n", result.Passed, result.Failed, result.Total)
	}

	if result.Failed > 0 {
		msg := fmt.Sprintf("%d scenario(s) failed", result.Failed)
		if err := out.Fail(CodeTestFailed, msg, text.String(), result); err != nil {
			return err
		}
		return NewExitError(ExitFailure, msg)
	}

	if len(files) > 0 {
		text.WriteString("✓ All scenarios passed\n")
	}
	return out.Render(text.String(), result)
}

// findScenarioFiles returns path itself when it is a file, or every YAML
// file under it when it is a directory. Golden directories are skipped.
func findScenarioFiles(path, filter string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		if !matchesFilter(path, filter) {
			return nil, nil
		}
		return []string{path}, nil
	}

	var files []string
	err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == "golden" {
				return filepath.SkipDir
			}
			return nil
		}
		ext := filepath.Ext(p)
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}
		if matchesFilter(p, filter) {
			files = append(files, p)
		}
		return nil
	})
	return files, err
}

func matchesFilter(path, filter string) bool {
	if filter == "" {
		return true
	}
	ok, _ := filepath.Match(filter, scenarioBase(path))
	return ok
}

func scenarioBase(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// runScenario executes a single scenario file and checks its golden file.
func runScenario(file string, update bool) ScenarioResult {
	res := ScenarioResult{Name: scenarioBase(file), File: file}

	scenario, err := harness.LoadScenario(file)
	if err != nil {
		res.Errors = []string{fmt.Sprintf("failed to load scenario: %v", err)}
		return res
	}
	res.Name = scenario.Name

	result, err := harness.Run(scenario)
	if err != nil {
		res.Errors = []string{fmt.Sprintf("execution failed: %v", err)}
		return res
	}
	res.Errors = result.Errors

	data, err := harness.NewSnapshot(scenario, result).Marshal()
	if err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("failed to marshal snapshot: %v", err))
		return res
	}

	goldenPath := goldenFilePath(file)
	switch {
	case update:
		if err := writeGolden(goldenPath, data); err != nil {
			res.Errors = append(res.Errors, err.Error())
			return res
		}
		res.Golden = "updated"
	default:
		want, err := os.ReadFile(goldenPath)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			res.Golden = "missing"
		case err != nil:
			res.Errors = append(res.Errors, fmt.Sprintf("failed to read golden file: %v", err))
		case !bytes.Equal(want, data):
			res.Errors = append(res.Errors, "snapshot does not match golden file (run with --update to regenerate)")
		default:
			res.Golden = "match"
		}
	}

	res.Pass = result.Pass && len(res.Errors) == 0
	return res
}

// goldenFilePath returns the path to the golden file for a scenario.
func goldenFilePath(scenarioFile string) string {
	return filepath.Join(filepath.Dir(scenarioFile), "golden", scenarioBase(scenarioFile)+".golden")
}

func writeGolden(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create golden directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write golden file: %w", err)
	}
	return nil
}

func writeScenarioText(b *strings.Builder, res ScenarioResult) {
	if !res.Pass {
		fmt.Fprintf(b, "✗ %s\n", res.Name)
		for _, e := range res.Errors {
			for _, line := range strings.Split(e, "\n") {
				fmt.Fprintf(b, "  %s\n", line)
			}
		}
		return
	}
	switch res.Golden {
	case "updated":
		fmt.Fprintf(b, "✓ %s (golden updated)\n", res.Name)
	default:
		fmt.Fprintf(b, "✓ %s\n", res.Name)
	}
}
