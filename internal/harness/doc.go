// Package harness runs YAML filter scenarios against real rule chains.
//
// Each run builds a fresh filter.Service over the scenario's rule sources,
// backed by an in-memory store, deterministic event IDs and a recording
// logger. Steps go through the same Load and Filter calls the CLI uses, so a
// passing scenario exercises the compiler, the include resolver and the
// execution engine end to end.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	chain: chat
//	rules:
//	  chat: |
//	    match badword
//	    then deny
//	    include common
//	  common: |
//	    match spam+
//	    then replace ***
//	steps:
//	  - player: steve
//	    listener: CHAT
//	    message: "what a badword"
//	    permissions: [filter.trader]
//	    expect:
//	      cancel: true
//	      matched: true
//	      log_contains:
//	        - "<steve> Original message cancelled."
//	assertions:
//	  - type: warning_count
//	    message: recursion loop detected
//	    count: 0
//	  - type: stored_event
//	    event: evt-0001
//	    expect: { cancelled: true, pattern: badword }
//
// rules_dir may replace rules to read *.txt files from disk. A scenario that
// sets load_error (SOURCE_NOT_FOUND, READ_FAILED or EMPTY_CHAIN) expects the
// load to fail with that code and has no steps.
//
// Event IDs are assigned sequentially as evt-0001, evt-0002 and so on, so
// stored_event assertions and golden files stay stable.
//
// # Golden Files
//
// RunWithGolden writes the load outcome, warnings and trace as indented JSON
// to testdata/golden/<name>.golden. Regenerate with:
//
//	go test ./internal/harness -update
package harness
