package harness

// TraceEvent records the outcome of one scenario step.
type TraceEvent struct {
	Step      int      `json:"step"`
	ID        string   `json:"id"`
	Seq       int64    `json:"seq"`
	Player    string   `json:"player"`
	Listener  string   `json:"listener"`
	Original  string   `json:"original"`
	Message   string   `json:"message"`
	Pattern   string   `json:"pattern,omitempty"`
	Cancelled bool     `json:"cancelled"`
	Stopped   bool     `json:"stopped"`
	Logged    bool     `json:"logged"`
	Responses []string `json:"responses,omitempty"`

	// Log holds the event's drained log lines in emission order.
	Log []string `json:"log,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if every expect clause and assertion matched.
	Pass bool `json:"pass"`

	// LoadError is the load error code, empty when the chain loaded.
	LoadError string `json:"load_error,omitempty"`

	// Rules is the loaded chain's rule count, includes counted.
	Rules int `json:"rules"`

	// Permissions is the loaded chain's permission interest set.
	Permissions []string `json:"permissions"`

	// Warnings are the warnings logged during the run, formatted
	// as "message key=value ..." with keys sorted.
	Warnings []string `json:"warnings"`

	// Trace contains one event per executed step.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
// Used as the starting point for test execution.
func NewResult() *Result {
	return &Result{
		Pass:        true,
		Permissions: []string{},
		Warnings:    []string{},
		Trace:       []TraceEvent{},
		Errors:      []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTrace appends a step outcome to the trace.
func (r *Result) AddTrace(ev TraceEvent) {
	r.Trace = append(r.Trace, ev)
}
