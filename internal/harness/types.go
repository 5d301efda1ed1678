package harness

// TraceEvent records one step of the flow.
type TraceEvent struct {
	Args []string `json:"args"`
	Exit int      `json:"exit"`

	// Error is the error code of a failed step (see cli.ErrorCode).
	Error string `json:"error,omitempty"`

	// Created and Removed list the files below the data root that the step
	// added or deleted, relative and slash-separated.
	Created []string `json:"created,omitempty"`
	Removed []string `json:"removed,omitempty"`

	Stdout string `json:"-"`
	Stderr string `json:"-"`
}

// Result is the outcome of a scenario.
type Result struct {
	// Pass is true when every expect clause and assertion held.
	Pass bool `json:"pass"`

	Trace []TraceEvent `json:"trace"`

	// Errors is empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Root is the data root the scenario ran in.
	Root string `json:"-"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
