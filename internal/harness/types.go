package harness

// StepResult records how one step went.
type StepResult struct {
	Index  int    `json:"index"`
	Action string `json:"action"`
	Epoch  int64  `json:"epoch"`
	// Code is the symbolic exit code of the step's message, empty for steps that send none.
	Code  string `json:"code,omitempty"`
	Trace string `json:"trace,omitempty"`
	Pass  bool   `json:"pass"`
}

// Summary is the final state of the ledger.
type Summary struct {
	Schedules    int    `json:"schedules"`
	Revoked      int    `json:"revoked"`
	Holders      int    `json:"holders"`
	TotalAmount  string `json:"total_amount"`
	Withdrawable string `json:"withdrawable"`
	Pool         string `json:"pool"`
}

// Result is the outcome of running a scenario.
type Result struct {
	Scenario string `json:"scenario"`
	Variant  string `json:"variant"`

	// Pass is true if every step behaved as expected and no invariant was violated.
	Pass bool `json:"pass"`

	Steps   []StepResult `json:"steps"`
	Errors  []string     `json:"errors,omitempty"`
	Summary *Summary     `json:"summary,omitempty"`
}

func NewResult(s *Scenario) *Result {
	return &Result{
		Scenario: s.Name,
		Variant:  s.Variant,
		Pass:     true,
		Steps:    []StepResult{},
		Errors:   []string{},
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
