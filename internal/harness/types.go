package harness

import "github.com/roach88/outline/internal/record"

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true if no step expectation and no assertion failed.
	Pass bool `json:"pass"`

	// Errors contains one message per failure.
	Errors []string `json:"errors,omitempty"`

	// Outlines maps each replica to its rendered outline.
	Outlines map[string]string `json:"outlines"`

	// Server holds the server's records, ordered by id.
	Server []record.Record `json:"server"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{Pass: true, Outlines: make(map[string]string)}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
