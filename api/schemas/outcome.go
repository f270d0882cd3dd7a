// api/schemas/outcome.go
package schemas

import (
	"time"
)

// OutcomeStatus tags the result of a single actor task.
type OutcomeStatus string

const (
	StatusSuccess       OutcomeStatus = "success"
	StatusFailure       OutcomeStatus = "failure"
	StatusAlreadyExists OutcomeStatus = "already_exists"
)

// Diagnostics is the debugging context captured when a task finishes.
type Diagnostics struct {
	LastURL        string        `json:"last_url,omitempty"`
	PageTitle      string        `json:"page_title,omitempty"`
	LastHTTPStatus int           `json:"last_http_status,omitempty"`
	Screenshot     string        `json:"screenshot,omitempty"`
	BodyExcerpt    string        `json:"body_excerpt,omitempty"`
	Stack          string        `json:"stack,omitempty"`
	Duration       time.Duration `json:"duration"`
}

// Outcome is the tagged result of exactly one actor task.
type Outcome struct {
	Actor       string        `json:"actor"`
	SessionID   string        `json:"session_id,omitempty"`
	Status      OutcomeStatus `json:"status"`
	Value       any           `json:"value,omitempty"`
	Reason      string        `json:"reason,omitempty"`
	Code        ErrorCode     `json:"code,omitempty"`
	Required    bool          `json:"required"`
	Accepted    bool          `json:"accepted"`
	Diagnostics Diagnostics   `json:"diagnostics"`
}

// Succeeded reports whether the outcome is a plain success.
func (o Outcome) Succeeded() bool { return o.Status == StatusSuccess }

// Verdict is the pass/fail decision for one scenario.
type Verdict struct {
	RunID      string    `json:"run_id"`
	Scenario   string    `json:"scenario"`
	Tags       []string  `json:"tags,omitempty"`
	Passed     bool      `json:"passed"`
	Outcomes   []Outcome `json:"outcomes"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Failures returns the required outcomes that were not accepted.
func (v Verdict) Failures() []Outcome {
	var out []Outcome
	for _, o := range v.Outcomes {
		if o.Required && !o.Accepted {
			out = append(out, o)
		}
	}
	return out
}
