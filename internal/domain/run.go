package domain

import (
	"strconv"
	"strings"
	"time"
)

// Outcome is the terminal result of a pipeline run. Computed once when the
// run exits; immutable afterward.
type Outcome string

const (
	OutcomeSucceeded        Outcome = "succeeded"
	OutcomeExhaustedRetries Outcome = "exhausted-retries"
	OutcomePlannerFailed    Outcome = "planner-failed"
	OutcomeFatalError       Outcome = "fatal-error"

	// OutcomeLockTimeout means the run never started: the exclusion
	// coordinator could not grant a slot before its deadline. Recoverable;
	// the caller may requeue the issue.
	OutcomeLockTimeout Outcome = "lock-timeout"
)

// Success reports whether the run produced a usable result
func (o Outcome) Success() bool {
	return o == OutcomeSucceeded
}

// State identifies a position in the attempt state machine
type State string

const (
	StateAcquiring State = "acquiring"
	StatePlanning  State = "planning"
	StateCoding    State = "coding"
	StateGating    State = "gating"
	StateReviewing State = "reviewing"
	StateDone      State = "done"
)

// GateResult is the captured result of one quality-gate command
type GateResult struct {
	Name     string
	Command  string
	Passed   bool
	Output   string
	Duration time.Duration
}

// Attempt records one coder execution cycle: the feedback it was given,
// what the coder produced, and how the quality gates judged it.
type Attempt struct {
	Index       int
	Feedback    string
	CoderOutput string
	Gates       []GateResult
	StartedAt   time.Time
	FinishedAt  time.Time
}

// Passed reports whether every gate of the attempt passed
func (a *Attempt) Passed() bool {
	for _, g := range a.Gates {
		if !g.Passed {
			return false
		}
	}
	return true
}

// FailedGateNames returns the names of failing gates in execution order
func (a *Attempt) FailedGateNames() []string {
	var names []string
	for _, g := range a.Gates {
		if !g.Passed {
			names = append(names, g.Name)
		}
	}
	return names
}

// Event is a structured state-transition report emitted by the pipeline so
// downstream consumers (run store, notifiers, web UI) never have to re-derive
// progress from logs.
type Event struct {
	RunID     string
	Issue     int
	State     State
	Attempt   int
	Message   string
	Gates     []GateResult
	Timestamp time.Time
}

// RunResult is the full record of one pipeline run
type RunResult struct {
	RunID        string
	Issue        Issue
	Repo         string
	Branch       string
	Outcome      Outcome
	Attempts     []Attempt
	Plan         string
	Review       string
	ReviewNote   string // set when the reviewer step degraded to a warning
	FinalAttempt int
	FailingGates []string
	Error        string
	PRURL        string
	StartedAt    time.Time
	FinishedAt   time.Time
}

// Summary returns a one-line description of the terminal state, including
// the attempt the run stopped at and the last failing gate names.
func (r *RunResult) Summary() string {
	var b strings.Builder
	b.WriteString("issue #")
	b.WriteString(strconv.Itoa(r.Issue.Number))
	b.WriteString(" ")
	b.WriteString(string(r.Outcome))
	if r.FinalAttempt > 0 {
		b.WriteString(" (attempt ")
		b.WriteString(strconv.Itoa(r.FinalAttempt))
		b.WriteString(")")
	}
	if len(r.FailingGates) > 0 {
		b.WriteString(" failing: ")
		b.WriteString(strings.Join(r.FailingGates, ", "))
	}
	return b.String()
}
