// Package pipeline drives one issue from slot acquisition through planning,
// bounded coding attempts, quality gates, and review to a terminal outcome.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/flowsmith/flowsmith/internal/agent"
	"github.com/flowsmith/flowsmith/internal/config"
	"github.com/flowsmith/flowsmith/internal/domain"
	"github.com/flowsmith/flowsmith/internal/gates"
	"github.com/flowsmith/flowsmith/internal/lock"
	"github.com/flowsmith/flowsmith/internal/parser"
	"github.com/flowsmith/flowsmith/internal/prompts"
)

// EventSink consumes pipeline state-transition events. Sinks must not block;
// slow consumers are expected to buffer on their side.
type EventSink interface {
	Handle(ev domain.Event)
}

// EventSinkFunc adapts a function to the EventSink interface
type EventSinkFunc func(ev domain.Event)

func (f EventSinkFunc) Handle(ev domain.Event) { f(ev) }

// GateRunner runs all configured quality gates once
type GateRunner interface {
	RunAll(ctx context.Context) ([]domain.GateResult, error)
}

// Runner executes the attempt state machine for single issues. One Runner
// handles one repository; runs may execute concurrently.
type Runner struct {
	Config      *config.Config
	Repo        string
	Coordinator lock.Coordinator
	Invoker     agent.Invoker
	Gates       GateRunner
	Prompts     *prompts.Loader
	Sinks       []EventSink
}

// Run takes an issue through the full pipeline and always returns a result;
// errors are folded into the result's outcome. The run slot is released on
// every exit path, exactly once.
func (r *Runner) Run(ctx context.Context, issue domain.Issue) *domain.RunResult {
	res := &domain.RunResult{
		RunID:     uuid.NewString(),
		Issue:     issue,
		Repo:      r.Repo,
		StartedAt: time.Now(),
	}

	r.emit(res, domain.StateAcquiring, 0, "waiting for run slot", nil)

	slot, err := r.Coordinator.Acquire(ctx, lock.Request{Issue: issue.Number, Repo: r.Repo})
	if err != nil {
		switch {
		case errors.Is(err, lock.ErrAcquireTimeout):
			return r.finish(res, domain.OutcomeLockTimeout, err)
		case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
			return r.finish(res, domain.OutcomeFatalError, fmt.Errorf("run cancelled: %w", err))
		default:
			return r.finish(res, domain.OutcomeFatalError, err)
		}
	}
	defer r.Coordinator.Release(slot)

	r.emit(res, domain.StatePlanning, 0, "planning", nil)

	meta, err := r.plan(ctx, res)
	if err != nil {
		var pe *agent.ProcessError
		if errors.As(err, &pe) {
			return r.finish(res, domain.OutcomeFatalError, err)
		}
		if ctx.Err() != nil {
			return r.finish(res, domain.OutcomeFatalError, fmt.Errorf("run cancelled: %w", ctx.Err()))
		}
		return r.finish(res, domain.OutcomePlannerFailed, err)
	}
	res.Branch = meta.BranchName(issue.Number)

	feedback := ""
	for i := 1; i <= r.Config.Pipeline.MaxAttempts; i++ {
		if ctx.Err() != nil {
			return r.finish(res, domain.OutcomeFatalError, fmt.Errorf("run cancelled: %w", ctx.Err()))
		}

		attempt, err := r.attempt(ctx, res, i, feedback)
		if err != nil {
			var pe *agent.ProcessError
			if errors.As(err, &pe) {
				return r.finish(res, domain.OutcomeFatalError, err)
			}
			if ctx.Err() != nil {
				return r.finish(res, domain.OutcomeFatalError, fmt.Errorf("run cancelled: %w", err))
			}
			return r.finish(res, domain.OutcomeFatalError, err)
		}
		res.Attempts = append(res.Attempts, *attempt)
		res.FinalAttempt = i

		if attempt.Passed() {
			r.review(ctx, res)
			return r.finish(res, domain.OutcomeSucceeded, nil)
		}

		res.FailingGates = attempt.FailedGateNames()
		feedback = gates.BuildFeedback(attempt.Gates, r.Config.Pipeline.MaxCharsPerFeedbackItem)
		log.Printf("pipeline: attempt %d/%d for #%d failed gates: %s",
			i, r.Config.Pipeline.MaxAttempts, issue.Number, strings.Join(res.FailingGates, ", "))
	}

	return r.finish(res, domain.OutcomeExhaustedRetries,
		fmt.Errorf("gates still failing after %d attempts: %s",
			r.Config.Pipeline.MaxAttempts, strings.Join(res.FailingGates, ", ")))
}

// plan runs the planner step and parses its output
func (r *Runner) plan(ctx context.Context, res *domain.RunResult) (*parser.PlanMeta, error) {
	prompt, err := r.Prompts.BuildPlannerPrompt(prompts.PlannerData{Issue: res.Issue})
	if err != nil {
		return nil, err
	}

	out, err := r.Invoker.Invoke(ctx, agent.RolePlanner, prompt)
	if err != nil {
		return nil, err
	}

	meta, body, err := parser.ParsePlan([]byte(out))
	if err != nil {
		return nil, err
	}
	res.Plan = string(body)
	return meta, nil
}

// attempt runs one coder + gates cycle. A coder that starts but fails is
// recorded as a failed attempt with a synthetic gate result, so the failure
// text feeds the next attempt like any gate output would.
func (r *Runner) attempt(ctx context.Context, res *domain.RunResult, index int, feedback string) (*domain.Attempt, error) {
	attempt := &domain.Attempt{
		Index:     index,
		Feedback:  feedback,
		StartedAt: time.Now(),
	}
	defer func() { attempt.FinishedAt = time.Now() }()

	r.emit(res, domain.StateCoding, index, "coding", nil)

	prompt, err := r.Prompts.BuildCoderPrompt(prompts.CoderData{
		Issue:       res.Issue,
		Plan:        res.Plan,
		Feedback:    feedback,
		Attempt:     index,
		MaxAttempts: r.Config.Pipeline.MaxAttempts,
	})
	if err != nil {
		return nil, err
	}

	out, err := r.Invoker.Invoke(ctx, agent.RoleCoder, prompt)
	if err != nil {
		var pe *agent.ProcessError
		if errors.As(err, &pe) {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		attempt.Gates = []domain.GateResult{{
			Name:   "coder",
			Passed: false,
			Output: err.Error(),
		}}
		r.emit(res, domain.StateGating, index, "coder step failed", attempt.Gates)
		return attempt, nil
	}
	attempt.CoderOutput = out

	r.emit(res, domain.StateGating, index, "running quality gates", nil)

	results, err := r.Gates.RunAll(ctx)
	if err != nil {
		return nil, err
	}
	attempt.Gates = results
	r.emit(res, domain.StateGating, index, gateSummary(results), results)
	return attempt, nil
}

// review runs the reviewer step. A failing reviewer degrades to a note on
// the result instead of failing a run whose gates all passed.
func (r *Runner) review(ctx context.Context, res *domain.RunResult) {
	r.emit(res, domain.StateReviewing, res.FinalAttempt, "reviewing", nil)

	prompt, err := r.Prompts.BuildReviewerPrompt(prompts.ReviewerData{Issue: res.Issue, Plan: res.Plan})
	if err != nil {
		res.ReviewNote = fmt.Sprintf("review skipped: %v", err)
		return
	}

	out, err := r.Invoker.Invoke(ctx, agent.RoleReviewer, prompt)
	if err != nil {
		log.Printf("pipeline: reviewer failed for #%d: %v", res.Issue.Number, err)
		res.ReviewNote = fmt.Sprintf("review skipped: %v", err)
		return
	}
	res.Review = strings.TrimSpace(out)
}

func (r *Runner) finish(res *domain.RunResult, outcome domain.Outcome, err error) *domain.RunResult {
	res.Outcome = outcome
	res.FinishedAt = time.Now()
	if err != nil {
		res.Error = err.Error()
	}
	msg := res.Summary()
	r.emit(res, domain.StateDone, res.FinalAttempt, msg, nil)
	log.Printf("pipeline: %s", msg)
	return res
}

func (r *Runner) emit(res *domain.RunResult, state domain.State, attempt int, msg string, gateResults []domain.GateResult) {
	ev := domain.Event{
		RunID:     res.RunID,
		Issue:     res.Issue.Number,
		State:     state,
		Attempt:   attempt,
		Message:   msg,
		Gates:     gateResults,
		Timestamp: time.Now(),
	}
	for _, s := range r.Sinks {
		s.Handle(ev)
	}
}

func gateSummary(results []domain.GateResult) string {
	passed := 0
	for _, g := range results {
		if g.Passed {
			passed++
		}
	}
	return fmt.Sprintf("%d/%d gates passed", passed, len(results))
}
