// Package observer tracks run health: aggregate metrics over finished runs
// and a filesystem-based cancellation channel for running ones.
package observer

import (
	"sync"
	"time"

	"github.com/flowsmith/flowsmith/internal/domain"
)

// Observer collects metrics over finished pipeline runs
type Observer struct {
	stuckThreshold time.Duration

	completions []completion
	mu          sync.RWMutex
}

type completion struct {
	Issue       int
	Outcome     domain.Outcome
	Attempts    int
	Duration    time.Duration
	CompletedAt time.Time
}

// Metrics holds aggregated metrics
type Metrics struct {
	TotalSucceeded int
	TotalFailed    int
	TotalAttempts  int
	AvgDuration    time.Duration
}

// New creates a new Observer
func New(stuckThreshold time.Duration) *Observer {
	return &Observer{
		stuckThreshold: stuckThreshold,
	}
}

// IsStuck reports whether a run that started at the given time has exceeded
// the stuck threshold without finishing.
func (o *Observer) IsStuck(startedAt time.Time) bool {
	if startedAt.IsZero() {
		return false
	}
	return time.Since(startedAt) > o.stuckThreshold
}

// RecordResult records a finished run
func (o *Observer) RecordResult(res *domain.RunResult) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.completions = append(o.completions, completion{
		Issue:       res.Issue.Number,
		Outcome:     res.Outcome,
		Attempts:    res.FinalAttempt,
		Duration:    res.FinishedAt.Sub(res.StartedAt),
		CompletedAt: time.Now(),
	})
}

// GetMetrics returns aggregated metrics
func (o *Observer) GetMetrics() Metrics {
	o.mu.RLock()
	defer o.mu.RUnlock()

	var metrics Metrics
	var totalDuration time.Duration

	for _, c := range o.completions {
		if c.Outcome.Success() {
			metrics.TotalSucceeded++
		} else {
			metrics.TotalFailed++
		}
		metrics.TotalAttempts += c.Attempts
		totalDuration += c.Duration
	}

	if total := len(o.completions); total > 0 {
		metrics.AvgDuration = totalDuration / time.Duration(total)
	}

	return metrics
}

// RecentIssues returns the issues whose runs finished within the window
func (o *Observer) RecentIssues(since time.Duration) []int {
	o.mu.RLock()
	defer o.mu.RUnlock()

	cutoff := time.Now().Add(-since)
	var result []int

	for _, c := range o.completions {
		if c.CompletedAt.After(cutoff) {
			result = append(result, c.Issue)
		}
	}

	return result
}
