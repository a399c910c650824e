// Package reaper sweeps repositories for stale run slots on a cron
// schedule, reclaiming locks left behind by crashed pipeline processes.
package reaper

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/flowsmith/flowsmith/internal/lock"
)

// Reaper periodically runs the coordinator's stale-slot sweep
type Reaper struct {
	coordinator lock.Coordinator
	schedule    cron.Schedule

	mu      sync.Mutex
	lastRun time.Time
	running bool

	stopChan chan struct{}
	stopOnce sync.Once
}

// ParseCron parses a standard 5-field cron expression
func ParseCron(expr string) (cron.Schedule, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	return parser.Parse(expr)
}

// New creates a reaper sweeping on the given cron expression
func New(coordinator lock.Coordinator, cronExpr string) (*Reaper, error) {
	schedule, err := ParseCron(cronExpr)
	if err != nil {
		return nil, fmt.Errorf("reaper cron %q: %w", cronExpr, err)
	}
	return &Reaper{
		coordinator: coordinator,
		schedule:    schedule,
		stopChan:    make(chan struct{}),
	}, nil
}

// NextRun returns the next scheduled sweep time
func (r *Reaper) NextRun() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	last := r.lastRun
	if last.IsZero() {
		last = time.Now()
	}
	return r.schedule.Next(last)
}

// ShouldRun reports whether a sweep is due
func (r *Reaper) ShouldRun() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return false
	}

	lastRun := r.lastRun
	if lastRun.IsZero() {
		lastRun = time.Now().Add(-24 * time.Hour)
	}
	return time.Now().After(r.schedule.Next(lastRun))
}

// RunOnce performs one sweep immediately
func (r *Reaper) RunOnce(ctx context.Context) int {
	r.mu.Lock()
	r.running = true
	r.mu.Unlock()

	reclaimed := r.coordinator.ReapStale(ctx)
	if reclaimed > 0 {
		log.Printf("reaper: reclaimed %d stale slot(s)", reclaimed)
	}

	r.mu.Lock()
	r.running = false
	r.lastRun = time.Now()
	r.mu.Unlock()

	return reclaimed
}

// Start begins the sweep loop, blocking until Stop or context cancellation
func (r *Reaper) Start(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopChan:
			return
		case <-ticker.C:
			if r.ShouldRun() {
				r.RunOnce(ctx)
			}
		}
	}
}

// Stop stops the sweep loop
func (r *Reaper) Stop() {
	r.stopOnce.Do(func() { close(r.stopChan) })
}
