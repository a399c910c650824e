package observer

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/flowsmith/flowsmith/internal/domain"
)

func TestObserver_DetectStuck(t *testing.T) {
	obs := New(5 * time.Minute)

	if !obs.IsStuck(time.Now().Add(-10 * time.Minute)) {
		t.Error("run active for 10 minutes should be detected as stuck")
	}
	if obs.IsStuck(time.Now().Add(-2 * time.Minute)) {
		t.Error("run active for 2 minutes should not be stuck")
	}
	if obs.IsStuck(time.Time{}) {
		t.Error("zero start time must not count as stuck")
	}
}

func TestObserver_Metrics(t *testing.T) {
	obs := New(5 * time.Minute)

	start := time.Now()
	obs.RecordResult(&domain.RunResult{
		Issue:        domain.Issue{Number: 1},
		Outcome:      domain.OutcomeSucceeded,
		FinalAttempt: 1,
		StartedAt:    start,
		FinishedAt:   start.Add(5 * time.Minute),
	})
	obs.RecordResult(&domain.RunResult{
		Issue:        domain.Issue{Number: 2},
		Outcome:      domain.OutcomeExhaustedRetries,
		FinalAttempt: 3,
		StartedAt:    start,
		FinishedAt:   start.Add(10 * time.Minute),
	})

	metrics := obs.GetMetrics()

	if metrics.TotalSucceeded != 1 || metrics.TotalFailed != 1 {
		t.Errorf("Succeeded/Failed = %d/%d, want 1/1", metrics.TotalSucceeded, metrics.TotalFailed)
	}
	if metrics.TotalAttempts != 4 {
		t.Errorf("TotalAttempts = %d, want 4", metrics.TotalAttempts)
	}
	if metrics.AvgDuration != 7*time.Minute+30*time.Second {
		t.Errorf("AvgDuration = %v, want 7m30s", metrics.AvgDuration)
	}

	recent := obs.RecentIssues(time.Minute)
	if len(recent) != 2 {
		t.Errorf("RecentIssues = %v, want both", recent)
	}
}

func TestStopWatcher(t *testing.T) {
	dir := t.TempDir()
	stops := make(chan int, 4)

	sw, err := NewStopWatcher(dir, func(issue int) { stops <- issue })
	if err != nil {
		t.Fatal(err)
	}
	defer sw.Stop()

	sw.Start(context.Background())

	if err := os.WriteFile(filepath.Join(dir, "stop-42"), nil, 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case issue := <-stops:
		if issue != 42 {
			t.Errorf("stop issue = %d, want 42", issue)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no stop callback for stop-42")
	}

	if _, err := os.Stat(filepath.Join(dir, "stop-42")); !os.IsNotExist(err) {
		t.Error("stop file not removed after handling")
	}

	if err := os.WriteFile(filepath.Join(dir, "stop-all"), nil, 0o644); err != nil {
		t.Fatal(err)
	}
	select {
	case issue := <-stops:
		if issue != StopRequestAll {
			t.Errorf("stop issue = %d, want StopRequestAll", issue)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no stop callback for stop-all")
	}
}

func TestStopWatcher_HonorsPreexistingFiles(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "stop-7"), nil, 0o644); err != nil {
		t.Fatal(err)
	}

	stops := make(chan int, 1)
	sw, err := NewStopWatcher(dir, func(issue int) { stops <- issue })
	if err != nil {
		t.Fatal(err)
	}
	defer sw.Stop()

	sw.Start(context.Background())

	select {
	case issue := <-stops:
		if issue != 7 {
			t.Errorf("stop issue = %d, want 7", issue)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("pre-existing stop file not honored")
	}
}
