package reaper

import (
	"context"
	"testing"

	"github.com/flowsmith/flowsmith/internal/lock"
)

type fakeCoordinator struct {
	reaps     int
	reclaimed int
}

func (f *fakeCoordinator) Acquire(context.Context, lock.Request) (*lock.Slot, error) {
	panic("not used")
}
func (f *fakeCoordinator) Release(*lock.Slot) {}
func (f *fakeCoordinator) ReapStale(context.Context) int {
	f.reaps++
	return f.reclaimed
}

func TestParseCron(t *testing.T) {
	tests := []struct {
		expr    string
		wantErr bool
	}{
		{"*/15 * * * *", false}, // every 15 minutes
		{"0 22 * * *", false},   // 10 PM daily
		{"invalid", true},
	}

	for _, tt := range tests {
		_, err := ParseCron(tt.expr)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseCron(%q) error = %v, wantErr %v", tt.expr, err, tt.wantErr)
		}
	}
}

func TestNew_RejectsBadCron(t *testing.T) {
	if _, err := New(&fakeCoordinator{}, "not a cron"); err == nil {
		t.Fatal("expected error for invalid cron expression")
	}
}

func TestRunOnce(t *testing.T) {
	coord := &fakeCoordinator{reclaimed: 2}
	r, err := New(coord, "*/15 * * * *")
	if err != nil {
		t.Fatal(err)
	}

	if got := r.RunOnce(context.Background()); got != 2 {
		t.Errorf("RunOnce = %d, want 2", got)
	}
	if coord.reaps != 1 {
		t.Errorf("ReapStale called %d times, want 1", coord.reaps)
	}
	if r.lastRun.IsZero() {
		t.Error("lastRun not recorded")
	}
}

func TestShouldRun(t *testing.T) {
	r, err := New(&fakeCoordinator{}, "*/15 * * * *")
	if err != nil {
		t.Fatal(err)
	}

	// Never ran: a sweep is overdue.
	if !r.ShouldRun() {
		t.Error("first sweep should be due immediately")
	}

	r.RunOnce(context.Background())
	if r.ShouldRun() {
		t.Error("sweep must not be due right after running")
	}

	if r.NextRun().IsZero() {
		t.Error("NextRun should return a time")
	}
}
