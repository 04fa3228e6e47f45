package jobs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type fakePurger struct {
	calls atomic.Int32
	err   error
}

func (f *fakePurger) DeleteExpired(context.Context) (int64, error) {
	f.calls.Add(1)
	return 2, f.err
}

type fakeSweeper struct{ calls atomic.Int32 }

func (f *fakeSweeper) Cleanup() { f.calls.Add(1) }

func TestRunCleanup(t *testing.T) {
	purger := &fakePurger{}
	sweeper := &fakeSweeper{}
	s := NewScheduler("", purger, discard, sweeper)

	s.RunCleanup(context.Background())

	if purger.calls.Load() != 1 {
		t.Errorf("purger calls = %d, want 1", purger.calls.Load())
	}
	if sweeper.calls.Load() != 1 {
		t.Errorf("sweeper calls = %d, want 1", sweeper.calls.Load())
	}
}

func TestRunCleanupPurgeErrorStillSweeps(t *testing.T) {
	purger := &fakePurger{err: errors.New("db down")}
	sweeper := &fakeSweeper{}
	s := NewScheduler("", purger, discard, sweeper)

	s.RunCleanup(context.Background())

	if sweeper.calls.Load() != 1 {
		t.Errorf("sweeper calls = %d, want 1", sweeper.calls.Load())
	}
}

func TestStartInvalidSchedule(t *testing.T) {
	s := NewScheduler("not a schedule", &fakePurger{}, discard)
	if err := s.Start(context.Background()); err == nil {
		t.Fatal("expected error for invalid schedule")
	}
}

func TestStartRunsOnSchedule(t *testing.T) {
	purger := &fakePurger{}
	s := NewScheduler("@every 1s", purger, discard)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer s.Stop()

	deadline := time.Now().Add(3 * time.Second)
	for purger.calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(50 * time.Millisecond)
	}
	if purger.calls.Load() == 0 {
		t.Fatal("cleanup never ran")
	}
}
