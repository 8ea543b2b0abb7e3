package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met within 2s")
}

func startScheduler(t *testing.T, s *Scheduler) (cancel func()) {
	t.Helper()
	ctx, stop := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	return func() {
		stop()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("Run returned %v, want nil", err)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("scheduler did not return within 2s after cancel")
		}
	}
}

func TestAdd_RejectsBadSpecAndDuplicates(t *testing.T) {
	s := NewScheduler(time.UTC, discardLogger())
	noop := func(context.Context) error { return nil }

	if err := s.Add(Job{Name: "finn", Schedule: "not a cron", Run: noop}); err == nil {
		t.Error("expected error for invalid schedule")
	}
	if err := s.Add(Job{Name: "finn", Schedule: "0 8,18 * * *", Run: noop}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := s.Add(Job{Name: "finn", Schedule: "0 9 * * *", Run: noop}); err == nil {
		t.Error("expected error for duplicate name")
	}
}

func TestRun_CancelReturnsPromptly(t *testing.T) {
	s := NewScheduler(time.UTC, discardLogger())
	if err := s.Add(Job{Name: "sweep", Schedule: "0 3 * * *", Run: func(context.Context) error { return nil }}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	stop := startScheduler(t, s)
	time.Sleep(50 * time.Millisecond)
	stop()
}

func TestScheduledTicksRunJob(t *testing.T) {
	var calls atomic.Int32
	s := NewScheduler(time.UTC, discardLogger())
	if err := s.Add(Job{Name: "nav", Schedule: "@every 1s", Run: func(context.Context) error {
		calls.Add(1)
		return nil
	}}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	stop := startScheduler(t, s)
	defer stop()

	waitFor(t, func() bool { return calls.Load() >= 1 })
}

func TestTrigger_RunsAndRecordsStatus(t *testing.T) {
	s := NewScheduler(time.UTC, discardLogger())
	if err := s.Add(Job{Name: "finn", Schedule: "0 8,18 * * *", Run: func(context.Context) error {
		return errors.New("listing 503")
	}}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	stop := startScheduler(t, s)
	defer stop()

	if err := s.Trigger("finn"); err != nil {
		t.Fatalf("Trigger: %v", err)
	}
	waitFor(t, func() bool { return s.Status()[0].LastRun != nil })

	st := s.Status()[0]
	if st.Name != "finn" || st.Schedule != "0 8,18 * * *" {
		t.Errorf("unexpected status %+v", st)
	}
	if st.LastError != "listing 503" {
		t.Errorf("LastError = %q, want listing 503", st.LastError)
	}
	if st.NextRun == nil || st.NextRun.Hour()%10 != 8 {
		t.Errorf("NextRun = %v, want 08:00 or 18:00", st.NextRun)
	}
}

func TestTrigger_UnknownJob(t *testing.T) {
	s := NewScheduler(time.UTC, discardLogger())
	for name, fn := range map[string]func(string) error{"trigger": s.Trigger, "pause": s.Pause, "resume": s.Resume} {
		if err := fn("linkedin"); !errors.Is(err, ErrUnknownJob) {
			t.Errorf("%s: got %v, want ErrUnknownJob", name, err)
		}
	}
}

func TestTrigger_WhileRunning(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	var calls atomic.Int32
	s := NewScheduler(time.UTC, discardLogger())
	if err := s.Add(Job{Name: "nav", Schedule: "0 9,19 * * *", Run: func(context.Context) error {
		if calls.Add(1) == 1 {
			close(started)
		}
		<-release
		return nil
	}}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	stop := startScheduler(t, s)
	defer stop()

	if err := s.Trigger("nav"); err != nil {
		t.Fatalf("Trigger: %v", err)
	}
	<-started
	if !s.Status()[0].Running {
		t.Error("expected Running while job executes")
	}
	if err := s.Trigger("nav"); !errors.Is(err, ErrJobRunning) {
		t.Errorf("second Trigger = %v, want ErrJobRunning", err)
	}
	close(release)
	waitFor(t, func() bool { return !s.Status()[0].Running })
	if got := calls.Load(); got != 1 {
		t.Errorf("calls = %d, want 1", got)
	}
}

func TestPause_SkipsScheduledTicks(t *testing.T) {
	var calls atomic.Int32
	s := NewScheduler(time.UTC, discardLogger())
	if err := s.Add(Job{Name: "sweep", Schedule: "@every 1s", Run: func(context.Context) error {
		calls.Add(1)
		return nil
	}}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := s.Pause("sweep"); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	stop := startScheduler(t, s)
	defer stop()

	time.Sleep(1500 * time.Millisecond)
	if got := calls.Load(); got != 0 {
		t.Errorf("paused job ran %d times, want 0", got)
	}
	if !s.Status()[0].Paused {
		t.Error("expected Paused in status")
	}

	if err := s.Resume("sweep"); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	waitFor(t, func() bool { return calls.Load() >= 1 })
}

func TestTrigger_RejectedAfterShutdown(t *testing.T) {
	var calls atomic.Int32
	s := NewScheduler(time.UTC, discardLogger())
	if err := s.Add(Job{Name: "sweep", Schedule: "0 3 * * *", Run: func(context.Context) error {
		calls.Add(1)
		return nil
	}}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	stop := startScheduler(t, s)
	stop()

	if err := s.Trigger("sweep"); !errors.Is(err, ErrStopping) {
		t.Errorf("Trigger after shutdown = %v, want ErrStopping", err)
	}
	if got := calls.Load(); got != 0 {
		t.Errorf("calls = %d, want 0", got)
	}
}
