package scheduler

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestScheduler_RunsFunction(t *testing.T) {
	var calls atomic.Int32
	s := New(func() error {
		calls.Add(1)
		return nil
	}, 10*time.Millisecond, zerolog.Nop())

	s.Start()
	defer s.Stop()

	waitFor(t, time.Second, func() bool { return calls.Load() >= 2 })
}

func TestScheduler_StartIsIdempotent(t *testing.T) {
	var calls atomic.Int32
	s := New(func() error {
		calls.Add(1)
		time.Sleep(20 * time.Millisecond)
		return nil
	}, time.Hour, zerolog.Nop())

	s.Start()
	s.Start()
	s.Start()
	defer s.Stop()

	// With an hour of delay only a single worker invocation can have
	// happened; duplicate workers would show up as extra calls.
	waitFor(t, time.Second, func() bool { return calls.Load() == 1 })
	time.Sleep(50 * time.Millisecond)
	if got := calls.Load(); got != 1 {
		t.Errorf("expected 1 call, got %d", got)
	}
}

func TestScheduler_StopJoinsWorker(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	s := New(func() error {
		close(started)
		<-release
		return nil
	}, time.Hour, zerolog.Nop())

	s.Start()
	<-started

	stopped := make(chan struct{})
	go func() {
		s.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned while the run was still in flight")
	case <-time.After(30 * time.Millisecond):
	}

	close(release)
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Stop did not join the worker")
	}

	if s.IsRunning() {
		t.Error("expected IsRunning=false after Stop")
	}
}

func TestScheduler_StopTwice(t *testing.T) {
	s := New(func() error { return nil }, 10*time.Millisecond, zerolog.Nop())
	s.Start()
	s.Stop()
	s.Stop()
}

func TestScheduler_SwallowsErrors(t *testing.T) {
	var calls atomic.Int32
	s := New(func() error {
		calls.Add(1)
		return errors.New("boom")
	}, 10*time.Millisecond, zerolog.Nop())

	s.Start()
	defer s.Stop()

	waitFor(t, time.Second, func() bool { return calls.Load() >= 3 })
}

func TestScheduler_SwallowsPanics(t *testing.T) {
	var calls atomic.Int32
	s := New(func() error {
		calls.Add(1)
		panic("boom")
	}, 10*time.Millisecond, zerolog.Nop())

	s.Start()
	defer s.Stop()

	waitFor(t, time.Second, func() bool { return calls.Load() >= 2 })
}

func TestScheduler_RunnersHistory(t *testing.T) {
	s := New(func() error { return nil }, 10*time.Millisecond, zerolog.Nop())

	s.Start()
	waitFor(t, time.Second, func() bool { return len(s.RunnersHistory()) >= 3 })
	s.Stop()

	history := s.RunnersHistory()
	for i, rec := range history {
		if rec.RunnerID != i+1 {
			t.Errorf("record %d: expected runner_id %d, got %d", i, i+1, rec.RunnerID)
		}
		if rec.ExecutedAt.IsZero() {
			t.Errorf("record %d: executed_at not set", i)
		}
	}
	for i := 1; i < len(history); i++ {
		if history[i].ExecutedAt.Before(history[i-1].ExecutedAt) {
			t.Errorf("history out of order at %d", i)
		}
	}
}

func TestScheduler_RestartAfterStop(t *testing.T) {
	var calls atomic.Int32
	s := New(func() error {
		calls.Add(1)
		return nil
	}, 10*time.Millisecond, zerolog.Nop())

	s.Start()
	waitFor(t, time.Second, func() bool { return calls.Load() >= 1 })
	s.Stop()

	before := calls.Load()
	s.Start()
	defer s.Stop()
	waitFor(t, time.Second, func() bool { return calls.Load() > before })
}
