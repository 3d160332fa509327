package poller

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

// waitFor polls cond until it holds or the timeout expires.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v", timeout)
}

func runs(s *Scheduler, name string) uint64 {
	st, _ := s.Stats(name)
	return st.Runs
}

func TestScheduler_FiresImmediatelyAndPeriodically(t *testing.T) {
	var count atomic.Int64

	s := New()
	if err := s.Add("status", 20*time.Millisecond, func(context.Context) { count.Add(1) }); err != nil {
		t.Fatalf("Add() err=%v", err)
	}

	if count.Load() != 0 {
		t.Fatal("task ran before Start")
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() err=%v", err)
	}
	defer s.Stop()

	waitFor(t, time.Second, func() bool { return count.Load() >= 1 })
	waitFor(t, 2*time.Second, func() bool { return count.Load() >= 4 })

	if got := runs(s, "status"); got < 4 {
		t.Errorf("Stats.Runs = %d, want >= 4", got)
	}
}

func TestScheduler_NoOverlapWithinTrigger(t *testing.T) {
	var active, maxActive, total atomic.Int64

	s := New()
	_ = s.Add("players", 5*time.Millisecond, func(context.Context) {
		n := active.Add(1)
		for {
			m := maxActive.Load()
			if n <= m || maxActive.CompareAndSwap(m, n) {
				break
			}
		}
		time.Sleep(30 * time.Millisecond)
		active.Add(-1)
		total.Add(1)
	})

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() err=%v", err)
	}
	waitFor(t, 2*time.Second, func() bool { return total.Load() >= 3 })
	s.Stop()

	if maxActive.Load() != 1 {
		t.Fatalf("trigger overlapped itself: max concurrency %d", maxActive.Load())
	}
	// 30мс работы при шаге 5мс: лишние тики схлопываются, а не копятся
	st, _ := s.Stats("players")
	if int64(st.Runs) > total.Load()+1 {
		t.Errorf("runs %d exceed completed tasks %d", st.Runs, total.Load())
	}
}

func TestScheduler_TriggersAreIndependent(t *testing.T) {
	var fast atomic.Int64

	s := New()
	_ = s.Add("players", 10*time.Millisecond, func(ctx context.Context) {
		<-ctx.Done() // зависший сетевой вызов
	})
	_ = s.Add("status", 10*time.Millisecond, func(context.Context) { fast.Add(1) })

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() err=%v", err)
	}

	waitFor(t, 2*time.Second, func() bool { return fast.Load() >= 5 })
	s.Stop()
}

func TestScheduler_PanicDoesNotStopTrigger(t *testing.T) {
	var count atomic.Int64

	s := New()
	_ = s.Add("status", 10*time.Millisecond, func(context.Context) {
		if count.Add(1) == 1 {
			panic("boom")
		}
	})

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() err=%v", err)
	}
	defer s.Stop()

	waitFor(t, 2*time.Second, func() bool { return count.Load() >= 3 })

	st, _ := s.Stats("status")
	if st.Panics != 1 {
		t.Errorf("Panics = %d, want 1", st.Panics)
	}
}

func TestScheduler_SuspendResume(t *testing.T) {
	var count atomic.Int64

	s := New()
	_ = s.Add("status", 10*time.Millisecond, func(context.Context) { count.Add(1) })

	if err := s.Suspend("status"); err != nil {
		t.Fatalf("Suspend() err=%v", err)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() err=%v", err)
	}
	defer s.Stop()

	waitFor(t, 2*time.Second, func() bool {
		st, _ := s.Stats("status")
		return st.Skipped >= 3
	})
	if count.Load() != 0 {
		t.Fatalf("suspended trigger ran %d times", count.Load())
	}

	if err := s.Resume("status"); err != nil {
		t.Fatalf("Resume() err=%v", err)
	}
	waitFor(t, 2*time.Second, func() bool { return count.Load() >= 2 })

	if err := s.Suspend("nope"); !errors.Is(err, ErrUnknownTrigger) {
		t.Errorf("Suspend(unknown) = %v, want ErrUnknownTrigger", err)
	}
	if _, ok := s.Stats("nope"); ok {
		t.Error("Stats(unknown) must report false")
	}
}

func TestScheduler_Lifecycle(t *testing.T) {
	s := New()
	task := func(context.Context) {}

	if err := s.Add("status", 0, task); err == nil {
		t.Error("expected error for zero interval")
	}
	if err := s.Add("status", time.Second, nil); err == nil {
		t.Error("expected error for nil task")
	}
	if err := s.Add("status", time.Hour, task); err != nil {
		t.Fatalf("Add() err=%v", err)
	}
	if err := s.Add("status", time.Hour, task); err == nil {
		t.Error("expected error for duplicate trigger")
	}

	if s.Running() {
		t.Fatal("scheduler must be idle before Start")
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() err=%v", err)
	}
	if !s.Running() {
		t.Fatal("scheduler must run after Start")
	}
	if err := s.Start(context.Background()); !errors.Is(err, ErrNotIdle) {
		t.Errorf("second Start() = %v, want ErrNotIdle", err)
	}
	if err := s.Add("players", time.Hour, task); !errors.Is(err, ErrNotIdle) {
		t.Errorf("Add() after Start = %v, want ErrNotIdle", err)
	}

	s.Stop()
	s.Stop()

	if s.Running() {
		t.Fatal("scheduler must not run after Stop")
	}
	if err := s.Start(context.Background()); !errors.Is(err, ErrSchedulerStopped) {
		t.Errorf("Start() after Stop = %v, want ErrSchedulerStopped", err)
	}
}

func TestScheduler_ParentContextCancels(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	var count atomic.Int64
	s := New()
	_ = s.Add("status", 5*time.Millisecond, func(context.Context) { count.Add(1) })
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start() err=%v", err)
	}

	waitFor(t, time.Second, func() bool { return count.Load() >= 1 })
	cancel()
	time.Sleep(30 * time.Millisecond)
	after := count.Load()
	time.Sleep(50 * time.Millisecond)

	if count.Load() != after {
		t.Errorf("trigger kept firing after parent context was cancelled")
	}
	s.Stop()
}
