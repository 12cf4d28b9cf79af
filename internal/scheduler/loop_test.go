package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestNextRun_AlignsToBoundary(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 7, 30, 0, time.UTC)
	got := NextRun(now, 5*time.Minute, 5*time.Second)
	want := time.Date(2026, 3, 1, 10, 10, 5, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("got %s, want %s", got, want)
	}
}

func TestNextRun_WithinOffsetWindow(t *testing.T) {
	// 10:10:02 is past the boundary but before boundary+offset.
	now := time.Date(2026, 3, 1, 10, 10, 2, 0, time.UTC)
	got := NextRun(now, 5*time.Minute, 5*time.Second)
	want := time.Date(2026, 3, 1, 10, 10, 5, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("got %s, want %s", got, want)
	}
}

func TestNextRun_ExactlyOnTarget(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 10, 5, 0, time.UTC)
	got := NextRun(now, 5*time.Minute, 5*time.Second)
	want := time.Date(2026, 3, 1, 10, 15, 5, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("got %s, want %s", got, want)
	}
}

func TestLoop_RunOnStartAndStop(t *testing.T) {
	var calls atomic.Int32
	ran := make(chan struct{}, 1)
	l := NewLoop(func(ctx context.Context) error {
		calls.Add(1)
		select {
		case ran <- struct{}{}:
		default:
		}
		return nil
	}, LoopConfig{Interval: time.Hour, RunOnStart: true})

	if !l.Start(context.Background()) {
		t.Fatal("first Start should succeed")
	}
	if l.Start(context.Background()) {
		t.Fatal("second Start should report already running")
	}

	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("task did not run on start")
	}

	l.Stop()
	if l.Running() {
		t.Fatal("loop still running after Stop")
	}
	l.Stop() // idempotent
	if calls.Load() != 1 {
		t.Fatalf("expected 1 run, got %d", calls.Load())
	}
}

func TestLoop_PanicCooldown(t *testing.T) {
	var calls atomic.Int32
	var panics atomic.Int32
	second := make(chan struct{})

	l := NewLoop(func(ctx context.Context) error {
		switch calls.Add(1) {
		case 1:
			panic("boom")
		case 2:
			close(second)
		}
		return nil
	}, LoopConfig{
		Interval:   time.Hour,
		Cooldown:   20 * time.Millisecond,
		RunOnStart: true,
		OnPanic:    func(any) { panics.Add(1) },
	})

	l.Start(context.Background())
	defer l.Stop()

	select {
	case <-second:
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not resume after cooldown")
	}
	if panics.Load() != 1 {
		t.Fatalf("expected OnPanic once, got %d", panics.Load())
	}
}

func TestLoop_DoRecoversPanic(t *testing.T) {
	l := NewLoop(func(ctx context.Context) error {
		panic("kaboom")
	}, LoopConfig{})

	err := l.Do(context.Background(), nil)
	if !errors.Is(err, ErrPanic) {
		t.Fatalf("expected ErrPanic, got %v", err)
	}
	t.Logf("Correctly recovered: %v", err)
}

func TestLoop_StopCancelsRun(t *testing.T) {
	started := make(chan struct{})
	l := NewLoop(func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}, LoopConfig{Interval: time.Hour, RunOnStart: true})

	l.Start(context.Background())
	<-started

	done := make(chan struct{})
	go func() {
		l.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not cancel the running task")
	}
}

func TestLoop_TimeoutApplied(t *testing.T) {
	l := NewLoop(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}, LoopConfig{Timeout: 10 * time.Millisecond})

	err := l.Do(context.Background(), nil)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestLoop_DoRunsGivenTask(t *testing.T) {
	l := NewLoop(func(ctx context.Context) error {
		t.Fatal("loop task should not run")
		return nil
	}, LoopConfig{})

	var ran bool
	if err := l.Do(context.Background(), func(ctx context.Context) error {
		ran = true
		return nil
	}); err != nil {
		t.Fatalf("Do: %v", err)
	}
	if !ran {
		t.Fatal("given task did not run")
	}
}
