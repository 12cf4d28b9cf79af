package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrPanic wraps a panic recovered from a task.
var ErrPanic = errors.New("task panicked")

type Task func(ctx context.Context) error

type LoopConfig struct {
	Interval   time.Duration // e.g. 5*time.Minute
	Offset     time.Duration // delay after each interval boundary, e.g. 5s
	Cooldown   time.Duration // wait after a panic instead of the next boundary
	Timeout    time.Duration // per-run budget, 0 = none
	RunOnStart bool
	OnPanic    func(recovered any)
	Logger     *zap.Logger
}

// Loop runs a task on interval boundaries until stopped.
type Loop struct {
	task Task
	cfg  LoopConfig
	log  *zap.Logger
	now  func() time.Time

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	done    chan struct{}
	cancel  context.CancelFunc
}

func NewLoop(task Task, cfg LoopConfig) *Loop {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Loop{
		task: task,
		cfg:  cfg,
		log:  cfg.Logger.Named("scheduler"),
		now:  time.Now,
	}
}

// NextRun returns the first interval boundary plus offset strictly after now.
func NextRun(now time.Time, interval, offset time.Duration) time.Time {
	next := now.Truncate(interval).Add(offset)
	for !next.After(now) {
		next = next.Add(interval)
	}
	return next
}

// Start launches the loop. It reports false if the loop was already running.
func (l *Loop) Start(ctx context.Context) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.running {
		l.log.Info("already running")
		return false
	}

	ctx, cancel := context.WithCancel(ctx)
	l.running = true
	l.stopCh = make(chan struct{})
	l.done = make(chan struct{})
	l.cancel = cancel

	go l.run(ctx, l.stopCh, l.done)

	l.log.Info("started",
		zap.Duration("interval", l.cfg.Interval),
		zap.Duration("offset", l.cfg.Offset),
		zap.Bool("runOnStart", l.cfg.RunOnStart),
	)
	return true
}

// Stop cancels any run in progress and waits for the loop to exit.
func (l *Loop) Stop() {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return
	}
	l.running = false
	close(l.stopCh)
	l.cancel()
	done := l.done
	l.mu.Unlock()

	<-done
	l.log.Info("stopped")
}

func (l *Loop) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}

// Do runs task once outside the schedule, with the same timeout and panic
// recovery as scheduled runs. A nil task runs the loop's own task.
func (l *Loop) Do(ctx context.Context, task Task) error {
	if task == nil {
		task = l.task
	}
	return l.runOnce(ctx, task)
}

func (l *Loop) run(ctx context.Context, stopCh, done chan struct{}) {
	defer close(done)
	defer func() {
		l.mu.Lock()
		if l.stopCh == stopCh {
			l.running = false
		}
		l.mu.Unlock()
	}()

	var wait time.Duration
	if !l.cfg.RunOnStart {
		wait = l.untilNext()
	}

	for {
		timer := time.NewTimer(wait)
		select {
		case <-stopCh:
			timer.Stop()
			return
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		err := l.runOnce(ctx, l.task)
		switch {
		case errors.Is(err, ErrPanic):
			wait = l.cfg.Cooldown
			l.log.Warn("cooling down after panic", zap.Duration("cooldown", wait))
			continue
		case err != nil:
			l.log.Debug("run returned error", zap.Error(err))
		}
		wait = l.untilNext()
	}
}

func (l *Loop) untilNext() time.Duration {
	now := l.now()
	return NextRun(now, l.cfg.Interval, l.cfg.Offset).Sub(now)
}

func (l *Loop) runOnce(ctx context.Context, task Task) (err error) {
	if l.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.cfg.Timeout)
		defer cancel()
	}

	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%w: %v", ErrPanic, rec)
			l.log.Error("task panicked", zap.Any("panic", rec), zap.Stack("stack"))
			if l.cfg.OnPanic != nil {
				l.cfg.OnPanic(rec)
			}
		}
	}()

	return task(ctx)
}
