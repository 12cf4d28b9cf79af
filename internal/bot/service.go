package bot

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kjannette/microtrend-backend/internal/scheduler"
)

type ServiceOptions struct {
	Interval   time.Duration
	Offset     time.Duration
	Cooldown   time.Duration
	RunOnStart bool
}

// Service owns the engine and the loop that drives it.
type Service struct {
	engine *Engine
	loop   *scheduler.Loop
	base   context.Context
	notify Notifier
	log    *zap.Logger
}

// NewService binds the loop to base, which must outlive any single request;
// cancelling it stops the loop.
func NewService(base context.Context, engine *Engine, opts ServiceOptions, notify Notifier, log *zap.Logger) *Service {
	if notify == nil {
		notify = nopNotifier{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	s := &Service{
		engine: engine,
		base:   base,
		notify: notify,
		log:    log.Named("service"),
	}

	timeout := opts.Interval - opts.Offset
	if timeout <= 0 {
		timeout = opts.Interval
	}
	s.loop = scheduler.NewLoop(s.cycle, scheduler.LoopConfig{
		Interval:   opts.Interval,
		Offset:     opts.Offset,
		Cooldown:   opts.Cooldown,
		Timeout:    timeout,
		RunOnStart: opts.RunOnStart,
		Logger:     log,
		OnPanic: func(rec any) {
			notify.Send(fmt.Sprintf("Cycle crashed: %v. Cooling down %s.", rec, opts.Cooldown))
		},
	})
	return s
}

func (s *Service) cycle(ctx context.Context) error {
	_, err := s.engine.RunCycle(ctx)
	return err
}

func (s *Service) Engine() *Engine { return s.engine }

func (s *Service) Start() bool {
	if !s.loop.Start(s.base) {
		return false
	}
	st := s.engine.Status()
	s.notify.Send(fmt.Sprintf("Bot started: %s %s (%s, %dx)", st.Mode, st.Symbol, st.Venue, st.Leverage))
	return true
}

func (s *Service) Stop() {
	if !s.loop.Running() {
		return
	}
	s.loop.Stop()
	s.notify.Send("Bot stopped")
}

func (s *Service) Running() bool { return s.loop.Running() }

// CheckNow runs one cycle immediately and returns its report.
func (s *Service) CheckNow(ctx context.Context) (*CycleReport, error) {
	var report *CycleReport
	err := s.loop.Do(ctx, func(ctx context.Context) error {
		r, err := s.engine.RunCycle(ctx)
		report = r
		return err
	})
	return report, err
}
