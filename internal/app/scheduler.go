package app

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/lox/rizz/internal/lifecycle"
)

const DefaultSchedule = "*/15 * * * *"

// Scheduler periodically dispatches refresh events and reloads whatever
// they reset.
type Scheduler struct {
	session *Session
	cron    *cron.Cron
	now     func() time.Time
	// ctx is set by Run before the cron starts.
	ctx context.Context
}

// NewScheduler accepts standard five field cron expressions and
// descriptors such as "@every 10m".
func NewScheduler(session *Session, schedule string) (*Scheduler, error) {
	s := &Scheduler{
		session: session,
		cron: cron.New(cron.WithParser(cron.NewParser(
			cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
		))),
		now: time.Now,
		ctx: context.Background(),
	}
	if schedule == "" {
		schedule = DefaultSchedule
	}
	if _, err := s.cron.AddFunc(schedule, func() { s.tick(s.ctx, lifecycle.Tick) }); err != nil {
		return nil, fmt.Errorf("parse schedule %q: %w", schedule, err)
	}
	return s, nil
}

// Run preloads once as a foreground event, then follows the schedule until
// ctx is done, when a background event is dispatched.
func (s *Scheduler) Run(ctx context.Context) error {
	s.ctx = ctx
	s.tick(ctx, lifecycle.Foreground)

	s.cron.Start()
	log.Printf("watch: scheduler started")
	<-ctx.Done()

	stopped := s.cron.Stop()
	<-stopped.Done()
	s.session.Dispatch(lifecycle.NewEvent(lifecycle.Background, s.now()))
	log.Printf("watch: scheduler stopped")
	return nil
}

func (s *Scheduler) tick(ctx context.Context, kind lifecycle.Kind) {
	s.session.Dispatch(lifecycle.NewEvent(kind, s.now()))
	if err := s.session.Preload(ctx); err != nil {
		log.Printf("watch: preload: %v", err)
	}
}

// Watch runs a Scheduler for schedule until ctx is done.
func (s *Session) Watch(ctx context.Context, schedule string) error {
	sched, err := NewScheduler(s, schedule)
	if err != nil {
		return err
	}
	return sched.Run(ctx)
}
