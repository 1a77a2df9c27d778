package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// TickFunc is invoked on every scheduled run with the start of its bucket.
type TickFunc func(ctx context.Context, bucket time.Time) error

// Options tune scheduler behaviour. A non-empty Cron expression replaces the
// fixed Interval.
type Options struct {
	Interval     time.Duration
	Cron         string
	AlignToStart bool
	StartupDelay time.Duration
}

// Scheduler drives periodic maintenance jobs.
type Scheduler struct {
	opts     Options
	schedule cron.Schedule
	logger   zerolog.Logger
}

// New validates opts and constructs a Scheduler.
func New(opts Options, logger zerolog.Logger) (*Scheduler, error) {
	s := &Scheduler{opts: opts, logger: logger.With().Str("component", "scheduler").Logger()}
	if opts.Cron != "" {
		schedule, err := cron.ParseStandard(opts.Cron)
		if err != nil {
			return nil, fmt.Errorf("parse cron %q: %w", opts.Cron, err)
		}
		s.schedule = schedule
		return s, nil
	}
	if opts.Interval <= 0 {
		return nil, errors.New("scheduler interval must be positive")
	}
	return s, nil
}

// Run blocks, invoking tick on schedule until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context, tick TickFunc) error {
	if s.opts.StartupDelay > 0 {
		timer := time.NewTimer(s.opts.StartupDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	if s.schedule != nil {
		return s.runCron(ctx, tick)
	}

	next := s.nextTick(time.Now().UTC())
	for {
		delay := time.Until(next)
		if delay < 0 {
			next = s.nextTick(time.Now().UTC())
			delay = time.Until(next)
		}

		timer := time.NewTimer(delay)
		s.logger.Debug().Time("next_bucket", next).Msg("waiting for next bucket")

		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		s.execute(ctx, tick, s.bucketStart(next))
		next = next.Add(s.opts.Interval)
	}
}

func (s *Scheduler) runCron(ctx context.Context, tick TickFunc) error {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	c.Schedule(s.schedule, cron.FuncJob(func() {
		s.execute(ctx, tick, time.Now().UTC().Truncate(time.Second))
	}))

	s.logger.Info().Str("cron", s.opts.Cron).Time("next_run", s.schedule.Next(time.Now())).Msg("cron schedule started")
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	return ctx.Err()
}

func (s *Scheduler) execute(ctx context.Context, tick TickFunc, bucket time.Time) {
	s.logger.Info().Time("bucket", bucket).Msg("executing scheduled tick")
	if err := tick(ctx, bucket); err != nil {
		s.logger.Error().Err(err).Time("bucket", bucket).Msg("tick execution failed")
	}
}

func (s *Scheduler) nextTick(now time.Time) time.Time {
	if !s.opts.AlignToStart {
		return now.Add(s.opts.Interval)
	}
	bucket := now.Truncate(s.opts.Interval)
	if !bucket.After(now) {
		bucket = bucket.Add(s.opts.Interval)
	}
	return bucket
}

func (s *Scheduler) bucketStart(t time.Time) time.Time {
	if !s.opts.AlignToStart {
		return t
	}
	return t.Truncate(s.opts.Interval)
}
