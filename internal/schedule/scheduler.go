package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Job is the work fired on each tick. date is the tick time in the schedule's zone.
type Job func(ctx context.Context, date time.Time) string

// Scheduler fires a job once a day at a wall-clock time.
type Scheduler struct {
	hour   int
	minute int
	loc    *time.Location
	job    Job
	logger zerolog.Logger
	now    func() time.Time
	after  func(time.Duration) <-chan time.Time
}

// NewScheduler parses dailyAt as HH:MM in loc.
func NewScheduler(dailyAt string, loc *time.Location, job Job, logger zerolog.Logger) (*Scheduler, error) {
	hour, minute, err := parseDailyAt(dailyAt)
	if err != nil {
		return nil, err
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Scheduler{
		hour:   hour,
		minute: minute,
		loc:    loc,
		job:    job,
		logger: logger,
		now:    time.Now,
		after:  time.After,
	}, nil
}

// Next returns the first fire time strictly after t.
func (s *Scheduler) Next(t time.Time) time.Time {
	local := t.In(s.loc)
	next := time.Date(local.Year(), local.Month(), local.Day(), s.hour, s.minute, 0, 0, s.loc)
	if !next.After(local) {
		next = time.Date(local.Year(), local.Month(), local.Day()+1, s.hour, s.minute, 0, 0, s.loc)
	}
	return next
}

// Start blocks until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	if s == nil || s.job == nil {
		return
	}
	for {
		next := s.Next(s.now())
		s.logger.Info().Time("next_run", next).Msg("scheduler waiting")

		select {
		case <-ctx.Done():
			return
		case <-s.after(time.Until(next)):
			s.runOnce(ctx, next)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context, fired time.Time) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Interface("panic", r).Msg("scheduled check panicked")
		}
	}()
	report := s.job(ctx, fired.In(s.loc))
	s.logger.Info().Str("report", report).Msg("scheduled check finished")
}

func parseDailyAt(value string) (int, int, error) {
	t, err := time.Parse("15:04", value)
	if err != nil {
		return 0, 0, fmt.Errorf("schedule %q: expected HH:MM", value)
	}
	return t.Hour(), t.Minute(), nil
}
