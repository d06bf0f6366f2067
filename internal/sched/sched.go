// Package sched triggers runs on a cron schedule.
package sched

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler wraps one parsed cron expression
type Scheduler struct {
	expr     string
	schedule cron.Schedule
}

// Parse validates a five-field cron expression
func Parse(expr string) (*Scheduler, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	schedule, err := parser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("parsing cron expression %q: %w", expr, err)
	}
	return &Scheduler{expr: expr, schedule: schedule}, nil
}

// Expression returns the original cron expression
func (s *Scheduler) Expression() string {
	return s.expr
}

// Next returns the first firing time after from
func (s *Scheduler) Next(from time.Time) time.Time {
	return s.schedule.Next(from)
}

// Run invokes fn at every firing time until stop closes. Errors from fn are
// passed to onError and do not stop the schedule; a nil onError drops them.
func (s *Scheduler) Run(stop <-chan struct{}, fn func(firedAt time.Time) error, onError func(error)) {
	for {
		next := s.Next(time.Now())
		timer := time.NewTimer(time.Until(next))
		select {
		case <-stop:
			timer.Stop()
			return
		case firedAt := <-timer.C:
			if err := fn(firedAt); err != nil && onError != nil {
				onError(err)
			}
		}
	}
}
