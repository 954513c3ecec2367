// Package scheduler fires callbacks on a wall-clock schedule in a single
// timezone. It is deliberately minimal: daily and weekly fixed times plus a
// minute tick, one timer goroutine per job. Ticks missed while the process
// was down are not replayed.
package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

type job struct {
	name string
	next func(after time.Time) time.Time
	run  func(fired time.Time)
}

type Scheduler struct {
	loc  *time.Location
	jobs []job
	wg   sync.WaitGroup
	now  func() time.Time
}

func New(loc *time.Location) *Scheduler {
	return &Scheduler{
		loc: loc,
		now: time.Now,
	}
}

// Daily registers fn to run once per day at hour:minute wall-clock time.
func (s *Scheduler) Daily(name string, hour, minute int, fn func()) {
	s.jobs = append(s.jobs, job{
		name: name,
		next: func(after time.Time) time.Time { return NextDaily(after, hour, minute) },
		run:  func(time.Time) { fn() },
	})
}

// Weekly registers fn to run once per week at the given weekday and time.
func (s *Scheduler) Weekly(name string, weekday time.Weekday, hour, minute int, fn func()) {
	s.jobs = append(s.jobs, job{
		name: name,
		next: func(after time.Time) time.Time { return NextWeekly(after, weekday, hour, minute) },
		run:  func(time.Time) { fn() },
	})
}

// EveryMinute registers fn to run at each minute boundary, receiving the
// boundary it fired for.
func (s *Scheduler) EveryMinute(name string, fn func(now time.Time)) {
	s.jobs = append(s.jobs, job{
		name: name,
		next: nextMinute,
		run:  fn,
	})
}

// Start launches one goroutine per registered job. Cancelling ctx stops
// new ticks; in-flight callbacks finish and Wait returns after them.
func (s *Scheduler) Start(ctx context.Context) {
	for _, j := range s.jobs {
		s.wg.Add(1)
		go s.runJob(ctx, j)
	}
	zap.S().Info("scheduler started", zap.Int("jobs", len(s.jobs)))
}

// Wait blocks until every job goroutine has exited.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) runJob(ctx context.Context, j job) {
	defer s.wg.Done()

	nextRun := j.next(s.now().In(s.loc))
	timer := time.NewTimer(time.Until(nextRun))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			j.run(nextRun)
		}

		nextRun = j.next(s.now().In(s.loc))
		timer.Reset(time.Until(nextRun))
	}
}

// NextDaily returns the first hour:minute wall-clock instant strictly
// after the reference time, in its location.
func NextDaily(after time.Time, hour, minute int) time.Time {
	next := time.Date(after.Year(), after.Month(), after.Day(), hour, minute, 0, 0, after.Location())
	if !next.After(after) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// NextWeekly returns the first matching weekday hour:minute instant
// strictly after the reference time.
func NextWeekly(after time.Time, weekday time.Weekday, hour, minute int) time.Time {
	next := NextDaily(after, hour, minute)
	for next.Weekday() != weekday {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

func nextMinute(after time.Time) time.Time {
	return after.Truncate(time.Minute).Add(time.Minute)
}
