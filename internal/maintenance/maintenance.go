// Package maintenance runs housekeeping on a wall-clock schedule. Today that
// is a daily recycle of the acquisition session, which bounds how long a
// single browser process lives regardless of failures.
package maintenance

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron"
)

// Recycler is implemented by refresher.Refresher.
type Recycler interface {
	RequestRecycle()
}

// Scheduler owns the cron jobs.
type Scheduler struct {
	cron   *gocron.Scheduler
	target Recycler
	job    *gocron.Job
}

// New returns a Scheduler that recycles target's session every day at the
// "HH:MM" time at, evaluated in loc. An empty at schedules nothing.
func New(at string, loc *time.Location, target Recycler) (*Scheduler, error) {
	s := &Scheduler{
		cron:   gocron.NewScheduler(loc),
		target: target,
	}
	if at == "" {
		return s, nil
	}
	job, err := s.cron.Every(1).Day().At(at).Do(s.recycle)
	if err != nil {
		return nil, fmt.Errorf("maintenance: schedule recycle at %q: %w", at, err)
	}
	s.job = job
	return s, nil
}

// Run starts the jobs and blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	if s.job == nil {
		slog.Info("maintenance: no jobs scheduled")
		<-ctx.Done()
		return
	}
	s.cron.StartAsync()
	slog.Info("maintenance: started", "next_recycle", s.job.NextRun())
	<-ctx.Done()
	s.cron.Stop()
	slog.Info("maintenance: stopped")
}

// NextRecycle returns when the next recycle fires, or zero if none is scheduled.
func (s *Scheduler) NextRecycle() time.Time {
	if s.job == nil {
		return time.Time{}
	}
	return s.job.NextRun()
}

func (s *Scheduler) recycle() {
	slog.Info("maintenance: requesting session recycle")
	s.target.RequestRecycle()
}
