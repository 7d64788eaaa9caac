// Package inprocess runs deferred jobs on timers inside the server process.
package inprocess

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cloudwego/hertz/pkg/common/hlog"

	"aitown/internal/app/ports"
)

type Config struct {
	// MaxRetries bounds re-runs of a failed job; zero retries until the job
	// succeeds. Errors wrapping ports.ErrPermanent are never retried.
	MaxRetries  int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
	Now         func() time.Time
}

func DefaultConfig() Config {
	return Config{
		MaxRetries:  0,
		BaseBackoff: 10 * time.Millisecond,
		MaxBackoff:  time.Second,
		Now:         time.Now,
	}
}

type Scheduler struct {
	cfg    Config
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	timers map[*time.Timer]struct{}
	closed bool
	wg     sync.WaitGroup
}

func New(cfg Config) *Scheduler {
	def := DefaultConfig()
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = def.BaseBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = def.MaxBackoff
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{cfg: cfg, ctx: ctx, cancel: cancel, timers: map[*time.Timer]struct{}{}}
}

func (s *Scheduler) ScheduleAt(at time.Time, job ports.Job) {
	s.ScheduleAfter(at.Sub(s.cfg.Now()), job)
}

func (s *Scheduler) ScheduleAfter(d time.Duration, job ports.Job) {
	s.after(max(d, 0), job, 0)
}

func (s *Scheduler) after(d time.Duration, job ports.Job, attempt int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.wg.Add(1)
	var t *time.Timer
	t = time.AfterFunc(d, func() {
		defer s.wg.Done()
		s.mu.Lock()
		delete(s.timers, t)
		s.mu.Unlock()
		s.run(job, attempt)
	})
	s.timers[t] = struct{}{}
}

func (s *Scheduler) run(job ports.Job, attempt int) {
	if s.ctx.Err() != nil {
		return
	}
	err := job.Run(s.ctx)
	switch {
	case err == nil:
		return
	case s.ctx.Err() != nil:
		return
	case errors.Is(err, ports.ErrPermanent):
		hlog.CtxErrorf(s.ctx, "scheduler: %s for world %s failed permanently: %v", job.Name, job.WorldID, err)
	case s.cfg.MaxRetries > 0 && attempt >= s.cfg.MaxRetries:
		hlog.CtxErrorf(s.ctx, "scheduler: %s for world %s failed after %d attempts: %v", job.Name, job.WorldID, attempt+1, err)
	default:
		wait := s.backoff(attempt)
		if errors.Is(err, ports.ErrConflict) {
			hlog.CtxDebugf(s.ctx, "scheduler: %s for world %s conflicted, retry %d in %s", job.Name, job.WorldID, attempt+1, wait)
		} else {
			hlog.CtxWarnf(s.ctx, "scheduler: %s for world %s failed, retry %d in %s: %v", job.Name, job.WorldID, attempt+1, wait, err)
		}
		s.after(wait, job, attempt+1)
	}
}

func (s *Scheduler) backoff(attempt int) time.Duration {
	if attempt > 30 {
		return s.cfg.MaxBackoff
	}
	d := s.cfg.BaseBackoff << attempt
	if d <= 0 || d > s.cfg.MaxBackoff {
		return s.cfg.MaxBackoff
	}
	return d
}

// Pending reports jobs waiting on a timer.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Close cancels pending timers and waits for running jobs to return.
func (s *Scheduler) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	for t := range s.timers {
		if t.Stop() {
			s.wg.Done()
		}
		delete(s.timers, t)
	}
	s.mu.Unlock()
	s.cancel()
	s.wg.Wait()
}
