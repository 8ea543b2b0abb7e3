package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
)

var (
	// ErrUnknownJob is returned for a job name that was never added.
	ErrUnknownJob = errors.New("unknown job")
	// ErrJobRunning is returned by Trigger when the job is already executing.
	ErrJobRunning = errors.New("job already running")
	// ErrStopping is returned by Trigger once Run has begun shutting down.
	ErrStopping = errors.New("scheduler is shutting down")
)

// Job is a named unit of work run on a cron schedule.
type Job struct {
	Name     string
	Schedule string // standard 5-field cron spec or descriptor such as "@every 6h"
	Run      func(ctx context.Context) error
}

// JobStatus is a point-in-time view of one job.
type JobStatus struct {
	Name      string     `json:"name"`
	Schedule  string     `json:"schedule"`
	Paused    bool       `json:"paused"`
	Running   bool       `json:"running"`
	NextRun   *time.Time `json:"next_run"`
	LastRun   *time.Time `json:"last_run"`
	LastError string     `json:"last_error,omitempty"`
}

type entry struct {
	job     Job
	id      cron.EntryID
	paused  atomic.Bool
	running atomic.Bool

	mu      sync.Mutex
	lastRun time.Time
	lastErr error
}

// Scheduler owns the cron loop for the ingestion and sweep jobs.
// Scheduled ticks of a job never overlap; a paused job skips its ticks but
// can still be triggered by hand.
type Scheduler struct {
	cron   *cron.Cron
	logger *slog.Logger

	mu       sync.Mutex
	jobs     map[string]*entry
	order    []string
	ctx      context.Context
	stopping bool // guarded by mu; no wg.Add after it is set
	wg       sync.WaitGroup
}

// NewScheduler creates a scheduler whose cron specs are evaluated in loc.
func NewScheduler(loc *time.Location, logger *slog.Logger) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	cl := cronLogger{logger: logger}
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		logger: logger,
		jobs:   make(map[string]*entry),
		ctx:    context.Background(),
	}
}

// Add registers a job. Names must be unique.
func (s *Scheduler) Add(job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.Name]; ok {
		return fmt.Errorf("add job %q: duplicate name", job.Name)
	}

	e := &entry{job: job}
	id, err := s.cron.AddFunc(job.Schedule, func() {
		if e.paused.Load() {
			s.logger.Info("skipping paused job", "job", job.Name)
			return
		}
		s.execute(e)
	})
	if err != nil {
		return fmt.Errorf("add job %q: %w", job.Name, err)
	}
	e.id = id
	s.jobs[job.Name] = e
	s.order = append(s.order, job.Name)
	return nil
}

// Run starts the cron loop and blocks until ctx is cancelled. It then waits
// for running jobs to finish and returns nil.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	s.logger.Info("starting scheduler", "jobs", len(s.order))
	s.cron.Start()
	for _, st := range s.Status() {
		s.logger.Info("scheduled job", "job", st.Name, "schedule", st.Schedule, "next_run", st.NextRun)
	}

	<-ctx.Done()
	s.logger.Info("shutting down scheduler")
	s.mu.Lock()
	s.stopping = true
	s.mu.Unlock()
	<-s.cron.Stop().Done()
	s.wg.Wait()
	return nil
}

// Trigger starts a job immediately in the background.
func (s *Scheduler) Trigger(name string) error {
	e, err := s.lookup(name)
	if err != nil {
		return err
	}
	if e.running.Load() {
		return fmt.Errorf("trigger %q: %w", name, ErrJobRunning)
	}

	s.mu.Lock()
	if s.stopping {
		s.mu.Unlock()
		return fmt.Errorf("trigger %q: %w", name, ErrStopping)
	}
	s.wg.Add(1)
	s.mu.Unlock()

	s.logger.Info("manually triggering job", "job", name)
	go func() {
		defer s.wg.Done()
		s.execute(e)
	}()
	return nil
}

// Pause stops scheduled ticks of a job until Resume.
func (s *Scheduler) Pause(name string) error {
	e, err := s.lookup(name)
	if err != nil {
		return err
	}
	e.paused.Store(true)
	s.logger.Info("paused job", "job", name)
	return nil
}

// Resume re-enables scheduled ticks of a paused job.
func (s *Scheduler) Resume(name string) error {
	e, err := s.lookup(name)
	if err != nil {
		return err
	}
	e.paused.Store(false)
	s.logger.Info("resumed job", "job", name)
	return nil
}

// Status reports every job in the order it was added.
func (s *Scheduler) Status() []JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]JobStatus, 0, len(s.order))
	for _, name := range s.order {
		e := s.jobs[name]
		st := JobStatus{
			Name:     name,
			Schedule: e.job.Schedule,
			Paused:   e.paused.Load(),
			Running:  e.running.Load(),
		}
		if next := s.cron.Entry(e.id).Next; !next.IsZero() {
			st.NextRun = &next
		}
		e.mu.Lock()
		if !e.lastRun.IsZero() {
			last := e.lastRun
			st.LastRun = &last
		}
		if e.lastErr != nil {
			st.LastError = e.lastErr.Error()
		}
		e.mu.Unlock()
		out = append(out, st)
	}
	return out
}

func (s *Scheduler) lookup(name string) (*entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.jobs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	return e, nil
}

// execute runs the job once unless it is already running.
func (s *Scheduler) execute(e *entry) {
	if !e.running.CompareAndSwap(false, true) {
		s.logger.Info("job still running, skipping", "job", e.job.Name)
		return
	}
	defer e.running.Store(false)

	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()

	start := time.Now()
	err := e.job.Run(ctx)
	if err != nil {
		s.logger.Error("job failed", "job", e.job.Name, "error", err)
	} else {
		s.logger.Info("job finished", "job", e.job.Name, "duration", time.Since(start))
	}

	e.mu.Lock()
	e.lastRun = start
	e.lastErr = err
	e.mu.Unlock()
}

// cronLogger bridges cron's logger to slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
