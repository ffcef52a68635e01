// Package scheduler runs the daemon's periodic work (conversation sweeps, DM
// polling) on cron schedules and keeps per-job run statistics.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

var (
	// ErrUnknownJob is returned by RunNow for an unregistered name.
	ErrUnknownJob = errors.New("scheduler: unknown job")
	// ErrBusy is returned when a run is requested while the job is running.
	ErrBusy = errors.New("scheduler: job already running")
)

// JobFunc is the work of one job run.
type JobFunc func(ctx context.Context) error

// JobOption configures a job.
type JobOption func(*job)

// WithTimeout bounds each run of the job.
func WithTimeout(d time.Duration) JobOption {
	return func(j *job) { j.timeout = d }
}

type job struct {
	entry    cron.EntryID
	schedule string
	fn       JobFunc
	timeout  time.Duration

	runs, failures int
	lastErr        string
	lastDuration   time.Duration
	running        bool
}

// JobInfo is a snapshot of a job for the admin API.
type JobInfo struct {
	Name         string        `json:"name"`
	Schedule     string        `json:"schedule"`
	Next         time.Time     `json:"next,omitempty"`
	Prev         time.Time     `json:"prev,omitempty"`
	Runs         int           `json:"runs"`
	Failures     int           `json:"failures"`
	LastError    string        `json:"last_error,omitempty"`
	LastDuration time.Duration `json:"last_duration"`
	Running      bool          `json:"running"`
}

// Scheduler owns a cron runner. Runs of one job never overlap.
type Scheduler struct {
	mu     sync.Mutex
	cron   *cron.Cron
	jobs   map[string]*job
	ctx    context.Context
	logger *slog.Logger
}

// New creates a scheduler; jobs fire once Start is called.
func New(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "scheduler")
	cl := cronLogger{logger}
	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl)),
		),
		jobs:   make(map[string]*job),
		ctx:    context.Background(),
		logger: logger,
	}
}

// Start runs the cron loop until ctx is done, then waits for running jobs.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	s.ctx = ctx
	n := len(s.jobs)
	s.mu.Unlock()

	s.cron.Start()
	s.logger.Info("scheduler started", "jobs", n)
	<-ctx.Done()
	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
	return ctx.Err()
}

// AddJob registers fn under name with a 5-field cron expression or a
// descriptor such as "@every 30s". Registering a name again replaces it.
func (s *Scheduler) AddJob(name, schedule string, fn JobFunc, opts ...JobOption) error {
	j := &job{schedule: schedule, fn: fn}
	for _, opt := range opts {
		opt(j)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	id, err := s.cron.AddFunc(schedule, func() {
		if err := s.run(name, j); err != nil && !errors.Is(err, ErrBusy) {
			s.logger.Error("job failed", "job", name, "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("scheduler: job %s: schedule %q: %w", name, schedule, err)
	}
	if old, ok := s.jobs[name]; ok {
		s.cron.Remove(old.entry)
	}
	j.entry = id
	s.jobs[name] = j
	s.logger.Info("job registered", "job", name, "schedule", schedule)
	return nil
}

// RemoveJob unregisters name. Unknown names are ignored.
func (s *Scheduler) RemoveJob(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j, ok := s.jobs[name]; ok {
		s.cron.Remove(j.entry)
		delete(s.jobs, name)
	}
}

// RunNow runs a job synchronously outside its schedule. A job that is
// already running is not started twice.
func (s *Scheduler) RunNow(name string) error {
	s.mu.Lock()
	j, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w %q", ErrUnknownJob, name)
	}
	return s.run(name, j)
}

func (s *Scheduler) run(name string, j *job) (err error) {
	s.mu.Lock()
	if j.running {
		s.mu.Unlock()
		s.logger.Debug("skipping overlapping run", "job", name)
		return fmt.Errorf("%w: %s", ErrBusy, name)
	}
	j.running = true
	ctx := s.ctx
	s.mu.Unlock()

	if j.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.timeout)
		defer cancel()
	}

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("scheduler: job %s panicked: %v", name, r)
		}
		s.mu.Lock()
		j.running = false
		j.runs++
		j.lastDuration = time.Since(start)
		j.lastErr = ""
		if err != nil {
			j.failures++
			j.lastErr = err.Error()
		}
		s.mu.Unlock()
	}()

	if err = j.fn(ctx); err == nil {
		s.logger.Debug("job finished", "job", name, "duration", time.Since(start))
	}
	return err
}

// Jobs returns a snapshot of every job, sorted by name.
func (s *Scheduler) Jobs() []JobInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]JobInfo, 0, len(s.jobs))
	for name, j := range s.jobs {
		e := s.cron.Entry(j.entry)
		out = append(out, JobInfo{
			Name:         name,
			Schedule:     j.schedule,
			Next:         e.Next,
			Prev:         e.Prev,
			Runs:         j.runs,
			Failures:     j.failures,
			LastError:    j.lastErr,
			LastDuration: j.lastDuration,
			Running:      j.running,
		})
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Name < out[b].Name })
	return out
}

// JobCount reports how many jobs are registered.
func (s *Scheduler) JobCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// cronLogger routes cron's own logging to slog.
type cronLogger struct{ l *slog.Logger }

func (c cronLogger) Info(msg string, kv ...any) { c.l.Debug("cron: "+msg, kv...) }

func (c cronLogger) Error(err error, msg string, kv ...any) {
	c.l.Error("cron: "+msg, append(kv, "error", err)...)
}
