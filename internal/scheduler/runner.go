// Package scheduler runs the periodic maintenance jobs: auto-completing due
// sessions, recomputing ranks and deleting old sessions.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Job outcomes reported to the Observer.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
	OutcomeSkipped = "skipped"
)

// ErrUnknownJob is returned by RunOnce for unregistered names.
var ErrUnknownJob = errors.New("scheduler: unknown job")

// Job is a named unit of periodic work.
type Job struct {
	Name     string
	Interval time.Duration
	// Timeout bounds a single run. Zero means the interval.
	Timeout time.Duration
	Run     func(ctx context.Context) error
}

func (j Job) timeout() time.Duration {
	if j.Timeout > 0 {
		return j.Timeout
	}
	return j.Interval
}

// Observer is told about every job run.
type Observer interface {
	JobFinished(name, outcome string, duration time.Duration)
}

type nopObserver struct{}

func (nopObserver) JobFinished(string, string, time.Duration) {}

// Runner executes registered jobs on their intervals, holding a Locker lock
// for the duration of each run.
type Runner struct {
	locker   Locker
	observer Observer
	logger   *slog.Logger

	mu   sync.Mutex
	jobs map[string]Job
}

// Option configures a Runner.
type Option func(*Runner)

// WithObserver reports job outcomes to o.
func WithObserver(o Observer) Option {
	return func(r *Runner) {
		if o != nil {
			r.observer = o
		}
	}
}

// WithLogger sets the runner logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRunner builds a Runner. A nil locker falls back to a LocalLocker.
func NewRunner(locker Locker, opts ...Option) *Runner {
	if locker == nil {
		locker = NewLocalLocker()
	}
	r := &Runner{
		locker:   locker,
		observer: nopObserver{},
		logger:   slog.Default(),
		jobs:     make(map[string]Job),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("component", "scheduler")
	return r
}

// Register adds a job. Names must be unique and intervals positive.
func (r *Runner) Register(job Job) error {
	if job.Name == "" || job.Run == nil {
		return fmt.Errorf("scheduler: job needs a name and a run function")
	}
	if job.Interval <= 0 {
		return fmt.Errorf("scheduler: job %s: interval must be positive", job.Name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.jobs[job.Name]; exists {
		return fmt.Errorf("scheduler: job %s registered twice", job.Name)
	}
	r.jobs[job.Name] = job
	return nil
}

// Jobs returns the registered job names in order.
func (r *Runner) Jobs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.jobs))
	for name := range r.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Run starts one loop per job and blocks until ctx is cancelled and every
// in-flight run has returned.
func (r *Runner) Run(ctx context.Context) error {
	r.mu.Lock()
	jobs := make([]Job, 0, len(r.jobs))
	for _, job := range r.jobs {
		jobs = append(jobs, job)
	}
	r.mu.Unlock()

	var wg sync.WaitGroup
	for _, job := range jobs {
		wg.Add(1)
		go func(job Job) {
			defer wg.Done()
			r.loop(ctx, job)
		}(job)
	}
	r.logger.InfoContext(ctx, "scheduler started", "jobs", len(jobs))
	wg.Wait()
	r.logger.Info("scheduler stopped")
	return nil
}

func (r *Runner) loop(ctx context.Context, job Job) {
	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = r.execute(ctx, job)
		}
	}
}

// RunOnce runs the named job immediately under its lock.
func (r *Runner) RunOnce(ctx context.Context, name string) error {
	r.mu.Lock()
	job, ok := r.jobs[name]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	return r.execute(ctx, job)
}

func (r *Runner) execute(ctx context.Context, job Job) (err error) {
	logger := r.logger.With("job", job.Name)
	start := time.Now()
	outcome := OutcomeSuccess
	defer func() {
		elapsed := time.Since(start)
		r.observer.JobFinished(job.Name, outcome, elapsed)
		switch outcome {
		case OutcomeError:
			logger.ErrorContext(ctx, "job failed", "error", err, "duration", elapsed)
		case OutcomeSkipped:
			logger.DebugContext(ctx, "job skipped, lock held elsewhere")
		default:
			logger.InfoContext(ctx, "job finished", "duration", elapsed)
		}
	}()

	lock, acquired, err := r.locker.TryLock(ctx, job.Name, job.timeout())
	if err != nil {
		outcome = OutcomeError
		return err
	}
	if !acquired {
		outcome = OutcomeSkipped
		return nil
	}
	defer func() {
		if releaseErr := lock.Release(context.WithoutCancel(ctx)); releaseErr != nil {
			logger.WarnContext(ctx, "failed to release job lock", "error", releaseErr)
		}
	}()

	runCtx, cancel := context.WithTimeout(ctx, job.timeout())
	defer cancel()
	if err = job.Run(runCtx); err != nil {
		outcome = OutcomeError
	}
	return err
}
