// Package scheduler runs the recurring refresh and maintenance jobs on cron
// schedules and tracks per-job status for the admin surface.
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

	"github.com/l0p7/loanfeed/internal/metrics"
	"github.com/l0p7/loanfeed/internal/notify"
)

// State is the last observed outcome of a job.
type State string

const (
	StateNever   State = "never"
	StateRunning State = "running"
	StateSuccess State = "success"
	StateWarning State = "warning"
	StateError   State = "error"
)

var (
	// ErrNotRunning rejects triggers against a stopped scheduler.
	ErrNotRunning = errors.New("scheduler: not running")
	// ErrUnknownJob rejects operations on names outside the registry.
	ErrUnknownJob = errors.New("scheduler: unknown job")
	// ErrAlreadyRunning rejects a trigger while the same job is in flight.
	ErrAlreadyRunning = errors.New("scheduler: job already running")
)

// JobStatus is the externally visible record of one job.
type JobStatus struct {
	Name         string     `json:"name"`
	Schedule     string     `json:"schedule"`
	Enabled      bool       `json:"enabled"`
	State        State      `json:"state"`
	Detail       string     `json:"detail,omitempty"`
	LastRun      *time.Time `json:"lastRun,omitempty"`
	LastDuration string     `json:"lastDuration,omitempty"`
}

// outcome is what a job's runner reports when it finishes.
type outcome struct {
	state  State
	detail string
}

func success(format string, args ...any) outcome {
	return outcome{state: StateSuccess, detail: fmt.Sprintf(format, args...)}
}

func warning(format string, args ...any) outcome {
	return outcome{state: StateWarning, detail: fmt.Sprintf(format, args...)}
}

func failure(err error) outcome {
	return outcome{state: StateError, detail: err.Error()}
}

type runner func(ctx context.Context) outcome

type job struct {
	name    string
	run     runner
	notify  bool
	running atomic.Bool
	entryID cron.EntryID

	mu       sync.Mutex
	schedule string
	enabled  bool
	state    State
	detail   string
	lastRun  *time.Time
	lastDur  time.Duration
}

func (j *job) status() JobStatus {
	j.mu.Lock()
	defer j.mu.Unlock()
	status := JobStatus{
		Name:     j.name,
		Schedule: j.schedule,
		Enabled:  j.enabled,
		State:    j.state,
		Detail:   j.detail,
		LastRun:  j.lastRun,
	}
	if j.lastDur > 0 {
		status.LastDuration = j.lastDur.Round(time.Millisecond).String()
	}
	return status
}

func (j *job) markRunning(start time.Time) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.state = StateRunning
	j.detail = ""
	j.lastRun = &start
}

func (j *job) finish(out outcome, elapsed time.Duration) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.state = out.state
	j.detail = out.detail
	j.lastDur = elapsed
}

// Scheduler owns the cron runner and the named job registry. Jobs keep their
// status across schedule changes and scheduler restarts.
type Scheduler struct {
	cron    *cron.Cron
	jobs    map[string]*job
	order   []string
	sink    notify.Sink
	logger  *slog.Logger
	metrics *metrics.Recorder

	mu      sync.Mutex
	started bool
	runCtx  context.Context
}

// Options wires the Scheduler's collaborators. Sink, Logger, and Metrics may
// be nil.
type Options struct {
	Sink    notify.Sink
	Logger  *slog.Logger
	Metrics *metrics.Recorder
}

// New builds an empty Scheduler; jobs are attached with Register.
func New(opts Options) *Scheduler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		cron:    cron.New(),
		jobs:    make(map[string]*job),
		sink:    opts.Sink,
		logger:  logger.With(slog.String("agent", "scheduler")),
		metrics: opts.Metrics,
		runCtx:  context.Background(),
	}
}

// Register attaches a named job. Disabled jobs are tracked and manually
// triggerable but never placed on the cron runner. The notifyOnFinish flag
// routes the job's terminal outcome to the notification sink.
func (s *Scheduler) Register(name, schedule string, enabled, notifyOnFinish bool, run runner) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("scheduler: job %q already registered", name)
	}
	if _, err := cron.ParseStandard(schedule); err != nil {
		return fmt.Errorf("scheduler: job %q schedule %q: %w", name, schedule, err)
	}

	j := &job{
		name:     name,
		run:      run,
		notify:   notifyOnFinish,
		schedule: schedule,
		enabled:  enabled,
		state:    StateNever,
	}
	if enabled {
		entryID, err := s.cron.AddFunc(schedule, func() { s.execute(s.runCtx, j) })
		if err != nil {
			return fmt.Errorf("scheduler: job %q schedule %q: %w", name, schedule, err)
		}
		j.entryID = entryID
	}
	s.jobs[name] = j
	s.order = append(s.order, name)
	return nil
}

// Start begins firing schedules. Jobs launched by the cron runner inherit ctx
// so shutdown cancels in-flight work.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	if ctx != nil {
		s.runCtx = ctx
	}
	s.cron.Start()
	s.started = true
	s.logger.Info("scheduler started", slog.Int("jobs", len(s.jobs)))
}

// Stop halts the schedules and waits for running jobs to drain. Idempotent.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	s.mu.Unlock()

	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
}

// TriggerJob runs one job immediately, outside its schedule, and waits for it
// to finish. The scheduler must be running and the job must not already be.
func (s *Scheduler) TriggerJob(ctx context.Context, name string) (JobStatus, error) {
	s.mu.Lock()
	started := s.started
	j, ok := s.jobs[name]
	s.mu.Unlock()

	if !started {
		return JobStatus{}, fmt.Errorf("%w, refusing to trigger %q", ErrNotRunning, name)
	}
	if !ok {
		return JobStatus{}, fmt.Errorf("%w %q", ErrUnknownJob, name)
	}
	if !s.execute(ctx, j) {
		return j.status(), fmt.Errorf("%w: %q", ErrAlreadyRunning, name)
	}
	return j.status(), nil
}

// UpdateSchedule re-times a job without touching its status history. The new
// expression takes effect immediately, also on a running scheduler.
func (s *Scheduler) UpdateSchedule(name, schedule string) error {
	if _, err := cron.ParseStandard(schedule); err != nil {
		return fmt.Errorf("scheduler: schedule %q: %w", schedule, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[name]
	if !ok {
		return fmt.Errorf("%w %q", ErrUnknownJob, name)
	}

	j.mu.Lock()
	wasEnabled := j.enabled
	j.schedule = schedule
	j.mu.Unlock()

	if wasEnabled {
		s.cron.Remove(j.entryID)
		entryID, err := s.cron.AddFunc(schedule, func() { s.execute(s.runCtx, j) })
		if err != nil {
			return fmt.Errorf("scheduler: schedule %q: %w", schedule, err)
		}
		j.entryID = entryID
	}
	s.logger.Info("job rescheduled", slog.String("job", name), slog.String("schedule", schedule))
	return nil
}

// Running reports whether schedules are currently firing.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

// GetStatus snapshots every job in registration order.
func (s *Scheduler) GetStatus() []JobStatus {
	s.mu.Lock()
	names := make([]string, len(s.order))
	copy(names, s.order)
	jobs := make([]*job, 0, len(names))
	for _, name := range names {
		jobs = append(jobs, s.jobs[name])
	}
	s.mu.Unlock()

	out := make([]JobStatus, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, j.status())
	}
	return out
}

// execute runs one job end to end, guarding against overlap: a tick that
// arrives while the previous run is still going is skipped with a warning log
// instead of piling up.
func (s *Scheduler) execute(ctx context.Context, j *job) bool {
	if !j.running.CompareAndSwap(false, true) {
		s.logger.Warn("previous run still in progress, skipping", slog.String("job", j.name))
		return false
	}
	defer j.running.Store(false)

	start := time.Now().UTC()
	j.markRunning(start)
	s.logger.Info("job started", slog.String("job", j.name))

	var out outcome
	func() {
		defer func() {
			if r := recover(); r != nil {
				out = outcome{state: StateError, detail: fmt.Sprintf("panic: %v", r)}
			}
		}()
		out = j.run(ctx)
	}()

	elapsed := time.Since(start)
	j.finish(out, elapsed)
	s.metrics.ObserveJob(j.name, string(out.state), elapsed)

	level := slog.LevelInfo
	if out.state == StateError {
		level = slog.LevelError
	} else if out.state == StateWarning {
		level = slog.LevelWarn
	}
	s.logger.Log(ctx, level, "job finished",
		slog.String("job", j.name),
		slog.String("state", string(out.state)),
		slog.String("detail", out.detail),
		slog.Duration("elapsed", elapsed))

	if j.notify && s.sink != nil {
		s.sink.Notify(ctx, fmt.Sprintf("%s finished: %s (%s)", j.name, out.state, out.detail))
	}
	return true
}
