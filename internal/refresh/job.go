package refresh

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/onnwee/cardpulse/internal/db"
	"github.com/onnwee/cardpulse/internal/jobs"
)

// DefaultRefreshInterval is the default interval between scheduled runs.
const DefaultRefreshInterval = time.Hour

// DefaultRefreshTimeout is the default timeout for a single run.
const DefaultRefreshTimeout = 30 * time.Minute

// ErrRunInProgress is returned by RunNow while another run of the same job
// is still executing.
var ErrRunInProgress = errors.New("refresh: run already in progress")

// JobConfig configures the scheduled refresh job.
type JobConfig struct {
	// Interval is the duration between runs.
	Interval time.Duration
	// Timeout bounds each run.
	Timeout time.Duration
	// RunOnStart triggers a run as soon as the job starts.
	RunOnStart bool
	// Options shape the RunContext of every run.
	Options Options
	// Clock stamps each run. Defaults to SystemClock.
	Clock Clock
	// Logger for job activity.
	Logger *slog.Logger
	// JobMetrics for centralized background job tracking.
	JobMetrics jobs.Reporter
	// StatusStore records the outcome of every run. Optional.
	StatusStore StatusStore
}

// Job runs the Pipeline on a fixed interval.
type Job struct {
	config   JobConfig
	pipeline *Pipeline

	runMu sync.Mutex // held for the duration of a run

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewJob creates a refresh job.
func NewJob(config JobConfig, pipeline *Pipeline) *Job {
	if config.Interval <= 0 {
		config.Interval = DefaultRefreshInterval
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultRefreshTimeout
	}
	if config.Clock == nil {
		config.Clock = SystemClock
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Job{config: config, pipeline: pipeline}
}

// Start begins the periodic job and returns immediately.
func (j *Job) Start(ctx context.Context) error {
	j.mu.Lock()
	if j.running {
		j.mu.Unlock()
		return nil
	}
	j.running = true
	j.stopCh = make(chan struct{})
	j.doneCh = make(chan struct{})
	j.mu.Unlock()

	go j.run(ctx)
	return nil
}

// Stop signals the job to stop and waits for the current run to finish.
func (j *Job) Stop() {
	j.mu.Lock()
	if !j.running {
		j.mu.Unlock()
		return
	}
	stopCh := j.stopCh
	doneCh := j.doneCh
	j.mu.Unlock()

	close(stopCh)
	<-doneCh

	j.mu.Lock()
	j.running = false
	j.mu.Unlock()
}

// IsRunning returns whether the scheduler loop is active.
func (j *Job) IsRunning() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.running
}

func (j *Job) run(ctx context.Context) {
	defer close(j.doneCh)

	if j.config.RunOnStart {
		j.tick(ctx)
	}

	ticker := time.NewTicker(j.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.config.Logger.Info("signal refresh job stopping due to context cancellation")
			return
		case <-j.stopCh:
			j.config.Logger.Info("signal refresh job stopping due to stop signal")
			return
		case <-ticker.C:
			j.tick(ctx)
		}
	}
}

func (j *Job) tick(ctx context.Context) {
	if _, err := j.RunNow(ctx); err != nil && !errors.Is(err, ErrRunInProgress) {
		j.config.Logger.Error("scheduled signal refresh failed", "error", err)
	}
}

// RunNow runs the pipeline immediately with a fresh RunContext, bounded by
// the configured timeout. Concurrent calls return ErrRunInProgress.
func (j *Job) RunNow(parent context.Context) (*Summary, error) {
	if !j.runMu.TryLock() {
		j.config.Logger.Warn("signal refresh skipped, previous run still in progress")
		return nil, ErrRunInProgress
	}
	defer j.runMu.Unlock()

	ctx, cancel := context.WithTimeout(parent, j.config.Timeout)
	defer cancel()

	rc := NewRunContext(j.config.Clock, j.config.Options)
	start := time.Now()
	summary, err := j.pipeline.Run(ctx, rc)
	duration := time.Since(start).Seconds()

	if m := j.config.JobMetrics; m != nil {
		status := jobs.StatusSuccess
		if err != nil {
			status = jobs.StatusFailure
			m.IncJobErrors(jobs.JobTypeSignalRefresh, errorType(err))
		}
		m.IncJobsTotal(jobs.JobTypeSignalRefresh, status)
		m.ObserveJobDuration(jobs.JobTypeSignalRefresh, duration)
	}

	j.recordStatus(parent, rc, summary, err)
	return summary, err
}

// recordStatus saves the outcome. A status store failure is logged and
// never fails the run.
func (j *Job) recordStatus(ctx context.Context, rc RunContext, summary *Summary, runErr error) {
	store := j.config.StatusStore
	if store == nil {
		return
	}

	// Keep the last success visible across failed runs.
	prev, err := store.LoadStatus(ctx)
	if err != nil {
		j.config.Logger.Warn("failed to load refresh status", "error", err)
	}

	st := Status{LastAttemptAt: rc.Now}
	if prev != nil {
		st.LastSuccess = prev.LastSuccess
		st.ConsecutiveFailures = prev.ConsecutiveFailures
	}
	if runErr != nil {
		st.LastError = runErr.Error()
		st.ConsecutiveFailures++
	} else {
		st.LastSuccess = summary
		st.ConsecutiveFailures = 0
	}

	if err := store.SaveStatus(ctx, st); err != nil {
		j.config.Logger.Warn("failed to save refresh status", "error", err)
		if j.config.JobMetrics != nil {
			j.config.JobMetrics.IncJobErrors(jobs.JobTypeSignalRefresh, jobs.ErrorTypeStatusStore)
		}
	}
}

func errorType(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return jobs.ErrorTypeTimeout
	case errors.Is(err, context.Canceled):
		return jobs.ErrorTypeCanceled
	case db.IsStoreError(err):
		return jobs.ErrorTypeStore
	default:
		return jobs.ErrorTypeUnknown
	}
}
