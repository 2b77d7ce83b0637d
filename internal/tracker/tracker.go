// Package tracker polls the Job API for the status of the job on screen and
// feeds each answer to the dashboard.
package tracker

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/swrite/swrite-agent/internal/cloud"
	"github.com/swrite/swrite-agent/internal/jobstore"
	"github.com/swrite/swrite-agent/internal/logging"
	"github.com/swrite/swrite-agent/internal/pipeline"
	"github.com/swrite/swrite-agent/internal/resilience"
)

const operationJobStatus = "job_status"

// Poll results, used as metric labels.
const (
	ResultOK          = "ok"
	ResultError       = "error"
	ResultCircuitOpen = "circuit_open"
	ResultSkipped     = "skipped"
)

// Reasons passed to Target.Abandon.
const (
	ReasonNotFound     = "job not found"
	ReasonUnauthorized = "not authorized to view job"
)

// Target is the owner of the job being tracked. *dashboard.Dashboard satisfies it.
type Target interface {
	TrackedJob() (jobID string, ok bool)
	Observe(jobID string, token *string) pipeline.StageIndex
	// Abandon ends tracking of a job the server will never report on.
	Abandon(jobID, reason string)
}

type TokenSource interface {
	AccessToken() string
}

// JobUpdater mirrors progress into the local history. jobstore.Repository satisfies it.
type JobUpdater interface {
	GetJobByRemoteID(ctx context.Context, remoteID string) (*jobstore.Job, error)
	UpdateJobStage(ctx context.Context, id string, stage int) error
	MarkCompleted(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id, errorMsg string) error
}

type PollRecorder interface {
	ObservePoll(result string)
}

type Config struct {
	Interval      time.Duration
	RatePerSecond float64
}

type Tracker struct {
	api      cloud.JobAPI
	target   Target
	tokens   TokenSource
	jobs     JobUpdater
	executor *resilience.Executor
	limiter  *rate.Limiter
	metrics  PollRecorder
	logger   *slog.Logger
	interval time.Duration

	running atomic.Bool
	paused  atomic.Bool
}

// New builds a tracker. jobs and m may be nil.
func New(api cloud.JobAPI, target Target, tokens TokenSource, jobs JobUpdater, executor *resilience.Executor, m PollRecorder, cfg Config, logger *slog.Logger) *Tracker {
	if cfg.Interval <= 0 {
		cfg.Interval = 3 * time.Second
	}
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = 1
	}
	return &Tracker{
		api:      api,
		target:   target,
		tokens:   tokens,
		jobs:     jobs,
		executor: executor,
		limiter:  rate.NewLimiter(rate.Limit(cfg.RatePerSecond), 1),
		metrics:  m,
		logger:   logging.WithComponent(logger, "tracker"),
		interval: cfg.Interval,
	}
}

// Start polls until ctx is done. A second concurrent Start returns at once.
func (t *Tracker) Start(ctx context.Context) {
	if t.running.Swap(true) {
		return
	}
	defer t.running.Store(false)

	t.logger.Info("status tracker started", "interval", t.interval.String())

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			t.logger.Info("status tracker stopping")
			return
		case <-ticker.C:
			if !t.paused.Load() {
				t.Poll(ctx)
			}
		}
	}
}

func (t *Tracker) Pause() {
	t.paused.Store(true)
	t.logger.Info("status tracker paused")
}

func (t *Tracker) Resume() {
	t.paused.Store(false)
	t.logger.Info("status tracker resumed")
}

func (t *Tracker) IsPaused() bool {
	return t.paused.Load()
}

func (t *Tracker) IsRunning() bool {
	return t.running.Load()
}

// Poll fetches the status of the tracked job once and returns the result label.
func (t *Tracker) Poll(ctx context.Context) string {
	jobID, ok := t.target.TrackedJob()
	if !ok {
		return ResultSkipped
	}
	token := t.tokens.AccessToken()
	if token == "" {
		return ResultSkipped
	}

	if err := t.limiter.Wait(ctx); err != nil {
		return ResultSkipped
	}

	logger := logging.WithJobID(t.logger, jobID)

	var status *cloud.JobStatusResponse
	err := t.executor.Execute(ctx, operationJobStatus, func(ctx context.Context) error {
		resp, err := t.api.GetJobStatus(ctx, token, jobID)
		if err != nil {
			return err
		}
		status = resp
		return nil
	}, classifyError)

	if err != nil {
		result := ResultError
		if resilience.IsCircuitOpen(err) {
			result = ResultCircuitOpen
		}
		t.record(result)
		logger.Warn("status poll failed", "result", result, "error", err)
		if reason, ok := abandonReason(err); ok {
			t.abandon(ctx, logger, jobID, reason)
		}
		return result
	}

	displayed := t.target.Observe(jobID, status.Status)
	t.record(ResultOK)
	logger.Debug("status polled", "displayed", int(displayed), "label", displayed.Label())

	t.persist(ctx, logger, jobID, status.Status, displayed)
	return ResultOK
}

func (t *Tracker) persist(ctx context.Context, logger *slog.Logger, jobID string, token *string, displayed pipeline.StageIndex) {
	if t.jobs == nil {
		return
	}
	job, err := t.jobs.GetJobByRemoteID(ctx, jobID)
	if err != nil || job == nil {
		if err != nil {
			logger.Warn("failed to load job history", "error", err)
		}
		return
	}

	if displayed.Valid() {
		if err := t.jobs.UpdateJobStage(ctx, job.ID, int(displayed)); err != nil {
			logger.Warn("failed to record job stage", "error", err)
		}
	}

	outcome := pipeline.OutcomeRunning
	if token != nil {
		outcome = pipeline.Classify(pipeline.StatusToken(*token))
	}
	switch {
	case outcome == pipeline.OutcomeFailed:
		err = t.jobs.MarkFailed(ctx, job.ID, "processing failed")
	case outcome == pipeline.OutcomeDone || displayed == pipeline.LastIndex():
		err = t.jobs.MarkCompleted(ctx, job.ID)
	default:
		return
	}
	if err != nil {
		logger.Warn("failed to record job outcome", "error", err)
		return
	}
	logger.Info("job finished", "outcome", outcome.String())
}

// abandon stops tracking jobID and records it as failed in the history.
func (t *Tracker) abandon(ctx context.Context, logger *slog.Logger, jobID, reason string) {
	t.target.Abandon(jobID, reason)
	logger.Warn("job abandoned", "reason", reason)

	if t.jobs == nil {
		return
	}
	job, err := t.jobs.GetJobByRemoteID(ctx, jobID)
	if err != nil || job == nil {
		if err != nil {
			logger.Warn("failed to load job history", "error", err)
		}
		return
	}
	if err := t.jobs.MarkFailed(ctx, job.ID, reason); err != nil {
		logger.Warn("failed to record job outcome", "error", err)
	}
}

func (t *Tracker) record(result string) {
	if t.metrics != nil {
		t.metrics.ObservePoll(result)
	}
}

// abandonReason reports whether err means the job can never be polled
// successfully with the current session.
func abandonReason(err error) (string, bool) {
	var apiErr *cloud.APIError
	if !errors.As(err, &apiErr) {
		return "", false
	}
	switch apiErr.StatusCode {
	case http.StatusNotFound:
		return ReasonNotFound, true
	case http.StatusUnauthorized, http.StatusForbidden:
		return ReasonUnauthorized, true
	}
	return "", false
}

// classifyError retries throttling, server errors and transport failures.
// A missing job is neither retried nor held against the breaker.
func classifyError(err error) resilience.ErrorClassification {
	var apiErr *cloud.APIError
	var transportErr *cloud.TransportError

	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return resilience.ErrorClassification{Retryable: false, RecordFailure: false}
	case errors.As(err, &apiErr):
		if apiErr.StatusCode == http.StatusNotFound || apiErr.StatusCode == http.StatusUnauthorized {
			return resilience.ErrorClassification{Retryable: false, RecordFailure: false}
		}
		return resilience.ErrorClassification{Retryable: apiErr.IsRetryable(), RecordFailure: apiErr.IsRetryable()}
	case errors.As(err, &transportErr):
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	default:
		return resilience.ErrorClassification{Retryable: false, RecordFailure: true}
	}
}
