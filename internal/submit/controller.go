// Package submit sends one document to the Job API per user action and
// reports the outcome as a Result or a Failure.
package submit

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/swrite/swrite-agent/internal/cloud"
	"github.com/swrite/swrite-agent/internal/intake"
	"github.com/swrite/swrite-agent/internal/jobstore"
	"github.com/swrite/swrite-agent/internal/logging"
)

type State int32

const (
	StateIdle State = iota
	StateSubmitting
	StateSucceeded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSubmitting:
		return "submitting"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// DefaultPageCount is sent when neither the caller nor intake knows better.
const DefaultPageCount = 1

// SubmissionRequest carries at most one payload. With neither set, the
// controller's sample text is sent.
type SubmissionRequest struct {
	Artifact          *intake.Artifact
	Text              string
	PageCountEstimate int
}

type Result struct {
	LocalID      string          `json:"local_id,omitempty"`
	JobID        string          `json:"job_id"`
	Status       string          `json:"status,omitempty"`
	Segregation  json.RawMessage `json:"segregation,omitempty"`
	PagesCreated int             `json:"pages_created,omitempty"`
}

// JobRecorder persists submission attempts. jobstore.Repository satisfies it.
type JobRecorder interface {
	CreateJob(ctx context.Context, job *jobstore.Job) error
	MarkSubmitted(ctx context.Context, id, remoteID, segregation string) error
	MarkFailed(ctx context.Context, id, errorMsg string) error
}

// MetricsRecorder receives submission outcomes. *metrics.Metrics satisfies it.
type MetricsRecorder interface {
	StartSubmission()
	FinishSubmission(outcome string, duration time.Duration)
	RejectSubmission(outcome string)
}

type Controller struct {
	api        cloud.JobAPI
	jobs       JobRecorder
	metrics    MetricsRecorder
	sampleText string
	logger     *slog.Logger

	state atomic.Int32
}

// NewController builds a controller. jobs and m may be nil.
func NewController(api cloud.JobAPI, jobs JobRecorder, m MetricsRecorder, sampleText string, logger *slog.Logger) *Controller {
	return &Controller{
		api:        api,
		jobs:       jobs,
		metrics:    m,
		sampleText: sampleText,
		logger:     logging.WithComponent(logger, "submit"),
	}
}

func (c *Controller) State() State {
	return State(c.state.Load())
}

// InFlight reports whether a submission is outstanding.
func (c *Controller) InFlight() bool {
	return c.State() == StateSubmitting
}

// Submit issues exactly one create-job request. It never retries; a failed
// submission is retried by calling Submit again. Cancelling ctx does not
// abort a request already sent.
func (c *Controller) Submit(ctx context.Context, req SubmissionRequest, accessToken string) (*Result, error) {
	if strings.TrimSpace(accessToken) == "" {
		c.reject(ErrAuthRequired)
		return nil, ErrAuthRequired
	}

	payload, fail := c.buildRequest(req, accessToken)
	if fail != nil {
		c.reject(fail)
		return nil, fail
	}

	if !c.acquire() {
		c.reject(ErrInFlight)
		return nil, ErrInFlight
	}

	ctx = context.WithoutCancel(ctx)
	start := time.Now()
	if c.metrics != nil {
		c.metrics.StartSubmission()
	}

	localID := c.recordAttempt(ctx, payload)
	logger := c.logger.With("local_id", localID, "input", inputKind(payload), "pages", payload.PageCountEstimate)
	logger.Info("submitting job", "token", logging.SanitizeToken(accessToken))

	resp, err := c.api.CreateJob(ctx, payload)
	if err != nil {
		fail := classify(err)
		c.finish(StateFailed, fail.Kind.String(), start)
		c.recordFailure(ctx, localID, fail.Message)
		logger.Warn("job submission failed", "kind", fail.Kind.String(), "error", err)
		return nil, fail
	}

	c.finish(StateSucceeded, "success", start)
	c.recordSuccess(ctx, localID, resp)
	logging.WithJobID(logger, resp.JobID).Info("job created", "status", resp.Status, "duration_ms", time.Since(start).Milliseconds())

	return &Result{
		LocalID:      localID,
		JobID:        resp.JobID,
		Status:       resp.Status,
		Segregation:  resp.Segregation,
		PagesCreated: resp.PagesCreated,
	}, nil
}

func (c *Controller) buildRequest(req SubmissionRequest, accessToken string) (cloud.CreateJobRequest, *Failure) {
	out := cloud.CreateJobRequest{
		AccessToken:       accessToken,
		PageCountEstimate: req.PageCountEstimate,
	}

	switch {
	case req.Artifact != nil && req.Text != "":
		return out, newFailure(KindValidation, nil, "choose either a file or text, not both")
	case req.Artifact != nil:
		if len(req.Artifact.Data) == 0 {
			return out, newFailure(KindValidation, intake.ErrEmptyFile, "%s is empty", req.Artifact.Filename)
		}
		out.File = &cloud.FilePart{
			Filename:  req.Artifact.Filename,
			MediaType: req.Artifact.MediaType,
			Data:      req.Artifact.Data,
		}
		if out.PageCountEstimate <= 0 {
			out.PageCountEstimate = req.Artifact.PageEstimate
		}
	case req.Text != "":
		out.Content = req.Text
	default:
		if c.sampleText == "" {
			return out, newFailure(KindValidation, nil, "nothing to submit")
		}
		out.Content = c.sampleText
	}

	if out.PageCountEstimate <= 0 {
		out.PageCountEstimate = DefaultPageCount
	}
	return out, nil
}

func (c *Controller) acquire() bool {
	for {
		cur := c.state.Load()
		if State(cur) == StateSubmitting {
			return false
		}
		if c.state.CompareAndSwap(cur, int32(StateSubmitting)) {
			return true
		}
	}
}

func (c *Controller) finish(next State, outcome string, start time.Time) {
	c.state.Store(int32(next))
	if c.metrics != nil {
		c.metrics.FinishSubmission(outcome, time.Since(start))
	}
}

func (c *Controller) reject(f *Failure) {
	if c.metrics != nil {
		c.metrics.RejectSubmission(f.Kind.String())
	}
	c.logger.Debug("submission rejected", "kind", f.Kind.String())
}

func (c *Controller) recordAttempt(ctx context.Context, payload cloud.CreateJobRequest) string {
	if c.jobs == nil {
		return ""
	}
	job := &jobstore.Job{
		InputKind:    inputKind(payload),
		PageEstimate: payload.PageCountEstimate,
	}
	if payload.File != nil {
		job.Filename = payload.File.Filename
	}
	if err := c.jobs.CreateJob(ctx, job); err != nil {
		c.logger.Warn("failed to record submission", "error", err)
		return ""
	}
	return job.ID
}

func (c *Controller) recordSuccess(ctx context.Context, localID string, resp *cloud.CreateJobResponse) {
	if c.jobs == nil || localID == "" {
		return
	}
	if err := c.jobs.MarkSubmitted(ctx, localID, resp.JobID, string(resp.Segregation)); err != nil {
		c.logger.Warn("failed to record job", "local_id", localID, "error", err)
	}
}

func (c *Controller) recordFailure(ctx context.Context, localID, message string) {
	if c.jobs == nil || localID == "" {
		return
	}
	if err := c.jobs.MarkFailed(ctx, localID, message); err != nil {
		c.logger.Warn("failed to record submission failure", "local_id", localID, "error", err)
	}
}

// classify maps a client error onto a Failure kind with a display message.
func classify(err error) *Failure {
	var apiErr *cloud.APIError
	var decodeErr *cloud.DecodeError

	switch {
	case errors.As(err, &apiErr):
		return newFailure(KindServerRejected, err, "%s", apiErr.Reason())
	case errors.As(err, &decodeErr):
		return &Failure{Kind: KindMalformedResponse, Message: ErrMalformedResponse.Message, Err: err}
	default:
		// cloud.TransportError and request construction errors
		return &Failure{Kind: KindTransport, Message: ErrTransport.Message, Err: err}
	}
}

func inputKind(payload cloud.CreateJobRequest) string {
	if payload.File != nil {
		return jobstore.InputKindFile
	}
	return jobstore.InputKindText
}
