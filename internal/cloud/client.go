// Package cloud talks to the remote swrite Job API.
package cloud

import "context"

// JobAPI is the subset of the remote API the agent consumes.
type JobAPI interface {
	CreateJob(ctx context.Context, req CreateJobRequest) (*CreateJobResponse, error)
	GetJobStatus(ctx context.Context, accessToken, jobID string) (*JobStatusResponse, error)
}
