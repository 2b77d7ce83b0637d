// Package jobstore keeps the local history of job submissions and the
// agent's key/value settings.
package jobstore

import (
	"time"

	"github.com/google/uuid"
)

const (
	InputKindFile = "file"
	InputKindText = "text"

	// StatusSubmitting is held only while the create request is outstanding.
	StatusSubmitting = "submitting"
	StatusSubmitted  = "submitted"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Job is one submission attempt as seen from this agent. RemoteID is set
// once the server has accepted the job.
type Job struct {
	ID           string    `json:"id"`
	RemoteID     string    `json:"remote_id,omitempty"`
	Status       string    `json:"status"`
	StageIndex   int       `json:"stage_index"`
	InputKind    string    `json:"input_kind"`
	Filename     string    `json:"filename,omitempty"`
	PageEstimate int       `json:"page_estimate"`
	Segregation  string    `json:"segregation,omitempty"`
	Error        string    `json:"error,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Terminal reports whether the job will not change any more.
func (j *Job) Terminal() bool {
	return j.Status == StatusCompleted || j.Status == StatusFailed
}

func NewID() string {
	return uuid.NewString()
}
