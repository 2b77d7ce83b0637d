package api

import (
	"encoding/json"
	"time"

	"github.com/swrite/swrite-agent/internal/intake"
	"github.com/swrite/swrite-agent/internal/jobstore"
	"github.com/swrite/swrite-agent/internal/pipeline"
	"github.com/swrite/swrite-agent/internal/session"
)

type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	UptimeS int64  `json:"uptime_s"`
}

type LoginRequest struct {
	AccessToken string `json:"access_token"`
	Email       string `json:"email,omitempty"`
	Provider    string `json:"provider,omitempty"`
	ExpiresIn   int64  `json:"expires_in,omitempty"` // seconds
}

type SessionResponse struct {
	Authenticated bool   `json:"authenticated"`
	Email         string `json:"email,omitempty"`
	Provider      string `json:"provider,omitempty"`
	ExpiresAt     string `json:"expires_at,omitempty"`
}

type SelectionResponse struct {
	Selected *intake.Artifact `json:"selected"`
}

type CreateJobResponse struct {
	JobID        string          `json:"job_id"`
	LocalID      string          `json:"local_id,omitempty"`
	Segregation  json.RawMessage `json:"segregation,omitempty"`
	PagesCreated int             `json:"pages_created,omitempty"`
	Message      string          `json:"message"`
}

type JobResponse struct {
	ID           string          `json:"id"`
	RemoteID     string          `json:"remote_id,omitempty"`
	Status       string          `json:"status"`
	StageIndex   int             `json:"stage_index"`
	StageLabel   string          `json:"stage_label,omitempty"`
	InputKind    string          `json:"input_kind"`
	Filename     string          `json:"filename,omitempty"`
	PageEstimate int             `json:"page_estimate"`
	Segregation  json.RawMessage `json:"segregation,omitempty"`
	Error        string          `json:"error,omitempty"`
	CreatedAt    string          `json:"created_at"`
	UpdatedAt    string          `json:"updated_at"`
}

type JobsResponse struct {
	Jobs []JobResponse `json:"jobs"`
}

type TrackingResponse struct {
	Paused bool `json:"paused"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func SessionToResponse(s *session.Session) SessionResponse {
	if s == nil {
		return SessionResponse{}
	}
	resp := SessionResponse{
		Authenticated: true,
		Email:         s.Email,
		Provider:      s.Provider,
	}
	if !s.ExpiresAt.IsZero() {
		resp.ExpiresAt = s.ExpiresAt.Format(time.RFC3339)
	}
	return resp
}

func JobToResponse(j *jobstore.Job) JobResponse {
	resp := JobResponse{
		ID:           j.ID,
		RemoteID:     j.RemoteID,
		Status:       j.Status,
		StageIndex:   j.StageIndex,
		StageLabel:   pipeline.StageIndex(j.StageIndex).Label(),
		InputKind:    j.InputKind,
		Filename:     j.Filename,
		PageEstimate: j.PageEstimate,
		Error:        j.Error,
		CreatedAt:    j.CreatedAt.Format(time.RFC3339),
		UpdatedAt:    j.UpdatedAt.Format(time.RFC3339),
	}
	if j.Segregation != "" && json.Valid([]byte(j.Segregation)) {
		resp.Segregation = json.RawMessage(j.Segregation)
	}
	return resp
}
