package cloud

import "encoding/json"

// FilePart is a file attached to a create-job request.
type FilePart struct {
	Filename  string
	MediaType string
	Data      []byte
}

// CreateJobRequest is the multipart body of POST /jobs/create.
// Exactly one of File or Content is sent.
type CreateJobRequest struct {
	AccessToken       string
	File              *FilePart
	Content           string
	PageCountEstimate int
}

// CreateJobResponse is the success body of POST /jobs/create.
type CreateJobResponse struct {
	JobID        string          `json:"job_id"`
	Status       string          `json:"status,omitempty"`
	Segregation  json.RawMessage `json:"segregation"`
	PagesCreated int             `json:"pages_created,omitempty"`
}

// Segregation is the classification the server attaches to a new job.
type Segregation struct {
	InputType      string `json:"input_type"`
	Pipeline       string `json:"pipeline"`
	RequiresReview bool   `json:"requires_review"`
}

// ParseSegregation decodes the typed view of a raw segregation payload.
// Unknown fields are ignored.
func ParseSegregation(raw json.RawMessage) (*Segregation, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var s Segregation
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// PageStatus is the per-page state reported by GET /jobs/{id}/status.
type PageStatus struct {
	PageNumber int    `json:"page_number"`
	Status     string `json:"status"`
}

// JobStatusResponse is the body of GET /jobs/{id}/status.
type JobStatusResponse struct {
	JobID      string       `json:"job_id"`
	Status     *string      `json:"status"`
	TotalPages int          `json:"total_pages"`
	CreatedAt  string       `json:"created_at"`
	Pages      []PageStatus `json:"pages"`
}

type errorBody struct {
	Detail json.RawMessage `json:"detail"`
}
