package cloud

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	maxErrorBodyBytes   = 4096
	maxSuccessBodyBytes = 1 << 20

	RequestIDHeader = "X-Swrite-Request-Id"
)

// HTTPClient is the production JobAPI implementation.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewHTTPClient(baseURL string, timeout time.Duration, logger *slog.Logger) *HTTPClient {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

func (c *HTTPClient) CreateJob(ctx context.Context, in CreateJobRequest) (*CreateJobResponse, error) {
	const op = "create job"

	body, contentType, err := encodeCreateJob(in)
	if err != nil {
		return nil, fmt.Errorf("encode %s request: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/jobs/create", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	c.authorize(req, in.AccessToken)

	payloadKind := "content"
	if in.File != nil {
		payloadKind = "file"
	}
	c.logger.Info("creating job",
		"url", req.URL.String(),
		"payload", payloadKind,
		"page_count_estimate", in.PageCountEstimate,
		"body_bytes", len(body),
		"request_id", req.Header.Get(RequestIDHeader),
	)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Operation: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return nil, newAPIError(op, resp, respBody)
	}

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxSuccessBodyBytes))
	if err != nil {
		return nil, &TransportError{Operation: op, Err: err}
	}

	var result CreateJobResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, &DecodeError{Operation: op, Err: err}
	}
	if strings.TrimSpace(result.JobID) == "" {
		return nil, &DecodeError{Operation: op, Err: errors.New("missing job_id")}
	}

	c.logger.Info("job created", "job_id", result.JobID, "status", result.Status)
	return &result, nil
}

func (c *HTTPClient) GetJobStatus(ctx context.Context, accessToken, jobID string) (*JobStatusResponse, error) {
	const op = "get job status"

	endpoint := fmt.Sprintf("%s/jobs/%s/status", c.baseURL, url.PathEscape(jobID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	c.authorize(req, accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Operation: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return nil, newAPIError(op, resp, respBody)
	}

	var result JobStatusResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxSuccessBodyBytes)).Decode(&result); err != nil {
		return nil, &DecodeError{Operation: op, Err: err}
	}
	return &result, nil
}

func (c *HTTPClient) authorize(req *http.Request, accessToken string) {
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set(RequestIDHeader, uuid.NewString())
}

func encodeCreateJob(in CreateJobRequest) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	if err := w.WriteField("page_count_estimate", strconv.Itoa(in.PageCountEstimate)); err != nil {
		return nil, "", err
	}

	if in.File != nil {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition",
			fmt.Sprintf(`form-data; name="file"; filename="%s"`, quoteEscaper.Replace(in.File.Filename)))
		mediaType := in.File.MediaType
		if mediaType == "" {
			mediaType = "application/octet-stream"
		}
		h.Set("Content-Type", mediaType)

		part, err := w.CreatePart(h)
		if err != nil {
			return nil, "", err
		}
		if _, err := part.Write(in.File.Data); err != nil {
			return nil, "", err
		}
	} else {
		if err := w.WriteField("content", in.Content); err != nil {
			return nil, "", err
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")
