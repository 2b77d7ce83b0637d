package cloud

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// JobActions drives a created job through planning, rendering and page review.
type JobActions interface {
	Plan(ctx context.Context, accessToken, jobID string) (*PlanResponse, error)
	Replan(ctx context.Context, accessToken, jobID string, layout LayoutConfig) (*PlanResponse, error)
	Render(ctx context.Context, accessToken, jobID string) (*RenderResponse, error)
	ApprovePage(ctx context.Context, accessToken, jobID string, page int) (*PageActionResponse, error)
	RetryPage(ctx context.Context, accessToken, jobID string, page int) (*PageActionResponse, error)
}

// Page sizes accepted by the planner.
const (
	PageSizeA4     = "A4"
	PageSizeA5     = "A5"
	PageSizeLetter = "Letter"
)

// LayoutConfig is the page layout the planner fits text into. Margins and
// spacing are in points.
type LayoutConfig struct {
	PageSize     string `json:"page_size" yaml:"page_size"`
	MarginLeft   int    `json:"margin_left" yaml:"margin_left"`
	MarginTop    int    `json:"margin_top" yaml:"margin_top"`
	MarginBottom int    `json:"margin_bottom" yaml:"margin_bottom"`
	HeaderSpace  int    `json:"header_space" yaml:"header_space"`
	FooterSpace  int    `json:"footer_space" yaml:"footer_space"`
	LineSpacing  string `json:"line_spacing" yaml:"line_spacing"`
}

// DefaultLayout is the layout POST /jobs/{id}/plan uses.
func DefaultLayout() LayoutConfig {
	return LayoutConfig{
		PageSize:     PageSizeA4,
		MarginLeft:   48,
		MarginTop:    64,
		MarginBottom: 64,
		HeaderSpace:  40,
		FooterSpace:  30,
		LineSpacing:  "normal",
	}
}

// Validate rejects layouts the planner cannot use.
func (l LayoutConfig) Validate() error {
	switch l.PageSize {
	case PageSizeA4, PageSizeA5, PageSizeLetter:
	default:
		return fmt.Errorf("unknown page size %q", l.PageSize)
	}
	for name, v := range map[string]int{
		"margin_left":   l.MarginLeft,
		"margin_top":    l.MarginTop,
		"margin_bottom": l.MarginBottom,
		"header_space":  l.HeaderSpace,
		"footer_space":  l.FooterSpace,
	} {
		if v < 0 {
			return fmt.Errorf("%s must not be negative", name)
		}
	}
	return nil
}

// PlanResponse is the body of POST /jobs/{id}/plan and /replan. TotalPages
// is zero when only the stored layout changed.
type PlanResponse struct {
	Status     string `json:"status"`
	TotalPages int    `json:"total_pages,omitempty"`
}

type RenderResponse struct {
	Status        string `json:"status"`
	PagesRendered int    `json:"pages_rendered"`
}

type PageActionResponse struct {
	Status     string `json:"status"`
	PageNumber int    `json:"page_number"`
}

func (c *HTTPClient) Plan(ctx context.Context, accessToken, jobID string) (*PlanResponse, error) {
	var out PlanResponse
	if err := c.postJSON(ctx, "plan job", jobPath(jobID, "plan"), accessToken, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) Replan(ctx context.Context, accessToken, jobID string, layout LayoutConfig) (*PlanResponse, error) {
	var out PlanResponse
	if err := c.postJSON(ctx, "replan job", jobPath(jobID, "replan"), accessToken, layout, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) Render(ctx context.Context, accessToken, jobID string) (*RenderResponse, error) {
	var out RenderResponse
	if err := c.postJSON(ctx, "render job", jobPath(jobID, "render"), accessToken, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) ApprovePage(ctx context.Context, accessToken, jobID string, page int) (*PageActionResponse, error) {
	var out PageActionResponse
	if err := c.postJSON(ctx, "approve page", pagePath(jobID, page, "approve"), accessToken, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) RetryPage(ctx context.Context, accessToken, jobID string, page int) (*PageActionResponse, error) {
	var out PageActionResponse
	if err := c.postJSON(ctx, "retry page", pagePath(jobID, page, "retry"), accessToken, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func jobPath(jobID, action string) string {
	return fmt.Sprintf("/jobs/%s/%s", url.PathEscape(jobID), action)
}

func pagePath(jobID string, page int, action string) string {
	return fmt.Sprintf("/jobs/%s/pages/%d/%s", url.PathEscape(jobID), page, action)
}

// postJSON sends in as a JSON body (none when nil) and decodes the 2xx
// response into out.
func (c *HTTPClient) postJSON(ctx context.Context, op, path, accessToken string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s request: %w", op, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.authorize(req, accessToken)

	c.logger.Info("job action", "operation", op, "url", req.URL.String(), "request_id", req.Header.Get(RequestIDHeader))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &TransportError{Operation: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return newAPIError(op, resp, respBody)
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxSuccessBodyBytes)).Decode(out); err != nil {
		return &DecodeError{Operation: op, Err: err}
	}
	return nil
}
