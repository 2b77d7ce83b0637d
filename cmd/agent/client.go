package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/swrite/swrite-agent/internal/api"
	"github.com/swrite/swrite-agent/internal/config"
	"github.com/swrite/swrite-agent/internal/db"
	"github.com/swrite/swrite-agent/internal/intake"
	"github.com/swrite/swrite-agent/internal/jobstore"
	"github.com/swrite/swrite-agent/internal/pipeline"
)

// localClient calls the running agent's loopback API.
type localClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// newLocalClient reads the API token from the agent's database.
func newLocalClient(ctx context.Context) (*localClient, error) {
	cfg, err := config.New()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	database, err := db.New(cfg.DBPath(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	defer database.Close()

	token, err := jobstore.NewRepository(database.Conn()).GetConfig(ctx, api.AuthTokenKey)
	if err != nil {
		return nil, fmt.Errorf("failed to read auth token: %w", err)
	}
	if token == "" {
		return nil, errors.New("no auth token found; start the agent with 'swrite-agent serve' first")
	}

	return &localClient{
		baseURL:    fmt.Sprintf("http://127.0.0.1:%d", cfg.Port()),
		token:      token,
		httpClient: &http.Client{Timeout: cfg.HTTPTimeout() + 10*time.Second},
	}, nil
}

// do sends the request and decodes a 2xx body into out. Error bodies come
// back as the API's error message.
func (c *localClient) do(ctx context.Context, method, path, contentType string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("agent not reachable at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr api.ErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error != "" {
			return errors.New(apiErr.Error)
		}
		return fmt.Errorf("agent returned %s", resp.Status)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func submitAction(c *cli.Context) error {
	if c.NArg() > 1 {
		return cli.Exit(intake.ErrMultipleFiles.Error(), 1)
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if text := c.String("text"); text != "" {
		if err := w.WriteField("content", text); err != nil {
			return err
		}
	}
	if path := c.Args().First(); path != "" {
		candidate, err := intake.OpenFile(path)
		if err != nil {
			return cli.Exit(err.Error(), 1)
		}
		part, err := w.CreateFormFile("file", candidate.Filename)
		if err != nil {
			return err
		}
		if _, err := part.Write(candidate.Data); err != nil {
			return err
		}
	}
	if err := w.Close(); err != nil {
		return err
	}

	client, err := newLocalClient(c.Context)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	fmt.Println("Processing...")
	var resp api.CreateJobResponse
	if err := client.do(c.Context, http.MethodPost, "/jobs", w.FormDataContentType(), &buf, &resp); err != nil {
		return cli.Exit(err.Error(), 1)
	}

	fmt.Println(resp.Message)
	if len(resp.Segregation) > 0 {
		fmt.Printf("Segregation: %s\n", resp.Segregation)
	}
	return nil
}

func loginAction(c *cli.Context) error {
	body, err := json.Marshal(api.LoginRequest{
		AccessToken: c.String("token"),
		Email:       c.String("email"),
		Provider:    c.String("provider"),
		ExpiresIn:   int64(c.Duration("expires-in").Seconds()),
	})
	if err != nil {
		return err
	}

	client, err := newLocalClient(c.Context)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	var resp api.SessionResponse
	if err := client.do(c.Context, http.MethodPost, "/session/login", "application/json", bytes.NewReader(body), &resp); err != nil {
		return cli.Exit(err.Error(), 1)
	}
	printSession(resp)
	return nil
}

func logoutAction(c *cli.Context) error {
	client, err := newLocalClient(c.Context)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	if err := client.do(c.Context, http.MethodPost, "/session/logout", "", nil, nil); err != nil {
		return cli.Exit(err.Error(), 1)
	}
	fmt.Println("Signed out")
	return nil
}

func whoamiAction(c *cli.Context) error {
	client, err := newLocalClient(c.Context)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	var resp api.SessionResponse
	if err := client.do(c.Context, http.MethodGet, "/session", "", nil, &resp); err != nil {
		return cli.Exit(err.Error(), 1)
	}
	printSession(resp)
	return nil
}

func printSession(s api.SessionResponse) {
	if !s.Authenticated {
		fmt.Println("Not signed in")
		return
	}
	who := s.Email
	if who == "" {
		who = "(no email)"
	}
	fmt.Printf("Signed in as %s", who)
	if s.Provider != "" {
		fmt.Printf(" via %s", s.Provider)
	}
	if s.ExpiresAt != "" {
		fmt.Printf(", expires %s", s.ExpiresAt)
	}
	fmt.Println()
}

func jobsAction(c *cli.Context) error {
	client, err := newLocalClient(c.Context)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	var resp api.JobsResponse
	if err := client.do(c.Context, http.MethodGet, "/jobs", "", nil, &resp); err != nil {
		return cli.Exit(err.Error(), 1)
	}

	if len(resp.Jobs) == 0 {
		fmt.Println("No jobs found")
		return nil
	}

	jobs := resp.Jobs
	if limit := c.Int("limit"); limit > 0 && len(jobs) > limit {
		jobs = jobs[:limit]
	}

	fmt.Printf("%-38s %-10s %-12s %-24s %-20s\n", "JOB ID", "STATUS", "STAGE", "INPUT", "CREATED")
	fmt.Println(strings.Repeat("-", 108))
	for _, j := range jobs {
		id := j.RemoteID
		if id == "" {
			id = "(" + j.ID[:8] + ")"
		}
		input := j.InputKind
		if j.Filename != "" {
			input = j.Filename
		}
		stage := pipeline.StageIndex(j.StageIndex).Label()
		if stage == "" {
			stage = "-"
		}
		fmt.Printf("%-38s %-10s %-12s %-24s %-20s\n", id, j.Status, stage, truncate(input, 24), j.CreatedAt)
		if j.Error != "" {
			fmt.Printf("  %s\n", j.Error)
		}
	}
	fmt.Printf("\nTotal: %d jobs\n", len(jobs))
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
