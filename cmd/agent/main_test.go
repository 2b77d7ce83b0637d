package main

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/swrite/swrite-agent/internal/cloud"
	"github.com/swrite/swrite-agent/internal/db"
	"github.com/swrite/swrite-agent/internal/jobstore"
)

type scriptedStatus struct {
	tokens []*string
	pages  [][]cloud.PageStatus
	total  int
	calls  int
}

func (s *scriptedStatus) CreateJob(context.Context, cloud.CreateJobRequest) (*cloud.CreateJobResponse, error) {
	return nil, errors.New("not implemented")
}

func (s *scriptedStatus) GetJobStatus(_ context.Context, _, jobID string) (*cloud.JobStatusResponse, error) {
	i := s.calls
	if i >= len(s.tokens) {
		i = len(s.tokens) - 1
	}
	s.calls++
	resp := &cloud.JobStatusResponse{JobID: jobID, Status: s.tokens[i], TotalPages: s.total}
	if i < len(s.pages) {
		resp.Pages = s.pages[i]
	}
	return resp, nil
}

func strPtr(s string) *string { return &s }

func TestWatchStatus_FollowsUntilDone(t *testing.T) {
	api := &scriptedStatus{tokens: []*string{
		nil,
		strPtr("processing"),
		strPtr("bogus"),
		strPtr("planned"),
		strPtr("extracted"),
		strPtr("completed"),
	}}
	var out bytes.Buffer

	if err := watchStatus(context.Background(), api, "tok", "J1", true, time.Millisecond, &out); err != nil {
		t.Fatalf("watchStatus() error = %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	// nil, processing, planned, completed change the bar; bogus and the late
	// extracted do not.
	if len(lines) != 5 {
		t.Fatalf("output lines = %d, want 5:\n%s", len(lines), out.String())
	}
	if !strings.HasSuffix(lines[0], "(0%)") || !strings.HasSuffix(lines[3], "(100%)") {
		t.Errorf("unexpected bars:\n%s", out.String())
	}
	if lines[4] != "Job complete" {
		t.Errorf("last line = %q", lines[4])
	}
	if api.calls != 6 {
		t.Errorf("calls = %d, want 6", api.calls)
	}
}

func TestWatchStatus_Once(t *testing.T) {
	api := &scriptedStatus{tokens: []*string{strPtr("extracted")}}
	var out bytes.Buffer

	if err := watchStatus(context.Background(), api, "tok", "J1", false, time.Hour, &out); err != nil {
		t.Fatalf("watchStatus() error = %v", err)
	}
	if api.calls != 1 || !strings.Contains(out.String(), "(33%)") {
		t.Errorf("calls = %d output = %q", api.calls, out.String())
	}
}

func TestWatchStatus_RemoteFailure(t *testing.T) {
	api := &scriptedStatus{tokens: []*string{strPtr("failed")}}
	var out bytes.Buffer

	err := watchStatus(context.Background(), api, "tok", "J1", true, time.Millisecond, &out)
	var exit cli.ExitCoder
	if !errors.As(err, &exit) || exit.ExitCode() != 1 {
		t.Fatalf("error = %v, want exit code 1", err)
	}
}

func TestWatchStatus_PrintsPages(t *testing.T) {
	api := &scriptedStatus{
		tokens: []*string{strPtr("planned"), strPtr("planned"), strPtr("partial")},
		total:  3,
		pages: [][]cloud.PageStatus{
			{{PageNumber: 1, Status: "planned"}, {PageNumber: 2, Status: "planned"}, {PageNumber: 3, Status: "planned"}},
			{{PageNumber: 1, Status: "planned"}, {PageNumber: 2, Status: "planned"}, {PageNumber: 3, Status: "planned"}},
			{{PageNumber: 1, Status: "rendered"}, {PageNumber: 2, Status: "rendered"}, {PageNumber: 3, Status: "failed_system"}},
		},
	}
	var out bytes.Buffer

	if err := watchStatus(context.Background(), api, "tok", "J1", true, time.Millisecond, &out); err != nil {
		t.Fatalf("watchStatus() error = %v", err)
	}

	got := out.String()
	if strings.Count(got, "3 pages: 3 planned") != 1 {
		t.Errorf("unchanged pages should print once:\n%s", got)
	}
	if !strings.Contains(got, "3 pages: 1 failed_system, 2 rendered") {
		t.Errorf("missing final page summary:\n%s", got)
	}
	if !strings.HasSuffix(strings.TrimSpace(got), "Job complete") {
		t.Errorf("partial render should finish the watch:\n%s", got)
	}
}

func TestPageSummary(t *testing.T) {
	tests := []struct {
		name  string
		total int
		pages []cloud.PageStatus
		want  string
	}{
		{"nothing reported", 0, nil, ""},
		{"total only", 2, nil, "2 pages"},
		{"single page", 1, []cloud.PageStatus{{PageNumber: 1, Status: "approved"}}, "1 page: 1 approved"},
		{"pages without total", 0, []cloud.PageStatus{{PageNumber: 1}, {PageNumber: 2, Status: "rendering"}}, "2 pages: 1 rendering, 1 unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := pageSummary(tt.total, tt.pages); got != tt.want {
				t.Errorf("pageSummary() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLayoutFromFlags(t *testing.T) {
	var got cloud.LayoutConfig
	var changed bool
	app := &cli.App{
		Flags: layoutFlags,
		Action: func(c *cli.Context) error {
			changed = layoutChanged(c)
			got = layoutFromFlags(c)
			return nil
		},
	}

	if err := app.Run([]string{"plan", "--page-size", "Letter", "--margin-top", "72"}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	want := cloud.DefaultLayout()
	want.PageSize = cloud.PageSizeLetter
	want.MarginTop = 72
	if !changed || got != want {
		t.Errorf("layout = %+v changed = %v, want %+v", got, changed, want)
	}

	if err := app.Run([]string{"plan"}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if changed {
		t.Error("no layout flags should mean a plain plan")
	}
}

func TestJobAndPage(t *testing.T) {
	tests := []struct {
		args    []string
		page    int
		wantErr bool
	}{
		{[]string{"J1", "2"}, 2, false},
		{[]string{"J1"}, 0, true},
		{[]string{"J1", "0"}, 0, true},
		{[]string{"J1", "two"}, 0, true},
	}
	for _, tt := range tests {
		var page int
		var err error
		app := &cli.App{Action: func(c *cli.Context) error {
			_, page, err = jobAndPage(c)
			return nil
		}}
		app.Run(append([]string{"approve"}, tt.args...))

		if (err != nil) != tt.wantErr || page != tt.page {
			t.Errorf("jobAndPage(%v) = %d, %v", tt.args, page, err)
		}
	}
}

func TestEnsureAuthToken_Stable(t *testing.T) {
	database, err := db.New(filepath.Join(t.TempDir(), "test.db"), nil)
	if err != nil {
		t.Fatalf("db.New() error = %v", err)
	}
	defer database.Close()
	repo := jobstore.NewRepository(database.Conn())

	first, err := ensureAuthToken(repo)
	if err != nil {
		t.Fatalf("ensureAuthToken() error = %v", err)
	}
	if len(first) != 64 {
		t.Errorf("token length = %d, want 64", len(first))
	}

	second, err := ensureAuthToken(repo)
	if err != nil || second != first {
		t.Errorf("second call = %q, %v; want %q", second, err, first)
	}
}

func TestNewApp_Commands(t *testing.T) {
	app := newApp()
	want := []string{"serve", "submit", "login", "logout", "whoami", "jobs", "status", "plan", "render", "approve", "retry"}
	for _, name := range want {
		if app.Command(name) == nil {
			t.Errorf("missing command %q", name)
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short.pdf", 24); got != "short.pdf" {
		t.Errorf("truncate short = %q", got)
	}
	if got := truncate("a-very-long-file-name-for-a-report.pdf", 12); got != "a-very-lo..." {
		t.Errorf("truncate long = %q", got)
	}
}
