package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/swrite/swrite-agent/internal/cloud"
	"github.com/swrite/swrite-agent/internal/config"
	"github.com/swrite/swrite-agent/internal/db"
	"github.com/swrite/swrite-agent/internal/jobstore"
	"github.com/swrite/swrite-agent/internal/pipeline"
	"github.com/swrite/swrite-agent/internal/progress"
	"github.com/swrite/swrite-agent/internal/session"
)

// statusAction asks the Job API directly with the stored session, so it
// works whether or not the agent is running.
func statusAction(c *cli.Context) error {
	jobID := c.Args().First()
	if jobID == "" {
		return cli.Exit("job id is required", 1)
	}

	cfg, err := config.New()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	database, err := db.New(cfg.DBPath(), nil)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	sess, err := session.NewTokenProvider(jobstore.NewRepository(database.Conn())).CurrentSession(c.Context)
	database.Close()
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	if sess == nil || sess.Expired(time.Now()) {
		return cli.Exit("Not signed in", 1)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	client := cloud.NewHTTPClient(cfg.APIURL(), cfg.HTTPTimeout(), logger)

	return watchStatus(c.Context, client, sess.AccessToken, jobID, c.Bool("watch"), cfg.PollInterval(), c.App.Writer)
}

// watchStatus prints the job's progress bar each time it advances. Without
// watch it prints once.
func watchStatus(ctx context.Context, api cloud.JobAPI, accessToken, jobID string, watch bool, interval time.Duration, out io.Writer) error {
	tr := progress.NewTracker()
	last, lastPages := "", ""

	for {
		resp, err := api.GetJobStatus(ctx, accessToken, jobID)
		if err != nil {
			return cli.Exit(fmt.Sprintf("Error: %v", err), 1)
		}

		outcome := pipeline.OutcomeRunning
		if resp.Status != nil {
			token := pipeline.StatusToken(*resp.Status)
			tr.Observe(token)
			outcome = pipeline.Classify(token)
		}

		line := progress.Render(tr.Displayed()).String()
		if line != last {
			fmt.Fprintf(out, "%s  %s\n", jobID, line)
			last = line
		}
		if pages := pageSummary(resp.TotalPages, resp.Pages); pages != lastPages {
			fmt.Fprintf(out, "  %s\n", pages)
			lastPages = pages
		}

		switch outcome {
		case pipeline.OutcomeDone:
			fmt.Fprintln(out, "Job complete")
			return nil
		case pipeline.OutcomeFailed:
			return cli.Exit("Error: processing failed", 1)
		}
		if !watch {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
}

// pageSummary counts pages by status, e.g. "3 pages: 1 approved, 2 rendered".
// It is empty when the server reported no pages.
func pageSummary(total int, pages []cloud.PageStatus) string {
	if total < len(pages) {
		total = len(pages)
	}
	if total == 0 {
		return ""
	}

	counts := make(map[string]int)
	for _, p := range pages {
		st := p.Status
		if st == "" {
			st = "unknown"
		}
		counts[st]++
	}
	statuses := make([]string, 0, len(counts))
	for st := range counts {
		statuses = append(statuses, st)
	}
	sort.Strings(statuses)

	parts := make([]string, len(statuses))
	for i, st := range statuses {
		parts[i] = fmt.Sprintf("%d %s", counts[st], st)
	}

	noun := "pages"
	if total == 1 {
		noun = "page"
	}
	if len(parts) == 0 {
		return fmt.Sprintf("%d %s", total, noun)
	}
	return fmt.Sprintf("%d %s: %s", total, noun, strings.Join(parts, ", "))
}
