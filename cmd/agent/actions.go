package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/urfave/cli/v2"

	"github.com/swrite/swrite-agent/internal/cloud"
)

func planAction(c *cli.Context) error {
	jobID := c.Args().First()
	if jobID == "" {
		return cli.Exit("job id is required", 1)
	}

	path := "/jobs/" + url.PathEscape(jobID) + "/plan"
	var body *bytes.Reader
	if layoutChanged(c) {
		layout := layoutFromFlags(c)
		if err := layout.Validate(); err != nil {
			return cli.Exit(err.Error(), 1)
		}
		data, err := json.Marshal(layout)
		if err != nil {
			return err
		}
		path = "/jobs/" + url.PathEscape(jobID) + "/replan"
		body = bytes.NewReader(data)
	}

	client, err := newLocalClient(c.Context)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	var resp cloud.PlanResponse
	if body == nil {
		err = client.do(c.Context, http.MethodPost, path, "", nil, &resp)
	} else {
		err = client.do(c.Context, http.MethodPost, path, "application/json", body, &resp)
	}
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	fmt.Fprintf(c.App.Writer, "%s: %s", jobID, resp.Status)
	if resp.TotalPages > 0 {
		fmt.Fprintf(c.App.Writer, " (%d pages)", resp.TotalPages)
	}
	fmt.Fprintln(c.App.Writer)
	return nil
}

func renderAction(c *cli.Context) error {
	jobID := c.Args().First()
	if jobID == "" {
		return cli.Exit("job id is required", 1)
	}

	client, err := newLocalClient(c.Context)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	var resp cloud.RenderResponse
	if err := client.do(c.Context, http.MethodPost, "/jobs/"+url.PathEscape(jobID)+"/render", "", nil, &resp); err != nil {
		return cli.Exit(err.Error(), 1)
	}
	fmt.Fprintf(c.App.Writer, "%s: %s (%d pages rendered)\n", jobID, resp.Status, resp.PagesRendered)
	return nil
}

// pageCommand builds the action for approve and retry, which differ only in
// the path verb.
func pageCommand(verb string) cli.ActionFunc {
	return func(c *cli.Context) error {
		jobID, page, err := jobAndPage(c)
		if err != nil {
			return err
		}

		client, err := newLocalClient(c.Context)
		if err != nil {
			return cli.Exit(err.Error(), 1)
		}

		path := fmt.Sprintf("/jobs/%s/pages/%d/%s", url.PathEscape(jobID), page, verb)
		var resp cloud.PageActionResponse
		if err := client.do(c.Context, http.MethodPost, path, "", nil, &resp); err != nil {
			return cli.Exit(err.Error(), 1)
		}
		fmt.Fprintf(c.App.Writer, "%s page %d: %s\n", jobID, resp.PageNumber, resp.Status)
		return nil
	}
}

func jobAndPage(c *cli.Context) (string, int, error) {
	if c.NArg() != 2 {
		return "", 0, cli.Exit("usage: JOB_ID PAGE", 1)
	}
	page, err := strconv.Atoi(c.Args().Get(1))
	if err != nil || page < 1 {
		return "", 0, cli.Exit("page must be a positive number", 1)
	}
	return c.Args().First(), page, nil
}

var layoutFlags = []cli.Flag{
	&cli.StringFlag{Name: "page-size", Usage: "A4, A5 or Letter"},
	&cli.IntFlag{Name: "margin-left", Usage: "left margin in points"},
	&cli.IntFlag{Name: "margin-top", Usage: "top margin in points"},
	&cli.IntFlag{Name: "margin-bottom", Usage: "bottom margin in points"},
	&cli.IntFlag{Name: "header-space", Usage: "header space in points"},
	&cli.IntFlag{Name: "footer-space", Usage: "footer space in points"},
	&cli.StringFlag{Name: "line-spacing", Usage: "line spacing, e.g. normal"},
}

func layoutChanged(c *cli.Context) bool {
	for _, f := range layoutFlags {
		if c.IsSet(f.Names()[0]) {
			return true
		}
	}
	return false
}

// layoutFromFlags starts from the default layout and applies the flags that
// were set.
func layoutFromFlags(c *cli.Context) cloud.LayoutConfig {
	l := cloud.DefaultLayout()
	if c.IsSet("page-size") {
		l.PageSize = c.String("page-size")
	}
	if c.IsSet("margin-left") {
		l.MarginLeft = c.Int("margin-left")
	}
	if c.IsSet("margin-top") {
		l.MarginTop = c.Int("margin-top")
	}
	if c.IsSet("margin-bottom") {
		l.MarginBottom = c.Int("margin-bottom")
	}
	if c.IsSet("header-space") {
		l.HeaderSpace = c.Int("header-space")
	}
	if c.IsSet("footer-space") {
		l.FooterSpace = c.Int("footer-space")
	}
	if c.IsSet("line-spacing") {
		l.LineSpacing = c.String("line-spacing")
	}
	return l
}
