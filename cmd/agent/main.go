package main

import (
	"log"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/swrite/swrite-agent/internal/config"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatalf("fatal error: %v", err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "swrite-agent",
		Usage:   "submit documents to swrite and follow their processing",
		Version: config.Version,
		Action:  serveAction,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the agent: local API, status tracking and tray",
				Action: serveAction,
			},
			{
				Name:      "submit",
				Usage:     "submit a file, or text when no file is given",
				ArgsUsage: "[FILE]",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "text", Usage: "text to submit when no file is given"},
				},
				Action: submitAction,
			},
			{
				Name:  "login",
				Usage: "store a Job API session",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "token", Usage: "access token from the identity provider", Required: true, EnvVars: []string{"SWRITE_ACCESS_TOKEN"}},
					&cli.StringFlag{Name: "email", Usage: "account email"},
					&cli.StringFlag{Name: "provider", Usage: "identity provider name"},
					&cli.DurationFlag{Name: "expires-in", Usage: "session lifetime, 0 for none"},
				},
				Action: loginAction,
			},
			{
				Name:   "logout",
				Usage:  "end the session",
				Action: logoutAction,
			},
			{
				Name:   "whoami",
				Usage:  "show the signed-in account",
				Action: whoamiAction,
			},
			{
				Name:  "jobs",
				Usage: "list submitted jobs",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "limit", Value: 20, Usage: "maximum jobs to show"},
				},
				Action: jobsAction,
			},
			{
				Name:      "status",
				Usage:     "show a job's processing progress",
				ArgsUsage: "JOB_ID",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "watch", Aliases: []string{"w"}, Usage: "poll until the job finishes"},
				},
				Action: statusAction,
			},
			{
				Name:      "plan",
				Usage:     "plan a job's pages; layout flags replan with a custom layout",
				ArgsUsage: "JOB_ID",
				Flags:     layoutFlags,
				Action:    planAction,
			},
			{
				Name:      "render",
				Usage:     "render a planned job",
				ArgsUsage: "JOB_ID",
				Action:    renderAction,
			},
			{
				Name:      "approve",
				Usage:     "approve a rendered page",
				ArgsUsage: "JOB_ID PAGE",
				Action:    pageCommand("approve"),
			},
			{
				Name:      "retry",
				Usage:     "render a failed page again",
				ArgsUsage: "JOB_ID PAGE",
				Action:    pageCommand("retry"),
			},
		},
	}
}
