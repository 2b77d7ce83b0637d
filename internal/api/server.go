// Package api serves the agent's local HTTP API on the loopback interface.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/swrite/swrite-agent/internal/cloud"
	"github.com/swrite/swrite-agent/internal/dashboard"
	"github.com/swrite/swrite-agent/internal/intake"
	"github.com/swrite/swrite-agent/internal/jobstore"
	"github.com/swrite/swrite-agent/internal/session"
	"github.com/swrite/swrite-agent/internal/submit"
)

type DashboardService interface {
	View() dashboard.View
	Snapshot() dashboard.UIState
	SelectArtifact(a *intake.Artifact) error
	ClearArtifact() error
	CreateJob(ctx context.Context, text string) (*submit.Result, error)
}

type SessionService interface {
	Current() *session.Session
	SignIn(ctx context.Context, provider string, creds session.Credentials) (*session.Session, error)
	SignOut(ctx context.Context) error
}

type JobHistory interface {
	ConfigReader
	ListJobs(ctx context.Context, limit int) ([]*jobstore.Job, error)
	GetJob(ctx context.Context, id string) (*jobstore.Job, error)
	GetJobByRemoteID(ctx context.Context, remoteID string) (*jobstore.Job, error)
}

type TrackerControl interface {
	Pause()
	Resume()
	IsPaused() bool
}

type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

type ServerConfig struct {
	Port      int
	Version   string
	Dashboard DashboardService
	Sessions  SessionService
	Jobs      JobHistory
	Tracker   TrackerControl
	Actions   cloud.JobActions
	Metrics   http.Handler
	Logger    *slog.Logger
	StartTime time.Time
}

func NewServer(cfg ServerConfig) *Server {
	router := NewRouter(cfg)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf("127.0.0.1:%d", cfg.Port),
			Handler:      router,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 2 * time.Minute,
			IdleTimeout:  60 * time.Second,
		},
		logger: cfg.Logger,
	}
}

func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
	err := s.httpServer.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) Addr() string {
	return s.httpServer.Addr
}
