package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/swrite/swrite-agent/internal/api"
	"github.com/swrite/swrite-agent/internal/cloud"
	"github.com/swrite/swrite-agent/internal/config"
	"github.com/swrite/swrite-agent/internal/dashboard"
	"github.com/swrite/swrite-agent/internal/db"
	"github.com/swrite/swrite-agent/internal/jobstore"
	"github.com/swrite/swrite-agent/internal/logging"
	"github.com/swrite/swrite-agent/internal/metrics"
	"github.com/swrite/swrite-agent/internal/pipeline"
	"github.com/swrite/swrite-agent/internal/resilience"
	"github.com/swrite/swrite-agent/internal/session"
	"github.com/swrite/swrite-agent/internal/submit"
	"github.com/swrite/swrite-agent/internal/tracker"
	"github.com/swrite/swrite-agent/internal/ui"
)

func serveAction(c *cli.Context) error {
	return run()
}

func run() error {
	startTime := time.Now()

	cfg, err := config.New()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := os.MkdirAll(cfg.DataDir(), 0755); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}

	logger := logging.NewLogger(cfg.LogLevel())
	logger.Info("starting swrite agent",
		"version", config.Version,
		"data_dir", logging.SanitizePath(cfg.DataDir()),
		"api_url", cfg.APIURL(),
	)

	database, err := db.New(cfg.DBPath(), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer database.Close()

	repo := jobstore.NewRepository(database.Conn())

	authToken, err := ensureAuthToken(repo)
	if err != nil {
		return fmt.Errorf("failed to ensure auth token: %w", err)
	}

	fmt.Println()
	fmt.Println("╔═══════════════════════════════════════════════════════════╗")
	fmt.Printf("║                  SWRITE AGENT %-27s ║\n", config.Version)
	fmt.Println("╠═══════════════════════════════════════════════════════════╣")
	fmt.Printf("║  API URL:    http://127.0.0.1:%-27d ║\n", cfg.Port())
	fmt.Printf("║  Auth Token: %-45s ║\n", authToken)
	fmt.Println("╚═══════════════════════════════════════════════════════════╝")
	fmt.Println()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sessions := session.NewStore(session.NewTokenProvider(repo), logger)
	defer sessions.Close()
	if err := sessions.Init(ctx); err != nil {
		logger.Warn("failed to restore session", "error", err)
	}

	m := metrics.New()
	client := cloud.NewHTTPClient(cfg.APIURL(), cfg.HTTPTimeout(), logger)
	controller := submit.NewController(client, repo, m, cfg.SampleText(), logger)

	board := dashboard.New(sessions, controller, m, logger)
	defer board.Close()
	resumeActiveJob(ctx, repo, board, logger)

	executor := resilience.NewExecutor(resilience.DefaultConfig(), logger)
	statusTracker := tracker.New(client, board, sessions, repo, executor, m, tracker.Config{
		Interval:      cfg.PollInterval(),
		RatePerSecond: cfg.PollRate(),
	}, logger)
	go statusTracker.Start(ctx)

	apiServer := api.NewServer(api.ServerConfig{
		Port:      cfg.Port(),
		Version:   config.Version,
		Dashboard: board,
		Sessions:  sessions,
		Jobs:      repo,
		Tracker:   statusTracker,
		Actions:   client,
		Metrics:   m.Handler(),
		Logger:    logger,
		StartTime: startTime,
	})

	go func() {
		if err := apiServer.Start(); err != nil {
			logger.Error("HTTP server error", "error", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	quitCh := make(chan struct{})

	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("received shutdown signal", "signal", sig)
			close(quitCh)
		case <-quitCh:
		}
	}()

	if cfg.Headless() {
		logger.Info("running in headless mode (no system tray)")
	} else {
		tray := ui.NewTray(ui.TrayConfig{
			Dashboard: board,
			Tracker:   statusTracker,
			Logger:    logger,
			OnQuit: func() {
				close(quitCh)
			},
		})
		go tray.Run()
	}

	<-quitCh

	logger.Info("initiating graceful shutdown")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown HTTP server", "error", err)
	}

	logger.Info("shutdown complete")
	return nil
}

// resumeActiveJob puts the most recent unfinished job back on screen so the
// tracker picks it up after a restart.
func resumeActiveJob(ctx context.Context, repo jobstore.Repository, board *dashboard.Dashboard, logger *slog.Logger) {
	active, err := repo.ListActiveJobs(ctx)
	if err != nil {
		logger.Warn("failed to load active jobs", "error", err)
		return
	}
	if len(active) == 0 {
		return
	}

	j := active[len(active)-1]
	var segregation json.RawMessage
	if j.Segregation != "" && json.Valid([]byte(j.Segregation)) {
		segregation = json.RawMessage(j.Segregation)
	}
	if board.ResumeJob(j.RemoteID, j.ID, segregation, pipeline.StageIndex(j.StageIndex)) {
		logger.Info("resumed tracking", "job_id", j.RemoteID, "stage", j.StageIndex)
	}
}

func ensureAuthToken(repo jobstore.Repository) (string, error) {
	ctx := context.Background()

	existing, err := repo.GetConfig(ctx, api.AuthTokenKey)
	if err == nil && existing != "" {
		return existing, nil
	}

	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", err
	}
	token := hex.EncodeToString(tokenBytes)

	if err := repo.SetConfig(ctx, api.AuthTokenKey, token); err != nil {
		return "", err
	}

	return token, nil
}
