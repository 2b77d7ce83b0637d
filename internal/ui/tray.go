package ui

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/getlantern/systray"

	"github.com/swrite/swrite-agent/internal/dashboard"
	"github.com/swrite/swrite-agent/internal/progress"
	"github.com/swrite/swrite-agent/internal/submit"
)

const submitTimeout = 2 * time.Minute

type Dashboard interface {
	Snapshot() dashboard.UIState
	OnChange(fn func(dashboard.UIState)) func()
	CreateJob(ctx context.Context, text string) (*submit.Result, error)
	Logout(ctx context.Context) error
}

type TrackerControl interface {
	Pause()
	Resume()
	IsPaused() bool
}

type Tray struct {
	board   Dashboard
	tracker TrackerControl
	logger  *slog.Logger

	statusItem   *systray.MenuItem
	progressItem *systray.MenuItem
	accountItem  *systray.MenuItem
	submitItem   *systray.MenuItem
	pauseItem    *systray.MenuItem
	signOutItem  *systray.MenuItem

	mu          sync.Mutex
	ready       bool
	unsubscribe func()

	onQuit func()
}

type TrayConfig struct {
	Dashboard Dashboard
	Tracker   TrackerControl
	Logger    *slog.Logger
	OnQuit    func()
}

func NewTray(cfg TrayConfig) *Tray {
	return &Tray{
		board:   cfg.Dashboard,
		tracker: cfg.Tracker,
		logger:  cfg.Logger,
		onQuit:  cfg.OnQuit,
	}
}

// Run blocks on the platform event loop until Quit.
func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

func (t *Tray) onReady() {
	systray.SetIcon(iconBytes)
	systray.SetTitle("swrite")
	systray.SetTooltip("swrite agent")

	t.statusItem = systray.AddMenuItem("Idle", "Current job status")
	t.statusItem.Disable()

	t.progressItem = systray.AddMenuItem("", "Job progress")
	t.progressItem.Disable()

	t.accountItem = systray.AddMenuItem("Signed out", "Account")
	t.accountItem.Disable()

	systray.AddSeparator()

	t.submitItem = systray.AddMenuItem("Upload Sample Text", "Submit the sample text as a new job")
	t.pauseItem = systray.AddMenuItem("Pause Tracking", "Pause job status polling")
	if t.tracker == nil {
		t.pauseItem.Hide()
	}
	t.signOutItem = systray.AddMenuItem("Sign Out", "Sign out of swrite")

	systray.AddSeparator()

	quitItem := systray.AddMenuItem("Quit", "Quit swrite agent")

	t.mu.Lock()
	t.ready = true
	t.mu.Unlock()

	t.unsubscribe = t.board.OnChange(t.redraw)
	t.redraw(t.board.Snapshot())

	go func() {
		for {
			select {
			case <-t.submitItem.ClickedCh:
				go t.handleSubmit()
			case <-t.pauseItem.ClickedCh:
				t.togglePause()
			case <-t.signOutItem.ClickedCh:
				t.handleSignOut()
			case <-quitItem.ClickedCh:
				t.logger.Info("quit requested from tray")
				if t.onQuit != nil {
					t.onQuit()
				}
				systray.Quit()
				return
			}
		}
	}()

	t.logger.Info("system tray ready")
}

func (t *Tray) onExit() {
	if t.unsubscribe != nil {
		t.unsubscribe()
	}
	t.logger.Info("system tray exiting")
}

func (t *Tray) handleSubmit() {
	ctx, cancel := context.WithTimeout(context.Background(), submitTimeout)
	defer cancel()

	if _, err := t.board.CreateJob(ctx, ""); err != nil {
		t.logger.Warn("tray submission failed", "error", err)
	}
}

func (t *Tray) handleSignOut() {
	if err := t.board.Logout(context.Background()); err != nil {
		t.logger.Error("failed to sign out", "error", err)
	}
}

func (t *Tray) togglePause() {
	if t.tracker == nil {
		return
	}

	if t.tracker.IsPaused() {
		t.tracker.Resume()
	} else {
		t.tracker.Pause()
	}
	t.redraw(t.board.Snapshot())
}

func (t *Tray) redraw(s dashboard.UIState) {
	paused := t.tracker != nil && t.tracker.IsPaused()
	m := menuFor(s, paused)

	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.ready {
		return
	}

	t.statusItem.SetTitle(m.status)
	t.progressItem.SetTitle(m.progress)
	t.accountItem.SetTitle(m.account)
	t.pauseItem.SetTitle(m.pause)
	setEnabled(t.submitItem, m.canSubmit)
	setEnabled(t.signOutItem, m.canSignOut)
}

func setEnabled(item *systray.MenuItem, enabled bool) {
	if enabled {
		item.Enable()
	} else {
		item.Disable()
	}
}

// menu is the tray text and enablement for one dashboard state.
type menu struct {
	status     string
	progress   string
	account    string
	pause      string
	canSubmit  bool
	canSignOut bool
}

func menuFor(s dashboard.UIState, paused bool) menu {
	m := menu{
		status:   s.Message,
		progress: progress.Render(s.Displayed).String(),
		account:  "Signed out",
		pause:    "Pause Tracking",
	}
	if m.status == "" {
		m.status = "Idle"
	}
	if paused {
		m.pause = "Resume Tracking"
	}
	if s.Authenticated {
		m.account = "Signed in"
		if s.Email != "" {
			m.account = s.Email
		}
	}

	for _, a := range dashboard.ActionsFor(s) {
		switch a {
		case dashboard.ActionSubmit:
			m.canSubmit = true
		case dashboard.ActionSignOut:
			m.canSignOut = true
		}
	}
	return m
}

func (t *Tray) Quit() {
	systray.Quit()
}
