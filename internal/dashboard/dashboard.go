// Package dashboard owns the UI state shared by the local API, the tray and
// the status tracker. All mutations go through a Dashboard.
package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"github.com/swrite/swrite-agent/internal/intake"
	"github.com/swrite/swrite-agent/internal/logging"
	"github.com/swrite/swrite-agent/internal/pipeline"
	"github.com/swrite/swrite-agent/internal/progress"
	"github.com/swrite/swrite-agent/internal/session"
	"github.com/swrite/swrite-agent/internal/submit"
)

// RemoteFailedMessage is shown when the server reports the job failed.
const RemoteFailedMessage = "Error: processing failed"

var ErrSignedOut = errors.New("not signed in")

type Action string

const (
	ActionSignIn     Action = "sign_in"
	ActionSelectFile Action = "select_file"
	ActionClearFile  Action = "clear_file"
	ActionSubmit     Action = "submit"
	ActionSignOut    Action = "sign_out"
)

// Job is the job currently on screen. The raw server status never gets
// here; only its normalized outcome does.
type Job struct {
	ID           string          `json:"id"`
	LocalID      string          `json:"local_id,omitempty"`
	Segregation  json.RawMessage `json:"segregation,omitempty"`
	PagesCreated int             `json:"pages_created,omitempty"`
	Outcome      string          `json:"outcome"`
}

// Terminal reports whether status polling should stop for the job.
func (j *Job) Terminal() bool {
	return j.Outcome != pipeline.OutcomeRunning.String()
}

type UIState struct {
	Authenticated bool                `json:"authenticated"`
	Email         string              `json:"email,omitempty"`
	Selected      *intake.Artifact    `json:"selected,omitempty"`
	InFlight      bool                `json:"in_flight"`
	Job           *Job                `json:"job,omitempty"`
	Displayed     pipeline.StageIndex `json:"displayed"`
	Message       string              `json:"message,omitempty"`
}

// View is a state snapshot with everything needed to draw it.
type View struct {
	State    UIState            `json:"state"`
	Progress progress.Rendering `json:"progress"`
	Actions  []Action           `json:"actions"`
}

type SessionSource interface {
	Current() *session.Session
	Subscribe(fn func(session.Event)) func()
	SignOut(ctx context.Context) error
}

type Submitter interface {
	Submit(ctx context.Context, req submit.SubmissionRequest, accessToken string) (*submit.Result, error)
}

// StageGauge receives the displayed stage. *metrics.Metrics satisfies it.
type StageGauge interface {
	SetDisplayedStage(index int)
}

type Dashboard struct {
	sessions  SessionSource
	submitter Submitter
	gauge     StageGauge
	logger    *slog.Logger

	mu          sync.Mutex
	state       UIState
	token       string
	generation  uint64
	listeners   map[int]func(UIState)
	nextID      int
	unsubscribe func()
}

// New builds a dashboard bound to sessions. gauge may be nil.
func New(sessions SessionSource, submitter Submitter, gauge StageGauge, logger *slog.Logger) *Dashboard {
	d := &Dashboard{
		sessions:  sessions,
		submitter: submitter,
		gauge:     gauge,
		logger:    logging.WithComponent(logger, "dashboard"),
		listeners: make(map[int]func(UIState)),
	}
	d.state.Displayed = pipeline.NoStage

	if cur := sessions.Current(); cur != nil {
		d.signIn(cur)
	}
	d.unsubscribe = sessions.Subscribe(d.handleSession)
	return d
}

// Close stops listening for session changes.
func (d *Dashboard) Close() {
	if d.unsubscribe != nil {
		d.unsubscribe()
	}
}

func (d *Dashboard) handleSession(ev session.Event) {
	switch ev.Kind {
	case session.SignedIn:
		d.mu.Lock()
		switched := d.state.Authenticated && ev.Session != nil &&
			(d.token != ev.Session.AccessToken || d.state.Email != ev.Session.Email)
		if switched {
			// Another account: nothing from the previous one carries over.
			d.resetLocked()
		}
		d.signIn(ev.Session)
		snap := d.snapshotLocked()
		d.mu.Unlock()
		d.logger.Info("session active", "email", ev.Session.Email, "switched", switched)
		if switched {
			d.setGauge(pipeline.NoStage)
		}
		d.notify(snap)
	case session.SignedOut, session.Expired:
		d.mu.Lock()
		d.resetLocked()
		snap := d.snapshotLocked()
		d.mu.Unlock()
		d.logger.Info("session ended", "reason", ev.Kind.String())
		d.setGauge(pipeline.NoStage)
		d.notify(snap)
	}
}

// resetLocked drops all per-session state. Results of requests started
// before the reset are discarded.
func (d *Dashboard) resetLocked() {
	d.state = UIState{Displayed: pipeline.NoStage}
	d.token = ""
	d.generation++
}

// signIn must be called with mu held, or before the dashboard is shared.
func (d *Dashboard) signIn(s *session.Session) {
	if s == nil {
		return
	}
	d.state.Authenticated = true
	d.state.Email = s.Email
	d.token = s.AccessToken
}

// SelectArtifact replaces the selected file. A nil artifact clears it. The
// selection is frozen while a submission is in flight.
func (d *Dashboard) SelectArtifact(a *intake.Artifact) error {
	d.mu.Lock()
	if !d.state.Authenticated {
		d.mu.Unlock()
		return ErrSignedOut
	}
	if d.state.InFlight {
		d.mu.Unlock()
		return submit.ErrInFlight
	}
	d.state.Selected = a
	snap := d.snapshotLocked()
	d.mu.Unlock()

	d.notify(snap)
	return nil
}

func (d *Dashboard) ClearArtifact() error {
	d.mu.Lock()
	if d.state.InFlight {
		d.mu.Unlock()
		return submit.ErrInFlight
	}
	d.state.Selected = nil
	snap := d.snapshotLocked()
	d.mu.Unlock()

	d.notify(snap)
	return nil
}

// CreateJob submits the selected file, or text when no file is selected.
// Text is dropped when a file is selected. Starting a submission discards the
// job on screen.
func (d *Dashboard) CreateJob(ctx context.Context, text string) (*submit.Result, error) {
	d.mu.Lock()
	if !d.state.Authenticated {
		d.mu.Unlock()
		return nil, submit.ErrAuthRequired
	}
	if d.state.InFlight {
		d.mu.Unlock()
		return nil, submit.ErrInFlight
	}

	req := submit.SubmissionRequest{Artifact: d.state.Selected}
	if req.Artifact == nil {
		req.Text = text
	}
	token := d.token
	gen := d.generation

	d.state.InFlight = true
	d.state.Job = nil
	d.state.Displayed = pipeline.NoStage
	d.state.Message = submit.ProcessingBanner
	snap := d.snapshotLocked()
	d.mu.Unlock()

	d.setGauge(pipeline.NoStage)
	d.notify(snap)

	res, err := d.submitter.Submit(ctx, req, token)

	d.mu.Lock()
	if gen != d.generation {
		// Signed out while the request was outstanding.
		d.mu.Unlock()
		return res, err
	}

	d.state.InFlight = false
	var displayed pipeline.StageIndex
	if err != nil {
		d.state.Message = submit.FailedBanner(failureMessage(err))
		displayed = d.state.Displayed
	} else {
		d.state.Job = &Job{
			ID:           res.JobID,
			LocalID:      res.LocalID,
			Segregation:  res.Segregation,
			PagesCreated: res.PagesCreated,
			Outcome:      pipeline.OutcomeRunning.String(),
		}
		if d.state.Selected == req.Artifact {
			d.state.Selected = nil
		}
		d.state.Message = submit.CreatedBanner(res.JobID)
		if res.Status != "" {
			d.observeLocked(&res.Status)
		}
		displayed = d.state.Displayed
	}
	snap = d.snapshotLocked()
	d.mu.Unlock()

	d.setGauge(displayed)
	d.notify(snap)
	return res, err
}

// Observe folds a status token for jobID into the displayed stage and
// returns the new displayed index. Tokens for any other job are ignored.
func (d *Dashboard) Observe(jobID string, token *string) pipeline.StageIndex {
	d.mu.Lock()
	if d.state.Job == nil || d.state.Job.ID != jobID {
		displayed := d.state.Displayed
		d.mu.Unlock()
		return displayed
	}
	changed := d.observeLocked(token)
	displayed := d.state.Displayed
	snap := d.snapshotLocked()
	d.mu.Unlock()

	if changed {
		d.setGauge(displayed)
		d.notify(snap)
	}
	return displayed
}

// observeLocked reports whether anything visible changed.
func (d *Dashboard) observeLocked(token *string) bool {
	before := d.state.Displayed
	beforeOutcome := d.state.Job.Outcome

	d.state.Displayed = progress.Present(d.state.Displayed, pipeline.NormalizeToken(token))

	outcome := pipeline.OutcomeRunning
	if token != nil {
		outcome = pipeline.Classify(pipeline.StatusToken(*token))
	}
	switch {
	case outcome == pipeline.OutcomeFailed:
		d.state.Job.Outcome = outcome.String()
		d.state.Message = submit.FailedBanner(RemoteFailedMessage)
	case outcome == pipeline.OutcomeDone || d.state.Displayed == pipeline.LastIndex():
		d.state.Job.Outcome = pipeline.OutcomeDone.String()
	}

	return d.state.Displayed != before || d.state.Job.Outcome != beforeOutcome
}

// Abandon marks jobID failed when the server can no longer report on it, so
// polling stops. reason becomes the banner detail.
func (d *Dashboard) Abandon(jobID, reason string) {
	d.mu.Lock()
	if d.state.Job == nil || d.state.Job.ID != jobID || d.state.Job.Terminal() {
		d.mu.Unlock()
		return
	}
	d.state.Job.Outcome = pipeline.OutcomeFailed.String()
	d.state.Message = submit.FailedBanner("Error: " + reason)
	snap := d.snapshotLocked()
	d.mu.Unlock()

	d.logger.Warn("job abandoned", "job_id", jobID, "reason", reason)
	d.notify(snap)
}

// TrackedJob returns the job whose status should be polled, if any.
func (d *Dashboard) TrackedJob() (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.state.Authenticated || d.state.Job == nil || d.state.Job.Terminal() {
		return "", false
	}
	return d.state.Job.ID, true
}

// ResumeJob puts an already accepted job back on screen, for example after a
// restart. It is ignored while a submission is in flight or a job is shown.
func (d *Dashboard) ResumeJob(jobID, localID string, segregation json.RawMessage, stage pipeline.StageIndex) bool {
	d.mu.Lock()
	if !d.state.Authenticated || d.state.InFlight || d.state.Job != nil {
		d.mu.Unlock()
		return false
	}
	d.state.Job = &Job{ID: jobID, LocalID: localID, Segregation: segregation, Outcome: pipeline.OutcomeRunning.String()}
	d.state.Displayed = progress.Present(pipeline.NoStage, stage)
	if d.state.Displayed == pipeline.LastIndex() {
		d.state.Job.Outcome = pipeline.OutcomeDone.String()
	}
	displayed := d.state.Displayed
	snap := d.snapshotLocked()
	d.mu.Unlock()

	d.setGauge(displayed)
	d.notify(snap)
	return true
}

// Logout ends the session. State is cleared by the resulting session event.
func (d *Dashboard) Logout(ctx context.Context) error {
	return d.sessions.SignOut(ctx)
}

func (d *Dashboard) Snapshot() UIState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.snapshotLocked()
}

func (d *Dashboard) View() View {
	s := d.Snapshot()
	return View{
		State:    s,
		Progress: progress.Render(s.Displayed),
		Actions:  ActionsFor(s),
	}
}

func (d *Dashboard) Actions() []Action {
	return ActionsFor(d.Snapshot())
}

// ActionsFor lists what the user may do in state s. Signed out, the only
// action is signing in.
func ActionsFor(s UIState) []Action {
	if !s.Authenticated {
		return []Action{ActionSignIn}
	}
	actions := []Action{ActionSelectFile}
	if s.Selected != nil {
		actions = append(actions, ActionClearFile)
	}
	if !s.InFlight {
		actions = append(actions, ActionSubmit)
	}
	return append(actions, ActionSignOut)
}

// OnChange registers fn to receive every new state. It returns the
// unregister func.
func (d *Dashboard) OnChange(fn func(UIState)) func() {
	d.mu.Lock()
	id := d.nextID
	d.nextID++
	d.listeners[id] = fn
	d.mu.Unlock()

	return func() {
		d.mu.Lock()
		delete(d.listeners, id)
		d.mu.Unlock()
	}
}

func (d *Dashboard) notify(s UIState) {
	d.mu.Lock()
	fns := make([]func(UIState), 0, len(d.listeners))
	for _, fn := range d.listeners {
		fns = append(fns, fn)
	}
	d.mu.Unlock()

	for _, fn := range fns {
		fn(s)
	}
}

func (d *Dashboard) setGauge(i pipeline.StageIndex) {
	if d.gauge != nil {
		d.gauge.SetDisplayedStage(int(i))
	}
}

func (d *Dashboard) snapshotLocked() UIState {
	s := d.state
	if s.Job != nil {
		j := *s.Job
		s.Job = &j
	}
	return s
}

func failureMessage(err error) string {
	var f *submit.Failure
	if errors.As(err, &f) {
		return f.Message
	}
	return "Error: " + err.Error()
}
