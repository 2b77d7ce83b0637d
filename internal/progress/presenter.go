// Package progress turns normalized stage observations into a display that
// only ever moves forward for the lifetime of a job.
package progress

import (
	"fmt"
	"strings"

	"github.com/swrite/swrite-agent/internal/pipeline"
)

// MarkerState is the visual state of one stage marker.
type MarkerState string

const (
	MarkerCompleted MarkerState = "completed"
	MarkerPending   MarkerState = "pending"
)

// Marker is the rendering of a single catalog stage.
type Marker struct {
	StageID string      `json:"stage_id"`
	Label   string      `json:"label"`
	State   MarkerState `json:"state"`
	Current bool        `json:"current"`
}

// Rendering is the full progress display for one displayed index.
type Rendering struct {
	Displayed pipeline.StageIndex `json:"displayed"`
	Markers   []Marker            `json:"markers"`
	Fill      float64             `json:"fill"`
	Percent   int                 `json:"percent"`
}

// Present folds a new observation into the displayed index. The result is
// never lower than current; NoStage counts as -1.
func Present(current, next pipeline.StageIndex) pipeline.StageIndex {
	if next > current {
		return clamp(next)
	}
	return clamp(current)
}

func clamp(i pipeline.StageIndex) pipeline.StageIndex {
	if i < pipeline.NoStage {
		return pipeline.NoStage
	}
	if i > pipeline.LastIndex() {
		return pipeline.LastIndex()
	}
	return i
}

// Render builds markers and connector fill for displayed.
func Render(displayed pipeline.StageIndex) Rendering {
	displayed = clamp(displayed)
	stages := pipeline.Stages()

	r := Rendering{
		Displayed: displayed,
		Markers:   make([]Marker, len(stages)),
	}
	for i, s := range stages {
		idx := pipeline.StageIndex(i)
		state := MarkerPending
		if idx <= displayed {
			state = MarkerCompleted
		}
		r.Markers[i] = Marker{
			StageID: s.ID,
			Label:   s.Label,
			State:   state,
			Current: idx == displayed,
		}
	}

	if displayed > pipeline.NoStage && len(stages) > 1 {
		r.Fill = float64(displayed) / float64(len(stages)-1)
	}
	r.Percent = int(r.Fill*100 + 0.5)
	return r
}

// String renders a single-line text bar, e.g.
// "[x] Segregating --- [>] Extracting ... [ ] Planning ... [ ] Rendered (33%)".
func (r Rendering) String() string {
	var b strings.Builder
	for i, m := range r.Markers {
		if i > 0 {
			if m.State == MarkerCompleted {
				b.WriteString(" --- ")
			} else {
				b.WriteString(" ... ")
			}
		}
		switch {
		case m.Current:
			b.WriteString("[>] ")
		case m.State == MarkerCompleted:
			b.WriteString("[x] ")
		default:
			b.WriteString("[ ] ")
		}
		b.WriteString(m.Label)
	}
	fmt.Fprintf(&b, " (%d%%)", r.Percent)
	return b.String()
}

// Tracker folds a stream of status tokens for a single job. The zero value
// is not ready for use; call NewTracker.
type Tracker struct {
	displayed pipeline.StageIndex
}

// NewTracker returns a tracker with no stage displayed.
func NewTracker() Tracker {
	return Tracker{displayed: pipeline.NoStage}
}

// Observe normalizes token and returns the new displayed index.
func (t *Tracker) Observe(token pipeline.StatusToken) pipeline.StageIndex {
	t.displayed = Present(t.displayed, pipeline.Normalize(token, true))
	return t.displayed
}

// Displayed returns the current displayed index.
func (t *Tracker) Displayed() pipeline.StageIndex {
	return t.displayed
}

// Reset discards progress; used when the job itself is discarded.
func (t *Tracker) Reset() {
	t.displayed = pipeline.NoStage
}
