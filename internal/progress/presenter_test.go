package progress

import (
	"reflect"
	"strings"
	"testing"

	"github.com/swrite/swrite-agent/internal/pipeline"
)

func TestPresent_Monotonic(t *testing.T) {
	observed := []pipeline.StageIndex{
		pipeline.NoStage, 0, 2, 1, pipeline.NoStage, 0, 3, 2, pipeline.NoStage,
	}

	displayed := pipeline.NoStage
	prev := displayed
	for i, obs := range observed {
		displayed = Present(displayed, obs)
		if displayed < prev {
			t.Fatalf("step %d: displayed %d regressed below %d", i, displayed, prev)
		}
		prev = displayed
	}
	if displayed != 3 {
		t.Fatalf("final displayed = %d, want 3", displayed)
	}
}

func TestPresent_Idempotent(t *testing.T) {
	for i := pipeline.NoStage; i <= pipeline.LastIndex(); i++ {
		got := Present(i, i)
		if got != i {
			t.Errorf("Present(%d, %d) = %d", i, i, got)
		}
		if !reflect.DeepEqual(Render(got), Render(i)) {
			t.Errorf("Render differs after idempotent Present at %d", i)
		}
	}
}

func TestPresent_ClampsOutOfRange(t *testing.T) {
	if got := Present(pipeline.NoStage, 99); got != pipeline.LastIndex() {
		t.Errorf("Present(-1, 99) = %d, want %d", got, pipeline.LastIndex())
	}
	if got := Present(-5, -7); got != pipeline.NoStage {
		t.Errorf("Present(-5, -7) = %d, want NoStage", got)
	}
}

func TestRender_Markers(t *testing.T) {
	r := Render(1)

	want := []struct {
		state   MarkerState
		current bool
	}{
		{MarkerCompleted, false},
		{MarkerCompleted, true},
		{MarkerPending, false},
		{MarkerPending, false},
	}
	if len(r.Markers) != len(want) {
		t.Fatalf("markers = %d, want %d", len(r.Markers), len(want))
	}
	for i, w := range want {
		m := r.Markers[i]
		if m.State != w.state || m.Current != w.current {
			t.Errorf("marker %d = {%s %v}, want {%s %v}", i, m.State, m.Current, w.state, w.current)
		}
	}
}

func TestRender_Fill(t *testing.T) {
	tests := []struct {
		displayed pipeline.StageIndex
		fill      float64
		percent   int
	}{
		{pipeline.NoStage, 0, 0},
		{0, 0, 0},
		{1, 1.0 / 3.0, 33},
		{2, 2.0 / 3.0, 67},
		{3, 1, 100},
	}

	for _, tt := range tests {
		r := Render(tt.displayed)
		if r.Fill != tt.fill {
			t.Errorf("Render(%d).Fill = %v, want %v", tt.displayed, r.Fill, tt.fill)
		}
		if r.Percent != tt.percent {
			t.Errorf("Render(%d).Percent = %d, want %d", tt.displayed, r.Percent, tt.percent)
		}
	}
}

func TestRender_NoStageAllPending(t *testing.T) {
	r := Render(pipeline.NoStage)
	for _, m := range r.Markers {
		if m.State != MarkerPending || m.Current {
			t.Errorf("marker %s = {%s %v}, want pending", m.StageID, m.State, m.Current)
		}
	}
}

func TestTracker_BogusTokenDoesNotRegress(t *testing.T) {
	tr := NewTracker()

	var got []pipeline.StageIndex
	for _, token := range []pipeline.StatusToken{"processing", "bogus", "extracted"} {
		got = append(got, tr.Observe(token))
	}

	want := []pipeline.StageIndex{0, 0, 1}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("displayed = %v, want %v", got, want)
	}
}

func TestTracker_GarbledAfterAdvance(t *testing.T) {
	tr := NewTracker()
	tr.Observe("planned")
	tr.Observe("")
	tr.Observe("processing")

	if tr.Displayed() != pipeline.StagePlanning {
		t.Fatalf("displayed = %d, want %d", tr.Displayed(), pipeline.StagePlanning)
	}

	tr.Reset()
	if tr.Displayed() != pipeline.NoStage {
		t.Fatalf("after reset displayed = %d, want NoStage", tr.Displayed())
	}
}

func TestRendering_String(t *testing.T) {
	s := Render(1).String()
	if !strings.HasPrefix(s, "[x] Segregating --- [>] Extracting") {
		t.Errorf("String() = %q", s)
	}
	if !strings.HasSuffix(s, "(33%)") {
		t.Errorf("String() = %q, want 33%% suffix", s)
	}
}
