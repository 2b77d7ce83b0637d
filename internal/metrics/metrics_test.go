package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_Submissions(t *testing.T) {
	m := New()

	m.StartSubmission()
	if got := testutil.ToFloat64(m.submissionInFlight); got != 1 {
		t.Errorf("in flight = %v, want 1", got)
	}

	m.FinishSubmission("succeeded", 150*time.Millisecond)
	m.RejectSubmission("in_flight")

	if got := testutil.ToFloat64(m.submissionInFlight); got != 0 {
		t.Errorf("in flight = %v, want 0", got)
	}
	if got := testutil.ToFloat64(m.submissionsTotal.WithLabelValues("succeeded")); got != 1 {
		t.Errorf("succeeded = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.submissionsTotal.WithLabelValues("in_flight")); got != 1 {
		t.Errorf("in_flight = %v, want 1", got)
	}
}

func TestMetrics_DisplayedStageStartsAtNoStage(t *testing.T) {
	m := New()
	if got := testutil.ToFloat64(m.displayedStage); got != -1 {
		t.Errorf("displayed stage = %v, want -1", got)
	}
	m.SetDisplayedStage(2)
	if got := testutil.ToFloat64(m.displayedStage); got != 2 {
		t.Errorf("displayed stage = %v, want 2", got)
	}
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.ObservePoll("ok")

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	body, _ := io.ReadAll(rr.Body)
	if !strings.Contains(string(body), `swrite_agent_status_polls_total{result="ok"} 1`) {
		t.Errorf("metrics output missing poll counter:\n%s", body)
	}
}
