package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecorderCounters(t *testing.T) {
	t.Parallel()

	m := NewWithRegistry(prometheus.NewRegistry())

	m.SessionStarted()
	m.SessionStarted()
	m.SessionCompleted(false)
	m.SessionCompleted(true)
	m.SessionCompleted(true)
	m.SessionForfeited()
	m.PaymentSettled("webhook")
	m.RanksRecomputed(42)

	if got := testutil.ToFloat64(m.SessionsStarted); got != 2 {
		t.Fatalf("expected 2 sessions started, got %v", got)
	}
	if got := testutil.ToFloat64(m.SessionsCompleted.WithLabelValues("auto")); got != 2 {
		t.Fatalf("expected 2 auto completions, got %v", got)
	}
	if got := testutil.ToFloat64(m.SessionsCompleted.WithLabelValues("manual")); got != 1 {
		t.Fatalf("expected 1 manual completion, got %v", got)
	}
	if got := testutil.ToFloat64(m.SessionsForfeited); got != 1 {
		t.Fatalf("expected 1 forfeit, got %v", got)
	}
	if got := testutil.ToFloat64(m.PaymentsSettled.WithLabelValues("webhook")); got != 1 {
		t.Fatalf("expected 1 webhook settlement, got %v", got)
	}
	if got := testutil.ToFloat64(m.RankedUsers); got != 42 {
		t.Fatalf("expected 42 ranked users, got %v", got)
	}
}

func TestJobFinished(t *testing.T) {
	t.Parallel()

	m := NewWithRegistry(prometheus.NewRegistry())
	m.JobFinished("auto-complete", "success", 120*time.Millisecond)
	m.JobFinished("auto-complete", "skipped", time.Millisecond)

	if got := testutil.ToFloat64(m.JobRuns.WithLabelValues("auto-complete", "success")); got != 1 {
		t.Fatalf("expected 1 successful run, got %v", got)
	}
	if got := testutil.CollectAndCount(m.JobDuration); got != 1 {
		t.Fatalf("expected one duration series, got %d", got)
	}
}

func TestMiddlewareAndHandler(t *testing.T) {
	t.Parallel()

	m := New()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /leaderboard", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	handler := m.Middleware(mux)

	for i := 0; i < 3; i++ {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/leaderboard", nil))
	}
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nowhere", nil))

	if got := testutil.ToFloat64(m.HTTPRequests.WithLabelValues("GET", "GET /leaderboard", "418")); got != 3 {
		t.Fatalf("expected 3 labelled requests, got %v", got)
	}
	if got := testutil.ToFloat64(m.HTTPRequests.WithLabelValues("GET", "unmatched", "404")); got != 1 {
		t.Fatalf("expected 1 unmatched request, got %v", got)
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	for _, name := range []string{"readingd_http_requests_total", "go_goroutines"} {
		if !strings.Contains(body, name) {
			t.Fatalf("expected %s in exposition output", name)
		}
	}
}
