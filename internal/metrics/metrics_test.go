package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveFetch(t *testing.T) {
	before := testutil.ToFloat64(harvestFetchesTotal.WithLabelValues("found"))
	ObserveFetch("found", 20*time.Millisecond)
	ObserveFetch("found", 30*time.Millisecond)

	if got := testutil.ToFloat64(harvestFetchesTotal.WithLabelValues("found")) - before; got != 2 {
		t.Errorf("expected 2 found fetches, got %f", got)
	}
	if n := testutil.CollectAndCount(harvestFetchDurationSeconds); n <= 0 {
		t.Errorf("expected fetch durations to be observed, got %d series", n)
	}
}

func TestObserveCounters(t *testing.T) {
	testCases := []struct {
		name    string
		observe func()
		read    func() float64
	}{
		{"retry", ObserveRetry, func() float64 { return testutil.ToFloat64(harvestRetriesTotal) }},
		{"document", func() { ObserveDocument("stored") }, func() float64 {
			return testutil.ToFloat64(harvestDocumentsTotal.WithLabelValues("stored"))
		}},
		{"warning", func() { ObserveWarning("identity_mismatch") }, func() float64 {
			return testutil.ToFloat64(harvestWarningsTotal.WithLabelValues("identity_mismatch"))
		}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			before := tc.read()
			tc.observe()
			if got := tc.read() - before; got != 1 {
				t.Errorf("expected counter to grow by 1, got %f", got)
			}
		})
	}
}

func TestHandlerExposesHarvestMetrics(t *testing.T) {
	ObserveFetch("not_found", time.Millisecond)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "harvest_fetches_total") {
		t.Fatal("expected harvest_fetches_total in exposition output")
	}
}
