package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Record(t *testing.T) {
	m := New()

	m.ObserveIngest("success", 200*time.Millisecond)
	m.ObserveIngest("success", 300*time.Millisecond)
	m.ObserveIngest("extraction_incomplete", time.Second)
	m.AddDetailRows("generic", 3)
	m.AddDetailRows("typed", 0)
	m.CategoryCreated()
	m.SetBreakerState("classifier", 1)

	assert.InDelta(t, 2.0, testutil.ToFloat64(m.ingestTotal.WithLabelValues("success")), 0.001)
	assert.InDelta(t, 1.0, testutil.ToFloat64(m.ingestTotal.WithLabelValues("extraction_incomplete")), 0.001)
	assert.InDelta(t, 3.0, testutil.ToFloat64(m.detailRows.WithLabelValues("generic")), 0.001)
	assert.InDelta(t, 1.0, testutil.ToFloat64(m.categoriesCreated), 0.001)
	assert.InDelta(t, 1.0, testutil.ToFloat64(m.breakerState.WithLabelValues("classifier")), 0.001)
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.ObserveHTTP("/upload", http.StatusOK, 10*time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `utility_bills_http_requests_total{code="200",route="/upload"} 1`), body)
	assert.Contains(t, body, "go_goroutines")
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveIngest("success", time.Second)
		m.ObserveClassifier("ok", time.Second)
		m.AddDetailRows("generic", 1)
		m.CategoryCreated()
		m.SetBreakerState("x", 0)
		m.ObserveHTTP("/", 200, time.Second)
	})
	assert.Nil(t, m.Registry())

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
