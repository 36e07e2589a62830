package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveDecision(t *testing.T) {
	m := NewPrometheusMetrics("gatehouse")

	m.ObserveDecision("CanViewPage", true, 100*time.Microsecond)
	m.ObserveDecision("CanViewPage", true, 150*time.Microsecond)
	m.ObserveDecision("CanViewPage", false, 80*time.Microsecond)

	allow, deny := m.Decisions()
	assert.Equal(t, uint64(2), allow)
	assert.Equal(t, uint64(1), deny)

	assert.Equal(t, float64(2), testutil.ToFloat64(
		m.decisionsTotal.WithLabelValues("CanViewPage", "allow")))
	assert.Equal(t, float64(1), testutil.ToFloat64(
		m.decisionsTotal.WithLabelValues("CanViewPage", "deny")))
}

func TestObserveChunks(t *testing.T) {
	m := NewPrometheusMetrics("gatehouse")

	m.ObserveChunks("Session", 4)
	m.ObserveChunks("Session", 7)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.cookieChunksTotal))
}

func TestSessionCounters(t *testing.T) {
	m := NewPrometheusMetrics("gatehouse")

	m.RecordSessionHit()
	m.RecordSessionHit()
	m.RecordSessionMiss()

	assert.Equal(t, float64(2), testutil.ToFloat64(m.sessionHitsTotal))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.sessionMissTotal))
}

func TestHTTPHandler(t *testing.T) {
	m := NewPrometheusMetrics("gatehouse")
	m.ObserveDecision("CanViewPage", true, time.Millisecond)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	m.HTTPHandler().ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "gatehouse_decisions_total"), "scrape output missing decision counter")
}
