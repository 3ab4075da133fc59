package service

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsSnapshotCounts(t *testing.T) {
	m := NewMetricsService()
	m.ObserveHTTPRequest("GET", "/api/v1/courses", 200, 20*time.Millisecond)
	m.RecordCacheOperation(true, time.Millisecond)
	m.RecordCacheOperation(false, time.Millisecond)
	m.ObserveCompletion("chat", "stream", nil, time.Second)
	m.ObserveCompletion("chat_fallback", "complete", errors.New("boom"), time.Second)
	m.RecordFallback()
	m.RecordSummaryRefresh("updated")
	m.RecordBookkeepingFailure("progress", FailurePersistence)

	snap := m.Snapshot()
	assert.Equal(t, uint64(1), snap.RequestsTotal)
	assert.InDelta(t, 20, snap.AverageRequestDurationMs, 0.01)
	assert.InDelta(t, 0.5, snap.CacheHitRatio, 0.001)
	assert.Equal(t, uint64(2), snap.CompletionsTotal)
	assert.Equal(t, uint64(1), snap.CompletionFailures)
	assert.Equal(t, uint64(1), snap.Fallbacks)
	assert.Equal(t, uint64(1), snap.SummaryRefreshes)
	assert.Equal(t, uint64(1), snap.BookkeepingFailures)
}

func TestMetricsHandlerExposesCollectors(t *testing.T) {
	m := NewMetricsService()
	m.ObserveCompletion("summary", "complete", nil, time.Second)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `llm_completions_total{mode="complete",outcome="ok",purpose="summary"} 1`)
}

func TestNilMetricsServiceIsSafe(t *testing.T) {
	var m *MetricsService
	assert.NotPanics(t, func() {
		m.ObserveCompletion("chat", "complete", nil, time.Second)
		m.RecordFallback()
		m.RecordSummaryRefresh("skipped")
		_ = m.Snapshot()
	})
}
