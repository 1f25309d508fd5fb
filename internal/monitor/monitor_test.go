package monitor

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordSync(t *testing.T) {
	before := testutil.ToFloat64(schemaSyncTotal.WithLabelValues(OutcomeNew))

	RecordSync(OutcomeNew)
	RecordSync(OutcomeNew)

	assert.Equal(t, before+2, testutil.ToFloat64(schemaSyncTotal.WithLabelValues(OutcomeNew)))
}

func TestRecordPrunedIgnoresZero(t *testing.T) {
	before := testutil.ToFloat64(schemaPrunedTotal)

	RecordPruned(0)
	RecordPruned(3)

	assert.Equal(t, before+3, testutil.ToFloat64(schemaPrunedTotal))
}

func TestRecordEmbeddingCache(t *testing.T) {
	hits := testutil.ToFloat64(embeddingCacheTotal.WithLabelValues("hit"))
	misses := testutil.ToFloat64(embeddingCacheTotal.WithLabelValues("miss"))

	RecordEmbeddingCache(true)
	RecordEmbeddingCache(false)
	RecordEmbeddingCache(false)

	assert.Equal(t, hits+1, testutil.ToFloat64(embeddingCacheTotal.WithLabelValues("hit")))
	assert.Equal(t, misses+2, testutil.ToFloat64(embeddingCacheTotal.WithLabelValues("miss")))
}

func TestHandlerExposesMetrics(t *testing.T) {
	RecordQuery(QueryOK)
	ObserveRetrieved(2)
	ObserveGeneration("fake", 150*time.Millisecond)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `sql_agent_queries_total{outcome="ok"}`)
	assert.Contains(t, body, "sql_agent_retrieved_schemas_bucket")
	assert.Contains(t, body, `sql_agent_generation_duration_seconds_count{provider="fake"}`)
}

func TestServeStopsWithContext(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	go func() { done <- serve(ctx, listener) }()

	resp, err := http.Get("http://" + listener.Addr().String() + "/metrics")
	require.NoError(t, err)
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestServeRejectsBadAddress(t *testing.T) {
	assert.Error(t, Serve(context.Background(), "not-an-address"))
}

func TestReadMemoryStats(t *testing.T) {
	stats := ReadMemoryStats()

	assert.Greater(t, stats.SysMB, 0.0)
	assert.Positive(t, stats.GoroutineCount)
	assert.GreaterOrEqual(t, stats.Pressure(), 0.0)
	assert.LessOrEqual(t, stats.Pressure(), 1.0)
	assert.Contains(t, stats.String(), "Memory Statistics:")
}

func TestPressureWithoutSystemMemory(t *testing.T) {
	assert.Equal(t, 0.0, MemoryStats{AllocMB: 10}.Pressure())
	assert.Equal(t, 1.0, MemoryStats{AllocMB: 10, SysMB: 5}.Pressure())
}
