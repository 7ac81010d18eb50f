package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRegistryWith(reg)
	require.NotNil(t, r)
}

func TestObserveRun(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRegistryWith(reg)

	r.ObserveRun(100, 40, 1<<20, 1<<18)

	assert.Equal(t, 100.0, testutil.ToFloat64(r.chunksTotal))
	assert.Equal(t, 40.0, testutil.ToFloat64(r.chunksDuplicate))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.runsTotal))
}

func TestSetQueueDepth(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRegistryWith(reg)

	r.SetQueueDepth("coarse", 3)
	r.SetQueueDepth("out", 1)

	assert.Equal(t, 3.0, testutil.ToFloat64(r.queueDepth.WithLabelValues("coarse")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.queueDepth.WithLabelValues("out")))
}

func TestSetBufferPoolMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRegistryWith(reg)

	r.SetBufferPoolMetrics(42, 3)

	assert.Equal(t, 42.0, testutil.ToFloat64(r.bufferPoolHits))
	assert.Equal(t, 3.0, testutil.ToFloat64(r.bufferPoolMisses))
}

func TestHandlerServesExpositionFormat(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRegistryWith(reg)
	r.ObserveRun(10, 2, 100, 50)

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	r.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "dedupstream_chunks_total"))
}

func TestHandlerServesItsOwnRegistryNotTheDefault(t *testing.T) {
	regA := prometheus.NewRegistry()
	a := NewRegistryWith(regA)
	a.ObserveRun(7, 0, 0, 0)

	regB := prometheus.NewRegistry()
	b := NewRegistryWith(regB)
	b.ObserveRun(99, 0, 0, 0)

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	a.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.True(t, strings.Contains(body, "dedupstream_chunks_total 7"))
	assert.False(t, strings.Contains(body, "dedupstream_chunks_total 99"))
}

func TestObserveCompressionWithoutSpanContext(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRegistryWith(reg)
	r.ObserveCompression(context.Background(), "GZIP", 5*time.Millisecond)

	count := testutil.CollectAndCount(r.compressionDur)
	assert.Equal(t, 1, count)
}
