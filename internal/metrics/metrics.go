// Package metrics exposes the pipeline's Prometheus registry: chunk
// and byte counters, a compression-duration histogram, and per-stage
// queue-depth gauges, served alongside the health endpoints from
// health.go.
package metrics

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/trace"
)

var defaultRegistry = prometheus.DefaultRegisterer

// Registry holds every metric the pipeline emits.
type Registry struct {
	gatherer prometheus.Gatherer

	chunksTotal       prometheus.Counter
	chunksDuplicate   prometheus.Counter
	bytesIn           prometheus.Counter
	bytesOutArchive   prometheus.Counter
	compressionDur    *prometheus.HistogramVec
	queueDepth        *prometheus.GaugeVec
	bufferPoolHits    prometheus.Gauge
	bufferPoolMisses  prometheus.Gauge
	runsTotal         prometheus.Counter
	goroutines        prometheus.Gauge
	memoryAllocBytes  prometheus.Gauge
}

// NewRegistry registers every metric against the default Prometheus
// registerer and serves it from the default gatherer.
func NewRegistry() *Registry {
	return newRegistry(defaultRegistry, prometheus.DefaultGatherer)
}

// NewRegistryWith registers against, and later serves from, a caller-
// supplied registry — so tests (and a caller embedding this registry
// inside a larger process) can avoid collisions with the process-wide
// default registry. reg must also implement prometheus.Gatherer (every
// *prometheus.Registry does); Handler falls back to the process
// default gatherer otherwise.
func NewRegistryWith(reg prometheus.Registerer) *Registry {
	gatherer, ok := reg.(prometheus.Gatherer)
	if !ok {
		gatherer = prometheus.DefaultGatherer
	}
	return newRegistry(reg, gatherer)
}

func newRegistry(reg prometheus.Registerer, gatherer prometheus.Gatherer) *Registry {
	factory := promauto.With(reg)
	return &Registry{
		gatherer: gatherer,
		chunksTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "dedupstream_chunks_total",
			Help: "Total number of fine chunks produced by the Refiner.",
		}),
		chunksDuplicate: factory.NewCounter(prometheus.CounterOpts{
			Name: "dedupstream_chunks_duplicate_total",
			Help: "Total number of chunks resolved as duplicates of an earlier chunk.",
		}),
		bytesIn: factory.NewCounter(prometheus.CounterOpts{
			Name: "dedupstream_bytes_in_total",
			Help: "Total input bytes read by the Fragmenter.",
		}),
		bytesOutArchive: factory.NewCounter(prometheus.CounterOpts{
			Name: "dedupstream_bytes_out_total",
			Help: "Total bytes written to the output archive.",
		}),
		compressionDur: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dedupstream_compression_duration_seconds",
				Help:    "Wall-clock time spent compressing a single unique chunk.",
				Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
			},
			[]string{"codec"},
		),
		queueDepth: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "dedupstream_queue_depth",
				Help: "Number of items currently buffered in an inter-stage channel.",
			},
			[]string{"stage"},
		),
		bufferPoolHits: factory.NewGauge(prometheus.GaugeOpts{
			Name: "dedupstream_buffer_pool_hits",
			Help: "Cumulative managed-buffer pool hits at last sample.",
		}),
		bufferPoolMisses: factory.NewGauge(prometheus.GaugeOpts{
			Name: "dedupstream_buffer_pool_misses",
			Help: "Cumulative managed-buffer pool misses (fell back to a direct allocation) at last sample.",
		}),
		runsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "dedupstream_runs_total",
			Help: "Total number of completed pipeline runs.",
		}),
		goroutines: factory.NewGauge(prometheus.GaugeOpts{
			Name: "dedupstream_goroutines",
			Help: "Number of goroutines at last sample.",
		}),
		memoryAllocBytes: factory.NewGauge(prometheus.GaugeOpts{
			Name: "dedupstream_memory_alloc_bytes",
			Help: "Bytes allocated and not yet freed at last sample.",
		}),
	}
}

// ObserveRun records the summary counters for one completed Pipeline.Run.
func (r *Registry) ObserveRun(chunksTotal, chunksDup, bytesIn, bytesOut int64) {
	r.chunksTotal.Add(float64(chunksTotal))
	r.chunksDuplicate.Add(float64(chunksDup))
	r.bytesIn.Add(float64(bytesIn))
	r.bytesOutArchive.Add(float64(bytesOut))
	r.runsTotal.Inc()
}

// ObserveCompression records how long one chunk took to compress under
// the named codec.
func (r *Registry) ObserveCompression(ctx context.Context, codecName string, d time.Duration) {
	if exemplar := getExemplar(ctx); exemplar != nil {
		if o, ok := r.compressionDur.WithLabelValues(codecName).(prometheus.ExemplarObserver); ok {
			o.ObserveWithExemplar(d.Seconds(), exemplar)
			return
		}
	}
	r.compressionDur.WithLabelValues(codecName).Observe(d.Seconds())
}

// SetQueueDepth reports the current backlog of an inter-stage channel.
func (r *Registry) SetQueueDepth(stage string, depth int) {
	r.queueDepth.WithLabelValues(stage).Set(float64(depth))
}

// SetBufferPoolMetrics publishes a membuf.Pool's cumulative hit/miss
// counters.
func (r *Registry) SetBufferPoolMetrics(hits, misses int64) {
	r.bufferPoolHits.Set(float64(hits))
	r.bufferPoolMisses.Set(float64(misses))
}

// UpdateSystemMetrics refreshes the goroutine-count and heap-alloc
// gauges from the Go runtime.
func (r *Registry) UpdateSystemMetrics() {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	r.goroutines.Set(float64(runtime.NumGoroutine()))
	r.memoryAllocBytes.Set(float64(ms.Alloc))
}

// StartSystemMetricsCollector runs UpdateSystemMetrics on a 5-second
// tick until ctx is done.
func (r *Registry) StartSystemMetricsCollector(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Second)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				r.UpdateSystemMetrics()
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Handler returns the HTTP handler serving this Registry's own
// gatherer in exposition format — the same one passed to (or derived
// from) NewRegistryWith, not whatever happens to be the process-wide
// default.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{})
}

// getExemplar pulls a trace ID off ctx, if one is present, so a
// compression-duration observation can be correlated with the span
// that produced it.
func getExemplar(ctx context.Context) prometheus.Labels {
	if ctx == nil {
		return nil
	}
	sc := trace.SpanFromContext(ctx).SpanContext()
	if sc.IsValid() {
		return prometheus.Labels{"trace_id": sc.TraceID().String()}
	}
	return nil
}
