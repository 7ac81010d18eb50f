// Package pipeline wires the Fragmenter, the coalesced
// Refiner/Deduplicator/Compressor worker pool, and the Reorderer into
// the end-to-end run described by the component design: one producer,
// N coalesced workers racing over a shared input channel, one
// consumer reassembling output in (l1, l2) order.
//
// Go's buffered channels stand in for the original pipeline's
// bounded, condition-variable-backed queues: a send on a full channel
// blocks exactly like a full BoundedQueue did, and closing a channel
// broadcasts completion to every receiver at once, which is simpler
// than the original's hand-rolled terminal-marker fan-out.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/kenneth/dedupstream/internal/archive"
	"github.com/kenneth/dedupstream/internal/chunk"
	"github.com/kenneth/dedupstream/internal/chunkindex"
	"github.com/kenneth/dedupstream/internal/codec"
	"github.com/kenneth/dedupstream/internal/config"
	"github.com/kenneth/dedupstream/internal/membuf"
	"github.com/kenneth/dedupstream/internal/metrics"
	"github.com/kenneth/dedupstream/internal/rollinghash"
)

// CoarseChunk is a single coarse-grained fragment handed from the
// Fragmenter to a worker, still undivided into fine chunks.
type CoarseChunk struct {
	L1  uint64
	Buf *membuf.Buffer
}

// AbortFlag is the shared fatal-error signal every stage polls between
// batches. The first Set wins and logs exactly once; later Sets are
// ignored, so Err reflects the first failure.
type AbortFlag struct {
	once   sync.Once
	mu     sync.Mutex
	err    error
	logger *logrus.Logger
}

func newAbortFlag(logger *logrus.Logger) *AbortFlag {
	return &AbortFlag{logger: logger}
}

// Set records err as the abort cause. Only the first call logs;
// subsequent calls are no-ops beyond recording nothing new.
func (a *AbortFlag) Set(stage string, err error) {
	a.once.Do(func() {
		a.mu.Lock()
		a.err = err
		a.mu.Unlock()
		if a.logger != nil {
			a.logger.WithError(err).WithField("stage", stage).Error("pipeline aborting")
		}
	})
}

// Aborted reports whether any stage has called Set.
func (a *AbortFlag) Aborted() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.err != nil
}

// Err returns the first error passed to Set, or nil.
func (a *AbortFlag) Err() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.err
}

// Stats summarizes a completed run for the verbose stats printout.
type Stats struct {
	ChunksTotal      int64
	ChunksDuplicate  int64
	BytesIn          int64
	BytesOutArchive  int64
	RecordsOutArchive int64
	UniqueChunks     int
}

// Pipeline holds everything constructed once per run: configuration,
// the shared chunk index, the codec, and the metrics registry.
type Pipeline struct {
	cfg     config.Config
	index   *chunkindex.Index
	codec   codec.Codec
	codecID byte
	pool    *membuf.Pool
	metrics *metrics.Registry
	logger  *logrus.Logger

	coarseScanner *rollinghash.Scanner
	fineScanner   *rollinghash.Scanner
}

func codecID(k codec.Kind) byte {
	switch k {
	case codec.Gzip:
		return 1
	case codec.Bzip2:
		return 2
	default:
		return 0
	}
}

// New constructs a Pipeline ready to Run. logger may be nil, in which
// case a standard logrus.Logger is created.
func New(cfg config.Config, reg *metrics.Registry, logger *logrus.Logger) (*Pipeline, error) {
	kind, err := codec.ParseKind(cfg.CompressType)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	coarseBits := log2(cfg.AnchorJump)
	fineBits := log2(cfg.FineAvgSize)

	return &Pipeline{
		cfg:           cfg,
		index:         chunkindex.New(chunkindex.DefaultShards),
		codec:         codec.New(kind),
		codecID:       codecID(kind),
		pool:          membuf.NewPool(),
		metrics:       reg,
		logger:        logger,
		coarseScanner: rollinghash.NewScanner(cfg.RFWinCoarse, rollinghash.MaskForAvgSize(coarseBits)),
		fineScanner:   rollinghash.NewScanner(cfg.RFWinFine, rollinghash.MaskForAvgSize(fineBits)),
	}, nil
}

func log2(n int) uint {
	if n <= 1 {
		return 0
	}
	bits := uint(0)
	for (1 << bits) < n {
		bits++
	}
	return bits
}

// Run drives one full pass: Fragmenter reads src, N workers
// race over its output deduplicating and compressing fine chunks, and
// the Reorderer writes the result archive to dst in (l1, l2) order.
// Run returns the first fatal error encountered by any stage, if any.
func (p *Pipeline) Run(ctx context.Context, src io.Reader, dst io.Writer) (Stats, error) {
	abort := newAbortFlag(p.logger)
	writer := archive.NewWriter(dst)
	if err := writer.WriteHeader(p.codecID); err != nil {
		return Stats{}, fmt.Errorf("pipeline: %w", err)
	}

	coarseCh := make(chan *CoarseChunk, p.cfg.AnchorDataPerInsert)
	outCh := make(chan *chunk.Chunk, p.cfg.ItemPerInsert)

	var bytesIn int64
	frag := &fragmenter{p: p, abort: abort, bytesIn: &bytesIn}
	go frag.run(ctx, src, coarseCh)

	var chunksTotal, chunksDup int64
	var wg sync.WaitGroup
	wg.Add(p.cfg.NThreads)
	for i := 0; i < p.cfg.NThreads; i++ {
		w := &worker{p: p, abort: abort, chunksTotal: &chunksTotal, chunksDup: &chunksDup}
		go func() {
			defer wg.Done()
			w.run(ctx, coarseCh, outCh)
		}()
	}
	go func() {
		wg.Wait()
		close(outCh)
	}()

	reo := &reorderer{p: p, abort: abort, writer: writer}
	reo.run(ctx, outCh)

	stats := Stats{
		ChunksTotal:       atomic.LoadInt64(&chunksTotal),
		ChunksDuplicate:   atomic.LoadInt64(&chunksDup),
		BytesIn:           atomic.LoadInt64(&bytesIn),
		UniqueChunks:      p.index.Len(),
	}
	stats.BytesOutArchive, stats.RecordsOutArchive = writer.Stats()

	if p.metrics != nil {
		p.metrics.ObserveRun(stats.ChunksTotal, stats.ChunksDuplicate, stats.BytesIn, stats.BytesOutArchive)
		poolMetrics := p.pool.Metrics()
		p.metrics.SetBufferPoolMetrics(poolMetrics.Hits, poolMetrics.Misses)
	}

	if err := abort.Err(); err != nil {
		return stats, fmt.Errorf("pipeline: %w", err)
	}
	return stats, nil
}
