package pipeline

import (
	"context"
	"crypto/sha1"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kenneth/dedupstream/internal/chunk"
	"github.com/kenneth/dedupstream/internal/debug"
	"github.com/kenneth/dedupstream/internal/membuf"
)

// worker is the coalesced Refiner+Deduplicator+Compressor: for every
// CoarseChunk it receives, it splits the coarse buffer into fine
// chunks along the same anchor-scan contract, fingerprints each fine
// chunk, resolves it against the shared index, and — only for chunks
// the index has not seen before — compresses it in place before
// handing it to the Reorderer. A duplicate skips compression entirely;
// its bytes are never spent on anything but the fingerprint lookup.
type worker struct {
	p     *Pipeline
	abort *AbortFlag

	chunksTotal *int64
	chunksDup   *int64
}

func (w *worker) run(ctx context.Context, in <-chan *CoarseChunk, out chan<- *chunk.Chunk) {
	for cc := range in {
		if w.p.metrics != nil {
			w.p.metrics.SetQueueDepth("coarse", len(in))
		}
		if w.abort.Aborted() {
			cc.Buf.Release()
			continue
		}
		if !w.refineDedupCompress(ctx, cc, out) {
			return
		}
	}
}

func (w *worker) refineDedupCompress(ctx context.Context, cc *CoarseChunk, out chan<- *chunk.Chunk) bool {
	buf := cc.Buf
	var l2 uint64

	for {
		data := buf.Bytes()
		offset := w.p.fineScanner.Scan(data)
		lastL2 := offset >= len(data)

		var piece *membuf.Buffer
		if lastL2 {
			piece = buf
		} else {
			piece, buf = buf.Split(offset)
		}

		if !w.processFine(ctx, cc.L1, l2, lastL2, piece, out) {
			return false
		}
		l2++

		if lastL2 {
			return true
		}
	}
}

func (w *worker) processFine(ctx context.Context, l1, l2 uint64, lastL2 bool, buf *membuf.Buffer, out chan<- *chunk.Chunk) bool {
	c := chunk.New(l1, l2, lastL2, buf)
	atomic.AddInt64(w.chunksTotal, 1)

	sum := sha1.Sum(buf.Bytes())
	owner, inserted := w.p.index.LookupOrInsert(sum, c)
	if inserted {
		c.SHA1 = sum
		if !w.compress(c) {
			return false
		}
	} else {
		atomic.AddInt64(w.chunksDup, 1)
		c.MarkDuplicate(owner)
		if debug.Enabled() {
			w.p.logger.WithFields(logrus.Fields{
				"l1": l1, "l2": l2, "owner_l1": owner.L1, "owner_l2": owner.L2,
			}).Debug("index resolved duplicate, shard lock released")
		}
	}

	select {
	case out <- c:
		return true
	case <-ctx.Done():
		w.abort.Set("worker", ctx.Err())
		return false
	}
}

func (w *worker) compress(c *chunk.Chunk) bool {
	src := c.Uncompressed().Bytes()
	dst := membuf.Alloc(w.p.pool, w.p.codec.WorstCaseSize(len(src)))

	start := time.Now()
	n, err := w.p.codec.Compress(dst.Bytes(), src)
	elapsed := time.Since(start)

	if err != nil {
		dst.Release()
		w.abort.Set("compressor", err)
		return false
	}
	dst.Shrink(n)
	c.SetCompressed(dst)

	if w.p.metrics != nil {
		w.p.metrics.ObserveCompression(context.Background(), w.p.cfg.CompressType, elapsed)
	}
	return true
}
