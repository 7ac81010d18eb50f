package pipeline

import (
	"context"
	"errors"
	"io"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/kenneth/dedupstream/internal/debug"
	"github.com/kenneth/dedupstream/internal/membuf"
)

// fragmenter is the single producer: it reads the input in MAXBUF-sized
// batches, finds coarse anchors at least AnchorJump bytes apart, and
// emits one CoarseChunk per anchor. The final, possibly short, tail at
// true EOF is always promoted to its own l1 — the stub policy recorded
// as an open-question decision rather than folded into its
// predecessor, since folding would make the last coarse chunk's size
// (and therefore its fine split) depend on exactly where the input
// happened to end.
type fragmenter struct {
	p       *Pipeline
	abort   *AbortFlag
	bytesIn *int64
}

func (f *fragmenter) run(ctx context.Context, src io.Reader, out chan<- *CoarseChunk) {
	defer close(out)

	var carry []byte
	var l1 uint64
	eof := false

	for {
		if ctx.Err() != nil {
			f.abort.Set("fragmenter", ctx.Err())
			return
		}
		if f.abort.Aborted() {
			return
		}

		if !eof {
			chunk := make([]byte, f.p.cfg.MaxBuf)
			n, err := io.ReadFull(src, chunk)
			if n > 0 {
				carry = append(carry, chunk[:n]...)
				atomic.AddInt64(f.bytesIn, int64(n))
			}
			switch {
			case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
				eof = true
			case err != nil:
				f.abort.Set("fragmenter", err)
				return
			}
		}

		for len(carry) > f.p.cfg.AnchorJump {
			rel := f.p.coarseScanner.Scan(carry[f.p.cfg.AnchorJump:])
			splitPoint := f.p.cfg.AnchorJump + rel
			if splitPoint >= len(carry) {
				break
			}
			if !f.emit(ctx, out, l1, carry[:splitPoint]) {
				return
			}
			l1++
			carry = carry[splitPoint:]
		}

		if eof {
			if len(carry) > 0 {
				f.emit(ctx, out, l1, carry)
			}
			return
		}
	}
}

func (f *fragmenter) emit(ctx context.Context, out chan<- *CoarseChunk, l1 uint64, data []byte) bool {
	if debug.Enabled() {
		f.p.logger.WithFields(logrus.Fields{
			"l1":   l1,
			"size": len(data),
		}).Debug("coarse anchor found")
	}
	cc := &CoarseChunk{L1: l1, Buf: membuf.Wrap(data)}
	select {
	case out <- cc:
		return true
	case <-ctx.Done():
		f.abort.Set("fragmenter", ctx.Err())
		return false
	}
}
