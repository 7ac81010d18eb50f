package pipeline

import (
	"container/heap"
	"context"

	"github.com/kenneth/dedupstream/internal/archive"
	"github.com/kenneth/dedupstream/internal/chunk"
)

// l2Heap orders buffered chunks from a single l1 group by ascending l2,
// so the lowest not-yet-emitted chunk is always at the root —
// generalizing a single-level block heap to this pipeline's two-level
// sequence numbering.
type l2Heap []*chunk.Chunk

func (h l2Heap) Len() int            { return len(h) }
func (h l2Heap) Less(i, j int) bool  { return h[i].L2 < h[j].L2 }
func (h l2Heap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *l2Heap) Push(x interface{}) { *h = append(*h, x.(*chunk.Chunk)) }
func (h *l2Heap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// reorderer is the single consumer: it buffers out-of-order chunks per
// l1 group in a min-heap keyed by l2 and emits strictly in (l1, l2)
// order, draining a group as soon as its next expected l2 is at the
// heap's root and closing it out once the chunk marked LastL2 has been
// emitted.
type reorderer struct {
	p      *Pipeline
	abort  *AbortFlag
	writer *archive.Writer

	groups  map[uint64]*l2Heap
	nextL1  uint64
	nextL2  uint64
}

func (r *reorderer) run(ctx context.Context, in <-chan *chunk.Chunk) {
	r.groups = make(map[uint64]*l2Heap)

	for c := range in {
		if r.abort.Aborted() {
			continue
		}
		if ctx.Err() != nil {
			r.abort.Set("reorderer", ctx.Err())
			continue
		}
		if r.p.metrics != nil {
			r.p.metrics.SetQueueDepth("reassembly", len(in))
		}

		h, ok := r.groups[c.L1]
		if !ok {
			h = &l2Heap{}
			heap.Init(h)
			r.groups[c.L1] = h
		}
		heap.Push(h, c)
		r.drain()
	}
}

// drain emits every chunk that is next in sequence, across however
// many l1 groups have become ready, stopping as soon as the required
// next chunk has not yet arrived.
func (r *reorderer) drain() {
	for {
		h, ok := r.groups[r.nextL1]
		if !ok || h.Len() == 0 {
			return
		}
		if (*h)[0].L2 != r.nextL2 {
			return
		}

		c := heap.Pop(h).(*chunk.Chunk)
		if err := r.emit(c); err != nil {
			r.abort.Set("reorderer", err)
			return
		}

		if c.LastL2 {
			delete(r.groups, r.nextL1)
			r.nextL1++
			r.nextL2 = 0
			continue
		}
		r.nextL2++
	}
}

func (r *reorderer) emit(c *chunk.Chunk) error {
	if c.IsDuplicate {
		c.Ref.WaitResolved()
		return r.writer.WriteFingerprint(c.Ref.SHA1)
	}
	if err := r.writer.WriteCompressed(c.CompressedBytes()); err != nil {
		return err
	}
	c.MarkFlushed()
	return nil
}
