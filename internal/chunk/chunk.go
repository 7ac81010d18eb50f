// Package chunk defines the Chunk entity that flows through every
// pipeline stage and its UNCOMPRESSED -> COMPRESSED -> FLUSHED state
// machine. The per-chunk synchronization primitive mirrors the
// teacher's BoundedQueue: a mutex guarding mutable fields plus a
// condition variable broadcast on every state transition, generalizing
// the original C pipeline's per-chunk pthread_mutex/pthread_cond pair.
package chunk

import (
	"fmt"
	"sync"

	"github.com/kenneth/dedupstream/internal/membuf"
)

// State is a chunk's position in its compression lifecycle. Only
// unique chunks transition; a duplicate's effective state is that of
// its Ref.
type State int

const (
	Uncompressed State = iota
	Compressed
	Flushed
)

func (s State) String() string {
	switch s {
	case Uncompressed:
		return "UNCOMPRESSED"
	case Compressed:
		return "COMPRESSED"
	case Flushed:
		return "FLUSHED"
	default:
		return "UNKNOWN"
	}
}

// Chunk is the central pipeline entity. Fields below the sync line are
// guarded by mu; everything above is set once at construction (or, for
// IsDuplicate/SHA1/Ref, exactly once by the Deduplicator before the
// chunk is shared with any other stage) and never mutated again.
type Chunk struct {
	L1     uint64
	L2     uint64
	LastL2 bool

	IsDuplicate bool
	SHA1        [20]byte
	Ref         *Chunk // set only when IsDuplicate; the owning unique chunk

	mu           sync.Mutex
	cond         *sync.Cond
	state        State
	uncompressed *membuf.Buffer
	compressed   *membuf.Buffer
}

// New constructs a chunk in state UNCOMPRESSED, owning uncompressed.
// Every chunk gets its condition variable here, before the Deduplicator
// decides whether it is unique; a duplicate's is never waited on, since
// waiters go through its Ref.
func New(l1, l2 uint64, lastL2 bool, uncompressed *membuf.Buffer) *Chunk {
	c := &Chunk{L1: l1, L2: l2, LastL2: lastL2, state: Uncompressed, uncompressed: uncompressed}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// State returns the chunk's current state.
func (c *Chunk) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Uncompressed returns the chunk's uncompressed payload. Valid only in
// state UNCOMPRESSED; callers must hold no external synchronization
// here because the Deduplicator/Compressor own the chunk exclusively
// until they hand it onward.
func (c *Chunk) Uncompressed() *membuf.Buffer {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.uncompressed
}

// SetCompressed transitions UNCOMPRESSED -> COMPRESSED: releases the
// uncompressed buffer, installs compressed, and broadcasts to any
// waiter (typically the Reorderer resolving a duplicate's Ref).
func (c *Chunk) SetCompressed(compressed *membuf.Buffer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Uncompressed {
		panic(fmt.Sprintf("chunk: SetCompressed on chunk in state %s", c.state))
	}
	c.uncompressed.Release()
	c.uncompressed = nil
	c.compressed = compressed
	c.state = Compressed
	c.cond.Broadcast()
}

// WaitResolved blocks while the chunk is still UNCOMPRESSED, i.e.
// while its compressed bytes are not yet available. Used by the
// Reorderer when emitting a duplicate whose target has not finished
// compressing.
func (c *Chunk) WaitResolved() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.state == Uncompressed {
		c.cond.Wait()
	}
}

// CompressedBytes returns the compressed payload. The caller must have
// already observed (via WaitResolved or its own compression call) that
// state is COMPRESSED.
func (c *Chunk) CompressedBytes() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == Uncompressed {
		panic("chunk: CompressedBytes read before compression completed")
	}
	return c.compressed.Bytes()
}

// MarkFlushed transitions COMPRESSED -> FLUSHED: releases the
// compressed buffer once its bytes have been written to the archive.
func (c *Chunk) MarkFlushed() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Compressed {
		panic(fmt.Sprintf("chunk: MarkFlushed on chunk in state %s", c.state))
	}
	c.compressed.Release()
	c.compressed = nil
	c.state = Flushed
	c.cond.Broadcast()
}

// MarkDuplicate records that this chunk is a duplicate of ref and
// releases its own (redundant) uncompressed bytes — ref's copy is
// authoritative.
func (c *Chunk) MarkDuplicate(ref *Chunk) {
	c.IsDuplicate = true
	c.Ref = ref
	c.uncompressed.Release()
	c.uncompressed = nil
}
