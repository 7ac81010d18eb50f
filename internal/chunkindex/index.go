// Package chunkindex implements the concurrent chunk index: a sharded
// mapping from 20-byte SHA-1 fingerprint to the owning unique chunk,
// grounded on the original pipeline's hashtable_create(65536, ...)
// sharding (shard key is the first word of the fingerprint, already
// uniformly distributed) restructured as a Go slice of
// mutex-guarded shards, at the same lock granularity as the teacher's
// per-size-class BufferPool locking.
package chunkindex

import (
	"encoding/binary"
	"sync"

	"github.com/kenneth/dedupstream/internal/chunk"
)

// DefaultShards is the default shard count. Must be a power of two.
const DefaultShards = 4096

type shard struct {
	mu sync.Mutex
	m  map[[20]byte]*chunk.Chunk
}

// Index is the global chunk cache shared by every Deduplicator worker.
// It is constructed once by the orchestrator and passed to all
// workers — never a package-global — so that interior mutability stays
// confined to the shard mutexes, per spec.
type Index struct {
	shards []*shard
	mask   uint32
}

// New builds an Index with shardCount shards (rounded up to the next
// power of two, minimum 1).
func New(shardCount int) *Index {
	n := 1
	for n < shardCount {
		n <<= 1
	}
	shards := make([]*shard, n)
	for i := range shards {
		shards[i] = &shard{m: make(map[[20]byte]*chunk.Chunk)}
	}
	return &Index{shards: shards, mask: uint32(n - 1)}
}

func (idx *Index) shardFor(fp [20]byte) *shard {
	key := binary.BigEndian.Uint32(fp[:4])
	return idx.shards[key&idx.mask]
}

// LookupOrInsert looks up fp. On a miss it inserts c as the owning
// chunk for fp and returns (c, true). On a hit it returns the
// previously inserted chunk and false; the caller never mutates its
// own candidate's duplicate state under the shard lock — it does so
// afterward, outside the lock, per spec's "held only for the duration
// of a single lookup/insert" rule.
func (idx *Index) LookupOrInsert(fp [20]byte, c *chunk.Chunk) (owner *chunk.Chunk, inserted bool) {
	s := idx.shardFor(fp)
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.m[fp]; ok {
		return existing, false
	}
	s.m[fp] = c
	return c, true
}

// Len returns the total number of unique chunks held across all
// shards. Intended for diagnostics; takes every shard lock in turn.
func (idx *Index) Len() int {
	total := 0
	for _, s := range idx.shards {
		s.mu.Lock()
		total += len(s.m)
		s.mu.Unlock()
	}
	return total
}
