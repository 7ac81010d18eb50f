package chunkindex

import (
	"crypto/sha1"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kenneth/dedupstream/internal/chunk"
	"github.com/kenneth/dedupstream/internal/membuf"
)

func TestLookupOrInsertMissThenHit(t *testing.T) {
	idx := New(16)
	pool := membuf.NewPool()
	fp := sha1.Sum([]byte("payload"))

	c1 := chunk.New(0, 0, true, membuf.Alloc(pool, 8))
	owner, inserted := idx.LookupOrInsert(fp, c1)
	require.True(t, inserted)
	require.Same(t, c1, owner)

	c2 := chunk.New(0, 1, true, membuf.Alloc(pool, 8))
	owner2, inserted2 := idx.LookupOrInsert(fp, c2)
	require.False(t, inserted2)
	require.Same(t, c1, owner2)

	require.Equal(t, 1, idx.Len())
}

func TestLookupOrInsertConcurrentSameFingerprintExactlyOneWins(t *testing.T) {
	idx := New(16)
	pool := membuf.NewPool()
	fp := sha1.Sum([]byte("racy payload"))

	const n = 64
	winners := make([]*chunk.Chunk, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			c := chunk.New(0, uint64(i), false, membuf.Alloc(pool, 8))
			owner, _ := idx.LookupOrInsert(fp, c)
			winners[i] = owner
		}(i)
	}
	wg.Wait()

	require.Equal(t, 1, idx.Len())
	for i := 1; i < n; i++ {
		require.Same(t, winners[0], winners[i])
	}
}
