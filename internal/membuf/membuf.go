// Package membuf implements the managed buffer abstraction: a
// reference-counted byte region supporting constant-time Split, so the
// Fragmenter and Refiner can repeatedly cut buffers without copying.
// The backing arrays are drawn from a size-classed pool, the same
// pattern the teacher uses for its encryption buffers, generalized from
// four fixed classes to chunk-sized classes.
package membuf

import (
	"sync"
	"sync/atomic"
)

const (
	classSmall  = 8 * 1024        // fine-chunk scale
	classMedium = 256 * 1024      // coarse-chunk scale
	classLarge  = 4*1024*1024 + 64 // MAXBUF scale, small slack for the codec's worst-case growth
)

// Pool draws backing arrays for managed buffers from size-classed
// sync.Pool instances, falling back to a direct allocation for sizes
// outside every class — mirroring the teacher's BufferPool dispatch.
type Pool struct {
	small, medium, large *sync.Pool

	hits, misses int64
}

// NewPool constructs a Pool with its three size classes.
func NewPool() *Pool {
	return &Pool{
		small:  &sync.Pool{New: func() interface{} { return make([]byte, classSmall) }},
		medium: &sync.Pool{New: func() interface{} { return make([]byte, classMedium) }},
		large:  &sync.Pool{New: func() interface{} { return make([]byte, classLarge) }},
	}
}

func (p *Pool) classFor(size int) *sync.Pool {
	switch {
	case size <= classSmall:
		return p.small
	case size <= classMedium:
		return p.medium
	case size <= classLarge:
		return p.large
	default:
		return nil
	}
}

func (p *Pool) get(size int) []byte {
	class := p.classFor(size)
	if class == nil {
		atomic.AddInt64(&p.misses, 1)
		return make([]byte, size)
	}
	buf := class.Get().([]byte)
	if cap(buf) < size {
		atomic.AddInt64(&p.misses, 1)
		return make([]byte, size)
	}
	atomic.AddInt64(&p.hits, 1)
	return buf[:size]
}

func (p *Pool) put(buf []byte) {
	class := p.classFor(cap(buf))
	if class == nil {
		return
	}
	class.Put(buf[:cap(buf)]) //nolint:staticcheck // reset length to full capacity for reuse
}

// Metrics reports pool hit/miss counters.
type Metrics struct {
	Hits, Misses int64
}

// Metrics snapshots the pool's hit/miss counters.
func (p *Pool) Metrics() Metrics {
	return Metrics{Hits: atomic.LoadInt64(&p.hits), Misses: atomic.LoadInt64(&p.misses)}
}

type region struct {
	data    []byte
	pool    *Pool
	onFinal func()
	refs    int32
}

func (r *region) retain() {
	atomic.AddInt32(&r.refs, 1)
}

func (r *region) release() {
	if atomic.AddInt32(&r.refs, -1) != 0 {
		return
	}
	switch {
	case r.onFinal != nil:
		r.onFinal()
	case r.pool != nil:
		r.pool.put(r.data)
	}
}

// Buffer is a reference-counted view over a region of a pooled backing
// array. The zero value is not usable; construct with Alloc or Wrap.
type Buffer struct {
	region *region
	off    int
	length int
}

// Alloc draws a new backing array of exactly size bytes from the pool
// and returns a Buffer owning the sole reference to it.
func Alloc(p *Pool, size int) *Buffer {
	return &Buffer{region: &region{data: p.get(size), pool: p, refs: 1}, off: 0, length: size}
}

// Wrap adopts an externally-owned slice (e.g. a slice read from a
// preloading pass) as a Buffer with no pool to return to on release —
// release simply drops the reference.
func Wrap(data []byte) *Buffer {
	return &Buffer{region: &region{data: data, pool: nil, refs: 1}, off: 0, length: len(data)}
}

// WrapWithRelease adopts data as a Buffer that invokes onFinal (e.g.
// to munmap a memory-mapped region) when the last view's reference is
// released, instead of returning anything to a pool.
func WrapWithRelease(data []byte, onFinal func()) *Buffer {
	return &Buffer{region: &region{data: data, onFinal: onFinal, refs: 1}, off: 0, length: len(data)}
}

// Bytes returns the buffer's current view. The returned slice must not
// be retained past the buffer's Release.
func (b *Buffer) Bytes() []byte {
	return b.region.data[b.off : b.off+b.length]
}

// Len reports the buffer's current length.
func (b *Buffer) Len() int { return b.length }

// Split divides the buffer at offset into two views sharing the same
// backing allocation in constant time. Split consumes b: the caller
// must use left and right afterward instead of b.
func (b *Buffer) Split(offset int) (left, right *Buffer) {
	if offset < 0 || offset > b.length {
		panic("membuf: split offset out of range")
	}
	b.region.retain()
	left = &Buffer{region: b.region, off: b.off, length: offset}
	right = &Buffer{region: b.region, off: b.off + offset, length: b.length - offset}
	return left, right
}

// Shrink reduces the buffer's logical length in place, used by the
// Compressor after the codec reports how many bytes it actually
// produced into a worst-case-sized buffer.
func (b *Buffer) Shrink(n int) {
	if n < 0 || n > b.length {
		panic("membuf: shrink length out of range")
	}
	b.length = n
}

// Release drops this view's reference to the backing allocation,
// returning it to the pool once the last view has been released.
func (b *Buffer) Release() {
	b.region.release()
}
