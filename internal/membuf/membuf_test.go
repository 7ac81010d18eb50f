package membuf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllocReturnsExactLength(t *testing.T) {
	p := NewPool()
	buf := Alloc(p, 100)
	require.Equal(t, 100, buf.Len())
	require.Len(t, buf.Bytes(), 100)
	buf.Release()
}

func TestPoolClassDispatch(t *testing.T) {
	p := NewPool()

	small := Alloc(p, classSmall)
	small.Release()
	medium := Alloc(p, classMedium)
	medium.Release()
	large := Alloc(p, classLarge)
	large.Release()
	huge := Alloc(p, classLarge+1)
	huge.Release()

	m := p.Metrics()
	assert.Equal(t, int64(1), m.Misses, "only the over-large allocation should miss every class")
	assert.Equal(t, int64(3), m.Hits)
}

func TestSplitPreservesBytesAndIsZeroCopy(t *testing.T) {
	p := NewPool()
	buf := Alloc(p, 10)
	data := buf.Bytes()
	for i := range data {
		data[i] = byte(i)
	}

	left, right := buf.Split(4)
	assert.Equal(t, []byte{0, 1, 2, 3}, left.Bytes())
	assert.Equal(t, []byte{4, 5, 6, 7, 8, 9}, right.Bytes())

	left.Release()
	right.Release()
}

func TestSplitOutOfRangePanics(t *testing.T) {
	p := NewPool()
	buf := Alloc(p, 10)
	defer buf.Release()

	assert.Panics(t, func() { buf.Split(11) })
}

func TestShrinkReducesLength(t *testing.T) {
	p := NewPool()
	buf := Alloc(p, 100)
	defer buf.Release()

	buf.Shrink(42)
	assert.Equal(t, 42, buf.Len())
	assert.Len(t, buf.Bytes(), 42)
}

func TestShrinkOutOfRangePanics(t *testing.T) {
	p := NewPool()
	buf := Alloc(p, 10)
	defer buf.Release()

	assert.Panics(t, func() { buf.Shrink(11) })
	assert.Panics(t, func() { buf.Shrink(-1) })
}

func TestWrapHasNoPoolReturn(t *testing.T) {
	data := []byte("external")
	buf := Wrap(data)
	assert.Equal(t, data, buf.Bytes())
	buf.Release() // must not panic with no pool set
}

func TestWrapWithReleaseInvokesOnFinalOnce(t *testing.T) {
	calls := 0
	buf := WrapWithRelease([]byte("x"), func() { calls++ })
	left, right := buf.Split(0)
	left.Release()
	assert.Equal(t, 0, calls)
	right.Release()
	assert.Equal(t, 1, calls)
}

func TestSplitViewsShareOneUnderlyingRelease(t *testing.T) {
	p := NewPool()
	buf := Alloc(p, classSmall)
	left, right := buf.Split(10)

	left.Release()
	right.Release()

	// The backing array is now back in the pool; a same-size Alloc
	// should reuse it rather than allocate fresh.
	reused := Alloc(p, classSmall)
	assert.Equal(t, classSmall, reused.Len())
	reused.Release()
}
