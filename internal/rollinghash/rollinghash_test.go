package rollinghash

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestScanDeterministic(t *testing.T) {
	buf := make([]byte, 8192)
	rand.New(rand.NewSource(1)).Read(buf)

	s := NewScanner(48, MaskForAvgSize(10))
	a := s.Scan(buf)
	b := s.Scan(append([]byte(nil), buf...))
	require.Equal(t, a, b)
}

func TestScanShorterThanWindowReturnsLen(t *testing.T) {
	s := NewScanner(48, MaskForAvgSize(10))
	buf := make([]byte, 10)
	require.Equal(t, len(buf), s.Scan(buf))
}

func TestScanStabilityUnderAppend(t *testing.T) {
	buf := make([]byte, 4096)
	rand.New(rand.NewSource(42)).Read(buf)

	s := NewScanner(48, MaskForAvgSize(8))
	offset := s.Scan(buf)
	require.Less(t, offset, len(buf), "test fixture should contain an anchor")

	extended := append(append([]byte(nil), buf...), []byte("trailing suffix data that should not matter")...)
	offset2 := s.Scan(extended)
	require.Equal(t, offset, offset2)
}

func FuzzAnchorScan(f *testing.F) {
	f.Add([]byte("hello world, this is a seed corpus entry for the fuzzer"))
	s := NewScanner(32, MaskForAvgSize(6))
	f.Fuzz(func(t *testing.T, data []byte) {
		offset := s.Scan(data)
		if offset > len(data) {
			t.Fatalf("offset %d exceeds buffer length %d", offset, len(data))
		}
		suffixed := append(append([]byte(nil), data...), 0xAA, 0xBB, 0xCC)
		offset2 := s.Scan(suffixed)
		if offset < len(data) && offset2 != offset {
			t.Fatalf("anchor at %d shifted to %d after appending a suffix", offset, offset2)
		}
	})
}
