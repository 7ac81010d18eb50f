package preload

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadHeapReadsWholeFile(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "preload")
	require.NoError(t, err)
	defer f.Close()

	want := []byte("the quick brown fox jumps over the lazy dog")
	_, err = f.Write(want)
	require.NoError(t, err)
	_, err = f.Seek(0, 0)
	require.NoError(t, err)

	buf, err := Load(f, false)
	require.NoError(t, err)
	require.Equal(t, want, buf.Bytes())
	buf.Release()
}

func TestLoadWithMmapReturnsWholeFile(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "preload")
	require.NoError(t, err)
	defer f.Close()

	want := []byte("mmap or fallback, either way these bytes come back")
	_, err = f.Write(want)
	require.NoError(t, err)
	_, err = f.Seek(0, 0)
	require.NoError(t, err)

	buf, err := Load(f, true)
	require.NoError(t, err)
	require.Equal(t, want, buf.Bytes())
	buf.Release()
}
