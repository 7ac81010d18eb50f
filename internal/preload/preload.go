// Package preload implements the two input-preloading strategies
// spec.md §6's "preloading" option selects between: a portable
// heap-buffered read of the whole input, and (on Unix, when
// mmap_preload is also set) a zero-copy mmap of the input file — the
// same CPU/OS-capability-probing posture the teacher brings to bear
// via golang.org/x/sys, here aimed at golang.org/x/sys/unix instead of
// the teacher's x/sys/cpu feature bits.
package preload

import (
	"fmt"
	"io"
	"os"

	"github.com/kenneth/dedupstream/internal/membuf"
)

// Load reads the entirety of f into a single Buffer. When mmap is
// true and the platform supports it (see preload_unix.go /
// preload_other.go), the returned Buffer wraps a memory-mapped view of
// the file instead of a heap copy; Release then unmaps it.
func Load(f *os.File, mmap bool) (*membuf.Buffer, error) {
	if mmap {
		buf, err := loadMmap(f)
		if err == nil {
			return buf, nil
		}
		// Fall back to a heap copy rather than fail the run over an
		// unsupported platform or filesystem.
	}
	return loadHeap(f)
}

func loadHeap(f *os.File) (*membuf.Buffer, error) {
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("preload: read %s: %w", f.Name(), err)
	}
	return membuf.Wrap(data), nil
}
