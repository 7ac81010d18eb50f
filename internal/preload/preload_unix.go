//go:build unix

package preload

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"github.com/kenneth/dedupstream/internal/membuf"
)

func loadMmap(f *os.File) (*membuf.Buffer, error) {
	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("preload: stat %s: %w", f.Name(), err)
	}
	size := info.Size()
	if size == 0 {
		return membuf.Wrap(nil), nil
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_PRIVATE)
	if err != nil {
		return nil, fmt.Errorf("preload: mmap %s: %w", f.Name(), err)
	}
	return membuf.WrapWithRelease(data, func() { unix.Munmap(data) }), nil
}
