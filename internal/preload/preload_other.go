//go:build !unix

package preload

import (
	"fmt"
	"os"

	"github.com/kenneth/dedupstream/internal/membuf"
)

func loadMmap(f *os.File) (*membuf.Buffer, error) {
	return nil, fmt.Errorf("preload: mmap unsupported on this platform")
}
