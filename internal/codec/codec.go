// Package codec implements the Compressor's pluggable compression
// backends and the exact worst-case buffer-sizing formulas from the
// original pipeline's sub_Compress.
package codec

import (
	"bytes"
	"fmt"

	"github.com/dsnet/compress/bzip2"
	"github.com/klauspost/compress/gzip"
)

// Kind selects a compression backend.
type Kind int

const (
	None Kind = iota
	Gzip
	Bzip2
)

func (k Kind) String() string {
	switch k {
	case None:
		return "NONE"
	case Gzip:
		return "GZIP"
	case Bzip2:
		return "BZIP2"
	default:
		return "UNKNOWN"
	}
}

// ParseKind parses a configuration string into a Kind.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "NONE", "none", "":
		return None, nil
	case "GZIP", "gzip":
		return Gzip, nil
	case "BZIP2", "bzip2":
		return Bzip2, nil
	default:
		return None, fmt.Errorf("codec: unknown compress_type %q", s)
	}
}

// Codec compresses a single chunk's bytes. Implementations are
// stateless and safe for concurrent use by every Compressor worker.
type Codec interface {
	// WorstCaseSize returns the buffer size that must be allocated
	// before calling Compress, given an input of n bytes.
	WorstCaseSize(n int) int
	// Compress writes the compressed form of src into dst (which must
	// be at least WorstCaseSize(len(src)) bytes) and returns the
	// number of bytes actually produced.
	Compress(dst, src []byte) (int, error)
}

// New returns the Codec implementation for kind.
func New(kind Kind) Codec {
	switch kind {
	case Gzip:
		return gzipCodec{}
	case Bzip2:
		return bzip2Codec{}
	default:
		return noneCodec{}
	}
}

// noneCodec performs an exact copy — the None backend from spec.md,
// used when the configured codec is NONE or as a direct pass-through
// for testing the rest of the pipeline.
type noneCodec struct{}

func (noneCodec) WorstCaseSize(n int) int { return n }

func (noneCodec) Compress(dst, src []byte) (int, error) {
	return copy(dst, src), nil
}

// gzipCodec wraps klauspost/compress/gzip, a faster drop-in for the
// standard library's gzip writer.
type gzipCodec struct{}

func (gzipCodec) WorstCaseSize(n int) int { return n + (n >> 9) + 12 }

func (gzipCodec) Compress(dst, src []byte) (int, error) {
	var buf bytes.Buffer
	buf.Grow(len(dst))
	w, err := gzip.NewWriterLevel(&buf, gzip.DefaultCompression)
	if err != nil {
		return 0, fmt.Errorf("codec: gzip writer: %w", err)
	}
	if _, err := w.Write(src); err != nil {
		return 0, fmt.Errorf("codec: gzip write: %w", err)
	}
	if err := w.Close(); err != nil {
		return 0, fmt.Errorf("codec: gzip close: %w", err)
	}
	if buf.Len() > len(dst) {
		return 0, fmt.Errorf("codec: gzip output %d bytes exceeds worst-case buffer %d", buf.Len(), len(dst))
	}
	return copy(dst, buf.Bytes()), nil
}

// bzip2Codec wraps dsnet/compress/bzip2, the ecosystem's bzip2 writer
// (the standard library ships a bzip2 reader only).
type bzip2Codec struct{}

func (bzip2Codec) WorstCaseSize(n int) int { return n + (n >> 6) + 600 }

func (bzip2Codec) Compress(dst, src []byte) (int, error) {
	var buf bytes.Buffer
	buf.Grow(len(dst))
	w, err := bzip2.NewWriter(&buf, &bzip2.WriterConfig{Level: 9})
	if err != nil {
		return 0, fmt.Errorf("codec: bzip2 writer: %w", err)
	}
	if _, err := w.Write(src); err != nil {
		return 0, fmt.Errorf("codec: bzip2 write: %w", err)
	}
	if err := w.Close(); err != nil {
		return 0, fmt.Errorf("codec: bzip2 close: %w", err)
	}
	if buf.Len() > len(dst) {
		return 0, fmt.Errorf("codec: bzip2 output %d bytes exceeds worst-case buffer %d", buf.Len(), len(dst))
	}
	return copy(dst, buf.Bytes()), nil
}
