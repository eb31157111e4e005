// Package codec exposes the dictionary compressors used by the format
// drivers behind one two-function interface.
package codec

import (
	"fmt"
	"io"

	"github.com/blurfx/thdat/internal/archive"
)

// Codec compresses and decompresses whole entries.
type Codec interface {
	// Compress reads size bytes from r, writes the compressed form to w and
	// returns the number of bytes written.
	Compress(r io.Reader, size int64, w io.Writer) (int64, error)

	// Decompress reads a compressed stream from r and writes exactly
	// expectedSize bytes to w.
	Decompress(r io.Reader, w io.Writer, expectedSize int64) error
}

// Method identifies a codec.
type Method byte

// Supported methods.
const (
	MethodLZMA Method = iota + 1
	MethodZlib
	MethodZstd
)

func (m Method) String() string {
	switch m {
	case MethodLZMA:
		return "lzma"
	case MethodZlib:
		return "zlib"
	case MethodZstd:
		return "zstd"
	}
	return fmt.Sprintf("method(%d)", byte(m))
}

// ByMethod returns the codec for m.
func ByMethod(m Method) (Codec, error) {
	switch m {
	case MethodLZMA:
		return LZMA{}, nil
	case MethodZlib:
		return Zlib{}, nil
	case MethodZstd:
		return Zstd{}, nil
	}
	return nil, fmt.Errorf("%w: %s", archive.ErrUnsupportedMethod, m)
}

var errShort = fmt.Errorf("%w: size mismatch", archive.ErrInvalidData)

// copyExact copies exactly n bytes and reports a short stream as invalid data.
func copyExact(w io.Writer, r io.Reader, n int64, name string) error {
	got, err := io.CopyN(w, r, n)
	if err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return fmt.Errorf("%w: %s: short stream (want %d, got %d)", archive.ErrInvalidData, name, n, got)
		}
		return fmt.Errorf("%w: %s: %v", archive.ErrInvalidData, name, err)
	}
	return nil
}
