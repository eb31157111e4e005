package codec

import (
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"

	"github.com/blurfx/thdat/internal/archive"
	"github.com/blurfx/thdat/internal/crypto"
)

// Zlib is RFC 1950 deflate.
type Zlib struct {
	// Level is the deflate level; zero selects zlib.DefaultCompression.
	Level int
}

// Compress implements Codec.
func (z Zlib) Compress(r io.Reader, size int64, w io.Writer) (int64, error) {
	level := z.Level
	if level == 0 {
		level = zlib.DefaultCompression
	}
	cw := &crypto.WriteCounter{W: w}
	zw, err := zlib.NewWriterLevel(cw, level)
	if err != nil {
		return 0, fmt.Errorf("zlib: %w", err)
	}
	if _, err := io.CopyN(zw, r, size); err != nil {
		return 0, fmt.Errorf("zlib: %w", err)
	}
	if err := zw.Close(); err != nil {
		return 0, fmt.Errorf("zlib: %w", err)
	}
	return cw.N, nil
}

// Decompress implements Codec.
func (Zlib) Decompress(r io.Reader, w io.Writer, expectedSize int64) error {
	zr, err := zlib.NewReader(r)
	if err != nil {
		return fmt.Errorf("%w: zlib: %v", archive.ErrInvalidData, err)
	}
	defer zr.Close()
	return copyExact(w, zr, expectedSize, "zlib")
}
