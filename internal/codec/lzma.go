package codec

import (
	"fmt"
	"io"

	"github.com/ulikunitz/xz/lzma"

	"github.com/blurfx/thdat/internal/archive"
	"github.com/blurfx/thdat/internal/crypto"
)

// LZMA is the classic .lzma stream format with the size recorded in the header.
type LZMA struct{}

// Compress implements Codec.
func (LZMA) Compress(r io.Reader, size int64, w io.Writer) (int64, error) {
	cw := &crypto.WriteCounter{W: w}
	cfg := lzma.WriterConfig{SizeInHeader: true, Size: size}
	lw, err := cfg.NewWriter(cw)
	if err != nil {
		return 0, fmt.Errorf("lzma: %w", err)
	}
	if _, err := io.CopyN(lw, r, size); err != nil {
		return 0, fmt.Errorf("lzma: %w", err)
	}
	if err := lw.Close(); err != nil {
		return 0, fmt.Errorf("lzma: %w", err)
	}
	return cw.N, nil
}

// Decompress implements Codec.
func (LZMA) Decompress(r io.Reader, w io.Writer, expectedSize int64) error {
	lr, err := lzma.NewReader(r)
	if err != nil {
		return fmt.Errorf("%w: lzma: %v", archive.ErrInvalidData, err)
	}
	return copyExact(w, lr, expectedSize, "lzma")
}
