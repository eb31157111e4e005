package codec

import (
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/zstd"

	"github.com/blurfx/thdat/internal/archive"
)

// zstdMaxPrealloc bounds the output buffer reserved from an untrusted size.
const zstdMaxPrealloc = 1 << 20

var (
	zstdDecoder, _ = zstd.NewReader(nil)

	zstdEncoders = sync.Pool{
		New: func() any {
			enc, _ := zstd.NewWriter(nil,
				zstd.WithEncoderLevel(zstd.SpeedBetterCompression),
				zstd.WithEncoderConcurrency(1),
			)
			return enc
		},
	}
)

// Zstd is a single zstd frame per entry. Tables are small, so both sides
// work on whole buffers with pooled encoders.
type Zstd struct{}

// Compress implements Codec.
func (Zstd) Compress(r io.Reader, size int64, w io.Writer) (int64, error) {
	src := make([]byte, size)
	if _, err := io.ReadFull(r, src); err != nil {
		return 0, fmt.Errorf("zstd: %w", err)
	}
	enc := zstdEncoders.Get().(*zstd.Encoder)
	defer zstdEncoders.Put(enc)

	dst := enc.EncodeAll(src, make([]byte, 0, len(src)/2+64))
	n, err := w.Write(dst)
	return int64(n), err
}

// Decompress implements Codec.
func (Zstd) Decompress(r io.Reader, w io.Writer, expectedSize int64) error {
	src, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("zstd: %w", err)
	}
	dst, err := zstdDecoder.DecodeAll(src, make([]byte, 0, min(expectedSize, zstdMaxPrealloc)))
	if err != nil {
		return fmt.Errorf("%w: zstd: %v", archive.ErrInvalidData, err)
	}
	if int64(len(dst)) != expectedSize {
		return fmt.Errorf("zstd: decoded %d bytes, want %d: %w", len(dst), expectedSize, errShort)
	}
	_, err = w.Write(dst)
	return err
}
