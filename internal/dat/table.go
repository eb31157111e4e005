package dat

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/blurfx/thdat/internal/archive"
)

// reader walks a decrypted table held in memory.
type reader struct {
	buf []byte
	off int
}

func (r *reader) remaining() int { return len(r.buf) - r.off }

func (r *reader) u8() (byte, error) {
	b, err := r.bytes(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *reader) u16() (uint16, error) {
	b, err := r.bytes(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (r *reader) u32() (uint32, error) {
	b, err := r.bytes(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (r *reader) bytes(n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("%w: invalid read length %d", archive.ErrInvalidData, n)
	}
	if r.off+n > len(r.buf) {
		return nil, fmt.Errorf("%w: table truncated at %d", archive.ErrInvalidData, r.off)
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b, nil
}

// cstring reads a NUL-terminated name and skips the padding up to the next
// multiple of align.
func (r *reader) cstring(align int) ([]byte, error) {
	end := bytes.IndexByte(r.buf[r.off:], 0)
	if end < 0 {
		return nil, fmt.Errorf("%w: unterminated name at %d", archive.ErrInvalidData, r.off)
	}
	name := r.buf[r.off : r.off+end]
	if _, err := r.bytes(paddedLen(end, align)); err != nil {
		return nil, err
	}
	return name, nil
}

// paddedLen is the size of an n-byte name plus at least one NUL, rounded up
// to align.
func paddedLen(n, align int) int {
	return (n/align + 1) * align
}

// writer builds a table in memory.
type writer struct {
	buf []byte
}

func (w *writer) u8(v byte) { w.buf = append(w.buf, v) }

func (w *writer) u16(v uint16) { w.buf = binary.LittleEndian.AppendUint16(w.buf, v) }

func (w *writer) u32(v uint32) { w.buf = binary.LittleEndian.AppendUint32(w.buf, v) }

func (w *writer) bytes(b []byte) { w.buf = append(w.buf, b...) }

// fixed writes b into an n-byte NUL-padded field.
func (w *writer) fixed(b []byte, n int) {
	start := len(w.buf)
	w.buf = append(w.buf, make([]byte, n)...)
	copy(w.buf[start:], b)
}

// cstring writes a NUL-terminated name padded to align.
func (w *writer) cstring(b []byte, align int) {
	w.fixed(b, paddedLen(len(b), align))
}

// readFull reads exactly n bytes at off from the session stream.
func readFull(s *Session, off, n int64) ([]byte, error) {
	if off < 0 || n < 0 || off+n > s.size {
		return nil, fmt.Errorf("%w: region %d+%d exceeds stream of %d bytes", archive.ErrInvalidData, off, n, s.size)
	}
	buf := make([]byte, n)
	if _, err := s.r.Seek(off, io.SeekStart); err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(s.r, buf); err != nil {
		return nil, fmt.Errorf("%w: %v", archive.ErrInvalidData, err)
	}
	return buf, nil
}

// writeAt writes p at off in the session stream.
func writeAt(s *Session, off int64, p []byte) error {
	if _, err := s.w.Seek(off, io.SeekStart); err != nil {
		return err
	}
	_, err := s.w.Write(p)
	return err
}
