// Package testutil provides in-memory streams for archive tests.
package testutil

import (
	"errors"
	"io"
)

// File is an in-memory io.ReadWriteSeeker that grows on write past its end,
// the way an *os.File does.
type File struct {
	data   []byte
	pos    int64
	closed bool
}

// NewFile returns a file holding a copy of data.
func NewFile(data []byte) *File {
	return &File{data: append([]byte(nil), data...)}
}

// Bytes returns the current contents.
func (f *File) Bytes() []byte { return f.data }

// Closed reports whether Close was called.
func (f *File) Closed() bool { return f.closed }

// Read implements io.Reader.
func (f *File) Read(p []byte) (int, error) {
	if f.pos >= int64(len(f.data)) {
		return 0, io.EOF
	}
	n := copy(p, f.data[f.pos:])
	f.pos += int64(n)
	return n, nil
}

// ReadAt implements io.ReaderAt.
func (f *File) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, errors.New("testutil: negative offset")
	}
	if off >= int64(len(f.data)) {
		return 0, io.EOF
	}
	n := copy(p, f.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// Write implements io.Writer.
func (f *File) Write(p []byte) (int, error) {
	end := f.pos + int64(len(p))
	if end > int64(len(f.data)) {
		grown := make([]byte, end)
		copy(grown, f.data)
		f.data = grown
	}
	copy(f.data[f.pos:], p)
	f.pos = end
	return len(p), nil
}

// Seek implements io.Seeker.
func (f *File) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = f.pos + offset
	case io.SeekEnd:
		abs = int64(len(f.data)) + offset
	default:
		return 0, errors.New("testutil: invalid whence")
	}
	if abs < 0 {
		return 0, errors.New("testutil: negative position")
	}
	f.pos = abs
	return abs, nil
}

// Close implements io.Closer.
func (f *File) Close() error {
	f.closed = true
	return nil
}
