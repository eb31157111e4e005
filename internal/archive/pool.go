package archive

import (
	"bytes"
	"sync"
)

// scratchLimit caps the capacity of buffers returned to the pool so one huge
// entry does not pin its staging memory forever.
const scratchLimit = 16 << 20

var scratchPool = sync.Pool{
	New: func() any {
		return new(bytes.Buffer)
	},
}

// GetBuffer returns an empty staging buffer. Release it with PutBuffer on
// every exit path.
func GetBuffer() *bytes.Buffer {
	buf := scratchPool.Get().(*bytes.Buffer)
	buf.Reset()
	return buf
}

// PutBuffer returns a staging buffer to the pool.
func PutBuffer(buf *bytes.Buffer) {
	if buf == nil || buf.Cap() > scratchLimit {
		return
	}
	buf.Reset()
	scratchPool.Put(buf)
}

// Grow returns buf resized to n bytes, reusing its backing array when possible.
func Grow(buf *bytes.Buffer, n int) []byte {
	buf.Reset()
	buf.Grow(n)
	return buf.Bytes()[:n]
}
