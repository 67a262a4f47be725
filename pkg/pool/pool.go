// Package pool provides object pooling to reduce GC pressure on the
// JSON-RPC response write path, where every request/response allocates a
// fresh encoding buffer.
package pool

import (
	"bytes"
	"sync"
)

// bufferPool pools *bytes.Buffer instances sized for one wire response line.
var bufferPool = sync.Pool{
	New: func() interface{} {
		return new(bytes.Buffer)
	},
}

// GetBuffer returns an empty buffer from the pool.
func GetBuffer() *bytes.Buffer {
	buf := bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	return buf
}

// PutBuffer returns buf to the pool. Buffers that grew unusually large are
// dropped instead of pooled, so one oversized response doesn't permanently
// inflate the pool's steady-state memory.
func PutBuffer(buf *bytes.Buffer) {
	const maxPooledCapacity = 1 << 20 // 1MiB
	if buf.Cap() > maxPooledCapacity {
		return
	}
	bufferPool.Put(buf)
}
