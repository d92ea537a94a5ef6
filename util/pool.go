package util

import "sync"

// DatagramSize is large enough for any discovery datagram.
const DatagramSize = 2048

// BufPool provides reusable datagram buffers for the discovery
// receive loop.
var BufPool = sync.Pool{
	New: func() interface{} {
		buf := make([]byte, DatagramSize)
		return &buf
	},
}

// GetBuf retrieves a buffer from the pool.  Callers must return it
// with [PutBuf] when finished.
func GetBuf() *[]byte {
	return BufPool.Get().(*[]byte)
}

// PutBuf returns a buffer to the pool for reuse.
func PutBuf(buf *[]byte) {
	if buf == nil {
		return
	}
	BufPool.Put(buf)
}
