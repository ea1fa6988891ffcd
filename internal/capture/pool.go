package capture

import (
	"bytes"
	"sync"
)

const (
	minPooledBuf = 64 * 1024
	maxPooledBuf = 10 * 1024 * 1024
)

// bufferPool pools bytes.Buffer instances for JPEG encoding, sized by
// estimateBufSize. Oversized buffers are not returned to the pool, so
// one large frame can't permanently bloat every buffer handed out
// afterward.
var bufferPool = sync.Pool{
	New: func() any {
		return bytes.NewBuffer(make([]byte, 0, minPooledBuf))
	},
}

func getBuffer() *bytes.Buffer {
	buf := bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	return buf
}

func putBuffer(buf *bytes.Buffer) {
	if buf.Cap() > maxPooledBuf {
		return
	}
	bufferPool.Put(buf)
}

// estimateBufSize predicts the JPEG payload size for a w×h frame at
// the engine's fixed quality, clamped to a sane range so the pooled
// buffer never needs more than one grow for a typical frame.
func estimateBufSize(w, h int) int {
	est := w*h*3/10 + 10*1024
	if est < minPooledBuf {
		return minPooledBuf
	}
	if est > maxPooledBuf {
		return maxPooledBuf
	}
	return est
}
