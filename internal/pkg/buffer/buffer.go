// Package buffer holds pooled byte buffers shared by the stream-based
// sibling transports that frame message boundaries over a byte stream
// (internal/tunnel/kcp).
package buffer

import "sync"

// UPool hands out scratch buffers sized for one framed message read off a
// smux stream.
var UPool = sync.Pool{
	New: func() any {
		b := make([]byte, 64*1024)
		return &b
	},
}
