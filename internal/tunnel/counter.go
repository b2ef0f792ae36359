package tunnel

import "sync/atomic"

// connCounter is a lock-free, eventually-consistent count of how many
// server-side logical tunnels are currently live. The listener
// increments it on handshake completion and decrements it when a tunnel's
// forwarder task exits; readers never block a writer.
type connCounter struct {
	n atomic.Uint32
}

func (c *connCounter) inc() { c.n.Add(1) }
func (c *connCounter) dec() { c.n.Add(^uint32(0)) }

// Count implements ConnCounter.
func (c *connCounter) Count() uint32 { return c.n.Load() }
