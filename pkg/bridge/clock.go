package bridge

import (
	"time"

	"go.uber.org/atomic"
)

// Clock issues sequence numbers that increase strictly on every call and
// track wall time in microseconds, so that numbers drawn on different
// servers for the same player stay ordered across an authority transfer.
//
// The zero value is ready to use.
type Clock struct {
	last atomic.Uint64
	now  func() time.Time // defaults to time.Now
}

// Next returns a sequence number greater than every number returned or
// observed before.
func (c *Clock) Next() uint64 {
	wall := c.wall()
	for {
		last := c.last.Load()
		next := last + 1
		if wall > next {
			next = wall
		}
		if c.last.CompareAndSwap(last, next) {
			return next
		}
	}
}

// Observe advances the clock past seq received from another server.
func (c *Clock) Observe(seq uint64) {
	for {
		last := c.last.Load()
		if seq <= last || c.last.CompareAndSwap(last, seq) {
			return
		}
	}
}

// Last returns the highest number issued or observed.
func (c *Clock) Last() uint64 { return c.last.Load() }

func (c *Clock) wall() uint64 {
	now := time.Now
	if c.now != nil {
		now = c.now
	}
	return uint64(now().UnixMicro())
}
