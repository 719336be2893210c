// internal/sched/tickclock.go

package sched

import (
	"sync/atomic"
	"time"
)

// TickClock emits wall-clock ticks that drive the Run loop. Ticks the
// consumer cannot keep up with are dropped rather than buffered without
// bound, so a slow dispatch never builds a backlog of stale ticks.
type TickClock struct {
	C       chan struct{}
	count   atomic.Int64
	dropped atomic.Int64
	stop    chan struct{}
}

// NewTickClock creates a clock but does not start it.
func NewTickClock(buffer int) *TickClock {
	return &TickClock{
		C:    make(chan struct{}, buffer),
		stop: make(chan struct{}),
	}
}

// Start begins emitting ticks at the given interval.
func (c *TickClock) Start(interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.count.Add(1)
				select {
				case c.C <- struct{}{}:
				default:
					c.dropped.Add(1)
				}
			case <-c.stop:
				close(c.C)
				return
			}
		}
	}()
}

// Stop signals the clock to stop emitting ticks.
func (c *TickClock) Stop() {
	close(c.stop)
}

// Count returns the number of ticks emitted so far.
func (c *TickClock) Count() int64 {
	return c.count.Load()
}

// Dropped returns the number of ticks the consumer missed.
func (c *TickClock) Dropped() int64 {
	return c.dropped.Load()
}
