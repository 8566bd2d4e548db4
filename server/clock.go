package server

import (
	"sync"
	"time"
)

// serverClock hands out monotonic nanosecond offsets from a single
// process-wide start instant, initialized lazily on first use. Because
// it is initialized once and read-only thereafter, no lock is needed
// on the read path.
type serverClock struct {
	once  sync.Once
	start time.Time
}

func (c *serverClock) init() {
	c.once.Do(func() {
		c.start = time.Now()
	})
}

// Now returns nanoseconds elapsed since the clock's first use.
func (c *serverClock) Now() uint64 {
	c.init()
	return uint64(time.Since(c.start).Nanoseconds())
}

// defaultClock is the process-wide SERVER_START reference spec.md §4.3
// describes: every ECHO handler stamps T2/T3 off the same instant.
var defaultClock serverClock

func monotonicNs() uint64 {
	return defaultClock.Now()
}
