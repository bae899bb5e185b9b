// Package store holds helpers shared by the storage backends.
package store

import (
	"sync"
	"time"
)

// Clock hands out strictly increasing UTC timestamps at a fixed resolution.
// History queries filter on an exclusive "since", so two messages must never
// share a createdAt within one process.
type Clock struct {
	mu         sync.Mutex
	resolution time.Duration
	last       time.Time
	now        func() time.Time
}

// NewClock returns a Clock that truncates to resolution, the finest unit the
// backend stores.
func NewClock(resolution time.Duration) *Clock {
	return &Clock{resolution: resolution, now: time.Now}
}

// Next returns a timestamp later than every one returned before.
func (c *Clock) Next() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := c.now().UTC().Truncate(c.resolution)
	if !t.After(c.last) {
		t = c.last.Add(c.resolution)
	}
	c.last = t
	return t
}
