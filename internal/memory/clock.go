package memory

import "time"

// Clock hands out ledger timestamps that never go backwards, even if the
// wall clock does. It is not safe for concurrent use; stores call it while
// holding their write lock.
type Clock struct {
	Now  func() time.Time
	last time.Time
}

// Next returns the current time, clamped to be no earlier than the previous
// value returned.
func (c *Clock) Next() time.Time {
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}
	t := now().UTC()
	if t.Before(c.last) {
		t = c.last
	}
	c.last = t
	return t
}

// Observe seeds the clock with a timestamp recovered from persisted state.
func (c *Clock) Observe(t time.Time) {
	if t.After(c.last) {
		c.last = t
	}
}
