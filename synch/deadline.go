// File: synch/deadline.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Deadline is a timeout sequence: a relative timeout converted once into an
// absolute deadline, shared across a loop of blocking calls so the whole
// sequence consumes a single budget.

package synch

import "time"

// Deadline is an absolute expiry shared by a sequence of timed waits.
type Deadline struct {
	at          time.Time
	infinite    bool
	nonBlocking bool
}

// NewDeadline starts a timeout sequence. The timeout follows the package
// conventions: Infinite never expires, NonBlocking makes every wait a try.
func NewDeadline(timeout time.Duration) *Deadline {
	d := &Deadline{}
	switch {
	case timeout == Infinite:
		d.infinite = true
	case timeout < 0:
		d.nonBlocking = true
	default:
		d.at = time.Now().Add(timeout)
	}
	return d
}

// remaining maps the deadline back onto a timeout value. An expired deadline
// degrades to a non-blocking try.
func (d *Deadline) remaining() time.Duration {
	if d.infinite {
		return Infinite
	}
	if d.nonBlocking {
		return NonBlocking
	}
	r := time.Until(d.at)
	if r <= 0 {
		return NonBlocking
	}
	return r
}
