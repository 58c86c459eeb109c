// File: timer/clock.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package timer

import (
	"time"

	"github.com/momentics/rtcore/api"
)

// SystemClock implements api.Clock on the process clocks. The monotonic
// reading is anchored at construction so it never moves with wall-clock
// adjustment.
type SystemClock struct {
	base time.Time
}

// NewSystemClock creates a clock anchored at the current instant.
func NewSystemClock() *SystemClock {
	return &SystemClock{base: time.Now()}
}

// Monotonic returns nanoseconds since the clock was created.
func (c *SystemClock) Monotonic() int64 {
	return int64(time.Since(c.base))
}

// Realtime returns wall-clock nanoseconds since the Unix epoch.
func (c *SystemClock) Realtime() int64 {
	return time.Now().UnixNano()
}

var _ api.Clock = (*SystemClock)(nil)
