// File: api/clock.go
// Package api
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

// TimerMode selects the time base of a timer deadline or an absolute sleep.
type TimerMode int

const (
	// TimerRelative interprets the expiry as an offset from now on the
	// monotonic clock.
	TimerRelative TimerMode = iota

	// TimerAbsolute interprets the expiry as an absolute monotonic
	// timestamp, immune to wall-clock adjustment.
	TimerAbsolute

	// TimerRealtime interprets the expiry as an absolute wall-clock
	// timestamp and tracks wall-clock changes.
	TimerRealtime
)

// Clock supplies the two time bases used by timers and absolute sleeps.
type Clock interface {
	// Monotonic returns nanoseconds since an arbitrary fixed epoch,
	// immune to wall-clock adjustment.
	Monotonic() int64

	// Realtime returns wall-clock nanoseconds since the Unix epoch.
	Realtime() int64
}
