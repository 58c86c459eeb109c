// File: internal/concurrency/rtcaller.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// RTCaller is the synchronous transition into the real-time domain used by
// the dispatcher when a non-real-time caller invokes an operation that only
// has a real-time handler variant. Calls execute one at a time on a
// dedicated service goroutine that may be pinned to a CPU.

package concurrency

import (
	"sync"

	"github.com/momentics/rtcore/api"
)

type rtCall struct {
	fn   func()
	done chan struct{}
}

// RTCaller executes submitted functions serially on its service goroutine.
type RTCaller struct {
	calls  chan rtCall
	stop   chan struct{}
	exited chan struct{}
	once   sync.Once
}

// NewRTCaller starts the real-time call service. cpu >= 0 pins the service
// thread to that CPU on platforms that support it; onStart, if non-nil, runs
// first on the service goroutine (used to adopt it into the scheduler
// registry as a real-time task).
func NewRTCaller(cpu int, onStart func()) *RTCaller {
	c := &RTCaller{
		calls:  make(chan rtCall),
		stop:   make(chan struct{}),
		exited: make(chan struct{}),
	}
	go c.run(cpu, onStart)
	return c
}

// Call executes fn on the service goroutine and blocks until it returns.
func (c *RTCaller) Call(fn func()) error {
	if fn == nil {
		return api.ErrInvalidArgument
	}
	call := rtCall{fn: fn, done: make(chan struct{})}
	select {
	case c.calls <- call:
		<-call.done
		return nil
	case <-c.stop:
		return api.ErrClosed
	}
}

// Close stops the service. In-flight calls complete; later calls fail with
// ErrClosed.
func (c *RTCaller) Close() {
	c.once.Do(func() { close(c.stop) })
	<-c.exited
}

func (c *RTCaller) run(cpu int, onStart func()) {
	defer close(c.exited)
	if cpu >= 0 {
		if err := PinThread(cpu); err != nil {
			// Pinning is best effort; the service still runs unpinned.
			_ = err
		}
	}
	if onStart != nil {
		onStart()
	}
	for {
		select {
		case call := <-c.calls:
			c.execute(call)
		case <-c.stop:
			return
		}
	}
}

func (c *RTCaller) execute(call rtCall) {
	defer close(call.done)
	defer func() {
		_ = recover()
	}()
	call.fn()
}

var _ api.Caller = (*RTCaller)(nil)
