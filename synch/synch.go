// File: synch/synch.go
// Package synch implements the blocking synchronization primitives of the
// driver core: a priority-ordered wait-queue base and the Event, Semaphore
// and Mutex built on it, each optionally bound to the readiness multiplexer.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// The state word of every primitive (pending bit, count, owner) is mutated
// under the same short lock that serializes wait-queue mutation, so a signal
// racing with a newly arriving waiter is never lost. Nothing in this package
// is held across a blocking call.

package synch

import (
	"sync"
	"time"

	"github.com/momentics/rtcore/api"
	"github.com/momentics/rtcore/debug"
	"github.com/momentics/rtcore/irq"
	"github.com/momentics/rtcore/sched"
)

// Timeout conventions for TimedWait/TimedDown/TimedLock.
const (
	// Infinite blocks without bound.
	Infinite time.Duration = 0

	// NonBlocking attempts the operation and reports ErrTimeout instead of
	// blocking.
	NonBlocking time.Duration = -1
)

// waiter is one blocked caller, queued in priority order.
type waiter struct {
	task api.TaskHandle
	prio int
	ch   chan error
}

// base carries the wait queue, the destruction flag and the select block
// shared by all primitives. Its mutex also guards the derived state word.
type base struct {
	mu        sync.Mutex
	sched     api.TaskScheduler
	waiters   []*waiter
	destroyed bool
	sel       selectBlock
}

func newBase(s api.TaskScheduler) base {
	if s == nil {
		s = sched.New()
	}
	return base{sched: s}
}

// assertBlockable flags blocking calls made from interrupt-handler context.
func assertBlockable() {
	debug.Assert(!irq.InHandler(), "synch: blocking call from interrupt handler")
}

// newWaiter captures the calling task and its effective priority.
func (b *base) newWaiter() *waiter {
	t := b.sched.Current()
	prio := 0
	if t != nil {
		prio = t.Priority()
	}
	return &waiter{task: t, prio: prio, ch: make(chan error, 1)}
}

// enqueue inserts in descending priority order, FIFO within a priority.
// Callers hold b.mu.
func (b *base) enqueue(w *waiter) {
	i := len(b.waiters)
	for i > 0 && b.waiters[i-1].prio < w.prio {
		i--
	}
	b.waiters = append(b.waiters, nil)
	copy(b.waiters[i+1:], b.waiters[i:])
	b.waiters[i] = w
}

// remove takes a waiter out of the queue, reporting whether it was still
// queued. Callers hold b.mu.
func (b *base) remove(w *waiter) bool {
	for i, q := range b.waiters {
		if q == w {
			b.waiters = append(b.waiters[:i], b.waiters[i+1:]...)
			return true
		}
	}
	return false
}

// wakeOne pops and wakes the highest-priority waiter. Callers hold b.mu.
func (b *base) wakeOne(reason error) *waiter {
	if len(b.waiters) == 0 {
		return nil
	}
	w := b.waiters[0]
	b.waiters = b.waiters[1:]
	w.ch <- reason
	return w
}

// flush wakes every queued waiter with the given reason. Callers hold b.mu.
func (b *base) flush(reason error) int {
	n := len(b.waiters)
	for _, w := range b.waiters {
		w.ch <- reason
	}
	b.waiters = b.waiters[:0]
	return n
}

// block parks the caller on w until woken or the timeout elapses. b.mu must
// NOT be held. timeout follows the Infinite/NonBlocking conventions; callers
// handle NonBlocking before enqueueing.
func (b *base) block(w *waiter, timeout time.Duration) error {
	if timeout == Infinite {
		return <-w.ch
	}
	tm := time.NewTimer(timeout)
	defer tm.Stop()
	select {
	case reason := <-w.ch:
		return reason
	case <-tm.C:
		b.mu.Lock()
		if b.remove(w) {
			b.mu.Unlock()
			return api.ErrTimeout
		}
		b.mu.Unlock()
		// Lost the race with a waker: the wakeup is already in flight and
		// must not be swallowed.
		return <-w.ch
	}
}

// effectiveTimeout folds an optional deadline into a timeout value.
func effectiveTimeout(timeout time.Duration, dl *Deadline) time.Duration {
	if dl != nil {
		return dl.remaining()
	}
	if timeout < 0 {
		return NonBlocking
	}
	return timeout
}
