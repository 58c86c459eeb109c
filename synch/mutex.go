// File: synch/mutex.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Priority-inheriting mutex. While a high-priority task is blocked on the
// lock, the current owner runs at that waiter's priority so it cannot be
// starved by middle-priority work; ownership transfers directly to the
// highest-priority waiter on unlock.

package synch

import (
	"time"

	"github.com/momentics/rtcore/api"
	"github.com/momentics/rtcore/debug"
)

// Mutex is a non-recursive mutual exclusion lock with priority inheritance
// and priority-ordered ownership handoff.
type Mutex struct {
	base
	owner api.TaskHandle
}

// NewMutex creates a mutex. A nil scheduler gets a private default.
func NewMutex(s api.TaskScheduler) *Mutex {
	return &Mutex{base: newBase(s)}
}

// Lock acquires the mutex, blocking while another task owns it. Relocking
// from the owning task reports ErrWouldDeadlock instead of hanging.
func (m *Mutex) Lock() error {
	return m.TimedLock(Infinite, nil)
}

// TimedLock is Lock with a timeout (package conventions) or a shared
// deadline sequence.
func (m *Mutex) TimedLock(timeout time.Duration, dl *Deadline) error {
	assertBlockable()
	cur := m.sched.Current()
	m.mu.Lock()
	if m.destroyed {
		m.mu.Unlock()
		return api.ErrRemoved
	}
	if m.owner == nil {
		m.owner = cur
		m.mu.Unlock()
		return nil
	}
	if m.owner == cur {
		m.mu.Unlock()
		return api.ErrWouldDeadlock
	}
	eff := effectiveTimeout(timeout, dl)
	if eff < 0 {
		m.mu.Unlock()
		return api.ErrTimeout
	}
	w := m.newWaiter()
	m.enqueue(w)
	m.inherit()
	m.mu.Unlock()

	if eff == Infinite {
		return <-w.ch
	}
	tm := time.NewTimer(eff)
	defer tm.Stop()
	select {
	case reason := <-w.ch:
		return reason
	case <-tm.C:
		m.mu.Lock()
		if m.remove(w) {
			m.inherit()
			m.mu.Unlock()
			return api.ErrTimeout
		}
		m.mu.Unlock()
		// Handoff already in flight: we own the lock (or it was destroyed).
		return <-w.ch
	}
}

// Unlock releases the mutex. Ownership passes directly to the
// highest-priority waiter; the outgoing owner's inherited priority is
// dropped back to its base.
func (m *Mutex) Unlock() {
	cur := m.sched.Current()
	m.mu.Lock()
	if m.destroyed {
		m.mu.Unlock()
		return
	}
	debug.Assert(m.owner == cur, "synch: mutex unlocked by non-owner")
	if m.owner != cur {
		// Caller bug. Absorbed in release builds; the real holder keeps
		// the lock.
		m.mu.Unlock()
		return
	}
	prev := m.owner
	if len(m.waiters) > 0 {
		next := m.waiters[0]
		m.waiters = m.waiters[1:]
		m.owner = next.task
		m.inherit()
		next.ch <- nil
	} else {
		m.owner = nil
	}
	m.mu.Unlock()
	if prev != nil {
		m.sched.Restore(prev)
	}
}

// Owner reports the current owning task, or nil when unlocked.
func (m *Mutex) Owner() api.TaskHandle {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.owner
}

// inherit recomputes the owner's inherited priority from the head of the
// wait queue. Callers hold m.mu.
func (m *Mutex) inherit() {
	if m.owner == nil {
		return
	}
	m.sched.Restore(m.owner)
	if len(m.waiters) > 0 && m.waiters[0].prio > m.owner.Priority() {
		m.sched.Boost(m.owner, m.waiters[0].prio)
	}
}

// Destroy forcibly wakes all waiters with ErrRemoved. The owner, if any,
// keeps its restored base priority.
func (m *Mutex) Destroy() {
	m.mu.Lock()
	if !m.destroyed {
		m.destroyed = true
		if m.owner != nil {
			m.sched.Restore(m.owner)
			m.owner = nil
		}
		m.flush(api.ErrRemoved)
		m.sel.dropAll()
	}
	m.mu.Unlock()
}
