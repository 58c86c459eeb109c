// File: synch/semaphore.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Counting semaphore. The count is non-negative by construction: Up hands
// the unit directly to a blocked waiter when one exists, otherwise
// increments; Down never proceeds past zero without blocking.

package synch

import (
	"time"

	"github.com/momentics/rtcore/api"
)

// Semaphore is a counting semaphore with priority-ordered wakeups.
type Semaphore struct {
	base
	count uint
}

// NewSemaphore creates a semaphore with an initial count. A nil scheduler
// gets a private default.
func NewSemaphore(s api.TaskScheduler, value uint) *Semaphore {
	sem := &Semaphore{base: newBase(s), count: value}
	sem.sel.level = value > 0
	return sem
}

// Up releases one unit: wakes the highest-priority waiter if any is blocked,
// otherwise increments the count.
func (s *Semaphore) Up() {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return
	}
	if s.wakeOne(nil) == nil {
		s.count++
	}
	s.sel.pulse()
	s.sel.setLevel(s.count > 0)
	s.mu.Unlock()
}

// Down acquires one unit, blocking while the count is zero.
func (s *Semaphore) Down() error {
	return s.TimedDown(Infinite, nil)
}

// TimedDown is Down with a timeout (package conventions) or a shared
// deadline sequence.
func (s *Semaphore) TimedDown(timeout time.Duration, dl *Deadline) error {
	assertBlockable()
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return api.ErrRemoved
	}
	if s.count > 0 {
		s.count--
		s.sel.setLevel(s.count > 0)
		s.mu.Unlock()
		return nil
	}
	eff := effectiveTimeout(timeout, dl)
	if eff < 0 {
		s.mu.Unlock()
		return api.ErrTimeout
	}
	w := s.newWaiter()
	s.enqueue(w)
	s.mu.Unlock()
	return s.block(w, eff)
}

// SelectBind registers a readiness watcher on the semaphore.
func (s *Semaphore) SelectBind(sel *Selector, typ api.SelectType, index uint) error {
	if sel == nil {
		return api.ErrInvalidArgument
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed {
		return api.ErrRemoved
	}
	s.sel.bind(sel, typ, index)
	return nil
}

// Destroy forcibly wakes all waiters with ErrRemoved.
func (s *Semaphore) Destroy() {
	s.mu.Lock()
	if !s.destroyed {
		s.destroyed = true
		s.flush(api.ErrRemoved)
		s.sel.dropAll()
	}
	s.mu.Unlock()
}
