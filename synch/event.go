// File: synch/event.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Event: sticky pending bit with test-and-clear wait semantics. One signal
// wakes exactly one waiter (or everyone when configured broadcast); a signal
// with no waiters is latched in the pending bit for the next wait.

package synch

import (
	"time"

	"github.com/momentics/rtcore/api"
)

// Event is a sticky-bit notification primitive.
type Event struct {
	base
	pending   bool
	broadcast bool
}

// EventOption configures an Event at creation.
type EventOption func(*Event)

// WithPending creates the event already signaled.
func WithPending() EventOption {
	return func(e *Event) { e.pending = true }
}

// WithBroadcast makes every signal wake all current waiters instead of one.
func WithBroadcast() EventOption {
	return func(e *Event) { e.broadcast = true }
}

// NewEvent creates an event. A nil scheduler gets a private default.
func NewEvent(s api.TaskScheduler, opts ...EventOption) *Event {
	e := &Event{base: newBase(s)}
	for _, opt := range opts {
		opt(e)
	}
	e.sel.level = e.pending
	return e
}

// Signal sets the pending bit and wakes one waiter (all when broadcast).
// A waiter consumes the signal directly; the bit only latches when nobody
// is blocked. Never loses a signal racing with an arriving waiter.
func (e *Event) Signal() {
	e.mu.Lock()
	if e.destroyed {
		e.mu.Unlock()
		return
	}
	woke := false
	if e.broadcast {
		woke = e.flush(nil) > 0
	} else {
		woke = e.wakeOne(nil) != nil
	}
	if !woke {
		e.pending = true
	}
	e.sel.pulse()
	e.sel.setLevel(e.pending)
	e.mu.Unlock()
}

// Pulse wakes everyone currently blocked without setting the sticky bit, so
// late arrivals do not observe a stale signal.
func (e *Event) Pulse() {
	e.mu.Lock()
	if !e.destroyed {
		e.flush(nil)
		e.sel.pulse()
	}
	e.mu.Unlock()
}

// Clear resets the pending bit without waking anyone.
func (e *Event) Clear() {
	e.mu.Lock()
	if !e.destroyed {
		e.pending = false
		e.sel.setLevel(false)
	}
	e.mu.Unlock()
}

// Wait blocks until the event is signaled, then clears the bit atomically.
func (e *Event) Wait() error {
	return e.TimedWait(Infinite, nil)
}

// TimedWait is Wait with a timeout (package conventions) or a shared
// deadline sequence. Expiry reports ErrTimeout; destruction under the caller
// reports ErrRemoved.
func (e *Event) TimedWait(timeout time.Duration, dl *Deadline) error {
	assertBlockable()
	e.mu.Lock()
	if e.destroyed {
		e.mu.Unlock()
		return api.ErrRemoved
	}
	if e.pending {
		e.pending = false
		e.sel.setLevel(false)
		e.mu.Unlock()
		return nil
	}
	eff := effectiveTimeout(timeout, dl)
	if eff < 0 {
		e.mu.Unlock()
		return api.ErrTimeout
	}
	w := e.newWaiter()
	e.enqueue(w)
	e.mu.Unlock()
	return e.block(w, eff)
}

// SelectBind registers a readiness watcher on the event.
func (e *Event) SelectBind(sel *Selector, typ api.SelectType, index uint) error {
	if sel == nil {
		return api.ErrInvalidArgument
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.destroyed {
		return api.ErrRemoved
	}
	e.sel.bind(sel, typ, index)
	return nil
}

// Destroy forcibly wakes all waiters with ErrRemoved. Further operations on
// the event fail the same way.
func (e *Event) Destroy() {
	e.mu.Lock()
	if !e.destroyed {
		e.destroyed = true
		e.pending = false
		e.flush(api.ErrRemoved)
		e.sel.dropAll()
	}
	e.mu.Unlock()
}
