// File: sched/sched.go
// Package sched is the default task-scheduler collaborator.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// The scheduler keeps a registry of tasks keyed by goroutine, resolves the
// calling task for the synchronization primitives, and implements the narrow
// priority-inheritance capability (Boost/Restore) the mutex drives. It does
// not define admission or time-slicing; real-time tasks are goroutines whose
// ordering guarantees come from the wait queues built on top of this
// registry.

package sched

import (
	"sync"

	"github.com/momentics/rtcore/api"
	"github.com/momentics/rtcore/internal/goid"
)

// Entry is the scheduler's record of one task. It implements api.TaskHandle.
type Entry struct {
	sched   *Sched
	name    string
	domain  api.Domain
	unblock func() bool

	mu      sync.Mutex
	base    int
	eff     int
	boosted bool
}

// Name returns the informational task name.
func (e *Entry) Name() string { return e.name }

// Priority returns the current effective priority.
func (e *Entry) Priority() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.eff
}

// BasePriority returns the priority the task was created with.
func (e *Entry) BasePriority() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.base
}

// Domain returns the execution domain the task runs in.
func (e *Entry) Domain() api.Domain { return e.domain }

// Sched is the goroutine-keyed task registry.
type Sched struct {
	mu   sync.Mutex
	byID map[uint64]*Entry
}

// New creates an empty scheduler registry.
func New() *Sched {
	return &Sched{byID: make(map[uint64]*Entry)}
}

// Adopt registers the calling goroutine as a task. The unblock callback, if
// non-nil, is invoked by Unblock to interrupt a blocked sleep.
func (s *Sched) Adopt(name string, priority int, domain api.Domain, unblock func() bool) *Entry {
	e := &Entry{
		sched:   s,
		name:    name,
		domain:  domain,
		unblock: unblock,
		base:    priority,
		eff:     priority,
	}
	s.mu.Lock()
	s.byID[goid.Current()] = e
	s.mu.Unlock()
	return e
}

// Leave removes the calling goroutine's registration.
func (s *Sched) Leave() {
	s.mu.Lock()
	delete(s.byID, goid.Current())
	s.mu.Unlock()
}

// Current resolves the task executing on the calling goroutine. Goroutines
// outside any registered task receive an implicit host-domain entry at base
// priority zero, so primitives can always attribute waits and ownership.
func (s *Sched) Current() api.TaskHandle {
	id := goid.Current()
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.byID[id]; ok {
		return e
	}
	e := &Entry{sched: s, name: "external", domain: api.NonRealtime}
	s.byID[id] = e
	return e
}

// CurrentDomain reports the execution domain of the calling goroutine.
func (s *Sched) CurrentDomain() api.Domain {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.byID[goid.Current()]; ok {
		return e.domain
	}
	return api.NonRealtime
}

// SetPriority changes the base priority of a task. A boosted task keeps its
// boost if it is still above the new base.
func (s *Sched) SetPriority(t api.TaskHandle, priority int) {
	e, ok := t.(*Entry)
	if !ok {
		return
	}
	e.mu.Lock()
	e.base = priority
	if !e.boosted || e.eff < priority {
		e.eff = priority
		e.boosted = false
	}
	e.mu.Unlock()
}

// Boost raises the effective priority of a task to at least priority.
func (s *Sched) Boost(t api.TaskHandle, priority int) {
	e, ok := t.(*Entry)
	if !ok {
		return
	}
	e.mu.Lock()
	if priority > e.eff {
		e.eff = priority
		e.boosted = true
	}
	e.mu.Unlock()
}

// Restore drops a boosted task back to its base priority.
func (s *Sched) Restore(t api.TaskHandle) {
	e, ok := t.(*Entry)
	if !ok {
		return
	}
	e.mu.Lock()
	e.eff = e.base
	e.boosted = false
	e.mu.Unlock()
}

// Unblock forcibly wakes a task blocked in a sleep or wait-period call.
func (s *Sched) Unblock(t api.TaskHandle) bool {
	e, ok := t.(*Entry)
	if !ok || e.unblock == nil {
		return false
	}
	return e.unblock()
}

var _ api.TaskScheduler = (*Sched)(nil)
