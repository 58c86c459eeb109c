// File: synch/select.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Readiness multiplexer. Each primitive owns a selectBlock holding its
// watcher registrations; a Selector aggregates readiness edges from many
// primitives for one polling caller. Edges are latched so a transition that
// is consumed between two polls is still reported exactly once; level state
// is re-reported while it holds, matching select semantics.

package synch

import (
	"sync"
	"time"

	"github.com/momentics/rtcore/api"
)

// Ready identifies one ready binding: the opaque index given at bind time
// plus the event class.
type Ready struct {
	Index uint
	Type  api.SelectType
}

// Selector multiplexes readiness over any number of bound primitives.
type Selector struct {
	mu      sync.Mutex
	level   map[Ready]bool
	latched map[Ready]bool
	removed bool
	notify  chan struct{}
}

// NewSelector creates an empty selector.
func NewSelector() *Selector {
	return &Selector{
		level:   make(map[Ready]bool),
		latched: make(map[Ready]bool),
		notify:  make(chan struct{}, 1),
	}
}

func (s *Selector) kick() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// post records a readiness level change from a bound primitive.
func (s *Selector) post(key Ready, ready bool) {
	s.mu.Lock()
	s.level[key] = ready
	if ready {
		s.latched[key] = true
		s.kick()
	}
	s.mu.Unlock()
}

// pulse records a transient readiness edge without a level change.
func (s *Selector) pulse(key Ready) {
	s.mu.Lock()
	s.latched[key] = true
	s.kick()
	s.mu.Unlock()
}

// drop reports that a bound primitive was destroyed.
func (s *Selector) drop() {
	s.mu.Lock()
	s.removed = true
	s.kick()
	s.mu.Unlock()
}

// collect returns the currently reportable set. Callers hold s.mu.
func (s *Selector) collect() []Ready {
	var out []Ready
	for key, ok := range s.level {
		if ok {
			out = append(out, key)
			delete(s.latched, key)
		}
	}
	for key := range s.latched {
		out = append(out, key)
		delete(s.latched, key)
	}
	return out
}

// Wait blocks until at least one bound primitive is ready, the timeout
// elapses (ErrTimeout), or a bound primitive is destroyed (ErrRemoved).
// The timeout follows the package conventions.
func (s *Selector) Wait(timeout time.Duration) ([]Ready, error) {
	assertBlockable()
	var tm *time.Timer
	var expiry <-chan time.Time
	if timeout > 0 {
		tm = time.NewTimer(timeout)
		expiry = tm.C
		defer tm.Stop()
	}
	for {
		s.mu.Lock()
		if s.removed {
			s.mu.Unlock()
			return nil, api.ErrRemoved
		}
		if ready := s.collect(); len(ready) > 0 {
			s.mu.Unlock()
			return ready, nil
		}
		s.mu.Unlock()

		if timeout < 0 {
			return nil, api.ErrTimeout
		}
		select {
		case <-s.notify:
		case <-expiry:
			return nil, api.ErrTimeout
		}
	}
}

// binding ties one selector registration to a primitive's select block.
type binding struct {
	sel *Selector
	key Ready
}

// selectBlock is the per-primitive watcher registry. It is guarded by the
// owning primitive's lock.
type selectBlock struct {
	bindings []binding
	level    bool
}

// bind registers a watcher and immediately reports the current level.
func (sb *selectBlock) bind(sel *Selector, typ api.SelectType, index uint) {
	b := binding{sel: sel, key: Ready{Index: index, Type: typ}}
	sb.bindings = append(sb.bindings, b)
	sel.post(b.key, sb.level)
}

// setLevel publishes a readiness level change to every watcher.
func (sb *selectBlock) setLevel(ready bool) {
	if sb.level == ready {
		return
	}
	sb.level = ready
	for _, b := range sb.bindings {
		b.sel.post(b.key, ready)
	}
}

// pulse publishes a transient wakeup edge to every watcher.
func (sb *selectBlock) pulse() {
	for _, b := range sb.bindings {
		b.sel.pulse(b.key)
	}
}

// dropAll reports destruction to every watcher and forgets the bindings.
func (sb *selectBlock) dropAll() {
	for _, b := range sb.bindings {
		b.sel.drop()
	}
	sb.bindings = nil
}
