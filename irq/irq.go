// File: irq/irq.go
// Package irq implements interrupt-line registration and dispatch.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Lines are software-triggered: driver glue, timers or tests call
// Space.Trigger to inject an interrupt. Handlers run on the triggering
// goroutine, which counts as interrupt context for the duration of the
// dispatch; blocking synchronization calls from a handler are a convention
// violation backed by debug assertions in the synch package.

package irq

import (
	"sync"

	"github.com/momentics/rtcore/api"
	"github.com/momentics/rtcore/debug"
	"github.com/momentics/rtcore/internal/goid"
)

// Status is the return value of an interrupt handler.
type Status int

const (
	// None reports an unhandled interrupt. On a shared line the next
	// registered handler runs.
	None Status = iota

	// Handled reports a serviced interrupt.
	Handled
)

// Flag holds interrupt registration flags.
type Flag uint

const (
	// Shared enables IRQ sharing with other handlers on the same line.
	Shared Flag = 1 << iota

	// Edge marks the line edge-triggered, which changes how "unhandled"
	// is interpreted on shared lines.
	Edge
)

// Handler services one interrupt. It must not block.
type Handler func(*Line) Status

// inHandler tracks goroutines currently dispatching an interrupt, so that
// blocking primitives can assert they are not called from handler context.
var inHandler sync.Map // goroutine id -> struct{}

// InHandler reports whether the calling goroutine is inside an interrupt
// handler dispatch.
func InHandler() bool {
	_, ok := inHandler.Load(goid.Current())
	return ok
}

// Line is one handler registration on an interrupt line.
type Line struct {
	space   *Space
	no      uint
	handler Handler
	flags   Flag
	owner   string
	cookie  any
	enabled bool // guarded by space.mu
	freed   bool // guarded by space.mu
}

// Cookie returns the opaque argument passed at registration.
func (l *Line) Cookie() any { return l.cookie }

// Owner returns the owner label passed at registration.
func (l *Line) Owner() string { return l.owner }

// IRQ returns the line number.
func (l *Line) IRQ() uint { return l.no }

// Space is a registry of interrupt lines.
type Space struct {
	mu       sync.RWMutex
	lines    map[uint][]*Line
	dispatch sync.WaitGroup // in-flight Trigger calls
}

// NewSpace creates an empty interrupt-line registry.
func NewSpace() *Space {
	return &Space{lines: make(map[uint][]*Line)}
}

// Request registers a handler for a line and enables delivery. All handlers
// sharing a line must request it with the Shared flag; a second registration
// on a non-shared line fails with ErrBusy.
func (s *Space) Request(irqNo uint, h Handler, flags Flag, owner string, cookie any) (*Line, error) {
	if h == nil {
		return nil, api.ErrInvalidArgument
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	regs := s.lines[irqNo]
	if len(regs) > 0 {
		if flags&Shared == 0 || regs[0].flags&Shared == 0 {
			return nil, api.ErrBusy
		}
	}
	l := &Line{
		space:   s,
		no:      irqNo,
		handler: h,
		flags:   flags,
		owner:   owner,
		cookie:  cookie,
		enabled: true,
	}
	s.lines[irqNo] = append(regs, l)
	return l, nil
}

// Enable resumes delivery to this registration.
func (l *Line) Enable() error {
	l.space.mu.Lock()
	defer l.space.mu.Unlock()
	if l.freed {
		return api.ErrRemoved
	}
	l.enabled = true
	return nil
}

// Disable suspends delivery to this registration. An in-flight dispatch on
// another goroutine may still complete.
func (l *Line) Disable() error {
	l.space.mu.Lock()
	defer l.space.mu.Unlock()
	if l.freed {
		return api.ErrRemoved
	}
	l.enabled = false
	return nil
}

// Free deregisters the handler. Free synchronizes with dispatch: once it
// returns, the handler is guaranteed not to be invoked again. It must not be
// called from handler context; a handler wanting out of the chain calls
// Disable instead.
func (l *Line) Free() error {
	debug.Assert(!InHandler(), "irq: Free called from handler context")
	l.space.mu.Lock()
	if l.freed {
		l.space.mu.Unlock()
		return api.ErrRemoved
	}
	l.freed = true
	regs := l.space.lines[l.no]
	for i, r := range regs {
		if r == l {
			regs = append(regs[:i], regs[i+1:]...)
			break
		}
	}
	if len(regs) == 0 {
		delete(l.space.lines, l.no)
	} else {
		l.space.lines[l.no] = regs
	}
	l.space.mu.Unlock()
	// Drain dispatches started before the removal. Skipped inside a handler,
	// where waiting on our own dispatch could never finish.
	if !InHandler() {
		l.space.dispatch.Wait()
	}
	return nil
}

// maxEdgePasses bounds re-dispatch on shared edge-triggered lines.
const maxEdgePasses = 32

// Trigger injects an interrupt on a line and runs its handler chain.
// On a shared level line the chain stops at the first handler reporting
// Handled; on a shared edge line the full chain re-runs until a pass
// completes with no handler reporting Handled, so edges observed while
// another handler ran are not lost.
// Handlers run outside the registry lock so they may call Enable or Disable
// on their own line; each line's delivery state is re-read under a short
// lock right before its handler runs.
func (s *Space) Trigger(irqNo uint) Status {
	s.mu.RLock()
	chain := s.lines[irqNo]
	if len(chain) == 0 {
		s.mu.RUnlock()
		return None
	}
	regs := make([]*Line, len(chain))
	copy(regs, chain)
	edge := regs[0].flags&Edge != 0 && regs[0].flags&Shared != 0
	s.dispatch.Add(1)
	s.mu.RUnlock()
	defer s.dispatch.Done()

	id := goid.Current()
	inHandler.Store(id, struct{}{})
	defer inHandler.Delete(id)

	result := None
	for pass := 0; pass < maxEdgePasses; pass++ {
		handledThisPass := false
		for _, l := range regs {
			s.mu.RLock()
			deliver := l.enabled && !l.freed
			s.mu.RUnlock()
			if !deliver {
				continue
			}
			if l.handler(l) == Handled {
				result = Handled
				handledThisPass = true
				if !edge {
					break
				}
			}
		}
		if !edge || !handledThisPass {
			break
		}
	}
	return result
}
