// File: timer/timer.go
// Package timer provides one-shot and periodic deadline objects dispatched
// from a dedicated real-time service goroutine.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// A Service owns a deadline-ordered heap of armed timers. Three time bases
// are supported: relative to now, absolute monotonic, and absolute
// wall-clock (adjustable). Handlers execute on the service goroutine and
// must not block; each timer has at most one pending expiry.

package timer

import (
	"container/heap"
	"sync"
	"time"

	"github.com/momentics/rtcore/api"
	"github.com/momentics/rtcore/internal/concurrency"
)

// Handler is invoked on timer expiry, on the service goroutine.
type Handler func(*Timer)

// Timer is a one-shot or periodic deadline object.
type Timer struct {
	svc     *Service
	name    string
	handler Handler

	// All fields below are guarded by svc.mu.
	mode       api.TimerMode
	interval   time.Duration
	deadline   int64 // monotonic ns
	targetReal int64 // wall ns, Realtime mode only
	armed      bool
	dead       bool
	idx        int

	fires int64
}

// Name returns the informational timer name.
func (t *Timer) Name() string { return t.name }

// Fires returns the number of expiries dispatched so far.
func (t *Timer) Fires() int64 {
	t.svc.mu.Lock()
	defer t.svc.mu.Unlock()
	return t.fires
}

// Start arms the timer. expiry is interpreted per mode: an offset from now
// (TimerRelative, nanoseconds), an absolute monotonic timestamp
// (TimerAbsolute), or an absolute wall-clock timestamp (TimerRealtime).
// interval == 0 arms a one-shot. Restarting an armed timer moves its
// deadline.
func (t *Timer) Start(expiry int64, interval time.Duration, mode api.TimerMode) error {
	if interval < 0 {
		return api.ErrInvalidArgument
	}
	s := t.svc
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.dead {
		return api.ErrRemoved
	}
	t.mode = mode
	t.interval = interval
	switch mode {
	case api.TimerRelative:
		t.deadline = s.clk.Monotonic() + expiry
	case api.TimerAbsolute:
		t.deadline = expiry
	case api.TimerRealtime:
		t.targetReal = expiry
		t.deadline = s.clk.Monotonic() + (expiry - s.clk.Realtime())
	default:
		return api.ErrInvalidArgument
	}
	if t.armed {
		heap.Fix(&s.timers, t.idx)
	} else {
		t.armed = true
		heap.Push(&s.timers, t)
	}
	s.kick()
	return nil
}

// Stop disarms the timer. Stopping an already-fired one-shot is a no-op.
func (t *Timer) Stop() {
	s := t.svc
	s.mu.Lock()
	if t.armed {
		heap.Remove(&s.timers, t.idx)
		t.armed = false
		s.kick()
	}
	s.mu.Unlock()
}

// Destroy disarms the timer and detaches it from the service for good.
func (t *Timer) Destroy() {
	s := t.svc
	s.mu.Lock()
	if t.armed {
		heap.Remove(&s.timers, t.idx)
		t.armed = false
	}
	t.dead = true
	s.kick()
	s.mu.Unlock()
}

// timerHeap orders armed timers by monotonic deadline.
type timerHeap []*Timer

func (h timerHeap) Len() int            { return len(h) }
func (h timerHeap) Less(i, j int) bool  { return h[i].deadline < h[j].deadline }
func (h timerHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i]; h[i].idx = i; h[j].idx = j }
func (h *timerHeap) Push(x any)         { t := x.(*Timer); t.idx = len(*h); *h = append(*h, t) }
func (h *timerHeap) Pop() any           { old := *h; n := len(old); t := old[n-1]; old[n-1] = nil; *h = old[:n-1]; return t }

// Service dispatches timer expiries from one goroutine.
type Service struct {
	clk api.Clock

	mu     sync.Mutex
	timers timerHeap

	wake   chan struct{}
	stop   chan struct{}
	exited chan struct{}
}

// NewService starts the timer service. cpu >= 0 pins the service thread;
// onStart, if non-nil, runs first on the service goroutine (used to adopt it
// into the scheduler registry as a real-time task).
func NewService(clk api.Clock, cpu int, onStart func()) *Service {
	s := &Service{
		clk:    clk,
		wake:   make(chan struct{}, 1),
		stop:   make(chan struct{}),
		exited: make(chan struct{}),
	}
	go s.run(cpu, onStart)
	return s
}

// NewTimer creates a disarmed timer bound to this service.
func (s *Service) NewTimer(name string, h Handler) *Timer {
	return &Timer{svc: s, name: name, handler: h, idx: -1}
}

// Close stops the service. Armed timers never fire again.
func (s *Service) Close() {
	close(s.stop)
	<-s.exited
}

// kick wakes the dispatch loop after a heap mutation. Callers hold s.mu.
func (s *Service) kick() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Service) run(cpu int, onStart func()) {
	defer close(s.exited)
	if cpu >= 0 {
		_ = concurrency.PinThread(cpu)
	}
	if onStart != nil {
		onStart()
	}
	for {
		s.mu.Lock()
		if len(s.timers) == 0 {
			s.mu.Unlock()
			select {
			case <-s.wake:
				continue
			case <-s.stop:
				return
			}
		}

		t := s.timers[0]
		now := s.clk.Monotonic()

		// Adjustable timers track the wall clock: re-derive the monotonic
		// deadline from the wall-clock target before trusting the heap order.
		if t.mode == api.TimerRealtime {
			adjusted := now + (t.targetReal - s.clk.Realtime())
			if diff := adjusted - t.deadline; diff > int64(time.Millisecond) || diff < -int64(time.Millisecond) {
				t.deadline = adjusted
				heap.Fix(&s.timers, t.idx)
				s.mu.Unlock()
				continue
			}
		}

		if t.deadline <= now {
			if t.interval > 0 {
				t.deadline += int64(t.interval)
				for t.deadline <= now {
					t.deadline += int64(t.interval)
				}
				if t.mode == api.TimerRealtime {
					t.targetReal += int64(t.interval)
					for t.targetReal <= s.clk.Realtime() {
						t.targetReal += int64(t.interval)
					}
				}
				heap.Fix(&s.timers, t.idx)
			} else {
				heap.Remove(&s.timers, t.idx)
				t.armed = false
			}
			t.fires++
			h := t.handler
			s.mu.Unlock()
			if h != nil {
				h(t)
			}
			continue
		}

		wait := time.Duration(t.deadline - now)
		s.mu.Unlock()
		tm := time.NewTimer(wait)
		select {
		case <-tm.C:
		case <-s.wake:
			tm.Stop()
		case <-s.stop:
			tm.Stop()
			return
		}
	}
}
