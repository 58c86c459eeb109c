// File: irq/irq_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package irq

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/momentics/rtcore/api"
)

func TestRequestAndTrigger(t *testing.T) {
	s := NewSpace()
	var calls atomic.Int32
	l, err := s.Request(5, func(l *Line) Status {
		calls.Add(1)
		return Handled
	}, 0, "test", nil)
	if err != nil {
		t.Fatalf("request: %v", err)
	}

	if got := s.Trigger(5); got != Handled {
		t.Fatalf("trigger: got %v, want Handled", got)
	}
	if calls.Load() != 1 {
		t.Fatalf("handler ran %d times, want 1", calls.Load())
	}
	if err := l.Free(); err != nil {
		t.Fatalf("free: %v", err)
	}
}

func TestNilHandlerRejected(t *testing.T) {
	s := NewSpace()
	if _, err := s.Request(1, nil, 0, "test", nil); err != api.ErrInvalidArgument {
		t.Fatalf("got %v, want ErrInvalidArgument", err)
	}
}

func TestSharingRequiresSharedFlag(t *testing.T) {
	s := NewSpace()
	h := func(*Line) Status { return Handled }
	if _, err := s.Request(2, h, 0, "first", nil); err != nil {
		t.Fatalf("first request: %v", err)
	}
	if _, err := s.Request(2, h, Shared, "second", nil); err != api.ErrBusy {
		t.Fatalf("second request: got %v, want ErrBusy", err)
	}
}

func TestSharedChainStopsAtHandled(t *testing.T) {
	s := NewSpace()
	var first, second atomic.Int32
	if _, err := s.Request(3, func(*Line) Status {
		first.Add(1)
		return Handled
	}, Shared, "a", nil); err != nil {
		t.Fatalf("request a: %v", err)
	}
	if _, err := s.Request(3, func(*Line) Status {
		second.Add(1)
		return Handled
	}, Shared, "b", nil); err != nil {
		t.Fatalf("request b: %v", err)
	}

	s.Trigger(3)
	if first.Load() != 1 || second.Load() != 0 {
		t.Fatalf("level chain ran a=%d b=%d, want 1 and 0", first.Load(), second.Load())
	}
}

func TestSharedChainFallsThroughOnNone(t *testing.T) {
	s := NewSpace()
	var second atomic.Int32
	if _, err := s.Request(4, func(*Line) Status { return None }, Shared, "a", nil); err != nil {
		t.Fatalf("request a: %v", err)
	}
	if _, err := s.Request(4, func(*Line) Status {
		second.Add(1)
		return Handled
	}, Shared, "b", nil); err != nil {
		t.Fatalf("request b: %v", err)
	}

	if got := s.Trigger(4); got != Handled {
		t.Fatalf("trigger: got %v, want Handled", got)
	}
	if second.Load() != 1 {
		t.Fatalf("fallthrough handler ran %d times, want 1", second.Load())
	}
}

func TestEdgeSharedRedispatches(t *testing.T) {
	s := NewSpace()
	// The first handler reports an edge once; the chain must re-run until a
	// pass completes with nothing handled.
	var passes atomic.Int32
	if _, err := s.Request(6, func(*Line) Status {
		if passes.Add(1) == 1 {
			return Handled
		}
		return None
	}, Shared|Edge, "edge", nil); err != nil {
		t.Fatalf("request: %v", err)
	}

	if got := s.Trigger(6); got != Handled {
		t.Fatalf("trigger: got %v, want Handled", got)
	}
	if passes.Load() != 2 {
		t.Fatalf("chain ran %d passes, want 2", passes.Load())
	}
}

func TestDisableSuppressesDelivery(t *testing.T) {
	s := NewSpace()
	var calls atomic.Int32
	l, err := s.Request(7, func(*Line) Status {
		calls.Add(1)
		return Handled
	}, 0, "toggle", nil)
	if err != nil {
		t.Fatalf("request: %v", err)
	}

	if err := l.Disable(); err != nil {
		t.Fatalf("disable: %v", err)
	}
	if got := s.Trigger(7); got != None {
		t.Fatalf("disabled trigger: got %v, want None", got)
	}
	if err := l.Enable(); err != nil {
		t.Fatalf("enable: %v", err)
	}
	s.Trigger(7)
	if calls.Load() != 1 {
		t.Fatalf("handler ran %d times, want 1", calls.Load())
	}
}

func TestFreedLineNeverRuns(t *testing.T) {
	s := NewSpace()
	var calls atomic.Int32
	l, err := s.Request(8, func(*Line) Status {
		calls.Add(1)
		return Handled
	}, 0, "freed", nil)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if err := l.Free(); err != nil {
		t.Fatalf("free: %v", err)
	}
	if got := s.Trigger(8); got != None {
		t.Fatalf("trigger after free: got %v, want None", got)
	}
	if calls.Load() != 0 {
		t.Fatal("freed handler still ran")
	}
	if err := l.Free(); err != api.ErrRemoved {
		t.Fatalf("double free: got %v, want ErrRemoved", err)
	}
}

func TestHandlerMayDisableOwnLine(t *testing.T) {
	s := NewSpace()
	var calls atomic.Int32
	l, err := s.Request(11, func(l *Line) Status {
		calls.Add(1)
		if err := l.Disable(); err != nil {
			t.Errorf("disable from handler: %v", err)
		}
		return Handled
	}, 0, "oneshot", nil)
	if err != nil {
		t.Fatalf("request: %v", err)
	}

	// The call must complete instead of deadlocking on the registry lock.
	done := make(chan Status, 1)
	go func() { done <- s.Trigger(11) }()
	select {
	case got := <-done:
		if got != Handled {
			t.Fatalf("trigger: got %v, want Handled", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("trigger blocked on a handler touching its own line")
	}

	if got := s.Trigger(11); got != None {
		t.Fatalf("trigger after self-disable: got %v, want None", got)
	}
	if calls.Load() != 1 {
		t.Fatalf("handler ran %d times, want 1", calls.Load())
	}
	if err := l.Enable(); err != nil {
		t.Fatalf("re-enable: %v", err)
	}
	if got := s.Trigger(11); got != Handled {
		t.Fatalf("trigger after re-enable: got %v, want Handled", got)
	}
}

func TestInHandlerMarksDispatchContext(t *testing.T) {
	s := NewSpace()
	var inside, outside bool
	if _, err := s.Request(9, func(*Line) Status {
		inside = InHandler()
		return Handled
	}, 0, "ctx", nil); err != nil {
		t.Fatalf("request: %v", err)
	}
	s.Trigger(9)
	outside = InHandler()
	if !inside {
		t.Fatal("InHandler false during dispatch")
	}
	if outside {
		t.Fatal("InHandler true outside dispatch")
	}
}

func TestCookieAndOwner(t *testing.T) {
	s := NewSpace()
	cookie := &struct{ n int }{n: 42}
	var got any
	l, err := s.Request(10, func(l *Line) Status {
		got = l.Cookie()
		return Handled
	}, 0, "drv0", cookie)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	s.Trigger(10)
	if got != cookie {
		t.Fatal("cookie not delivered to handler")
	}
	if l.Owner() != "drv0" || l.IRQ() != 10 {
		t.Fatalf("line metadata owner=%q irq=%d", l.Owner(), l.IRQ())
	}
}
