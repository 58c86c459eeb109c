// File: synch/event_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package synch

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/momentics/rtcore/api"
)

func TestEventStickySignal(t *testing.T) {
	e := NewEvent(nil)
	e.Signal()

	if err := e.Wait(); err != nil {
		t.Fatalf("wait after signal: %v", err)
	}
	// The bit was cleared by the first wait.
	if err := e.TimedWait(NonBlocking, nil); err != api.ErrTimeout {
		t.Fatalf("second wait: got %v, want ErrTimeout", err)
	}
}

func TestEventSignalWakesExactlyOne(t *testing.T) {
	e := NewEvent(nil)
	var woken atomic.Int32
	for i := 0; i < 2; i++ {
		go func() {
			if err := e.Wait(); err == nil {
				woken.Add(1)
			}
		}()
	}
	time.Sleep(20 * time.Millisecond)

	e.Signal()
	time.Sleep(20 * time.Millisecond)
	if n := woken.Load(); n != 1 {
		t.Fatalf("after one signal: %d woken, want 1", n)
	}

	e.Signal()
	time.Sleep(20 * time.Millisecond)
	if n := woken.Load(); n != 2 {
		t.Fatalf("after two signals: %d woken, want 2", n)
	}
}

func TestEventBroadcast(t *testing.T) {
	e := NewEvent(nil, WithBroadcast())
	var woken atomic.Int32
	for i := 0; i < 3; i++ {
		go func() {
			if err := e.Wait(); err == nil {
				woken.Add(1)
			}
		}()
	}
	time.Sleep(20 * time.Millisecond)

	e.Signal()
	time.Sleep(20 * time.Millisecond)
	if n := woken.Load(); n != 3 {
		t.Fatalf("broadcast woke %d, want 3", n)
	}
}

func TestEventPulseIsNotSticky(t *testing.T) {
	e := NewEvent(nil)
	var woken atomic.Int32
	go func() {
		if err := e.Wait(); err == nil {
			woken.Add(1)
		}
	}()
	time.Sleep(20 * time.Millisecond)

	e.Pulse()
	time.Sleep(20 * time.Millisecond)
	if n := woken.Load(); n != 1 {
		t.Fatalf("pulse woke %d, want 1", n)
	}
	// A late arrival must not observe a stale signal.
	if err := e.TimedWait(NonBlocking, nil); err != api.ErrTimeout {
		t.Fatalf("wait after pulse: got %v, want ErrTimeout", err)
	}
}

func TestEventWithPendingAndClear(t *testing.T) {
	e := NewEvent(nil, WithPending())
	if err := e.TimedWait(NonBlocking, nil); err != nil {
		t.Fatalf("initial pending not observed: %v", err)
	}

	e.Signal()
	e.Clear()
	if err := e.TimedWait(NonBlocking, nil); err != api.ErrTimeout {
		t.Fatalf("wait after clear: got %v, want ErrTimeout", err)
	}
}

func TestEventTimeout(t *testing.T) {
	e := NewEvent(nil)
	start := time.Now()
	if err := e.TimedWait(30*time.Millisecond, nil); err != api.ErrTimeout {
		t.Fatalf("got %v, want ErrTimeout", err)
	}
	if time.Since(start) < 20*time.Millisecond {
		t.Fatal("timed wait returned too early")
	}
}

func TestEventDestroyWakesWaitersWithRemoved(t *testing.T) {
	e := NewEvent(nil)
	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() { results <- e.TimedWait(time.Second, nil) }()
	}
	time.Sleep(20 * time.Millisecond)

	e.Destroy()
	for i := 0; i < 2; i++ {
		if err := <-results; err != api.ErrRemoved {
			t.Fatalf("waiter %d: got %v, want ErrRemoved", i, err)
		}
	}
	if err := e.Wait(); err != api.ErrRemoved {
		t.Fatalf("wait after destroy: got %v, want ErrRemoved", err)
	}
}

func TestEventDeadlineSequence(t *testing.T) {
	e := NewEvent(nil)
	dl := NewDeadline(40 * time.Millisecond)
	if err := e.TimedWait(0, dl); err != api.ErrTimeout {
		t.Fatalf("first wait: got %v, want ErrTimeout", err)
	}
	// The sequence budget is spent; the next wait degrades to a try.
	start := time.Now()
	if err := e.TimedWait(0, dl); err != api.ErrTimeout {
		t.Fatalf("second wait: got %v, want ErrTimeout", err)
	}
	if time.Since(start) > 20*time.Millisecond {
		t.Fatal("expired deadline still blocked")
	}
}
