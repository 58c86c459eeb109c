// File: task/task_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package task

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/momentics/rtcore/api"
	"github.com/momentics/rtcore/sched"
	"github.com/momentics/rtcore/timer"
)

func TestTaskRunsAndJoins(t *testing.T) {
	s := sched.New()
	clk := timer.NewSystemClock()
	var ran atomic.Bool
	tk := New(s, clk, "worker", func(t *Task) { ran.Store(true) }, 10, 0)

	tk.Join(time.Millisecond)
	if !ran.Load() {
		t.Fatal("task body never ran")
	}
	if !tk.Finished() {
		t.Fatal("Finished false after join")
	}
}

func TestTaskHandleCarriesPriorityAndDomain(t *testing.T) {
	s := sched.New()
	clk := timer.NewSystemClock()
	block := make(chan struct{})
	tk := New(s, clk, "prio", func(t *Task) { <-block }, 7, 0)

	h := tk.Handle()
	if h.Priority() != 7 || h.Name() != "prio" {
		t.Fatalf("handle prio=%d name=%q", h.Priority(), h.Name())
	}
	tk.SetPriority(12)
	if h.Priority() != 12 {
		t.Fatalf("priority after set %d, want 12", h.Priority())
	}
	close(block)
	tk.Join(time.Millisecond)
}

func TestSleepAndUnblock(t *testing.T) {
	s := sched.New()
	clk := timer.NewSystemClock()
	result := make(chan error, 1)
	tk := New(s, clk, "sleeper", func(t *Task) {
		result <- t.Sleep(time.Second)
	}, 1, 0)

	time.Sleep(20 * time.Millisecond)
	if !tk.Unblock() {
		t.Fatal("unblock reported no blocked task")
	}
	select {
	case err := <-result:
		if err != api.ErrUnblocked {
			t.Fatalf("sleep: got %v, want ErrUnblocked", err)
		}
	case <-time.After(time.Second):
		t.Fatal("unblock did not interrupt the sleep")
	}
}

func TestUnblockViaScheduler(t *testing.T) {
	s := sched.New()
	clk := timer.NewSystemClock()
	result := make(chan error, 1)
	tk := New(s, clk, "sleeper", func(t *Task) {
		result <- t.Sleep(time.Second)
	}, 1, 0)

	time.Sleep(20 * time.Millisecond)
	if !s.Unblock(tk.Handle()) {
		t.Fatal("scheduler unblock failed")
	}
	if err := <-result; err != api.ErrUnblocked {
		t.Fatalf("sleep: got %v, want ErrUnblocked", err)
	}
}

func TestUnblockIdleTask(t *testing.T) {
	s := sched.New()
	clk := timer.NewSystemClock()
	block := make(chan struct{})
	tk := New(s, clk, "idle", func(t *Task) { <-block }, 1, 0)
	time.Sleep(10 * time.Millisecond)

	if tk.Unblock() {
		t.Fatal("unblock succeeded on a task not blocked in sleep")
	}
	close(block)
	tk.Join(time.Millisecond)
}

func TestSleepUntil(t *testing.T) {
	s := sched.New()
	clk := timer.NewSystemClock()
	result := make(chan error, 1)
	start := clk.Monotonic()
	New(s, clk, "until", func(t *Task) {
		result <- t.SleepUntil(start+int64(30*time.Millisecond), api.TimerAbsolute)
	}, 1, 0)

	if err := <-result; err != nil {
		t.Fatalf("sleep until: %v", err)
	}
	if clk.Monotonic()-start < int64(20*time.Millisecond) {
		t.Fatal("sleep until returned too early")
	}
}

func TestSleepUntilRejectsRelativeMode(t *testing.T) {
	s := sched.New()
	clk := timer.NewSystemClock()
	result := make(chan error, 1)
	New(s, clk, "badmode", func(t *Task) {
		result <- t.SleepUntil(0, api.TimerRelative)
	}, 1, 0)
	if err := <-result; err != api.ErrInvalidArgument {
		t.Fatalf("got %v, want ErrInvalidArgument", err)
	}
}

func TestWaitPeriod(t *testing.T) {
	s := sched.New()
	clk := timer.NewSystemClock()
	beats := make(chan int64, 1)
	tk := New(s, clk, "periodic", func(t *Task) {
		start := clk.Monotonic()
		for i := 0; i < 4; i++ {
			if err := t.WaitPeriod(); err != nil && err != api.ErrTimeout {
				return
			}
		}
		beats <- clk.Monotonic() - start
	}, 5, 10*time.Millisecond)

	select {
	case elapsed := <-beats:
		if elapsed < int64(30*time.Millisecond) {
			t.Fatalf("4 periods of 10ms took %v", time.Duration(elapsed))
		}
	case <-time.After(2 * time.Second):
		t.Fatal("periodic task never completed its beats")
	}
	tk.Join(time.Millisecond)
}

func TestWaitPeriodOnAperiodicTask(t *testing.T) {
	s := sched.New()
	clk := timer.NewSystemClock()
	result := make(chan error, 1)
	New(s, clk, "aperiodic", func(t *Task) {
		result <- t.WaitPeriod()
	}, 1, 0)
	if err := <-result; err != api.ErrInvalidArgument {
		t.Fatalf("got %v, want ErrInvalidArgument", err)
	}
}

func TestWaitPeriodOverrun(t *testing.T) {
	s := sched.New()
	clk := timer.NewSystemClock()
	result := make(chan error, 1)
	tk := New(s, clk, "overrun", func(t *Task) {
		time.Sleep(30 * time.Millisecond) // blow through several periods
		result <- t.WaitPeriod()
	}, 1, 5*time.Millisecond)

	if err := <-result; err != api.ErrTimeout {
		t.Fatalf("overrun wait: got %v, want ErrTimeout", err)
	}
	if tk.Overruns() == 0 {
		t.Fatal("overruns not accounted")
	}
}
