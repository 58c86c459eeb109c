// File: task/task.go
// Package task wraps a goroutine as a real-time thread of control with the
// sleep, wait-for-period, unblock and join contract drivers rely on.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package task

import (
	"sync/atomic"
	"time"

	"github.com/momentics/rtcore/api"
	"github.com/momentics/rtcore/sched"
)

// Proc is the body of a real-time task.
type Proc func(*Task)

// Task is a periodic or aperiodic real-time thread of control.
type Task struct {
	name   string
	sched  *sched.Sched
	clk    api.Clock
	period time.Duration

	entry      *sched.Entry
	entryReady chan struct{}
	wake       chan struct{}
	done       chan struct{}
	blocked    atomic.Bool
	nextBeat   int64
	overruns   atomic.Int64
}

// New spawns the task goroutine. priority follows the scheduler convention
// (higher value, higher priority); period > 0 makes the task periodic and
// arms the first release one period from now.
func New(s *sched.Sched, clk api.Clock, name string, proc Proc, priority int, period time.Duration) *Task {
	t := &Task{
		name:       name,
		sched:      s,
		clk:        clk,
		period:     period,
		entryReady: make(chan struct{}),
		wake:       make(chan struct{}, 1),
		done:       make(chan struct{}),
	}
	go t.run(proc, priority)
	return t
}

func (t *Task) run(proc Proc, priority int) {
	t.entry = t.sched.Adopt(t.name, priority, api.Realtime, t.Unblock)
	if t.period > 0 {
		t.nextBeat = t.clk.Monotonic() + int64(t.period)
	}
	close(t.entryReady)
	defer close(t.done)
	defer t.sched.Leave()
	proc(t)
}

// Handle returns the scheduler handle of the task.
func (t *Task) Handle() api.TaskHandle {
	<-t.entryReady
	return t.entry
}

// Name returns the task name.
func (t *Task) Name() string { return t.name }

// Sleep suspends the task for the given duration. Returns ErrUnblocked if
// another task forcibly woke it.
func (t *Task) Sleep(d time.Duration) error {
	if d <= 0 {
		return nil
	}
	return t.sleep(d)
}

// SleepUntil suspends the task until an absolute wakeup time. Only the
// absolute-monotonic and absolute-adjustable modes are accepted.
func (t *Task) SleepUntil(wakeup int64, mode api.TimerMode) error {
	var d time.Duration
	switch mode {
	case api.TimerAbsolute:
		d = time.Duration(wakeup - t.clk.Monotonic())
	case api.TimerRealtime:
		d = time.Duration(wakeup - t.clk.Realtime())
	default:
		return api.ErrInvalidArgument
	}
	if d <= 0 {
		return nil
	}
	return t.sleep(d)
}

func (t *Task) sleep(d time.Duration) error {
	t.blocked.Store(true)
	defer t.blocked.Store(false)
	tm := time.NewTimer(d)
	defer tm.Stop()
	select {
	case <-tm.C:
		return nil
	case <-t.wake:
		return api.ErrUnblocked
	}
}

// WaitPeriod suspends a periodic task until its next release point. An
// overrun (the release point already passed) skips forward to the next beat
// and reports ErrTimeout so the task can account for the missed deadline.
func (t *Task) WaitPeriod() error {
	if t.period == 0 {
		return api.ErrInvalidArgument
	}
	next := t.nextBeat
	t.nextBeat += int64(t.period)
	now := t.clk.Monotonic()
	if now > next {
		for t.nextBeat <= now {
			t.nextBeat += int64(t.period)
			t.overruns.Add(1)
		}
		return api.ErrTimeout
	}
	return t.sleep(time.Duration(next - now))
}

// Overruns returns the number of missed periodic releases.
func (t *Task) Overruns() int64 { return t.overruns.Load() }

// Unblock forcibly wakes the task out of a blocked Sleep, SleepUntil or
// WaitPeriod call. Reports whether the task was actually blocked.
func (t *Task) Unblock() bool {
	if !t.blocked.Load() {
		return false
	}
	select {
	case t.wake <- struct{}{}:
		return true
	default:
		return false
	}
}

// SetPriority changes the base priority of the task.
func (t *Task) SetPriority(priority int) {
	t.sched.SetPriority(t.Handle(), priority)
}

// Finished reports whether the task procedure has returned.
func (t *Task) Finished() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

// Join blocks until the task procedure returns, polling every pollDelay.
// Intended for non-real-time callers tearing a driver down.
func (t *Task) Join(pollDelay time.Duration) {
	if pollDelay <= 0 {
		pollDelay = time.Millisecond
	}
	for {
		select {
		case <-t.done:
			return
		default:
			time.Sleep(pollDelay)
		}
	}
}

// BusySleep spins for delays shorter than a scheduling tick.
func (t *Task) BusySleep(d time.Duration) {
	deadline := t.clk.Monotonic() + int64(d)
	for t.clk.Monotonic() < deadline {
	}
}
