// File: internal/concurrency/executor.go
// Package concurrency implements the execution services behind the
// dual-context dispatcher.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// DeferredExecutor is the serialized host-domain work queue. It replaces the
// interrupt-context-safe soft-callback slot of classic co-kernels with an
// injected collaborator: work items submitted from any domain run eventually,
// in FIFO order, on a single non-real-time worker goroutine. Deferred device
// context finalization and real-time-to-host handler marshalling both ride
// this queue.

package concurrency

import (
	"sync"

	"github.com/eapache/queue"

	"github.com/momentics/rtcore/api"
)

// DeferredExecutor runs submitted work serialized on one host-domain worker.
type DeferredExecutor struct {
	mu     sync.Mutex
	cond   *sync.Cond
	q      *queue.Queue
	closed bool
	done   chan struct{}

	totalSubmitted int64
	totalExecuted  int64
}

// NewDeferredExecutor creates the executor and starts its worker goroutine.
func NewDeferredExecutor() *DeferredExecutor {
	e := &DeferredExecutor{
		q:    queue.New(),
		done: make(chan struct{}),
	}
	e.cond = sync.NewCond(&e.mu)
	go e.run()
	return e
}

// Submit enqueues a work item. Returns ErrClosed after Close.
func (e *DeferredExecutor) Submit(fn func()) error {
	if fn == nil {
		return api.ErrInvalidArgument
	}
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return api.ErrClosed
	}
	e.q.Add(fn)
	e.totalSubmitted++
	e.cond.Signal()
	e.mu.Unlock()
	return nil
}

// Pending returns the number of queued, not yet executed work items.
func (e *DeferredExecutor) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.q.Length()
}

// Close stops the executor after draining already queued work and waits for
// the worker to exit.
func (e *DeferredExecutor) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		<-e.done
		return
	}
	e.closed = true
	e.cond.Signal()
	e.mu.Unlock()
	<-e.done
}

// Stats returns basic executor metrics.
func (e *DeferredExecutor) Stats() map[string]int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return map[string]int64{
		"submitted": e.totalSubmitted,
		"executed":  e.totalExecuted,
		"pending":   int64(e.q.Length()),
	}
}

func (e *DeferredExecutor) run() {
	defer close(e.done)
	for {
		e.mu.Lock()
		for e.q.Length() == 0 && !e.closed {
			e.cond.Wait()
		}
		if e.q.Length() == 0 && e.closed {
			e.mu.Unlock()
			return
		}
		fn := e.q.Remove().(func())
		e.mu.Unlock()

		e.execute(fn)

		e.mu.Lock()
		e.totalExecuted++
		e.mu.Unlock()
	}
}

// execute runs one work item, recovering from panics to keep the worker alive.
func (e *DeferredExecutor) execute(fn func()) {
	defer func() {
		_ = recover()
	}()
	fn()
}

var _ api.Executor = (*DeferredExecutor)(nil)
