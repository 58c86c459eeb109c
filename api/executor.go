// File: api/executor.go
// Package api
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Execution contracts for the two marshalling directions of the dual-context
// dispatcher: Executor models the serialized host-domain deferred-work queue
// (eventual, non-real-time execution), Caller models the synchronous
// transition into the real-time domain.

package api

// Executor is the host-domain deferred-work queue. Submitted work items run
// eventually, serialized per queue, always in non-real-time context.
type Executor interface {
	// Submit enqueues a work item. Returns ErrClosed after Close.
	Submit(fn func()) error

	// Pending returns the number of queued, not yet executed work items.
	Pending() int

	// Close stops the executor after draining already queued work.
	Close()
}

// Caller runs a function synchronously in its execution domain and returns
// once the function has completed.
type Caller interface {
	// Call executes fn in the caller's domain, blocking the invoking
	// goroutine until fn returns. Returns ErrClosed after Close.
	Call(fn func()) error

	// Close stops the caller service.
	Close()
}
