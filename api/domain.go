// File: api/domain.go
// Package api defines the execution-domain and readiness vocabulary.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Two scheduling domains coexist: a real-time domain running short-deadline
// tasks and interrupt glue, and a non-real-time host domain that may block
// arbitrarily. Every dispatchable device operation names the domain its
// caller runs in; the dispatcher uses it to select the handler variant.

package api

// Domain identifies the execution domain of a caller or handler.
type Domain int

const (
	// NonRealtime is the general-purpose host domain. Blocking on host
	// services is permitted here.
	NonRealtime Domain = iota

	// Realtime is the deterministic, high-priority domain. Handlers here
	// must never block on host-domain services.
	Realtime
)

// Peer returns the opposite domain.
func (d Domain) Peer() Domain {
	if d == Realtime {
		return NonRealtime
	}
	return Realtime
}

func (d Domain) String() string {
	if d == Realtime {
		return "rt"
	}
	return "nrt"
}

// SelectType enumerates the event classes a readiness watcher can bind to.
type SelectType int

const (
	// SelectRead selects input data availability events.
	SelectRead SelectType = iota

	// SelectWrite selects output buffer availability events.
	SelectWrite

	// SelectExcept selects exceptional events.
	SelectExcept
)

func (t SelectType) String() string {
	switch t {
	case SelectRead:
		return "read"
	case SelectWrite:
		return "write"
	default:
		return "except"
	}
}
