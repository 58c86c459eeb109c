// File: api/sched.go
// Package api
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Task-scheduler collaborator contract. rtcore does not define admission or
// priority algorithms; it consumes the scheduler through this narrow surface.
// The Boost/Restore pair is the priority-inheritance capability the mutex
// implementation drives on every block/unblock transition.

package api

// TaskHandle identifies a schedulable task to the scheduler collaborator.
type TaskHandle interface {
	// Name returns the informational task name.
	Name() string

	// Priority returns the current effective priority. Higher values mean
	// higher priority.
	Priority() int

	// BasePriority returns the priority the task was created with.
	BasePriority() int
}

// TaskScheduler is the scheduler capability set consumed by rtcore.
type TaskScheduler interface {
	// Current resolves the task executing on the calling goroutine. Callers
	// outside any registered task receive an anonymous host-domain handle.
	Current() TaskHandle

	// CurrentDomain reports the execution domain of the calling goroutine.
	CurrentDomain() Domain

	// SetPriority changes the base priority of a task.
	SetPriority(t TaskHandle, priority int)

	// Boost raises the effective priority of a task to at least priority.
	// Boosting below the current effective priority is a no-op.
	Boost(t TaskHandle, priority int)

	// Restore drops a boosted task back to its base priority.
	Restore(t TaskHandle)

	// Unblock forcibly wakes a task blocked in a sleep or wait-period call.
	// Reports whether a blocked task was actually woken.
	Unblock(t TaskHandle) bool
}
