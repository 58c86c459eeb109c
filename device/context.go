// File: device/context.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Device Context: the per-open-instance state record. The lock count starts
// at 1 for the baseline open reference; handlers borrow the context through
// Lock/Unlock for the duration of one invocation. Finalization is scheduled
// exactly once, at the unique transition where the count reaches zero with
// the closing flag set, and always runs on the host-domain executor.

package device

import (
	"sync"

	"github.com/momentics/rtcore/debug"
)

// ContextFlag is the per-context flag bitset. Bits below UserFlagsStart are
// reserved for the core; drivers own the rest.
type ContextFlag uint32

const (
	// CreatedInNRT marks a context opened from the non-real-time domain.
	CreatedInNRT ContextFlag = 1 << 0

	// ClosingFlag marks a context whose close has been requested.
	ClosingFlag ContextFlag = 1 << 1

	// UserFlagsStart is the first flag bit available to drivers.
	UserFlagsStart = 8
)

// Context is one open device instance. It is owned by the registry; drivers
// and the generic front end borrow it via Resolve/Lock and must pair every
// borrow with an Unlock.
type Context struct {
	mu        sync.Mutex
	flags     ContextFlag
	lockCount int
	finalized bool
	closed    bool

	ops *Operations
	dev *Device
	reg *Registry
	fd  int

	private    []byte
	driverData any
}

// Device returns the owning registration record.
func (c *Context) Device() *Device { return c.dev }

// FD returns the descriptor this context was opened as.
func (c *Context) FD() int { return c.fd }

// Private returns the driver-private region sized by Device.ContextSize.
func (c *Context) Private() []byte { return c.private }

// DriverData returns the per-context payload set by the driver.
func (c *Context) DriverData() any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.driverData
}

// SetDriverData attaches a per-context payload.
func (c *Context) SetDriverData(v any) {
	c.mu.Lock()
	c.driverData = v
	c.mu.Unlock()
}

// SetOps swaps the active operation table for this context only. The new
// table is used by all subsequent dispatches; in-flight calls keep the table
// they resolved.
func (c *Context) SetOps(ops *Operations) {
	debug.Assert(ops != nil, "device: nil operation table")
	c.mu.Lock()
	c.ops = ops
	c.mu.Unlock()
}

func (c *Context) operations() *Operations {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ops
}

// TestFlag reports whether all bits in f are set.
func (c *Context) TestFlag(f ContextFlag) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.flags&f == f
}

// SetFlag sets driver-owned flag bits. Bits below UserFlagsStart are
// reserved and rejected in debug builds.
func (c *Context) SetFlag(f ContextFlag) {
	debug.Assert(f>>UserFlagsStart<<UserFlagsStart == f, "device: reserved context flag")
	c.mu.Lock()
	c.flags |= f
	c.mu.Unlock()
}

// ClearFlag clears driver-owned flag bits.
func (c *Context) ClearFlag(f ContextFlag) {
	debug.Assert(f>>UserFlagsStart<<UserFlagsStart == f, "device: reserved context flag")
	c.mu.Lock()
	c.flags &^= f
	c.mu.Unlock()
}

// CreatedInNonRealtime reports where the context was opened.
func (c *Context) CreatedInNonRealtime() bool { return c.TestFlag(CreatedInNRT) }

// Closing reports whether close has been requested.
func (c *Context) Closing() bool { return c.TestFlag(ClosingFlag) }

// Lock takes one reference on the context. Calling it on a fully closed
// context is a caller bug, flagged in debug builds.
func (c *Context) Lock() {
	c.mu.Lock()
	debug.Assert(c.lockCount > 0, "device: lock on a released context")
	c.lockCount++
	c.mu.Unlock()
}

// Unlock drops one reference. The last unlock of a closing context schedules
// deferred finalization; any other unlock is a plain decrement.
func (c *Context) Unlock() {
	c.mu.Lock()
	debug.Assert(c.lockCount > 0, "device: unbalanced context unlock")
	c.lockCount--
	fin := c.lockCount == 0 && c.flags&ClosingFlag != 0 && !c.finalized
	if fin {
		c.finalized = true
	}
	c.mu.Unlock()
	if fin {
		c.reg.scheduleFinalize(c)
	}
}

// RequestClose marks the context closing and drops the baseline open
// reference. Close racing with close is accepted; only the first request
// drops the reference, so finalization cannot be scheduled twice.
func (c *Context) RequestClose() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.flags |= ClosingFlag
	c.mu.Unlock()
	c.Unlock()
}

// tryResolve takes a reference unless the context is already closing.
// Called by the registry with its own lock held.
func (c *Context) tryResolve() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.flags&ClosingFlag != 0 || c.lockCount == 0 {
		return false
	}
	c.lockCount++
	return true
}
