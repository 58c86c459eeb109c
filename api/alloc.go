// File: api/alloc.go
// Package api
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

// Allocator is the bounded-time heap collaborator. Device-context private
// regions are carved from it and returned on deferred finalization.
type Allocator interface {
	// Alloc returns a zeroed buffer of exactly size bytes, or ErrNoMemory
	// when the budget is exhausted. Bounded-time.
	Alloc(size int) ([]byte, error)

	// Free returns a buffer previously obtained from Alloc. Bounded-time.
	Free(buf []byte)
}
