// File: pool/slab.go
// Package pool implements a bounded-time slab allocator with size classes.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// The allocator backs device-context private regions. Alloc pops from a
// per-class free list in O(1); Free pushes back in O(1). A byte budget keeps
// the total outstanding allocation bounded, turning exhaustion into a clean
// ErrNoMemory instead of unbounded growth.

package pool

import (
	"sync"

	"github.com/momentics/rtcore/api"
)

// Size classes served by the allocator. Requests above the largest class are
// satisfied exactly but still count against the budget.
var sizeClasses = []int{64, 256, 1024, 4096, 16384}

// SlabAllocator is a size-class slab allocator implementing api.Allocator.
type SlabAllocator struct {
	mu          sync.Mutex
	free        map[int][][]byte // size class -> free buffers
	budget      int64            // max outstanding bytes, <=0 means unlimited
	outstanding int64

	totalAlloc int64
	totalFree  int64
}

// NewSlabAllocator creates an allocator with the given outstanding-bytes
// budget. A budget <= 0 disables the limit.
func NewSlabAllocator(budget int64) *SlabAllocator {
	return &SlabAllocator{
		free:   make(map[int][][]byte, len(sizeClasses)),
		budget: budget,
	}
}

// classFor rounds a request up to the smallest fitting size class.
func classFor(size int) int {
	for _, c := range sizeClasses {
		if size <= c {
			return c
		}
	}
	return size
}

// Alloc returns a zeroed buffer of exactly size bytes.
func (a *SlabAllocator) Alloc(size int) ([]byte, error) {
	if size < 0 {
		return nil, api.ErrInvalidArgument
	}
	if size == 0 {
		return nil, nil
	}
	class := classFor(size)

	a.mu.Lock()
	if a.budget > 0 && a.outstanding+int64(class) > a.budget {
		a.mu.Unlock()
		return nil, api.ErrNoMemory
	}
	a.outstanding += int64(class)
	a.totalAlloc++
	var backing []byte
	if list := a.free[class]; len(list) > 0 {
		backing = list[len(list)-1]
		a.free[class] = list[:len(list)-1]
	}
	a.mu.Unlock()

	if backing == nil {
		backing = make([]byte, class)
	} else {
		clear(backing)
	}
	return backing[:size], nil
}

// Free returns a buffer to its size-class free list.
func (a *SlabAllocator) Free(buf []byte) {
	if buf == nil {
		return
	}
	class := cap(buf)
	a.mu.Lock()
	a.outstanding -= int64(class)
	a.totalFree++
	a.free[class] = append(a.free[class], buf[:class])
	a.mu.Unlock()
}

// Stats returns basic allocator metrics.
func (a *SlabAllocator) Stats() map[string]int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return map[string]int64{
		"total_alloc":       a.totalAlloc,
		"total_free":        a.totalFree,
		"outstanding_bytes": a.outstanding,
	}
}

var _ api.Allocator = (*SlabAllocator)(nil)
