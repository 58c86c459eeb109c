// File: pool/slab_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package pool

import (
	"testing"

	"github.com/momentics/rtcore/api"
)

func TestAllocSizes(t *testing.T) {
	a := NewSlabAllocator(0)
	for _, size := range []int{1, 64, 65, 1024, 20000} {
		buf, err := a.Alloc(size)
		if err != nil {
			t.Fatalf("alloc %d: %v", size, err)
		}
		if len(buf) != size {
			t.Fatalf("alloc %d: got %d bytes", size, len(buf))
		}
		a.Free(buf)
	}
}

func TestAllocZeroAndNegative(t *testing.T) {
	a := NewSlabAllocator(0)
	buf, err := a.Alloc(0)
	if err != nil || buf != nil {
		t.Fatalf("alloc 0: buf=%v err=%v", buf, err)
	}
	if _, err := a.Alloc(-1); err != api.ErrInvalidArgument {
		t.Fatalf("alloc -1: got %v, want ErrInvalidArgument", err)
	}
}

func TestBudgetExhaustion(t *testing.T) {
	a := NewSlabAllocator(256)
	buf, err := a.Alloc(200) // rounds to the 256 class
	if err != nil {
		t.Fatalf("first alloc: %v", err)
	}
	if _, err := a.Alloc(1); err != api.ErrNoMemory {
		t.Fatalf("over budget: got %v, want ErrNoMemory", err)
	}
	a.Free(buf)
	if _, err := a.Alloc(1); err != nil {
		t.Fatalf("after free: %v", err)
	}
}

func TestReuseReturnsZeroedBuffer(t *testing.T) {
	a := NewSlabAllocator(0)
	buf, err := a.Alloc(64)
	if err != nil {
		t.Fatalf("alloc: %v", err)
	}
	for i := range buf {
		buf[i] = 0xAA
	}
	a.Free(buf)

	again, err := a.Alloc(64)
	if err != nil {
		t.Fatalf("realloc: %v", err)
	}
	for i, b := range again {
		if b != 0 {
			t.Fatalf("byte %d not zeroed: %#x", i, b)
		}
	}
}

func TestStats(t *testing.T) {
	a := NewSlabAllocator(0)
	buf, _ := a.Alloc(100)
	st := a.Stats()
	if st["total_alloc"] != 1 || st["outstanding_bytes"] == 0 {
		t.Fatalf("stats after alloc: %+v", st)
	}
	a.Free(buf)
	st = a.Stats()
	if st["total_free"] != 1 || st["outstanding_bytes"] != 0 {
		t.Fatalf("stats after free: %+v", st)
	}
}
