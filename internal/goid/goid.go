// File: internal/goid/goid.go
// Package goid resolves the runtime ID of the calling goroutine.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// The runtime offers no public API for this; the stack header format
// ("goroutine N [running]:") has been stable across every supported release.

package goid

import (
	"bytes"
	"runtime"
	"strconv"
)

var goroutinePrefix = []byte("goroutine ")

// Current returns the runtime ID of the calling goroutine.
func Current() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	b := bytes.TrimPrefix(buf[:n], goroutinePrefix)
	i := bytes.IndexByte(b, ' ')
	if i < 0 {
		return 0
	}
	id, err := strconv.ParseUint(string(b[:i]), 10, 64)
	if err != nil {
		return 0
	}
	return id
}
