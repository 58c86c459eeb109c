//go:build rtcoredebug

// File: debug/assert.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package debug

// Enabled reports whether assertions are compiled in. Guard assertions that
// allocate or format with `if debug.Enabled { ... }` so release builds can
// remove them entirely.
const Enabled = true

// Assert panics if b is false.
func Assert(b bool, message string) {
	if !b {
		panic(message)
	}
}
