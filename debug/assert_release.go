//go:build !rtcoredebug

// File: debug/assert_release.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Package debug provides assertions that are enabled with the rtcoredebug
// build tag and otherwise compile to no-ops. Caller bugs such as locking an
// already-destroyed device context are reported through these assertions
// rather than hard failures in production builds.

package debug

// Enabled reports whether assertions are compiled in.
const Enabled = false

// Assert panics if b is false. No-op in release builds.
func Assert(b bool, message string) {}
