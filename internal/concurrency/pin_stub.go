//go:build !linux

// File: internal/concurrency/pin_stub.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Stub implementation for platforms without affinity support.

package concurrency

import "runtime"

// PinThread locks the calling goroutine to its OS thread. CPU binding is not
// available on this platform.
func PinThread(cpu int) error {
	runtime.LockOSThread()
	return nil
}
