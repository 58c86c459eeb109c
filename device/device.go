// File: device/device.go
// Package device implements the driver-facing registration record, the
// per-open-instance context lifecycle and the dual-context operation
// dispatcher of the rtcore driver model.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// A driver registers one Device per endpoint, either under a stable name or
// under a (family, socket type) protocol pair. Every dispatchable operation
// carries up to two handler variants, one per execution domain; the
// dispatcher picks the variant matching the caller's domain and falls back
// to the peer domain when that variant is absent or declines the call.

package device

import (
	"sync/atomic"

	"github.com/momentics/rtcore/api"
	"github.com/momentics/rtcore/synch"
)

// Flag is the device registration flag bitset.
type Flag uint32

const (
	// Named addresses the device by its stable name.
	Named Flag = 1 << 0

	// Protocol addresses the device by its (family, socket type) pair.
	Protocol Flag = 1 << 1

	// Exclusive limits the device to at most one open context.
	Exclusive Flag = 1 << 2
)

// Verdict is a handler's dispatch outcome. It travels beside the handler's
// result instead of being encoded into the error value, so control flow
// never masquerades as a failure.
type Verdict int

const (
	// Done reports that the handler ran to completion; its result and error
	// are final.
	Done Verdict = iota

	// DeferPeer declines the call in the current domain and asks the
	// dispatcher to retry it in the other domain. A second consecutive
	// DeferPeer terminates the call with ErrNotSupported.
	DeferPeer

	// DeferGrace asks for the call to be re-issued after a grace period.
	// Only the close handler may return it; the finalizer owns the retry
	// budget.
	DeferGrace
)

func (v Verdict) String() string {
	switch v {
	case Done:
		return "done"
	case DeferPeer:
		return "defer-peer"
	default:
		return "defer-grace"
	}
}

// Handler entry points. Open and socket handlers are resolved once, at open
// time; the remaining operations dispatch through the context's active
// operation table on every call.
type (
	// OpenHandler creates the driver-side state of a named device instance.
	OpenHandler func(ctx *Context, oflag int) (Verdict, error)

	// SocketHandler creates the driver-side state of a protocol instance.
	SocketHandler func(ctx *Context, protocol int) (Verdict, error)

	// CloseHandler tears down a context. It may run more than once per
	// context and must be idempotent.
	CloseHandler func(ctx *Context) (Verdict, error)

	// IoctlHandler services a device control request.
	IoctlHandler func(ctx *Context, request uint, arg any) (Verdict, error)

	// ReadHandler fills buf and reports the byte count.
	ReadHandler func(ctx *Context, buf []byte) (int, Verdict, error)

	// WriteHandler consumes buf and reports the byte count.
	WriteHandler func(ctx *Context, buf []byte) (int, Verdict, error)

	// RecvmsgHandler receives one datagram into msg.
	RecvmsgHandler func(ctx *Context, msg *Message, flags int) (int, Verdict, error)

	// SendmsgHandler transmits one datagram from msg.
	SendmsgHandler func(ctx *Context, msg *Message, flags int) (int, Verdict, error)

	// SelectBindHandler attaches a readiness watcher to the context. It runs
	// in the caller's domain and must not block.
	SelectBindHandler func(ctx *Context, sel *synch.Selector, typ api.SelectType, index uint) error
)

// Operations is the per-device handler table. Every slot may be empty; an
// absent operation reports ErrNotSupported when called. At least one close
// variant is mandatory.
type Operations struct {
	OpenRT  OpenHandler
	OpenNRT OpenHandler

	SocketRT  SocketHandler
	SocketNRT SocketHandler

	CloseRT  CloseHandler
	CloseNRT CloseHandler

	IoctlRT  IoctlHandler
	IoctlNRT IoctlHandler

	ReadRT  ReadHandler
	ReadNRT ReadHandler

	WriteRT  WriteHandler
	WriteNRT WriteHandler

	RecvmsgRT  RecvmsgHandler
	RecvmsgNRT RecvmsgHandler

	SendmsgRT  SendmsgHandler
	SendmsgNRT SendmsgHandler

	SelectBind SelectBindHandler
}

// Message is the datagram exchanged through Recvmsg/Sendmsg.
type Message struct {
	// Name is the protocol-specific peer address, nil when unused.
	Name any

	// Buffers is the scatter/gather payload.
	Buffers [][]byte

	// Control carries ancillary protocol data.
	Control []byte
}

// Device describes one registered driver endpoint. The exported fields are
// filled by the driver before Register and must not change while registered;
// the unexported state belongs to the registry.
type Device struct {
	// Name addresses a Named device. Ignored for Protocol devices.
	Name string

	// Family and SockType address a Protocol device.
	Family   int
	SockType int

	Flags Flag

	// ContextSize is the driver-private byte count allocated per context.
	ContextSize int

	Ops Operations

	// DeviceData is an arbitrary driver-wide payload shared by all contexts.
	DeviceData any

	// Informational fields, surfaced in logs and stats.
	DriverName     string
	DriverVersion  string
	PeripheralName string
	ProviderName   string

	// Registry-owned state. refs is atomic so OpenCount can snapshot it
	// without the registry lock; mutations still happen under that lock.
	registered bool
	refs       atomic.Int32
	sole       *Context
}

// OpenCount reports the number of currently open contexts. The snapshot may
// be momentarily stale against an in-flight open or close.
func (d *Device) OpenCount() int {
	return int(d.refs.Load())
}

// label names the device for logs.
func (d *Device) label() string {
	if d.Flags&Protocol != 0 {
		return d.DriverName
	}
	return d.Name
}

// validate checks the registration record for structural errors.
func (d *Device) validate() error {
	if d.Ops.CloseRT == nil && d.Ops.CloseNRT == nil {
		return api.NewError(api.ErrCodeInvalidArgument, "device has no close handler").
			WithContext("device", d.label())
	}
	named := d.Flags&Named != 0
	proto := d.Flags&Protocol != 0
	if named == proto {
		return api.NewError(api.ErrCodeInvalidArgument, "device must be exactly one of named or protocol").
			WithContext("device", d.label())
	}
	if named {
		if d.Name == "" {
			return api.NewError(api.ErrCodeInvalidArgument, "named device without a name")
		}
		if d.Ops.OpenRT == nil && d.Ops.OpenNRT == nil {
			return api.NewError(api.ErrCodeInvalidArgument, "named device has no open handler").
				WithContext("device", d.Name)
		}
	} else {
		if d.Ops.SocketRT == nil && d.Ops.SocketNRT == nil {
			return api.NewError(api.ErrCodeInvalidArgument, "protocol device has no socket handler").
				WithContext("device", d.label())
		}
	}
	if d.ContextSize < 0 {
		return api.NewError(api.ErrCodeInvalidArgument, "negative context size")
	}
	return nil
}
