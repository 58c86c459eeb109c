// File: device/dispatch.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Dual-context dispatch. Each operation resolves to the handler variant
// matching the caller's domain; when that variant is absent or returns
// DeferPeer, the call is marshalled into the other domain exactly once.
// Real-time callers reach non-real-time handlers through the serialized
// host-domain executor; non-real-time callers reach real-time handlers
// through the synchronous real-time caller service. A second consecutive
// deferral is a driver bug and surfaces as ErrNotSupported.

package device

import (
	"log"

	"github.com/momentics/rtcore/api"
	"github.com/momentics/rtcore/synch"
)

// variantFn is one domain's handler, bound to its arguments. A nil variantFn
// means the variant is absent.
type variantFn[T any] func() (T, Verdict, error)

// variants holds both domain variants of one operation, indexed by api.Domain.
type variants[T any] [2]variantFn[T]

// runIn executes fn in the target domain. Same-domain calls run inline;
// cross-domain calls marshal and wait for completion.
func (r *Registry) runIn(target, caller api.Domain, fn func()) error {
	if target == caller {
		fn()
		return nil
	}
	if target == api.NonRealtime {
		done := make(chan struct{})
		if err := r.nrt.Submit(func() {
			defer close(done)
			fn()
		}); err != nil {
			return err
		}
		<-done
		return nil
	}
	return r.rt.Call(fn)
}

// dispatchCall runs one operation through the fallback protocol. The caller
// always receives a terminal outcome; Verdict never escapes.
func dispatchCall[T any](r *Registry, caller api.Domain, op string, vs variants[T]) (T, error) {
	var zero T
	domain := caller
	deferred := false
	for {
		fn := vs[domain]
		if fn == nil {
			if deferred || vs[domain.Peer()] == nil {
				return zero, api.ErrNotSupported
			}
			domain = domain.Peer()
			deferred = true
			continue
		}

		var out T
		var verdict Verdict
		var err error
		if merr := r.runIn(domain, caller, func() { out, verdict, err = fn() }); merr != nil {
			return zero, merr
		}

		switch verdict {
		case Done:
			return out, err
		case DeferPeer:
			if deferred {
				r.metrics.Inc("dispatch.defer_loop")
				return zero, api.ErrNotSupported
			}
			domain = domain.Peer()
			deferred = true
		case DeferGrace:
			// Legal from close handlers only; the finalizer owns that path.
			log.Printf("[device] %s handler returned defer-grace outside close", op)
			return zero, api.ErrNotSupported
		}
	}
}

// Variant adapters. Each preserves handler absence as a nil variantFn so the
// dispatcher can tell "no handler" from "handler declined".

func ioctlVariant(h IoctlHandler, ctx *Context, request uint, arg any) variantFn[int] {
	if h == nil {
		return nil
	}
	return func() (int, Verdict, error) {
		v, err := h(ctx, request, arg)
		return 0, v, err
	}
}

func readVariant(h ReadHandler, ctx *Context, buf []byte) variantFn[int] {
	if h == nil {
		return nil
	}
	return func() (int, Verdict, error) { return h(ctx, buf) }
}

func writeVariant(h WriteHandler, ctx *Context, buf []byte) variantFn[int] {
	if h == nil {
		return nil
	}
	return func() (int, Verdict, error) { return h(ctx, buf) }
}

func recvmsgVariant(h RecvmsgHandler, ctx *Context, msg *Message, flags int) variantFn[int] {
	if h == nil {
		return nil
	}
	return func() (int, Verdict, error) { return h(ctx, msg, flags) }
}

func sendmsgVariant(h SendmsgHandler, ctx *Context, msg *Message, flags int) variantFn[int] {
	if h == nil {
		return nil
	}
	return func() (int, Verdict, error) { return h(ctx, msg, flags) }
}

// Ioctl dispatches a device control request on an open descriptor.
func (r *Registry) Ioctl(fd int, caller api.Domain, request uint, arg any) error {
	ctx, err := r.Resolve(fd)
	if err != nil {
		return err
	}
	defer ctx.Unlock()
	ops := ctx.operations()
	_, err = dispatchCall(r, caller, "ioctl", variants[int]{
		api.NonRealtime: ioctlVariant(ops.IoctlNRT, ctx, request, arg),
		api.Realtime:    ioctlVariant(ops.IoctlRT, ctx, request, arg),
	})
	return err
}

// Read dispatches a read on an open descriptor.
func (r *Registry) Read(fd int, caller api.Domain, buf []byte) (int, error) {
	ctx, err := r.Resolve(fd)
	if err != nil {
		return 0, err
	}
	defer ctx.Unlock()
	ops := ctx.operations()
	return dispatchCall(r, caller, "read", variants[int]{
		api.NonRealtime: readVariant(ops.ReadNRT, ctx, buf),
		api.Realtime:    readVariant(ops.ReadRT, ctx, buf),
	})
}

// Write dispatches a write on an open descriptor.
func (r *Registry) Write(fd int, caller api.Domain, buf []byte) (int, error) {
	ctx, err := r.Resolve(fd)
	if err != nil {
		return 0, err
	}
	defer ctx.Unlock()
	ops := ctx.operations()
	return dispatchCall(r, caller, "write", variants[int]{
		api.NonRealtime: writeVariant(ops.WriteNRT, ctx, buf),
		api.Realtime:    writeVariant(ops.WriteRT, ctx, buf),
	})
}

// Recvmsg dispatches a datagram receive on an open descriptor.
func (r *Registry) Recvmsg(fd int, caller api.Domain, msg *Message, flags int) (int, error) {
	ctx, err := r.Resolve(fd)
	if err != nil {
		return 0, err
	}
	defer ctx.Unlock()
	ops := ctx.operations()
	return dispatchCall(r, caller, "recvmsg", variants[int]{
		api.NonRealtime: recvmsgVariant(ops.RecvmsgNRT, ctx, msg, flags),
		api.Realtime:    recvmsgVariant(ops.RecvmsgRT, ctx, msg, flags),
	})
}

// Sendmsg dispatches a datagram send on an open descriptor.
func (r *Registry) Sendmsg(fd int, caller api.Domain, msg *Message, flags int) (int, error) {
	ctx, err := r.Resolve(fd)
	if err != nil {
		return 0, err
	}
	defer ctx.Unlock()
	ops := ctx.operations()
	return dispatchCall(r, caller, "sendmsg", variants[int]{
		api.NonRealtime: sendmsgVariant(ops.SendmsgNRT, ctx, msg, flags),
		api.Realtime:    sendmsgVariant(ops.SendmsgRT, ctx, msg, flags),
	})
}

// SelectBind attaches a readiness watcher to an open descriptor. The handler
// runs inline in the caller's domain and must not block.
func (r *Registry) SelectBind(fd int, sel *synch.Selector, typ api.SelectType, index uint) error {
	ctx, err := r.Resolve(fd)
	if err != nil {
		return err
	}
	defer ctx.Unlock()
	ops := ctx.operations()
	if ops.SelectBind == nil {
		return api.ErrNotSupported
	}
	return ops.SelectBind(ctx, sel, typ, index)
}
