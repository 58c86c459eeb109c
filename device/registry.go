// File: device/registry.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Explicit device registry: name and protocol tables, descriptor allocation,
// open/close and the deferred finalizer. Unregistration drains with bounded
// polling so a device never disappears under an open context.

package device

import (
	"log"
	"sync"
	"time"

	"github.com/momentics/rtcore/api"
	"github.com/momentics/rtcore/control"
	"github.com/momentics/rtcore/internal/concurrency"
	"github.com/momentics/rtcore/pool"
	"github.com/momentics/rtcore/sched"
	"github.com/momentics/rtcore/timer"
)

// Finalizer retry defaults, overridable through the config store.
const (
	DefaultCloseGraceDelay  = 100 * time.Millisecond
	DefaultCloseRetryBudget = 10
)

type protoKey struct {
	family   int
	sockType int
}

// Options carries the registry's collaborators. Nil fields get private
// defaults, which keeps small tests and tools free of wiring boilerplate.
type Options struct {
	Scheduler api.TaskScheduler
	Allocator api.Allocator
	Clock     api.Clock

	// Deferred is the host-domain work queue finalization runs on.
	Deferred api.Executor

	// Realtime marshals non-real-time callers into real-time handlers.
	Realtime api.Caller

	Config  *control.ConfigStore
	Metrics *control.MetricsRegistry
}

// Registry maps names and protocol identifiers to devices and descriptors to
// open contexts. One registry per core instance.
type Registry struct {
	mu     sync.Mutex
	named  map[string]*Device
	proto  map[protoKey]*Device
	fds    map[int]*Context
	nextFD int

	sched   api.TaskScheduler
	alloc   api.Allocator
	clk     api.Clock
	nrt     api.Executor
	rt      api.Caller
	cfg     *control.ConfigStore
	metrics *control.MetricsRegistry

	ownNRT bool
	ownRT  bool
}

// NewRegistry creates a registry from the given collaborators.
func NewRegistry(opts Options) *Registry {
	r := &Registry{
		named:   make(map[string]*Device),
		proto:   make(map[protoKey]*Device),
		fds:     make(map[int]*Context),
		nextFD:  3,
		sched:   opts.Scheduler,
		alloc:   opts.Allocator,
		clk:     opts.Clock,
		nrt:     opts.Deferred,
		rt:      opts.Realtime,
		cfg:     opts.Config,
		metrics: opts.Metrics,
	}
	if r.sched == nil {
		r.sched = sched.New()
	}
	if r.alloc == nil {
		r.alloc = pool.NewSlabAllocator(0)
	}
	if r.clk == nil {
		r.clk = timer.NewSystemClock()
	}
	if r.nrt == nil {
		r.nrt = concurrency.NewDeferredExecutor()
		r.ownNRT = true
	}
	if r.rt == nil {
		rtSched := r.sched
		r.rt = concurrency.NewRTCaller(-1, func() {
			if s, ok := rtSched.(*sched.Sched); ok {
				s.Adopt("rtcall", 0, api.Realtime, nil)
			}
		})
		r.ownRT = true
	}
	if r.cfg == nil {
		r.cfg = control.NewConfigStore()
	}
	return r
}

// Close shuts down the collaborators the registry created itself. Injected
// executors stay with their owner.
func (r *Registry) Close() {
	if r.ownNRT {
		r.nrt.Close()
	}
	if r.ownRT {
		r.rt.Close()
	}
}

// Register publishes a device. The record must name exactly one addressing
// scheme and carry at least one close handler.
func (r *Registry) Register(dev *Device) error {
	if dev == nil {
		return api.ErrInvalidArgument
	}
	if err := dev.validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if dev.registered {
		return api.NewError(api.ErrCodeAlreadyExists, "device already registered").
			WithContext("device", dev.label())
	}
	if dev.Flags&Named != 0 {
		if _, dup := r.named[dev.Name]; dup {
			return api.NewError(api.ErrCodeAlreadyExists, "device name taken").
				WithContext("device", dev.Name)
		}
		r.named[dev.Name] = dev
	} else {
		key := protoKey{dev.Family, dev.SockType}
		if _, dup := r.proto[key]; dup {
			return api.NewError(api.ErrCodeAlreadyExists, "protocol pair taken").
				WithContext("family", dev.Family).WithContext("socktype", dev.SockType)
		}
		r.proto[key] = dev
	}
	dev.registered = true
	dev.refs.Store(0)
	r.metrics.Inc("device.registered")
	log.Printf("[device] registered %q (driver=%s)", dev.label(), dev.DriverName)
	return nil
}

// Unregister withdraws a device, blocking until every open context has
// finished closing. It re-checks every pollDelay; with pollDelay <= 0 a busy
// device reports ErrBusy immediately instead of draining.
func (r *Registry) Unregister(dev *Device, pollDelay time.Duration) error {
	if dev == nil {
		return api.ErrInvalidArgument
	}
	for {
		r.mu.Lock()
		if !dev.registered {
			r.mu.Unlock()
			return api.ErrNotFound
		}
		if dev.refs.Load() == 0 {
			if dev.Flags&Named != 0 {
				delete(r.named, dev.Name)
			} else {
				delete(r.proto, protoKey{dev.Family, dev.SockType})
			}
			dev.registered = false
			r.mu.Unlock()
			r.metrics.Inc("device.unregistered")
			log.Printf("[device] unregistered %q", dev.label())
			return nil
		}
		r.mu.Unlock()
		if pollDelay <= 0 {
			return api.ErrBusy
		}
		time.Sleep(pollDelay)
	}
}

// OpenNamed opens a context on a named device from the given domain.
func (r *Registry) OpenNamed(name string, oflag int, domain api.Domain) (int, error) {
	r.mu.Lock()
	dev := r.named[name]
	r.mu.Unlock()
	if dev == nil {
		return -1, api.ErrNotFound
	}
	return r.open(dev, domain, func(ctx *Context, d api.Domain) (Verdict, error) {
		ops := ctx.operations()
		h := ops.OpenNRT
		if d == api.Realtime {
			h = ops.OpenRT
		}
		if h == nil {
			return DeferPeer, nil
		}
		return h(ctx, oflag)
	})
}

// OpenProtocol opens a context on a protocol device from the given domain.
func (r *Registry) OpenProtocol(family, sockType, protocol int, domain api.Domain) (int, error) {
	r.mu.Lock()
	dev := r.proto[protoKey{family, sockType}]
	r.mu.Unlock()
	if dev == nil {
		return -1, api.ErrNotFound
	}
	return r.open(dev, domain, func(ctx *Context, d api.Domain) (Verdict, error) {
		ops := ctx.operations()
		h := ops.SocketNRT
		if d == api.Realtime {
			h = ops.SocketRT
		}
		if h == nil {
			return DeferPeer, nil
		}
		return h(ctx, protocol)
	})
}

// open allocates a context, reserves the device slot and runs the creation
// handler through the same domain-fallback protocol as regular dispatch.
func (r *Registry) open(dev *Device, domain api.Domain, create func(*Context, api.Domain) (Verdict, error)) (int, error) {
	private, err := r.alloc.Alloc(dev.ContextSize)
	if err != nil {
		return -1, api.ErrNoMemory
	}

	ctx := &Context{
		dev:       dev,
		reg:       r,
		ops:       &dev.Ops,
		lockCount: 1,
		private:   private,
	}
	if domain == api.NonRealtime {
		ctx.flags |= CreatedInNRT
	}

	r.mu.Lock()
	if dev.Flags&Exclusive != 0 && dev.refs.Load() > 0 {
		r.mu.Unlock()
		r.alloc.Free(private)
		return -1, api.ErrBusy
	}
	dev.refs.Add(1)
	if dev.Flags&Exclusive != 0 {
		dev.sole = ctx
	}
	ctx.fd = r.nextFD
	r.nextFD++
	r.mu.Unlock()

	_, err = dispatchCall(r, domain, "open", variants[int]{
		api.NonRealtime: func() (int, Verdict, error) { v, e := create(ctx, api.NonRealtime); return 0, v, e },
		api.Realtime:    func() (int, Verdict, error) { v, e := create(ctx, api.Realtime); return 0, v, e },
	})
	if err != nil {
		r.release(ctx)
		return -1, err
	}

	r.mu.Lock()
	r.fds[ctx.fd] = ctx
	r.mu.Unlock()
	r.metrics.Inc("device.opened")
	return ctx.fd, nil
}

// Resolve maps a descriptor to a locked context. The caller owns one
// reference and must Unlock it. A closing context is no longer resolvable.
func (r *Registry) Resolve(fd int) (*Context, error) {
	r.mu.Lock()
	ctx := r.fds[fd]
	r.mu.Unlock()
	if ctx == nil || !ctx.tryResolve() {
		return nil, api.ErrNotFound
	}
	return ctx, nil
}

// CloseFD requests close of an open descriptor. The call returns as soon as
// the closing flag is set; teardown completes asynchronously on the
// host-domain executor, retrying after the configured grace delay while the
// driver's close handler keeps asking for one.
func (r *Registry) CloseFD(fd int) error {
	r.mu.Lock()
	ctx := r.fds[fd]
	r.mu.Unlock()
	if ctx == nil {
		return api.ErrNotFound
	}
	ctx.RequestClose()
	return nil
}

// scheduleFinalize hands the context to the host-domain executor. Reached
// exactly once per context, from its final Unlock.
func (r *Registry) scheduleFinalize(ctx *Context) {
	budget := int(r.cfg.GetInt64(control.KeyCloseRetryBudget, DefaultCloseRetryBudget))
	if err := r.nrt.Submit(func() { r.finalize(ctx, budget) }); err != nil {
		// Executor gone during shutdown. Free inline so nothing leaks.
		log.Printf("[device] finalize submit failed for %q fd=%d: %v", ctx.dev.label(), ctx.fd, err)
		r.release(ctx)
	}
}

// finalize invokes the close handler in its proper domain and releases the
// context. A DeferGrace verdict re-queues the attempt after the grace delay
// until the retry budget runs out; exhaustion and a missing handler are
// driver bugs that are logged but still release the context, so a broken
// driver cannot leak memory or wedge Unregister.
func (r *Registry) finalize(ctx *Context, budget int) {
	ops := ctx.operations()
	verdict, err := r.invokeClose(ctx, ops)
	switch verdict {
	case DeferGrace:
		if budget <= 0 {
			log.Printf("[device] close retry budget exhausted for %q fd=%d", ctx.dev.label(), ctx.fd)
			r.metrics.Inc("device.close_budget_exhausted")
			break
		}
		delay := r.cfg.GetDuration(control.KeyCloseGraceDelay, DefaultCloseGraceDelay)
		r.metrics.Inc("device.close_retry")
		time.AfterFunc(delay, func() {
			if serr := r.nrt.Submit(func() { r.finalize(ctx, budget-1) }); serr != nil {
				r.release(ctx)
			}
		})
		return
	case Done:
		if err != nil {
			log.Printf("[device] close handler failed for %q fd=%d: %v", ctx.dev.label(), ctx.fd, err)
		}
	}
	r.release(ctx)
}

// invokeClose runs the close handler with the NRT variant preferred, since
// the finalizer already executes on the host executor. A DeferPeer verdict
// flips to the other variant once.
func (r *Registry) invokeClose(ctx *Context, ops *Operations) (Verdict, error) {
	run := func(h CloseHandler, d api.Domain) (Verdict, error) {
		var v Verdict
		var err error
		invoke := func() { v, err = h(ctx) }
		if d == api.Realtime {
			if cerr := r.rt.Call(invoke); cerr != nil {
				return Done, cerr
			}
		} else {
			invoke()
		}
		return v, err
	}

	first, firstDom := ops.CloseNRT, api.NonRealtime
	second, secondDom := ops.CloseRT, api.Realtime
	if first == nil {
		first, firstDom = second, secondDom
		second = nil
	}
	if first == nil {
		log.Printf("[device] no close handler for %q fd=%d, releasing anyway", ctx.dev.label(), ctx.fd)
		r.metrics.Inc("device.close_missing")
		return Done, nil
	}
	v, err := run(first, firstDom)
	if v == DeferPeer {
		if second == nil {
			log.Printf("[device] close deferred with no peer variant for %q fd=%d", ctx.dev.label(), ctx.fd)
			return Done, api.ErrNotSupported
		}
		v, err = run(second, secondDom)
		if v == DeferPeer {
			return Done, api.ErrNotSupported
		}
	}
	return v, err
}

// release frees the context memory and drops the registry and device
// bookkeeping. Terminal state of the context lifecycle.
func (r *Registry) release(ctx *Context) {
	r.alloc.Free(ctx.private)
	ctx.private = nil

	r.mu.Lock()
	delete(r.fds, ctx.fd)
	ctx.dev.refs.Add(-1)
	if ctx.dev.sole == ctx {
		ctx.dev.sole = nil
	}
	r.mu.Unlock()
	r.metrics.Inc("device.finalized")
}

// Stats reports registry-level counters.
func (r *Registry) Stats() map[string]int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	open := int64(len(r.fds))
	return map[string]int64{
		"named_devices":    int64(len(r.named)),
		"protocol_devices": int64(len(r.proto)),
		"open_contexts":    open,
	}
}
