// File: drivers/loopipc/loopipc.go
// Package loopipc is an in-process datagram IPC driver: port-addressed
// loopback sockets exchanging bounded queues of messages between real-time
// and non-real-time endpoints.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// The driver doubles as the reference exercise of the device model: socket
// creation, ioctl binding with a real-time recall to the host domain,
// same-path rt/nrt send and receive, read readiness through select binding,
// and an idempotent close that asks for a grace period while a send is still
// in flight.

package loopipc

import (
	"sync"

	"github.com/momentics/rtcore/api"
	"github.com/momentics/rtcore/device"
	"github.com/momentics/rtcore/synch"
)

// Addressing constants of the loopback family.
const (
	// Family is the protocol family the driver registers under.
	Family = 111

	// SocketDatagram is the supported socket type.
	SocketDatagram = 2
)

// Ioctl requests.
const (
	// IoctlBind binds the endpoint to a port. Argument: *Addr.
	IoctlBind uint = 0x100

	// IoctlQueueDepth sets the receive queue depth. Argument: int.
	IoctlQueueDepth uint = 0x101
)

// DefaultQueueDepth bounds an endpoint's receive queue until overridden.
const DefaultQueueDepth = 16

// Addr is the datagram address: a port on the loopback network.
type Addr struct {
	Port int
}

// network is the driver-wide port table, shared by all contexts through the
// device's DeviceData.
type network struct {
	mu    sync.Mutex
	ports map[int]*endpoint
}

// endpoint is the per-context driver state.
type endpoint struct {
	net   *network
	sched api.TaskScheduler

	mu       sync.Mutex
	port     int // -1 while unbound
	depth    int
	queue    []datagram
	inflight int // sends currently copying into this queue

	// avail counts queued datagrams and carries the read readiness level.
	avail *synch.Semaphore

	released int // close teardown executions, must stay at 1
}

type datagram struct {
	from    Addr
	payload []byte
}

// Driver owns the registration record for one loopback network.
type Driver struct {
	dev *device.Device
	net *network
}

// New builds the loopback device. Register attaches it to a registry.
func New(s api.TaskScheduler) *Driver {
	d := &Driver{net: &network{ports: make(map[int]*endpoint)}}
	d.dev = &device.Device{
		Family:         Family,
		SockType:       SocketDatagram,
		Flags:          device.Protocol,
		DriverName:     "loopipc",
		DriverVersion:  "1.0",
		PeripheralName: "in-process datagram loopback",
		ProviderName:   "momentics",
		DeviceData:     d.net,
		Ops: device.Operations{
			SocketNRT:  func(ctx *device.Context, protocol int) (device.Verdict, error) { return d.socket(ctx, s) },
			IoctlRT:    ioctlRT,
			IoctlNRT:   ioctlNRT,
			SendmsgRT:  sendmsg,
			SendmsgNRT: sendmsg,
			RecvmsgRT:  recvmsg,
			RecvmsgNRT: recvmsg,
			CloseNRT:   closeEndpoint,
			SelectBind: selectBind,
		},
	}
	return d
}

// Device exposes the registration record.
func (d *Driver) Device() *device.Device { return d.dev }

// Register publishes the driver on a registry.
func (d *Driver) Register(reg *device.Registry) error {
	return reg.Register(d.dev)
}

func (d *Driver) socket(ctx *device.Context, s api.TaskScheduler) (device.Verdict, error) {
	ep := &endpoint{
		net:   d.net,
		sched: s,
		port:  -1,
		depth: DefaultQueueDepth,
		avail: synch.NewSemaphore(s, 0),
	}
	ctx.SetDriverData(ep)
	return device.Done, nil
}

func state(ctx *device.Context) *endpoint {
	ep, _ := ctx.DriverData().(*endpoint)
	return ep
}

// ioctlRT defers every request to the host domain: binding mutates the
// shared port table and has no bounded-time guarantee.
func ioctlRT(ctx *device.Context, request uint, arg any) (device.Verdict, error) {
	return device.DeferPeer, nil
}

func ioctlNRT(ctx *device.Context, request uint, arg any) (device.Verdict, error) {
	ep := state(ctx)
	if ep == nil {
		return device.Done, api.ErrInvalidArgument
	}
	switch request {
	case IoctlBind:
		addr, ok := arg.(*Addr)
		if !ok || addr.Port < 0 {
			return device.Done, api.ErrInvalidArgument
		}
		return device.Done, ep.bind(addr.Port)
	case IoctlQueueDepth:
		depth, ok := arg.(int)
		if !ok || depth <= 0 {
			return device.Done, api.ErrInvalidArgument
		}
		ep.mu.Lock()
		ep.depth = depth
		ep.mu.Unlock()
		return device.Done, nil
	default:
		return device.Done, api.ErrNotSupported
	}
}

func (ep *endpoint) bind(port int) error {
	ep.net.mu.Lock()
	defer ep.net.mu.Unlock()
	if _, taken := ep.net.ports[port]; taken {
		return api.ErrAlreadyExists
	}
	ep.mu.Lock()
	if ep.port >= 0 {
		ep.mu.Unlock()
		return api.ErrBusy
	}
	ep.port = port
	ep.mu.Unlock()
	ep.net.ports[port] = ep
	return nil
}

// sendmsg delivers one datagram to the endpoint bound at msg.Name. Both
// domain variants share it: the copy is bounded by the payload size.
func sendmsg(ctx *device.Context, msg *device.Message, flags int) (int, device.Verdict, error) {
	src := state(ctx)
	if src == nil || msg == nil {
		return 0, device.Done, api.ErrInvalidArgument
	}
	addr, ok := msg.Name.(*Addr)
	if !ok {
		return 0, device.Done, api.ErrInvalidArgument
	}

	src.net.mu.Lock()
	dst := src.net.ports[addr.Port]
	if dst != nil {
		dst.mu.Lock()
		dst.inflight++
		dst.mu.Unlock()
	}
	src.net.mu.Unlock()
	if dst == nil {
		return 0, device.Done, api.ErrNotFound
	}

	payload := flatten(msg.Buffers)
	from := Addr{Port: src.boundPort()}

	dst.mu.Lock()
	dst.inflight--
	if dst.released > 0 {
		// Teardown won the race while the payload was being copied. The
		// queue is dead and the semaphore destroyed, so report the peer gone
		// rather than dropping the datagram silently.
		dst.mu.Unlock()
		return 0, device.Done, api.ErrNotFound
	}
	if len(dst.queue) >= dst.depth {
		dst.mu.Unlock()
		return 0, device.Done, api.ErrBusy
	}
	dst.queue = append(dst.queue, datagram{from: from, payload: payload})
	dst.mu.Unlock()
	dst.avail.Up()
	return len(payload), device.Done, nil
}

// recvmsg blocks on the availability semaphore, then pops the oldest
// datagram into msg.Buffers. flags < 0 is a non-blocking try.
func recvmsg(ctx *device.Context, msg *device.Message, flags int) (int, device.Verdict, error) {
	ep := state(ctx)
	if ep == nil || msg == nil {
		return 0, device.Done, api.ErrInvalidArgument
	}
	timeout := synch.Infinite
	if flags < 0 {
		timeout = synch.NonBlocking
	}
	if err := ep.avail.TimedDown(timeout, nil); err != nil {
		return 0, device.Done, err
	}

	ep.mu.Lock()
	dg := ep.queue[0]
	ep.queue = ep.queue[1:]
	ep.mu.Unlock()

	if msg.Name != nil {
		if out, ok := msg.Name.(*Addr); ok {
			*out = dg.from
		}
	}
	n := scatter(dg.payload, msg.Buffers)
	return n, device.Done, nil
}

// closeEndpoint tears the endpoint down. A send still copying into the queue
// defers the close by one grace period; the teardown body runs once no
// matter how many times the finalizer re-invokes the handler.
func closeEndpoint(ctx *device.Context) (device.Verdict, error) {
	ep := state(ctx)
	if ep == nil {
		return device.Done, nil
	}
	ep.mu.Lock()
	if ep.inflight > 0 {
		ep.mu.Unlock()
		return device.DeferGrace, nil
	}
	ep.released++
	first := ep.released == 1
	port := ep.port
	ep.port = -1
	ep.queue = nil
	ep.mu.Unlock()

	if first {
		if port >= 0 {
			ep.net.mu.Lock()
			delete(ep.net.ports, port)
			ep.net.mu.Unlock()
		}
		ep.avail.Destroy()
	}
	return device.Done, nil
}

// selectBind exposes read readiness: the availability semaphore's level is
// exactly "queue non-empty".
func selectBind(ctx *device.Context, sel *synch.Selector, typ api.SelectType, index uint) error {
	ep := state(ctx)
	if ep == nil {
		return api.ErrInvalidArgument
	}
	if typ != api.SelectRead {
		return api.ErrNotSupported
	}
	return ep.avail.SelectBind(sel, typ, index)
}

func (ep *endpoint) boundPort() int {
	ep.mu.Lock()
	defer ep.mu.Unlock()
	return ep.port
}

func flatten(bufs [][]byte) []byte {
	total := 0
	for _, b := range bufs {
		total += len(b)
	}
	out := make([]byte, 0, total)
	for _, b := range bufs {
		out = append(out, b...)
	}
	return out
}

func scatter(payload []byte, bufs [][]byte) int {
	n := 0
	for _, b := range bufs {
		c := copy(b, payload[n:])
		n += c
		if n == len(payload) {
			break
		}
	}
	return n
}
