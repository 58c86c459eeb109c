// File: rtcore.go
// Package rtcore assembles the driver core: scheduler registry, slab
// allocator, timer service, interrupt space, the dual-context execution
// services and the device registry, wired from one configuration.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package rtcore

import (
	"log"
	"time"

	"github.com/momentics/rtcore/api"
	"github.com/momentics/rtcore/control"
	"github.com/momentics/rtcore/device"
	"github.com/momentics/rtcore/internal/concurrency"
	"github.com/momentics/rtcore/irq"
	"github.com/momentics/rtcore/pool"
	"github.com/momentics/rtcore/sched"
	"github.com/momentics/rtcore/task"
	"github.com/momentics/rtcore/timer"
)

// TimerTaskPriority is the priority the timer service runs at. Expiry
// handlers feed timeouts to everything else, so it outranks ordinary tasks.
const TimerTaskPriority = 99

// Config carries the tunables of a core instance.
type Config struct {
	// AllocBudget bounds outstanding context-private bytes. <= 0 disables
	// the limit.
	AllocBudget int64

	// TimerCPU pins the timer service goroutine to a CPU; -1 leaves it
	// unpinned.
	TimerCPU int

	// RealtimeCPU pins the real-time caller service goroutine; -1 leaves it
	// unpinned.
	RealtimeCPU int

	// CloseGraceDelay separates close-handler retries.
	CloseGraceDelay time.Duration

	// CloseRetryBudget bounds close-handler retries per context.
	CloseRetryBudget int

	// ConfigFile optionally overlays a flat YAML mapping onto the config
	// store after the defaults above are applied.
	ConfigFile string
}

// DefaultConfig returns the stock configuration.
func DefaultConfig() Config {
	return Config{
		AllocBudget:      0,
		TimerCPU:         -1,
		RealtimeCPU:      -1,
		CloseGraceDelay:  device.DefaultCloseGraceDelay,
		CloseRetryBudget: device.DefaultCloseRetryBudget,
	}
}

// Core is one assembled driver-core instance.
type Core struct {
	Sched    *sched.Sched
	Alloc    *pool.SlabAllocator
	Clock    api.Clock
	Timers   *timer.Service
	IRQ      *irq.Space
	Registry *device.Registry
	Control  *control.ConfigStore
	Metrics  *control.MetricsRegistry

	nrt *concurrency.DeferredExecutor
	rt  *concurrency.RTCaller
}

// New assembles a core from the given configuration.
func New(cfg Config) (*Core, error) {
	c := &Core{
		Sched:   sched.New(),
		Alloc:   pool.NewSlabAllocator(cfg.AllocBudget),
		Clock:   timer.NewSystemClock(),
		IRQ:     irq.NewSpace(),
		Control: control.NewConfigStore(),
		Metrics: control.NewMetricsRegistry(),
	}

	c.Control.SetConfig(map[string]any{
		control.KeyCloseGraceDelay:  int64(cfg.CloseGraceDelay),
		control.KeyCloseRetryBudget: int64(cfg.CloseRetryBudget),
		control.KeyTimerServiceCPU:  int64(cfg.TimerCPU),
	})
	if cfg.ConfigFile != "" {
		if err := control.ApplyYAMLFile(c.Control, cfg.ConfigFile); err != nil {
			return nil, err
		}
	}

	c.nrt = concurrency.NewDeferredExecutor()
	c.rt = concurrency.NewRTCaller(cfg.RealtimeCPU, func() {
		c.Sched.Adopt("rtcall", TimerTaskPriority, api.Realtime, nil)
	})

	timerCPU := int(c.Control.GetInt64(control.KeyTimerServiceCPU, int64(cfg.TimerCPU)))
	c.Timers = timer.NewService(c.Clock, timerCPU, func() {
		c.Sched.Adopt("timerd", TimerTaskPriority, api.Realtime, nil)
	})

	c.Registry = device.NewRegistry(device.Options{
		Scheduler: c.Sched,
		Allocator: c.Alloc,
		Clock:     c.Clock,
		Deferred:  c.nrt,
		Realtime:  c.rt,
		Config:    c.Control,
		Metrics:   c.Metrics,
	})

	log.Printf("[rtcore] core assembled (timer cpu=%d, rt cpu=%d)", timerCPU, cfg.RealtimeCPU)
	return c, nil
}

// Deferred exposes the host-domain work queue.
func (c *Core) Deferred() api.Executor { return c.nrt }

// RealtimeCaller exposes the synchronous real-time call service.
func (c *Core) RealtimeCaller() api.Caller { return c.rt }

// SpawnTask starts a real-time task on the core's scheduler and clock.
func (c *Core) SpawnTask(name string, proc task.Proc, priority int, period time.Duration) *task.Task {
	return task.New(c.Sched, c.Clock, name, proc, priority, period)
}

// Stats aggregates counters from the core's components.
func (c *Core) Stats() map[string]int64 {
	out := make(map[string]int64)
	for k, v := range c.Registry.Stats() {
		out["registry."+k] = v
	}
	for k, v := range c.Alloc.Stats() {
		out["alloc."+k] = v
	}
	for k, v := range c.nrt.Stats() {
		out["deferred."+k] = v
	}
	return out
}

// Shutdown stops the core's services. Pending deferred work, finalizations
// included, drains before the executors stop.
func (c *Core) Shutdown() error {
	c.Timers.Close()
	c.nrt.Close()
	c.rt.Close()
	log.Printf("[rtcore] core shut down")
	return nil
}

var _ api.GracefulShutdown = (*Core)(nil)
