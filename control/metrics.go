// control/metrics.go
// Author: momentics <momentics@gmail.com>
//
// Runtime metrics collector for system-level monitoring.
// Exposes counters in a thread-safe map with dynamic registration.

package control

import (
	"sync"
	"time"
)

// MetricsRegistry holds mutable and read-only metrics.
type MetricsRegistry struct {
	mu       sync.RWMutex
	metrics  map[string]any
	counters map[string]int64
	updated  time.Time
}

// NewMetricsRegistry creates an empty registry.
func NewMetricsRegistry() *MetricsRegistry {
	return &MetricsRegistry{
		metrics:  make(map[string]any),
		counters: make(map[string]int64),
	}
}

// Set sets or updates a metric key.
func (mr *MetricsRegistry) Set(key string, value any) {
	if mr == nil {
		return
	}
	mr.mu.Lock()
	mr.metrics[key] = value
	mr.updated = time.Now()
	mr.mu.Unlock()
}

// Inc increments a counter metric by one. Safe on a nil registry so callers
// can treat metrics as optional.
func (mr *MetricsRegistry) Inc(key string) {
	if mr == nil {
		return
	}
	mr.mu.Lock()
	mr.counters[key]++
	mr.updated = time.Now()
	mr.mu.Unlock()
}

// Counter returns the current value of a counter.
func (mr *MetricsRegistry) Counter(key string) int64 {
	if mr == nil {
		return 0
	}
	mr.mu.RLock()
	defer mr.mu.RUnlock()
	return mr.counters[key]
}

// GetSnapshot returns the latest metrics, counters included.
func (mr *MetricsRegistry) GetSnapshot() map[string]any {
	if mr == nil {
		return nil
	}
	mr.mu.RLock()
	defer mr.mu.RUnlock()
	out := make(map[string]any, len(mr.metrics)+len(mr.counters))
	for k, v := range mr.metrics {
		out[k] = v
	}
	for k, v := range mr.counters {
		out[k] = v
	}
	return out
}
