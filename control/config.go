// control/config.go
// Author: momentics <momentics@gmail.com>
//
// Thread-safe configuration store with dynamic update and hot-reload
// propagation. Holds the tunables of the driver core: close grace delay,
// close retry budget, unregister poll delay, executor queue depth.

package control

import (
	"sync"
	"time"
)

// Well-known configuration keys.
const (
	KeyCloseGraceDelay     = "close_grace_delay_ns"
	KeyCloseRetryBudget    = "close_retry_budget"
	KeyUnregisterPollDelay = "unregister_poll_delay_ns"
	KeyExecutorQueueDepth  = "executor_queue_depth"
	KeyTimerServiceCPU     = "timer_service_cpu"
)

// ConfigStore is a dynamic key/value map with atomic snapshot and listener support.
type ConfigStore struct {
	mu        sync.RWMutex
	config    map[string]any
	listeners []func()
}

// NewConfigStore initializes a new config store with empty data.
func NewConfigStore() *ConfigStore {
	return &ConfigStore{
		config:    make(map[string]any),
		listeners: make([]func(), 0),
	}
}

// GetSnapshot returns a copy of all config values.
func (cs *ConfigStore) GetSnapshot() map[string]any {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	out := make(map[string]any, len(cs.config))
	for k, v := range cs.config {
		out[k] = v
	}
	return out
}

// SetConfig merges new values and dispatches reload listeners.
func (cs *ConfigStore) SetConfig(newCfg map[string]any) {
	cs.mu.Lock()
	for k, v := range newCfg {
		cs.config[k] = v
	}
	listeners := append([]func(){}, cs.listeners...)
	cs.mu.Unlock()
	for _, fn := range listeners {
		go fn()
	}
}

// Set assigns a single key.
func (cs *ConfigStore) Set(key string, value any) {
	cs.SetConfig(map[string]any{key: value})
}

// Get fetches a raw value, returning (value, exists).
func (cs *ConfigStore) Get(key string) (any, bool) {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	v, ok := cs.config[key]
	return v, ok
}

// GetInt64 fetches an integer value with a fallback default. YAML decoding
// and direct Set calls may store int, int64 or float64; all are accepted.
func (cs *ConfigStore) GetInt64(key string, def int64) int64 {
	v, ok := cs.Get(key)
	if !ok {
		return def
	}
	switch n := v.(type) {
	case int:
		return int64(n)
	case int64:
		return n
	case float64:
		return int64(n)
	default:
		return def
	}
}

// GetDuration fetches a nanosecond value as a time.Duration.
func (cs *ConfigStore) GetDuration(key string, def time.Duration) time.Duration {
	return time.Duration(cs.GetInt64(key, int64(def)))
}

// OnReload registers a listener hook called on config changes.
func (cs *ConfigStore) OnReload(fn func()) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.listeners = append(cs.listeners, fn)
}
