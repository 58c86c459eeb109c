// File: control/config_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package control

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func TestSetAndGet(t *testing.T) {
	cs := NewConfigStore()
	cs.Set(KeyCloseRetryBudget, 5)

	v, ok := cs.Get(KeyCloseRetryBudget)
	if !ok || v.(int) != 5 {
		t.Fatalf("get: %v %v", v, ok)
	}
	if got := cs.GetInt64(KeyCloseRetryBudget, 0); got != 5 {
		t.Fatalf("GetInt64: %d", got)
	}
	if got := cs.GetInt64("missing", 42); got != 42 {
		t.Fatalf("default: %d", got)
	}
}

func TestGetInt64Conversions(t *testing.T) {
	cs := NewConfigStore()
	cs.Set("a", int64(7))
	cs.Set("b", float64(8))
	cs.Set("c", "not a number")
	if cs.GetInt64("a", 0) != 7 || cs.GetInt64("b", 0) != 8 {
		t.Fatal("numeric conversions failed")
	}
	if cs.GetInt64("c", 9) != 9 {
		t.Fatal("non-numeric value did not fall back to default")
	}
}

func TestGetDuration(t *testing.T) {
	cs := NewConfigStore()
	cs.Set(KeyCloseGraceDelay, int64(5*time.Millisecond))
	if got := cs.GetDuration(KeyCloseGraceDelay, 0); got != 5*time.Millisecond {
		t.Fatalf("GetDuration: %v", got)
	}
}

func TestSnapshotIsCopy(t *testing.T) {
	cs := NewConfigStore()
	cs.Set("k", 1)
	snap := cs.GetSnapshot()
	snap["k"] = 2
	if v, _ := cs.Get("k"); v.(int) != 1 {
		t.Fatal("snapshot mutation leaked into the store")
	}
}

func TestReloadListeners(t *testing.T) {
	cs := NewConfigStore()
	var fired atomic.Int32
	cs.OnReload(func() { fired.Add(1) })

	cs.Set("k", 1)
	deadline := time.Now().Add(time.Second)
	for fired.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if fired.Load() == 0 {
		t.Fatal("reload listener never fired")
	}
}

func TestApplyYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "core.yaml")
	data := []byte("close_retry_budget: 7\nclose_grace_delay_ns: 1000000\n")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	cs := NewConfigStore()
	if err := ApplyYAMLFile(cs, path); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if got := cs.GetInt64(KeyCloseRetryBudget, 0); got != 7 {
		t.Fatalf("budget: %d", got)
	}
	if got := cs.GetDuration(KeyCloseGraceDelay, 0); got != time.Millisecond {
		t.Fatalf("grace delay: %v", got)
	}
}

func TestApplyYAMLFileErrors(t *testing.T) {
	cs := NewConfigStore()
	if err := ApplyYAMLFile(cs, filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("missing file accepted")
	}
	path := filepath.Join(t.TempDir(), "broken.yaml")
	if err := os.WriteFile(path, []byte(":\n\t-"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := ApplyYAMLFile(cs, path); err == nil {
		t.Fatal("malformed yaml accepted")
	}
}

func TestMetricsRegistry(t *testing.T) {
	mr := NewMetricsRegistry()
	mr.Inc("opens")
	mr.Inc("opens")
	mr.Set("gauge", 3)
	if mr.Counter("opens") != 2 {
		t.Fatalf("counter: %d", mr.Counter("opens"))
	}
	snap := mr.GetSnapshot()
	if snap["opens"].(int64) != 2 || snap["gauge"].(int) != 3 {
		t.Fatalf("snapshot: %+v", snap)
	}
}

func TestMetricsNilRegistry(t *testing.T) {
	var mr *MetricsRegistry
	mr.Inc("x")
	mr.Set("y", 1)
	if mr.Counter("x") != 0 || mr.GetSnapshot() != nil {
		t.Fatal("nil registry not inert")
	}
}
