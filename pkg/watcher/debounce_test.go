package watcher

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestDebouncerCoalescesBurst(t *testing.T) {
	d := NewDebouncer(20 * time.Millisecond)
	var fired atomic.Int32
	for i := 0; i < 10; i++ {
		d.Trigger("key", func() { fired.Add(1) })
	}
	time.Sleep(100 * time.Millisecond)
	if got := fired.Load(); got != 1 {
		t.Errorf("expected one firing for a burst, got %d", got)
	}
}

func TestDebouncerKeysAreIndependent(t *testing.T) {
	d := NewDebouncer(20 * time.Millisecond)
	var fired atomic.Int32
	d.Trigger("a", func() { fired.Add(1) })
	d.Trigger("b", func() { fired.Add(1) })
	time.Sleep(100 * time.Millisecond)
	if got := fired.Load(); got != 2 {
		t.Errorf("expected both keys to fire, got %d", got)
	}
}

func TestDebouncerResetExtendsWindow(t *testing.T) {
	d := NewDebouncer(50 * time.Millisecond)
	var fired atomic.Int32
	d.Trigger("key", func() { fired.Add(1) })
	time.Sleep(30 * time.Millisecond)
	d.Trigger("key", func() { fired.Add(1) })
	time.Sleep(30 * time.Millisecond)
	if got := fired.Load(); got != 0 {
		t.Fatalf("window must reset on re-trigger, got %d firings", got)
	}
	time.Sleep(60 * time.Millisecond)
	if got := fired.Load(); got != 1 {
		t.Errorf("expected one firing after the quiet period, got %d", got)
	}
}

func TestDebouncerCancelDropsPending(t *testing.T) {
	d := NewDebouncer(20 * time.Millisecond)
	var fired atomic.Int32
	d.Trigger("a", func() { fired.Add(1) })
	d.Trigger("b", func() { fired.Add(1) })
	d.Cancel()
	time.Sleep(60 * time.Millisecond)
	if got := fired.Load(); got != 0 {
		t.Errorf("expected no firings after Cancel, got %d", got)
	}
}

func TestDebouncerNonPositiveDurationFallsBack(t *testing.T) {
	d := NewDebouncer(0)
	if d.duration != DefaultDebounceDuration {
		t.Errorf("expected default window, got %v", d.duration)
	}
}
