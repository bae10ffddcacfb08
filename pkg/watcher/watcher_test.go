package watcher

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func awaitEvent(t *testing.T, w *Watcher, timeout time.Duration) Event {
	t.Helper()
	select {
	case e := <-w.Events():
		return e
	case <-time.After(timeout):
		t.Fatal("no event within timeout")
		return Event{}
	}
}

func TestWatcherDetectsNewFile(t *testing.T) {
	dir := t.TempDir()
	w := New(WithDebounceDuration(10 * time.Millisecond))
	if err := w.Add(dir); err != nil {
		t.Fatal(err)
	}
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	if err := os.WriteFile(filepath.Join(dir, "new.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	e := awaitEvent(t, w, 3*time.Second)
	if e.Removed {
		t.Errorf("expected a change event, got a removal for %s", e.Path)
	}
}

func TestWatcherDetectsRemoval(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doomed.txt")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	w := New(WithDebounceDuration(10 * time.Millisecond))
	if err := w.Add(dir); err != nil {
		t.Fatal(err)
	}
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	// fsnotify reports the removal of the entry itself; polling mode
	// reports a change of the containing directory. Either way an event
	// arrives.
	awaitEvent(t, w, 3*time.Second)
}

func TestWatcherPollingMode(t *testing.T) {
	dir := t.TempDir()
	w := New(
		WithForcePoll(true),
		WithPollInterval(20*time.Millisecond),
		WithDebounceDuration(10*time.Millisecond),
	)
	if err := w.Add(dir); err != nil {
		t.Fatal(err)
	}
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	if !w.IsPolling() {
		t.Fatal("expected polling mode")
	}

	// Directory mtime resolution can be a full second on some
	// filesystems; nudge it explicitly instead of sleeping it out.
	future := time.Now().Add(2 * time.Second)
	if err := os.WriteFile(filepath.Join(dir, "new.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Chtimes(dir, future, future); err != nil {
		t.Fatal(err)
	}

	e := awaitEvent(t, w, 3*time.Second)
	if e.Path != dir {
		t.Errorf("expected an event for %s, got %s", dir, e.Path)
	}
}

func TestWatcherPollingReportsVanishedDir(t *testing.T) {
	parent := t.TempDir()
	dir := filepath.Join(parent, "sub")
	if err := os.Mkdir(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	w := New(WithForcePoll(true), WithPollInterval(20*time.Millisecond))
	if err := w.Add(dir); err != nil {
		t.Fatal(err)
	}
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	if err := os.Remove(dir); err != nil {
		t.Fatal(err)
	}
	e := awaitEvent(t, w, 3*time.Second)
	if !e.Removed || e.Path != dir {
		t.Errorf("expected removal of %s, got %+v", dir, e)
	}
}

func TestWatcherStartTwice(t *testing.T) {
	w := New()
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()
	if err := w.Start(); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("expected ErrAlreadyStarted, got %v", err)
	}
}

func TestWatcherAddIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	w := New()
	if err := w.Add(dir); err != nil {
		t.Fatal(err)
	}
	if err := w.Add(dir); err != nil {
		t.Fatal(err)
	}
	w.mu.RLock()
	n := len(w.dirs)
	w.mu.RUnlock()
	if n != 1 {
		t.Errorf("expected one registered directory, got %d", n)
	}
}

func TestWatcherRemoveUnregisters(t *testing.T) {
	dir := t.TempDir()
	w := New(WithForcePoll(true), WithPollInterval(20*time.Millisecond))
	if err := w.Add(dir); err != nil {
		t.Fatal(err)
	}
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()
	w.Remove(dir)

	future := time.Now().Add(2 * time.Second)
	if err := os.Chtimes(dir, future, future); err != nil {
		t.Fatal(err)
	}
	select {
	case e := <-w.Events():
		t.Errorf("unexpected event after Remove: %+v", e)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestWatcherStopDropsPendingDebounce(t *testing.T) {
	dir := t.TempDir()
	w := New(WithForcePoll(true), WithPollInterval(10*time.Millisecond), WithDebounceDuration(100*time.Millisecond))
	if err := w.Add(dir); err != nil {
		t.Fatal(err)
	}
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}

	future := time.Now().Add(2 * time.Second)
	if err := os.Chtimes(dir, future, future); err != nil {
		t.Fatal(err)
	}
	time.Sleep(50 * time.Millisecond) // poll fires, debounce still pending
	w.Stop()
	time.Sleep(150 * time.Millisecond)
	select {
	case e := <-w.Events():
		t.Errorf("unexpected event after Stop: %+v", e)
	default:
	}
}
