// Package watcher monitors a set of directories for changes using
// fsnotify with a polling fallback, coalescing event bursts before
// handing per-path change notifications to the caller. The tree engine
// wires these notifications into file-keyed invalidations.
package watcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultPollInterval is the default polling interval for fallback mode.
const DefaultPollInterval = 2 * time.Second

// ErrAlreadyStarted is returned by Start on a running watcher.
var ErrAlreadyStarted = errors.New("watcher already started")

// Event is one coalesced change notification.
type Event struct {
	// Path is the affected file or directory.
	Path string
	// Removed is true when the path disappeared.
	Removed bool
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounceDuration sets the coalescing window.
func WithDebounceDuration(d time.Duration) Option {
	return func(w *Watcher) { w.debounceDuration = d }
}

// WithPollInterval sets the polling interval for fallback mode.
func WithPollInterval(d time.Duration) Option {
	return func(w *Watcher) { w.pollInterval = d }
}

// WithOnError sets the callback invoked on watch errors.
func WithOnError(fn func(error)) Option {
	return func(w *Watcher) { w.onError = fn }
}

// WithForcePoll forces polling mode even if fsnotify is available.
func WithForcePoll(force bool) Option {
	return func(w *Watcher) { w.forcePoll = force }
}

// Watcher monitors registered directories for changes.
type Watcher struct {
	debounceDuration time.Duration
	pollInterval     time.Duration
	onError          func(error)
	forcePoll        bool

	fsWatcher   *fsnotify.Watcher
	debouncer   *Debouncer
	useFallback bool

	mu      sync.RWMutex
	started bool
	dirs    map[string]bool
	// Last observed mtime per watched dir, for the polling path.
	mtimes map[string]time.Time

	ctx    context.Context
	cancel context.CancelFunc
	events chan Event
}

// New creates a watcher with no directories registered yet.
func New(opts ...Option) *Watcher {
	w := &Watcher{
		debounceDuration: DefaultDebounceDuration,
		pollInterval:     DefaultPollInterval,
		onError:          func(error) {},
		dirs:             make(map[string]bool),
		mtimes:           make(map[string]time.Time),
		events:           make(chan Event, 16),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.debouncer = NewDebouncer(w.debounceDuration)
	return w
}

// Events returns the coalesced change stream. The channel is owned by
// the watcher and never closed; select against your own done signal.
func (w *Watcher) Events() <-chan Event { return w.events }

// Start begins watching. Polling mode is forced by the option or the
// ESPALIER_FORCE_POLL environment variable, and is the automatic
// fallback when fsnotify cannot initialize.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return ErrAlreadyStarted
	}
	w.ctx, w.cancel = context.WithCancel(context.Background())

	w.useFallback = w.forcePoll || envBool("ESPALIER_FORCE_POLL")
	if !w.useFallback {
		fsw, err := fsnotify.NewWatcher()
		if err != nil {
			w.useFallback = true
		} else {
			w.fsWatcher = fsw
			for dir := range w.dirs {
				if err := fsw.Add(dir); err != nil {
					w.onError(err)
				}
			}
			go w.watchFsnotify()
		}
	}
	if w.useFallback {
		go w.watchPolling()
	}

	w.started = true
	return nil
}

// Stop stops watching. Pending debounced notifications are dropped.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.started {
		return
	}
	w.cancel()
	if w.fsWatcher != nil {
		w.fsWatcher.Close()
		w.fsWatcher = nil
	}
	w.debouncer.Cancel()
	w.started = false
}

// IsPolling reports whether the watcher runs in polling mode.
func (w *Watcher) IsPolling() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.useFallback
}

// Add registers a directory. May be called before or after Start; the
// tree engine calls it as directories become visible.
func (w *Watcher) Add(dir string) error {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.dirs[abs] {
		return nil
	}
	w.dirs[abs] = true
	if info, err := os.Stat(abs); err == nil {
		w.mtimes[abs] = info.ModTime()
	}
	if w.started && w.fsWatcher != nil {
		return w.fsWatcher.Add(abs)
	}
	return nil
}

// Remove unregisters a directory.
func (w *Watcher) Remove(dir string) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.dirs[abs] {
		return
	}
	delete(w.dirs, abs)
	delete(w.mtimes, abs)
	if w.started && w.fsWatcher != nil {
		_ = w.fsWatcher.Remove(abs)
	}
}

func (w *Watcher) watchFsnotify() {
	w.mu.RLock()
	if w.fsWatcher == nil {
		w.mu.RUnlock()
		return
	}
	events := w.fsWatcher.Events
	errs := w.fsWatcher.Errors
	w.mu.RUnlock()

	for {
		select {
		case <-w.ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			path := event.Name
			if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
				w.notify(Event{Path: path, Removed: true})
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Chmod) != 0 {
				w.debouncer.Trigger(path, func() {
					w.notify(Event{Path: path})
				})
			}
		case err, ok := <-errs:
			if !ok {
				return
			}
			w.onError(err)
		}
	}
}

func (w *Watcher) watchPolling() {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.pollOnce()
		}
	}
}

// pollOnce stats every watched directory; a bumped mtime means an entry
// was added, removed or renamed inside it.
func (w *Watcher) pollOnce() {
	w.mu.Lock()
	dirs := make([]string, 0, len(w.dirs))
	for dir := range w.dirs {
		dirs = append(dirs, dir)
	}
	w.mu.Unlock()

	for _, dir := range dirs {
		info, err := os.Stat(dir)
		if err != nil {
			if os.IsNotExist(err) {
				w.mu.Lock()
				tracked := w.dirs[dir]
				delete(w.dirs, dir)
				delete(w.mtimes, dir)
				w.mu.Unlock()
				if tracked {
					w.notify(Event{Path: dir, Removed: true})
				}
				continue
			}
			w.onError(err)
			continue
		}
		w.mu.Lock()
		last := w.mtimes[dir]
		changed := info.ModTime().After(last)
		if changed {
			w.mtimes[dir] = info.ModTime()
		}
		w.mu.Unlock()
		if changed {
			dir := dir
			w.debouncer.Trigger(dir, func() {
				w.notify(Event{Path: dir})
			})
		}
	}
}

// notify delivers an event without blocking the watch goroutine; a full
// channel drops the oldest pending event first.
func (w *Watcher) notify(event Event) {
	w.mu.RLock()
	started := w.started
	w.mu.RUnlock()
	if !started {
		return
	}
	for {
		select {
		case w.events <- event:
			return
		default:
		}
		select {
		case <-w.events:
		default:
		}
	}
}

func envBool(name string) bool {
	v := strings.TrimSpace(os.Getenv(name))
	switch strings.ToLower(v) {
	case "1", "true", "yes", "y", "on":
		return true
	default:
		return false
	}
}
