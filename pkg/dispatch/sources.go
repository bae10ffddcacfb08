package dispatch

import (
	"context"
	"time"

	"github.com/atotto/clipboard"

	"github.com/vanderheijden86/espalier/pkg/watcher"
)

// FileSource adapts a directory watcher into file-keyed change events.
type FileSource struct {
	watcher *watcher.Watcher
}

// NewFileSource wraps w. The caller registers directories on w; the
// source owns starting and stopping it.
func NewFileSource(w *watcher.Watcher) *FileSource {
	return &FileSource{watcher: w}
}

// Start implements Source.
func (s *FileSource) Start(ctx context.Context) (<-chan Event, error) {
	if err := s.watcher.Start(); err != nil {
		return nil, err
	}
	events := make(chan Event)
	go func() {
		defer close(events)
		for {
			select {
			case <-ctx.Done():
				return
			case e := <-s.watcher.Events():
				select {
				case events <- Event{File: e.Path}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return events, nil
}

// Stop implements Source.
func (s *FileSource) Stop() {
	s.watcher.Stop()
}

// DefaultClipboardInterval is how often the clipboard source polls for
// new content.
const DefaultClipboardInterval = time.Second

// ClipboardSource polls the system clipboard and reports its content as
// a domain-element change, so nodes wrapping a copied element refresh
// their presentation (cut/copy affordances) without a full reload. The
// clipboard offers no push notification, hence the poll.
type ClipboardSource struct {
	// Interval overrides DefaultClipboardInterval when positive.
	Interval time.Duration

	last string
}

// Start implements Source.
func (s *ClipboardSource) Start(ctx context.Context) (<-chan Event, error) {
	interval := s.Interval
	if interval <= 0 {
		interval = DefaultClipboardInterval
	}
	if content, err := clipboard.ReadAll(); err == nil {
		s.last = content
	}

	events := make(chan Event)
	go func() {
		defer close(events)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				content, err := clipboard.ReadAll()
				if err != nil || content == s.last {
					continue
				}
				prev := s.last
				s.last = content
				// Both the previously copied element and the new one
				// may need their presentation refreshed.
				for _, element := range []string{prev, content} {
					if element == "" {
						continue
					}
					select {
					case events <- Event{Element: element}:
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}()
	return events, nil
}

// Stop implements Source.
func (s *ClipboardSource) Stop() {}
