// Package dispatch maps domain-level change notifications onto tree
// invalidations. Arbitrary event producers (file watchers, clipboard,
// anything that can say "this may have changed") plug in as Sources
// through a small registry; the dispatcher resolves each event to
// concrete tree paths with the collect-all visitor and invalidates
// them. The core engine stays ignorant of event-source identities.
package dispatch

import (
	"context"
	"log"
	"sync"

	"github.com/vanderheijden86/espalier/pkg/debug"
	"github.com/vanderheijden86/espalier/pkg/model"
	"github.com/vanderheijden86/espalier/pkg/treemodel"
)

// Event is one domain-level change notification. Exactly one of the
// fields should be meaningful: All for a whole-tree change, Element for
// a domain-object change, File for a file or resource change.
type Event struct {
	All     bool
	Element string
	File    string
}

// Source produces events. Start returns the event stream; Stop releases
// the producer. Sources are registered with Dispatcher.Attach, which
// returns an explicit subscription handle released on teardown rather
// than an implicit disposal tree.
type Source interface {
	Start(ctx context.Context) (<-chan Event, error)
	Stop()
}

// Dispatcher translates events to invalidations.
type Dispatcher struct {
	structure *treemodel.StructureModel
	async     *treemodel.AsyncModel

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	handles map[int]*Handle
	nextID  int
}

// New creates a dispatcher over the given engine pair.
func New(structure *treemodel.StructureModel, async *treemodel.AsyncModel) *Dispatcher {
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		structure: structure,
		async:     async,
		ctx:       ctx,
		cancel:    cancel,
		handles:   make(map[int]*Handle),
	}
}

// UpdateAll invalidates the whole tree.
func (d *Dispatcher) UpdateAll() {
	d.structure.InvalidateAll()
}

// UpdatePath invalidates the subtree at the given resolved path.
func (d *Dispatcher) UpdatePath(path model.TreePath) {
	if len(path) == 0 {
		return
	}
	d.structure.Invalidate(path.Last(), true)
}

// UpdateByFile resolves every currently visible node backed by file and
// invalidates those subtrees. No visible match means nothing is stale
// on screen: a no-op, never an error.
func (d *Dispatcher) UpdateByFile(ctx context.Context, file string) error {
	return d.update(ctx, "", file)
}

// UpdateByElement is UpdateByFile for a domain-element key.
func (d *Dispatcher) UpdateByElement(ctx context.Context, element string) error {
	return d.update(ctx, element, "")
}

func (d *Dispatcher) update(ctx context.Context, element, file string) error {
	visitor := createVisitor(element, file)
	if visitor == nil {
		return nil
	}
	collector := model.NewCollector(visitor)
	if _, err := d.async.Visit(ctx, collector); err != nil {
		return err
	}
	paths := collector.Paths()
	debug.LogIf(len(paths) > 0, "update element=%q file=%q: %d paths", element, file, len(paths))
	for _, path := range paths {
		d.UpdatePath(path)
	}
	return nil
}

// Select resolves the path of a domain element, falling back to its
// backing file, for consumer-side selection. A call with neither key is
// misconfigured: it logs and resolves to nil rather than failing.
func (d *Dispatcher) Select(ctx context.Context, element, file string) (model.TreePath, error) {
	visitor := createVisitor(element, file)
	if visitor == nil {
		return nil, nil
	}
	return d.async.Visit(ctx, visitor)
}

func createVisitor(element, file string) model.Visitor {
	if element != "" {
		return model.NewElementVisitor(element, file)
	}
	if file != "" {
		return model.NewFileVisitor(file)
	}
	log.Printf("warning: cannot create visitor without element and/or file")
	return nil
}

// Handle is an explicit subscription handle for an attached source.
type Handle struct {
	once       sync.Once
	dispatcher *Dispatcher
	id         int
	source     Source
	cancel     context.CancelFunc
}

// Close detaches the source and stops it. Idempotent.
func (h *Handle) Close() {
	h.once.Do(func() {
		h.cancel()
		h.source.Stop()
		h.dispatcher.mu.Lock()
		delete(h.dispatcher.handles, h.id)
		h.dispatcher.mu.Unlock()
	})
}

// Attach starts a source and routes its events until the handle or the
// dispatcher is closed.
func (d *Dispatcher) Attach(src Source) (*Handle, error) {
	ctx, cancel := context.WithCancel(d.ctx)
	events, err := src.Start(ctx)
	if err != nil {
		cancel()
		return nil, err
	}

	d.mu.Lock()
	id := d.nextID
	d.nextID++
	handle := &Handle{dispatcher: d, id: id, source: src, cancel: cancel}
	d.handles[id] = handle
	d.mu.Unlock()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-events:
				if !ok {
					return
				}
				d.route(ctx, event)
			}
		}
	}()
	return handle, nil
}

func (d *Dispatcher) route(ctx context.Context, event Event) {
	switch {
	case event.All:
		d.UpdateAll()
	case event.Element != "":
		_ = d.UpdateByElement(ctx, event.Element)
	case event.File != "":
		_ = d.UpdateByFile(ctx, event.File)
	}
}

// Close detaches every source and waits for routing goroutines.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	handles := make([]*Handle, 0, len(d.handles))
	for _, h := range d.handles {
		handles = append(handles, h)
	}
	d.mu.Unlock()
	for _, h := range handles {
		h.Close()
	}
	d.cancel()
	d.wg.Wait()
}
