package treemodel

import (
	"sync"

	"github.com/vanderheijden86/espalier/pkg/model"
)

// AsyncModel is the sole read surface for consumers. Reads serve the
// last-known shape immediately and never block on the materializer;
// staleness resolves asynchronously and surfaces through the
// subscription stream. The one suspension point is Visit, which awaits
// pending materializations of the nodes it descends into.
type AsyncModel struct {
	structure *StructureModel

	mu       sync.RWMutex
	children map[model.NodeID][]model.NodeID
	payloads map[model.NodeID]model.Payload

	subMu   sync.Mutex
	subs    map[int]func([]model.ChangeRecord)
	nextSub int

	applied chan struct{} // closed when the apply loop exits
}

// NewAsyncModel layers the asynchronous front over a structure model
// and starts consuming its update stream. The root is readable
// immediately, before its first materialization lands.
func NewAsyncModel(s *StructureModel) *AsyncModel {
	m := &AsyncModel{
		structure: s,
		children:  make(map[model.NodeID][]model.NodeID),
		payloads:  make(map[model.NodeID]model.Payload),
		subs:      make(map[int]func([]model.ChangeRecord)),
		applied:   make(chan struct{}),
	}
	go m.applyLoop()
	return m
}

// Root returns the root identifier immediately.
func (m *AsyncModel) Root() model.NodeID { return m.structure.Root() }

// Children returns the cached child list of id along with a staleness
// flag. It never blocks: an unknown or dirty node returns the
// last-known (possibly empty) list with stale set, and the read itself
// schedules the materialization that will refresh it.
func (m *AsyncModel) Children(id model.NodeID) ([]model.NodeID, bool) {
	m.mu.RLock()
	cached := m.children[id]
	m.mu.RUnlock()

	_, state := m.structure.store.snapshotOf(id)
	switch state {
	case stateGone:
		return nil, false
	case stateFresh:
		return append([]model.NodeID(nil), cached...), false
	}
	// Not settled: make sure a materialization is on its way, without
	// bumping the invalidation seq of an already-scheduled node.
	m.structure.store.schedule(id)
	return append([]model.NodeID(nil), cached...), true
}

// Payload returns the cached payload of id. ok is false for nodes that
// have never materialized.
func (m *AsyncModel) Payload(id model.NodeID) (model.Payload, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	payload, ok := m.payloads[id]
	return payload, ok
}

// Subscription is an explicit handle for a change-record subscription.
// Close releases it deterministically; closing twice is a no-op.
type Subscription struct {
	once  sync.Once
	model *AsyncModel
	id    int
}

// Close removes the subscription.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.model.subMu.Lock()
		delete(s.model.subs, s.id)
		s.model.subMu.Unlock()
	})
}

// Subscribe registers fn for materialization deltas. Batches for a
// given node arrive in the order the materializer produced them; fn
// runs on the apply goroutine and must not block for long.
func (m *AsyncModel) Subscribe(fn func([]model.ChangeRecord)) *Subscription {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = fn
	return &Subscription{model: m, id: id}
}

// Done is closed once the structure model stopped and all pending
// updates were applied to the cache.
func (m *AsyncModel) Done() <-chan struct{} { return m.applied }

// applyLoop patches the cache with each materialization result and fans
// the records out to subscribers, in stream order.
func (m *AsyncModel) applyLoop() {
	defer close(m.applied)
	for update := range m.structure.Updates() {
		m.apply(update)
		if len(update.Records) == 0 {
			continue
		}
		m.subMu.Lock()
		fns := make([]func([]model.ChangeRecord), 0, len(m.subs))
		for _, fn := range m.subs {
			fns = append(fns, fn)
		}
		m.subMu.Unlock()
		for _, fn := range fns {
			fn(update.Records)
		}
	}
}

func (m *AsyncModel) apply(update Update) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if update.Snapshot == nil {
		// Node gone: detach from the cached parent list and forget the
		// subtree lazily (descendant entries are dropped as visited).
		delete(m.children, update.Node)
		delete(m.payloads, update.Node)
		for _, record := range update.Records {
			if record.Kind != model.ChangeRemoved {
				continue
			}
			m.children[record.Parent] = without(m.children[record.Parent], record.Node)
		}
		return
	}
	m.children[update.Node] = append([]model.NodeID(nil), update.Snapshot.Children...)
	m.payloads[update.Node] = update.Snapshot.Payload
	for _, record := range update.Records {
		if record.Kind == model.ChangeRemoved {
			delete(m.children, record.Node)
			delete(m.payloads, record.Node)
		}
	}
}

func without(ids []model.NodeID, drop model.NodeID) []model.NodeID {
	kept := ids[:0]
	for _, id := range ids {
		if id != drop {
			kept = append(kept, id)
		}
	}
	return kept
}
