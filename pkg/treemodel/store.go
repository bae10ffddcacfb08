// Package treemodel implements the synchronization engine between a
// mutable external structure provider and a consumer-facing tree view:
// a single-writer snapshot store, a coalescing invalidation queue, a
// background materializer producing minimal change records, and an
// asynchronous read front with a predicate-driven visit primitive.
package treemodel

import (
	"sync"

	"github.com/vanderheijden86/espalier/pkg/model"
)

// nodeState tracks one node's lifecycle:
// Absent -> Materializing -> Fresh -> Dirty -> Materializing -> ... -> Gone.
// Gone ends the incarnation, not the identity: when a parent's fresh
// snapshot references the NodeID again, the entry restarts at Absent.
type nodeState int

const (
	stateAbsent nodeState = iota
	stateMaterializing
	stateFresh
	stateDirty
	stateGone
)

func (s nodeState) String() string {
	switch s {
	case stateAbsent:
		return "absent"
	case stateMaterializing:
		return "materializing"
	case stateFresh:
		return "fresh"
	case stateDirty:
		return "dirty"
	case stateGone:
		return "gone"
	default:
		return "unknown"
	}
}

// waiter receives the snapshot produced by the next completed
// materialization of a node (nil when the node turned out to be gone).
// Buffered by one so an abandoned waiter never blocks the worker.
type waiter chan *model.NodeSnapshot

// entry is the store's per-node record. All fields are guarded by the
// store mutex.
type entry struct {
	state    nodeState
	parent   model.NodeID
	snapshot *model.NodeSnapshot

	// seq counts invalidations; claimedSeq is the value captured when a
	// worker started the in-flight materialization. A completion only
	// clears the dirty state when seq still equals claimedSeq,
	// otherwise the node is requeued. This is the re-check-after-clear
	// that makes coalescing lossless.
	seq        uint64
	claimedSeq uint64

	waiters []waiter
}

// store is the snapshot store plus the coalescing dirty queue. It has
// exactly one writer side (the materializer workers mutate snapshots
// through complete/fail/drop) while invalidations may arrive from any
// goroutine.
type store struct {
	mu     sync.Mutex
	root   model.NodeID
	nodes  map[model.NodeID]*entry
	queue  []model.NodeID
	queued map[model.NodeID]bool

	// wake signals the workers that the queue may be non-empty.
	wake chan struct{}
}

func newStore(root model.NodeID) *store {
	s := &store{
		root:   root,
		nodes:  make(map[model.NodeID]*entry),
		queued: make(map[model.NodeID]bool),
		wake:   make(chan struct{}, 1),
	}
	s.nodes[root] = &entry{state: stateAbsent}
	return s
}

func (s *store) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *store) ensureLocked(id model.NodeID) *entry {
	e := s.nodes[id]
	if e == nil {
		e = &entry{state: stateAbsent}
		s.nodes[id] = e
	}
	return e
}

func (s *store) enqueueLocked(id model.NodeID) {
	if s.queued[id] {
		return
	}
	s.queued[id] = true
	s.queue = append(s.queue, id)
}

// markDirty records an invalidation of id. Insertion is idempotent: a
// node already queued coalesces, and a node mid-materialization is not
// requeued here; the completing worker notices the advanced seq and
// schedules exactly one follow-up run.
func (s *store) markDirty(id model.NodeID) {
	s.mu.Lock()
	e := s.ensureLocked(id)
	if e.state == stateGone {
		s.mu.Unlock()
		return
	}
	e.seq++
	if e.state == stateFresh || e.state == stateAbsent {
		e.state = stateDirty
	}
	if e.state != stateMaterializing {
		s.enqueueLocked(id)
	}
	s.mu.Unlock()
	s.signal()
}

// schedule makes sure id has a materialization on the way without
// counting as a fresh invalidation: an in-flight or settled node is
// left alone. Used by non-blocking reads that merely demand a first
// shape.
func (s *store) schedule(id model.NodeID) {
	s.mu.Lock()
	e := s.ensureLocked(id)
	switch e.state {
	case stateAbsent:
		e.state = stateDirty
		e.seq++
		s.enqueueLocked(id)
	case stateDirty:
		s.enqueueLocked(id)
	}
	s.mu.Unlock()
	s.signal()
}

// markSubtreeDirty marks id and every already-materialized descendant
// dirty (the eager flavor of recursive invalidation).
func (s *store) markSubtreeDirty(id model.NodeID) {
	s.mu.Lock()
	s.markSubtreeDirtyLocked(id)
	s.mu.Unlock()
	s.signal()
}

func (s *store) markSubtreeDirtyLocked(id model.NodeID) {
	e := s.nodes[id]
	if e == nil || e.state == stateGone {
		return
	}
	e.seq++
	if e.state == stateFresh || e.state == stateAbsent {
		e.state = stateDirty
	}
	if e.state != stateMaterializing {
		s.enqueueLocked(id)
	}
	if e.snapshot == nil {
		return
	}
	for _, child := range e.snapshot.Children {
		s.markSubtreeDirtyLocked(child)
	}
}

// markAllDirty implements the global rebuild: targeted queue entries are
// superseded, and every materialized node is re-enqueued depth-first
// from the root so the rebuild drains top-down.
func (s *store) markAllDirty() {
	s.mu.Lock()
	s.queue = s.queue[:0]
	s.queued = make(map[model.NodeID]bool)
	s.enqueueDepthFirstLocked(s.root)
	s.mu.Unlock()
	s.signal()
}

func (s *store) enqueueDepthFirstLocked(id model.NodeID) {
	e := s.nodes[id]
	if e == nil || e.state == stateGone {
		return
	}
	e.seq++
	if e.state == stateFresh || e.state == stateAbsent {
		e.state = stateDirty
	}
	if e.state != stateMaterializing {
		s.enqueueLocked(id)
	}
	if e.snapshot == nil {
		return
	}
	for _, child := range e.snapshot.Children {
		s.enqueueDepthFirstLocked(child)
	}
}

// claim pops the next dirty node and moves it to Materializing,
// capturing the invalidation seq the run will satisfy. Returns false
// when the queue is empty.
func (s *store) claim() (model.NodeID, uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for len(s.queue) > 0 {
		id := s.queue[0]
		s.queue = s.queue[1:]
		delete(s.queued, id)
		e := s.nodes[id]
		if e == nil || e.state == stateGone || e.state == stateMaterializing {
			continue
		}
		e.state = stateMaterializing
		e.claimedSeq = e.seq
		return id, e.seq, true
	}
	return model.NodeIDNone, 0, false
}

// snapshotOf returns a point-in-time reference to the node's snapshot
// along with its current state.
func (s *store) snapshotOf(id model.NodeID) (*model.NodeSnapshot, nodeState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.nodes[id]
	if e == nil {
		return nil, stateAbsent
	}
	return e.snapshot, e.state
}

// parentOf returns the recorded parent of id.
func (s *store) parentOf(id model.NodeID) model.NodeID {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e := s.nodes[id]; e != nil {
		return e.parent
	}
	return model.NodeIDNone
}

// demand returns the node's snapshot when it is fresh, or arranges for a
// materialization and returns a waiter for its completion. gone reports
// a terminal node. Exactly one of snap, w is meaningful.
func (s *store) demand(id model.NodeID) (snap *model.NodeSnapshot, w waiter, gone bool) {
	s.mu.Lock()
	e := s.ensureLocked(id)
	switch e.state {
	case stateGone:
		s.mu.Unlock()
		return nil, nil, true
	case stateFresh:
		snap = e.snapshot
		s.mu.Unlock()
		return snap, nil, false
	}
	if e.state == stateAbsent {
		e.state = stateDirty
		e.seq++
	}
	if e.state == stateDirty && !s.queued[id] {
		s.enqueueLocked(id)
	}
	w = make(waiter, 1)
	e.waiters = append(e.waiters, w)
	s.mu.Unlock()
	s.signal()
	return nil, w, false
}

// complete commits a materialization: the snapshot is replaced
// atomically, child parent links are recorded, waiters receive this
// specific result, and the dirty entry is cleared unless another
// invalidation arrived mid-flight, in which case the node is requeued
// for exactly one more run.
func (s *store) complete(id model.NodeID, snap *model.NodeSnapshot) (requeued bool) {
	s.mu.Lock()
	e := s.nodes[id]
	if e == nil || e.state == stateGone {
		s.mu.Unlock()
		return false
	}
	e.snapshot = snap
	for _, child := range snap.Children {
		ce := s.ensureLocked(child)
		if ce.state == stateGone {
			// The provider vends this NodeID again after a removal (same
			// path recreated, row re-inserted). The entry restarts its
			// lifecycle from scratch; the old snapshot and counters
			// belong to the dead incarnation.
			ce.state = stateAbsent
			ce.snapshot = nil
			ce.seq = 0
			ce.claimedSeq = 0
		}
		ce.parent = id
	}
	if e.seq != e.claimedSeq {
		e.state = stateDirty
		s.enqueueLocked(id)
		requeued = true
	} else {
		e.state = stateFresh
	}
	s.notifyLocked(e, snap)
	s.mu.Unlock()
	if requeued {
		s.signal()
	}
	return requeued
}

// fail abandons the in-flight materialization after a provider fault.
// The previous snapshot stays visible and the node is treated as
// settled until the next invalidation; waiters are released with the
// stale snapshot rather than left hanging.
func (s *store) fail(id model.NodeID) {
	s.mu.Lock()
	e := s.nodes[id]
	if e == nil || e.state == stateGone {
		s.mu.Unlock()
		return
	}
	if e.seq != e.claimedSeq {
		e.state = stateDirty
		s.enqueueLocked(id)
	} else {
		e.state = stateFresh
	}
	s.notifyLocked(e, e.snapshot)
	s.mu.Unlock()
	s.signal()
}

// dropSubtree marks id and its recorded descendants Gone, detaches it
// from the parent snapshot, and releases all pending waiters with nil
// so visits resolve not-found. Returns the ids dropped.
func (s *store) dropSubtree(id model.NodeID) []model.NodeID {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.nodes[id]
	if e == nil {
		return nil
	}
	if pe := s.nodes[e.parent]; pe != nil && pe.snapshot != nil {
		pe.snapshot = removeChild(pe.snapshot, id)
	}
	var dropped []model.NodeID
	s.dropLocked(id, &dropped)
	return dropped
}

func (s *store) dropLocked(id model.NodeID, dropped *[]model.NodeID) {
	e := s.nodes[id]
	if e == nil || e.state == stateGone {
		return
	}
	e.state = stateGone
	*dropped = append(*dropped, id)
	s.notifyLocked(e, nil)
	snap := e.snapshot
	e.snapshot = nil
	if snap == nil {
		return
	}
	for _, child := range snap.Children {
		s.dropLocked(child, dropped)
	}
}

func (s *store) notifyLocked(e *entry, snap *model.NodeSnapshot) {
	for _, w := range e.waiters {
		w <- snap
	}
	e.waiters = nil
}

func removeChild(snap *model.NodeSnapshot, id model.NodeID) *model.NodeSnapshot {
	dup := snap.Clone()
	children := dup.Children[:0]
	for _, child := range dup.Children {
		if child != id {
			children = append(children, child)
		}
	}
	dup.Children = children
	return dup
}
