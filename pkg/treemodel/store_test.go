package treemodel

import (
	"testing"

	"github.com/vanderheijden86/espalier/pkg/model"
)

func TestStore_MarkDirtyCoalesces(t *testing.T) {
	s := newStore("root")
	s.markDirty("a")
	s.markDirty("a")
	s.markDirty("a")

	id, _, ok := s.claim()
	if !ok || id != "a" {
		t.Fatalf("expected to claim a, got %q ok=%v", id, ok)
	}
	if _, _, ok := s.claim(); ok {
		t.Error("expected coalesced queue to be empty after one claim")
	}
}

func TestStore_InvalidateDuringFlightRequeuesOnce(t *testing.T) {
	s := newStore("root")
	s.markDirty("a")
	id, _, _ := s.claim()

	// Invalidation lands while a is mid-materialization: it must not be
	// claimable now, and completion must requeue it exactly once.
	s.markDirty("a")
	if _, _, ok := s.claim(); ok {
		t.Fatal("node mid-materialization must not be claimable")
	}

	requeued := s.complete(id, &model.NodeSnapshot{ID: id})
	if !requeued {
		t.Fatal("expected completion to requeue after mid-flight invalidation")
	}
	id2, _, ok := s.claim()
	if !ok || id2 != "a" {
		t.Fatalf("expected requeued a, got %q ok=%v", id2, ok)
	}
	if s.complete(id2, &model.NodeSnapshot{ID: id2}) {
		t.Error("second completion must settle the node")
	}
	if _, state := s.snapshotOf("a"); state != stateFresh {
		t.Errorf("expected fresh after settling, got %v", state)
	}
}

func TestStore_ScheduleDoesNotDisturbSettledNodes(t *testing.T) {
	s := newStore("root")
	s.markDirty("a")
	id, _, _ := s.claim()
	s.complete(id, &model.NodeSnapshot{ID: id})

	s.schedule("a")
	if _, _, ok := s.claim(); ok {
		t.Error("schedule must not requeue a fresh node")
	}

	// But it must demand a first materialization for unknown nodes.
	s.schedule("b")
	if id, _, ok := s.claim(); !ok || id != "b" {
		t.Errorf("expected schedule to queue absent node, got %q ok=%v", id, ok)
	}
}

func TestStore_DemandFreshReturnsImmediately(t *testing.T) {
	s := newStore("root")
	s.markDirty("a")
	id, _, _ := s.claim()
	want := &model.NodeSnapshot{ID: id, Children: []model.NodeID{"x"}}
	s.complete(id, want)

	snap, w, gone := s.demand("a")
	if gone || w != nil {
		t.Fatalf("expected immediate snapshot, got waiter=%v gone=%v", w, gone)
	}
	if snap.ID != "a" || len(snap.Children) != 1 {
		t.Errorf("unexpected snapshot %+v", snap)
	}
}

func TestStore_DemandDirtyDeliversThatCompletion(t *testing.T) {
	s := newStore("root")
	s.markDirty("a")

	_, w, gone := s.demand("a")
	if gone || w == nil {
		t.Fatal("expected a waiter for a dirty node")
	}

	id, _, _ := s.claim()
	s.complete(id, &model.NodeSnapshot{ID: id, Children: []model.NodeID{"x", "y"}})

	snap := <-w
	if snap == nil || len(snap.Children) != 2 {
		t.Fatalf("waiter got %+v", snap)
	}
}

func TestStore_DropSubtreeReleasesWaitersWithNil(t *testing.T) {
	s := newStore("root")
	s.markDirty("a")
	_, w, _ := s.demand("a")

	s.dropSubtree("a")
	if snap := <-w; snap != nil {
		t.Errorf("expected nil for dropped node, got %+v", snap)
	}
	if _, _, gone := s.demand("a"); !gone {
		t.Error("dropped node must stay gone")
	}
}

func TestStore_DropSubtreeDetachesFromParent(t *testing.T) {
	s := newStore("root")
	s.markDirty("root")
	id, _, _ := s.claim()
	s.complete(id, &model.NodeSnapshot{ID: "root", Children: []model.NodeID{"a", "b"}})

	dropped := s.dropSubtree("a")
	if len(dropped) != 1 || dropped[0] != "a" {
		t.Errorf("expected [a] dropped, got %v", dropped)
	}
	snap, _ := s.snapshotOf("root")
	if len(snap.Children) != 1 || snap.Children[0] != "b" {
		t.Errorf("expected root children [b], got %v", snap.Children)
	}
}

func TestStore_CompleteRevivesGoneChild(t *testing.T) {
	s := newStore("root")
	s.markDirty("root")
	id, _, _ := s.claim()
	s.complete(id, &model.NodeSnapshot{ID: "root", Children: []model.NodeID{"a"}})
	s.markDirty("a")
	id, _, _ = s.claim()
	s.complete(id, &model.NodeSnapshot{ID: "a", Parent: "root"})

	s.dropSubtree("a")
	s.markDirty("a")
	if _, _, ok := s.claim(); ok {
		t.Fatal("a gone node must not be claimable")
	}

	// The parent's next completion references the same NodeID again: the
	// entry must restart its lifecycle instead of staying dead.
	s.markDirty("root")
	id, _, _ = s.claim()
	s.complete(id, &model.NodeSnapshot{ID: "root", Children: []model.NodeID{"a"}})

	if _, state := s.snapshotOf("a"); state != stateAbsent {
		t.Fatalf("expected re-linked node to restart at absent, got %v", state)
	}
	s.markDirty("a")
	id, _, ok := s.claim()
	if !ok || id != "a" {
		t.Fatalf("expected revived a to be claimable, got %q ok=%v", id, ok)
	}
	want := &model.NodeSnapshot{ID: "a", Parent: "root", Children: []model.NodeID{"a1"}}
	s.complete(id, want)
	snap, w, gone := s.demand("a")
	if gone || w != nil {
		t.Fatalf("expected fresh snapshot for revived node, waiter=%v gone=%v", w, gone)
	}
	if len(snap.Children) != 1 || snap.Children[0] != "a1" {
		t.Errorf("unexpected revived snapshot %+v", snap)
	}
}

func TestStore_MarkAllDirtySupersedesTargeted(t *testing.T) {
	s := newStore("root")

	// Materialize root -> [a]; a -> [].
	s.markDirty("root")
	id, _, _ := s.claim()
	s.complete(id, &model.NodeSnapshot{ID: "root", Children: []model.NodeID{"a"}})
	s.markDirty("a")
	id, _, _ = s.claim()
	s.complete(id, &model.NodeSnapshot{ID: "a", Parent: "root"})

	// A targeted invalidation followed by a full rebuild: each node is
	// claimable exactly once, root first.
	s.markDirty("a")
	s.markAllDirty()

	first, _, ok := s.claim()
	if !ok || first != "root" {
		t.Fatalf("expected rebuild to start at root, got %q", first)
	}
	s.complete(first, &model.NodeSnapshot{ID: "root", Children: []model.NodeID{"a"}})
	second, _, ok := s.claim()
	if !ok || second != "a" {
		t.Fatalf("expected a after root, got %q", second)
	}
	s.complete(second, &model.NodeSnapshot{ID: "a", Parent: "root"})
	if extra, _, ok := s.claim(); ok {
		t.Errorf("expected empty queue after rebuild, got %q", extra)
	}
}

func TestStore_FailReleasesWaitersWithStaleSnapshot(t *testing.T) {
	s := newStore("root")
	s.markDirty("a")
	id, _, _ := s.claim()
	stale := &model.NodeSnapshot{ID: "a", Children: []model.NodeID{"old"}}
	s.complete(id, stale)

	s.markDirty("a")
	_, w, _ := s.demand("a")
	id, _, _ = s.claim()
	s.fail(id)

	snap := <-w
	if snap == nil || len(snap.Children) != 1 || snap.Children[0] != "old" {
		t.Errorf("expected stale snapshot after fault, got %+v", snap)
	}
	if _, state := s.snapshotOf("a"); state != stateFresh {
		t.Errorf("faulted node must settle as stale-fresh, got %v", state)
	}
}
