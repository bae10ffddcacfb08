package treemodel

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/vanderheijden86/espalier/pkg/debug"
	"github.com/vanderheijden86/espalier/pkg/metrics"
	"github.com/vanderheijden86/espalier/pkg/model"
	"github.com/vanderheijden86/espalier/pkg/structure"
)

// runWorker drains the dirty queue until the context is cancelled.
// Several workers may run concurrently; the store's claim protocol
// guarantees a node is never materialized by two workers at once.
func (m *StructureModel) runWorker(ctx context.Context) {
	for {
		for {
			if ctx.Err() != nil {
				return
			}
			id, _, ok := m.store.claim()
			if !ok {
				break
			}
			m.materialize(ctx, id)
		}
		select {
		case <-ctx.Done():
			return
		case <-m.store.wake:
		}
	}
}

// materialize recomputes one node from the provider, diffs against the
// previous snapshot and commits the result. All faults degrade to "the
// subtree stays stale"; nothing propagates past the worker.
func (m *StructureModel) materialize(ctx context.Context, id model.NodeID) {
	defer metrics.Timer(metrics.Materialize)()
	prev, _ := m.store.snapshotOf(id)

	payload, err := m.describe(id)
	if err != nil {
		m.resolveFault(ctx, id, prev, err)
		return
	}

	var children []model.NodeID
	if !payload.Leaf {
		children, err = m.children(id)
		if err != nil {
			m.resolveFault(ctx, id, prev, err)
			return
		}
		children = m.sortChildren(children)
	}

	parent := model.NodeIDNone
	if prev != nil {
		parent = prev.Parent
	} else {
		parent = m.store.parentOf(id)
	}

	next := &model.NodeSnapshot{
		ID:       id,
		Parent:   parent,
		Children: children,
		Payload:  payload,
	}
	records := diffNode(prev, next)

	requeued := m.store.complete(id, next)
	m.materializations.Add(1)
	if requeued {
		m.requeues.Add(1)
	}

	// Children no longer referenced by the new snapshot take their
	// whole recorded subtrees with them.
	for _, record := range records {
		if record.Kind == model.ChangeRemoved {
			m.store.dropSubtree(record.Node)
		}
	}

	if prev == nil || len(records) > 0 {
		m.emit(ctx, Update{Node: id, Snapshot: next.Clone(), Records: records})
	}
	debug.Log("materialized %s: %d children, %d records", id, len(children), len(records))
}

// resolveFault distinguishes a vanished node from a transient provider
// fault. A gone node is recovered locally as a Removed record at its
// parent; a fault abandons this cycle and leaves the subtree stale.
func (m *StructureModel) resolveFault(ctx context.Context, id model.NodeID, prev *model.NodeSnapshot, err error) {
	if errors.Is(err, structure.ErrNodeGone) {
		if id == m.store.root {
			// The root cannot be removed from itself; treat a vanished
			// root as a transient fault and keep the last shape.
			m.faults.Add(1)
			m.store.fail(id)
			return
		}
		parent := model.NodeIDNone
		if prev != nil {
			parent = prev.Parent
		}
		if parent == model.NodeIDNone {
			parent = m.store.parentOf(id)
		}
		m.store.dropSubtree(id)
		m.gone.Add(1)
		m.emit(ctx, Update{
			Node: id,
			Records: []model.ChangeRecord{{
				Kind:   model.ChangeRemoved,
				Parent: parent,
				Node:   id,
			}},
		})
		debug.Log("node gone: %s (removed at %s)", id, parent)
		return
	}
	m.faults.Add(1)
	m.store.fail(id)
	debug.Log("provider fault on %s: %v", id, err)
}

// emit forwards an update to the async front, giving up only on
// shutdown.
func (m *StructureModel) emit(ctx context.Context, u Update) {
	select {
	case m.updates <- u:
	case <-ctx.Done():
	}
}

// sortChildren orders ids with the active comparator, keeping provider
// order when no comparator is set. Children the provider can no longer
// describe are dropped from the list; their own materializations settle
// them as gone later if anything still references them.
func (m *StructureModel) sortChildren(ids []model.NodeID) []model.NodeID {
	cmp := m.Comparator()
	if cmp == nil || len(ids) < 2 {
		return ids
	}
	type kid struct {
		id      model.NodeID
		payload model.Payload
	}
	kids := make([]kid, 0, len(ids))
	for _, id := range ids {
		payload, err := m.describe(id)
		if err != nil {
			if errors.Is(err, structure.ErrNodeGone) {
				continue
			}
			// Keep the child; a zero payload sorts deterministically.
			payload = model.Payload{Name: string(id)}
		}
		kids = append(kids, kid{id: id, payload: payload})
	}
	sort.SliceStable(kids, func(i, j int) bool {
		return cmp(kids[i].payload, kids[j].payload) < 0
	})
	sorted := make([]model.NodeID, len(kids))
	for i, k := range kids {
		sorted[i] = k.id
	}
	return sorted
}

// describe and children shield the workers from provider panics,
// degrading them to faults.
func (m *StructureModel) describe(id model.NodeID) (payload model.Payload, err error) {
	defer metrics.Timer(metrics.ProviderDescribe)()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("provider panic describing %s: %v", id, r)
		}
	}()
	return m.provider.Describe(id)
}

func (m *StructureModel) children(id model.NodeID) (children []model.NodeID, err error) {
	defer metrics.Timer(metrics.ProviderChildren)()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("provider panic listing %s: %v", id, r)
		}
	}()
	return m.provider.Children(id)
}
