package treemodel

import (
	"context"

	"github.com/vanderheijden86/espalier/pkg/metrics"
	"github.com/vanderheijden86/espalier/pkg/model"
)

// Visit performs a predicate-guided root-to-leaf search. At every level
// it first awaits any pending materialization of the node it is about
// to evaluate, so the visitor always sees a consistent, just-computed
// child list rather than racing a partial update. The wait is a
// channel suspension, never a busy block: cancelling ctx drops only
// this caller's continuation while the underlying materialization keeps
// running for other pending visitors.
//
// Visit returns the matched path, or nil with a nil error when the
// visitor found nothing (including the case where the target vanished
// mid-visit). The only returned error is the context's.
//
// The same primitive serves both selection ("find the node for element
// E") and collect-all resolution (wrap the visitor in model.Collector).
func (m *AsyncModel) Visit(ctx context.Context, v model.Visitor) (model.TreePath, error) {
	defer metrics.Timer(metrics.Visit)()
	root := m.structure.Root()
	snap, err := m.await(ctx, root)
	if err != nil {
		return nil, err
	}
	if snap == nil {
		return nil, nil
	}
	path := model.NewTreePath(root)
	switch v.Visit(path, snap.Payload) {
	case model.ActionInterrupt:
		return path, nil
	case model.ActionContinue:
		found, _, err := m.visitChildren(ctx, v, path, snap)
		return found, err
	default:
		return nil, nil
	}
}

// visitChildren walks snap's children in order. The bool result reports
// whether the caller should keep trying subsequent siblings of snap's
// own level (false after ActionSkipSiblings).
func (m *AsyncModel) visitChildren(ctx context.Context, v model.Visitor, path model.TreePath, snap *model.NodeSnapshot) (model.TreePath, bool, error) {
	for _, child := range snap.Children {
		childSnap, err := m.await(ctx, child)
		if err != nil {
			return nil, false, err
		}
		if childSnap == nil {
			// Vanished between the parent's materialization and ours.
			continue
		}
		childPath := path.Child(child)
		switch v.Visit(childPath, childSnap.Payload) {
		case model.ActionInterrupt:
			return childPath, false, nil
		case model.ActionContinue:
			found, keepGoing, err := m.visitChildren(ctx, v, childPath, childSnap)
			if err != nil || found != nil {
				return found, false, err
			}
			if !keepGoing {
				return nil, true, nil
			}
		case model.ActionSkipSiblings:
			return nil, false, nil
		case model.ActionSkipChildren:
			// Next sibling.
		}
	}
	return nil, true, nil
}

// await resolves id to a settled snapshot, scheduling and waiting for a
// materialization when the node is absent, dirty or in flight. A nil
// snapshot with nil error means the node is gone.
func (m *AsyncModel) await(ctx context.Context, id model.NodeID) (*model.NodeSnapshot, error) {
	for {
		snap, w, gone := m.structure.store.demand(id)
		if gone {
			return nil, nil
		}
		if w == nil {
			return snap, nil
		}
		select {
		case <-ctx.Done():
			// Drops only this continuation; the materialization keeps
			// going for whoever else awaits it.
			return nil, ctx.Err()
		case snap = <-w:
			if snap == nil {
				return nil, nil
			}
			// This is the result of the specific completion we awaited,
			// not whatever the store holds by now.
			return snap, nil
		}
	}
}
