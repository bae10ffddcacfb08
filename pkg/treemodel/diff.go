package treemodel

import (
	"github.com/vanderheijden86/espalier/pkg/metrics"
	"github.com/vanderheijden86/espalier/pkg/model"
)

// diffNode computes the minimal change records between a node's previous
// snapshot and its freshly materialized shape. Matching is by NodeID
// identity, never payload equality: a payload change on a surviving
// node yields Updated, and a pure reorder of surviving children yields
// a single Reordered record instead of remove/insert pairs, so that
// externally held paths through those children stay valid.
//
// Record order within the batch: removals, then a reorder (if any),
// then insertions in ascending index, then the node's own update.
// Insertion indexes are relative to the parent's child list after the
// earlier records of the batch have been applied.
func diffNode(prev *model.NodeSnapshot, next *model.NodeSnapshot) []model.ChangeRecord {
	defer metrics.Timer(metrics.Diff)()
	if prev == nil {
		// First materialization: the node's appearance was already
		// reported by its parent's diff; there is no prior child list
		// to delta against.
		return nil
	}

	id := next.ID
	oldChildren := prev.Children
	newChildren := next.Children

	oldSet := make(map[model.NodeID]struct{}, len(oldChildren))
	for _, c := range oldChildren {
		oldSet[c] = struct{}{}
	}
	newSet := make(map[model.NodeID]struct{}, len(newChildren))
	for _, c := range newChildren {
		newSet[c] = struct{}{}
	}

	var records []model.ChangeRecord

	for _, c := range oldChildren {
		if _, kept := newSet[c]; !kept {
			records = append(records, model.ChangeRecord{
				Kind:   model.ChangeRemoved,
				Parent: id,
				Node:   c,
			})
		}
	}

	// Surviving children in old and new relative order. Any difference
	// is one Reordered record carrying the new order.
	var oldCommon, newCommon []model.NodeID
	for _, c := range oldChildren {
		if _, kept := newSet[c]; kept {
			oldCommon = append(oldCommon, c)
		}
	}
	for _, c := range newChildren {
		if _, kept := oldSet[c]; kept {
			newCommon = append(newCommon, c)
		}
	}
	if !sameOrder(oldCommon, newCommon) {
		records = append(records, model.ChangeRecord{
			Kind:   model.ChangeReordered,
			Parent: id,
			Order:  newCommon,
		})
	}

	for i, c := range newChildren {
		if _, existed := oldSet[c]; !existed {
			records = append(records, model.ChangeRecord{
				Kind:   model.ChangeInserted,
				Parent: id,
				Node:   c,
				Index:  i,
			})
		}
	}

	if prev.Payload.Version != next.Payload.Version {
		records = append(records, model.ChangeRecord{
			Kind:   model.ChangeUpdated,
			Parent: next.Parent,
			Node:   id,
		})
	}

	return records
}

func sameOrder(a, b []model.NodeID) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
