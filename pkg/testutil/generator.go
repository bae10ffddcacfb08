package testutil

import (
	"fmt"

	"pgregory.net/rapid"

	"github.com/vanderheijden86/espalier/pkg/model"
)

// ChildListGen draws an ordered, duplicate-free child list over a small
// id alphabet, for diff property tests.
func ChildListGen(prefix string, maxLen int) *rapid.Generator[[]model.NodeID] {
	return rapid.Custom(func(t *rapid.T) []model.NodeID {
		n := rapid.IntRange(0, maxLen).Draw(t, "len")
		perm := rapid.Permutation(idAlphabet(prefix, maxLen)).Draw(t, "perm")
		return perm[:n]
	})
}

func idAlphabet(prefix string, n int) []model.NodeID {
	ids := make([]model.NodeID, n)
	for i := range ids {
		ids[i] = model.NodeID(fmt.Sprintf("%s%d", prefix, i))
	}
	return ids
}

// ApplyRecords replays a change-record batch over a prior child list,
// the way an incremental consumer would, and returns the resulting
// order. Used to check that diff output reconstructs the new list.
func ApplyRecords(old []model.NodeID, records []model.ChangeRecord) []model.NodeID {
	current := append([]model.NodeID(nil), old...)
	for _, record := range records {
		switch record.Kind {
		case model.ChangeRemoved:
			kept := current[:0]
			for _, id := range current {
				if id != record.Node {
					kept = append(kept, id)
				}
			}
			current = kept
		case model.ChangeReordered:
			current = append([]model.NodeID(nil), record.Order...)
		case model.ChangeInserted:
			if record.Index < 0 || record.Index > len(current) {
				current = append(current, record.Node)
				continue
			}
			current = append(current, model.NodeIDNone)
			copy(current[record.Index+1:], current[record.Index:])
			current[record.Index] = record.Node
		}
	}
	return current
}
