package model

import "fmt"

// ChangeKind discriminates ChangeRecord variants.
type ChangeKind int

const (
	// ChangeInserted means Node appeared under Parent at Index.
	ChangeInserted ChangeKind = iota
	// ChangeRemoved means Node disappeared from under Parent.
	ChangeRemoved
	// ChangeReordered means the surviving children of Parent changed
	// relative order; Order holds them in their new order.
	ChangeReordered
	// ChangeUpdated means Node kept its identity and position but its
	// payload version changed.
	ChangeUpdated
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeInserted:
		return "inserted"
	case ChangeRemoved:
		return "removed"
	case ChangeReordered:
		return "reordered"
	case ChangeUpdated:
		return "updated"
	default:
		return fmt.Sprintf("ChangeKind(%d)", int(k))
	}
}

// ChangeRecord is one minimal structural delta produced by diffing two
// materializations of the same parent. Consumers apply records in the
// order produced to patch an incremental view; they never imply a full
// reload.
type ChangeRecord struct {
	Kind   ChangeKind
	Parent NodeID
	// Node is set for Inserted, Removed and Updated.
	Node NodeID
	// Index is the insertion position for Inserted, relative to the
	// parent's child list after earlier records in the same batch.
	Index int
	// Order is set for Reordered: the carried-over children in their
	// new relative order.
	Order []NodeID
}

func (r ChangeRecord) String() string {
	switch r.Kind {
	case ChangeInserted:
		return fmt.Sprintf("inserted(%s, %d, %s)", r.Parent, r.Index, r.Node)
	case ChangeRemoved:
		return fmt.Sprintf("removed(%s, %s)", r.Parent, r.Node)
	case ChangeReordered:
		return fmt.Sprintf("reordered(%s, %v)", r.Parent, r.Order)
	case ChangeUpdated:
		return fmt.Sprintf("updated(%s)", r.Node)
	default:
		return fmt.Sprintf("change(%d)", int(r.Kind))
	}
}
