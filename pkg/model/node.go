// Package model defines the core data types shared by the espalier tree
// engine: node identity, snapshots, structural change records, tree paths
// and the visitor protocol.
package model

// NodeID is an opaque, stable identifier for one logical tree node.
// Equal NodeIDs across materializations denote the same node even when its
// payload changed. Providers choose the scheme; it must stay stable under
// irrelevant domain mutations and change when the node structurally moves.
type NodeID string

// NodeIDNone is the zero NodeID, used where no node applies.
const NodeIDNone NodeID = ""

// Payload is the display metadata a provider vends for a node.
// Version is an opaque token: a changed Version with an unchanged NodeID
// yields an Updated change record rather than remove+insert.
type Payload struct {
	// Name is the display label for the node.
	Name string
	// File is the backing resource path, if any. Used by file-keyed
	// update resolution; empty means "unknown", which makes file
	// visitors descend rather than skip.
	File string
	// Element is the domain-element key the node wraps, if any.
	Element string
	// Version is the opaque payload version token.
	Version uint64
	// Leaf marks nodes that can never have children; visitors use it
	// to stop descending without a children fetch.
	Leaf bool
}

// NodeSnapshot is the last-materialized shape of one node: identity,
// ordered child identities and the payload as of that materialization.
// Snapshots are immutable once published; the materializer replaces the
// whole snapshot atomically, readers hold point-in-time references.
type NodeSnapshot struct {
	ID       NodeID
	Parent   NodeID
	Children []NodeID
	Payload  Payload
}

// Clone returns a deep copy of the snapshot. The engine publishes only
// clones so callers can't alias the store's child slices.
func (s *NodeSnapshot) Clone() *NodeSnapshot {
	if s == nil {
		return nil
	}
	dup := *s
	dup.Children = append([]NodeID(nil), s.Children...)
	return &dup
}

// Comparator is a total order over sibling payloads. It may be replaced
// at runtime; a replacement affects future materializations only, never
// already-cached order. A nil Comparator keeps provider order.
type Comparator func(a, b Payload) int
