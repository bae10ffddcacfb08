package model

import "strings"

// TreePath is an ordered sequence of NodeIDs from the root down to one
// node. Paths are derived data: they are recomputed by traversal and
// never stored by the engine, since nodes can be reorganized between
// materializations. Callers may hold a path as an opaque token (for
// selection or persisted view state) and re-resolve it later.
type TreePath []NodeID

// NewTreePath returns a path consisting of the given ids, root first.
func NewTreePath(ids ...NodeID) TreePath {
	return TreePath(ids)
}

// Last returns the deepest node of the path, or NodeIDNone for an empty
// path.
func (p TreePath) Last() NodeID {
	if len(p) == 0 {
		return NodeIDNone
	}
	return p[len(p)-1]
}

// Parent returns the path one level up, or nil at the root.
func (p TreePath) Parent() TreePath {
	if len(p) <= 1 {
		return nil
	}
	return p[:len(p)-1]
}

// Child returns a new path extended by id. The receiver is not mutated.
func (p TreePath) Child(id NodeID) TreePath {
	child := make(TreePath, len(p)+1)
	copy(child, p)
	child[len(p)] = id
	return child
}

// Depth returns the number of nodes on the path.
func (p TreePath) Depth() int { return len(p) }

// Equal reports whether two paths name the same node sequence.
func (p TreePath) Equal(o TreePath) bool {
	if len(p) != len(o) {
		return false
	}
	for i := range p {
		if p[i] != o[i] {
			return false
		}
	}
	return true
}

// Contains reports whether id appears anywhere on the path.
func (p TreePath) Contains(id NodeID) bool {
	for _, n := range p {
		if n == id {
			return true
		}
	}
	return false
}

func (p TreePath) String() string {
	parts := make([]string, len(p))
	for i, id := range p {
		parts[i] = string(id)
	}
	return "/" + strings.Join(parts, "/")
}
